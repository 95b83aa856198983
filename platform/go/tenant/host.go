package tenant

import (
	"net"
	"strings"
)

// HostMode classifies how a request reached the platform.
type HostMode int

const (
	// ModeSharedHost means the request hit one of the platform's own domains
	// and the tenant must be identified by a path slug.
	ModeSharedHost HostMode = iota
	// ModeCustomDomain means the request hit a tenant-owned domain mapped 1:1
	// to a tenant.
	ModeCustomDomain
)

func (m HostMode) String() string {
	if m == ModeSharedHost {
		return "shared-host"
	}
	return "custom-domain"
}

// Classifier decides shared-host vs custom-domain mode from the request host.
// The suffix allow-list is environment configuration, never hard-coded, since
// the platform's own hosting domains change between environments.
type Classifier struct {
	suffixes []string
}

// NewClassifier builds a Classifier from the shared-host suffix allow-list.
// Suffixes are matched case-insensitively against the normalized host; a host
// equal to a suffix or ending in "."+suffix counts as shared.
func NewClassifier(suffixes []string) *Classifier {
	cleaned := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		s = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(s, ".")))
		if s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return &Classifier{suffixes: cleaned}
}

// Classify returns the host mode for the given request host.
func (c *Classifier) Classify(host string) HostMode {
	h := NormalizeHost(host)
	for _, suffix := range c.suffixes {
		if h == suffix || strings.HasSuffix(h, "."+suffix) {
			return ModeSharedHost
		}
	}
	return ModeCustomDomain
}

// NormalizeHost lowercases the host and strips any port, so
// "Shop.Example.com:8443" and "shop.example.com" resolve identically.
func NormalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "" {
		return ""
	}
	if withoutPort, _, err := net.SplitHostPort(h); err == nil {
		h = withoutPort
	}
	return strings.TrimSuffix(h, ".")
}
