// Package contracts embeds the OpenAPI contract served and enforced by the
// resolution API.
package contracts

import (
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed resolution.yaml
var resolutionYAML []byte

// LoadResolution parses and validates the embedded resolution contract.
func LoadResolution() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromData(resolutionYAML)
	if err != nil {
		return nil, fmt.Errorf("load resolution contract: %w", err)
	}
	if err := spec.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate resolution contract: %w", err)
	}
	return spec, nil
}
