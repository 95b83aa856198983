package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type ctxKey string

const ctxUserCredentials ctxKey = "STOREFRONT_USER_CREDENTIALS"

// UserCredentials carries the verified identity of the calling end user.
type UserCredentials struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          *string
}

// UserFromContext extracts the verified caller from the context.
func UserFromContext(ctx context.Context) (*UserCredentials, bool) {
	v := ctx.Value(ctxUserCredentials)
	if v == nil {
		return nil, false
	}
	u, ok := v.(*UserCredentials)
	return u, ok
}

// WithUser attaches the credentials to the context; exported for tests.
func WithUser(ctx context.Context, creds *UserCredentials) context.Context {
	return context.WithValue(ctx, ctxUserCredentials, creds)
}

// VerifyFunc validates the incoming bearer token and returns its claims map.
type VerifyFunc func(ctx context.Context, token string) (map[string]interface{}, error)

// FirebaseVerifier adapts a Firebase Auth client to VerifyFunc.
func FirebaseVerifier(client *firebaseauth.Client) VerifyFunc {
	return func(ctx context.Context, token string) (map[string]interface{}, error) {
		decoded, err := client.VerifyIDToken(ctx, token)
		if err != nil {
			return nil, err
		}
		claims := make(map[string]interface{}, len(decoded.Claims)+1)
		for k, v := range decoded.Claims {
			claims[k] = v
		}
		claims["uid"] = decoded.UID
		return claims, nil
	}
}

// Bearer parses the Authorization header and, when a token is present and
// valid, sets the caller credentials on the context. Requests without a token
// pass through anonymously; handlers that need identity check the context and
// answer 401 themselves.
func Bearer(verify VerifyFunc) func(http.Handler) http.Handler {
	if verify == nil {
		panic("auth.Bearer: verify func must not be nil")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, found := extractBearerToken(r)
			if !found {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verify(r.Context(), token)
			if err != nil {
				// Verification errors stay out of the header: their text is
				// unconstrained and would break the quoted parameter.
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token", error_description="token verification failed"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			creds, err := credentialsFromClaims(claims)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token", error_description="invalid claims"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), creds)))
		})
	}
}

func credentialsFromClaims(claims map[string]interface{}) (*UserCredentials, error) {
	if claims == nil {
		return nil, errors.New("missing claims")
	}

	id := stringClaim(claims, "uid")
	if id == "" {
		id = stringClaim(claims, "user_id")
	}
	if id == "" {
		id = stringClaim(claims, "sub")
	}
	if id == "" {
		return nil, errors.New("token carries no user id")
	}

	creds := &UserCredentials{
		ID:            id,
		Email:         stringClaim(claims, "email"),
		EmailVerified: boolClaim(claims, "email_verified"),
	}
	if name := stringClaim(claims, "name"); name != "" {
		creds.Name = &name
	}
	return creds, nil
}

func extractBearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return "", false
	}
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func stringClaim(claims map[string]interface{}, key string) string {
	if v, ok := claims[key]; ok {
		if s, valid := v.(string); valid {
			return s
		}
	}
	return ""
}

func boolClaim(claims map[string]interface{}, key string) bool {
	if v, ok := claims[key]; ok {
		if b, valid := v.(bool); valid {
			return b
		}
	}
	return false
}
