package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"

	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/utils"

	"ms-boxoffice/internal/errs"
)

type contextKey string

const identityKey contextKey = "identity"

// Middleware verifies the bearer token against the OIDC issuer and
// attaches the resolved Identity (uid, email, realm roles) to the
// request context.
func Middleware(issuer string) func(http.Handler) http.Handler {
	if issuer == "" {
		panic("OIDC issuer not configured")
	}

	provider, err := oidc.NewProvider(context.Background(), issuer)
	if err != nil {
		panic(fmt.Sprintf("Failed to create OIDC provider: %v", err))
	}

	// SkipClientIDCheck: tokens are minted for several frontends.
	verifier := provider.Verifier(&oidc.Config{
		SkipClientIDCheck: true,
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteError(w, errs.Wrap(errs.Unauthorized, "missing or malformed Authorization header", err))
				return
			}

			idToken, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				utils.WriteError(w, errs.Wrap(errs.Unauthorized, "invalid token", err))
				return
			}

			var claims struct {
				Sub         string `json:"sub"`
				Email       string `json:"email"`
				RealmAccess struct {
					Roles []string `json:"roles"`
				} `json:"realm_access"`
			}
			if err := idToken.Claims(&claims); err != nil {
				utils.WriteError(w, errs.Wrap(errs.Unauthorized, "failed to parse claims", err))
				return
			}

			identity := models.Identity{
				UID:   claims.Sub,
				Email: claims.Email,
				Roles: claims.RealmAccess.Roles,
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles rejects requests whose identity carries none of the
// given roles. Must be mounted after Middleware.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFrom(r.Context())
			if identity.UID == "" {
				utils.WriteError(w, errs.E(errs.Unauthorized, "authentication required"))
				return
			}
			if !identity.HasRole(roles...) {
				utils.WriteError(w, errs.E(errs.Forbidden, "insufficient role for this operation"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFrom extracts the verified identity from the request context.
func IdentityFrom(ctx context.Context) models.Identity {
	if id, ok := ctx.Value(identityKey).(models.Identity); ok {
		return id
	}
	return models.Identity{}
}

// WithIdentity is a test helper to seed an identity into a context.
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}
