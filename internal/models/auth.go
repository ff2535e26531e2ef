package models

// Role names carried in the identity provider's realm-role claim.
const (
	RoleAdmin       = "admin"
	RoleGestor      = "gestor"
	RoleComprobador = "comprobador"
)

// Identity is the resolved caller identity attached to the request
// context by the auth middleware.
type Identity struct {
	UID   string   `json:"uid"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

func (i Identity) HasRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range i.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// KeycloakConfig holds the connection settings for the identity
// provider's token and admin endpoints.
type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
}

type M2MTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}
