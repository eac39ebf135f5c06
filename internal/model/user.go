package model

import "time"

// Role is the coarse permission level supplied by the identity provider.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleSigner Role = "SIGNER"
	RoleViewer Role = "VIEWER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleSigner || r == RoleViewer
}

// User is a member of the signer directory.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
	Role  Role   `json:"role"`
	// SavedSignature is an optional PNG data URL reused across signings.
	SavedSignature *string   `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Actor is the authenticated caller of an operation along with the request
// metadata recorded in audit entries and signatures.
type Actor struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	IPAddress string
	UserAgent string
}

// IsAdmin reports whether the actor may perform administrative actions.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
