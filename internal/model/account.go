package model

// Account roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account identifies the authenticated caller of a request. Accounts are
// issued elsewhere; this system only needs the id, email and role.
type Account struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// IsAdmin reports whether the account holds the admin role.
func (a *Account) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}
