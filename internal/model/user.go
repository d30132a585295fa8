package model

import "time"

// Role is the closed set of account roles.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Authorities granted to a role.
const (
	AuthorityUser  = "ROLE_USER"
	AuthorityAdmin = "ROLE_ADMIN"
)

// roleAuthorities is the static role expansion table. ADMIN implies USER.
var roleAuthorities = map[Role][]string{
	RoleAdmin: {AuthorityAdmin, AuthorityUser},
	RoleUser:  {AuthorityUser},
}

// ParseRole converts a stored or claimed role name to a Role.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	_, ok := roleAuthorities[r]
	return r, ok
}

// Authorities returns the authorities granted to the role. Unknown roles get none.
func (r Role) Authorities() []string {
	auths := roleAuthorities[r]
	out := make([]string, len(auths))
	copy(out, auths)
	return out
}

// HasAuthority reports whether the role grants the given authority.
func (r Role) HasAuthority(authority string) bool {
	for _, a := range roleAuthorities[r] {
		if a == authority {
			return true
		}
	}
	return false
}

// User represents an account in the credential store
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never exposed in JSON responses
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
