package auth

import "github.com/golang-jwt/jwt/v5"

// Role is the account type tag carried by every principal.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// Counterpart is the role on the other side of a student/advisor dialogue.
func (r Role) Counterpart() Role {
	if r == RoleStudent {
		return RoleAdmin
	}
	return RoleStudent
}

// Principal is the verified caller identity produced by the identity provider.
type Principal struct {
	ID   string `bson:"id" json:"id"`
	Role Role   `bson:"role" json:"role"`
}

// JWTClaims mirrors the token payload issued by the identity provider.
type JWTClaims struct {
	ID          string `json:"id"`
	AccountType Role   `json:"accountType"`
	Email       string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (c *JWTClaims) Principal() Principal {
	return Principal{ID: c.ID, Role: c.AccountType}
}
