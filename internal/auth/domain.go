package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/ticket"
)

// AccessClaims mirrors the access token issued by the auth service.
type AccessClaims struct {
	Sub  string      `json:"sub"`  // user id
	Role ticket.Role `json:"role"` // CUSTOMER, AGENT or ADMIN
	jwt.RegisteredClaims
}

type Identity struct {
	UserID int64
	Role   ticket.Role
}
