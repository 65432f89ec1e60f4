package jwttoken

import (
	"strings"

	authmw "intake/pkg/platform/middleware/auth"
)

// ToMiddlewareClaims maps token claims onto the identity the middleware stores.
// Roles are matched case-insensitively; a missing name falls back to the
// subject so reviewer attribution on verified documents is never blank.
func ToMiddlewareClaims(claims *Claims) *authmw.JWTClaims {
	name := strings.TrimSpace(claims.Name)
	if name == "" {
		name = claims.Subject
	}
	return &authmw.JWTClaims{
		Subject:     claims.Subject,
		DisplayName: name,
		Role:        strings.ToLower(strings.TrimSpace(claims.Role)),
	}
}

// JWTServiceAdapter exposes JWTService through the middleware's validator interface.
type JWTServiceAdapter struct {
	service *JWTService
}

var _ authmw.JWTValidator = (*JWTServiceAdapter)(nil)

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
