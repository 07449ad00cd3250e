// Package tokenauth adapts golang-jwt/jwt/v5 to the gateway's TokenVerifier,
// checking the access-token key first and falling back to the long-lived
// socket-token key.
package tokenauth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"porterdispatch/contexts/realtime/gateway-service/domain/entities"
	"porterdispatch/contexts/realtime/gateway-service/ports"
)

type claims struct {
	UserID string `json:"sub"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier tries accessKey then socketKey against an HS256 token.
type Verifier struct {
	AccessKey []byte
	SocketKey []byte
}

func (v Verifier) Verify(token string) (ports.TokenClaims, error) {
	c, err := v.parse(token, v.AccessKey)
	if err != nil {
		c, err = v.parse(token, v.SocketKey)
	}
	if err != nil {
		return ports.TokenClaims{}, fmt.Errorf("verify token: %w", err)
	}
	return ports.TokenClaims{UserID: c.UserID, Role: entities.Role(c.Role)}, nil
}

func (v Verifier) parse(token string, key []byte) (claims, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return claims{}, err
	}
	if !parsed.Valid {
		return claims{}, fmt.Errorf("token not valid")
	}
	if c.UserID == "" {
		return claims{}, fmt.Errorf("token missing subject")
	}
	return c, nil
}

var _ ports.TokenVerifier = Verifier{}
