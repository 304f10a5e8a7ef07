package auth

import (
	"context"
	"strings"
)

// Verifier turns a client-supplied token into a user identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (UserInfo, error)
}

// JWTVerifier checks HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret string
}

// NewJWTVerifier returns a verifier for secret.
func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &JWTVerifier{secret: secret}, nil
}

// Verify implements Verifier.
func (v *JWTVerifier) Verify(_ context.Context, token string) (UserInfo, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return UserInfo{}, ErrTokenMissing
	}
	claims, err := ParseToken(token, v.secret)
	if err != nil {
		return UserInfo{}, err
	}
	return claims.User(), nil
}

// AnonymousUser is the identity the Permissive verifier assigns.
var AnonymousUser = UserInfo{ID: "anonymous", Name: "Anonymous"}

// Permissive accepts any non-empty token.
type Permissive struct{}

// Verify implements Verifier.
func (Permissive) Verify(_ context.Context, token string) (UserInfo, error) {
	if strings.TrimSpace(token) == "" {
		return UserInfo{}, ErrTokenMissing
	}
	return AnonymousUser, nil
}
