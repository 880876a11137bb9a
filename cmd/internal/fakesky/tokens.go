package fakesky

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	scopeAccess  = "com.atproto.access"
	scopeRefresh = "com.atproto.refresh"
)

var (
	errTokenExpired = errors.New("token expired")
	errTokenInvalid = errors.New("token invalid")
)

type claims struct {
	Scope string `json:"scope"`
	// Gen is the server generation the token was minted in; ExpireAccess bumps it.
	Gen int64 `json:"gen"`
	jwt.RegisteredClaims
}

type minter struct {
	key       []byte
	accessTTL time.Duration
	now       func() time.Time
}

func (m minter) mint(scope, did string, gen int64, ttl time.Duration) (string, string, error) {
	now := m.now()
	jti := uuid.NewString()
	c := claims{
		Scope: scope,
		Gen:   gen,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   did,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.key)
	if err != nil {
		return "", "", err
	}
	return tok, jti, nil
}

func (m minter) parse(tok, scope string) (*claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	var c claims
	_, err := parser.ParseWithClaims(tok, &c, func(*jwt.Token) (any, error) { return m.key, nil })
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, errTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", errTokenInvalid, err)
	case c.Scope != scope:
		return nil, fmt.Errorf("%w: bad scope", errTokenInvalid)
	}
	return &c, nil
}
