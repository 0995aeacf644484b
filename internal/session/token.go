package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// claims carries only the username (spec §3 TokenPayload); the
// reference implementation signs with HS256, so we do too (spec
// §4.6).
type claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

type tokenIssuer struct {
	key []byte
}

func newTokenIssuer(key []byte) *tokenIssuer {
	return &tokenIssuer{key: key}
}

func (t *tokenIssuer) issue(username string) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		Username: username,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := tok.SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("session: sign token: %w", err)
	}
	return signed, nil
}

// verify recovers the username from a signed token, rejecting any
// token whose signature doesn't check out under the registry's key.
func (t *tokenIssuer) verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.key, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("session: invalid token: %w", err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || c.Username == "" {
		return "", fmt.Errorf("session: token missing username")
	}
	return c.Username, nil
}
