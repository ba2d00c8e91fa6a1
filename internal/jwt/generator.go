// Package jwt issues and verifies the signed access tokens returned by the
// authentication service.
package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// ErrInvalidToken covers every verification failure; callers get no detail
// about which check failed.
var ErrInvalidToken = errors.New("invalid token")

// Generator signs access tokens with a shared HS256 secret. The payload
// carries the account id as subject and nothing else; every token embeds a
// unique jti.
type Generator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewGenerator(secret []byte, issuer string, ttl time.Duration) *Generator {
	return &Generator{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}
}

// WithClock returns a copy of the generator using the supplied clock.
// Used by tests to pin issuance time.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	clone := *g
	clone.now = now
	return &clone
}

// Issue signs a token for the account. No PII beyond the opaque account id
// enters the claim set.
func (g *Generator) Issue(accountID int64) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: g.secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("create signer: %w", err)
	}

	now := g.now().UTC()
	claims := gojwt.Claims{
		ID:       uuid.NewString(),
		Subject:  strconv.FormatInt(accountID, 10),
		Issuer:   g.issuer,
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(now.Add(g.ttl)),
	}

	token, err := gojwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Validate verifies the signature, issuer and expiry of raw and returns the
// account id it was issued for.
func (g *Generator) Validate(raw string) (int64, error) {
	parsed, err := gojwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return 0, ErrInvalidToken
	}

	var claims gojwt.Claims
	if err := parsed.Claims(g.secret, &claims); err != nil {
		return 0, ErrInvalidToken
	}

	if err := claims.Validate(gojwt.Expected{Issuer: g.issuer, Time: g.now().UTC()}); err != nil {
		return 0, ErrInvalidToken
	}

	accountID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || accountID <= 0 {
		return 0, ErrInvalidToken
	}
	return accountID, nil
}
