// Package linktoken signs the registration links handed out by the bot so a
// form submission can be tied to the chat user the link was issued to.
package linktoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const issuer = "membercard"

var (
	ErrNoKey        = errors.New("link signing key is empty")
	ErrInvalidToken = errors.New("invalid link token")
)

type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewSigner(key []byte, ttl time.Duration) (*Signer, error) {
	if len(key) == 0 {
		return nil, ErrNoKey
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Signer{key: key, ttl: ttl, now: time.Now}, nil
}

// Sign returns an HS256 JWT whose subject is externalID.
func (s *Signer) Sign(externalID string) (string, error) {
	now := s.now()
	tok, err := jwt.NewBuilder().
		Issuer(issuer).
		Subject(externalID).
		IssuedAt(now).
		Expiration(now.Add(s.ttl)).
		Build()
	if err != nil {
		return "", fmt.Errorf("build link token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, s.key))
	if err != nil {
		return "", fmt.Errorf("sign link token: %w", err)
	}
	return string(signed), nil
}

// Verify checks signature, expiry and that the token was issued for externalID.
func (s *Signer) Verify(token, externalID string) error {
	if token == "" {
		return fmt.Errorf("%w: missing", ErrInvalidToken)
	}
	_, err := jwt.ParseString(token,
		jwt.WithKey(jwa.HS256, s.key),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(s.now)),
		jwt.WithIssuer(issuer),
		jwt.WithSubject(externalID),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}
