package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrBindingInvalid indicates the binding token failed signature or claim checks.
	ErrBindingInvalid = errors.New("session binding: invalid token")
	// ErrBindingMismatch indicates the binding token belongs to a different session.
	ErrBindingMismatch = errors.New("session binding: token bound to different session")
)

// SessionBinder issues and checks HMAC-signed tokens that tie an opaque
// session token to the principal it was minted for. The claim set carries the
// session token hash, so a stolen binding token is useless without the
// matching session token and vice versa.
type SessionBinder struct {
	secret []byte
	issuer string
	now    func() time.Time
}

type bindingClaims struct {
	SessionTokenHash string `json:"sth"`
	jwt.RegisteredClaims
}

// NewSessionBinder constructs a binder signing with the provided secret.
func NewSessionBinder(secret []byte, issuer string) (*SessionBinder, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session binding: secret must be at least 32 bytes")
	}
	return &SessionBinder{
		secret: secret,
		issuer: issuer,
		now:    time.Now,
	}, nil
}

// Issue mints a binding token for the session identified by tokenHash.
func (b *SessionBinder) Issue(principalID, tokenHash string) (string, error) {
	now := b.now().UTC()
	claims := bindingClaims{
		SessionTokenHash: tokenHash,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   b.issuer,
			Subject:  principalID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		return "", fmt.Errorf("session binding: sign token: %w", err)
	}
	return signed, nil
}

// Check validates the binding token and confirms it was issued for the
// supplied principal and session token hash.
func (b *SessionBinder) Check(token, principalID, tokenHash string) error {
	parsed, err := jwt.ParseWithClaims(token, &bindingClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return b.secret, nil
	}, jwt.WithIssuer(b.issuer))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBindingInvalid, err)
	}

	claims, ok := parsed.Claims.(*bindingClaims)
	if !ok || !parsed.Valid {
		return ErrBindingInvalid
	}
	if claims.Subject != principalID || claims.SessionTokenHash != tokenHash {
		return ErrBindingMismatch
	}
	return nil
}
