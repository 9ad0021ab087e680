// Package gate verifies judging panel passcodes and issues the signed
// session that binds a station to one judge on one heat.
package gate

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/okian/heatscore/internal/domain/model"
	"golang.org/x/crypto/bcrypt"
)

const defaultTTL = 12 * time.Hour

// Verify compares an entered passcode with the expected one in constant time.
func Verify(entered, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(entered), []byte(expected)) == 1
}

// VerifyHash checks an entered passcode against a bcrypt hash.
func VerifyHash(entered, hash string) bool {
	if entered == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(entered)) == nil
}

// Match checks an entered passcode against the stored credential, which is
// either a bcrypt hash or, for judges set up before hashing, the plain value.
func Match(entered, stored string) bool {
	if _, err := bcrypt.Cost([]byte(stored)); err == nil {
		return VerifyHash(entered, stored)
	}
	return Verify(entered, stored)
}

// HashPasscode returns the bcrypt hash stored for a judge.
func HashPasscode(passcode string) (string, error) {
	if passcode == "" {
		return "", ErrEmptyPasscode
	}
	h, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash passcode: %w", err)
	}
	return string(h), nil
}

// PanelClaims are the JWT claims of a panel session. The subject is the
// judge's personnel id.
type PanelClaims struct {
	jwt.RegisteredClaims
	EventID     int64 `json:"eid"`
	DivisionID  int64 `json:"did"`
	RoundID     int64 `json:"rid"`
	RoundHeatID int64 `json:"hid"`
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithTTL sets the session lifetime.
func WithTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// Issuer signs and parses panel session tokens with HS256.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer. The secret must not be empty.
func NewIssuer(secret string, opts ...IssuerOption) (*Issuer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	i := &Issuer{secret: []byte(secret), ttl: defaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue signs a token for p. p.ExpiresAt is ignored and replaced by now+TTL.
func (i *Issuer) Issue(p model.PanelSession) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl).Truncate(time.Second)
	claims := &PanelClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.PersonnelID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		EventID:     p.EventID,
		DivisionID:  p.DivisionID,
		RoundID:     p.RoundID,
		RoundHeatID: p.RoundHeatID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse validates a token and returns the session it carries.
func (i *Issuer) Parse(token string) (model.PanelSession, error) {
	claims := &PanelClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.PanelSession{}, ErrExpiredToken
		}
		return model.PanelSession{}, ErrInvalidToken
	}

	personnelID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || personnelID <= 0 {
		return model.PanelSession{}, ErrInvalidToken
	}
	return model.PanelSession{
		EventID:     claims.EventID,
		DivisionID:  claims.DivisionID,
		RoundID:     claims.RoundID,
		RoundHeatID: claims.RoundHeatID,
		PersonnelID: personnelID,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}
