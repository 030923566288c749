// Package credential mints and verifies the signed usage tokens handed out
// after a successful checkout. A credential is a compact HS256 JWS whose
// payload carries the bearer, the issuing project and a spend budget.
package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Budget accounting windows.
const (
	WindowLifetime = "lifetime"
	WindowDay      = "day"
)

// ErrInvalidInput is returned by Issue for out-of-range arguments. No
// credential is produced in that case.
var ErrInvalidInput = errors.New("invalid credential input")

// Budget is the consumable allowance embedded in a credential. AIUnits is in
// the smallest currency unit (micro-dollars); ComputeSeconds is wall-clock
// compute time. WindowStart marks when consumption accounting last reset
// (RFC 3339 UTC).
type Budget struct {
	AIUnits        int64  `json:"ai"`
	ComputeSeconds int64  `json:"compute"`
	Window         string `json:"window"`
	WindowStart    string `json:"windowStart"`
}

// Claims is the credential payload: registered sub/iss/iat/exp plus the budget.
type Claims struct {
	Budget Budget `json:"budget"`
	jwt.RegisteredClaims
}

// Issue mints a credential for subject under issuer, valid for ttl from now.
// budget.WindowStart is filled here and must not be set by the caller.
func Issue(subject, issuer string, secret []byte, budget Budget, ttl time.Duration) (string, error) {
	return IssueAt(time.Now(), subject, issuer, secret, budget, ttl)
}

// IssueAt is Issue with an explicit clock. Deterministic for a fixed instant.
func IssueAt(now time.Time, subject, issuer string, secret []byte, budget Budget, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("%w: subject is empty", ErrInvalidInput)
	}
	if issuer == "" {
		return "", fmt.Errorf("%w: issuer is empty", ErrInvalidInput)
	}
	if len(secret) == 0 {
		return "", fmt.Errorf("%w: secret is empty", ErrInvalidInput)
	}
	if budget.AIUnits < 0 || budget.ComputeSeconds < 0 {
		return "", fmt.Errorf("%w: negative budget", ErrInvalidInput)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: ttl must be positive", ErrInvalidInput)
	}
	if budget.Window == "" {
		budget.Window = WindowLifetime
	}
	if budget.Window != WindowLifetime && budget.Window != WindowDay {
		return "", fmt.Errorf("%w: unknown budget window %q", ErrInvalidInput, budget.Window)
	}

	now = now.UTC().Truncate(time.Second)
	budget.WindowStart = windowStart(budget.Window, now)

	claims := Claims{
		Budget: budget,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return token, nil
}

// Verify checks the signature and expiry of a credential and returns its
// claims. Only HS256 is accepted.
func Verify(token string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify credential: %w", err)
	}
	return claims, nil
}

// windowStart returns the accounting reset instant for a window: the start of
// the current UTC day for "day", the issue instant for "lifetime".
func windowStart(window string, now time.Time) string {
	if window == WindowDay {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	}
	return now.Format(time.RFC3339)
}
