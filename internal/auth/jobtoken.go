// Package auth verifies the credential carried by scheduled-job callers.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims identifying a trusted job caller.
const (
	JobSubject  = "scheduler"
	JobAudience = "viralscope-jobs"
	issuer      = "viralctl"
)

// ErrUnauthorized is returned for a missing or invalid job token.
var ErrUnauthorized = errors.New("unauthorized job caller")

// JobVerifier checks HS256 job tokens against a shared key.
type JobVerifier struct {
	key    []byte
	parser *jwt.Parser
}

// NewJobVerifier creates a verifier for key.
func NewJobVerifier(key []byte) *JobVerifier {
	return &JobVerifier{
		key: key,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithAudience(JobAudience),
			jwt.WithSubject(JobSubject),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		),
	}
}

// Verify returns nil if token is a valid, unexpired job token.
func (v *JobVerifier) Verify(token string) error {
	if token == "" {
		return fmt.Errorf("%w: missing token", ErrUnauthorized)
	}
	_, err := v.parser.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return nil
}

// IssueJobToken signs a job token valid for ttl.
func IssueJobToken(key []byte, ttl time.Duration, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    issuer,
		Subject:   JobSubject,
		Audience:  jwt.ClaimStrings{JobAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign job token: %w", err)
	}
	return signed, nil
}
