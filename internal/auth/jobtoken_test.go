package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJobVerifier(t *testing.T) {
	key := []byte("test-signing-key")
	now := time.Now()

	valid, err := IssueJobToken(key, time.Hour, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	expired, err := IssueJobToken(key, time.Minute, now.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("issue expired: %v", err)
	}
	otherKey, err := IssueJobToken([]byte("other"), time.Hour, now)
	if err != nil {
		t.Fatalf("issue other key: %v", err)
	}
	wrongSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-42",
		Audience:  jwt.ClaimStrings{JobAudience},
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:  JobSubject,
		Audience: jwt.ClaimStrings{JobAudience},
	}).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "valid", token: valid},
		{name: "missing", token: "", wantErr: true},
		{name: "garbage", token: "not.a.jwt", wantErr: true},
		{name: "expired", token: expired, wantErr: true},
		{name: "wrong key", token: otherKey, wantErr: true},
		{name: "wrong subject", token: wrongSubject, wantErr: true},
		{name: "no expiry", token: noExpiry, wantErr: true},
	}

	v := NewJobVerifier(key)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.token)
			if tt.wantErr {
				if !errors.Is(err, ErrUnauthorized) {
					t.Errorf("Verify() = %v, want ErrUnauthorized", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Verify() unexpected error: %v", err)
			}
		})
	}
}
