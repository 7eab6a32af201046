package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/roomify/apiserver/types"
)

const testSecret = "test-secret-with-enough-entropy-for-hs256"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	codec, err := NewCodec(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	cases := []struct {
		subject string
		role    types.Role
	}{
		{"admin@roomify.com", types.RoleManager},
		{"front.desk@roomify.com", types.RoleStaff},
		{"guest@example.com", types.RoleGuest},
	}
	for _, tc := range cases {
		signed, err := codec.Issue(tc.subject, tc.role, WithDepartment("housekeeping"))
		if err != nil {
			t.Fatalf("Issue(%s): %v", tc.subject, err)
		}
		verified, err := codec.Verify(signed)
		if err != nil {
			t.Fatalf("Verify(%s): %v", tc.subject, err)
		}
		if verified.Subject != tc.subject {
			t.Fatalf("subject = %q, want %q", verified.Subject, tc.subject)
		}
		if verified.Role != string(tc.role) {
			t.Fatalf("role = %q, want %q", verified.Role, tc.role)
		}
		if verified.Department != "HOUSEKEEPING" {
			t.Fatalf("department = %q, want HOUSEKEEPING", verified.Department)
		}
		if got := verified.ExpiresAt.Sub(verified.IssuedAt); got != time.Hour {
			t.Fatalf("lifetime = %v, want 1h", got)
		}
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	issuedAt := time.Now().Add(-2 * time.Hour)
	issuer, err := NewCodec(testSecret, time.Hour, WithClock(fixedClock(issuedAt)))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	verifier, err := NewCodec(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	signed, err := issuer.Issue("admin@roomify.com", types.RoleManager)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, err = verifier.Verify(signed)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if errors.Is(err, ErrMalformed) {
		t.Fatalf("expired token must not be reported as malformed")
	}
}

func TestVerifyDifferentSecret(t *testing.T) {
	issuer, _ := NewCodec("another-secret-that-is-long-enough-too", time.Hour)
	verifier, _ := NewCodec(testSecret, time.Hour)

	signed, err := issuer.Issue("admin@roomify.com", types.RoleManager)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := verifier.Verify(signed); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestVerifyExpiredTokenWithDifferentSecret(t *testing.T) {
	issuer, _ := NewCodec("another-secret-that-is-long-enough-too", time.Hour, WithClock(fixedClock(time.Now().Add(-3*time.Hour))))
	verifier, _ := NewCodec(testSecret, time.Hour)

	signed, err := issuer.Issue("admin@roomify.com", types.RoleManager)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := verifier.Verify(signed); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for forged token, got %v", err)
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	codec, _ := NewCodec(testSecret, time.Hour)

	claims := Claims{
		Role: string(types.RoleManager),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin@roomify.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign HS512: %v", err)
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	for name, signed := range map[string]string{"HS512": hs512, "none": none} {
		if _, err := codec.Verify(signed); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func TestVerifyGarbage(t *testing.T) {
	codec, _ := NewCodec(testSecret, time.Hour)
	signed, _ := codec.Issue("admin@roomify.com", types.RoleManager)
	tampered := signed[:len(signed)-2] + "xx"

	for _, input := range []string{"", "not-a-token", "a.b.c", tampered, strings.ToUpper(signed)} {
		if _, err := codec.Verify(input); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Verify(%q): expected ErrMalformed, got %v", input, err)
		}
	}
}

func TestVerifyRequiresExpiry(t *testing.T) {
	codec, _ := NewCodec(testSecret, time.Hour)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "admin@roomify.com"}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := codec.Verify(signed); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for token without exp, got %v", err)
	}
}

func TestNewCodecRequiresSecret(t *testing.T) {
	if _, err := NewCodec("  ", time.Hour); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
	if _, err := NewCodec("a", time.Hour); !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret for a 1 byte secret, got %v", err)
	}
	if _, err := NewCodec(strings.Repeat("s", MinSecretLength-1), time.Hour); !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret for a 31 byte secret, got %v", err)
	}
	if _, err := NewCodec(strings.Repeat("s", MinSecretLength), time.Hour); err != nil {
		t.Fatalf("expected a 32 byte secret to be accepted, got %v", err)
	}
	if _, err := NewCodec(testSecret, 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}
