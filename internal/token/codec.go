// Package token issues and verifies the signed session tokens handed out at
// login. Tokens are HS256 JWTs carrying the subject, a single role claim and
// an optional department claim.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/roomify/apiserver/types"
)

var (
	// ErrMissingSecret is returned by NewCodec when no signing secret is set.
	ErrMissingSecret = errors.New("token: signing secret is required")
	// ErrWeakSecret is returned by NewCodec for secrets shorter than
	// MinSecretLength bytes.
	ErrWeakSecret = errors.New("token: signing secret must be at least 32 bytes")
	// ErrMalformed covers unparseable tokens, signature mismatches and
	// unexpected signing algorithms.
	ErrMalformed = errors.New("token: malformed")
	// ErrExpired is returned for a well-formed token past its expiry.
	ErrExpired = errors.New("token: expired")
)

// MinSecretLength is the smallest HS256 key accepted, 256 bits.
const MinSecretLength = 32

// Claims are the JWT claims carried by a session token.
type Claims struct {
	Role       string `json:"role,omitempty"`
	Department string `json:"dept,omitempty"`
	jwt.RegisteredClaims
}

// Verified is the result of a successful verification.
type Verified struct {
	Subject    string
	Role       string
	Department string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Codec signs and verifies tokens with a process-wide secret.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option customizes a Codec.
type Option func(*Codec)

// WithClock replaces the wall clock used for issue and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec constructs a Codec. An empty or short secret or a non-positive
// TTL is a configuration error.
func NewCodec(secret string, ttl time.Duration, opts ...Option) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		return nil, errors.New("token: ttl must be positive")
	}
	c := &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the lifetime of newly issued tokens.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// IssueOption adds optional claims to an issued token.
type IssueOption func(*Claims)

// WithDepartment embeds the subject's department.
func WithDepartment(department string) IssueOption {
	return func(claims *Claims) {
		claims.Department = types.NormalizeDepartment(department)
	}
}

// Issue signs a token for subject with the given role, valid from now until
// now plus the configured TTL.
func (c *Codec) Issue(subject string, role types.Role, opts ...IssueOption) (string, error) {
	now := c.now().UTC()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			ID:        uuid.NewString(),
		},
	}
	for _, opt := range opts {
		opt(&claims)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of tokenString. It returns
// ErrExpired for an expired but otherwise valid token and ErrMalformed for
// everything else that fails.
func (c *Codec) Verify(tokenString string) (Verified, error) {
	claims := Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	token, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Verified{}, ErrExpired
		}
		return Verified{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !token.Valid {
		return Verified{}, ErrMalformed
	}

	verified := Verified{
		Subject:    strings.TrimSpace(claims.Subject),
		Role:       strings.TrimSpace(claims.Role),
		Department: claims.Department,
	}
	if claims.IssuedAt != nil {
		verified.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		verified.ExpiresAt = claims.ExpiresAt.Time
	}
	return verified, nil
}
