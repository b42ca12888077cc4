// Package auth issues and verifies HS256 access tokens and carries the
// verified identity through request contexts.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/keys"
	"github.com/golang-jwt/jwt/v5"
)

var errUnsupportedAlg = errors.New("unsupported signing algorithm")

// Claims is the access token payload: sub holds the identity (email).
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// Principal is the identity proven by a verified access token.
type Principal struct {
	Identity string
	Roles    []string
}

// HasRole reports whether the principal carries role.
func (p *Principal) HasRole(role string) bool {
	return p != nil && slices.Contains(p.Roles, role)
}

// Codec signs and verifies access tokens with a single symmetric key.
// It holds no mutable state and is safe for concurrent use.
type Codec struct {
	key    keys.Key
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// CodecOption configures a Codec built by NewCodec.
type CodecOption func(*Codec)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

// NewCodec returns a codec that signs with key using HS256 and gives each
// token a lifetime of ttl. It fails with keys.ErrKeyTooShort for a key under
// keys.MinKeySize bytes and rejects a non-positive ttl.
func NewCodec(key keys.Key, ttl time.Duration, opts ...CodecOption) (*Codec, error) {
	if len(key) < keys.MinKeySize {
		return nil, keys.ErrKeyTooShort
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("access token ttl must be positive, got %s", ttl)
	}

	c := &Codec{key: key, ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(c)
	}

	c.parser = jwt.NewParser(
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	return c, nil
}

// TTL is the lifetime given to every issued token.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue returns a signed token for identity valid from now for the codec TTL.
func (c *Codec) Issue(identity string, roles []string) (string, error) {
	now := c.now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Roles: roles,
	})

	s, err := token.SignedString([]byte(c.key))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return s, nil
}

// Verify checks the signature and expiry of token and returns its principal.
//
// Errors match, in priority order, common.ErrInvalidSignature,
// common.ErrTokenMalformed, common.ErrTokenExpired and
// common.ErrTokenUnsupported.
func (c *Codec) Verify(token string) (*Principal, error) {
	claims := &Claims{}

	_, err := c.parser.ParseWithClaims(token, claims, c.keyFunc)
	if err != nil {
		return nil, c.classify(token, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: empty subject", common.ErrTokenMalformed)
	}

	return &Principal{Identity: claims.Subject, Roles: claims.Roles}, nil
}

func (c *Codec) keyFunc(t *jwt.Token) (any, error) {
	if t.Method != jwt.SigningMethodHS256 {
		return nil, fmt.Errorf("%w: %s", errUnsupportedAlg, t.Method.Alg())
	}
	return []byte(c.key), nil
}

func (c *Codec) classify(token string, err error) error {
	switch {
	case errors.Is(err, errUnsupportedAlg), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", common.ErrTokenUnsupported, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", common.ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		// Header and claims decode, so only the signature segment is broken.
		if _, _, uerr := c.parser.ParseUnverified(token, &Claims{}); uerr == nil {
			return fmt.Errorf("%w: %v", common.ErrInvalidSignature, err)
		}
		return fmt.Errorf("%w: %v", common.ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", common.ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", common.ErrTokenMalformed, err)
	}
}
