package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/videohub/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind distinguishes short-lived access tokens from refresh tokens.
// It is carried in the "typ" claim so one kind never verifies as the other.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// TokenConfig is the immutable key and lifetime material of a Codec.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// Claims are the registered claims plus the token kind.
type Claims struct {
	jwt.RegisteredClaims
	Kind TokenKind `json:"typ"`
}

// Payload is what a verified token asserts.
type Payload struct {
	SubjectID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair is handed to a client at login and on every rotation.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type Codec struct {
	cfg TokenConfig
	now func() time.Time
}

func NewCodec(cfg TokenConfig) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, fmt.Errorf("%w: token secrets must not be empty", common.ErrorValidation)
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, fmt.Errorf("%w: access and refresh secrets must differ", common.ErrorValidation)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%w: token ttl must be positive", common.ErrorValidation)
	}

	cfg.AccessSecret = append([]byte(nil), cfg.AccessSecret...)
	cfg.RefreshSecret = append([]byte(nil), cfg.RefreshSecret...)

	return &Codec{cfg: cfg, now: time.Now}, nil
}

// WithClock returns a copy of the codec reading time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

func (c *Codec) secret(kind TokenKind) ([]byte, error) {
	switch kind {
	case KindAccess:
		return c.cfg.AccessSecret, nil
	case KindRefresh:
		return c.cfg.RefreshSecret, nil
	}
	return nil, fmt.Errorf("unknown token kind %q", kind)
}

func (c *Codec) ttl(kind TokenKind) time.Duration {
	if kind == KindRefresh {
		return c.cfg.RefreshTTL
	}
	return c.cfg.AccessTTL
}

// Issue signs a token of the given kind with the configured secret and ttl.
func (c *Codec) Issue(kind TokenKind, subjectID string) (string, error) {
	secret, err := c.secret(kind)
	if err != nil {
		return "", err
	}
	return c.IssueWith(kind, subjectID, secret, c.ttl(kind))
}

// IssueWith signs a token with explicit key material. It expires at now+ttl.
func (c *Codec) IssueWith(kind TokenKind, subjectID string, secret []byte, ttl time.Duration) (string, error) {
	if subjectID == "" {
		return "", errors.New("empty subject")
	}

	now := c.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    c.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Kind: kind,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// IssuePair mints a fresh access and refresh token for subjectID.
func (c *Codec) IssuePair(subjectID string) (*TokenPair, error) {
	access, err := c.Issue(KindAccess, subjectID)
	if err != nil {
		return nil, err
	}
	refresh, err := c.Issue(KindRefresh, subjectID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Verify checks a token of the given kind against the configured secret.
func (c *Codec) Verify(kind TokenKind, tokenString string) (*Payload, error) {
	secret, err := c.secret(kind)
	if err != nil {
		return nil, common.ErrInvalidToken
	}
	return c.VerifyWith(kind, tokenString, secret)
}

// VerifyWith returns common.ErrTokenExpired for an expired but otherwise
// well-formed token and common.ErrInvalidToken for everything else.
func (c *Codec) VerifyWith(kind TokenKind, tokenString string, secret []byte) (*Payload, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.cfg.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.Kind != kind || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	p := &Payload{SubjectID: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	return p, nil
}
