package auth

import (
	"errors"
	"fmt"
	"time"

	domainauth "github.com/NordCoder/Passage/internal/domain/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenSignature = errors.New("token signature invalid")
)

type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Now           func() time.Time
}

func (c TokenConfig) Validate() error {
	switch {
	case len(c.AccessSecret) == 0:
		return errors.New("auth: access secret is empty")
	case len(c.RefreshSecret) == 0:
		return errors.New("auth: refresh secret is empty")
	case string(c.AccessSecret) == string(c.RefreshSecret):
		return errors.New("auth: access and refresh secrets must differ")
	case c.AccessTTL <= 0:
		return errors.New("auth: access ttl must be positive")
	case c.RefreshTTL <= 0:
		return errors.New("auth: refresh ttl must be positive")
	}
	return nil
}

// JWTCodec signs HS256 tokens. Access and refresh tokens use separate secrets
// and carry their class in aud, so one class never verifies as the other.
type JWTCodec struct {
	cfg TokenConfig
}

var _ domainauth.TokenCodec = (*JWTCodec)(nil)

func NewJWTCodec(cfg TokenConfig) (*JWTCodec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &JWTCodec{cfg: cfg}, nil
}

func (c *JWTCodec) IssueAccess(sub uuid.UUID) (domainauth.IssuedToken, error) {
	return c.issue(sub, domainauth.ClassAccess)
}

func (c *JWTCodec) IssueRefresh(sub uuid.UUID) (domainauth.IssuedToken, error) {
	return c.issue(sub, domainauth.ClassRefresh)
}

func (c *JWTCodec) issue(sub uuid.UUID, class domainauth.TokenClass) (domainauth.IssuedToken, error) {
	secret, ttl, err := c.params(class)
	if err != nil {
		return domainauth.IssuedToken{}, err
	}
	now := c.cfg.Now().Truncate(time.Second)
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   sub.String(),
		Issuer:    c.cfg.Issuer,
		Audience:  jwt.ClaimStrings{string(class)},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return domainauth.IssuedToken{}, fmt.Errorf("sign %s token: %w", class, err)
	}
	return domainauth.IssuedToken{Value: signed, ExpiresAt: exp}, nil
}

func (c *JWTCodec) Verify(token string, class domainauth.TokenClass) (*domainauth.Claims, error) {
	secret, _, err := c.params(class)
	if err != nil {
		return nil, err
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithAudience(string(class)),
		jwt.WithTimeFunc(c.cfg.Now),
	}
	if c.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.cfg.Issuer))
	}

	var rc jwt.RegisteredClaims
	_, err = jwt.NewParser(opts...).ParseWithClaims(token, &rc, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	sub, err := uuid.Parse(rc.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject: %v", ErrTokenMalformed, err)
	}
	out := &domainauth.Claims{
		Subject: sub,
		TokenID: rc.ID,
		Class:   class,
	}
	if rc.IssuedAt != nil {
		out.IssuedAt = rc.IssuedAt.Time
	}
	if rc.ExpiresAt != nil {
		out.ExpiresAt = rc.ExpiresAt.Time
	}
	return out, nil
}

func (c *JWTCodec) params(class domainauth.TokenClass) ([]byte, time.Duration, error) {
	switch class {
	case domainauth.ClassAccess:
		return c.cfg.AccessSecret, c.cfg.AccessTTL, nil
	case domainauth.ClassRefresh:
		return c.cfg.RefreshSecret, c.cfg.RefreshTTL, nil
	default:
		return nil, 0, fmt.Errorf("unknown token class %q", class)
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrTokenSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
