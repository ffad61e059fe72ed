// Package jwt implements the session token codec with HMAC-SHA256 signed JWTs.
package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/ports"
)

// MinSecretLen is the shortest accepted signing secret in bytes.
const MinSecretLen = 32

// Config controls token issuance and verification.
type Config struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

// claims is the wire shape of a session token.
type claims struct {
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
	TokenType string   `json:"typ"`
	gojwt.RegisteredClaims
}

// Codec signs and verifies session tokens. It is safe for concurrent use.
type Codec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *gojwt.Parser
}

var _ ports.TokenCodec = (*Codec)(nil)

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < MinSecretLen {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinSecretLen)
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("token issuer is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Codec{
		secret: append([]byte(nil), cfg.Secret...),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    now,
		parser: gojwt.NewParser(
			gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
			gojwt.WithIssuer(cfg.Issuer),
			gojwt.WithIssuedAt(),
			gojwt.WithExpirationRequired(),
			gojwt.WithTimeFunc(now),
		),
	}, nil
}

// TTL returns the configured token lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue signs a new token with a fresh session id.
func (c *Codec) Issue(in ports.IssueInput) (string, domainauth.SessionClaims, error) {
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.Email) == "" {
		return "", domainauth.SessionClaims{}, errors.New("user id and email are required")
	}

	// JWT timestamps carry second precision.
	iat := c.now().UTC().Truncate(time.Second)
	exp := iat.Add(c.ttl)
	sc := domainauth.SessionClaims{
		UserID:    in.UserID,
		Email:     in.Email,
		Roles:     domainauth.NormalizeRoles(in.Roles),
		SessionID: uuid.NewString(),
		TokenType: domainauth.TokenTypeSession,
		IssuedAt:  iat,
		ExpiresAt: exp,
	}

	tok := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims{
		Email:     sc.Email,
		Roles:     domainauth.RoleStrings(sc.Roles),
		TokenType: sc.TokenType,
		RegisteredClaims: gojwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   sc.UserID,
			ID:        sc.SessionID,
			IssuedAt:  gojwt.NewNumericDate(iat),
			ExpiresAt: gojwt.NewNumericDate(exp),
		},
	})
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", domainauth.SessionClaims{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, sc, nil
}

// Verify checks signature, algorithm, issuer, expiry and required claims.
// Expired tokens yield KindTokenExpired; anything else KindTokenInvalid.
func (c *Codec) Verify(token string) (domainauth.SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domainauth.SessionClaims{}, domainauth.NewError(domainauth.KindTokenInvalid, errors.New("empty token"))
	}

	var cl claims
	_, err := c.parser.ParseWithClaims(token, &cl, func(*gojwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, gojwt.ErrTokenExpired) {
			return domainauth.SessionClaims{}, domainauth.NewError(domainauth.KindTokenExpired, err)
		}
		return domainauth.SessionClaims{}, domainauth.NewError(domainauth.KindTokenInvalid, err)
	}

	if err := requireClaims(&cl); err != nil {
		return domainauth.SessionClaims{}, domainauth.NewError(domainauth.KindTokenInvalid, err)
	}

	return domainauth.SessionClaims{
		UserID:    cl.Subject,
		Email:     cl.Email,
		Roles:     domainauth.RolesFromStrings(cl.Roles),
		SessionID: cl.ID,
		TokenType: cl.TokenType,
		IssuedAt:  cl.IssuedAt.UTC(),
		ExpiresAt: cl.ExpiresAt.UTC(),
	}, nil
}

func requireClaims(cl *claims) error {
	switch {
	case strings.TrimSpace(cl.Subject) == "":
		return errors.New("missing sub")
	case strings.TrimSpace(cl.Email) == "":
		return errors.New("missing email")
	case strings.TrimSpace(cl.ID) == "":
		return errors.New("missing jti")
	case cl.IssuedAt == nil:
		return errors.New("missing iat")
	case cl.TokenType != domainauth.TokenTypeSession:
		return fmt.Errorf("unexpected token type %q", cl.TokenType)
	}
	return nil
}
