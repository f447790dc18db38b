package auth

import (
	"errors"
	"fmt"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/api-token-service/internal/domain"
)

// Claims describes the JWT payload.
type Claims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Codec encodes, decodes and verifies HS256 tokens for one deployment.
// It never looks at expiry or not-before; that is the caller's concern.
type Codec struct {
	secret []byte
	issuer string
	method *jwt.SigningMethodHMAC
	parser *jwt.Parser
}

// NewCodec builds a codec bound to the deployment secret and issuer.
func NewCodec(secret, issuer string) *Codec {
	return &Codec{
		secret: []byte(secret),
		issuer: issuer,
		method: jwt.SigningMethodHS256,
		parser: jwt.NewParser(jwt.WithoutClaimsValidation()),
	}
}

// Encode signs the token and returns header.payload.signature.
func (c *Codec) Encode(t domain.Token) (string, error) {
	if t.SubjectID == "" {
		return "", errors.New("token subject is required")
	}
	claims := &Claims{
		UID:   t.SubjectID,
		Email: t.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.Issuer,
			Subject:   t.SubjectID,
			Audience:  jwt.ClaimStrings{t.Audience},
			ID:        t.TokenID,
			IssuedAt:  jwt.NewNumericDate(t.IssuedAt),
			NotBefore: jwt.NewNumericDate(t.NotBefore),
			ExpiresAt: jwt.NewNumericDate(t.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode parses a serialized token without checking its signature.
func (c *Codec) Decode(raw string) (*domain.Token, error) {
	segments := strings.Split(raw, ".")
	if len(segments) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", domain.ErrMalformedToken, len(segments))
	}
	for _, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("%w: empty segment", domain.ErrMalformedToken)
		}
	}

	claims := &Claims{}
	parsed, _, err := c.parser.ParseUnverified(raw, claims)
	if err != nil && !errors.Is(err, jwt.ErrTokenUnverifiable) {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedToken, err)
	}
	if parsed == nil {
		return nil, domain.ErrMalformedToken
	}
	signature, err := c.parser.DecodeSegment(segments[2])
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", domain.ErrMalformedToken, err)
	}

	alg, _ := parsed.Header["alg"].(string)
	tok := &domain.Token{
		SubjectID:    claims.UID,
		Email:        claims.Email,
		Issuer:       claims.Issuer,
		TokenID:      claims.ID,
		Raw:          raw,
		SigningInput: segments[0] + "." + segments[1],
		Algorithm:    alg,
		Signature:    signature,
	}
	if len(claims.Audience) > 0 {
		tok.Audience = claims.Audience[0]
	}
	if claims.IssuedAt != nil {
		tok.IssuedAt = claims.IssuedAt.Time
	}
	if claims.NotBefore != nil {
		tok.NotBefore = claims.NotBefore.Time
	}
	if claims.ExpiresAt != nil {
		tok.ExpiresAt = claims.ExpiresAt.Time
	}
	return tok, nil
}

// Verify checks the HMAC signature in constant time and the issuer claim.
func (c *Codec) Verify(t *domain.Token) error {
	if t == nil || t.SigningInput == "" {
		return domain.ErrMalformedToken
	}
	if t.Algorithm != c.method.Alg() {
		return fmt.Errorf("%w: unexpected algorithm %q", domain.ErrBadSignature, t.Algorithm)
	}
	if err := c.method.Verify(t.SigningInput, t.Signature, c.secret); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBadSignature, err)
	}
	if t.Issuer != c.issuer {
		return fmt.Errorf("%w: got %q", domain.ErrIssuerMismatch, t.Issuer)
	}
	return nil
}

// Parse decodes and verifies raw in one step.
func (c *Codec) Parse(raw string) (*domain.Token, error) {
	tok, err := c.Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := c.Verify(tok); err != nil {
		return nil, err
	}
	return tok, nil
}
