package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/api-token-service/internal/domain"
)

const (
	testSecret = "unit-test-secret"
	testIssuer = "https://cms.example.test"
)

func sampleToken(now time.Time) domain.Token {
	return domain.Token{
		SubjectID: "42",
		Email:     "alice@example.test",
		Issuer:    testIssuer,
		Audience:  testIssuer,
		TokenID:   "4f9c1c1e-7d7e-4e0c-9f55-0c2b2f4bb001",
		IssuedAt:  now,
		NotBefore: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec(testSecret, testIssuer)
	now := time.Unix(1_700_000_000, 0)

	raw, err := codec.Encode(sampleToken(now))
	require.NoError(t, err)
	assert.Len(t, strings.Split(raw, "."), 3)

	again, err := codec.Encode(sampleToken(now))
	require.NoError(t, err)
	assert.Equal(t, raw, again, "encoding is deterministic")

	tok, err := codec.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "42", tok.SubjectID)
	assert.Equal(t, "alice@example.test", tok.Email)
	assert.Equal(t, testIssuer, tok.Audience)
	assert.Equal(t, "HS256", tok.Algorithm)
	assert.True(t, tok.ExpiresAt.Equal(now.Add(time.Hour)))
	assert.True(t, tok.NotBefore.Equal(now))
}

func TestCodecVerifyIgnoresExpiry(t *testing.T) {
	codec := NewCodec(testSecret, testIssuer)
	longAgo := time.Now().Add(-48 * time.Hour)

	raw, err := codec.Encode(sampleToken(longAgo))
	require.NoError(t, err)

	tok, err := codec.Parse(raw)
	require.NoError(t, err, "expired tokens are still authentic; expiry belongs to the gate")
	assert.False(t, tok.ActiveAt(time.Now()))
}

func TestCodecDetectsSignatureTampering(t *testing.T) {
	codec := NewCodec(testSecret, testIssuer)
	raw, err := codec.Encode(sampleToken(time.Now()))
	require.NoError(t, err)

	tok, err := codec.Decode(raw)
	require.NoError(t, err)
	for i := range tok.Signature {
		mutated := *tok
		mutated.Signature = append([]byte(nil), tok.Signature...)
		mutated.Signature[i] ^= 0x01
		assert.ErrorIs(t, codec.Verify(&mutated), domain.ErrBadSignature, "byte %d", i)
	}

	parts := strings.Split(raw, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	_, err = codec.Parse(parts[0] + "." + parts[1] + "." + string(sig))
	assert.ErrorIs(t, err, domain.ErrBadSignature)
}

func TestCodecRejectsForeignSecretAndIssuer(t *testing.T) {
	now := time.Now()
	raw, err := NewCodec("other-secret", testIssuer).Encode(sampleToken(now))
	require.NoError(t, err)
	_, err = NewCodec(testSecret, testIssuer).Parse(raw)
	assert.ErrorIs(t, err, domain.ErrBadSignature)

	foreign := sampleToken(now)
	foreign.Issuer = "https://evil.example.test"
	raw, err = NewCodec(testSecret, testIssuer).Encode(foreign)
	require.NoError(t, err)
	_, err = NewCodec(testSecret, testIssuer).Parse(raw)
	assert.ErrorIs(t, err, domain.ErrIssuerMismatch)
}

func TestCodecRejectsAlgorithmSwap(t *testing.T) {
	codec := NewCodec(testSecret, testIssuer)
	raw, err := codec.Encode(sampleToken(time.Now()))
	require.NoError(t, err)

	parts := strings.Split(raw, ".")
	noneHeader := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	_, err = codec.Parse(noneHeader + "." + parts[1] + "." + parts[2])
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrIssuerMismatch)
}

func TestCodecDecodeMalformed(t *testing.T) {
	codec := NewCodec(testSecret, testIssuer)
	cases := []string{
		"",
		"abc",
		"a.b",
		"a.b.c.d",
		"..",
		"header..sig",
		"!!!.???.***",
		base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".e30.c2ln",
	}
	for _, raw := range cases {
		_, err := codec.Decode(raw)
		assert.ErrorIs(t, err, domain.ErrMalformedToken, raw)
	}
}

func TestCodecEncodeRequiresSubject(t *testing.T) {
	tok := sampleToken(time.Now())
	tok.SubjectID = ""
	_, err := NewCodec(testSecret, testIssuer).Encode(tok)
	assert.Error(t, err)
}
