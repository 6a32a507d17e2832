package tokencodec

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fedsim/fedsim/internal/crypto"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	keySet, err := crypto.NewKeySet()
	require.NoError(t, err)
	return New(keySet, "https://fedsim.test")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	token, err := codec.Encode(map[string]interface{}{
		"typ":       "access",
		"sub":       "demo-app",
		"client_id": "demo-app",
		"scope":     "openid profile",
	}, time.Minute)
	require.NoError(t, err)

	claims, err := codec.Decode(token)
	require.NoError(t, err)

	require.Equal(t, "access", StringClaim(claims, "typ"))
	require.Equal(t, "openid profile", StringClaim(claims, "scope"))
	require.Equal(t, "https://fedsim.test", StringClaim(claims, "iss"))
	require.NotEmpty(t, StringClaim(claims, "jti"))
	require.Greater(t, Int64Claim(claims, "exp"), time.Now().Unix())
}

func TestDecodeExpired(t *testing.T) {
	codec := newTestCodec(t)

	token, err := codec.Encode(map[string]interface{}{"typ": "access"}, -time.Minute)
	require.NoError(t, err)

	_, err = codec.Decode(token)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestDecodeTampered(t *testing.T) {
	codec := newTestCodec(t)

	token, err := codec.Encode(map[string]interface{}{"scope": "read"}, time.Minute)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	forged := parts[0] + ".eyJzY29wZSI6ImFkbWluIn0." + parts[2]

	_, err = codec.Decode(forged)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestDecodeMalformed(t *testing.T) {
	codec := newTestCodec(t)

	for _, input := range []string{"", "garbage", "a.b", "a.b.c.d", "not.a.jwt"} {
		_, err := codec.Decode(input)
		require.ErrorIs(t, err, ErrInvalidSignature, "input %q", input)
	}
}

func TestDecodeRejectsUnsignedAlgorithm(t *testing.T) {
	codec := newTestCodec(t)

	// {"alg":"none","typ":"JWT"} . {"typ":"access"} . empty signature
	unsigned := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJ0eXAiOiJhY2Nlc3MifQ."
	_, err := codec.Decode(unsigned)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestDecodeForeignKey(t *testing.T) {
	codec := newTestCodec(t)
	other := newTestCodec(t)

	token, err := other.Encode(map[string]interface{}{"typ": "access"}, time.Minute)
	require.NoError(t, err)

	_, err = codec.Decode(token)
	require.ErrorIs(t, err, ErrInvalidSignature)
}
