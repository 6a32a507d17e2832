// Package tokencodec encodes short-lived, tamper-evident protocol
// artifacts (authorization codes and access tokens) as signed JWTs.
//
// The codec is deliberately narrow: it guarantees integrity and expiry,
// nothing more. Single-use semantics belong to the caller.
package tokencodec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fedsim/fedsim/internal/crypto"
)

var (
	// ErrExpiredToken is returned when a structurally valid token is past
	// its embedded expiry.
	ErrExpiredToken = errors.New("token expired")

	// ErrInvalidSignature is returned for every other decode failure:
	// bad signature, wrong algorithm, malformed input. Collapsing the
	// failure modes keeps callers from leaking parse details to clients.
	ErrInvalidSignature = errors.New("invalid token signature")
)

// Codec signs and verifies self-contained tokens against a key set.
type Codec struct {
	keySet *crypto.KeySet
	issuer string
}

// New creates a codec signing with keySet under the given issuer.
func New(keySet *crypto.KeySet, issuer string) *Codec {
	return &Codec{keySet: keySet, issuer: issuer}
}

// Issuer returns the issuer embedded in every encoded token.
func (c *Codec) Issuer() string {
	return c.issuer
}

// Encode produces an RS256-signed token carrying claims plus iss, iat,
// nbf, exp and a fresh jti. The payload cannot be altered without
// invalidating the signature.
func (c *Codec) Encode(claims map[string]interface{}, ttl time.Duration) (string, error) {
	now := time.Now()

	all := jwt.MapClaims{
		"iss": c.issuer,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"jti": uuid.NewString(),
	}
	for k, v := range claims {
		all[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, all)
	token.Header["kid"] = c.keySet.RSAKeyID()

	signed, err := token.SignedString(c.keySet.RSAPrivateKey())
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies signature and expiry and returns the embedded claims.
// Expired tokens yield ErrExpiredToken; any other failure, including
// unsigned (alg=none) or malformed input, yields ErrInvalidSignature.
func (c *Codec) Decode(tokenString string) (map[string]interface{}, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA:
			return c.keySet.RSAPublicKey(), nil
		case *jwt.SigningMethodECDSA:
			return c.keySet.ECPublicKey(), nil
		default:
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidSignature
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}

// StringClaim extracts a string claim, returning "" when absent or not a
// string.
func StringClaim(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

// Int64Claim extracts a numeric claim. JSON round-trips numbers as
// float64, so both representations are accepted.
func Int64Claim(claims map[string]interface{}, key string) int64 {
	switch v := claims[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}
