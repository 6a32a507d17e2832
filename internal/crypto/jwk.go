package crypto

import (
	"encoding/base64"
	"math/big"
)

// JWK represents a JSON Web Key (RFC 7517).
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`

	// RSA
	N string `json:"n,omitempty"`
	E string `json:"e,omitempty"`

	// EC
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

// JWKS represents a JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// PublicJWKS returns the public keys in JWKS format.
func (ks *KeySet) PublicJWKS() JWKS {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	return JWKS{
		Keys: []JWK{
			ks.rsaPublicJWK(),
			ks.ecPublicJWK(),
		},
	}
}

func (ks *KeySet) rsaPublicJWK() JWK {
	pub := &ks.rsaKey.PublicKey
	return JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: ks.rsaKeyID,
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func (ks *KeySet) ecPublicJWK() JWK {
	pub := &ks.ecKey.PublicKey
	return JWK{
		Kty: "EC",
		Use: "sig",
		Kid: ks.ecKeyID,
		Alg: "ES256",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(pub.X.Bytes()),
		Y:   base64.RawURLEncoding.EncodeToString(pub.Y.Bytes()),
	}
}

// GetJWKByID returns a specific public JWK by key ID.
func (ks *KeySet) GetJWKByID(kid string) (JWK, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	switch kid {
	case ks.rsaKeyID:
		return ks.rsaPublicJWK(), true
	case ks.ecKeyID:
		return ks.ecPublicJWK(), true
	default:
		return JWK{}, false
	}
}
