package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// KeySet manages the signing keys for the simulator. It holds an RSA key
// used for token signing and SAML key descriptors, and an EC key published
// alongside it in the JWKS.
type KeySet struct {
	rsaKey    *rsa.PrivateKey
	ecKey     *ecdsa.PrivateKey
	rsaKeyID  string
	ecKeyID   string
	certDER   []byte
	createdAt time.Time
	mu        sync.RWMutex
}

// NewKeySet generates a fresh key set. Keys are ephemeral: a simulator
// restart invalidates everything signed before it, which is the desired
// behavior for a test harness.
func NewKeySet() (*KeySet, error) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate EC key: %w", err)
	}

	certDER, err := selfSignedCert(rsaKey)
	if err != nil {
		return nil, fmt.Errorf("failed to self-sign certificate: %w", err)
	}

	return &KeySet{
		rsaKey:    rsaKey,
		ecKey:     ecKey,
		rsaKeyID:  generateKeyID("rsa"),
		ecKeyID:   generateKeyID("ec"),
		certDER:   certDER,
		createdAt: time.Now(),
	}, nil
}

// selfSignedCert issues a self-signed certificate over the RSA key so SAML
// metadata can carry a real X509Certificate element instead of a placeholder.
func selfSignedCert(key *rsa.PrivateKey) ([]byte, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   "fedsim signing",
			Organization: []string{"fedsim"},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}

	return x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
}

func generateKeyID(prefix string) string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%s-%x", prefix, b)
}

// RSAPrivateKey returns the RSA private key.
func (ks *KeySet) RSAPrivateKey() *rsa.PrivateKey {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.rsaKey
}

// RSAPublicKey returns the RSA public key.
func (ks *KeySet) RSAPublicKey() *rsa.PublicKey {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return &ks.rsaKey.PublicKey
}

// RSAKeyID returns the RSA key ID.
func (ks *KeySet) RSAKeyID() string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.rsaKeyID
}

// ECPublicKey returns the EC public key.
func (ks *KeySet) ECPublicKey() *ecdsa.PublicKey {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return &ks.ecKey.PublicKey
}

// ECKeyID returns the EC key ID.
func (ks *KeySet) ECKeyID() string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.ecKeyID
}

// CertificateBase64 returns the signing certificate as standard base64 DER,
// the encoding SAML metadata expects inside ds:X509Certificate.
func (ks *KeySet) CertificateBase64() string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return base64.StdEncoding.EncodeToString(ks.certDER)
}

// Rotate generates new keys, invalidating everything signed so far.
func (ks *KeySet) Rotate() error {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("failed to generate RSA key: %w", err)
	}
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate EC key: %w", err)
	}
	certDER, err := selfSignedCert(rsaKey)
	if err != nil {
		return fmt.Errorf("failed to self-sign certificate: %w", err)
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.rsaKey = rsaKey
	ks.ecKey = ecKey
	ks.rsaKeyID = generateKeyID("rsa")
	ks.ecKeyID = generateKeyID("ec")
	ks.certDER = certDER
	ks.createdAt = time.Now()
	return nil
}

// CreatedAt returns when the current keys were generated.
func (ks *KeySet) CreatedAt() time.Time {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.createdAt
}
