package saml

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"

	fedcrypto "github.com/fedsim/fedsim/internal/crypto"
)

// Signer attaches an enveloped signature to SAML elements. The default
// implementation signs the marshaled element bytes rather than the
// exclusive-canonicalized form, which is enough for same-process
// round-trips but not for interop with external SAML stacks.
type Signer interface {
	SignAssertion(a *Assertion) error
	SignResponse(r *Response) error
}

// Verifier checks signatures produced by a Signer.
type Verifier interface {
	VerifyAssertion(a *Assertion) error
	VerifyResponse(r *Response) error
}

// ErrSignatureInvalid is returned when a structural signature does not
// verify against the element contents.
var ErrSignatureInvalid = errors.New("saml: signature does not match element")

// StructuralSigner signs and verifies with the environment's RSA key.
type StructuralSigner struct {
	keys *fedcrypto.KeySet
}

func NewStructuralSigner(keys *fedcrypto.KeySet) *StructuralSigner {
	return &StructuralSigner{keys: keys}
}

func (s *StructuralSigner) SignAssertion(a *Assertion) error {
	bare := *a
	bare.Signature = nil
	sig, err := s.sign(a.ID, &bare)
	if err != nil {
		return err
	}
	a.Signature = sig
	return nil
}

func (s *StructuralSigner) SignResponse(r *Response) error {
	bare := *r
	bare.Signature = nil
	sig, err := s.sign(r.ID, &bare)
	if err != nil {
		return err
	}
	r.Signature = sig
	return nil
}

func (s *StructuralSigner) VerifyAssertion(a *Assertion) error {
	if a.Signature == nil {
		return ErrSignatureInvalid
	}
	bare := *a
	bare.Signature = nil
	return s.verify(a.Signature, &bare)
}

func (s *StructuralSigner) VerifyResponse(r *Response) error {
	if r.Signature == nil {
		return ErrSignatureInvalid
	}
	bare := *r
	bare.Signature = nil
	return s.verify(r.Signature, &bare)
}

// sign digests the element without its signature child, signs the
// digest, and wraps both in a ds:Signature referencing the element ID.
func (s *StructuralSigner) sign(id string, element interface{}) (*Signature, error) {
	data, err := xml.Marshal(element)
	if err != nil {
		return nil, fmt.Errorf("marshal element for signing: %w", err)
	}

	digest := sha256.Sum256(data)
	sigBytes, err := rsa.SignPKCS1v15(rand.Reader, s.keys.RSAPrivateKey(), crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign element digest: %w", err)
	}

	return &Signature{
		SignedInfo: SignedInfo{
			CanonicalizationMethod: CanonicalizationMethod{Algorithm: AlgExclusiveC14N},
			SignatureMethod:        SignatureMethod{Algorithm: AlgRSASHA256},
			Reference: Reference{
				URI: "#" + id,
				Transforms: Transforms{Transforms: []Transform{
					{Algorithm: AlgEnvelopedSignature},
					{Algorithm: AlgExclusiveC14N},
				}},
				DigestMethod: DigestMethod{Algorithm: AlgSHA256},
				DigestValue:  base64.StdEncoding.EncodeToString(digest[:]),
			},
		},
		SignatureValue: base64.StdEncoding.EncodeToString(sigBytes),
		KeyInfo: &KeyInfo{
			X509Data: &X509Data{X509Certificate: s.keys.CertificateBase64()},
		},
	}, nil
}

func (s *StructuralSigner) verify(sig *Signature, element interface{}) error {
	data, err := xml.Marshal(element)
	if err != nil {
		return fmt.Errorf("marshal element for verification: %w", err)
	}
	digest := sha256.Sum256(data)

	sigBytes, err := base64.StdEncoding.DecodeString(sig.SignatureValue)
	if err != nil {
		return ErrSignatureInvalid
	}
	if err := rsa.VerifyPKCS1v15(s.keys.RSAPublicKey(), crypto.SHA256, digest[:], sigBytes); err != nil {
		return ErrSignatureInvalid
	}
	return nil
}
