package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"regexp"
)

// RFC 7636 Section 4.1: code_verifier character set
// unreserved = ALPHA / DIGIT / "-" / "." / "_" / "~"
var codeVerifierRegex = regexp.MustCompile(`^[A-Za-z0-9\-._~]+$`)

// ValidateCodeVerifier validates the code_verifier format per RFC 7636
// Section 4.1.
func ValidateCodeVerifier(verifier string) *Error {
	if len(verifier) < 43 {
		return Errorf(ErrCodeInvalidRequest, "code_verifier must be at least 43 characters")
	}
	if len(verifier) > 128 {
		return Errorf(ErrCodeInvalidRequest, "code_verifier must be at most 128 characters")
	}
	if !codeVerifierRegex.MatchString(verifier) {
		return Errorf(ErrCodeInvalidRequest, "code_verifier contains invalid characters")
	}
	return nil
}

// ValidateCodeChallenge validates the code_challenge presented at the
// authorize endpoint per RFC 7636 Section 4.2.
func ValidateCodeChallenge(challenge, method string) *Error {
	if challenge == "" {
		return Errorf(ErrCodeInvalidRequest, "code_challenge is required when code_challenge_method is specified")
	}
	switch method {
	case "S256", "":
		// BASE64URL(SHA256(...)) is always 43 characters unpadded.
		if len(challenge) != 43 {
			return Errorf(ErrCodeInvalidRequest, "code_challenge for S256 must be exactly 43 characters")
		}
	case "plain":
	default:
		return Errorf(ErrCodeInvalidRequest, "unsupported code_challenge_method %q", method)
	}
	return nil
}

// VerifyCodeChallenge recomputes the challenge from the verifier and
// compares it per RFC 7636 Section 4.6.
func VerifyCodeChallenge(verifier, challenge, method string) *Error {
	if verifier == "" {
		return Errorf(ErrCodeInvalidGrant, "code_verifier is required")
	}
	if err := ValidateCodeVerifier(verifier); err != nil {
		return err
	}

	var computed string
	switch method {
	case "S256", "":
		hash := sha256.Sum256([]byte(verifier))
		computed = base64.RawURLEncoding.EncodeToString(hash[:])
	case "plain":
		computed = verifier
	default:
		return Errorf(ErrCodeInvalidRequest, "unsupported code_challenge_method %q", method)
	}

	if computed != challenge {
		return Errorf(ErrCodeInvalidGrant, "code_verifier does not match code_challenge")
	}
	return nil
}

// GeneratePKCE generates a verifier and its S256 challenge. Used by the
// flow validators and tests.
func GeneratePKCE() (verifier, challenge string) {
	b := make([]byte, 48)
	rand.Read(b)
	verifier = base64.RawURLEncoding.EncodeToString(b)[:64]
	hash := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(hash[:])
	return
}
