package saml

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fedsim/fedsim/internal/crypto"
)

func buildTestResponse(t *testing.T, signed bool) []byte {
	t.Helper()

	env := testIdP()
	var signer Signer
	if signed {
		keySet, err := crypto.NewKeySet()
		require.NoError(t, err)
		signer = NewStructuralSigner(keySet)
		env.SignAssertions = true
	}
	b := NewBuilder(signer)

	a, err := b.BuildAssertion(env, "alice@idp.test", map[string]string{
		"mail":        "alice@idp.test",
		"displayName": "Alice",
	}, "https://sp.test/saml/acs")
	require.NoError(t, err)

	r, err := b.BuildResponse(env, a, "https://sp.test/saml/acs", "_req-42")
	require.NoError(t, err)

	data, err := Marshal(r)
	require.NoError(t, err)
	return data
}

func TestParseRoundTrip(t *testing.T) {
	data := buildTestResponse(t, false)

	doc, err := Parse(data)
	require.NoError(t, err)

	require.Equal(t, 1, doc.AssertionCount)
	require.Equal(t, "https://idp.test", doc.Issuer)
	require.Equal(t, "https://sp.test/saml/acs", doc.Destination)
	require.Equal(t, "_req-42", doc.InResponseTo)
	require.Equal(t, StatusSuccess, doc.StatusCode)
	require.True(t, doc.Success)
	require.Equal(t, "alice@idp.test", doc.NameID)
	require.Equal(t, NameIDFormatEmail, doc.NameIDFormat)
	require.Equal(t, "https://sp.test/saml/acs", doc.Audience)
	require.NotEmpty(t, doc.SessionIndex)
	require.Equal(t, map[string]string{
		"email": "alice@idp.test",
		"name":  "Alice",
	}, doc.Attributes)
	require.False(t, doc.ClaimsSigned)
	require.False(t, doc.ClaimsEncrypted)
	require.Empty(t, doc.ValidateTiming(time.Now()))
}

func TestParseTransparentBase64(t *testing.T) {
	data := buildTestResponse(t, false)

	encoded := base64.StdEncoding.EncodeToString(data)
	doc, err := Parse([]byte(encoded))
	require.NoError(t, err)
	require.Equal(t, "alice@idp.test", doc.NameID)

	raw := base64.RawURLEncoding.EncodeToString(data)
	doc, err = Parse([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, "alice@idp.test", doc.NameID)
}

func TestParseBareAssertion(t *testing.T) {
	b := NewBuilder(nil)
	a, err := b.BuildAssertion(testIdP(), "bob@idp.test", nil, "https://sp.test/saml/acs")
	require.NoError(t, err)

	data, err := Marshal(a)
	require.NoError(t, err)

	doc, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, 1, doc.AssertionCount)
	require.Equal(t, "bob@idp.test", doc.NameID)
	require.Equal(t, "https://idp.test", doc.Issuer)
	require.Nil(t, doc.Response)
}

func TestParseAttributeLocalNames(t *testing.T) {
	input := `<samlp:Response xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion" ID="_r" Version="2.0" IssueInstant="2026-01-01T00:00:00Z">
  <samlp:Status><samlp:StatusCode Value="urn:oasis:names:tc:SAML:2.0:status:Success"/></samlp:Status>
  <saml:Assertion ID="_a" Version="2.0" IssueInstant="2026-01-01T00:00:00Z">
    <saml:Issuer>https://idp.test</saml:Issuer>
    <saml:AttributeStatement>
      <saml:Attribute Name="http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress"><saml:AttributeValue>alice@example.com</saml:AttributeValue></saml:Attribute>
      <saml:Attribute Name="urn:oid:2.5.4.42"><saml:AttributeValue>Alice</saml:AttributeValue></saml:Attribute>
      <saml:Attribute Name="department"><saml:AttributeValue>engineering</saml:AttributeValue></saml:Attribute>
    </saml:AttributeStatement>
  </saml:Assertion>
</samlp:Response>`

	doc, err := Parse([]byte(input))
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"emailaddress": "alice@example.com",
		"2.5.4.42":     "Alice",
		"department":   "engineering",
	}, doc.Attributes)
}

func TestParseStatusSuccessBySuffix(t *testing.T) {
	response := func(status string) string {
		return `<samlp:Response xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" ID="_r" Version="2.0" IssueInstant="2026-01-01T00:00:00Z">
  <samlp:Status><samlp:StatusCode Value="` + status + `"/></samlp:Status>
</samlp:Response>`
	}

	doc, err := Parse([]byte(response("urn:custom:status:PartialSuccess")))
	require.NoError(t, err)
	require.True(t, doc.Success)

	doc, err = Parse([]byte(response("urn:oasis:names:tc:SAML:2.0:status:Requester")))
	require.NoError(t, err)
	require.False(t, doc.Success)
}

func TestParseSignedFlagIsStructural(t *testing.T) {
	doc, err := Parse(buildTestResponse(t, true))
	require.NoError(t, err)
	require.True(t, doc.ClaimsSigned)

	// The flag reports presence only; a fabricated signature element
	// still sets it.
	forged := `<saml:Assertion xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion" xmlns:ds="http://www.w3.org/2000/09/xmldsig#" ID="_f" Version="2.0" IssueInstant="2026-01-01T00:00:00Z">
  <saml:Issuer>https://idp.test</saml:Issuer>
  <ds:Signature><ds:SignedInfo><ds:CanonicalizationMethod Algorithm="x"/><ds:SignatureMethod Algorithm="x"/><ds:Reference URI="#_f"><ds:Transforms/><ds:DigestMethod Algorithm="x"/><ds:DigestValue>x</ds:DigestValue></ds:Reference></ds:SignedInfo><ds:SignatureValue>Zm9yZ2Vk</ds:SignatureValue></ds:Signature>
  <saml:Subject><saml:NameID>mallory@idp.test</saml:NameID></saml:Subject>
</saml:Assertion>`
	doc, err = Parse([]byte(forged))
	require.NoError(t, err)
	require.True(t, doc.ClaimsSigned)
}

func TestParseEncryptedFlag(t *testing.T) {
	input := `<samlp:Response xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion" ID="_r" Version="2.0" IssueInstant="2026-01-01T00:00:00Z">
  <samlp:Status><samlp:StatusCode Value="urn:oasis:names:tc:SAML:2.0:status:Success"/></samlp:Status>
  <saml:EncryptedAssertion><ciphertext/></saml:EncryptedAssertion>
</samlp:Response>`

	doc, err := Parse([]byte(input))
	require.NoError(t, err)
	require.True(t, doc.ClaimsEncrypted)
	require.Equal(t, 0, doc.AssertionCount)
}

func TestParseMultipleAssertionsCounted(t *testing.T) {
	input := `<samlp:Response xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion" ID="_r" Version="2.0" IssueInstant="2026-01-01T00:00:00Z">
  <samlp:Status><samlp:StatusCode Value="urn:oasis:names:tc:SAML:2.0:status:Success"/></samlp:Status>
  <saml:Assertion ID="_a1" Version="2.0" IssueInstant="2026-01-01T00:00:00Z">
    <saml:Issuer>https://idp.test</saml:Issuer>
    <saml:Subject><saml:NameID>attacker@evil.test</saml:NameID></saml:Subject>
  </saml:Assertion>
  <saml:Assertion ID="_a2" Version="2.0" IssueInstant="2026-01-01T00:00:00Z">
    <saml:Issuer>https://idp.test</saml:Issuer>
    <saml:Subject><saml:NameID>alice@idp.test</saml:NameID></saml:Subject>
  </saml:Assertion>
</samlp:Response>`

	doc, err := Parse([]byte(input))
	require.NoError(t, err)
	require.Equal(t, 2, doc.AssertionCount)
}

func TestParseRejectsDoctype(t *testing.T) {
	payload := `<?xml version="1.0"?>
<!DOCTYPE foo [<!ENTITY xxe SYSTEM "file:///etc/passwd">]>
<samlp:Response xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol"><samlp:Status><samlp:StatusCode Value="&xxe;"/></samlp:Status></samlp:Response>`

	_, err := Parse([]byte(payload))
	require.ErrorIs(t, err, ErrProhibitedDoctype)

	// Also when it arrives base64 wrapped.
	_, err = Parse([]byte(base64.StdEncoding.EncodeToString([]byte(payload))))
	require.ErrorIs(t, err, ErrProhibitedDoctype)
}

func TestParseMalformedInput(t *testing.T) {
	for _, input := range []string{
		"",
		"   ",
		"not xml and not base64!!!",
		"PHNvbWV0aGluZz4", // base64 of non-SAML xml
		"<unrelated></wrong>",
		"<Other>x</Other>",
	} {
		_, err := Parse([]byte(input))
		require.Error(t, err, "input %q", input)
	}
}

func TestValidateTimingWarnings(t *testing.T) {
	doc := &ParsedDocument{
		NotBefore:    time.Now().Add(-10 * time.Minute),
		NotOnOrAfter: time.Now().Add(-5 * time.Minute),
	}
	require.Equal(t, []string{"assertion has expired"}, doc.ValidateTiming(time.Now()))

	doc = &ParsedDocument{
		NotBefore:    time.Now().Add(5 * time.Minute),
		NotOnOrAfter: time.Now().Add(10 * time.Minute),
	}
	require.Equal(t, []string{"assertion is not yet valid"}, doc.ValidateTiming(time.Now()))

	// Missing bounds constrain nothing.
	require.Empty(t, (&ParsedDocument{}).ValidateTiming(time.Now()))
}
