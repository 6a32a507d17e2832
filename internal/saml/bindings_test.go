package saml

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fedsim/fedsim/pkg/models"
)

func testSP() *models.SamlEnvironment {
	return &models.SamlEnvironment{
		EntityID:     "https://sp.test",
		Role:         models.RoleServiceProvider,
		ACSURL:       "https://sp.test/saml/acs",
		NameIDFormat: NameIDFormatEmail,
	}
}

func TestRedirectBindingRoundTrip(t *testing.T) {
	b := NewBuilder(nil)
	req := b.BuildAuthnRequest(testSP(), "https://idp.test/saml/sso")

	encoded, err := EncodeRedirect(req)
	require.NoError(t, err)

	parsed, err := ParseAuthnRequest(encoded, true)
	require.NoError(t, err)
	require.Equal(t, req.ID, parsed.ID)
	require.Equal(t, "https://idp.test/saml/sso", parsed.Destination)
	require.Equal(t, "https://sp.test/saml/acs", parsed.AssertionConsumerServiceURL)
	require.Equal(t, "https://sp.test", parsed.Issuer.Value)
	require.Equal(t, NameIDFormatEmail, parsed.NameIDPolicy.Format)
}

func TestRedirectBindingUncompressedFallback(t *testing.T) {
	b := NewBuilder(nil)
	req := b.BuildAuthnRequest(testSP(), "https://idp.test/saml/sso")

	// Base64 without DEFLATE, as some stacks send it.
	encoded, err := EncodePost(req)
	require.NoError(t, err)

	parsed, err := ParseAuthnRequest(encoded, true)
	require.NoError(t, err)
	require.Equal(t, req.ID, parsed.ID)
}

func TestPostBindingRoundTrip(t *testing.T) {
	b := NewBuilder(nil)
	req := b.BuildAuthnRequest(testSP(), "https://idp.test/saml/sso")

	encoded, err := EncodePost(req)
	require.NoError(t, err)

	parsed, err := ParseAuthnRequest(encoded, false)
	require.NoError(t, err)
	require.Equal(t, req.ID, parsed.ID)
}

func TestParseAuthnRequestRejectsDoctype(t *testing.T) {
	payload := `<!DOCTYPE foo [<!ENTITY xxe SYSTEM "file:///etc/passwd">]><samlp:AuthnRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" ID="_x" Version="2.0" IssueInstant="2026-01-01T00:00:00Z"/>`
	encoded := base64.StdEncoding.EncodeToString([]byte(payload))

	_, err := ParseAuthnRequest(encoded, false)
	require.ErrorIs(t, err, ErrProhibitedDoctype)
}

func TestParseAuthnRequestMalformed(t *testing.T) {
	_, err := ParseAuthnRequest("not base64 at all!!!", false)
	require.Error(t, err)

	encoded := base64.StdEncoding.EncodeToString([]byte("<samlp:AuthnRequest>"))
	_, err = ParseAuthnRequest(encoded, false)
	require.ErrorIs(t, err, ErrMalformedDocument)
}

func TestGeneratePostForm(t *testing.T) {
	b := NewBuilder(nil)
	env := testIdP()

	a, err := b.BuildAssertion(env, "alice@idp.test", nil, "https://sp.test/saml/acs")
	require.NoError(t, err)
	resp, err := b.BuildResponse(env, a, "https://sp.test/saml/acs", "")
	require.NoError(t, err)

	page, err := GeneratePostForm(`https://sp.test/saml/acs?x="1"`, resp, `state&more`, false)
	require.NoError(t, err)

	require.Contains(t, page, `name="SAMLResponse"`)
	require.Contains(t, page, `action="https://sp.test/saml/acs?x=&#34;1&#34;"`)
	require.Contains(t, page, `name="RelayState" value="state&amp;more"`)
	require.Contains(t, page, "document.forms[0].submit()")

	// Delivered payload parses back to the same response.
	start := strings.Index(page, `name="SAMLResponse" value="`) + len(`name="SAMLResponse" value="`)
	end := strings.Index(page[start:], `"`)
	doc, err := Parse([]byte(page[start : start+end]))
	require.NoError(t, err)
	require.Equal(t, resp.ID, doc.Response.ID)
	require.Equal(t, "alice@idp.test", doc.NameID)
}

func TestGeneratePostFormRequestParam(t *testing.T) {
	b := NewBuilder(nil)
	req := b.BuildAuthnRequest(testSP(), "https://idp.test/saml/sso")

	page, err := GeneratePostForm("https://idp.test/saml/sso", req, "", true)
	require.NoError(t, err)
	require.Contains(t, page, `name="SAMLRequest"`)
	require.NotContains(t, page, `name="RelayState"`)
}
