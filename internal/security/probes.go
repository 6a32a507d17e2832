package security

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fedsim/fedsim/internal/store"
	"github.com/fedsim/fedsim/pkg/models"
)

// probeInjection sends SQL and script payloads through the authorize
// parameters. The simulator must refuse them with a 4xx, never a 5xx
// and never a redirect.
func (h *Harness) probeInjection(ctx context.Context) []models.SecurityTestResult {
	payloads := []string{
		`' OR '1'='1`,
		`"; DROP TABLE clients;--`,
		`<script>alert(1)</script>`,
		`admin'--`,
	}

	var results []models.SecurityTestResult
	for i, payload := range payloads {
		q := url.Values{
			"response_type": {"code"},
			"client_id":     {payload},
			"redirect_uri":  {"https://app.example.com/callback"},
			"state":         {payload},
		}
		status, body, _, err := h.get(ctx, "/oauth2/authorize?"+q.Encode())

		result := models.SecurityTestResult{
			Category:    "injection",
			Test:        fmt.Sprintf("injection_payload_%d", i+1),
			Severity:    models.SeverityCritical,
			Description: "hostile client_id and state values must be rejected without reflection or server fault",
			Details:     map[string]interface{}{"payload": payload},
		}
		switch {
		case err != nil:
			result.Description = "probe request failed: " + err.Error()
		case status >= 400 && status < 500 && !strings.Contains(string(body), "<script>"):
			result.Passed = true
		default:
			result.Details["status"] = status
			result.Recommendation = "validate client_id against the registry and never reflect request input"
		}
		results = append(results, result)
	}
	return results
}

// probeJWTForgery checks that unsigned and tampered tokens introspect
// inactive.
func (h *Harness) probeJWTForgery(ctx context.Context) []models.SecurityTestResult {
	var results []models.SecurityTestResult

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	claims := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(
		`{"typ":"access","sub":"admin","scope":"api:write","exp":%d}`, time.Now().Add(time.Hour).Unix())))
	noneToken := header + "." + claims + "."
	results = append(results, h.introspectionRejects(ctx, "alg_none_token", noneToken,
		"a token signed with alg=none must never introspect active"))

	expiredClaims := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(
		`{"typ":"access","sub":"admin","exp":%d}`, time.Now().Add(-time.Hour).Unix())))
	results = append(results, h.introspectionRejects(ctx, "expired_unsigned_token", header+"."+expiredClaims+".",
		"an expired token must never introspect active"))

	// Tamper with a legitimately issued token: flip the payload, keep
	// the signature.
	status, body, err := h.postForm(ctx, "/oauth2/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {store.DemoMachineClientID},
		"client_secret": {store.DemoMachineSecret},
		"scope":         {"api:read"},
	})
	tampered := models.SecurityTestResult{
		Category:    "jwt_forgery",
		Test:        "tampered_signature",
		Severity:    models.SeverityCritical,
		Description: "a token whose payload was altered after signing must never introspect active",
	}
	if err == nil && status == http.StatusOK {
		var token struct {
			AccessToken string `json:"access_token"`
		}
		if json.Unmarshal(body, &token) == nil {
			if parts := strings.Split(token.AccessToken, "."); len(parts) == 3 {
				forged := parts[0] + "." + base64.RawURLEncoding.EncodeToString(
					[]byte(`{"typ":"access","sub":"admin","scope":"api:write"}`)) + "." + parts[2]
				tampered = h.introspectionRejects(ctx, "tampered_signature", forged, tampered.Description)
			}
		}
	} else {
		tampered.Description = "could not obtain a legitimate token to tamper with"
	}
	results = append(results, tampered)

	return results
}

func (h *Harness) introspectionRejects(ctx context.Context, test, token, description string) models.SecurityTestResult {
	result := models.SecurityTestResult{
		Category:    "jwt_forgery",
		Test:        test,
		Severity:    models.SeverityCritical,
		Description: description,
	}
	status, body, err := h.postForm(ctx, "/oauth2/introspect", url.Values{"token": {token}})
	if err != nil {
		result.Description = "probe request failed: " + err.Error()
		return result
	}
	var parsed struct {
		Active bool `json:"active"`
	}
	if status == http.StatusOK && json.Unmarshal(body, &parsed) == nil && !parsed.Active {
		result.Passed = true
	} else {
		result.Recommendation = "verify signatures with the published keys and reject unsigned algorithms"
		result.Details = map[string]interface{}{"status": status, "active": parsed.Active}
	}
	return result
}

// probeOpenRedirect tries redirect URI variants that only an exact
// byte-match policy rejects.
func (h *Harness) probeOpenRedirect(ctx context.Context) []models.SecurityTestResult {
	variants := map[string]string{
		"foreign_host":    "https://evil.com/callback",
		"userinfo_trick":  "https://app.example.com@evil.com/callback",
		"scheme_relative": "//evil.com/callback",
		"path_traversal":  "https://app.example.com/callback/../evil",
		"trailing_slash":  "https://app.example.com/callback/",
		"case_variant":    "https://APP.EXAMPLE.COM/callback",
	}

	var results []models.SecurityTestResult
	for name, uri := range variants {
		q := url.Values{
			"response_type": {"code"},
			"client_id":     {store.DemoConfidentialClientID},
			"redirect_uri":  {uri},
			"state":         {"probe"},
		}
		status, _, headers, err := h.get(ctx, "/oauth2/authorize?"+q.Encode())

		result := models.SecurityTestResult{
			Category:    "open_redirect",
			Test:        "redirect_" + name,
			Severity:    models.SeverityCritical,
			Description: "redirect URIs must match a registered value byte-for-byte",
			Details:     map[string]interface{}{"redirect_uri": uri},
		}
		switch {
		case err != nil:
			result.Description = "probe request failed: " + err.Error()
		case status >= 300 && status < 400:
			result.Details["location"] = headers.Get("Location")
			result.Recommendation = "compare redirect URIs byte-for-byte against the client registration"
		case status >= 400 && status < 500:
			result.Passed = true
		default:
			result.Details["status"] = status
		}
		results = append(results, result)
	}
	return results
}

// probeCSRFState is informational: the authorization server echoes
// state but cannot enforce that clients send one.
func (h *Harness) probeCSRFState(ctx context.Context) []models.SecurityTestResult {
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {store.DemoConfidentialClientID},
		"redirect_uri":  {"https://app.example.com/callback"},
	}
	status, _, headers, err := h.get(ctx, "/oauth2/authorize?"+q.Encode())

	result := models.SecurityTestResult{
		Category:    "csrf",
		Test:        "state_parameter",
		Severity:    models.SeverityMedium,
		Passed:      true,
		Description: "state is echoed opaquely; binding it to the user session is the client's job",
		Details:     map[string]interface{}{},
	}
	if err != nil {
		result.Passed = false
		result.Description = "probe request failed: " + err.Error()
		return []models.SecurityTestResult{result}
	}
	result.Details["stateless_request_status"] = status
	if status >= 300 && status < 400 {
		result.Details["note"] = "authorization proceeds without state; clients must supply and verify their own"
		result.Recommendation = "clients should always send a per-session state value"
	}
	if loc := headers.Get("Location"); loc != "" {
		if u, err := url.Parse(loc); err == nil && u.Query().Get("state") != "" {
			result.Passed = false
			result.Description = "server fabricated a state value it was never given"
		}
	}
	return []models.SecurityTestResult{result}
}

// probePKCE confirms the public client path accepts an S256 challenge.
func (h *Harness) probePKCE(ctx context.Context) []models.SecurityTestResult {
	challenge := base64.RawURLEncoding.EncodeToString(make([]byte, 32))
	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {store.DemoPublicClientID},
		"redirect_uri":          {"https://spa.example.com/callback"},
		"state":                 {"probe"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
	status, _, _, err := h.get(ctx, "/oauth2/authorize?"+q.Encode())

	result := models.SecurityTestResult{
		Category:    "pkce",
		Test:        "s256_challenge_accepted",
		Severity:    models.SeverityHigh,
		Description: "public clients need PKCE; the authorize endpoint must accept an S256 challenge",
	}
	switch {
	case err != nil:
		result.Description = "probe request failed: " + err.Error()
	case status >= 300 && status < 400:
		result.Passed = true
	default:
		result.Details = map[string]interface{}{"status": status}
		result.Recommendation = "support code_challenge/code_challenge_method per RFC 7636"
	}
	return []models.SecurityTestResult{result}
}

// probeXMLWrapping posts a response holding two assertions with
// different subjects. Accepting either subject is the wrapping attack.
func (h *Harness) probeXMLWrapping(ctx context.Context) []models.SecurityTestResult {
	now := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	wrapped := fmt.Sprintf(`<samlp:Response xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion" ID="_wrap" Version="2.0" IssueInstant="%s">
  <saml:Issuer>https://idp.fedsim.local</saml:Issuer>
  <samlp:Status><samlp:StatusCode Value="urn:oasis:names:tc:SAML:2.0:status:Success"/></samlp:Status>
  <saml:Assertion ID="_a1" Version="2.0" IssueInstant="%s">
    <saml:Issuer>https://idp.fedsim.local</saml:Issuer>
    <saml:Subject><saml:NameID>attacker@evil.com</saml:NameID></saml:Subject>
  </saml:Assertion>
  <saml:Assertion ID="_a2" Version="2.0" IssueInstant="%s">
    <saml:Issuer>https://idp.fedsim.local</saml:Issuer>
    <saml:Subject><saml:NameID>alice@fedsim.local</saml:NameID></saml:Subject>
  </saml:Assertion>
</samlp:Response>`, now, now, now)

	status, _, err := h.postForm(ctx, "/saml/acs", url.Values{
		"SAMLResponse": {base64.StdEncoding.EncodeToString([]byte(wrapped))},
	})

	result := models.SecurityTestResult{
		Category:    "xml_wrapping",
		Test:        "double_assertion",
		Severity:    models.SeverityCritical,
		Description: "a response carrying more than one assertion must be rejected outright",
	}
	switch {
	case err != nil:
		result.Description = "probe request failed: " + err.Error()
	case status >= 400 && status < 500:
		result.Passed = true
	default:
		result.Details = map[string]interface{}{"status": status}
		result.Recommendation = "reject responses with anything other than exactly one assertion"
	}
	return []models.SecurityTestResult{result}
}

// probeXXE posts a document with an external-entity DOCTYPE.
func (h *Harness) probeXXE(ctx context.Context) []models.SecurityTestResult {
	payload := `<?xml version="1.0"?>
<!DOCTYPE foo [<!ENTITY xxe SYSTEM "file:///etc/passwd">]>
<samlp:Response xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol">
  <samlp:Status><samlp:StatusCode Value="&xxe;"/></samlp:Status>
</samlp:Response>`

	status, body, err := h.postForm(ctx, "/saml/acs", url.Values{
		"SAMLResponse": {base64.StdEncoding.EncodeToString([]byte(payload))},
	})

	result := models.SecurityTestResult{
		Category:    "xxe",
		Test:        "external_entity_doctype",
		Severity:    models.SeverityCritical,
		Description: "documents with a DOCTYPE must be rejected before parsing",
	}
	switch {
	case err != nil:
		result.Description = "probe request failed: " + err.Error()
	case status >= 400 && status < 500 && !strings.Contains(string(body), "root:"):
		result.Passed = true
	default:
		result.Details = map[string]interface{}{"status": status}
		result.Recommendation = "refuse any document containing a document type declaration"
	}
	return []models.SecurityTestResult{result}
}

// probeCryptoPosture reports the asserted cryptographic design. It is
// informational: the facts come from the simulator's construction, not
// from probing.
func (h *Harness) probeCryptoPosture(ctx context.Context) []models.SecurityTestResult {
	result := models.SecurityTestResult{
		Category:    "crypto_posture",
		Test:        "posture_summary",
		Severity:    models.SeverityLow,
		Description: "client secrets are bcrypt-hashed at rest; tokens are RS256-signed with published JWKS keys; no HMAC shared secrets cross trust boundaries",
		Details:     map[string]interface{}{},
	}

	status, body, _, err := h.get(ctx, "/.well-known/jwks.json")
	if err != nil || status != http.StatusOK {
		result.Description = "JWKS endpoint unavailable; signing keys are not published"
		return []models.SecurityTestResult{result}
	}
	var jwks struct {
		Keys []struct {
			Kty string `json:"kty"`
			Alg string `json:"alg"`
		} `json:"keys"`
	}
	if json.Unmarshal(body, &jwks) == nil && len(jwks.Keys) > 0 {
		result.Passed = true
		for _, k := range jwks.Keys {
			if k.Kty == "oct" {
				result.Passed = false
				result.Description = "JWKS publishes a symmetric key; token signing must be asymmetric"
			}
		}
		result.Details["published_keys"] = len(jwks.Keys)
	}
	return []models.SecurityTestResult{result}
}

// probeRateLimit hammers the health endpoint until the limiter pushes
// back. It runs last; nothing after it could trust its request budget.
func (h *Harness) probeRateLimit(ctx context.Context) []models.SecurityTestResult {
	result := models.SecurityTestResult{
		Category:    "rate_limiting",
		Test:        "burst_throttled",
		Severity:    models.SeverityMedium,
		Description: "a rapid request burst must eventually answer 429",
	}

	const attempts = 300
	throttled := 0
	for i := 0; i < attempts; i++ {
		status, _, _, err := h.get(ctx, "/health")
		if err != nil {
			result.Description = "probe request failed: " + err.Error()
			return []models.SecurityTestResult{result}
		}
		if status == http.StatusTooManyRequests {
			throttled++
		}
	}

	result.Details = map[string]interface{}{"attempts": attempts, "throttled": throttled}
	if throttled > 0 {
		result.Passed = true
	} else {
		result.Recommendation = "enable per-address rate limiting on all public endpoints"
	}
	return []models.SecurityTestResult{result}
}
