package models

import "time"

// Client represents a registered OAuth client application. Secrets are
// stored as bcrypt hashes; the plaintext secret only exists at seed time.
type Client struct {
	ID                   string    `json:"client_id"`
	SecretHash           string    `json:"-"`
	Name                 string    `json:"name"`
	RedirectURIs         []string  `json:"redirect_uris"`
	GrantTypes           []string  `json:"grant_types"`
	Scopes               []string  `json:"scopes"`
	AccessTokenLifetime  int       `json:"access_token_lifetime"`  // seconds
	RefreshTokenLifetime int       `json:"refresh_token_lifetime"` // seconds
	AutoApprove          bool      `json:"auto_approve"`
	Public               bool      `json:"public"`
	CreatedAt            time.Time `json:"created_at"`
}

// HasGrantType reports whether the client has the grant type enabled.
func (c *Client) HasGrantType(grantType string) bool {
	for _, gt := range c.GrantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}

// AllowsRedirectURI reports whether uri is a byte-exact member of the
// client's registered redirect URIs. No substring, suffix or case
// normalization: anything looser opens redirect attacks.
func (c *Client) AllowsRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// TokenResponse represents an OAuth token endpoint response (RFC 6749
// Section 5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// AuthorizeResult is the outcome of a successful authorize call: the
// issued code plus the opaque state echoed back untouched.
type AuthorizeResult struct {
	Code        string `json:"code"`
	State       string `json:"state,omitempty"`
	RedirectURI string `json:"redirect_uri"`
}

// RefreshToken is an opaque refresh token record persisted server-side.
type RefreshToken struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"client_id"`
	Subject   string    `json:"subject"`
	Scope     string    `json:"scope"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IntrospectionResponse represents a token introspection response
// (RFC 7662 Section 2.2).
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Iss       string `json:"iss,omitempty"`
	Jti       string `json:"jti,omitempty"`
}

// SamlRole distinguishes the two sides of a federation.
type SamlRole string

const (
	RoleIdentityProvider SamlRole = "idp"
	RoleServiceProvider  SamlRole = "sp"
)

// SamlEnvironment holds the configuration for a simulated SAML entity.
type SamlEnvironment struct {
	EntityID          string            `json:"entity_id"`
	Role              SamlRole          `json:"role"`
	SSOURL            string            `json:"sso_url"`
	SLOURL            string            `json:"slo_url,omitempty"`
	ACSURL            string            `json:"acs_url"`
	NameIDFormat      string            `json:"name_id_format"`
	AssertionLifetime int               `json:"assertion_lifetime"` // seconds
	SignAssertions    bool              `json:"sign_assertions"`
	SignResponses     bool              `json:"sign_responses"`
	EncryptAssertions bool              `json:"encrypt_assertions"`
	AttributeMapping  map[string]string `json:"attribute_mapping,omitempty"`
	TestPrincipals    []TestPrincipal   `json:"test_principals,omitempty"`
}

// TestPrincipal is a canned identity an environment can assert.
type TestPrincipal struct {
	NameID     string            `json:"name_id"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ValidationResult records the outcome of one protocol flow validation.
// Results are append-only; nothing mutates them after creation.
type ValidationResult struct {
	Flow     string                 `json:"flow"`
	Passed   bool                   `json:"passed"`
	Errors   []string               `json:"errors,omitempty"`
	Warnings []string               `json:"warnings,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// Severity ranks a security finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// SecurityTestResult records the outcome of one adversarial probe.
type SecurityTestResult struct {
	Category       string                 `json:"category"`
	Test           string                 `json:"test"`
	Passed         bool                   `json:"passed"`
	Severity       Severity               `json:"severity"`
	Description    string                 `json:"description"`
	Recommendation string                 `json:"recommendation,omitempty"`
	Details        map[string]interface{} `json:"details,omitempty"`
}
