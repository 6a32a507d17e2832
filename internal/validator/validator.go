package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fedsim/fedsim/internal/oauth"
	"github.com/fedsim/fedsim/internal/store"
	"github.com/fedsim/fedsim/pkg/models"
)

// Runner drives complete protocol flows against a running simulator and
// records whether each behaved to spec. It talks plain HTTP so it
// exercises the transport exactly the way a federation peer would.
type Runner struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// New creates a flow runner for the simulator at baseURL.
func New(baseURL string, logger zerolog.Logger) *Runner {
	return &Runner{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Authorization responses are inspected, not followed.
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// Run executes every flow validation and returns the results in order.
func (r *Runner) Run(ctx context.Context) []models.ValidationResult {
	results := []models.ValidationResult{
		r.ValidateAuthorizationCode(ctx),
		r.ValidateAuthorizationCodePKCE(ctx),
		r.ValidateClientCredentials(ctx),
		r.ValidateRefreshToken(ctx),
		r.ValidateSAMLRoundTrip(ctx),
	}
	for _, result := range results {
		r.logger.Info().
			Str("flow", result.Flow).
			Bool("passed", result.Passed).
			Strs("errors", result.Errors).
			Msg("flow validated")
	}
	return results
}

// ValidateAuthorizationCode runs the confidential-client code flow end
// to end: authorize, state echo, code exchange, introspection.
func (r *Runner) ValidateAuthorizationCode(ctx context.Context) models.ValidationResult {
	result := models.ValidationResult{Flow: "authorization_code", Details: map[string]interface{}{}}

	state := uuid.NewString()
	redirectURI := "https://app.example.com/callback"
	code, err := r.authorize(ctx, store.DemoConfidentialClientID, redirectURI, state, "", "")
	if err != nil {
		return failed(result, err.Error())
	}

	token, oerr, err := r.token(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {store.DemoConfidentialClientID},
		"client_secret": {store.DemoConfidentialSecret},
		"redirect_uri":  {redirectURI},
	})
	if err != nil {
		return failed(result, err.Error())
	}
	if oerr != nil {
		return failed(result, fmt.Sprintf("token exchange rejected: %s (%s)", oerr.Code, oerr.Description))
	}
	if token.AccessToken == "" {
		return failed(result, "no access token issued")
	}
	if token.RefreshToken == "" {
		result.Warnings = append(result.Warnings, "no refresh token issued for a refresh-enabled client")
	}

	active, err := r.introspect(ctx, token.AccessToken)
	if err != nil {
		return failed(result, err.Error())
	}
	if !active {
		return failed(result, "freshly issued access token introspects inactive")
	}

	result.Passed = true
	result.Details["token_type"] = token.TokenType
	result.Details["expires_in"] = token.ExpiresIn
	return result
}

// ValidateAuthorizationCodePKCE runs the public-client flow with an
// S256 challenge and no client secret.
func (r *Runner) ValidateAuthorizationCodePKCE(ctx context.Context) models.ValidationResult {
	result := models.ValidationResult{Flow: "authorization_code_pkce", Details: map[string]interface{}{}}

	verifier, challenge := oauth.GeneratePKCE()

	state := uuid.NewString()
	redirectURI := "https://spa.example.com/callback"
	code, err := r.authorize(ctx, store.DemoPublicClientID, redirectURI, state, challenge, "S256")
	if err != nil {
		return failed(result, err.Error())
	}

	// Wrong verifier first: the exchange must refuse it and burn nothing.
	_, oerr, err := r.token(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {store.DemoPublicClientID},
		"redirect_uri":  {redirectURI},
		"code_verifier": {strings.Repeat("x", 43)},
	})
	if err != nil {
		return failed(result, err.Error())
	}
	if oerr == nil {
		return failed(result, "exchange accepted a wrong code verifier")
	}
	result.Details["wrong_verifier_error"] = oerr.Code

	token, oerr, err := r.token(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {store.DemoPublicClientID},
		"redirect_uri":  {redirectURI},
		"code_verifier": {verifier},
	})
	if err != nil {
		return failed(result, err.Error())
	}
	if oerr != nil {
		// The failed attempt above must not have consumed the code.
		return failed(result, fmt.Sprintf("exchange with correct verifier rejected: %s (%s)", oerr.Code, oerr.Description))
	}
	if token.AccessToken == "" {
		return failed(result, "no access token issued")
	}

	result.Passed = true
	return result
}

// ValidateClientCredentials checks the machine grant, including that no
// refresh token ever comes back.
func (r *Runner) ValidateClientCredentials(ctx context.Context) models.ValidationResult {
	result := models.ValidationResult{Flow: "client_credentials", Details: map[string]interface{}{}}

	token, oerr, err := r.token(ctx, url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {store.DemoMachineClientID},
		"client_secret": {store.DemoMachineSecret},
		"scope":         {"api:read"},
	})
	if err != nil {
		return failed(result, err.Error())
	}
	if oerr != nil {
		return failed(result, fmt.Sprintf("grant rejected: %s (%s)", oerr.Code, oerr.Description))
	}
	if token.AccessToken == "" {
		return failed(result, "no access token issued")
	}
	if token.RefreshToken != "" {
		return failed(result, "client_credentials response carried a refresh token")
	}

	result.Passed = true
	result.Details["scope"] = token.Scope
	return result
}

// ValidateRefreshToken obtains a refresh token through the code flow,
// exercises rotation, and verifies the rotated-out token is dead.
func (r *Runner) ValidateRefreshToken(ctx context.Context) models.ValidationResult {
	result := models.ValidationResult{Flow: "refresh_token", Details: map[string]interface{}{}}

	redirectURI := "https://app.example.com/callback"
	code, err := r.authorize(ctx, store.DemoConfidentialClientID, redirectURI, uuid.NewString(), "", "")
	if err != nil {
		return failed(result, err.Error())
	}
	token, oerr, err := r.token(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {store.DemoConfidentialClientID},
		"client_secret": {store.DemoConfidentialSecret},
		"redirect_uri":  {redirectURI},
	})
	if err != nil {
		return failed(result, err.Error())
	}
	if oerr != nil || token.RefreshToken == "" {
		return failed(result, "could not obtain a refresh token to test with")
	}

	refreshed, oerr, err := r.token(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {token.RefreshToken},
		"client_id":     {store.DemoConfidentialClientID},
		"client_secret": {store.DemoConfidentialSecret},
	})
	if err != nil {
		return failed(result, err.Error())
	}
	if oerr != nil {
		return failed(result, fmt.Sprintf("refresh rejected: %s (%s)", oerr.Code, oerr.Description))
	}
	if refreshed.AccessToken == "" {
		return failed(result, "refresh produced no access token")
	}
	if refreshed.RefreshToken == token.RefreshToken {
		result.Warnings = append(result.Warnings, "refresh token was not rotated")
	}

	// The old token must be unusable after rotation.
	_, oerr, err = r.token(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {token.RefreshToken},
		"client_id":     {store.DemoConfidentialClientID},
		"client_secret": {store.DemoConfidentialSecret},
	})
	if err != nil {
		return failed(result, err.Error())
	}
	if oerr == nil {
		return failed(result, "rotated-out refresh token was accepted")
	}

	result.Passed = true
	return result
}

var samlResponseInput = regexp.MustCompile(`name="SAMLResponse" value="([^"]+)"`)

// ValidateSAMLRoundTrip drives the IdP's SSO endpoint and feeds the
// produced response back through the ACS, checking identity and
// attribute fidelity on the way round.
func (r *Runner) ValidateSAMLRoundTrip(ctx context.Context) models.ValidationResult {
	result := models.ValidationResult{Flow: "saml_round_trip", Details: map[string]interface{}{}}

	ssoURL := fmt.Sprintf("%s/saml/sso?acs=%s", r.baseURL, url.QueryEscape(r.baseURL+"/saml/acs"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ssoURL, nil)
	if err != nil {
		return failed(result, err.Error())
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return failed(result, err.Error())
	}
	page, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return failed(result, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return failed(result, fmt.Sprintf("sso endpoint answered %d", resp.StatusCode))
	}

	match := samlResponseInput.FindSubmatch(page)
	if match == nil {
		return failed(result, "sso page carries no SAMLResponse form field")
	}
	encoded := string(match[1])

	acsReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/saml/acs",
		strings.NewReader(url.Values{"SAMLResponse": {encoded}}.Encode()))
	if err != nil {
		return failed(result, err.Error())
	}
	acsReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	acsResp, err := r.client.Do(acsReq)
	if err != nil {
		return failed(result, err.Error())
	}
	defer acsResp.Body.Close()
	if acsResp.StatusCode != http.StatusOK {
		return failed(result, fmt.Sprintf("acs endpoint answered %d", acsResp.StatusCode))
	}

	var parsed struct {
		Issuer     string            `json:"issuer"`
		NameID     string            `json:"name_id"`
		Success    bool              `json:"success"`
		Attributes map[string]string `json:"attributes"`
		Warnings   []string          `json:"warnings"`
	}
	if err := json.NewDecoder(acsResp.Body).Decode(&parsed); err != nil {
		return failed(result, "acs response is not valid JSON")
	}

	if !parsed.Success {
		return failed(result, "response status is not success")
	}
	if parsed.Issuer != store.DemoIdPEntityID {
		return failed(result, fmt.Sprintf("unexpected issuer %q", parsed.Issuer))
	}
	if parsed.NameID == "" {
		return failed(result, "round trip lost the NameID")
	}
	if _, ok := parsed.Attributes["email"]; !ok {
		return failed(result, "attribute mapping did not surface the email claim")
	}
	if len(parsed.Warnings) > 0 {
		return failed(result, fmt.Sprintf("fresh assertion reported timing warnings: %v", parsed.Warnings))
	}

	result.Passed = true
	result.Details["name_id"] = parsed.NameID
	result.Details["attributes"] = parsed.Attributes
	return result
}

// authorize performs an authorization request and extracts the code
// from the redirect, verifying the state echo on the way.
func (r *Runner) authorize(ctx context.Context, clientID, redirectURI, state, challenge, method string) (string, error) {
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"redirect_uri":  {redirectURI},
		"scope":         {"openid"},
		"state":         {state},
	}
	if challenge != "" {
		q.Set("code_challenge", challenge)
		q.Set("code_challenge_method", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/oauth2/authorize?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		return "", fmt.Errorf("authorize answered %d, want 302", resp.StatusCode)
	}
	location, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		return "", fmt.Errorf("authorize redirect location is not a URL: %w", err)
	}
	if got := location.Query().Get("state"); got != state {
		return "", fmt.Errorf("state was not echoed byte-for-byte: got %q", got)
	}
	code := location.Query().Get("code")
	if code == "" {
		return "", fmt.Errorf("authorize redirect carries no code")
	}
	return code, nil
}

// token posts to the token endpoint and splits protocol errors from
// transport errors.
func (r *Runner) token(ctx context.Context, form url.Values) (*models.TokenResponse, *oauth.Error, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/oauth2/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var oe struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if err := json.Unmarshal(body, &oe); err != nil || oe.Error == "" {
			return nil, nil, fmt.Errorf("token endpoint answered %d with unrecognized body", resp.StatusCode)
		}
		return nil, &oauth.Error{Code: oe.Error, Description: oe.ErrorDescription}, nil
	}

	var token models.TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, nil, fmt.Errorf("token response is not valid JSON: %w", err)
	}
	return &token, nil, nil
}

func (r *Runner) introspect(ctx context.Context, token string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/oauth2/introspect",
		strings.NewReader(url.Values{"token": {token}}.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	var parsed struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, err
	}
	return parsed.Active, nil
}

func failed(result models.ValidationResult, reason string) models.ValidationResult {
	result.Passed = false
	result.Errors = append(result.Errors, reason)
	return result
}
