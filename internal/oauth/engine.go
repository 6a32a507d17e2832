// Package oauth implements the OAuth 2.0 grant engine: authorization
// code (with and without PKCE), client credentials and refresh token
// grants as a request/response state machine over the token codec and
// the credential store.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/fedsim/fedsim/internal/store"
	"github.com/fedsim/fedsim/internal/tokencodec"
	"github.com/fedsim/fedsim/pkg/models"
)

// CodeTTL bounds authorization code lifetime per RFC 6749 Section 4.1.2.
const CodeTTL = 10 * time.Minute

const (
	tokenTypeCode   = "code"
	tokenTypeAccess = "access"
)

// Engine drives the four supported grant types. It is stateless per call:
// everything mutable lives in the store.
type Engine struct {
	store store.Store
	codec *tokencodec.Codec

	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewEngine creates a grant engine over the given store and codec.
func NewEngine(s store.Store, codec *tokencodec.Codec) *Engine {
	return &Engine{
		store:      s,
		codec:      codec,
		accessTTL:  time.Hour,
		refreshTTL: 30 * 24 * time.Hour,
	}
}

// SetDefaultLifetimes overrides the fallback token lifetimes used when a
// client does not configure its own.
func (e *Engine) SetDefaultLifetimes(access, refresh time.Duration) {
	if access > 0 {
		e.accessTTL = access
	}
	if refresh > 0 {
		e.refreshTTL = refresh
	}
}

// IssueCodeRequest carries the authorize-endpoint parameters.
type IssueCodeRequest struct {
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// IssueCode validates an authorization request and returns a signed
// authorization code. State is opaque: it is echoed back byte-for-byte
// and never inspected.
func (e *Engine) IssueCode(ctx context.Context, req IssueCodeRequest) (*models.AuthorizeResult, error) {
	client, err := e.store.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, Errorf(ErrCodeInvalidClient, "unknown client")
		}
		return nil, err
	}

	if !client.AllowsRedirectURI(req.RedirectURI) {
		return nil, Errorf(ErrCodeInvalidRequest, "invalid redirect_uri")
	}

	if !client.HasGrantType("authorization_code") {
		return nil, Errorf(ErrCodeInvalidRequest, "client is not authorized for the authorization_code grant")
	}

	if req.CodeChallenge != "" || req.CodeChallengeMethod != "" {
		if oerr := ValidateCodeChallenge(req.CodeChallenge, req.CodeChallengeMethod); oerr != nil {
			return nil, oerr
		}
	}

	claims := map[string]interface{}{
		"typ":          tokenTypeCode,
		"client_id":    client.ID,
		"redirect_uri": req.RedirectURI,
		"scope":        req.Scope,
	}
	if req.CodeChallenge != "" {
		claims["code_challenge"] = req.CodeChallenge
		claims["code_challenge_method"] = req.CodeChallengeMethod
	}

	code, err := e.codec.Encode(claims, CodeTTL)
	if err != nil {
		return nil, err
	}

	return &models.AuthorizeResult{
		Code:        code,
		State:       req.State,
		RedirectURI: req.RedirectURI,
	}, nil
}

// ExchangeCodeRequest carries the token-endpoint parameters for the
// authorization_code grant.
type ExchangeCodeRequest struct {
	Code         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	CodeVerifier string
}

// ExchangeCode exchanges an authorization code for tokens. Codes are
// single use: a second exchange of the same code fails invalid_grant
// regardless of how valid the rest of the request is.
func (e *Engine) ExchangeCode(ctx context.Context, req ExchangeCodeRequest) (*models.TokenResponse, error) {
	client, err := e.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	claims, err := e.codec.Decode(req.Code)
	if err != nil {
		// Expired and tampered codes are indistinguishable to the caller.
		return nil, Errorf(ErrCodeInvalidGrant, "authorization code is invalid or expired")
	}

	if tokencodec.StringClaim(claims, "typ") != tokenTypeCode {
		return nil, Errorf(ErrCodeInvalidGrant, "token is not an authorization code")
	}
	if tokencodec.StringClaim(claims, "client_id") != client.ID {
		return nil, Errorf(ErrCodeInvalidGrant, "authorization code was issued to a different client")
	}
	// The redirect URI presented now must be byte-identical to the one the
	// code was bound to. Anything else is a replay against a different
	// target.
	if tokencodec.StringClaim(claims, "redirect_uri") != req.RedirectURI {
		return nil, Errorf(ErrCodeInvalidGrant, "redirect_uri does not match the authorization request")
	}

	if challenge := tokencodec.StringClaim(claims, "code_challenge"); challenge != "" {
		method := tokencodec.StringClaim(claims, "code_challenge_method")
		if oerr := VerifyCodeChallenge(req.CodeVerifier, challenge, method); oerr != nil {
			return nil, Errorf(ErrCodeInvalidGrant, "%s", oerr.Description)
		}
	}

	jti := tokencodec.StringClaim(claims, "jti")
	codeExpiry := time.Unix(tokencodec.Int64Claim(claims, "exp"), 0)
	if err := e.store.MarkCodeConsumed(ctx, jti, codeExpiry); err != nil {
		if errors.Is(err, store.ErrAlreadyConsumed) {
			return nil, Errorf(ErrCodeInvalidGrant, "authorization code has already been used")
		}
		return nil, err
	}

	scope := tokencodec.StringClaim(claims, "scope")
	return e.issueTokens(ctx, client, client.ID, scope, client.HasGrantType("refresh_token"))
}

// ClientCredentials implements the client_credentials grant. The response
// never carries a refresh token: there is no delegated end-user to
// re-authorize.
func (e *Engine) ClientCredentials(ctx context.Context, clientID, clientSecret, scope string) (*models.TokenResponse, error) {
	client, err := e.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, Errorf(ErrCodeInvalidClient, "unknown client")
		}
		return nil, err
	}

	if !client.HasGrantType("client_credentials") {
		return nil, Errorf(ErrCodeInvalidRequest, "client is not authorized for the client_credentials grant")
	}
	if !store.VerifySecret(client.SecretHash, clientSecret) {
		return nil, Errorf(ErrCodeInvalidClient, "client authentication failed")
	}

	return e.issueTokens(ctx, client, client.ID, scope, false)
}

// RefreshToken implements the refresh_token grant. The new access token
// reuses the originally granted scope; refresh does not allow escalation.
// The presented refresh token is rotated out.
func (e *Engine) RefreshToken(ctx context.Context, refreshToken, clientID, clientSecret string) (*models.TokenResponse, error) {
	client, err := e.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}

	rt, err := e.store.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, Errorf(ErrCodeInvalidGrant, "refresh token is invalid")
		}
		return nil, err
	}
	if rt.ClientID != client.ID {
		return nil, Errorf(ErrCodeInvalidGrant, "refresh token was issued to a different client")
	}
	if time.Now().After(rt.ExpiresAt) {
		_ = e.store.DeleteRefreshToken(ctx, refreshToken)
		return nil, Errorf(ErrCodeInvalidGrant, "refresh token has expired")
	}

	// Rotation: the old token is gone before the new one exists.
	if err := e.store.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return nil, err
	}

	return e.issueTokens(ctx, client, rt.Subject, rt.Scope, client.HasGrantType("refresh_token"))
}

// Revoke revokes a token per RFC 7009: refresh tokens are deleted,
// access tokens are marked revoked by jti until their natural expiry.
// Revocation is best effort and never reports whether the token existed.
func (e *Engine) Revoke(ctx context.Context, token string) error {
	if _, err := e.store.GetRefreshToken(ctx, token); err == nil {
		return e.store.DeleteRefreshToken(ctx, token)
	}

	claims, err := e.codec.Decode(token)
	if err != nil {
		// Invalid tokens have nothing to revoke.
		return nil
	}
	jti := tokencodec.StringClaim(claims, "jti")
	if jti == "" {
		return nil
	}
	expiry := time.Unix(tokencodec.Int64Claim(claims, "exp"), 0)
	return e.store.RevokeTokenID(ctx, jti, expiry)
}

// Introspect reports token state per RFC 7662. Every failure mode maps to
// an inactive result; introspection never errors outward.
func (e *Engine) Introspect(ctx context.Context, token string) *models.IntrospectionResponse {
	claims, err := e.codec.Decode(token)
	if err != nil {
		return &models.IntrospectionResponse{Active: false}
	}
	if tokencodec.StringClaim(claims, "typ") != tokenTypeAccess {
		return &models.IntrospectionResponse{Active: false}
	}

	jti := tokencodec.StringClaim(claims, "jti")
	if revoked, err := e.store.IsTokenIDRevoked(ctx, jti); err != nil || revoked {
		return &models.IntrospectionResponse{Active: false}
	}

	return &models.IntrospectionResponse{
		Active:    true,
		TokenType: "Bearer",
		Scope:     tokencodec.StringClaim(claims, "scope"),
		ClientID:  tokencodec.StringClaim(claims, "client_id"),
		Sub:       tokencodec.StringClaim(claims, "sub"),
		Iss:       tokencodec.StringClaim(claims, "iss"),
		Exp:       tokencodec.Int64Claim(claims, "exp"),
		Iat:       tokencodec.Int64Claim(claims, "iat"),
		Jti:       jti,
	}
}

// authenticateClient resolves the client and, for confidential clients,
// verifies the presented secret against its bcrypt hash.
func (e *Engine) authenticateClient(ctx context.Context, clientID, clientSecret string) (*models.Client, error) {
	client, err := e.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, Errorf(ErrCodeInvalidClient, "unknown client")
		}
		return nil, err
	}
	if !client.Public && !store.VerifySecret(client.SecretHash, clientSecret) {
		return nil, Errorf(ErrCodeInvalidClient, "client authentication failed")
	}
	return client, nil
}

// issueTokens mints the access token and, when withRefresh is set, an
// opaque refresh token persisted server-side.
func (e *Engine) issueTokens(ctx context.Context, client *models.Client, subject, scope string, withRefresh bool) (*models.TokenResponse, error) {
	lifetime := client.AccessTokenLifetime
	if lifetime <= 0 {
		lifetime = int(e.accessTTL.Seconds())
	}

	accessToken, err := e.codec.Encode(map[string]interface{}{
		"typ":       tokenTypeAccess,
		"sub":       subject,
		"client_id": client.ID,
		"scope":     scope,
	}, time.Duration(lifetime)*time.Second)
	if err != nil {
		return nil, err
	}

	resp := &models.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   lifetime,
		Scope:       scope,
	}

	if withRefresh {
		refreshLifetime := client.RefreshTokenLifetime
		if refreshLifetime <= 0 {
			refreshLifetime = int(e.refreshTTL.Seconds())
		}
		refreshToken := generateOpaqueToken()
		record := &models.RefreshToken{
			Token:     refreshToken,
			ClientID:  client.ID,
			Subject:   subject,
			Scope:     scope,
			ExpiresAt: time.Now().Add(time.Duration(refreshLifetime) * time.Second),
			CreatedAt: time.Now(),
		}
		if err := e.store.PutRefreshToken(ctx, record); err != nil {
			return nil, err
		}
		resp.RefreshToken = refreshToken
	}

	return resp, nil
}

func generateOpaqueToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
