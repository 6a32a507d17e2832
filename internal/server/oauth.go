package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/fedsim/fedsim/internal/oauth"
)

type oauthErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// writeOAuthError renders protocol errors the way RFC 6749 Section 5.2
// shapes them. Anything that is not a typed protocol error is a server
// fault, not a client one.
func (s *Server) writeOAuthError(w http.ResponseWriter, err error) {
	var oe *oauth.Error
	if errors.As(err, &oe) {
		writeJSON(w, http.StatusBadRequest, oauthErrorResponse{
			Error:            oe.Code,
			ErrorDescription: oe.Description,
		})
		return
	}
	s.logger.Error().Err(err).Msg("token endpoint failure")
	writeJSON(w, http.StatusInternalServerError, oauthErrorResponse{Error: "server_error"})
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeOAuthError(w, oauth.Errorf(oauth.ErrCodeInvalidRequest, "malformed request"))
		return
	}

	if rt := r.Form.Get("response_type"); rt != "code" {
		s.writeOAuthError(w, oauth.Errorf(oauth.ErrCodeInvalidRequest, "unsupported response_type %q", rt))
		return
	}

	result, err := s.engine.IssueCode(r.Context(), oauth.IssueCodeRequest{
		ClientID:            r.Form.Get("client_id"),
		RedirectURI:         r.Form.Get("redirect_uri"),
		Scope:               r.Form.Get("scope"),
		State:               r.Form.Get("state"),
		CodeChallenge:       r.Form.Get("code_challenge"),
		CodeChallengeMethod: r.Form.Get("code_challenge_method"),
	})
	if err != nil {
		s.writeOAuthError(w, err)
		return
	}

	location, err := url.Parse(result.RedirectURI)
	if err != nil {
		s.writeOAuthError(w, oauth.Errorf(oauth.ErrCodeInvalidRequest, "invalid redirect_uri"))
		return
	}
	q := location.Query()
	q.Set("code", result.Code)
	if result.State != "" {
		q.Set("state", result.State)
	}
	location.RawQuery = q.Encode()

	http.Redirect(w, r, location.String(), http.StatusFound)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		s.writeOAuthError(w, oauth.Errorf(oauth.ErrCodeInvalidRequest, "content type must be application/x-www-form-urlencoded"))
		return
	}
	if err := r.ParseForm(); err != nil {
		s.writeOAuthError(w, oauth.Errorf(oauth.ErrCodeInvalidRequest, "malformed request body"))
		return
	}

	clientID, clientSecret := clientCredentials(r)

	switch grantType := r.PostForm.Get("grant_type"); grantType {
	case "authorization_code":
		resp, err := s.engine.ExchangeCode(r.Context(), oauth.ExchangeCodeRequest{
			Code:         r.PostForm.Get("code"),
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURI:  r.PostForm.Get("redirect_uri"),
			CodeVerifier: r.PostForm.Get("code_verifier"),
		})
		if err != nil {
			s.writeOAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)

	case "client_credentials":
		resp, err := s.engine.ClientCredentials(r.Context(), clientID, clientSecret, r.PostForm.Get("scope"))
		if err != nil {
			s.writeOAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)

	case "refresh_token":
		resp, err := s.engine.RefreshToken(r.Context(), r.PostForm.Get("refresh_token"), clientID, clientSecret)
		if err != nil {
			s.writeOAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)

	default:
		s.writeOAuthError(w, oauth.Errorf(oauth.ErrCodeUnsupportedGrantType, "grant type %q is not supported", grantType))
	}
}

func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeOAuthError(w, oauth.Errorf(oauth.ErrCodeInvalidRequest, "malformed request body"))
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Introspect(r.Context(), r.PostForm.Get("token")))
}

// handleRevoke always answers 200 for well-formed requests; RFC 7009
// treats unknown tokens as already revoked.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeOAuthError(w, oauth.Errorf(oauth.ErrCodeInvalidRequest, "malformed request body"))
		return
	}
	_ = s.engine.Revoke(r.Context(), r.PostForm.Get("token"))
	w.WriteHeader(http.StatusOK)
}

// clientCredentials pulls client authentication from the Basic header
// when present, falling back to body parameters.
func clientCredentials(r *http.Request) (string, string) {
	if id, secret, ok := r.BasicAuth(); ok {
		return id, secret
	}
	return r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
}
