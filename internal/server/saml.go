package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fedsim/fedsim/internal/saml"
	"github.com/fedsim/fedsim/internal/store"
	"github.com/fedsim/fedsim/pkg/models"
)

type samlErrorResponse struct {
	Error string `json:"error"`
}

// handleSSO plays the identity provider side: it accepts an
// AuthnRequest over either binding, asserts one of the environment's
// test principals, and returns the auto-submitting POST form carrying
// the response.
func (s *Server) handleSSO(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, samlErrorResponse{Error: "malformed request"})
		return
	}

	env, err := s.lookupEnvironment(r.Context(), r.Form.Get("entity_id"), models.RoleIdentityProvider)
	if err != nil {
		writeJSON(w, http.StatusNotFound, samlErrorResponse{Error: "unknown identity provider environment"})
		return
	}

	var (
		recipient    string
		inResponseTo string
	)
	if encoded := r.Form.Get("SAMLRequest"); encoded != "" {
		req, err := saml.ParseAuthnRequest(encoded, r.Method == http.MethodGet)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, samlErrorResponse{Error: "invalid SAMLRequest"})
			return
		}
		recipient = req.AssertionConsumerServiceURL
		inResponseTo = req.ID
	}
	if recipient == "" {
		recipient = r.Form.Get("acs")
	}
	if recipient == "" {
		recipient = env.ACSURL
	}
	if recipient == "" {
		writeJSON(w, http.StatusBadRequest, samlErrorResponse{Error: "no assertion consumer service URL"})
		return
	}

	principal, ok := selectPrincipal(env, r.Form.Get("principal"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, samlErrorResponse{Error: "environment has no matching test principal"})
		return
	}

	assertion, err := s.builder.BuildAssertion(env, principal.NameID, principal.Attributes, recipient)
	if err != nil {
		s.logger.Error().Err(err).Msg("assertion build failure")
		writeJSON(w, http.StatusInternalServerError, samlErrorResponse{Error: "assertion build failure"})
		return
	}
	response, err := s.builder.BuildResponse(env, assertion, recipient, inResponseTo)
	if err != nil {
		s.logger.Error().Err(err).Msg("response build failure")
		writeJSON(w, http.StatusInternalServerError, samlErrorResponse{Error: "response build failure"})
		return
	}

	page, err := saml.GeneratePostForm(recipient, response, r.Form.Get("RelayState"), false)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, samlErrorResponse{Error: "binding failure"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(page))
}

type acsResult struct {
	Issuer          string            `json:"issuer"`
	NameID          string            `json:"name_id"`
	NameIDFormat    string            `json:"name_id_format,omitempty"`
	SessionIndex    string            `json:"session_index,omitempty"`
	Audience        string            `json:"audience,omitempty"`
	StatusCode      string            `json:"status_code"`
	Success         bool              `json:"success"`
	Attributes      map[string]string `json:"attributes,omitempty"`
	ClaimsSigned    bool              `json:"claims_signed"`
	ClaimsEncrypted bool              `json:"claims_encrypted"`
	Warnings        []string          `json:"warnings,omitempty"`
}

// handleACS plays the service provider side. Responses carrying a
// DOCTYPE, no assertion, or more than one assertion are rejected
// before any field extraction happens.
func (s *Server) handleACS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, samlErrorResponse{Error: "malformed request"})
		return
	}
	encoded := r.PostForm.Get("SAMLResponse")
	if encoded == "" {
		writeJSON(w, http.StatusBadRequest, samlErrorResponse{Error: "missing SAMLResponse"})
		return
	}

	doc, err := saml.Parse([]byte(encoded))
	if err != nil {
		if errors.Is(err, saml.ErrProhibitedDoctype) {
			writeJSON(w, http.StatusBadRequest, samlErrorResponse{Error: "document type declarations are not accepted"})
			return
		}
		writeJSON(w, http.StatusBadRequest, samlErrorResponse{Error: "malformed SAML document"})
		return
	}

	switch {
	case doc.AssertionCount > 1:
		writeJSON(w, http.StatusBadRequest, samlErrorResponse{Error: "response carries multiple assertions"})
		return
	case doc.ClaimsEncrypted && doc.AssertionCount == 0:
		writeJSON(w, http.StatusBadRequest, samlErrorResponse{Error: "encrypted assertions are not supported"})
		return
	case doc.AssertionCount == 0:
		writeJSON(w, http.StatusBadRequest, samlErrorResponse{Error: "response carries no assertion"})
		return
	}

	writeJSON(w, http.StatusOK, acsResult{
		Issuer:          doc.Issuer,
		NameID:          doc.NameID,
		NameIDFormat:    doc.NameIDFormat,
		SessionIndex:    doc.SessionIndex,
		Audience:        doc.Audience,
		StatusCode:      doc.StatusCode,
		Success:         doc.Success,
		Attributes:      doc.Attributes,
		ClaimsSigned:    doc.ClaimsSigned,
		ClaimsEncrypted: doc.ClaimsEncrypted,
		Warnings:        doc.ValidateTiming(time.Now()),
	})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	env, err := s.lookupEnvironment(r.Context(), r.URL.Query().Get("entity_id"), "")
	if err != nil {
		writeJSON(w, http.StatusNotFound, samlErrorResponse{Error: "unknown environment"})
		return
	}

	data, err := saml.MarshalMetadata(saml.BuildMetadata(env, s.keys.CertificateBase64()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, samlErrorResponse{Error: "metadata marshal failure"})
		return
	}
	w.Header().Set("Content-Type", "application/samlmetadata+xml")
	w.Write(data)
}

// lookupEnvironment finds an environment by entity ID, or the first one
// with the given role when no ID is supplied. An empty role matches any.
func (s *Server) lookupEnvironment(ctx context.Context, entityID string, role models.SamlRole) (*models.SamlEnvironment, error) {
	if entityID != "" {
		return s.store.GetEnvironment(ctx, entityID)
	}
	envs, err := s.store.ListEnvironments(ctx)
	if err != nil {
		return nil, err
	}
	for _, env := range envs {
		if role == "" || env.Role == role {
			return env, nil
		}
	}
	return nil, store.ErrNotFound
}

func selectPrincipal(env *models.SamlEnvironment, nameID string) (models.TestPrincipal, bool) {
	if nameID == "" {
		if len(env.TestPrincipals) == 0 {
			return models.TestPrincipal{}, false
		}
		return env.TestPrincipals[0], true
	}
	for _, p := range env.TestPrincipals {
		if p.NameID == nameID {
			return p, true
		}
	}
	return models.TestPrincipal{}, false
}
