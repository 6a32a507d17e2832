package store

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/fedsim/fedsim/pkg/models"
)

// Demo credentials used by the seed data. They are deliberately public:
// the simulator exists to be poked at.
const (
	DemoConfidentialClientID = "demo-app"
	DemoConfidentialSecret   = "demo-secret"
	DemoPublicClientID       = "spa-app"
	DemoMachineClientID      = "machine-client"
	DemoMachineSecret        = "machine-secret"

	DemoIdPEntityID = "https://idp.fedsim.local"
	DemoSPEntityID  = "https://sp.fedsim.local"
)

// HashSecret hashes a client secret with bcrypt. A deliberately slow KDF
// is part of the simulator's asserted cryptography posture.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret checks a plaintext secret against its stored bcrypt hash.
func VerifySecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// Seed loads the demo clients and SAML environments into the store.
// baseURL anchors the environment endpoints.
func Seed(ctx context.Context, s Store, baseURL string) error {
	confidentialHash, err := HashSecret(DemoConfidentialSecret)
	if err != nil {
		return err
	}
	machineHash, err := HashSecret(DemoMachineSecret)
	if err != nil {
		return err
	}

	clients := []*models.Client{
		{
			ID:         DemoConfidentialClientID,
			SecretHash: confidentialHash,
			Name:       "Demo Application (Confidential)",
			RedirectURIs: []string{
				"https://app.example.com/callback",
				"http://localhost:3000/callback",
			},
			GrantTypes:           []string{"authorization_code", "refresh_token"},
			Scopes:               []string{"openid", "profile", "email", "read"},
			AccessTokenLifetime:  3600,
			RefreshTokenLifetime: 7 * 24 * 3600,
			AutoApprove:          true,
			Public:               false,
			CreatedAt:            time.Now(),
		},
		{
			ID:   DemoPublicClientID,
			Name: "Single-Page Application (Public, PKCE)",
			RedirectURIs: []string{
				"https://spa.example.com/callback",
				"http://localhost:5173/callback",
			},
			GrantTypes:           []string{"authorization_code", "refresh_token"},
			Scopes:               []string{"openid", "profile", "email"},
			AccessTokenLifetime:  3600,
			RefreshTokenLifetime: 24 * 3600,
			AutoApprove:          true,
			Public:               true,
			CreatedAt:            time.Now(),
		},
		{
			ID:                  DemoMachineClientID,
			SecretHash:          machineHash,
			Name:                "Machine-to-Machine Client",
			RedirectURIs:        []string{},
			GrantTypes:          []string{"client_credentials"},
			Scopes:              []string{"api:read", "api:write"},
			AccessTokenLifetime: 3600,
			Public:              false,
			CreatedAt:           time.Now(),
		},
	}
	for _, client := range clients {
		if err := s.PutClient(ctx, client); err != nil {
			return fmt.Errorf("failed to seed client %q: %w", client.ID, err)
		}
	}

	environments := []*models.SamlEnvironment{
		{
			EntityID:          DemoIdPEntityID,
			Role:              models.RoleIdentityProvider,
			SSOURL:            baseURL + "/saml/sso",
			SLOURL:            baseURL + "/saml/slo",
			ACSURL:            "https://sp.fedsim.local/saml/acs",
			NameIDFormat:      "urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress",
			AssertionLifetime: 300,
			SignAssertions:    true,
			SignResponses:     true,
			AttributeMapping: map[string]string{
				"mail":        "email",
				"displayName": "name",
				"department":  "department",
			},
			TestPrincipals: []models.TestPrincipal{
				{
					NameID: "alice@example.com",
					Attributes: map[string]string{
						"mail":        "alice@example.com",
						"displayName": "Alice Johnson",
						"department":  "Engineering",
					},
				},
				{
					NameID: "bob@example.com",
					Attributes: map[string]string{
						"mail":        "bob@example.com",
						"displayName": "Bob Smith",
						"department":  "Marketing",
					},
				},
			},
		},
		{
			EntityID:          DemoSPEntityID,
			Role:              models.RoleServiceProvider,
			SSOURL:            "https://idp.fedsim.local/saml/sso",
			ACSURL:            baseURL + "/saml/acs",
			NameIDFormat:      "urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress",
			AssertionLifetime: 300,
		},
	}
	for _, env := range environments {
		if err := s.PutEnvironment(ctx, env); err != nil {
			return fmt.Errorf("failed to seed environment %q: %w", env.EntityID, err)
		}
	}

	return nil
}
