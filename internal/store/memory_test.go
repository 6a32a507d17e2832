package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fedsim/fedsim/pkg/models"
)

func TestClientRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetClient(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	client := &models.Client{
		ID:           "web-app",
		RedirectURIs: []string{"https://app.example.com/cb"},
		GrantTypes:   []string{"authorization_code"},
		CreatedAt:    time.Now(),
	}
	require.NoError(t, s.PutClient(ctx, client))

	got, err := s.GetClient(ctx, "web-app")
	require.NoError(t, err)
	require.Equal(t, client.RedirectURIs, got.RedirectURIs)

	clients, err := s.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 1)
}

func TestEnvironmentRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	env := &models.SamlEnvironment{
		EntityID:          "https://idp.test",
		Role:              models.RoleIdentityProvider,
		AssertionLifetime: 300,
	}
	require.NoError(t, s.PutEnvironment(ctx, env))

	got, err := s.GetEnvironment(ctx, "https://idp.test")
	require.NoError(t, err)
	require.Equal(t, models.RoleIdentityProvider, got.Role)

	envs, err := s.ListEnvironments(ctx)
	require.NoError(t, err)
	require.Len(t, envs, 1)
}

func TestRefreshTokenLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rt := &models.RefreshToken{
		Token:     "opaque",
		ClientID:  "web-app",
		Subject:   "web-app",
		Scope:     "openid",
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.PutRefreshToken(ctx, rt))

	got, err := s.GetRefreshToken(ctx, "opaque")
	require.NoError(t, err)
	require.Equal(t, "web-app", got.ClientID)

	require.NoError(t, s.DeleteRefreshToken(ctx, "opaque"))
	_, err = s.GetRefreshToken(ctx, "opaque")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMarkCodeConsumedOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	expiry := time.Now().Add(10 * time.Minute)

	require.NoError(t, s.MarkCodeConsumed(ctx, "jti-1", expiry))
	require.ErrorIs(t, s.MarkCodeConsumed(ctx, "jti-1", expiry), ErrAlreadyConsumed)
	require.NoError(t, s.MarkCodeConsumed(ctx, "jti-2", expiry))
}

func TestMarkCodeConsumedConcurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	expiry := time.Now().Add(10 * time.Minute)

	const attempts = 32
	var wg sync.WaitGroup
	winners := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.MarkCodeConsumed(ctx, "contested", expiry) == nil {
				winners <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(winners)

	count := 0
	for range winners {
		count++
	}
	require.Equal(t, 1, count, "exactly one consumer may win")
}

func TestRevokedTokenIDs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	revoked, err := s.IsTokenIDRevoked(ctx, "jti-x")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, s.RevokeTokenID(ctx, "jti-x", time.Now().Add(time.Hour)))

	revoked, err = s.IsTokenIDRevoked(ctx, "jti-x")
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestDeleteExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.PutRefreshToken(ctx, &models.RefreshToken{Token: "old", ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, s.PutRefreshToken(ctx, &models.RefreshToken{Token: "fresh", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.MarkCodeConsumed(ctx, "old-code", now.Add(-time.Hour)))
	require.NoError(t, s.RevokeTokenID(ctx, "old-jti", now.Add(-time.Hour)))

	require.NoError(t, s.DeleteExpired(ctx, now))

	_, err := s.GetRefreshToken(ctx, "old")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetRefreshToken(ctx, "fresh")
	require.NoError(t, err)

	// The consumed-code slot can be reused once its window has passed.
	require.NoError(t, s.MarkCodeConsumed(ctx, "old-code", now.Add(time.Hour)))
}

func TestSeedLoadsDemoData(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, Seed(ctx, s, "http://localhost:8080"))

	client, err := s.GetClient(ctx, DemoConfidentialClientID)
	require.NoError(t, err)
	require.True(t, VerifySecret(client.SecretHash, DemoConfidentialSecret))
	require.False(t, VerifySecret(client.SecretHash, "wrong"))
	require.True(t, client.HasGrantType("refresh_token"))

	spa, err := s.GetClient(ctx, DemoPublicClientID)
	require.NoError(t, err)
	require.True(t, spa.Public)

	machine, err := s.GetClient(ctx, DemoMachineClientID)
	require.NoError(t, err)
	require.False(t, machine.HasGrantType("refresh_token"))

	idp, err := s.GetEnvironment(ctx, DemoIdPEntityID)
	require.NoError(t, err)
	require.Equal(t, models.RoleIdentityProvider, idp.Role)
	require.NotEmpty(t, idp.TestPrincipals)
	require.Equal(t, "email", idp.AttributeMapping["mail"])

	sp, err := s.GetEnvironment(ctx, DemoSPEntityID)
	require.NoError(t, err)
	require.Equal(t, models.RoleServiceProvider, sp.Role)
}
