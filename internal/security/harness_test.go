package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fedsim/fedsim/internal/config"
	"github.com/fedsim/fedsim/internal/crypto"
	"github.com/fedsim/fedsim/internal/oauth"
	"github.com/fedsim/fedsim/internal/saml"
	"github.com/fedsim/fedsim/internal/server"
	"github.com/fedsim/fedsim/internal/store"
	"github.com/fedsim/fedsim/internal/tokencodec"
	"github.com/fedsim/fedsim/pkg/models"
)

func newSimulator(t *testing.T, limiter server.Limiter) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		Environment: "development",
		BaseURL:     "http://fedsim.test",
		Issuer:      "http://fedsim.test",
		CORSOrigins: []string{"*"},
	}

	st := store.NewMemoryStore()
	require.NoError(t, store.Seed(context.Background(), st, cfg.BaseURL))

	keys, err := crypto.NewKeySet()
	require.NoError(t, err)

	engine := oauth.NewEngine(st, tokencodec.New(keys, cfg.Issuer))
	builder := saml.NewBuilder(saml.NewStructuralSigner(keys))

	srv := server.New(cfg, st, engine, keys, builder, limiter, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestHarnessAllProbesPass(t *testing.T) {
	if testing.Short() {
		t.Skip("full probe run issues several hundred requests")
	}

	// Burst small enough for the rate probe to trip, large enough that
	// the preceding probes stay under it.
	ts := newSimulator(t, server.NewAddressLimiter(50, 100))
	h := NewHarness(ts.URL, zerolog.Nop())

	results := h.Run(context.Background())
	require.NotEmpty(t, results)

	categories := map[string]bool{}
	for _, result := range results {
		categories[result.Category] = true
		require.True(t, result.Passed, "%s/%s: %s", result.Category, result.Test, result.Description)
	}
	for _, want := range []string{
		"injection", "jwt_forgery", "open_redirect", "csrf",
		"pkce", "xml_wrapping", "xxe", "crypto_posture", "rate_limiting",
	} {
		require.True(t, categories[want], "missing category %s", want)
	}
}

func TestOpenRedirectProbeFlagsPermissiveServer(t *testing.T) {
	// A server that reflects any redirect_uri is the vulnerability the
	// probe exists to catch.
	permissive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Query().Get("redirect_uri")+"?code=leaked", http.StatusFound)
	}))
	defer permissive.Close()

	h := NewHarness(permissive.URL, zerolog.Nop())
	results := h.probeOpenRedirect(context.Background())
	require.Len(t, results, 6)
	for _, result := range results {
		require.False(t, result.Passed, "test %s", result.Test)
		require.Equal(t, models.SeverityCritical, result.Severity)
		require.NotEmpty(t, result.Recommendation)
	}
}

func TestRunProbeRecoversPanic(t *testing.T) {
	h := NewHarness("http://127.0.0.1:0", zerolog.Nop())

	results := h.runProbe(context.Background(), probe{
		name: "exploding",
		run: func(context.Context) []models.SecurityTestResult {
			panic("boom")
		},
	})
	require.Len(t, results, 1)
	require.False(t, results[0].Passed)
	require.Equal(t, "exploding", results[0].Category)
	require.Equal(t, models.SeverityHigh, results[0].Severity)
	require.Contains(t, results[0].Description, "boom")
}

func TestJWTForgeryProbeDirect(t *testing.T) {
	ts := newSimulator(t, nil)
	h := NewHarness(ts.URL, zerolog.Nop())

	results := h.probeJWTForgery(context.Background())
	require.Len(t, results, 3)
	for _, result := range results {
		require.True(t, result.Passed, "%s: %s", result.Test, result.Description)
	}
}

func TestRateLimitProbeFailsWithoutLimiter(t *testing.T) {
	if testing.Short() {
		t.Skip("probe issues 300 requests")
	}

	ts := newSimulator(t, nil)
	h := NewHarness(ts.URL, zerolog.Nop())

	results := h.probeRateLimit(context.Background())
	require.Len(t, results, 1)
	require.False(t, results[0].Passed)
	require.Equal(t, "rate_limiting", results[0].Category)
	require.NotEmpty(t, results[0].Recommendation)
}
