package security

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fedsim/fedsim/pkg/models"
)

func sampleResults() []models.SecurityTestResult {
	return []models.SecurityTestResult{
		{Category: "injection", Test: "injection_payload_1", Passed: true, Severity: models.SeverityCritical},
		{Category: "jwt_forgery", Test: "alg_none_token", Passed: true, Severity: models.SeverityCritical},
		{
			Category:       "open_redirect",
			Test:           "redirect_foreign_host",
			Passed:         false,
			Severity:       models.SeverityCritical,
			Description:    "redirect URIs must match a registered value byte-for-byte",
			Recommendation: "compare redirect URIs byte-for-byte against the client registration",
		},
		{Category: "rate_limiting", Test: "burst_throttled", Passed: false, Severity: models.SeverityMedium},
	}
}

func TestSummarizeCounts(t *testing.T) {
	flows := []models.ValidationResult{
		{Flow: "authorization_code", Passed: true},
		{Flow: "saml_round_trip", Passed: false, Errors: []string{"acs endpoint answered 500"}},
	}

	report := Summarize("http://localhost:8080", sampleResults(), flows)
	require.Equal(t, 4, report.Total)
	require.Equal(t, 2, report.Passed)
	require.Equal(t, 2, report.Failed)
	require.Equal(t, 1, report.BySeverity[models.SeverityCritical])
	require.Equal(t, 1, report.BySeverity[models.SeverityMedium])
	require.Zero(t, report.BySeverity[models.SeverityHigh])
	require.Len(t, report.Flows, 2)
	require.False(t, report.GeneratedAt.IsZero())
}

func TestReportText(t *testing.T) {
	report := Summarize("http://localhost:8080", sampleResults(), []models.ValidationResult{
		{Flow: "refresh_token", Passed: false, Errors: []string{"rotated-out refresh token was accepted"}},
	})

	text := report.Text()
	require.Contains(t, text, "http://localhost:8080")
	require.Contains(t, text, "[PASS] injection")
	require.Contains(t, text, "[FAIL] open_redirect")
	require.Contains(t, text, "recommendation: compare redirect URIs")
	require.Contains(t, text, "rotated-out refresh token was accepted")
	require.Contains(t, text, "4 probes: 2 passed, 2 failed")
	require.Contains(t, text, "1 critical")
	require.Contains(t, text, "1 medium")
}

func TestReportJSON(t *testing.T) {
	report := Summarize("http://localhost:8080", sampleResults(), nil)

	data, err := report.JSON()
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, report.Total, decoded.Total)
	require.Equal(t, report.Failed, decoded.Failed)
	require.Len(t, decoded.Results, 4)
	require.Empty(t, decoded.Flows)
}
