package security

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fedsim/fedsim/pkg/models"
)

// Report aggregates probe outcomes with per-severity failure counts.
type Report struct {
	GeneratedAt time.Time                   `json:"generated_at"`
	Target      string                      `json:"target"`
	Total       int                         `json:"total"`
	Passed      int                         `json:"passed"`
	Failed      int                         `json:"failed"`
	BySeverity  map[models.Severity]int     `json:"failures_by_severity"`
	Results     []models.SecurityTestResult `json:"results"`
	Flows       []models.ValidationResult   `json:"flows,omitempty"`
}

// Summarize folds probe and flow results into a report.
func Summarize(target string, probes []models.SecurityTestResult, flows []models.ValidationResult) *Report {
	report := &Report{
		GeneratedAt: time.Now().UTC(),
		Target:      target,
		Total:       len(probes),
		BySeverity:  map[models.Severity]int{},
		Results:     probes,
		Flows:       flows,
	}
	for _, result := range probes {
		if result.Passed {
			report.Passed++
		} else {
			report.Failed++
			report.BySeverity[result.Severity]++
		}
	}
	return report
}

// JSON renders the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Text renders the report for terminal output.
func (r *Report) Text() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Security validation report for %s\n", r.Target)
	fmt.Fprintf(&b, "Generated %s\n\n", r.GeneratedAt.Format(time.RFC3339))

	if len(r.Flows) > 0 {
		b.WriteString("Protocol flows:\n")
		for _, flow := range r.Flows {
			fmt.Fprintf(&b, "  [%s] %s\n", passMark(flow.Passed), flow.Flow)
			for _, e := range flow.Errors {
				fmt.Fprintf(&b, "        error: %s\n", e)
			}
			for _, w := range flow.Warnings {
				fmt.Fprintf(&b, "        warning: %s\n", w)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("Security probes:\n")
	for _, result := range r.Results {
		fmt.Fprintf(&b, "  [%s] %-14s %-28s %s\n", passMark(result.Passed), result.Category, result.Test, result.Severity)
		if !result.Passed {
			fmt.Fprintf(&b, "        %s\n", result.Description)
			if result.Recommendation != "" {
				fmt.Fprintf(&b, "        recommendation: %s\n", result.Recommendation)
			}
		}
	}

	fmt.Fprintf(&b, "\n%d probes: %d passed, %d failed", r.Total, r.Passed, r.Failed)
	if r.Failed > 0 {
		var parts []string
		for _, severity := range []models.Severity{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow} {
			if n := r.BySeverity[severity]; n > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", n, severity))
			}
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	b.WriteString("\n")
	return b.String()
}

func passMark(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}
