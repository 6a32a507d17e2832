package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/fedsim/fedsim/internal/security"
	"github.com/fedsim/fedsim/internal/validator"
	"github.com/fedsim/fedsim/pkg/models"
)

func main() {
	var (
		target     = flag.String("target", "http://localhost:8080", "base URL of the simulator to audit")
		jsonOutput = flag.Bool("json", false, "emit the report as JSON")
		skipFlows  = flag.Bool("skip-flows", false, "skip protocol flow validation")
		skipProbes = flag.Bool("skip-probes", false, "skip adversarial probes")
		timeout    = flag.Duration("timeout", 5*time.Minute, "overall audit timeout")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	report := runAudit(ctx, *target, *skipFlows, *skipProbes, logger)

	if *jsonOutput {
		data, err := report.JSON()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to render report: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(data)
		fmt.Println()
	} else {
		fmt.Print(report.Text())
	}

	if report.Failed > 0 {
		os.Exit(1)
	}
	for _, flow := range report.Flows {
		if !flow.Passed {
			os.Exit(1)
		}
	}
}

func runAudit(ctx context.Context, target string, skipFlows, skipProbes bool, logger zerolog.Logger) *security.Report {
	var (
		flows  []models.ValidationResult
		probes []models.SecurityTestResult
	)
	if !skipFlows {
		flows = validator.New(target, logger).Run(ctx)
	}
	if !skipProbes {
		probes = security.NewHarness(target, logger).Run(ctx)
	}
	return security.Summarize(target, probes, flows)
}
