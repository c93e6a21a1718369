package e2e

import (
	"context"
	"flag"
	"os"
	"testing"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
)

// Flags are bound under the godog. prefix, e.g. -godog.tags=@verification.
var featureOpts = godog.Options{
	Output: colors.Colored(os.Stdout),
	Format: "pretty",
	Paths:  []string{"features"},
	Strict: true,
}

func init() {
	godog.BindCommandLineFlags("godog.", &featureOpts)
}

func TestFeatures(t *testing.T) {
	flag.Parse()
	if testing.Short() {
		t.Skip("feature tests skipped in short mode")
	}
	if tags := os.Getenv("GODOG_TAGS"); tags != "" && featureOpts.Tags == "" {
		featureOpts.Tags = tags
	}
	featureOpts.TestingT = t

	status := godog.TestSuite{
		Name:                "legitify",
		ScenarioInitializer: initializeScenario,
		Options:             &featureOpts,
	}.Run()
	if status != 0 {
		t.Fatalf("feature suite exited with status %d", status)
	}
}

func initializeScenario(sc *godog.ScenarioContext) {
	tc := NewTestContext()

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		*tc = *NewTestContext()
		return ctx, tc.Start(ctx)
	})

	sc.After(func(ctx context.Context, scenario *godog.Scenario, err error) (context.Context, error) {
		defer tc.Stop()
		if err != nil && tc.LastResponse != nil {
			featureOpts.TestingT.Logf("%s: last response %d %s",
				scenario.Name, tc.LastResponse.StatusCode, tc.LastResponseBody)
		}
		return ctx, nil
	})

	RegisterSteps(sc, tc)
}
