package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/civigo/benefits/internal/engine"
	"github.com/civigo/benefits/internal/harness"
	"github.com/civigo/benefits/internal/policy"
	"github.com/civigo/benefits/internal/store"
	"github.com/civigo/benefits/internal/verifier"
)

// TestOptions holds flags for the test run command.
type TestOptions struct {
	*RootOptions
	Program       string
	Category      string
	Tag           string
	WithReference bool
	RefEndpoint   string
	Workers       int
}

// NewTestCommand creates the test command group: import suites and
// run them.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Manage and run evaluation test suites",
	}
	cmd.AddCommand(newTestImportCommand(rootOpts))
	cmd.AddCommand(newTestRunCommand(rootOpts))
	return cmd
}

func newTestImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "import <suite.yaml>",
		Short:         "Import a YAML suite of curated test cases",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			st, err := store.Open(rootOpts.DBPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "open database", err)
			}
			defer st.Close()

			h := harness.New(st, engine.New(st))
			created, updated, err := h.ImportSuite(context.Background(), args[0])
			if err != nil {
				_ = formatter.Error("IMPORT_FAILED", err.Error())
				return NewExitError(ExitFailure, err.Error())
			}
			formatter.Textf("imported: %d created, %d updated", created, updated)
			if rootOpts.Format == "json" {
				return formatter.Success(map[string]any{"created": created, "updated": updated})
			}
			return nil
		},
	}
}

func newTestRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "run",
		Short:         "Run the matching test cases and report pass/fail",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Program, "program", "p", "", "filter by program")
	cmd.Flags().StringVar(&opts.Category, "category", "", "filter by category")
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "filter by tag")
	cmd.Flags().BoolVar(&opts.WithReference, "with-reference", false, "verify amounts against the reference calculator")
	cmd.Flags().StringVar(&opts.RefEndpoint, "reference-endpoint", "", "reference calculator endpoint")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent case executions")

	return cmd
}

func runTest(opts *TestOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := store.Open(opts.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer st.Close()

	var harnessOpts []harness.Option
	if opts.Workers > 0 {
		harnessOpts = append(harnessOpts, harness.WithWorkers(opts.Workers))
	}
	if opts.WithReference {
		if opts.RefEndpoint == "" {
			return NewExitError(ExitCommandError, "--with-reference requires --reference-endpoint")
		}
		harnessOpts = append(harnessOpts, harness.WithReference(verifier.New(opts.RefEndpoint)))
	}
	h := harness.New(st, engine.New(st), harnessOpts...)

	start := time.Now()
	run, err := h.Run(context.Background(), harness.RunRequest{
		Program:       policy.Program(opts.Program),
		Category:      opts.Category,
		Tag:           opts.Tag,
		WithReference: opts.WithReference,
	})
	if err != nil {
		_ = formatter.Error("RUN_FAILED", err.Error())
		return NewExitError(ExitFailure, err.Error())
	}

	if opts.Format == "json" {
		if err := formatter.Success(run); err != nil {
			return err
		}
	} else {
		formatter.Textf("run %s: %d/%d passed in %s",
			run.ID, run.PassedCases, run.TotalCases, time.Since(start).Round(time.Millisecond))
		if run.AverageVariance != nil {
			formatter.Textf("average variance: %s%%", run.AverageVariance.StringFixed(2))
		}
		if run.FailedCases > 0 {
			results, err := st.ResultsForRun(context.Background(), run.ID)
			if err != nil {
				return WrapExitError(ExitCommandError, "load results", err)
			}
			for _, r := range results {
				if r.Passed {
					continue
				}
				detail := "assertion failed"
				if r.Errored() {
					detail = r.ErrorMessage
				} else if r.Variance != nil {
					detail = fmt.Sprintf("variance %s%%", r.Variance.StringFixed(2))
				}
				formatter.Textf("  FAIL %s: %s", r.TestCaseID, detail)
			}
		}
	}

	if run.FailedCases > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d case(s) failed", run.FailedCases))
	}
	return nil
}
