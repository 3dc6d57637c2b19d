package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/civigo/benefits/internal/store"
)

// NewRunsCommand creates the runs command group.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect evaluation runs",
	}
	cmd.AddCommand(newRunsListCommand(rootOpts))
	cmd.AddCommand(newRunsResultsCommand(rootOpts))
	return cmd
}

func newRunsListCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List runs, newest first",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			st, err := store.Open(rootOpts.DBPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "open database", err)
			}
			defer st.Close()

			runs, err := st.ListRuns(context.Background(), limit)
			if err != nil {
				return WrapExitError(ExitCommandError, "list runs", err)
			}
			if rootOpts.Format == "json" {
				return formatter.Success(runs)
			}
			for _, r := range runs {
				variance := "-"
				if r.AverageVariance != nil {
					variance = r.AverageVariance.StringFixed(2) + "%"
				}
				formatter.Textf("%s  %-9s  %3d/%3d passed  avg variance %-8s  %s",
					r.ID, r.Status, r.PassedCases, r.TotalCases, variance,
					r.StartedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum runs to list")
	return cmd
}

func newRunsResultsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "results <run-id>",
		Short:         "Show per-case results for a run",
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

			ctx := context.Background()
			if _, err := st.GetRun(ctx, args[0]); err != nil {
				_ = formatter.Error("NOT_FOUND", err.Error())
				return NewExitError(ExitFailure, err.Error())
			}
			results, err := st.ResultsForRun(ctx, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "load results", err)
			}
			if rootOpts.Format == "json" {
				return formatter.Success(results)
			}
			for _, r := range results {
				status := "PASS"
				if !r.Passed {
					status = "FAIL"
				}
				variance := "-"
				if r.Variance != nil {
					variance = r.Variance.StringFixed(2) + "%"
				}
				formatter.Textf("%-4s %-36s variance %-8s %dms", status, r.TestCaseID, variance, r.ExecutionTimeMs)
				if r.Errored() {
					formatter.Textf("       error: %s", r.ErrorMessage)
				}
			}
			return nil
		},
	}
}
