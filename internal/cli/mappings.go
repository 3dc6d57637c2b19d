package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/civigo/benefits/internal/engine"
	"github.com/civigo/benefits/internal/harness"
	"github.com/civigo/benefits/internal/mapper"
	"github.com/civigo/benefits/internal/store"
)

// NewMappingsCommand creates the mappings command group: review queue,
// approve, reject, and the re-verification sweep.
func NewMappingsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Review provision-to-rule mappings",
	}
	cmd.AddCommand(newMappingsQueueCommand(rootOpts))
	cmd.AddCommand(newMappingsApproveCommand(rootOpts))
	cmd.AddCommand(newMappingsRejectCommand(rootOpts))
	cmd.AddCommand(newMappingsReverifyCommand(rootOpts))
	return cmd
}

func openMapper(rootOpts *RootOptions) (*store.Store, *mapper.Mapper, error) {
	st, err := store.Open(rootOpts.DBPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open database", err)
	}
	return st, mapper.New(st), nil
}

func newMappingsQueueCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "queue",
		Short:         "Show pending mappings in review-priority order",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			st, mp, err := openMapper(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			queue, err := mp.ReviewQueue(context.Background())
			if err != nil {
				return WrapExitError(ExitCommandError, "load queue", err)
			}
			if rootOpts.Format == "json" {
				return formatter.Success(queue)
			}
			for _, m := range queue {
				formatter.Textf("%-36s %-8s conf %-6s %-18s rule %s",
					m.ID, m.PriorityLevel, m.AIConfidenceScore.StringFixed(4), m.MappingType, m.RuleID)
			}
			return nil
		},
	}
}

func newMappingsApproveCommand(rootOpts *RootOptions) *cobra.Command {
	var reviewedBy string

	cmd := &cobra.Command{
		Use:           "approve <mapping-id>...",
		Short:         "Approve mappings and enqueue re-verification obligations",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			st, mp, err := openMapper(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			if len(args) == 1 {
				affected, err := mp.Approve(ctx, args[0], reviewedBy)
				if err != nil {
					_ = formatter.Error("APPROVE_FAILED", err.Error())
					return NewExitError(ExitFailure, err.Error())
				}
				formatter.Textf("approved %s: %d rule(s) require re-verification: %s",
					args[0], len(affected), strings.Join(affected, ", "))
				if rootOpts.Format == "json" {
					return formatter.Success(map[string]any{"mapping_id": args[0], "affected_rules": affected})
				}
				return nil
			}

			result, err := mp.BulkApprove(ctx, args, reviewedBy)
			if err != nil {
				return WrapExitError(ExitCommandError, "bulk approve", err)
			}
			formatter.Textf("approved %d/%d", result.Approved, len(args))
			for _, f := range result.Failures {
				formatter.Textf("  FAIL %s: %v", f.MappingID, f.Err)
			}
			if rootOpts.Format == "json" {
				if err := formatter.Success(result); err != nil {
					return err
				}
			}
			if len(result.Failures) > 0 {
				return NewExitError(ExitFailure, "some approvals failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&reviewedBy, "by", "", "reviewer identity")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func newMappingsRejectCommand(rootOpts *RootOptions) *cobra.Command {
	var reviewedBy, reason string

	cmd := &cobra.Command{
		Use:           "reject <mapping-id>",
		Short:         "Reject a pending mapping (a reason is required)",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			st, mp, err := openMapper(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := mp.Reject(context.Background(), args[0], reason, reviewedBy); err != nil {
				_ = formatter.Error("REJECT_FAILED", err.Error())
				return NewExitError(ExitFailure, err.Error())
			}
			formatter.Textf("rejected %s", args[0])
			if rootOpts.Format == "json" {
				return formatter.Success(map[string]any{"rejected": args[0]})
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&reviewedBy, "by", "", "reviewer identity")
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func newMappingsReverifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "reverify",
		Short:         "Run the re-verification sweep over pending obligations",
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
			outcome, err := h.Reverify(context.Background(), false)
			if err != nil {
				_ = formatter.Error("REVERIFY_FAILED", err.Error())
				return NewExitError(ExitFailure, err.Error())
			}
			if outcome.Run == nil {
				formatter.Textf("no pending obligations")
				if rootOpts.Format == "json" {
					return formatter.Success(outcome)
				}
				return nil
			}
			formatter.Textf("run %s: %d/%d passed, %d obligation(s) satisfied",
				outcome.Run.ID, outcome.Run.PassedCases, outcome.Run.TotalCases, outcome.Obligations)
			if rootOpts.Format == "json" {
				if err := formatter.Success(outcome); err != nil {
					return err
				}
			}
			if outcome.Run.FailedCases > 0 {
				return NewExitError(ExitFailure, "re-verification run had failing cases")
			}
			return nil
		},
	}
}
