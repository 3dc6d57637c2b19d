package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civigo/benefits/internal/policy"
	"github.com/civigo/benefits/internal/rulepack"
	"github.com/civigo/benefits/internal/store"
)

// NewRulesCommand creates the rules command group: validate and load
// rule packs, approve drafts, list versions.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage versioned program rules",
	}
	cmd.AddCommand(newRulesValidateCommand(rootOpts))
	cmd.AddCommand(newRulesLoadCommand(rootOpts))
	cmd.AddCommand(newRulesApproveCommand(rootOpts))
	cmd.AddCommand(newRulesListCommand(rootOpts))
	return cmd
}

func newRulesValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "validate <pack.cue>",
		Short:         "Compile a rule pack without loading it",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			pack, err := rulepack.LoadPack(args[0])
			if err != nil {
				_ = formatter.Error("PACK_INVALID", err.Error())
				return NewExitError(ExitFailure, err.Error())
			}
			formatter.Textf("pack %s: %d rule(s) valid", pack.Name, len(pack.Rules))
			if rootOpts.Format == "json" {
				return formatter.Success(map[string]any{"pack": pack.Name, "rules": len(pack.Rules)})
			}
			return nil
		},
	}
}

func newRulesLoadCommand(rootOpts *RootOptions) *cobra.Command {
	var approve bool

	cmd := &cobra.Command{
		Use:           "load <pack.cue>",
		Short:         "Compile a rule pack and insert its rules as drafts",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			pack, err := rulepack.LoadPack(args[0])
			if err != nil {
				_ = formatter.Error("PACK_INVALID", err.Error())
				return NewExitError(ExitFailure, err.Error())
			}

			st, err := store.Open(rootOpts.DBPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "open database", err)
			}
			defer st.Close()

			ctx := context.Background()
			for i := range pack.Rules {
				rule := pack.Rules[i]
				if err := st.InsertDraftRule(ctx, &rule); err != nil {
					_ = formatter.Error("LOAD_FAILED", fmt.Sprintf("rule %s: %v", rule.ID, err))
					return NewExitError(ExitFailure, err.Error())
				}
				formatter.VerboseLog("inserted draft %s", rule.ID)
				if approve {
					if err := st.ApproveRule(ctx, rule.ID); err != nil {
						_ = formatter.Error("APPROVE_FAILED", fmt.Sprintf("rule %s: %v", rule.ID, err))
						return NewExitError(ExitFailure, err.Error())
					}
				}
			}
			formatter.Textf("loaded %d rule(s) from pack %s", len(pack.Rules), pack.Name)
			if rootOpts.Format == "json" {
				return formatter.Success(map[string]any{"pack": pack.Name, "loaded": len(pack.Rules), "approved": approve})
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&approve, "approve", false, "approve each rule after insert")
	return cmd
}

func newRulesApproveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "approve <rule-id>",
		Short:         "Approve a draft rule, superseding open-ended predecessors",
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

			if err := st.ApproveRule(context.Background(), args[0]); err != nil {
				_ = formatter.Error("APPROVE_FAILED", err.Error())
				return NewExitError(ExitFailure, err.Error())
			}
			formatter.Textf("approved %s", args[0])
			if rootOpts.Format == "json" {
				return formatter.Success(map[string]any{"approved": args[0]})
			}
			return nil
		},
	}
}

func newRulesListCommand(rootOpts *RootOptions) *cobra.Command {
	var program string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List rule versions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			st, err := store.Open(rootOpts.DBPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "open database", err)
			}
			defer st.Close()

			rules, err := st.ListRules(context.Background(), policy.Program(program))
			if err != nil {
				return WrapExitError(ExitCommandError, "list rules", err)
			}
			if rootOpts.Format == "json" {
				return formatter.Success(rules)
			}
			for _, r := range rules {
				expires := "open"
				if r.ExpirationDate != nil {
					expires = r.ExpirationDate.Format("2006-01-02")
				}
				formatter.Textf("%-40s %-10s %-18s %-10s %s..%s",
					r.ID, r.Program, r.RuleType, r.Status,
					r.EffectiveDate.Format("2006-01-02"), expires)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&program, "program", "p", "", "filter by program")
	return cmd
}
