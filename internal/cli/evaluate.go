package cli

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/civigo/benefits/internal/engine"
	"github.com/civigo/benefits/internal/policy"
	"github.com/civigo/benefits/internal/store"
)

// EvaluateOptions holds flags for the evaluate command.
type EvaluateOptions struct {
	*RootOptions
	Program string
	Input   string
	AsOf    string
}

// NewEvaluateCommand creates the evaluate command.
func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvaluateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a household against a program's effective rules",
		Long: `Evaluate a household profile (JSON file) against the named program's
rules effective as of a given date, printing the determination.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Program, "program", "p", "", "program code (snap|tanf|medicaid|tax_credit)")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "household profile JSON file")
	cmd.Flags().StringVar(&opts.AsOf, "as-of", "", "rule resolution date (YYYY-MM-DD, default today)")
	_ = cmd.MarkFlagRequired("program")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runEvaluate(opts *EvaluateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	data, err := os.ReadFile(opts.Input)
	if err != nil {
		return WrapExitError(ExitCommandError, "read household profile", err)
	}
	var household policy.HouseholdProfile
	if err := json.Unmarshal(data, &household); err != nil {
		return WrapExitError(ExitCommandError, "parse household profile", err)
	}

	var asOf time.Time
	if opts.AsOf != "" {
		if asOf, err = time.Parse("2006-01-02", opts.AsOf); err != nil {
			return WrapExitError(ExitCommandError, "parse --as-of", err)
		}
	}

	st, err := store.Open(opts.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer st.Close()

	det, err := engine.New(st).Evaluate(context.Background(), policy.Program(opts.Program), &household, asOf)
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error())
		return NewExitError(ExitFailure, err.Error())
	}

	if opts.Format == "json" {
		return formatter.Success(det)
	}
	formatter.Textf("program:  %s", det.Program)
	formatter.Textf("eligible: %t", det.Eligible)
	if amount, ok := det.Amount(); ok {
		formatter.Textf("amount:   %s", amount.StringFixed(2))
	}
	formatter.Textf("gross:    %s", det.Intermediates.GrossIncome.StringFixed(2))
	formatter.Textf("net:      %s", det.Intermediates.NetIncome.StringFixed(2))
	for _, d := range det.Intermediates.Deductions {
		formatter.Textf("  deduction %-15s %s", d.Kind, d.Amount.StringFixed(2))
	}
	return nil
}

func errorCode(err error) string {
	switch {
	case engine.IsInvalidInput(err):
		return string(engine.ErrCodeInvalidInput)
	case engine.IsRuleNotFound(err):
		return string(engine.ErrCodeRuleNotFound)
	default:
		return "ERROR"
	}
}
