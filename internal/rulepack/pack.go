package rulepack

import (
	"fmt"
	"os"
	"sort"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/civigo/benefits/internal/policy"
)

// Pack is a compiled rule pack: a named set of draft rules sharing a
// jurisdiction.
type Pack struct {
	Name         string
	Jurisdiction string
	Rules        []policy.Rule
}

// CompileError is a pack compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}

// LoadPack reads and compiles one pack file.
func LoadPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pack file: %w", err)
	}

	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compilePack(v)
}

func compilePack(v cue.Value) (*Pack, error) {
	pack := &Pack{}

	header := v.LookupPath(cue.ParsePath("pack"))
	if !header.Exists() {
		return nil, &CompileError{Field: "pack", Message: "pack header is required", Pos: v.Pos()}
	}
	var err error
	if pack.Name, err = requiredString(header, "name"); err != nil {
		return nil, err
	}
	if pack.Jurisdiction, err = requiredString(header, "jurisdiction"); err != nil {
		return nil, err
	}

	rulesVal := v.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return nil, &CompileError{Field: "rules", Message: "at least one rule is required", Pos: v.Pos()}
	}
	iter, err := rulesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		rule, err := compileRule(iter.Label(), iter.Value(), pack.Jurisdiction)
		if err != nil {
			return nil, err
		}
		pack.Rules = append(pack.Rules, *rule)
	}
	if len(pack.Rules) == 0 {
		return nil, &CompileError{Field: "rules", Message: "at least one rule is required", Pos: rulesVal.Pos()}
	}
	sort.Slice(pack.Rules, func(i, j int) bool { return pack.Rules[i].ID < pack.Rules[j].ID })

	if err := pack.checkCycles(); err != nil {
		return nil, err
	}
	return pack, nil
}

func compileRule(id string, v cue.Value, jurisdiction string) (*policy.Rule, error) {
	rule := &policy.Rule{
		ID:           id,
		Jurisdiction: jurisdiction,
		Status:       policy.RuleStatusDraft,
	}

	program, err := requiredString(v, "program")
	if err != nil {
		return nil, err
	}
	rule.Program = policy.Program(program)

	ruleType, err := requiredString(v, "rule_type")
	if err != nil {
		return nil, err
	}
	rule.RuleType = policy.RuleType(ruleType)

	if rule.SourceCitation, err = requiredString(v, "citation"); err != nil {
		return nil, err
	}

	effective, err := requiredString(v, "effective")
	if err != nil {
		return nil, err
	}
	if rule.EffectiveDate, err = parseDate(v, "effective", effective); err != nil {
		return nil, err
	}

	if expiresVal := v.LookupPath(cue.ParsePath("expires")); expiresVal.Exists() {
		expires, err := expiresVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		t, err := parseDate(v, "expires", expires)
		if err != nil {
			return nil, err
		}
		rule.ExpirationDate = &t
	}

	if depsVal := v.LookupPath(cue.ParsePath("depends_on")); depsVal.Exists() {
		depIter, err := depsVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for depIter.Next() {
			dep, err := depIter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			rule.DependsOn = append(rule.DependsOn, dep)
		}
	}

	paramsVal := v.LookupPath(cue.ParsePath("parameters"))
	if !paramsVal.Exists() {
		return nil, &CompileError{
			Field:   fmt.Sprintf("rules.%s.parameters", id),
			Message: "parameters are required",
			Pos:     v.Pos(),
		}
	}
	paramsJSON, err := paramsVal.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	if rule.Parameters, err = policy.UnmarshalParameters(paramsJSON); err != nil {
		return nil, &CompileError{
			Field:   fmt.Sprintf("rules.%s.parameters", id),
			Message: err.Error(),
			Pos:     paramsVal.Pos(),
		}
	}
	if rule.Parameters.Type() != rule.RuleType {
		return nil, &CompileError{
			Field:   fmt.Sprintf("rules.%s.parameters", id),
			Message: fmt.Sprintf("parameter type %q does not match rule type %q", rule.Parameters.Type(), rule.RuleType),
			Pos:     paramsVal.Pos(),
		}
	}

	if err := rule.Validate(); err != nil {
		return nil, &CompileError{
			Field:   fmt.Sprintf("rules.%s", id),
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}
	return rule, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fieldVal.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	if s == "" {
		return "", &CompileError{Field: field, Message: field + " must be non-empty", Pos: fieldVal.Pos()}
	}
	return s, nil
}

func parseDate(v cue.Value, field, raw string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("invalid date %q, want YYYY-MM-DD", raw),
			Pos:     v.Pos(),
		}
	}
	return t, nil
}
