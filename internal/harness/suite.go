package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/civigo/benefits/internal/policy"
	"github.com/civigo/benefits/internal/store"
)

// Suite is a YAML file of curated test cases for bulk import.
type Suite struct {
	// Name identifies the suite in logs and import summaries.
	Name string `yaml:"name"`

	// Description explains what the suite covers.
	Description string `yaml:"description,omitempty"`

	// Program is the default program applied to cases that do not
	// specify their own.
	Program string `yaml:"program,omitempty"`

	// Cases lists the curated test cases.
	Cases []SuiteCase `yaml:"cases"`
}

// SuiteCase is the YAML shape of one test case. Monetary values are
// strings so they parse exactly.
type SuiteCase struct {
	ID          string `yaml:"id"`
	Program     string `yaml:"program,omitempty"`
	Category    string `yaml:"category"`
	Description string `yaml:"description,omitempty"`

	Input SuiteHousehold `yaml:"input"`

	Expected struct {
		Eligible       *bool  `yaml:"eligible,omitempty"`
		MonthlyBenefit string `yaml:"monthly_benefit,omitempty"`
		AnnualCredit   string `yaml:"annual_credit,omitempty"`
	} `yaml:"expected"`

	// Tolerance is the maximum passing variance in percent; empty
	// means the default.
	Tolerance string `yaml:"tolerance,omitempty"`

	// AsOfDate pins rule resolution, formatted 2006-01-02.
	AsOfDate string `yaml:"as_of_date,omitempty"`

	Tags []string `yaml:"tags,omitempty"`
}

// SuiteHousehold is the YAML shape of a household profile.
type SuiteHousehold struct {
	Size             int      `yaml:"size"`
	Jurisdiction     string   `yaml:"jurisdiction"`
	EarnedIncome     string   `yaml:"earned_income,omitempty"`
	UnearnedIncome   string   `yaml:"unearned_income,omitempty"`
	SelfEmployment   string   `yaml:"self_employment_net,omitempty"`
	Assets           string   `yaml:"assets,omitempty"`
	ShelterCost      string   `yaml:"shelter_cost,omitempty"`
	UtilityCost      string   `yaml:"utility_cost,omitempty"`
	DependentCare    string   `yaml:"dependent_care,omitempty"`
	MedicalExpenses  string   `yaml:"medical_expenses,omitempty"`
	ReceivesPrograms []string `yaml:"receives_programs,omitempty"`

	Members []struct {
		Age      int  `yaml:"age"`
		Disabled bool `yaml:"disabled,omitempty"`
	} `yaml:"members,omitempty"`
}

// LoadSuite reads and parses a suite YAML file. Unknown fields are
// rejected so typos surface at load time rather than as silently
// ignored expectations.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite file: %w", err)
	}

	var suite Suite
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&suite); err != nil {
		return nil, fmt.Errorf("parse suite %s: %w", path, err)
	}

	if suite.Name == "" {
		return nil, fmt.Errorf("suite %s: name is required", path)
	}
	if len(suite.Cases) == 0 {
		return nil, fmt.Errorf("suite %s: cases list is required and must be non-empty", path)
	}
	return &suite, nil
}

// TestCases converts the suite to store-ready test cases, applying
// suite-level defaults and validating each case.
func (s *Suite) TestCases() ([]policy.EvaluationTestCase, error) {
	cases := make([]policy.EvaluationTestCase, 0, len(s.Cases))
	for i := range s.Cases {
		tc, err := s.Cases[i].testCase(s.Program)
		if err != nil {
			return nil, fmt.Errorf("suite %s: cases[%d]: %w", s.Name, i, err)
		}
		cases = append(cases, *tc)
	}
	return cases, nil
}

func (c *SuiteCase) testCase(defaultProgram string) (*policy.EvaluationTestCase, error) {
	program := c.Program
	if program == "" {
		program = defaultProgram
	}

	input, err := c.Input.household()
	if err != nil {
		return nil, err
	}

	tc := &policy.EvaluationTestCase{
		ID:          c.ID,
		Program:     policy.Program(program),
		Category:    c.Category,
		Description: c.Description,
		Input:       *input,
		Tags:        c.Tags,
		IsActive:    true,
		Tolerance:   policy.DefaultTolerance,
	}

	tc.Expected.Eligible = c.Expected.Eligible
	if tc.Expected.MonthlyBenefit, err = optionalDecimal(c.Expected.MonthlyBenefit); err != nil {
		return nil, fmt.Errorf("expected.monthly_benefit: %w", err)
	}
	if tc.Expected.AnnualCredit, err = optionalDecimal(c.Expected.AnnualCredit); err != nil {
		return nil, fmt.Errorf("expected.annual_credit: %w", err)
	}

	if c.Tolerance != "" {
		if tc.Tolerance, err = decimal.NewFromString(c.Tolerance); err != nil {
			return nil, fmt.Errorf("tolerance: %w", err)
		}
	}
	if c.AsOfDate != "" {
		if tc.AsOfDate, err = time.Parse("2006-01-02", c.AsOfDate); err != nil {
			return nil, fmt.Errorf("as_of_date: %w", err)
		}
	}

	if err := tc.Validate(); err != nil {
		return nil, err
	}
	return tc, nil
}

func (h *SuiteHousehold) household() (*policy.HouseholdProfile, error) {
	hh := &policy.HouseholdProfile{
		Size:         h.Size,
		Jurisdiction: h.Jurisdiction,
	}
	hh.ReceivesPrograms = append(hh.ReceivesPrograms, h.ReceivesPrograms...)
	for _, m := range h.Members {
		hh.Members = append(hh.Members, policy.Member{
			Age:      m.Age,
			Disabled: m.Disabled,
		})
	}

	fields := []struct {
		name  string
		raw   string
		field *decimal.Decimal
	}{
		{"earned_income", h.EarnedIncome, &hh.EarnedIncome},
		{"unearned_income", h.UnearnedIncome, &hh.UnearnedIncome},
		{"self_employment_net", h.SelfEmployment, &hh.SelfEmploymentNet},
		{"assets", h.Assets, &hh.Assets},
		{"shelter_cost", h.ShelterCost, &hh.ShelterCost},
		{"utility_cost", h.UtilityCost, &hh.UtilityCost},
		{"dependent_care", h.DependentCare, &hh.DependentCare},
		{"medical_expenses", h.MedicalExpenses, &hh.MedicalExpenses},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("input.%s: %w", f.name, err)
		}
		*f.field = d
	}
	return hh, nil
}

func optionalDecimal(raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ImportSuite loads a suite file and upserts its cases into the
// store: new IDs are created, existing IDs updated in place. Returns
// created and updated counts.
func (h *Harness) ImportSuite(ctx context.Context, path string) (created, updated int, err error) {
	suite, err := LoadSuite(path)
	if err != nil {
		return 0, 0, err
	}
	cases, err := suite.TestCases()
	if err != nil {
		return 0, 0, err
	}

	for i := range cases {
		tc := cases[i]
		_, err := h.store.GetTestCase(ctx, tc.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if err := h.store.CreateTestCase(ctx, &tc); err != nil {
				return created, updated, err
			}
			created++
		case err != nil:
			return created, updated, err
		default:
			if err := h.store.UpdateTestCase(ctx, &tc); err != nil {
				return created, updated, err
			}
			updated++
		}
	}
	h.logger.Info("suite imported", "suite", suite.Name, "created", created, "updated", updated)
	return created, updated, nil
}
