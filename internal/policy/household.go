package policy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ElderlyAge is the age at or above which a member counts as elderly
// for deduction-cap purposes.
const ElderlyAge = 60

// Member is one person in a household.
type Member struct {
	Age      int  `json:"age"`
	Disabled bool `json:"disabled,omitempty"`
}

// HouseholdProfile is the caller-supplied input to an evaluation.
// It is treated as an immutable value object: the engine never mutates
// it, and malformed profiles are rejected before any calculation begins
// (never silently clamped).
type HouseholdProfile struct {
	Size    int      `json:"size"`
	Members []Member `json:"members,omitempty"`

	EarnedIncome      decimal.Decimal `json:"earned_income"`
	UnearnedIncome    decimal.Decimal `json:"unearned_income"`
	SelfEmploymentNet decimal.Decimal `json:"self_employment_net"`

	ShelterCost     decimal.Decimal `json:"shelter_cost"`
	UtilityCost     decimal.Decimal `json:"utility_cost"`
	MedicalExpenses decimal.Decimal `json:"medical_expenses"`
	DependentCare   decimal.Decimal `json:"dependent_care"`

	Assets decimal.Decimal `json:"assets"`

	Jurisdiction string `json:"jurisdiction"`

	// ReceivesPrograms lists benefit programs the household already
	// receives, consulted by categorical-eligibility rules.
	ReceivesPrograms []string `json:"receives_programs,omitempty"`
}

// GrossIncome is the sum of earned, unearned, and net self-employment
// income.
func (h *HouseholdProfile) GrossIncome() decimal.Decimal {
	return h.EarnedIncome.Add(h.UnearnedIncome).Add(h.SelfEmploymentNet)
}

// HasElderlyOrDisabled reports whether any member is elderly (age >=
// ElderlyAge) or flagged disabled.
func (h *HouseholdProfile) HasElderlyOrDisabled() bool {
	for _, m := range h.Members {
		if m.Age >= ElderlyAge || m.Disabled {
			return true
		}
	}
	return false
}

// Receives reports whether the household already receives the named
// program.
func (h *HouseholdProfile) Receives(program string) bool {
	for _, p := range h.ReceivesPrograms {
		if p == program {
			return true
		}
	}
	return false
}

// Validate rejects malformed profiles: household size below one,
// negative money amounts, member ages out of range, or a member list
// inconsistent with the declared size.
func (h *HouseholdProfile) Validate() error {
	if h.Size < 1 {
		return fmt.Errorf("household size %d < 1", h.Size)
	}
	if len(h.Members) > 0 && len(h.Members) != h.Size {
		return fmt.Errorf("household lists %d members but declares size %d", len(h.Members), h.Size)
	}
	for i, m := range h.Members {
		if m.Age < 0 || m.Age > 130 {
			return fmt.Errorf("member %d: age %d out of range", i, m.Age)
		}
	}
	amounts := []struct {
		name string
		v    decimal.Decimal
	}{
		{"earned_income", h.EarnedIncome},
		{"unearned_income", h.UnearnedIncome},
		{"self_employment_net", h.SelfEmploymentNet},
		{"shelter_cost", h.ShelterCost},
		{"utility_cost", h.UtilityCost},
		{"medical_expenses", h.MedicalExpenses},
		{"dependent_care", h.DependentCare},
		{"assets", h.Assets},
	}
	for _, a := range amounts {
		if a.v.IsNegative() {
			return fmt.Errorf("%s is negative (%s)", a.name, a.v)
		}
	}
	return nil
}
