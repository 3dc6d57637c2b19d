package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civigo/benefits/internal/policy"
	"github.com/civigo/benefits/internal/testutil"
)

const sampleSuite = `
name: snap-working-families
description: SNAP cases for households with earned income
program: snap
cases:
  - id: snap-size3-working
    category: working-family
    input:
      size: 3
      jurisdiction: US
      earned_income: "2500"
      shelter_cost: "900"
      utility_cost: "150"
    expected:
      eligible: true
      monthly_benefit: "270"
    tolerance: "1.00"
    as_of_date: "2024-10-15"
    tags: [earned-income, shelter]
  - id: snap-size1-elderly
    category: elderly
    input:
      size: 1
      jurisdiction: US
      unearned_income: "1150"
      members:
        - age: 72
    expected:
      eligible: true
`

func writeSuiteFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSuite(t *testing.T) {
	suite, err := LoadSuite(writeSuiteFile(t, sampleSuite))
	require.NoError(t, err)

	assert.Equal(t, "snap-working-families", suite.Name)
	require.Len(t, suite.Cases, 2)

	cases, err := suite.TestCases()
	require.NoError(t, err)
	require.Len(t, cases, 2)

	first := cases[0]
	assert.Equal(t, policy.ProgramSNAP, first.Program, "suite-level program default applies")
	assert.True(t, first.Input.EarnedIncome.Equal(dec("2500")))
	require.NotNil(t, first.Expected.MonthlyBenefit)
	assert.True(t, first.Expected.MonthlyBenefit.Equal(dec("270")))
	assert.True(t, first.AsOfDate.Equal(testutil.Date("2024-10-15")))
	assert.True(t, first.IsActive)

	second := cases[1]
	assert.True(t, second.Tolerance.Equal(policy.DefaultTolerance), "missing tolerance defaults")
	require.Len(t, second.Input.Members, 1)
	assert.Equal(t, 72, second.Input.Members[0].Age)
	assert.Nil(t, second.Expected.MonthlyBenefit)
}

func TestLoadSuite_RejectsUnknownFields(t *testing.T) {
	_, err := LoadSuite(writeSuiteFile(t, `
name: typo-suite
cases:
  - id: tc-1
    category: x
    input:
      size: 1
      jurisiction: US
`))
	require.Error(t, err, "misspelled field must not be silently dropped")
}

func TestLoadSuite_RequiresNameAndCases(t *testing.T) {
	_, err := LoadSuite(writeSuiteFile(t, "description: no name\ncases:\n  - id: tc-1\n    input:\n      size: 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")

	_, err = LoadSuite(writeSuiteFile(t, "name: empty\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cases")
}

func TestLoadSuite_RejectsBadProgram(t *testing.T) {
	suite, err := LoadSuite(writeSuiteFile(t, `
name: bad-program
cases:
  - id: tc-1
    category: x
    program: lottery
    input:
      size: 1
      jurisdiction: US
`))
	require.NoError(t, err)
	_, err = suite.TestCases()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown program")
}

func TestImportSuite_Upserts(t *testing.T) {
	h, st := seededHarness(t)
	ctx := context.Background()
	path := writeSuiteFile(t, sampleSuite)

	created, updated, err := h.ImportSuite(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 0, updated)

	// Re-importing the same file updates in place.
	created, updated, err = h.ImportSuite(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 2, updated)

	got, err := st.GetTestCase(ctx, "snap-size3-working")
	require.NoError(t, err)
	assert.Equal(t, "working-family", got.Category)
	assert.Equal(t, []string{"earned-income", "shelter"}, got.Tags)
}
