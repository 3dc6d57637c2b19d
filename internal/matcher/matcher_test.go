package matcher

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCitationScore(t *testing.T) {
	tests := []struct {
		name      string
		provision string
		rule      string
		want      string
	}{
		{"identical", "7 U.S.C. 2014(e)", "7 U.S.C. 2014(e)", "1.0"},
		{"punctuation variations", "7 usc § 2014(e)", "7 U.S.C. 2014 (e)", "1.0"},
		{"same title and section", "7 U.S.C. §§ 2011, 2014", "7 U.S.C. 2014", "0.8"},
		{"same title only", "7 U.S.C. 2014(e)", "7 U.S.C. 2017", "0.4"},
		{"different titles", "7 U.S.C. 2014", "42 U.S.C. 602", "0"},
		{"empty provision", "", "7 U.S.C. 2014", "0"},
		{"empty rule", "7 U.S.C. 2014", "", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CitationScore(tt.provision, tt.rule)
			assert.True(t, got.Equal(dec(tt.want)),
				"CitationScore(%q, %q) = %s, want %s", tt.provision, tt.rule, got, tt.want)
		})
	}
}

func TestNormalizeCitation(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"7 U.S.C. 2014(e)", "7 usc 2014 e"},
		{"7 USC § 2014", "7 usc 2014"},
		{"  42 u.s.c.  602 ", "42 usc 602"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeCitation(tt.in), "normalizeCitation(%q)", tt.in)
	}
}

func TestCombine(t *testing.T) {
	citation := dec("0.8")

	t.Run("citation only", func(t *testing.T) {
		got := Combine(citation, nil)
		assert.True(t, got.Equal(citation))
	})

	t.Run("weighted blend", func(t *testing.T) {
		semantic := dec("0.9")
		got := Combine(citation, &semantic)
		// 0.4*0.8 + 0.6*0.9
		assert.True(t, got.Equal(dec("0.86")), "Combine = %s", got)
	})

	t.Run("zero semantic drags the blend down", func(t *testing.T) {
		semantic := dec("0")
		got := Combine(citation, &semantic)
		assert.True(t, got.Equal(dec("0.32")), "Combine = %s", got)
	})
}
