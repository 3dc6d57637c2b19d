// Package matcher scores candidate links between legislative
// provisions and ontology terms.
//
// Two signals feed a mapping proposal: a structural citation match
// computed locally, and a semantic similarity score produced by an LLM
// collaborator. The collaborator is optional at every level — if it is
// unconfigured or its call fails, scoring degrades to citation-only
// and manual mapping creation is never blocked.
package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
)

// SemanticMatcher produces a text-similarity score in [0,1] between a
// provision's text and a candidate term definition, with an optional
// natural-language justification. Implemented by the OpenAI client
// below and by fakes in tests.
type SemanticMatcher interface {
	Similarity(ctx context.Context, provisionText, termDefinition string) (Score, error)
}

// Score is a semantic similarity result.
type Score struct {
	Value         decimal.Decimal
	Justification string
}

// CitationScore computes a structural match score between a
// provision's statutory citation and a rule's source citation.
//
// Scoring: identical normalized citations score 1.0; a shared title
// and section score 0.8; a shared title scores 0.4; otherwise 0.
// Citations are compared case-insensitively with punctuation
// variations normalized away.
func CitationScore(provisionCitation, ruleCitation string) decimal.Decimal {
	p := normalizeCitation(provisionCitation)
	r := normalizeCitation(ruleCitation)
	if p == "" || r == "" {
		return decimal.Zero
	}
	if p == r {
		return decimal.RequireFromString("1.0")
	}

	pParts := strings.Fields(p)
	rParts := strings.Fields(r)
	// First token is the title ("7" in "7 usc 2014"), last is the
	// section.
	if pParts[0] == rParts[0] {
		if pParts[len(pParts)-1] == rParts[len(rParts)-1] {
			return decimal.RequireFromString("0.8")
		}
		return decimal.RequireFromString("0.4")
	}
	return decimal.Zero
}

func normalizeCitation(citation string) string {
	s := strings.ToLower(strings.TrimSpace(citation))
	replacer := strings.NewReplacer(
		"u.s.c.", "usc",
		"§§", " ",
		"§", " ",
		"(", " ",
		")", " ",
		",", " ",
		".", " ",
	)
	return strings.Join(strings.Fields(replacer.Replace(s)), " ")
}

// Combine produces the weighted confidence score from the two signals:
// 0.4 citation + 0.6 semantic when a semantic score is available,
// citation alone otherwise.
func Combine(citation decimal.Decimal, semantic *decimal.Decimal) decimal.Decimal {
	if semantic == nil {
		return citation
	}
	cw := decimal.RequireFromString("0.4")
	sw := decimal.RequireFromString("0.6")
	return cw.Mul(citation).Add(sw.Mul(*semantic)).Round(4)
}

// OpenAIMatcher scores semantic similarity through the OpenAI chat
// API.
type OpenAIMatcher struct {
	client *openai.Client
	model  string
}

// NewOpenAIMatcher creates a matcher using the given API key and
// model. An empty model defaults to gpt-4o-mini.
func NewOpenAIMatcher(apiKey, model string) (*OpenAIMatcher, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai matcher: api key is required")
	}
	if model == "" {
		model = openai.GPT4oMini
		slog.Warn("matcher model not set, defaulting", "model", model)
	}
	return &OpenAIMatcher{client: openai.NewClient(apiKey), model: model}, nil
}

const similarityPrompt = `You compare United States legislative text against a benefit-rule definition.
Score how directly the provision affects the rule, from 0.0 (unrelated) to 1.0 (directly modifies it).
Respond with JSON only: {"score": <number>, "justification": "<one sentence>"}

Provision:
%s

Rule definition:
%s`

type similarityResponse struct {
	SimScore      json.Number `json:"score"`
	Justification string      `json:"justification"`
}

// Similarity implements SemanticMatcher.
func (m *OpenAIMatcher) Similarity(ctx context.Context, provisionText, termDefinition string) (Score, error) {
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(similarityPrompt, provisionText, termDefinition)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Score{}, fmt.Errorf("similarity call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Score{}, fmt.Errorf("similarity call: empty response")
	}

	var parsed similarityResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return Score{}, fmt.Errorf("similarity response: %w", err)
	}
	value, err := decimal.NewFromString(parsed.SimScore.String())
	if err != nil {
		return Score{}, fmt.Errorf("similarity score %q: %w", parsed.SimScore, err)
	}
	// Clamp collaborator output into [0,1]; it is advisory, not
	// trusted.
	if value.IsNegative() {
		value = decimal.Zero
	}
	if value.GreaterThan(decimal.NewFromInt(1)) {
		value = decimal.NewFromInt(1)
	}
	return Score{Value: value, Justification: parsed.Justification}, nil
}
