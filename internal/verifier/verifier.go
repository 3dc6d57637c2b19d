// Package verifier calls the external authoritative reference
// calculator used to cross-check engine determinations.
//
// The reference calculator is an opaque black box: same household
// shape in, a comparable determination out. It is the only network
// dependency on the evaluation path, so every call carries a bounded
// timeout and a bounded retry budget; a case whose reference call
// times out is marked failed-with-error rather than hanging the run.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/civigo/benefits/internal/policy"
)

// DefaultTimeout bounds a single reference call.
const DefaultTimeout = 10 * time.Second

// DefaultRetries is the number of re-attempts after a timeout or
// server error.
const DefaultRetries = 1

// ReferenceTimeoutError reports an unresponsive reference calculator
// after the retry budget was exhausted.
type ReferenceTimeoutError struct {
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *ReferenceTimeoutError) Error() string {
	return fmt.Sprintf("reference calculator unresponsive after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *ReferenceTimeoutError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a ReferenceTimeoutError.
func IsTimeout(err error) bool {
	var e *ReferenceTimeoutError
	return errors.As(err, &e)
}

// Determination is the reference calculator's answer: a comparable
// eligibility flag and amount, nothing more is assumed about it.
type Determination struct {
	Eligible       bool             `json:"eligible"`
	MonthlyBenefit *decimal.Decimal `json:"monthly_benefit,omitempty"`
	AnnualCredit   *decimal.Decimal `json:"annual_credit,omitempty"`
}

// Amount returns the reference amount and whether one is present.
func (d *Determination) Amount() (decimal.Decimal, bool) {
	if d.MonthlyBenefit != nil {
		return *d.MonthlyBenefit, true
	}
	if d.AnnualCredit != nil {
		return *d.AnnualCredit, true
	}
	return decimal.Zero, false
}

type request struct {
	Program   policy.Program           `json:"program"`
	Household *policy.HouseholdProfile `json:"household"`
	AsOfDate  string                   `json:"as_of_date,omitempty"`
}

// Client calls a reference calculator over HTTP.
type Client struct {
	endpoint string
	client   *http.Client
	retries  int
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// WithRetries overrides the retry budget.
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = n }
}

// New creates a Client for the given endpoint URL.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
		retries:  DefaultRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify submits the household to the reference calculator and returns
// its determination. Timeouts and 5xx responses are retried up to the
// retry budget; persistent unavailability surfaces as
// ReferenceTimeoutError.
func (c *Client) Verify(ctx context.Context, program policy.Program, household *policy.HouseholdProfile, asOf time.Time) (*Determination, error) {
	req := request{Program: program, Household: household}
	if !asOf.IsZero() {
		req.AsOfDate = asOf.UTC().Format("2006-01-02")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode reference request: %w", err)
	}

	attempts := c.retries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		det, retryable, err := c.attempt(ctx, body)
		if err == nil {
			return det, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, &ReferenceTimeoutError{Attempts: attempts, Err: lastErr}
}

func (c *Client) attempt(ctx context.Context, body []byte) (det *Determination, retryable bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build reference request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// Transport failures (including client timeouts) are retryable.
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("reference calculator returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("reference calculator returned %d", resp.StatusCode)
	}

	var out Determination
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("decode reference response: %w", err)
	}
	return &out, false, nil
}
