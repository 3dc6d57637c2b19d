package verifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civigo/benefits/internal/policy"
)

func sampleHousehold() *policy.HouseholdProfile {
	return &policy.HouseholdProfile{
		Size:         3,
		Jurisdiction: "US",
		EarnedIncome: decimal.RequireFromString("2500"),
	}
}

func TestVerify_Success(t *testing.T) {
	var gotBody request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"eligible": true, "monthly_benefit": "273"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	det, err := c.Verify(context.Background(), policy.ProgramSNAP, sampleHousehold(),
		time.Date(2024, 10, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.True(t, det.Eligible)
	amount, ok := det.Amount()
	require.True(t, ok)
	assert.True(t, amount.Equal(decimal.RequireFromString("273")))

	assert.Equal(t, policy.ProgramSNAP, gotBody.Program)
	assert.Equal(t, "2024-10-15", gotBody.AsOfDate)
	require.NotNil(t, gotBody.Household)
	assert.Equal(t, 3, gotBody.Household.Size)
}

func TestVerify_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"eligible": false}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetries(1))
	det, err := c.Verify(context.Background(), policy.ProgramSNAP, sampleHousehold(), time.Time{})
	require.NoError(t, err)
	assert.False(t, det.Eligible)
	assert.Equal(t, int32(2), calls.Load())
}

func TestVerify_ExhaustedRetriesIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetries(1))
	_, err := c.Verify(context.Background(), policy.ProgramSNAP, sampleHousehold(), time.Time{})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))

	var terr *ReferenceTimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 2, terr.Attempts)
}

func TestVerify_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetries(3))
	_, err := c.Verify(context.Background(), policy.ProgramSNAP, sampleHousehold(), time.Time{})
	require.Error(t, err)
	assert.False(t, IsTimeout(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestVerify_Timeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := New(srv.URL, WithTimeout(50*time.Millisecond), WithRetries(0))
	_, err := c.Verify(context.Background(), policy.ProgramSNAP, sampleHousehold(), time.Time{})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

func TestVerify_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"eligible": "maybe"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Verify(context.Background(), policy.ProgramSNAP, sampleHousehold(), time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode reference response")
}
