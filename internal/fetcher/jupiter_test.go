package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-price-alerts/internal/model"
)

func noopLogger() zerolog.Logger { return zerolog.Nop() }

func fastRetry() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      3,
		RateLimitBackoff: time.Millisecond,
		RateLimitStep:    time.Millisecond,
		ErrorBackoff:     time.Millisecond,
	}
}

func newTestJupiter(url string) *Jupiter {
	return NewJupiter(JupiterOptions{
		BaseURL:          url,
		SlippageBps:      100,
		OnlyDirectRoutes: true,
		Timeout:          time.Second,
		Retry:            fastRetry(),
		Decimals:         map[string]int32{"TOKEN": 9},
	}, noopLogger())
}

func TestJupiterQuoteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "USDC", q.Get("inputMint"))
		assert.Equal(t, "TOKEN", q.Get("outputMint"))
		assert.Equal(t, "100000000", q.Get("amount"))
		assert.Equal(t, "100", q.Get("slippageBps"))
		assert.Equal(t, "true", q.Get("onlyDirectRoutes"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"inputMint":"USDC","outAmount":"2500000000000"}`))
	}))
	defer srv.Close()

	out, err := newTestJupiter(srv.URL).Quote(context.Background(), QuoteRequest{
		InputMint:  "USDC",
		OutputMint: "TOKEN",
		Amount:     decimal.NewFromInt(100_000_000),
	})
	require.NoError(t, err)
	assert.True(t, out.Equal(decimal.NewFromInt(2500)), out.String())
}

func TestJupiterQuoteRetriesAfterRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"outAmount":"1500000"}`))
	}))
	defer srv.Close()

	out, err := newTestJupiter(srv.URL).Quote(context.Background(), QuoteRequest{
		InputMint:  "TOKEN",
		OutputMint: "USDC",
		Amount:     decimal.NewFromInt(1_000_000_000),
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.True(t, out.Equal(decimal.RequireFromString("1.5")), out.String())
}

func TestJupiterQuoteExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"no route"}`))
	}))
	defer srv.Close()

	_, err := newTestJupiter(srv.URL).Quote(context.Background(), QuoteRequest{
		InputMint:  "USDC",
		OutputMint: "TOKEN",
		Amount:     decimal.NewFromInt(1),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrUpstreamUnavailable))
	assert.Contains(t, err.Error(), "no route")
	assert.Equal(t, int32(3), calls.Load())
}

func TestJupiterQuoteMalformedBodyIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"outAmount":"abc"}`))
	}))
	defer srv.Close()

	_, err := newTestJupiter(srv.URL).Quote(context.Background(), QuoteRequest{
		InputMint:  "USDC",
		OutputMint: "TOKEN",
		Amount:     decimal.NewFromInt(1),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrUpstreamUnavailable))
	assert.Equal(t, int32(1), calls.Load())
}

func TestJupiterQuoteRejectsBadRequest(t *testing.T) {
	j := newTestJupiter("http://127.0.0.1:0")
	_, err := j.Quote(context.Background(), QuoteRequest{InputMint: "USDC", Amount: decimal.NewFromInt(1)})
	require.Error(t, err)
	_, err = j.Quote(context.Background(), QuoteRequest{InputMint: "USDC", OutputMint: "TOKEN"})
	require.Error(t, err)
}

func TestQuoteBackOffSchedule(t *testing.T) {
	b := &quoteBackOff{policy: RetryPolicy{
		RateLimitBackoff: 2 * time.Second,
		RateLimitStep:    time.Second,
		ErrorBackoff:     500 * time.Millisecond,
	}}
	b.Reset()

	b.observe(&rateLimitedError{status: http.StatusTooManyRequests})
	assert.Equal(t, 3*time.Second, b.NextBackOff())
	b.observe(errors.New("boom"))
	assert.Equal(t, 500*time.Millisecond, b.NextBackOff())
	b.observe(&rateLimitedError{status: http.StatusTooManyRequests})
	assert.Equal(t, 5*time.Second, b.NextBackOff())
}

func TestJupiterDecimalsDefault(t *testing.T) {
	j := newTestJupiter("http://example.invalid")
	assert.Equal(t, int32(9), j.Decimals("TOKEN"))
	assert.Equal(t, int32(6), j.Decimals("USDC"))
}
