package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"swap-price-alerts/internal/model"
)

const (
	jupiterQuotePath   = "/quote"
	defaultJupiterBase = "https://quote-api.jup.ag/v6"
	defaultSlippageBps = 100
	defaultDecimals    = 6
)

// RetryPolicy controls quote retries. Rate-limited attempts wait
// RateLimitBackoff plus RateLimitStep per attempt; other failures wait ErrorBackoff.
type RetryPolicy struct {
	MaxAttempts      int
	RateLimitBackoff time.Duration
	RateLimitStep    time.Duration
	ErrorBackoff     time.Duration
}

// DefaultRetryPolicy is three attempts with a longer wait after HTTP 429.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      3,
		RateLimitBackoff: 2 * time.Second,
		RateLimitStep:    time.Second,
		ErrorBackoff:     500 * time.Millisecond,
	}
}

// JupiterOptions parameterise the quote fetcher.
type JupiterOptions struct {
	BaseURL          string
	SlippageBps      int
	OnlyDirectRoutes bool
	Timeout          time.Duration
	UserAgent        string
	Retry            RetryPolicy
	// Decimals maps a mint to its decimal places; unknown mints use six.
	Decimals map[string]int32
}

// Jupiter fetches swap quotes from the Jupiter aggregator.
type Jupiter struct {
	opts    JupiterOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewJupiter constructs a quote fetcher.
func NewJupiter(opts JupiterOptions, logger zerolog.Logger) *Jupiter {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultJupiterBase
	}
	if opts.SlippageBps <= 0 {
		opts.SlippageBps = defaultSlippageBps
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	return &Jupiter{
		opts:    opts,
		logger:  logger.With().Str("component", "quote_fetcher").Logger(),
		client:  newHTTPClient(opts.Timeout),
		baseURL: baseURL,
	}
}

// Decimals returns the decimal places configured for mint.
func (j *Jupiter) Decimals(mint string) int32 {
	if d, ok := j.opts.Decimals[mint]; ok {
		return d
	}
	return defaultDecimals
}

// Quote returns the output amount in display units. After the retry budget is
// spent the error wraps model.ErrUpstreamUnavailable.
func (j *Jupiter) Quote(ctx context.Context, req QuoteRequest) (decimal.Decimal, error) {
	if req.InputMint == "" || req.OutputMint == "" {
		return decimal.Decimal{}, errors.New("input and output mints required")
	}
	atoms := req.Amount.Round(0)
	if !atoms.IsPositive() {
		return decimal.Decimal{}, errors.New("quote amount must be positive")
	}

	policy := &quoteBackOff{policy: j.opts.Retry}
	var out decimal.Decimal
	operation := func() error {
		amount, err := j.fetchOnce(ctx, req.InputMint, req.OutputMint, atoms)
		policy.observe(err)
		if err != nil {
			return err
		}
		out = amount
		return nil
	}
	notify := func(err error, wait time.Duration) {
		j.logger.Warn().Err(err).
			Str("input", req.InputMint).
			Str("output", req.OutputMint).
			Dur("retry_in", wait).
			Msg("quote attempt failed")
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(j.opts.Retry.MaxAttempts-1)), ctx)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return decimal.Decimal{}, model.Upstream("jupiter", err)
	}

	return out.Shift(-j.Decimals(req.OutputMint)), nil
}

func (j *Jupiter) fetchOnce(ctx context.Context, inputMint, outputMint string, atoms decimal.Decimal) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", atoms.StringFixed(0))
	params.Set("slippageBps", strconv.Itoa(j.opts.SlippageBps))
	params.Set("onlyDirectRoutes", strconv.FormatBool(j.opts.OnlyDirectRoutes))

	endpoint := j.baseURL + jupiterQuotePath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(j.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := j.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return decimal.Decimal{}, backoff.Permanent(err)
		}
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return decimal.Decimal{}, &rateLimitedError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, parseJupiterError(resp.StatusCode, payload)
	}

	var quote quoteResponse
	if err := json.Unmarshal(payload, &quote); err != nil {
		return decimal.Decimal{}, backoff.Permanent(fmt.Errorf("decode quote: %w", err))
	}
	outAtoms, err := decimal.NewFromString(quote.OutAmount)
	if err != nil {
		return decimal.Decimal{}, backoff.Permanent(fmt.Errorf("parse outAmount %q: %w", quote.OutAmount, err))
	}
	if !outAtoms.IsPositive() {
		return decimal.Decimal{}, backoff.Permanent(errors.New("quote returned zero outAmount"))
	}
	return outAtoms, nil
}

type quoteResponse struct {
	InputMint      string `json:"inputMint"`
	InAmount       string `json:"inAmount"`
	OutputMint     string `json:"outputMint"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
}

type rateLimitedError struct {
	status int
}

func (e *rateLimitedError) Error() string {
	return fmt.Sprintf("jupiter rate limited (%d)", e.status)
}

func parseJupiterError(status int, payload []byte) error {
	var apiErr struct {
		Error     string `json:"error"`
		ErrorCode string `json:"errorCode"`
	}
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("jupiter api error (%d): %s", status, apiErr.Error)
	}
	if len(payload) > 0 {
		return fmt.Errorf("jupiter api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("jupiter api error (%d)", status)
}

// quoteBackOff picks the wait before the next attempt from the last failure.
type quoteBackOff struct {
	policy      RetryPolicy
	attempt     int
	rateLimited bool
}

func (b *quoteBackOff) observe(err error) {
	var rl *rateLimitedError
	b.rateLimited = errors.As(err, &rl)
}

func (b *quoteBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.rateLimited {
		return b.policy.RateLimitBackoff + time.Duration(b.attempt)*b.policy.RateLimitStep
	}
	return b.policy.ErrorBackoff
}

func (b *quoteBackOff) Reset() {
	b.attempt = 0
	b.rateLimited = false
}

var _ QuoteFetcher = (*Jupiter)(nil)
var _ backoff.BackOff = (*quoteBackOff)(nil)
