package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"swap-price-alerts/internal/indicator"
	"swap-price-alerts/internal/model"
	"swap-price-alerts/internal/ratelimit"
)

const (
	defaultChartBase = "https://data.solanatracker.io"
	defaultMaxBars   = 2000
	defaultLookback  = 3 * 24 * time.Hour
)

// SolanaTrackerOptions parameterise the candle fetcher.
type SolanaTrackerOptions struct {
	BaseURL        string
	APIKey         string
	RemoveOutliers bool
	Timeout        time.Duration
	UserAgent      string
	// Limiter defaults to the process-wide ratelimit.Default().
	Limiter *ratelimit.Limiter
	Now     func() time.Time
}

// SolanaTracker fetches OHLCV chart data and cleans it for the RSI calculator.
type SolanaTracker struct {
	opts    SolanaTrackerOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	limiter *ratelimit.Limiter
	now     func() time.Time
}

// NewSolanaTracker constructs a candle fetcher.
func NewSolanaTracker(opts SolanaTrackerOptions, logger zerolog.Logger) *SolanaTracker {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultChartBase
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &SolanaTracker{
		opts:    opts,
		logger:  logger.With().Str("component", "candle_fetcher").Logger(),
		client:  newHTTPClient(opts.Timeout),
		baseURL: baseURL,
		limiter: limiter,
		now:     now,
	}
}

// Candles returns at most q.MaxBars ascending bars ending at the newest one.
// The series starts at the first traded bar and phantom bars carry the last
// traded close. Fewer than Period+1 bars yields model.ErrInsufficientData.
func (s *SolanaTracker) Candles(ctx context.Context, q CandleQuery) ([]model.Candle, error) {
	if strings.TrimSpace(q.Token) == "" {
		return nil, errors.New("candle token required")
	}
	if q.Lookback <= 0 {
		q.Lookback = defaultLookback
	}
	if q.MaxBars <= 0 {
		q.MaxBars = defaultMaxBars
	}
	if q.Period <= 0 {
		q.Period = indicator.DefaultPeriod
	}
	from := s.now().Add(-q.Lookback)

	if err := s.limiter.Throttle(ctx); err != nil {
		return nil, err
	}
	raw, err := s.fetch(ctx, q.Token, q.Interval, from)
	if err != nil {
		return nil, model.Upstream("solanatracker", err)
	}

	series, err := cleanSeries(raw, from)
	if err != nil {
		return nil, err
	}
	if len(series) < q.Period+1 {
		return nil, &model.InsufficientDataError{Need: q.Period + 1, Got: len(series)}
	}
	if len(series) > q.MaxBars {
		series = series[len(series)-q.MaxBars:]
	}

	s.logger.Debug().
		Str("token", q.Token).
		Str("interval", q.Interval).
		Int("bars", len(series)).
		Msg("candles fetched")
	return series, nil
}

func (s *SolanaTracker) fetch(ctx context.Context, token, interval string, from time.Time) ([]chartBar, error) {
	params := url.Values{}
	if interval != "" {
		params.Set("type", interval)
	}
	if s.opts.RemoveOutliers {
		params.Set("removeOutliers", "true")
	}
	params.Set("time_from", strconv.FormatInt(from.Unix(), 10))

	endpoint := fmt.Sprintf("%s/chart/%s?%s", s.baseURL, url.PathEscape(token), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.opts.APIKey != "" {
		req.Header.Set("x-api-key", s.opts.APIKey)
	}
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body := strings.TrimSpace(string(payload))
		if len(body) > 200 {
			body = body[:200]
		}
		return nil, fmt.Errorf("chart api error (%d): %s", resp.StatusCode, body)
	}

	var chart struct {
		Bars []chartBar `json:"oclhv"`
	}
	if err := json.Unmarshal(payload, &chart); err != nil {
		return nil, fmt.Errorf("decode chart: %w", err)
	}
	return chart.Bars, nil
}

type chartBar struct {
	Open   flexFloat `json:"open"`
	Close  flexFloat `json:"close"`
	Low    flexFloat `json:"low"`
	High   flexFloat `json:"high"`
	Volume flexFloat `json:"volume"`
	Time   int64     `json:"time"`
}

// cleanSeries orders bars, drops everything before the first traded bar and
// forward-fills phantom closes.
func cleanSeries(raw []chartBar, from time.Time) ([]model.Candle, error) {
	byTime := make(map[int64]chartBar, len(raw))
	for _, bar := range raw {
		if bar.Time < from.Unix() {
			continue
		}
		byTime[bar.Time] = bar
	}
	times := make([]int64, 0, len(byTime))
	for ts := range byTime {
		times = append(times, ts)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	first := -1
	for i, ts := range times {
		if byTime[ts].Volume > 0 {
			first = i
			break
		}
	}
	if first < 0 {
		return nil, &model.InsufficientDataError{}
	}

	series := make([]model.Candle, 0, len(times)-first)
	var lastClose float64
	for _, ts := range times[first:] {
		bar := byTime[ts]
		c := model.Candle{Time: time.Unix(ts, 0).UTC(), Close: float64(bar.Close), Volume: float64(bar.Volume)}
		if c.Volume > 0 {
			lastClose = c.Close
		} else {
			c.Volume = 0
			c.Close = lastClose
		}
		series = append(series, c)
	}
	return series, nil
}

// flexFloat accepts a JSON number, a numeric string or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*f = 0
			return nil
		}
		data = []byte(s)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

var _ CandleFetcher = (*SolanaTracker)(nil)
