package fetcher

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"swap-price-alerts/internal/model"
)

const defaultTimeout = 10 * time.Second

// QuoteRequest asks for the output of swapping Amount atomic units of InputMint.
type QuoteRequest struct {
	InputMint  string
	OutputMint string
	Amount     decimal.Decimal
}

// QuoteFetcher retrieves swap quotes. The returned amount is in display units
// of the output token.
type QuoteFetcher interface {
	Quote(ctx context.Context, req QuoteRequest) (decimal.Decimal, error)
}

// CandleQuery bounds a candle request.
type CandleQuery struct {
	Token    string
	Interval string
	Lookback time.Duration
	MaxBars  int
	Period   int
}

// CandleFetcher retrieves a cleaned, time-ordered candle series.
type CandleFetcher interface {
	Candles(ctx context.Context, q CandleQuery) ([]model.Candle, error)
}

// newHTTPClient builds a client with explicit dial and TLS timeouts; the
// overall timeout bounds every upstream call.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: t}
}
