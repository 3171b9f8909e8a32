package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData indicates there is not enough candle history to seed the RSI.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrUpstreamUnavailable indicates an upstream provider could not be reached or answered with an error.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrInvalidConfiguration indicates a malformed threshold or setting.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// InsufficientDataError reports how many bars were needed versus available.
type InsufficientDataError struct {
	Need int
	Got  int
}

func (e *InsufficientDataError) Error() string {
	if e.Need == 0 {
		return fmt.Sprintf("%s: no traded bars in window", ErrInsufficientData)
	}
	return fmt.Sprintf("%s: need >= %d bars, got %d", ErrInsufficientData, e.Need, e.Got)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }

// InvalidConfigurationError names the offending field and raw value.
type InvalidConfigurationError struct {
	Field string
	Value string
	Err   error
}

func (e *InvalidConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s=%q: %v", ErrInvalidConfiguration, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("%s: %s=%q", ErrInvalidConfiguration, e.Field, e.Value)
}

func (e *InvalidConfigurationError) Unwrap() error { return ErrInvalidConfiguration }

// Upstream wraps a transport or HTTP failure so callers can match ErrUpstreamUnavailable.
func Upstream(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, provider, err)
}
