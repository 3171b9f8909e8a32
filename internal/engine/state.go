package engine

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"swap-price-alerts/internal/model"
)

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// Settings is the runtime-mutable part of the alert configuration.
type Settings struct {
	// Cooldown of zero means a fired price alert stays suppressed until reset.
	Cooldown time.Duration
	// Rearm lets a triggered RSI alert reset itself when RSI crosses back.
	Rearm bool
	Buy   []model.PriceThreshold
	Sell  []model.PriceThreshold
	RSI   []model.RSIThreshold
}

// Records holds trigger state keyed by threshold identity.
// A price record is the last fire time; an RSI record marks the threshold as triggered.
type Records struct {
	Price map[model.PriceThreshold]time.Time
	RSI   map[model.RSIThreshold]time.Time
}

// NewRecords returns empty record maps.
func NewRecords() Records {
	return Records{
		Price: make(map[model.PriceThreshold]time.Time),
		RSI:   make(map[model.RSIThreshold]time.Time),
	}
}

func (r Records) clone() Records {
	out := Records{
		Price: make(map[model.PriceThreshold]time.Time, len(r.Price)),
		RSI:   make(map[model.RSIThreshold]time.Time, len(r.RSI)),
	}
	for k, v := range r.Price {
		out.Price[k] = v
	}
	for k, v := range r.RSI {
		out.RSI[k] = v
	}
	return out
}

// Snapshot is a consistent copy of the engine state.
type Snapshot struct {
	Settings Settings
	Records  Records
	Prices   *model.PriceSample
}

// State owns every trigger record. All methods are safe for concurrent use.
type State struct {
	mu       sync.Mutex
	now      Clock
	settings Settings
	records  Records
	prices   *model.PriceSample
}

// New constructs an empty engine state.
func New(now Clock) *State {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &State{now: now, records: NewRecords()}
}

// Reconcile installs settings and the persisted records, dropping records for
// thresholds that are no longer configured.
func (s *State) Reconcile(settings Settings, persisted Records) (pruned int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = settings
	s.records = persisted.clone()
	return s.pruneLocked()
}

// Configure replaces the settings and prunes stale records.
func (s *State) Configure(settings Settings) (pruned int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = settings
	return s.pruneLocked()
}

// pruneLocked removes records whose threshold is not configured.
func (s *State) pruneLocked() int {
	configured := make(map[model.PriceThreshold]struct{}, len(s.settings.Buy)+len(s.settings.Sell))
	for _, t := range s.settings.Buy {
		configured[t] = struct{}{}
	}
	for _, t := range s.settings.Sell {
		configured[t] = struct{}{}
	}
	rsiConfigured := make(map[model.RSIThreshold]struct{}, len(s.settings.RSI))
	for _, t := range s.settings.RSI {
		rsiConfigured[t] = struct{}{}
	}

	removed := 0
	for k := range s.records.Price {
		if _, ok := configured[k]; !ok {
			delete(s.records.Price, k)
			removed++
		}
	}
	for k := range s.records.RSI {
		if _, ok := rsiConfigured[k]; !ok {
			delete(s.records.RSI, k)
			removed++
		}
	}
	return removed
}

// Settings returns a copy of the current settings.
func (s *State) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// ObservePrices records the latest buy/sell prices for the reconciliation sweep.
func (s *State) ObservePrices(sample model.PriceSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := sample
	s.prices = &cp
}

// Snapshot copies settings, records and the last observed prices.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Settings: s.settings, Records: s.records.clone()}
	if s.prices != nil {
		cp := *s.prices
		snap.Prices = &cp
	}
	return snap
}

func priceFor(side model.Side, sample model.PriceSample) decimal.Decimal {
	if side == model.SideBuy {
		return sample.BuyPrice
	}
	return sample.SellPrice
}
