package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"swap-price-alerts/internal/model"
)

// ShouldAlert decides whether key may fire now. It does not record a fire;
// callers commit the returned timestamp with Commit once the alert is sent.
// With a cooldown, an expired record is purged when the key is allowed.
func (s *State) ShouldAlert(key model.PriceThreshold) (bool, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shouldAlertLocked(key)
}

func (s *State) shouldAlertLocked(key model.PriceThreshold) (bool, time.Time) {
	now := s.now()
	last, ok := s.records.Price[key]
	if s.settings.Cooldown <= 0 {
		if ok {
			return false, time.Time{}
		}
		return true, now
	}
	if ok && now.Sub(last) < s.settings.Cooldown {
		return false, time.Time{}
	}
	delete(s.records.Price, key)
	return true, now
}

// Commit records that key fired at ts.
func (s *State) Commit(key model.PriceThreshold, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records.Price[key] = ts
}

// Reset clears the record for key and reports whether one existed.
func (s *State) Reset(key model.PriceThreshold) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records.Price[key]
	delete(s.records.Price, key)
	return ok
}

// PriceFire describes a price alert that fired during evaluation.
type PriceFire struct {
	Threshold model.PriceThreshold
	Price     decimal.Decimal
	At        time.Time
}

// TryFire fires key if price satisfies it and the cooldown allows it.
// Check and commit happen under one lock.
func (s *State) TryFire(key model.PriceThreshold, price decimal.Decimal) (PriceFire, bool) {
	if !key.Satisfied(price) {
		return PriceFire{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	allowed, ts := s.shouldAlertLocked(key)
	if !allowed {
		return PriceFire{}, false
	}
	s.records.Price[key] = ts
	return PriceFire{Threshold: key, Price: price, At: ts}, true
}

// Thresholds returns the configured thresholds for side.
func (s *State) Thresholds(side model.Side) []model.PriceThreshold {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.settings.Sell
	if side == model.SideBuy {
		src = s.settings.Buy
	}
	out := make([]model.PriceThreshold, len(src))
	copy(out, src)
	return out
}

// SweepExpired clears records whose cooldown has elapsed while the last
// observed price satisfies the threshold. It is a no-op in manual-reset mode
// or before any price has been observed.
func (s *State) SweepExpired() []model.PriceThreshold {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings.Cooldown <= 0 || s.prices == nil {
		return nil
	}
	now := s.now()
	var cleared []model.PriceThreshold
	for _, group := range [][]model.PriceThreshold{s.settings.Buy, s.settings.Sell} {
		for _, key := range group {
			last, ok := s.records.Price[key]
			if !ok || now.Sub(last) < s.settings.Cooldown {
				continue
			}
			price := priceFor(key.Side, *s.prices)
			if price.IsZero() || !key.Satisfied(price) {
				continue
			}
			delete(s.records.Price, key)
			cleared = append(cleared, key)
		}
	}
	return cleared
}
