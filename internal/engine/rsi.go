package engine

import (
	"time"

	"swap-price-alerts/internal/model"
)

// Transition is the outcome of evaluating one RSI threshold.
type Transition int

const (
	// Unchanged means no state change.
	Unchanged Transition = iota
	// Fired means the threshold moved to triggered and should notify.
	Fired
	// Rearmed means a triggered threshold reset after RSI crossed back.
	Rearmed
)

func (t Transition) String() string {
	switch t {
	case Fired:
		return "fired"
	case Rearmed:
		return "rearmed"
	default:
		return "unchanged"
	}
}

// EvaluateRSI advances the state machine for key given the latest RSI value.
// A triggered key is only examined for re-arming, never for a new fire.
func (s *State) EvaluateRSI(key model.RSIThreshold, rsi float64) (Transition, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, triggered := s.records.RSI[key]; triggered {
		if s.settings.Rearm && key.Recrossed(rsi) {
			delete(s.records.RSI, key)
			return Rearmed, time.Time{}
		}
		return Unchanged, time.Time{}
	}
	if key.Crossed(rsi) {
		now := s.now()
		s.records.RSI[key] = now
		return Fired, now
	}
	return Unchanged, time.Time{}
}

// Triggered reports whether key is in the triggered state.
func (s *State) Triggered(key model.RSIThreshold) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records.RSI[key]
	return ok
}

// ResetRSI clears the triggered flag for key.
func (s *State) ResetRSI(key model.RSIThreshold) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records.RSI[key]
	delete(s.records.RSI, key)
	return ok
}

// RSIThresholds returns the configured RSI thresholds.
func (s *State) RSIThresholds() []model.RSIThreshold {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.RSIThreshold, len(s.settings.RSI))
	copy(out, s.settings.RSI)
	return out
}
