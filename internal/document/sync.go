package document

import (
	"sync"

	"github.com/rs/zerolog"

	"swap-price-alerts/internal/engine"
	"swap-price-alerts/internal/model"
)

// Synchronizer reconciles the engine with the shared documents. Every read or
// write of trigger state goes through its lock, so the driver cycle and the
// background sweep never interleave a document read with a record change.
type Synchronizer struct {
	store    *Store
	state    *engine.State
	defaults ConfigDocument
	logger   zerolog.Logger

	mu      sync.Mutex
	runtime Runtime
	loaded  bool
	// persisted is the record set last read from or written to the state
	// document; only differences from it are written back.
	persisted engine.Records
}

// NewSynchronizer wires the store to the engine. defaults seed a missing config document.
func NewSynchronizer(store *Store, state *engine.State, defaults ConfigDocument, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		store:    store,
		state:    state,
		defaults: defaults,
		logger:   logger.With().Str("component", "synchronizer").Logger(),
	}
}

// Pull reloads the config document and the persisted trigger records into the
// engine. Document failures are logged and fall back to the last good values.
func (s *Synchronizer) Pull() Runtime {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.loadRuntimeLocked()
	if !ok {
		rt = s.runtime
	}

	stateDoc, err := s.store.LoadState()
	var pruned int
	if err != nil {
		s.logger.Error().Err(err).Msg("state document unreadable; keeping in-memory trigger records")
		s.persisted = s.state.Snapshot().Records
		pruned = s.state.Configure(rt.Settings)
	} else {
		records, problems := stateDoc.Records()
		for _, p := range problems {
			s.logger.Warn().Err(p).Msg("skipping persisted trigger record")
		}
		s.persisted = records
		pruned = s.state.Reconcile(rt.Settings, records)
	}

	if pruned > 0 {
		s.logger.Info().Int("pruned", pruned).Msg("dropped trigger records for removed thresholds")
		_ = s.persistLocked(nil)
	}

	s.runtime = rt
	s.loaded = true
	return rt
}

func (s *Synchronizer) loadRuntimeLocked() (Runtime, bool) {
	doc, found, err := s.store.LoadConfig()
	switch {
	case err != nil:
		s.logger.Error().Err(err).Msg("config document unreadable")
		if s.loaded {
			return Runtime{}, false
		}
		doc = s.defaults
	case !found:
		doc = s.defaults
		rt, _ := doc.Decode()
		seeded := EncodeConfig(rt.USDAmount, rt.Settings, rt.RSIInterval)
		if err := s.store.SaveConfig(seeded); err != nil {
			s.logger.Error().Err(err).Msg("failed to seed config document")
		} else {
			s.logger.Info().Msg("config document seeded from defaults")
		}
	}

	rt, problems := doc.Decode()
	for _, p := range problems {
		s.logger.Warn().Err(p).Msg("skipping invalid configuration entry")
	}
	if !rt.USDAmount.IsPositive() {
		fallback, _ := s.defaults.Decode()
		if s.loaded {
			fallback = s.runtime
		}
		s.logger.Warn().Str("usd_amount", rt.USDAmount.String()).Str("using", fallback.USDAmount.String()).Msg("usd_amount must be positive")
		rt.USDAmount = fallback.USDAmount
	}
	if rt.RSIInterval == "" {
		fallback, _ := s.defaults.Decode()
		rt.RSIInterval = fallback.RSIInterval
	}
	return rt, true
}

// Runtime returns the values loaded by the last Pull.
func (s *Synchronizer) Runtime() Runtime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runtime
}

// PersistTriggers writes the current trigger records to the state document.
func (s *Synchronizer) PersistTriggers() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(nil)
}

// RecordPrices appends a price sample to the history. Trigger records are
// only written where the engine changed them since the last write.
func (s *Synchronizer) RecordPrices(sample model.PriceSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(func(d *StateDocument) {
		d.AppendPrice(sample, s.store.MaxHistory())
	})
}

// RecordRSI stores the latest RSI reading along with pending record changes.
func (s *Synchronizer) RecordRSI(reading model.RSIReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(func(d *StateDocument) {
		d.SetRSI(reading)
	})
}

// Sweep clears expired price records whose condition currently holds and
// persists the result.
func (s *Synchronizer) Sweep() []model.PriceThreshold {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := s.state.SweepExpired()
	if len(cleared) > 0 {
		_ = s.persistLocked(nil)
	}
	return cleared
}

// Reset clears a price record in memory and in the document.
func (s *Synchronizer) Reset(key model.PriceThreshold) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existed := s.state.Reset(key)
	return existed, s.persistLocked(nil)
}

// ResetRSI clears an RSI triggered flag in memory and in the document.
func (s *Synchronizer) ResetRSI(key model.RSIThreshold) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existed := s.state.ResetRSI(key)
	return existed, s.persistLocked(nil)
}

func (s *Synchronizer) persistLocked(extra func(*StateDocument)) error {
	snap := s.state.Snapshot()
	err := s.store.UpdateState(func(d *StateDocument) {
		if extra != nil {
			extra(d)
		}
		d.ApplyRecordChanges(s.persisted, snap.Records, snap.Settings.RSI)
		d.UpdatedAt = FormatTimestamp(nowUTC())
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to write state document")
		return err
	}
	s.persisted = snap.Records
	return nil
}
