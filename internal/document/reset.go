package document

import (
	"errors"
	"time"

	"swap-price-alerts/internal/model"
)

var nowUTC = func() time.Time { return time.Now().UTC() }

// ErrAlertNotFound is returned when a reset names a threshold that is not configured or not triggered.
var ErrAlertNotFound = errors.New("alert not found")

// ResetPriceAlert removes a price trigger record directly from the state
// document. The running driver picks the change up on its next cycle.
func (s *Store) ResetPriceAlert(key model.PriceThreshold) (bool, error) {
	cfg, _, err := s.LoadConfig()
	if err != nil {
		return false, err
	}
	rt, _ := cfg.Decode()
	list := rt.Settings.Sell
	if key.Side == model.SideBuy {
		list = rt.Settings.Buy
	}
	if !containsPrice(list, key) {
		return false, ErrAlertNotFound
	}

	var existed bool
	err = s.UpdateState(func(d *StateDocument) {
		existed = deletePriceKey(d.priceMap(key.Side), key)
	})
	return existed, err
}

// ResetRSIAlert removes an RSI triggered flag from the state document.
func (s *Store) ResetRSIAlert(key model.RSIThreshold) (bool, error) {
	var existed bool
	err := s.UpdateState(func(d *StateDocument) {
		existed = deleteRSIKey(d.LastTriggeredRSI, key)
		if status, ok := d.RSIAlertStatus[key.Key()]; ok && status.Triggered {
			d.RSIAlertStatus[key.Key()] = RSIAlertStatus{}
		}
	})
	if err != nil {
		return false, err
	}
	if !existed {
		return false, ErrAlertNotFound
	}
	return true, nil
}

func containsPrice(list []model.PriceThreshold, key model.PriceThreshold) bool {
	for _, t := range list {
		if t == key {
			return true
		}
	}
	return false
}
