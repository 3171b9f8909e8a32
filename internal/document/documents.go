package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"swap-price-alerts/internal/engine"
	"swap-price-alerts/internal/model"
)

// ConfigDocument is the runtime configuration shared with the config service.
// Threshold arrays are kept raw so a single malformed entry can be skipped.
type ConfigDocument struct {
	USDAmount         float64           `json:"usd_amount"`
	BuyAlerts         []json.RawMessage `json:"buy_alerts"`
	SellAlerts        []json.RawMessage `json:"sell_alerts"`
	AlertResetMinutes int               `json:"alert_reset_minutes"`
	RSIAlerts         []json.RawMessage `json:"rsi_alerts"`
	RSIInterval       string            `json:"rsi_interval"`
	RSIResetEnabled   bool              `json:"rsi_reset_enabled"`
}

// PricePoint is one entry of the price history shown by the dashboard.
type PricePoint struct {
	Timestamp string  `json:"timestamp"`
	BuyPrice  float64 `json:"buy_price"`
	SellPrice float64 `json:"sell_price"`
}

// RSIAlertStatus mirrors the triggered flag of one RSI alert for readers.
type RSIAlertStatus struct {
	Triggered bool `json:"triggered"`
}

// StateDocument is the shared state written by the driver and read by the UI service.
type StateDocument struct {
	LatestPrices      []PricePoint              `json:"latest_prices"`
	LastTriggeredBuy  map[string]string         `json:"last_triggered_buy"`
	LastTriggeredSell map[string]string         `json:"last_triggered_sell"`
	LastTriggeredRSI  map[string]string         `json:"last_triggered_rsi"`
	LatestRSI         *float64                  `json:"latest_rsi"`
	LatestRSITime     *string                   `json:"latest_rsi_time"`
	RSIAlertStatus    map[string]RSIAlertStatus `json:"rsi_alert_status,omitempty"`
	UpdatedAt         string                    `json:"updated_at,omitempty"`
}

func (d *StateDocument) normalize() {
	if d.LatestPrices == nil {
		d.LatestPrices = []PricePoint{}
	}
	if d.LastTriggeredBuy == nil {
		d.LastTriggeredBuy = map[string]string{}
	}
	if d.LastTriggeredSell == nil {
		d.LastTriggeredSell = map[string]string{}
	}
	if d.LastTriggeredRSI == nil {
		d.LastTriggeredRSI = map[string]string{}
	}
}

// Runtime is the decoded, validated form of the config document.
type Runtime struct {
	USDAmount   decimal.Decimal
	RSIInterval string
	Settings    engine.Settings
}

// Decode validates the document. Malformed thresholds are skipped and reported
// as InvalidConfigurationError values alongside the usable result.
func (c ConfigDocument) Decode() (Runtime, []error) {
	var problems []error

	rt := Runtime{
		USDAmount:   decimal.NewFromFloat(c.USDAmount),
		RSIInterval: strings.TrimSpace(c.RSIInterval),
		Settings: engine.Settings{
			Rearm: c.RSIResetEnabled,
		},
	}
	if c.AlertResetMinutes < 0 {
		problems = append(problems, &model.InvalidConfigurationError{Field: "alert_reset_minutes", Value: strconv.Itoa(c.AlertResetMinutes)})
	} else {
		rt.Settings.Cooldown = time.Duration(c.AlertResetMinutes) * time.Minute
	}

	rt.Settings.Buy, problems = decodePrices(model.SideBuy, c.BuyAlerts, problems)
	rt.Settings.Sell, problems = decodePrices(model.SideSell, c.SellAlerts, problems)

	rsi := make([]model.RSIThreshold, 0, len(c.RSIAlerts))
	for _, raw := range c.RSIAlerts {
		var entry string
		if err := json.Unmarshal(raw, &entry); err != nil {
			problems = append(problems, &model.InvalidConfigurationError{Field: "rsi_alerts", Value: string(raw), Err: err})
			continue
		}
		th, err := model.ParseRSIThreshold(entry)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		rsi = append(rsi, th)
	}
	rt.Settings.RSI = model.SortRSIThresholds(rsi)

	return rt, problems
}

func decodePrices(side model.Side, raws []json.RawMessage, problems []error) ([]model.PriceThreshold, []error) {
	out := make([]model.PriceThreshold, 0, len(raws))
	for _, raw := range raws {
		value, err := decodeNumber(raw)
		if err != nil {
			problems = append(problems, &model.InvalidConfigurationError{Field: string(side) + "_alerts", Value: string(raw), Err: err})
			continue
		}
		th, err := model.NewPriceThreshold(side, value)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		out = append(out, th)
	}
	return model.SortPriceThresholds(out), problems
}

// decodeNumber accepts a JSON number or a numeric string.
func decodeNumber(raw json.RawMessage) (decimal.Decimal, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(strings.TrimSpace(s))
	}
	return decimal.NewFromString(string(trimmed))
}

// EncodeConfig renders runtime values into a config document with
// normalised, sorted thresholds.
func EncodeConfig(usd decimal.Decimal, settings engine.Settings, rsiInterval string) ConfigDocument {
	doc := ConfigDocument{
		USDAmount:         usd.InexactFloat64(),
		BuyAlerts:         make([]json.RawMessage, 0, len(settings.Buy)),
		SellAlerts:        make([]json.RawMessage, 0, len(settings.Sell)),
		AlertResetMinutes: int(settings.Cooldown / time.Minute),
		RSIAlerts:         make([]json.RawMessage, 0, len(settings.RSI)),
		RSIInterval:       rsiInterval,
		RSIResetEnabled:   settings.Rearm,
	}
	for _, t := range model.SortPriceThresholds(settings.Buy) {
		doc.BuyAlerts = append(doc.BuyAlerts, json.RawMessage(t.Value().String()))
	}
	for _, t := range model.SortPriceThresholds(settings.Sell) {
		doc.SellAlerts = append(doc.SellAlerts, json.RawMessage(t.Value().String()))
	}
	for _, t := range model.SortRSIThresholds(settings.RSI) {
		b, _ := json.Marshal(t.Key())
		doc.RSIAlerts = append(doc.RSIAlerts, b)
	}
	return doc
}

// Records decodes the persisted trigger maps. Undecodable entries are skipped
// and reported.
func (d StateDocument) Records() (engine.Records, []error) {
	rec := engine.NewRecords()
	var problems []error

	for side, entries := range map[model.Side]map[string]string{
		model.SideBuy:  d.LastTriggeredBuy,
		model.SideSell: d.LastTriggeredSell,
	} {
		for key, stamp := range entries {
			th, err := model.ParsePriceKey(side, key)
			if err != nil {
				problems = append(problems, err)
				continue
			}
			ts, err := ParseTimestamp(stamp)
			if err != nil {
				problems = append(problems, &model.InvalidConfigurationError{Field: "last_triggered_" + string(side), Value: stamp, Err: err})
				continue
			}
			rec.Price[th] = ts
		}
	}

	for key, stamp := range d.LastTriggeredRSI {
		th, err := model.ParseRSIThreshold(key)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		ts, err := ParseTimestamp(stamp)
		if err != nil {
			// the flag is what matters; an unreadable time still marks it triggered
			ts = time.Time{}
		}
		rec.RSI[th] = ts
	}
	return rec, problems
}

// ApplyRecordChanges writes only the keys that differ between before and
// after: added or refreshed records are set, removed ones are deleted. Every
// other key keeps the value read from disk, so a reset made by another
// process after before was taken survives. The RSI status map is rebuilt
// from the merged result for the configured thresholds.
func (d *StateDocument) ApplyRecordChanges(before, after engine.Records, configuredRSI []model.RSIThreshold) {
	d.normalize()

	for key, ts := range after.Price {
		if prev, ok := before.Price[key]; ok && prev.Equal(ts) {
			continue
		}
		m := d.priceMap(key.Side)
		deletePriceKey(m, key)
		m[key.Key()] = FormatTimestamp(ts)
	}
	for key := range before.Price {
		if _, ok := after.Price[key]; !ok {
			deletePriceKey(d.priceMap(key.Side), key)
		}
	}

	for key, ts := range after.RSI {
		if prev, ok := before.RSI[key]; ok && prev.Equal(ts) {
			continue
		}
		deleteRSIKey(d.LastTriggeredRSI, key)
		d.LastTriggeredRSI[key.Key()] = FormatTimestamp(ts)
	}
	for key := range before.RSI {
		if _, ok := after.RSI[key]; !ok {
			deleteRSIKey(d.LastTriggeredRSI, key)
		}
	}

	d.RSIAlertStatus = make(map[string]RSIAlertStatus, len(configuredRSI))
	for _, th := range configuredRSI {
		triggered := false
		for k := range d.LastTriggeredRSI {
			if parsed, err := model.ParseRSIThreshold(k); err == nil && parsed == th {
				triggered = true
				break
			}
		}
		d.RSIAlertStatus[th.Key()] = RSIAlertStatus{Triggered: triggered}
	}
}

func (d *StateDocument) priceMap(side model.Side) map[string]string {
	if side == model.SideBuy {
		return d.LastTriggeredBuy
	}
	return d.LastTriggeredSell
}

// deletePriceKey removes every spelling of key, e.g. "0.5" and "0.50000000".
func deletePriceKey(m map[string]string, key model.PriceThreshold) bool {
	removed := false
	for k := range m {
		if th, err := model.ParsePriceKey(key.Side, k); err == nil && th == key {
			delete(m, k)
			removed = true
		}
	}
	return removed
}

func deleteRSIKey(m map[string]string, key model.RSIThreshold) bool {
	removed := false
	for k := range m {
		if th, err := model.ParseRSIThreshold(k); err == nil && th == key {
			delete(m, k)
			removed = true
		}
	}
	return removed
}

// AppendPrice adds a sample to the history, keeping at most max entries.
func (d *StateDocument) AppendPrice(sample model.PriceSample, max int) {
	d.LatestPrices = append(d.LatestPrices, PricePoint{
		Timestamp: FormatTimestamp(sample.Timestamp),
		BuyPrice:  sample.BuyPrice.InexactFloat64(),
		SellPrice: sample.SellPrice.InexactFloat64(),
	})
	if max > 0 && len(d.LatestPrices) > max {
		d.LatestPrices = append([]PricePoint(nil), d.LatestPrices[len(d.LatestPrices)-max:]...)
	}
}

// SetRSI records the latest RSI reading.
func (d *StateDocument) SetRSI(reading model.RSIReading) {
	v := reading.Value
	ts := FormatTimestamp(reading.Time)
	d.LatestRSI = &v
	d.LatestRSITime = &ts
}

// FormatTimestamp renders t as an ISO8601 UTC timestamp.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts RFC3339 and zone-less ISO timestamps, the latter read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
