package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Alert kinds recorded in the history.
const (
	KindBuy  = "buy"
	KindSell = "sell"
	KindRSI  = "rsi"
)

// PriceSample is one driver-cycle observation.
type PriceSample struct {
	ObservedAt time.Time
	CycleID    string
	USDAmount  decimal.Decimal
	BuyPrice   decimal.Decimal
	SellPrice  decimal.Decimal
}

// AlertRecord captures an emitted alert for auditing.
type AlertRecord struct {
	ID        int64
	Kind      string
	Threshold string
	Value     decimal.Decimal
	FiredAt   time.Time
	CycleID   string
	CreatedAt time.Time
}
