package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"swap-price-alerts/internal/model"
)

// Notification 是一条告警：标题加正文。
type Notification struct {
	Title string
	Body  string
	Tags  []string
}

// Notifier 定义告警输送接口。发送失败只返回错误，调用方负责记录日志。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// Multi fans a notification out to every configured channel.
type Multi []Notifier

// Notify sends to every channel and joins their errors.
func (m Multi) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every notification. It stands in when no channel is configured.
type Discard struct{}

func (Discard) Notify(context.Context, Notification) error { return nil }

// PriceAlert renders a buy or sell threshold notification.
func PriceAlert(th model.PriceThreshold, price decimal.Decimal) Notification {
	switch th.Side {
	case model.SideSell:
		return Notification{
			Title: "Sell Price Alert",
			Body:  fmt.Sprintf("Sell price $%s is ≥ target $%s", price.StringFixed(8), th.Value().String()),
			Tags:  []string{"chart_with_upwards_trend"},
		}
	default:
		return Notification{
			Title: "Buy Price Alert",
			Body:  fmt.Sprintf("Buy price $%s is ≤ target $%s", price.StringFixed(8), th.Value().String()),
			Tags:  []string{"chart_with_downwards_trend"},
		}
	}
}

// RSIAlert renders an RSI crossing notification.
func RSIAlert(th model.RSIThreshold, reading model.RSIReading) Notification {
	body := fmt.Sprintf("RSI %.2f is %s %s", reading.Value, th.Direction, strings.TrimPrefix(th.Key(), string(th.Direction)+":"))
	if !reading.Time.IsZero() {
		body += fmt.Sprintf(" (bar %s UTC)", reading.Time.UTC().Format(time.RFC3339))
	}
	return Notification{Title: "RSI Alert", Body: body, Tags: []string{"bar_chart"}}
}

var (
	_ Notifier = Multi(nil)
	_ Notifier = Discard{}
)
