package models

import (
	"fmt"
	"time"
)

// SignalKind identifies the trigger that produced a signal.
type SignalKind string

const (
	SignalVolumeZScore SignalKind = "volume_zscore"
	SignalCVDMomentum  SignalKind = "cvd_momentum"
)

// SignalDirection is the order-flow direction of a CVD momentum signal.
type SignalDirection string

const (
	DirectionUp   SignalDirection = "up"
	DirectionDown SignalDirection = "down"
)

// Signal is one detected trigger event. Immutable once created; multiple
// signals for a symbol are independent facts.
type Signal struct {
	Symbol   string          `json:"symbol"`
	Kind     SignalKind      `json:"kind"`
	Strength float64         `json:"strength"`
	At       time.Time       `json:"at"`
	Price    float64         `json:"price"`

	// Supporting values per kind.
	ZScore    float64         `json:"zscore,omitempty"`
	ShortRate float64         `json:"short_rate,omitempty"`
	LongRate  float64         `json:"long_rate,omitempty"`
	Direction SignalDirection `json:"direction,omitempty"`
}

// Ticket renders the copy-paste one-liner the operator pastes into a journal.
func (s Signal) Ticket() string {
	switch s.Kind {
	case SignalVolumeZScore:
		return fmt.Sprintf("%s | VOL_ZSCORE | Z:%.2f | @%.2f", s.Symbol, s.ZScore, s.Price)
	case SignalCVDMomentum:
		return fmt.Sprintf("%s | CVD_%s | short:%.2f long:%.2f | @%.2f",
			s.Symbol, dirTag(s.Direction), s.ShortRate, s.LongRate, s.Price)
	default:
		return fmt.Sprintf("%s | %s | %.2f | @%.2f", s.Symbol, s.Kind, s.Strength, s.Price)
	}
}

func dirTag(d SignalDirection) string {
	if d == DirectionDown {
		return "BEARISH"
	}
	return "BULLISH"
}
