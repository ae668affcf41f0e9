package models

import "time"

// Bar is one OHLCV bar at the configured interval.
type Bar struct {
	OpenTime       time.Time `json:"open_time"`
	Open           float64   `json:"open"`
	High           float64   `json:"high"`
	Low            float64   `json:"low"`
	Close          float64   `json:"close"`
	Volume         float64   `json:"volume"`
	TakerBuyVolume float64   `json:"taker_buy_volume"`
}

// LiveMarketState is the ephemeral live-data input for one symbol in one
// evaluation cycle: current price, a bounded bar sequence (newest last) and
// the CVD series aligned 1:1 with the bars.
type LiveMarketState struct {
	Symbol string
	Price  float64
	Bars   []Bar
	CVD    []float64
}

// ComputeCVD builds the cumulative volume delta series from taker buy/sell
// volumes: per-bar delta is 2*takerBuy - volume, accumulated over the
// sequence.
func ComputeCVD(bars []Bar) []float64 {
	if len(bars) == 0 {
		return nil
	}
	out := make([]float64, len(bars))
	var sum float64
	for i, b := range bars {
		sum += 2*b.TakerBuyVolume - b.Volume
		out[i] = sum
	}
	return out
}

// NewLiveMarketState assembles the live state for a symbol, deriving the CVD
// series from the bars.
func NewLiveMarketState(symbol string, price float64, bars []Bar) LiveMarketState {
	return LiveMarketState{
		Symbol: symbol,
		Price:  price,
		Bars:   bars,
		CVD:    ComputeCVD(bars),
	}
}
