package models

import "time"

// Quote is a point-in-time price snapshot for a symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	PrevClose float64   `json:"prev_close,omitempty"`
	Volume    int64     `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// PriceBar is one aggregated OHLCV bar.
type PriceBar struct {
	Symbol string    `json:"symbol"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	VWAP   float64   `json:"vwap,omitempty"`
	Volume int64     `json:"volume"`
	Start  time.Time `json:"start"`
	Trades int       `json:"trades,omitempty"`
}
