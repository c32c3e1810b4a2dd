package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a transient market data snapshot, never persisted.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	PreviousClose decimal.Decimal `json:"previousClose"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Volume        int64           `json:"volume"`
	Timestamp     time.Time       `json:"timestamp"`
}
