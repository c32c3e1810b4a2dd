package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionBuy  = "BUY"
	TransactionSell = "SELL"
)

// Position is the current holding of one symbol inside a portfolio.
// Shares is always positive: a position that would reach zero shares
// is deleted instead of being stored empty.
type Position struct {
	PositionID  string
	PortfolioID string
	Symbol      string
	Shares      decimal.Decimal
	AvgPrice    decimal.Decimal
}

// PositionValuation is a position enriched with a point-in-time market view.
// Quote is nil when no live quote could be resolved; CurrentPrice then falls
// back to the average purchase price.
type PositionValuation struct {
	Position
	CurrentPrice    decimal.Decimal
	CurrentValue    decimal.Decimal
	CostBasis       decimal.Decimal
	GainLoss        decimal.Decimal
	GainLossPercent decimal.Decimal
	Quote           *Quote
}

// Transaction is an immutable record of one buy or sell execution.
// PositionID is a plain identifier, not an enforced reference: history is
// kept after the position closes.
type Transaction struct {
	TransactionID string
	PositionID    string
	PortfolioID   string
	Symbol        string
	Type          string
	Shares        decimal.Decimal
	Price         decimal.Decimal
	Date          time.Time
}
