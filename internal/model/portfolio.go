package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Portfolio struct {
	PortfolioID string
	Name        string
	CreatedAt   time.Time
}

// PortfolioDetail is a portfolio valued against current quotes.
type PortfolioDetail struct {
	Portfolio
	Positions []PositionValuation
	Summary   PortfolioSummary
}

type PortfolioSummary struct {
	TotalValue           decimal.Decimal
	TotalCostBasis       decimal.Decimal
	TotalGainLoss        decimal.Decimal
	TotalGainLossPercent decimal.Decimal
	PositionCount        int
}
