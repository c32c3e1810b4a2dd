package dbModel

import (
	"time"

	"github.com/shopspring/decimal"
)

type Position struct {
	PositionID  string          `db:"position_id"`
	PortfolioID string          `db:"portfolio_id"`
	Symbol      string          `db:"symbol"`
	Shares      decimal.Decimal `db:"shares"`
	AvgPrice    decimal.Decimal `db:"avg_price"`
}

type Transaction struct {
	TransactionID string          `db:"transaction_id"`
	PositionID    string          `db:"position_id"`
	PortfolioID   string          `db:"portfolio_id"`
	Symbol        string          `db:"symbol"`
	Type          string          `db:"type"`
	Shares        decimal.Decimal `db:"shares"`
	Price         decimal.Decimal `db:"price"`
	Date          time.Time       `db:"dt_operation"`
}
