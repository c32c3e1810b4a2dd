package dbModel

import "time"

type Portfolio struct {
	PortfolioID string    `db:"portfolio_id"`
	Name        string    `db:"name"`
	CreatedAt   time.Time `db:"dt_create"`
}
