package portfolioService

import (
	"github.com/shopspring/decimal"

	"stocktracker/internal/model"
)

var oneHundred = decimal.NewFromInt(100)

// valuePositions derives the market view of a set of positions from resolved
// quotes. It is a pure function: unresolved symbols fall back to the average
// purchase price and an empty position set yields zeroed totals.
func valuePositions(positions []model.Position, quotes map[string]model.Quote) ([]model.PositionValuation, model.PortfolioSummary) {
	valuations := make([]model.PositionValuation, 0, len(positions))

	totalValue := decimal.Zero
	totalCostBasis := decimal.Zero

	for _, position := range positions {
		valuation := valuePosition(position, quotes)
		valuations = append(valuations, valuation)

		totalValue = totalValue.Add(valuation.CurrentValue)
		totalCostBasis = totalCostBasis.Add(valuation.CostBasis)
	}

	totalGainLoss := totalValue.Sub(totalCostBasis)
	totalGainLossPercent := decimal.Zero
	if totalCostBasis.IsPositive() {
		totalGainLossPercent = totalGainLoss.Div(totalCostBasis).Mul(oneHundred)
	}

	summary := model.PortfolioSummary{
		TotalValue:           totalValue,
		TotalCostBasis:       totalCostBasis,
		TotalGainLoss:        totalGainLoss,
		TotalGainLossPercent: totalGainLossPercent,
		PositionCount:        len(positions),
	}

	return valuations, summary
}

func valuePosition(position model.Position, quotes map[string]model.Quote) model.PositionValuation {
	currentPrice := position.AvgPrice
	var quotePtr *model.Quote
	if quote, ok := quotes[position.Symbol]; ok {
		currentPrice = quote.Price
		quotePtr = &quote
	}

	currentValue := position.Shares.Mul(currentPrice)
	costBasis := position.Shares.Mul(position.AvgPrice)
	gainLoss := currentValue.Sub(costBasis)

	gainLossPercent := decimal.Zero
	if costBasis.IsPositive() {
		gainLossPercent = gainLoss.Div(costBasis).Mul(oneHundred)
	}

	return model.PositionValuation{
		Position:        position,
		CurrentPrice:    currentPrice,
		CurrentValue:    currentValue,
		CostBasis:       costBasis,
		GainLoss:        gainLoss,
		GainLossPercent: gainLossPercent,
		Quote:           quotePtr,
	}
}
