package dbConverter

import (
	"stocktracker/internal/model"
	"stocktracker/internal/model/dbModel"
)

func ConvertPortfolio(dbPortfolio dbModel.Portfolio) model.Portfolio {
	return model.Portfolio{
		PortfolioID: dbPortfolio.PortfolioID,
		Name:        dbPortfolio.Name,
		CreatedAt:   dbPortfolio.CreatedAt,
	}
}

func ConvertPosition(dbPosition dbModel.Position) model.Position {
	return model.Position{
		PositionID:  dbPosition.PositionID,
		PortfolioID: dbPosition.PortfolioID,
		Symbol:      dbPosition.Symbol,
		Shares:      dbPosition.Shares,
		AvgPrice:    dbPosition.AvgPrice,
	}
}

func ConvertTransaction(dbTransaction dbModel.Transaction) model.Transaction {
	return model.Transaction{
		TransactionID: dbTransaction.TransactionID,
		PositionID:    dbTransaction.PositionID,
		PortfolioID:   dbTransaction.PortfolioID,
		Symbol:        dbTransaction.Symbol,
		Type:          dbTransaction.Type,
		Shares:        dbTransaction.Shares,
		Price:         dbTransaction.Price,
		Date:          dbTransaction.Date,
	}
}
