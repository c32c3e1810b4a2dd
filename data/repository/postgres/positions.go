package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"stocktracker/data/repository"
	"stocktracker/internal/converter/dbConverter"
	"stocktracker/internal/model"
	"stocktracker/internal/model/dbModel"
	"stocktracker/utils"
)

func (r *Postgres) GetPosition(ctx context.Context, portfolioID, symbol string) (position model.Position, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT position_id, portfolio_id, symbol, shares, avg_price
		FROM positions
		WHERE portfolio_id = $1
		AND symbol = $2
		`

	slog.Debug("GetPosition start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Error("GetPosition failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetPosition completed", slog.String("rqID", rqID))
		}
	}()

	dbPosition := dbModel.Position{}
	err = r.txOrDb(ctx).QueryRowxContext(ctx, query, portfolioID, symbol).StructScan(&dbPosition)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Position{}, repository.ErrNotFound
		}
		return model.Position{}, err
	}

	return dbConverter.ConvertPosition(dbPosition), nil
}

func (r *Postgres) GetPositions(ctx context.Context, portfolioID string) (positions []model.Position, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT position_id, portfolio_id, symbol, shares, avg_price
		FROM positions
		WHERE portfolio_id = $1
		ORDER BY symbol
		`

	slog.Debug("GetPositions start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetPositions failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetPositions completed", slog.String("rqID", rqID))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, portfolioID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	positions = make([]model.Position, 0)
	for rows.Next() {
		var dbPosition dbModel.Position
		err = rows.StructScan(&dbPosition)
		if err != nil {
			return nil, err
		}
		positions = append(positions, dbConverter.ConvertPosition(dbPosition))
	}

	return positions, nil
}

func (r *Postgres) InsertPosition(ctx context.Context, portfolioID, symbol string, shares, avgPrice decimal.Decimal) (position model.Position, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		INSERT INTO positions(portfolio_id, symbol, shares, avg_price)
		VALUES($1, $2, $3, $4)
		RETURNING position_id, portfolio_id, symbol, shares, avg_price
		`

	slog.Debug("InsertPosition start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("InsertPosition failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertPosition completed", slog.String("rqID", rqID))
		}
	}()

	dbPosition := dbModel.Position{}
	err = r.txOrDb(ctx).QueryRowxContext(ctx, query, portfolioID, symbol, shares, avgPrice).StructScan(&dbPosition)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" { // unique_violation
				return model.Position{}, repository.ErrAlreadyExists
			}
		}
		return model.Position{}, err
	}

	return dbConverter.ConvertPosition(dbPosition), nil
}

func (r *Postgres) UpdatePosition(ctx context.Context, positionID string, shares, avgPrice decimal.Decimal) (position model.Position, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		UPDATE positions
		SET shares = $1, avg_price = $2
		WHERE position_id = $3
		RETURNING position_id, portfolio_id, symbol, shares, avg_price
		`

	slog.Debug("UpdatePosition start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpdatePosition failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpdatePosition completed", slog.String("rqID", rqID))
		}
	}()

	dbPosition := dbModel.Position{}
	err = r.txOrDb(ctx).QueryRowxContext(ctx, query, shares, avgPrice, positionID).StructScan(&dbPosition)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Position{}, repository.ErrNotFound
		}
		return model.Position{}, err
	}

	return dbConverter.ConvertPosition(dbPosition), nil
}

func (r *Postgres) DeletePosition(ctx context.Context, positionID string) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `DELETE FROM positions WHERE position_id = $1`

	slog.Debug("DeletePosition start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("DeletePosition failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeletePosition completed", slog.String("rqID", rqID))
		}
	}()

	res, err := r.txOrDb(ctx).ExecContext(ctx, query, positionID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *Postgres) InsertTransaction(ctx context.Context, transaction model.Transaction) (inserted model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		INSERT INTO transactions(position_id, portfolio_id, symbol, type, shares, price, dt_operation)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING transaction_id, position_id, portfolio_id, symbol, type, shares, price, dt_operation
		`

	slog.Debug(
		"InsertTransaction start",
		slog.String("rqID", rqID),
		slog.String("query", query),
		slog.Any("transaction", transaction),
	)
	defer func() {
		if err != nil {
			slog.Error("InsertTransaction failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertTransaction completed", slog.String("rqID", rqID))
		}
	}()

	dbTransaction := dbModel.Transaction{}
	err = r.txOrDb(ctx).QueryRowxContext(
		ctx,
		query,
		transaction.PositionID,
		transaction.PortfolioID,
		transaction.Symbol,
		transaction.Type,
		transaction.Shares,
		transaction.Price,
		transaction.Date,
	).StructScan(&dbTransaction)
	if err != nil {
		return model.Transaction{}, err
	}

	return dbConverter.ConvertTransaction(dbTransaction), nil
}

func (r *Postgres) GetTransactionsByPortfolio(ctx context.Context, portfolioID string) (transactions []model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT transaction_id, position_id, portfolio_id, symbol, type, shares, price, dt_operation
		FROM transactions
		WHERE portfolio_id = $1
		ORDER BY dt_operation DESC
		`

	slog.Debug("GetTransactionsByPortfolio start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetTransactionsByPortfolio failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetTransactionsByPortfolio completed", slog.String("rqID", rqID))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, portfolioID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	transactions = make([]model.Transaction, 0)
	for rows.Next() {
		var dbTransaction dbModel.Transaction
		err = rows.StructScan(&dbTransaction)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, dbConverter.ConvertTransaction(dbTransaction))
	}

	return transactions, nil
}

// GetHeldSymbols returns every distinct symbol with an open position across
// all portfolios. Used by the cache warm job.
func (r *Postgres) GetHeldSymbols(ctx context.Context) (symbols []string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT DISTINCT symbol FROM positions ORDER BY symbol`

	slog.Debug("GetHeldSymbols start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetHeldSymbols failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetHeldSymbols completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).SelectContext(ctx, &symbols, query)
	if err != nil {
		return nil, err
	}

	return symbols, nil
}
