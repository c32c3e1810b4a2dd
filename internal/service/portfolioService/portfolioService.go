package portfolioService

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"stocktracker/config"
	"stocktracker/data/repository"
	"stocktracker/internal/model"
	"stocktracker/internal/service"
	"stocktracker/utils"
)

type QuoteProvider interface {
	GetQuote(ctx context.Context, symbol string) (model.Quote, error)
}

type QuoteCache interface {
	GetQuote(ctx context.Context, symbol string) (model.Quote, error)
	SetQuote(ctx context.Context, symbol string, quote model.Quote) error
	Clear(ctx context.Context) error
}

type Repository interface {
	WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error
	CreatePortfolio(ctx context.Context, name string) (model.Portfolio, error)
	GetPortfolio(ctx context.Context, portfolioID string) (model.Portfolio, error)
	GetPortfolios(ctx context.Context) ([]model.Portfolio, error)
	DeletePortfolio(ctx context.Context, portfolioID string) error
	GetPosition(ctx context.Context, portfolioID, symbol string) (model.Position, error)
	GetPositions(ctx context.Context, portfolioID string) ([]model.Position, error)
	InsertPosition(ctx context.Context, portfolioID, symbol string, shares, avgPrice decimal.Decimal) (model.Position, error)
	UpdatePosition(ctx context.Context, positionID string, shares, avgPrice decimal.Decimal) (model.Position, error)
	DeletePosition(ctx context.Context, positionID string) error
	InsertTransaction(ctx context.Context, transaction model.Transaction) (model.Transaction, error)
	GetTransactionsByPortfolio(ctx context.Context, portfolioID string) ([]model.Transaction, error)
	GetHeldSymbols(ctx context.Context) ([]string, error)
}

type ReportGenerator interface {
	Generate(ctx context.Context, detail model.PortfolioDetail, transactions []model.Transaction) (fileBytes []byte, fileExtension string, err error)
}

type PortfolioService struct {
	cfg             *config.Config
	repo            Repository
	cache           QuoteCache
	provider        QuoteProvider
	reportGenerator ReportGenerator
	positionLocks   *keyedMutex
	flight          singleflight.Group
}

func New(cfg *config.Config, repo Repository, cache QuoteCache, provider QuoteProvider, reportGenerator ReportGenerator) *PortfolioService {
	return &PortfolioService{
		cfg:             cfg,
		repo:            repo,
		cache:           cache,
		provider:        provider,
		reportGenerator: reportGenerator,
		positionLocks:   newKeyedMutex(),
	}
}

func (s *PortfolioService) CreatePortfolio(ctx context.Context, name string) (model.Portfolio, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.CreatePortfolio"

	slog.Debug("CreatePortfolio start", slog.String("rqID", rqID), slog.String("op", op), slog.String("name", name))
	defer func() {
		slog.Debug("CreatePortfolio finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if strings.TrimSpace(name) == "" {
		return model.Portfolio{}, fmt.Errorf("%w: name is required", service.ErrInvalidArgument)
	}

	portfolio, err := s.repo.CreatePortfolio(ctx, name)
	if err != nil {
		slog.Error("got error from repo.CreatePortfolio", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Portfolio{}, err
	}

	return portfolio, nil
}

func (s *PortfolioService) GetPortfolios(ctx context.Context) ([]model.Portfolio, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.GetPortfolios"

	slog.Debug("GetPortfolios start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("GetPortfolios finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	portfolios, err := s.repo.GetPortfolios(ctx)
	if err != nil {
		slog.Error("got error from repo.GetPortfolios", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	return portfolios, nil
}

// GetPortfolio returns the portfolio valued against current quotes. Positions
// whose quote could not be resolved are valued at their average purchase
// price, so a valuation is always producible.
func (s *PortfolioService) GetPortfolio(ctx context.Context, portfolioID string) (model.PortfolioDetail, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.GetPortfolio"

	slog.Debug("GetPortfolio start", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID))
	defer func() {
		slog.Debug("GetPortfolio finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID))
	}()

	portfolio, err := s.repo.GetPortfolio(ctx, portfolioID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PortfolioDetail{}, service.ErrNotFound
		}
		slog.Error("got error from repo.GetPortfolio", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.PortfolioDetail{}, err
	}

	positions, err := s.repo.GetPositions(ctx, portfolioID)
	if err != nil {
		slog.Error("got error from repo.GetPositions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.PortfolioDetail{}, err
	}

	symbols := make([]string, 0, len(positions))
	for _, position := range positions {
		symbols = append(symbols, position.Symbol)
	}

	quotes := s.getQuotes(ctx, symbols)

	valuations, summary := valuePositions(positions, quotes)

	return model.PortfolioDetail{
		Portfolio: portfolio,
		Positions: valuations,
		Summary:   summary,
	}, nil
}

func (s *PortfolioService) DeletePortfolio(ctx context.Context, portfolioID string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.DeletePortfolio"

	slog.Debug("DeletePortfolio start", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID))
	defer func() {
		slog.Debug("DeletePortfolio finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID))
	}()

	err := s.repo.DeletePortfolio(ctx, portfolioID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return service.ErrNotFound
		}
		slog.Error("got error from repo.DeletePortfolio", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

// Buy applies a buy execution to the (portfolio, symbol) position. A new
// position opens at the executed price; an existing one is re-weighted so
// that avgPrice*shares stays equal to the cumulative cost of all buys.
func (s *PortfolioService) Buy(ctx context.Context, portfolioID, symbol string, shares, price decimal.Decimal, date *time.Time) (position model.Position, transaction model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.Buy"

	slog.Debug("Buy start", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID), slog.String("symbol", symbol))
	defer func() {
		slog.Debug("Buy finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID), slog.String("symbol", symbol))
	}()

	symbol, err = validateOrder(symbol, shares, price)
	if err != nil {
		return model.Position{}, model.Transaction{}, err
	}

	if _, err = s.repo.GetPortfolio(ctx, portfolioID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Position{}, model.Transaction{}, service.ErrNotFound
		}
		slog.Error("got error from repo.GetPortfolio", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Position{}, model.Transaction{}, err
	}

	unlock := s.positionLocks.lock(positionKey(portfolioID, symbol))
	defer unlock()

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetPosition(ctx, portfolioID, symbol)
		switch {
		case err == nil:
			totalShares := existing.Shares.Add(shares)
			newAvgPrice := existing.Shares.Mul(existing.AvgPrice).Add(shares.Mul(price)).Div(totalShares)
			position, err = s.repo.UpdatePosition(ctx, existing.PositionID, totalShares, newAvgPrice)
			if err != nil {
				return err
			}
		case errors.Is(err, repository.ErrNotFound):
			position, err = s.repo.InsertPosition(ctx, portfolioID, symbol, shares, price)
			if err != nil {
				return err
			}
		default:
			return err
		}

		transaction, err = s.repo.InsertTransaction(ctx, model.Transaction{
			PositionID:  position.PositionID,
			PortfolioID: portfolioID,
			Symbol:      symbol,
			Type:        model.TransactionBuy,
			Shares:      shares,
			Price:       price,
			Date:        orNow(date),
		})
		return err
	})
	if err != nil {
		slog.Error("Buy transaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Position{}, model.Transaction{}, err
	}

	return position, transaction, nil
}

// Sell applies a sell execution. The holding check runs inside the same lock
// and storage transaction that mutate the position, so a concurrent sell
// cannot drive shares negative: the late one is rejected. A sell that
// exhausts the holding deletes the position and returns nil for it. Selling
// never changes the average price.
func (s *PortfolioService) Sell(ctx context.Context, portfolioID, symbol string, shares, price decimal.Decimal, date *time.Time) (position *model.Position, transaction model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.Sell"

	slog.Debug("Sell start", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID), slog.String("symbol", symbol))
	defer func() {
		slog.Debug("Sell finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID), slog.String("symbol", symbol))
	}()

	symbol, err = validateOrder(symbol, shares, price)
	if err != nil {
		return nil, model.Transaction{}, err
	}

	unlock := s.positionLocks.lock(positionKey(portfolioID, symbol))
	defer unlock()

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetPosition(ctx, portfolioID, symbol)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return service.ErrNotFound
			}
			return err
		}

		if shares.GreaterThan(existing.Shares) {
			return service.ErrInsufficientShares
		}

		transaction, err = s.repo.InsertTransaction(ctx, model.Transaction{
			PositionID:  existing.PositionID,
			PortfolioID: portfolioID,
			Symbol:      symbol,
			Type:        model.TransactionSell,
			Shares:      shares,
			Price:       price,
			Date:        orNow(date),
		})
		if err != nil {
			return err
		}

		remaining := existing.Shares.Sub(shares)
		if remaining.LessThanOrEqual(decimal.Zero) {
			return s.repo.DeletePosition(ctx, existing.PositionID)
		}

		updated, err := s.repo.UpdatePosition(ctx, existing.PositionID, remaining, existing.AvgPrice)
		if err != nil {
			return err
		}
		position = &updated
		return nil
	})
	if err != nil {
		if !errors.Is(err, service.ErrNotFound) && !errors.Is(err, service.ErrInsufficientShares) {
			slog.Error("Sell transaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
		return nil, model.Transaction{}, err
	}

	return position, transaction, nil
}

func (s *PortfolioService) ListTransactions(ctx context.Context, portfolioID string) ([]model.Transaction, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.ListTransactions"

	slog.Debug("ListTransactions start", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID))
	defer func() {
		slog.Debug("ListTransactions finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID))
	}()

	if _, err := s.repo.GetPortfolio(ctx, portfolioID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, service.ErrNotFound
		}
		return nil, err
	}

	transactions, err := s.repo.GetTransactionsByPortfolio(ctx, portfolioID)
	if err != nil {
		slog.Error("got error from repo.GetTransactionsByPortfolio", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	return transactions, nil
}

func (s *PortfolioService) GenerateReport(ctx context.Context, portfolioID string) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.GenerateReport"

	slog.Debug("GenerateReport start", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID))
	defer func() {
		slog.Debug("GenerateReport finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID))
	}()

	detail, err := s.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, "", err
	}

	transactions, err := s.repo.GetTransactionsByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, "", err
	}

	return s.reportGenerator.Generate(ctx, detail, transactions)
}

func validateOrder(symbol string, shares, price decimal.Decimal) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", fmt.Errorf("%w: symbol is required", service.ErrInvalidArgument)
	}
	if !shares.IsPositive() {
		return "", fmt.Errorf("%w: shares must be positive", service.ErrInvalidArgument)
	}
	if !price.IsPositive() {
		return "", fmt.Errorf("%w: price must be positive", service.ErrInvalidArgument)
	}
	return symbol, nil
}

func positionKey(portfolioID, symbol string) string {
	return portfolioID + ":" + symbol
}

func orNow(date *time.Time) time.Time {
	if date != nil {
		return *date
	}
	return time.Now()
}
