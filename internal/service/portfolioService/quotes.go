package portfolioService

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"stocktracker/data/cache"
	"stocktracker/internal/externalApi"
	"stocktracker/internal/model"
	"stocktracker/internal/service"
	"stocktracker/utils"
)

// GetQuote resolves a single symbol through the cache and provider.
func (s *PortfolioService) GetQuote(ctx context.Context, symbol string) (model.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.GetQuote"

	slog.Debug("GetQuote start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
	defer func() {
		slog.Debug("GetQuote finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
	}()

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return model.Quote{}, service.ErrInvalidArgument
	}

	quote, err := s.resolveQuote(ctx, symbol)
	if err != nil {
		if errors.Is(err, externalApi.ErrNotFound) {
			return model.Quote{}, service.ErrNotFound
		}
		return model.Quote{}, err
	}

	return quote, nil
}

// getQuotes resolves quotes for a set of symbols. Symbols are deduplicated
// and fetched in fixed-size batches: lookups inside a batch run concurrently,
// batches run strictly one after another with a pacing pause between them
// (never after the last one) to stay under provider rate limits. Symbols that
// could not be resolved are absent from the result map.
func (s *PortfolioService) getQuotes(ctx context.Context, symbols []string) map[string]model.Quote {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.getQuotes"

	unique := dedupeSymbols(symbols)
	quotes := make(map[string]model.Quote, len(unique))
	if len(unique) == 0 {
		return quotes
	}

	slog.Debug("getQuotes start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("symbols", len(unique)))

	batchSize := s.cfg.Quotes.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	var mu sync.Mutex
	for start := 0; start < len(unique); start += batchSize {
		if start > 0 {
			time.Sleep(s.cfg.Quotes.BatchPause)
		}

		end := min(start+batchSize, len(unique))

		g, gctx := errgroup.WithContext(ctx)
		for _, symbol := range unique[start:end] {
			g.Go(func() error {
				quote, err := s.resolveQuote(gctx, symbol)
				if err != nil {
					// absence, not failure: the caller values the
					// position at cost basis instead
					if !errors.Is(err, externalApi.ErrNotFound) {
						slog.Warn("can't resolve quote", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol), slog.String("err", err.Error()))
					}
					return nil
				}

				mu.Lock()
				quotes[symbol] = quote
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	slog.Debug("getQuotes finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int("resolved", len(quotes)))

	return quotes
}

// resolveQuote checks the cache first and falls through to the provider on a
// miss. Concurrent misses for the same symbol collapse into one provider
// call. The provider call is detached from the caller's cancellation: a
// fetched quote still populates the cache even if the triggering request is
// gone.
func (s *PortfolioService) resolveQuote(ctx context.Context, symbol string) (model.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.resolveQuote"

	quote, err := s.cache.GetQuote(ctx, symbol)
	if err == nil {
		return quote, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		slog.Warn("can't get quote from cache", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol), slog.String("err", err.Error()))
	}

	v, err, _ := s.flight.Do(symbol, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.API.Timeout)
		defer cancel()

		quote, err := s.provider.GetQuote(fetchCtx, symbol)
		if err != nil {
			return model.Quote{}, err
		}

		if err := s.cache.SetQuote(fetchCtx, symbol, quote); err != nil {
			slog.Warn("can't store quote in cache", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol), slog.String("err", err.Error()))
		}

		return quote, nil
	})
	if err != nil {
		return model.Quote{}, err
	}

	return v.(model.Quote), nil
}

// WarmQuoteCache pre-fetches quotes for every held symbol. Runs as an
// interval job so valuations mostly hit a warm cache.
func (s *PortfolioService) WarmQuoteCache(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.WarmQuoteCache"

	symbols, err := s.repo.GetHeldSymbols(ctx)
	if err != nil {
		slog.Error("got error from repo.GetHeldSymbols", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	quotes := s.getQuotes(ctx, symbols)
	slog.Info("quote cache warmed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("held", len(symbols)), slog.Int("resolved", len(quotes)))

	return nil
}

func (s *PortfolioService) ClearQuoteCache(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.ClearQuoteCache"

	err := s.cache.Clear(ctx)
	if err != nil {
		slog.Error("got error from cache.Clear", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

func dedupeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	unique := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}
		unique = append(unique, symbol)
	}
	return unique
}
