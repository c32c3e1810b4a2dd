package yahooApi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"stocktracker/config"
	"stocktracker/internal/externalApi"
	"stocktracker/internal/model"
	"stocktracker/utils"
)

// YahooApi fetches quotes from the Yahoo Finance v8 chart endpoint.
// No API key is required.
type YahooApi struct {
	client *resty.Client
}

func New(cfg *config.Config) *YahooApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.YahooApi.Url).
		SetHeader("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	return &YahooApi{client: client}
}

type rawChartResponse struct {
	Chart struct {
		Result []struct {
			Meta rawMeta `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type rawMeta struct {
	Symbol               string   `json:"symbol"`
	RegularMarketPrice   float64  `json:"regularMarketPrice"`
	PreviousClose        float64  `json:"previousClose"`
	RegularMarketOpen    *float64 `json:"regularMarketOpen"`
	RegularMarketDayHigh *float64 `json:"regularMarketDayHigh"`
	RegularMarketDayLow  *float64 `json:"regularMarketDayLow"`
	RegularMarketVolume  *int64   `json:"regularMarketVolume"`
}

func (a *YahooApi) GetQuote(ctx context.Context, symbol string) (model.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	endpoint := fmt.Sprintf("/v8/finance/chart/%s", url.PathEscape(symbol))
	params := map[string]string{
		"interval": "1d",
		"range":    "1d",
	}

	slog.Debug("start YahooApi.GetQuote request", slog.String("rqID", rqID), slog.String("symbol", symbol))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(params).
		Get(endpoint)

	if err != nil {
		slog.Error("error while dialing YahooApi", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.Quote{}, err
	}

	if !resp.IsSuccess() {
		slog.Warn("YahooApi returned non-success status", slog.Int("status", resp.StatusCode()), slog.String("rqID", rqID), slog.String("symbol", symbol))
		return model.Quote{}, externalApi.ErrNotFound
	}

	raw := rawChartResponse{}
	err = json.Unmarshal(resp.Body(), &raw)
	if err != nil {
		slog.Error("can't unmarshal response into rawChartResponse", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.Quote{}, err
	}

	if raw.Chart.Error != nil || len(raw.Chart.Result) == 0 {
		return model.Quote{}, externalApi.ErrNotFound
	}

	quote := parseMeta(raw.Chart.Result[0].Meta)

	slog.Debug("YahooApi.GetQuote request complete", slog.String("rqID", rqID), slog.String("symbol", symbol))

	return quote, nil
}

func parseMeta(meta rawMeta) model.Quote {
	price := decimal.NewFromFloat(meta.RegularMarketPrice)
	previousClose := decimal.NewFromFloat(meta.PreviousClose)
	change := price.Sub(previousClose)

	// previousClose of zero would divide by zero; changePercent is 0 then
	changePercent := decimal.Zero
	if !previousClose.IsZero() {
		changePercent = change.Div(previousClose).Mul(decimal.NewFromInt(100))
	}

	open := previousClose
	if meta.RegularMarketOpen != nil {
		open = decimal.NewFromFloat(*meta.RegularMarketOpen)
	}

	high := price
	if meta.RegularMarketDayHigh != nil {
		high = decimal.NewFromFloat(*meta.RegularMarketDayHigh)
	}

	low := price
	if meta.RegularMarketDayLow != nil {
		low = decimal.NewFromFloat(*meta.RegularMarketDayLow)
	}

	var volume int64
	if meta.RegularMarketVolume != nil {
		volume = *meta.RegularMarketVolume
	}

	return model.Quote{
		Symbol:        meta.Symbol,
		Price:         price,
		Change:        change,
		ChangePercent: changePercent,
		PreviousClose: previousClose,
		Open:          open,
		High:          high,
		Low:           low,
		Volume:        volume,
		Timestamp:     time.Now(),
	}
}
