package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"stocktracker/config"
	"stocktracker/internal/model"
	"stocktracker/utils"
)

const quoteKeyPrefix = "quote:"

type RedisCache struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisCache(redisClient *redis.Client, cfg *config.Config) *RedisCache {
	return &RedisCache{redis: redisClient, cfg: cfg}
}

func (r *RedisCache) GetQuote(ctx context.Context, symbol string) (model.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	res, err := r.redis.Get(ctx, quoteKeyPrefix+symbol).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Quote{}, ErrCacheMiss
		}
		slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("symbol", symbol))
		return model.Quote{}, err
	}

	quote := model.Quote{}
	err = json.Unmarshal([]byte(res), &quote)
	if err != nil {
		slog.Error(
			"can't unmarshal quote in GetQuote",
			slog.String("rqID", rqID),
			slog.String("err", err.Error()),
			slog.String("resultFromRedis", res),
		)
		return model.Quote{}, errors.New("can't unmarshal quote")
	}

	return quote, nil
}

func (r *RedisCache) SetQuote(ctx context.Context, symbol string, quote model.Quote) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	quoteJson, err := json.Marshal(quote)
	if err != nil {
		slog.Error(
			"can't marshal quote in SetQuote",
			slog.String("rqID", rqID),
			slog.String("err", err.Error()),
			slog.Any("quote", quote),
		)
		return errors.New("can't marshal quote")
	}

	_, err = r.redis.Set(ctx, quoteKeyPrefix+symbol, quoteJson, r.cfg.Cache.QuoteExpiration).Result()
	if err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("symbol", symbol))
		return err
	}

	return nil
}

// Clear drops every cached quote. Used by the administrative reset endpoint.
func (r *RedisCache) Clear(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	iter := r.redis.Scan(ctx, 0, quoteKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.redis.Del(ctx, iter.Val()).Err(); err != nil {
			slog.Error("failed on redis.Del", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", iter.Val()))
			return err
		}
	}
	if err := iter.Err(); err != nil {
		slog.Error("failed on redis scan", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	return nil
}
