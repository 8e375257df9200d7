package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/weison-t/thereader/internal/cache"
	"github.com/weison-t/thereader/internal/db"
	"github.com/weison-t/thereader/internal/insights"
	"github.com/weison-t/thereader/internal/models"
)

// TableLoader reads a whole dataset; *db.Store satisfies it.
type TableLoader interface {
	LoadTable(ctx context.Context, name string, sel db.Select) (models.Table, bool, error)
}

type InsightsService struct {
	Tables TableLoader
	Cache  cache.Cache
	TTL    time.Duration
	Logger zerolog.Logger
	Now    func() time.Time
}

// InsightsKey is the cache key for one (source, window) pair.
func InsightsKey(source insights.Source, days *int) string {
	window := "all"
	if days != nil {
		window = strconv.Itoa(*days)
	}
	return insightsPrefix + string(source) + ":" + window
}

// Get aggregates source, serving from the cache until the next rebuild or
// TTL expiry. Cache failures fall through to a fresh aggregation.
func (s *InsightsService) Get(ctx context.Context, source insights.Source, days *int) (insights.Result, error) {
	key := InsightsKey(source, days)
	if s.Cache != nil {
		var cached insights.Result
		hit, err := s.Cache.Get(ctx, key, &cached)
		if err != nil {
			s.Logger.Warn().Err(err).Str("key", key).Msg("insights cache read failed")
		}
		if hit {
			return cached, nil
		}
	}

	t, ok, err := s.Tables.LoadTable(ctx, source.Table(), db.Select{Columns: insights.Columns})
	if err != nil {
		return insights.Result{}, fmt.Errorf("load %s: %w", source.Table(), err)
	}
	res := insights.Empty(source)
	if ok {
		now := time.Now()
		if s.Now != nil {
			now = s.Now()
		}
		res = insights.Aggregate(source, t, days, now)
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, key, res, s.TTL); err != nil {
			s.Logger.Warn().Err(err).Str("key", key).Msg("insights cache write failed")
		}
	}
	return res, nil
}
