package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/config"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

const (
	planReportKeyPrefix = "plan_report"
	reportScanBatchSize = 100

	// A report for week X reads weeks X-5 through X+4.
	reportWeeksBefore = 5
	reportWeeksAfter  = 4
)

// ReportCache stores rendered plan reports per (week, node, account).
type ReportCache interface {
	Get(ctx context.Context, week domain.Week, node, account string) (*domain.PlanReport, bool, error)
	Set(ctx context.Context, report *domain.PlanReport, node, account string) error
	// InvalidateWeek drops every cached report whose window includes week.
	InvalidateWeek(ctx context.Context, week domain.Week) error
	InvalidateAll(ctx context.Context) error
	Ping(ctx context.Context) error
}

type redisReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopReportCache struct{}

// NewReportCache returns a redis backed cache over client, or a noop one
// when caching is disabled or no client is available.
func NewReportCache(cfg config.CacheConfig, client *redis.Client) ReportCache {
	if !cfg.Enabled || client == nil {
		return &noopReportCache{}
	}
	return NewRedisReportCache(client, reportTTL(cfg))
}

// NewRedisReportCache wraps an existing client.
func NewRedisReportCache(client *redis.Client, ttl time.Duration) ReportCache {
	if ttl <= 0 {
		ttl = defaultReportTTL
	}
	return &redisReportCache{client: client, ttl: ttl}
}

func NewNoopReportCache() ReportCache {
	return &noopReportCache{}
}

func (c *redisReportCache) Get(ctx context.Context, week domain.Week, node, account string) (*domain.PlanReport, bool, error) {
	payload, err := c.client.Get(ctx, buildPlanReportKey(week, node, account)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var report domain.PlanReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, false, fmt.Errorf("decode plan report cache: %w", err)
	}
	return &report, true, nil
}

func (c *redisReportCache) Set(ctx context.Context, report *domain.PlanReport, node, account string) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode plan report cache: %w", err)
	}

	if err := c.client.Set(ctx, buildPlanReportKey(report.Week, node, account), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisReportCache) InvalidateWeek(ctx context.Context, week domain.Week) error {
	total := 0
	for _, w := range ReportWeeksCovering(week) {
		n, err := deleteKeysWithPrefix(ctx, c.client, weekPrefix(w), reportScanBatchSize)
		if err != nil {
			return err
		}
		total += n
	}
	log.Debug().Int("week", int(week)).Int("keys", total).Msg("plan report cache invalidated")
	return nil
}

func (c *redisReportCache) InvalidateAll(ctx context.Context) error {
	_, err := deleteKeysWithPrefix(ctx, c.client, planReportKeyPrefix+":", reportScanBatchSize)
	return err
}

func (c *redisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (n *noopReportCache) Get(context.Context, domain.Week, string, string) (*domain.PlanReport, bool, error) {
	return nil, false, nil
}

func (n *noopReportCache) Set(context.Context, *domain.PlanReport, string, string) error {
	return nil
}

func (n *noopReportCache) InvalidateWeek(context.Context, domain.Week) error {
	return nil
}

func (n *noopReportCache) InvalidateAll(context.Context) error {
	return nil
}

func (n *noopReportCache) Ping(context.Context) error {
	return ErrCacheDisabled
}

// ErrCacheDisabled is returned by Ping when no cache is configured.
var ErrCacheDisabled = errors.New("cache disabled")

// ReportWeeksCovering lists the report weeks whose window reads week.
func ReportWeeksCovering(week domain.Week) []domain.Week {
	out := make([]domain.Week, 0, reportWeeksBefore+reportWeeksAfter+1)
	for offset := -reportWeeksAfter; offset <= reportWeeksBefore; offset++ {
		out = append(out, week.Add(offset))
	}
	return out
}

func weekPrefix(week domain.Week) string {
	return fmt.Sprintf("%s:%d:", planReportKeyPrefix, int(week))
}

func buildPlanReportKey(week domain.Week, node, account string) string {
	raw := "node=" + strings.TrimSpace(node) + "|account=" + strings.TrimSpace(account)
	sum := sha1.Sum([]byte(raw))
	return weekPrefix(week) + hex.EncodeToString(sum[:])
}
