package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"resume-intel-go/internal/logger"
	"resume-intel-go/internal/pipeline"
	"resume-intel-go/internal/types"
)

// StatsFetcher 单个外部数据源的抓取器
type StatsFetcher interface {
	// Source 数据源标识，如 "github"、"leetcode"
	Source() string
	// Fetch 抓取指定账号的活动统计
	Fetch(ctx context.Context, handle string) (map[string]string, error)
}

// StatsCache 统计数据缓存的窄接口，Redis实现在storage包
type StatsCache interface {
	// GetStats 读取缓存，未命中返回 (nil, nil)
	GetStats(ctx context.Context, source, userID string) (*types.EnrichmentStats, error)
	// SetStats 写入缓存
	SetStats(ctx context.Context, stats *types.EnrichmentStats) error
}

// Service 外部数据服务：按数据源抓取用户活动统计并缓存。
// 抓取失败时回退过期缓存并打上 Stale 标记，完全不可用返回 ErrEnrichmentUnavailable。
type Service struct {
	fetchers map[string]StatsFetcher
	cache    StatsCache
	ttl      time.Duration
	timeout  time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// ServiceOption 外部数据服务的配置选项
type ServiceOption func(*Service)

// WithTTL 设置统计数据的新鲜期
func WithTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.ttl = ttl
	}
}

// WithFetchTimeout 设置单次外部请求的超时上限
func WithFetchTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.timeout = d
	}
}

// WithClock 替换时钟，测试用
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService 创建外部数据服务
func NewService(cache StatsCache, fetchers []StatsFetcher, options ...ServiceOption) *Service {
	s := &Service{
		fetchers: make(map[string]StatsFetcher, len(fetchers)),
		cache:    cache,
		ttl:      6 * time.Hour,
		timeout:  10 * time.Second,
		log:      logger.With("enrichment"),
		now:      time.Now,
	}
	for _, f := range fetchers {
		s.fetchers[f.Source()] = f
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Get 读取用户在指定数据源上的统计。
// 缓存新鲜直接返回 cached；过期或未命中则触发刷新。
func (s *Service) Get(ctx context.Context, userID, source, handle string) (*types.EnrichmentStats, error) {
	cached, err := s.cache.GetStats(ctx, source, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("source", source).Msg("读取统计缓存失败")
	}
	if cached != nil && !cached.Expired(s.now()) {
		cached.Status = types.StatusCached
		return cached, nil
	}
	return s.refresh(ctx, userID, source, handle, cached)
}

// Refresh 强制刷新用户统计，无视缓存新鲜度
func (s *Service) Refresh(ctx context.Context, userID, source, handle string) (*types.EnrichmentStats, error) {
	cached, err := s.cache.GetStats(ctx, source, userID)
	if err != nil {
		cached = nil
	}
	return s.refresh(ctx, userID, source, handle, cached)
}

// refresh 执行实际抓取。stale 为可用的过期回退数据（可为nil）
func (s *Service) refresh(ctx context.Context, userID, source, handle string, stale *types.EnrichmentStats) (*types.EnrichmentStats, error) {
	fetcher, ok := s.fetchers[source]
	if !ok {
		return nil, pipeline.NewEnrichmentUnavailableError(userID, fmt.Sprintf("未知数据源: %s", source))
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	metrics, err := fetcher.Fetch(fetchCtx, handle)
	if err != nil {
		s.log.Warn().Err(err).Str("source", source).Str("user_id", userID).Msg("外部数据抓取失败")
		if stale != nil {
			// 回退过期数据，必须带Stale标记
			stale.Stale = true
			stale.Status = types.StatusPartial
			return stale, nil
		}
		return nil, pipeline.NewEnrichmentUnavailableError(userID, err.Error())
	}

	stats := &types.EnrichmentStats{
		UserID:    userID,
		Source:    source,
		Metrics:   metrics,
		FetchedAt: s.now(),
		TTL:       s.ttl,
		Status:    types.StatusComputed,
	}
	if err := s.cache.SetStats(ctx, stats); err != nil {
		s.log.Warn().Err(err).Str("source", source).Msg("写入统计缓存失败")
	}
	return stats, nil
}

// Sources 返回已注册的数据源列表
func (s *Service) Sources() []string {
	out := make([]string, 0, len(s.fetchers))
	for src := range s.fetchers {
		out = append(out, src)
	}
	return out
}
