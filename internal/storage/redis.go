package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"resume-intel-go/internal/config"
	"resume-intel-go/internal/constants"
	"resume-intel-go/internal/enrichment"
	"resume-intel-go/internal/logger"
	"resume-intel-go/internal/pipeline"
	"resume-intel-go/internal/types"
)

// ErrNotFound 键不存在，对上层屏蔽 redis.Nil
var ErrNotFound = redis.Nil

// 统计条目在Redis中的保留期。新鲜度由TTL字段判断，
// 条目本身要活得更久才能在抓取失败时作为过期回退。
const enrichmentRetention = 7 * 24 * time.Hour

// 确保Redis实现了缓存接口
var (
	_ pipeline.CacheStore   = (*Redis)(nil)
	_ enrichment.StatsCache = (*Redis)(nil)
)

// Redis 提取/分析结果缓存与外部数据统计缓存
type Redis struct {
	Client *redis.Client
	cfg    *config.RedisConfig
	log    zerolog.Logger
}

// NewRedisAdapter 创建Redis客户端连接
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis配置不能为空")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis地址不能为空")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
	}

	client := redis.NewClient(opt)

	// 所有Redis操作进OpenTelemetry链路
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("注册Redis追踪钩子失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("连接Redis (%s) 失败: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		cfg:    cfg,
		log:    logger.With("redis"),
	}, nil
}

// Close 关闭Redis连接
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping 检查Redis连接
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	return r.Client.Ping(ctx).Err()
}

// GetExtraction 按内容哈希读提取缓存，未命中返回 (nil, nil)
func (r *Redis) GetExtraction(ctx context.Context, contentHash string) (*types.StructuredResume, error) {
	key := fmt.Sprintf(constants.KeyExtractionByContentHash, contentHash)
	var structured types.StructuredResume
	ok, err := r.getJSON(ctx, key, &structured)
	if err != nil || !ok {
		return nil, err
	}
	return &structured, nil
}

// SetExtraction 写提取缓存
func (r *Redis) SetExtraction(ctx context.Context, contentHash string, structured *types.StructuredResume) error {
	key := fmt.Sprintf(constants.KeyExtractionByContentHash, contentHash)
	return r.setJSON(ctx, key, structured, constants.ExtractionCacheDuration)
}

// GetAnalysis 按缓存键读分析缓存，未命中返回 (nil, nil)
func (r *Redis) GetAnalysis(ctx context.Context, cacheKey string) (*types.AnalysisResult, error) {
	key := fmt.Sprintf(constants.KeyAnalysisResult, cacheKey)
	var result types.AnalysisResult
	ok, err := r.getJSON(ctx, key, &result)
	if err != nil || !ok {
		return nil, err
	}
	return &result, nil
}

// SetAnalysis 写分析缓存
func (r *Redis) SetAnalysis(ctx context.Context, cacheKey string, result *types.AnalysisResult) error {
	key := fmt.Sprintf(constants.KeyAnalysisResult, cacheKey)
	return r.setJSON(ctx, key, result, constants.AnalysisCacheDuration)
}

// GetStats 读外部数据统计缓存，未命中返回 (nil, nil)
func (r *Redis) GetStats(ctx context.Context, source, userID string) (*types.EnrichmentStats, error) {
	key := fmt.Sprintf(constants.KeyEnrichmentStats, source, userID)
	var stats types.EnrichmentStats
	ok, err := r.getJSON(ctx, key, &stats)
	if err != nil || !ok {
		return nil, err
	}
	return &stats, nil
}

// SetStats 写外部数据统计缓存
func (r *Redis) SetStats(ctx context.Context, stats *types.EnrichmentStats) error {
	key := fmt.Sprintf(constants.KeyEnrichmentStats, stats.Source, stats.UserID)
	return r.setJSON(ctx, key, stats, enrichmentRetention)
}

// getJSON 读取并反序列化JSON值，键不存在时返回 (false, nil)
func (r *Redis) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis客户端未初始化")
	}
	val, err := r.Client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("读取键 %s 失败: %w", key, err)
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		// 缓存内容损坏时按未命中处理并清掉脏数据
		r.log.Warn().Err(err).Str("key", key).Msg("缓存内容反序列化失败，按未命中处理")
		r.Client.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

// setJSON 序列化并写入JSON值
func (r *Redis) setJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("序列化缓存值失败: %w", err)
	}
	return r.Client.Set(ctx, key, data, expiration).Err()
}
