package constants

import "time"

const (
	// 应用级常量
	DefaultExtractorVer = "1.0" // 提取引擎版本标记，写入提取缓存与落库记录

	// 缓存时长（缓存键格式见 redis_keys.go）
	ExtractionCacheDuration = 7 * 24 * time.Hour
	AnalysisCacheDuration   = 24 * time.Hour
	EnrichmentCacheDuration = 6 * time.Hour

	// 提供方调用超时与重试
	ProviderCallTimeout   = 60 * time.Second
	ProviderRetryBackoff  = 2 * time.Second
	EnrichmentFetchTimeout = 10 * time.Second

	// 改进建议默认上限
	DefaultImprovementCap = 5
)
