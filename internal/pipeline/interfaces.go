package pipeline

import (
	"context"

	"resume-intel-go/internal/types"
)

//
// 能力提供方接口
//

// DocumentNormalizer 文档归一化器接口
type DocumentNormalizer interface {
	// Normalize 把原始字节转为纯文本或页面图像
	Normalize(ctx context.Context, resumeID string, data []byte, declared types.FileType) (*types.NormalizedDocument, error)
}

// ResumeExtractor 结构化提取引擎接口
type ResumeExtractor interface {
	// Extract 从归一化文本提取结构化简历，仅传输/鉴权类失败返回错误
	Extract(ctx context.Context, content string) (*types.StructuredResume, error)
}

// Scorer 评分引擎接口
type Scorer interface {
	// Score 对结构化简历评分，jobDescription 为空时只做ATS合规评分
	Score(ctx context.Context, structured *types.StructuredResume, stats *types.FormatStats, jobDescription string) (*types.AnalysisResult, error)
}

// Suggester 改进建议生成器接口
type Suggester interface {
	// Suggest 生成排序后的改进建议，degraded 表示结果来自启发式降级
	Suggest(ctx context.Context, structured *types.StructuredResume, analysis *types.AnalysisResult) (suggestions []types.Improvement, degraded bool, err error)
}

//
// 存储接口
//

// ResumeStore 简历主数据存储
type ResumeStore interface {
	// SaveResume 持久化新简历及其初始状态
	SaveResume(ctx context.Context, resume *types.Resume, status string) error
	// GetResume 读取简历与当前流水线状态
	GetResume(ctx context.Context, resumeID string) (*types.Resume, string, error)
	// UpdateStructured 写入结构化提取结果与归一化文本路径
	UpdateStructured(ctx context.Context, resumeID string, structured *types.StructuredResume, stats *types.FormatStats, textPath string) error
	// UpdateStatus 更新流水线状态
	UpdateStatus(ctx context.Context, resumeID, status string) error
	// SaveAnalysis 持久化分析结果
	SaveAnalysis(ctx context.Context, result *types.AnalysisResult) error
	// SaveImprovements 持久化改进建议
	SaveImprovements(ctx context.Context, resumeID string, improvements []types.Improvement) error
}

// BlobStore 原始文件与归一化文本的对象存储
type BlobStore interface {
	// PutRaw 保存上传的原始字节，返回对象路径
	PutRaw(ctx context.Context, resumeID string, fileType types.FileType, data []byte) (string, error)
	// GetRaw 按路径读取原始字节
	GetRaw(ctx context.Context, path string) ([]byte, error)
	// PutNormalizedText 保存归一化文本，返回对象路径
	PutNormalizedText(ctx context.Context, resumeID, text string) (string, error)
}

// CacheStore 提取与分析结果缓存
type CacheStore interface {
	// GetExtraction 按内容哈希读提取缓存，未命中返回 (nil, nil)
	GetExtraction(ctx context.Context, contentHash string) (*types.StructuredResume, error)
	// SetExtraction 写提取缓存
	SetExtraction(ctx context.Context, contentHash string, structured *types.StructuredResume) error
	// GetAnalysis 按缓存键读分析缓存，未命中返回 (nil, nil)
	GetAnalysis(ctx context.Context, cacheKey string) (*types.AnalysisResult, error)
	// SetAnalysis 写分析缓存
	SetAnalysis(ctx context.Context, cacheKey string, result *types.AnalysisResult) error
}

// EventPublisher 阶段完成事件发布器
type EventPublisher interface {
	// PublishExtracted 发布提取完成事件
	PublishExtracted(ctx context.Context, resumeID string) error
	// PublishAnalyzed 发布分析完成事件
	PublishAnalyzed(ctx context.Context, resumeID string) error
}
