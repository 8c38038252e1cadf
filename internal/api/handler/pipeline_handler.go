package handler

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-intel-go/internal/config"
	"resume-intel-go/internal/enrichment"
	"resume-intel-go/internal/logger"
	"resume-intel-go/internal/pipeline"
	"resume-intel-go/internal/tracing"
	"resume-intel-go/internal/types"
)

var handlerTracer = otel.Tracer("resume-intel-go/api/handler")

// PipelineHandler 流水线API处理器，把HTTP请求翻译成协调器操作
type PipelineHandler struct {
	cfg         *config.Config
	coordinator *pipeline.Coordinator
	enrichment  *enrichment.Service
	log         zerolog.Logger
}

// NewPipelineHandler 创建流水线API处理器
func NewPipelineHandler(cfg *config.Config, coordinator *pipeline.Coordinator, enrichSvc *enrichment.Service) *PipelineHandler {
	return &PipelineHandler{
		cfg:         cfg,
		coordinator: coordinator,
		enrichment:  enrichSvc,
		log:         logger.With("pipeline_handler"),
	}
}

// UploadResponse 简历上传响应
type UploadResponse struct {
	ResumeID    string `json:"resume_id"`
	ContentHash string `json:"content_hash"`
	Status      string `json:"status"`
}

// ExtractResponse 结构化提取响应
type ExtractResponse struct {
	ResumeID   string                  `json:"resume_id"`
	Status     types.ResultStatus      `json:"status"`
	Structured *types.StructuredResume `json:"structured"`
}

// ImproveResponse 改进建议响应
type ImproveResponse struct {
	ResumeID    string              `json:"resume_id"`
	Status      types.ResultStatus  `json:"status"`
	Suggestions []types.Improvement `json:"suggestions"`
}

// HandleUpload 处理简历上传。声明类型缺省时按文件后缀推断。
func (h *PipelineHandler) HandleUpload(ctx context.Context, reader io.Reader, filename, declaredType, ownerID string) (*UploadResponse, error) {
	ctx, span := handlerTracer.Start(ctx, "PipelineHandler.HandleUpload",
		trace.WithAttributes(
			attribute.String("resume.filename", tracing.SafeAttributeValue("filename", filename, tracing.DefaultMaxLength)),
		))
	defer span.End()

	data, err := io.ReadAll(reader)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, fmt.Errorf("读取上传文件内容失败: %w", err)
	}

	if ownerID == "" {
		// 匿名上传也要有归属，生成时间有序的UUIDv7
		owner, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("生成匿名用户标识失败: %w", err)
		}
		ownerID = owner.String()
	}

	fileType := resolveFileType(declaredType, filename)
	resume, err := h.coordinator.Upload(ctx, ownerID, fileType, data)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypePipeline)
		return nil, err
	}

	span.SetAttributes(attribute.String("resume.id", resume.ResumeID))
	h.log.Info().Str("resume_id", resume.ResumeID).Str("file_type", string(fileType)).Msg("简历上传受理")
	return &UploadResponse{
		ResumeID:    resume.ResumeID,
		ContentHash: resume.ContentHash,
		Status:      "PENDING",
	}, nil
}

// HandleExtract 触发结构化提取
func (h *PipelineHandler) HandleExtract(ctx context.Context, resumeID string, force bool) (*ExtractResponse, error) {
	ctx, span := handlerTracer.Start(ctx, "PipelineHandler.HandleExtract",
		trace.WithAttributes(
			attribute.String("resume.id", resumeID),
			attribute.Bool("resume.force", force),
		))
	defer span.End()

	structured, status, err := h.coordinator.Extract(ctx, resumeID, force)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypePipeline)
		return nil, err
	}

	span.SetAttributes(attribute.String("result.status", string(status)))
	return &ExtractResponse{
		ResumeID:   resumeID,
		Status:     status,
		Structured: structured,
	}, nil
}

// HandleAnalyze 触发评分分析，jobDescription 可为空
func (h *PipelineHandler) HandleAnalyze(ctx context.Context, resumeID, jobDescription string, force bool) (*types.AnalysisResult, error) {
	ctx, span := handlerTracer.Start(ctx, "PipelineHandler.HandleAnalyze",
		trace.WithAttributes(
			attribute.String("resume.id", resumeID),
			attribute.Bool("analysis.has_jd", jobDescription != ""),
			attribute.String("analysis.jd_preview", tracing.SafeResumeContent(jobDescription)),
		))
	defer span.End()

	result, err := h.coordinator.Analyze(ctx, resumeID, jobDescription, force)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypePipeline)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("result.status", string(result.Status)),
		attribute.Int("result.ats_score", result.ATSScore),
	)
	return result, nil
}

// HandleImprove 生成改进建议
func (h *PipelineHandler) HandleImprove(ctx context.Context, resumeID, jobDescription string) (*ImproveResponse, error) {
	ctx, span := handlerTracer.Start(ctx, "PipelineHandler.HandleImprove",
		trace.WithAttributes(attribute.String("resume.id", resumeID)))
	defer span.End()

	suggestions, status, err := h.coordinator.Improve(ctx, resumeID, jobDescription)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypePipeline)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("result.status", string(status)),
		attribute.Int("result.suggestion_count", len(suggestions)),
	)
	return &ImproveResponse{
		ResumeID:    resumeID,
		Status:      status,
		Suggestions: suggestions,
	}, nil
}

// HandleEnrichment 查询外部数据源统计，refresh 为 true 时强制刷新
func (h *PipelineHandler) HandleEnrichment(ctx context.Context, userID, source, handle string, refresh bool) (*types.EnrichmentStats, error) {
	ctx, span := handlerTracer.Start(ctx, "PipelineHandler.HandleEnrichment",
		trace.WithAttributes(
			attribute.String("enrich.source", source),
			attribute.Bool("enrich.refresh", refresh),
		))
	defer span.End()

	if handle == "" {
		err := fmt.Errorf("handle 参数不能为空")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	var stats *types.EnrichmentStats
	var err error
	if refresh {
		stats, err = h.enrichment.Refresh(ctx, userID, source, handle)
	} else {
		stats, err = h.enrichment.Get(ctx, userID, source, handle)
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("result.status", string(stats.Status)),
		attribute.Bool("result.stale", stats.Stale),
	)
	return stats, nil
}

// resolveFileType 把声明类型或文件后缀归一到受支持的类型集合。
// 无法识别的输入原样返回，由协调器拒绝。
func resolveFileType(declaredType, filename string) types.FileType {
	switch strings.ToLower(declaredType) {
	case "pdf":
		return types.FileTypePDF
	case "docx":
		return types.FileTypeDOCX
	case "image", "png", "jpg", "jpeg":
		return types.FileTypeImage
	case "":
		// 按后缀推断
	default:
		return types.FileType(declaredType)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return types.FileTypePDF
	case ".docx":
		return types.FileTypeDOCX
	case ".png", ".jpg", ".jpeg":
		return types.FileTypeImage
	default:
		return types.FileTypePDF
	}
}
