package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"resume-intel-go/internal/constants"
	"resume-intel-go/internal/logger"
	"resume-intel-go/internal/types"
)

// Coordinator 流水线协调器：驱动状态机
// PENDING → EXTRACTING → EXTRACTED → ANALYZING → ANALYZED → IMPROVING → DONE，
// 任意非终态可进入 FAILED 并保留最后完成阶段的产物。
// 同一简历的同类作业通过登记表互斥，后到者等待并共享结果。
type Coordinator struct {
	normalizer DocumentNormalizer
	extractor  ResumeExtractor
	scorer     Scorer
	suggester  Suggester

	store     ResumeStore
	blobs     BlobStore
	cache     CacheStore
	publisher EventPublisher

	registry        *Registry
	providerTimeout time.Duration
	retryBackoff    time.Duration
	log             zerolog.Logger
	now             func() time.Time
}

// CoordinatorOption 协调器的配置选项
type CoordinatorOption func(*Coordinator)

// WithProviderTimeout 设置单次能力提供方调用的超时
func WithProviderTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.providerTimeout = d
	}
}

// WithRetryBackoff 设置传输类错误的重试退避
func WithRetryBackoff(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.retryBackoff = d
	}
}

// WithClock 替换时钟，测试用
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		c.now = now
	}
}

// NewCoordinator 创建流水线协调器
func NewCoordinator(
	normalizer DocumentNormalizer,
	extractor ResumeExtractor,
	scorer Scorer,
	suggester Suggester,
	store ResumeStore,
	blobs BlobStore,
	cache CacheStore,
	publisher EventPublisher,
	options ...CoordinatorOption,
) *Coordinator {
	c := &Coordinator{
		normalizer:      normalizer,
		extractor:       extractor,
		scorer:          scorer,
		suggester:       suggester,
		store:           store,
		blobs:           blobs,
		cache:           cache,
		publisher:       publisher,
		registry:        NewRegistry(),
		providerTimeout: 60 * time.Second,
		retryBackoff:    2 * time.Second,
		log:             logger.With("coordinator"),
		now:             time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// hashBytes SHA-256十六进制摘要
func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// hashString 字符串的SHA-256十六进制摘要
func hashString(s string) string {
	return hashBytes([]byte(s))
}

// AnalysisCacheKey 分析缓存键，由内容哈希与JD哈希派生。
// 空JD的哈希是空串的哈希，确保纯ATS评分也有稳定缓存键。
func AnalysisCacheKey(contentHash, jdHash string) string {
	return hashString(contentHash + jdHash)
}

//
// Upload
//

// Upload 接收上传的简历文件，建立简历身份并保存原始字节。
// 不触发任何提取或分析。
func (c *Coordinator) Upload(ctx context.Context, ownerID string, fileType types.FileType, data []byte) (*types.Resume, error) {
	if !fileType.IsSupported() {
		return nil, NewUnsupportedFormatError("", fmt.Sprintf("声明类型: %s", fileType))
	}
	if len(data) == 0 {
		return nil, NewCorruptDocumentError("", "文件内容为空")
	}

	resume := &types.Resume{
		ResumeID:    uuid.NewString(),
		OwnerID:     ownerID,
		FileType:    fileType,
		ContentHash: hashBytes(data),
		CreatedAt:   c.now(),
	}

	rawPath, err := c.blobs.PutRaw(ctx, resume.ResumeID, fileType, data)
	if err != nil {
		return nil, fmt.Errorf("保存原始文件失败: %w", err)
	}
	resume.RawPath = rawPath

	if err := c.store.SaveResume(ctx, resume, constants.StatusPending); err != nil {
		return nil, fmt.Errorf("持久化简历记录失败: %w", err)
	}

	c.log.Info().Str("resume_id", resume.ResumeID).Str("file_type", string(fileType)).Msg("简历上传完成")
	return resume, nil
}

//
// Extract
//

// extractOutcome 提取作业的共享结果
type extractOutcome struct {
	structured *types.StructuredResume
	status     types.ResultStatus
}

// Extract 执行结构化提取。force 为 false 时优先复用已有结果与缓存；
// 重新提取是显式覆盖，只能由 force 触发。
func (c *Coordinator) Extract(ctx context.Context, resumeID string, force bool) (*types.StructuredResume, types.ResultStatus, error) {
	resume, status, err := c.store.GetResume(ctx, resumeID)
	if err != nil {
		return nil, "", err
	}
	if resume == nil {
		return nil, "", &PipelineError{ResumeID: resumeID, Stage: "extract", BaseErr: ErrResumeNotFound}
	}

	if resume.Structured != nil && !force {
		return resume.Structured, types.StatusCached, nil
	}

	val, shared, err := c.registry.Do(ctx, "extract:"+resumeID, func() (interface{}, error) {
		return c.runExtract(ctx, resume, status, force)
	})
	if err != nil {
		return nil, "", err
	}
	outcome := val.(*extractOutcome)
	if shared {
		c.log.Debug().Str("resume_id", resumeID).Msg("提取作业在途，复用其结果")
	}
	return outcome.structured, outcome.status, nil
}

// runExtract 单次提取作业
func (c *Coordinator) runExtract(ctx context.Context, resume *types.Resume, status string, force bool) (*extractOutcome, error) {
	resumeID := resume.ResumeID

	// 内容哈希缓存：同样内容的文件不重复调用提取服务
	if !force {
		cached, err := c.cache.GetExtraction(ctx, resume.ContentHash)
		if err != nil {
			c.log.Warn().Err(err).Str("resume_id", resumeID).Msg("读取提取缓存失败")
		}
		if cached != nil {
			if err := c.finishExtract(ctx, resumeID, cached, nil, ""); err != nil {
				return nil, err
			}
			return &extractOutcome{structured: cached, status: types.StatusCached}, nil
		}
	}

	if !constants.IsStatusAllowed(status, constants.AllowedStatusesForExtraction) {
		return nil, &PipelineError{ResumeID: resumeID, Stage: "extract", BaseErr: ErrResumeBusy, Detail: "当前状态: " + status}
	}
	if err := c.store.UpdateStatus(ctx, resumeID, constants.StatusExtracting); err != nil {
		return nil, fmt.Errorf("更新状态失败: %w", err)
	}

	data, err := c.blobs.GetRaw(ctx, resume.RawPath)
	if err != nil {
		c.markFailed(ctx, resumeID)
		return nil, fmt.Errorf("读取原始文件失败: %w", err)
	}

	doc, err := c.normalizer.Normalize(ctx, resumeID, data, resume.FileType)
	if err != nil {
		c.markFailed(ctx, resumeID)
		return nil, err
	}

	var structured *types.StructuredResume
	if doc.NeedsOCR() {
		// OCR能力未接入，给出空的部分结构而不是失败
		structured = &types.StructuredResume{
			Partial:  true,
			Warnings: append(doc.Warnings, "OCR能力未接入，无法提取扫描件内容"),
		}
	} else {
		structured, err = callWithRetry(ctx, c.providerTimeout, c.retryBackoff, isProviderUnavailable,
			func(cctx context.Context) (*types.StructuredResume, error) {
				return c.extractor.Extract(cctx, doc.Text)
			})
		if err != nil {
			c.markFailed(ctx, resumeID)
			return nil, err
		}
		structured.Warnings = append(structured.Warnings, doc.Warnings...)
	}

	textPath := ""
	if doc.Text != "" {
		textPath, err = c.blobs.PutNormalizedText(ctx, resumeID, doc.Text)
		if err != nil {
			c.log.Warn().Err(err).Str("resume_id", resumeID).Msg("保存归一化文本失败")
		}
	}

	if err := c.finishExtract(ctx, resumeID, structured, &doc.Stats, textPath); err != nil {
		return nil, err
	}
	if !structured.Partial {
		if err := c.cache.SetExtraction(ctx, resume.ContentHash, structured); err != nil {
			c.log.Warn().Err(err).Str("resume_id", resumeID).Msg("写入提取缓存失败")
		}
	}

	resultStatus := types.StatusComputed
	if structured.Partial {
		resultStatus = types.StatusPartial
	}
	return &extractOutcome{structured: structured, status: resultStatus}, nil
}

// finishExtract 落库并推进状态到 EXTRACTED，发布提取完成事件
func (c *Coordinator) finishExtract(ctx context.Context, resumeID string, structured *types.StructuredResume, stats *types.FormatStats, textPath string) error {
	if err := c.store.UpdateStructured(ctx, resumeID, structured, stats, textPath); err != nil {
		c.markFailed(ctx, resumeID)
		return fmt.Errorf("保存结构化结果失败: %w", err)
	}
	if err := c.store.UpdateStatus(ctx, resumeID, constants.StatusExtracted); err != nil {
		return fmt.Errorf("更新状态失败: %w", err)
	}
	if err := c.publisher.PublishExtracted(ctx, resumeID); err != nil {
		// 事件发布失败不阻断主流程
		c.log.Warn().Err(err).Str("resume_id", resumeID).Msg("发布提取完成事件失败")
	}
	return nil
}

//
// Analyze
//

// Analyze 对已提取的简历评分。结果以 (内容哈希, JD哈希) 为键缓存，
// force 为 true 时强制重算并覆盖缓存。
func (c *Coordinator) Analyze(ctx context.Context, resumeID, jobDescription string, force bool) (*types.AnalysisResult, error) {
	resume, status, err := c.store.GetResume(ctx, resumeID)
	if err != nil {
		return nil, err
	}
	if resume == nil {
		return nil, &PipelineError{ResumeID: resumeID, Stage: "analyze", BaseErr: ErrResumeNotFound}
	}
	if resume.Structured == nil {
		return nil, &PipelineError{ResumeID: resumeID, Stage: "analyze", BaseErr: ErrResumeNotExtracted}
	}

	jdHash := hashString(jobDescription)
	cacheKey := AnalysisCacheKey(resume.ContentHash, jdHash)

	if !force {
		cached, err := c.cache.GetAnalysis(ctx, cacheKey)
		if err != nil {
			c.log.Warn().Err(err).Str("resume_id", resumeID).Msg("读取分析缓存失败")
		}
		if cached != nil {
			cached.Status = types.StatusCached
			return cached, nil
		}
	}

	val, _, err := c.registry.Do(ctx, "analyze:"+resumeID+":"+cacheKey, func() (interface{}, error) {
		return c.runAnalyze(ctx, resume, status, jobDescription, jdHash, cacheKey)
	})
	if err != nil {
		return nil, err
	}
	return val.(*types.AnalysisResult), nil
}

// runAnalyze 单次分析作业
func (c *Coordinator) runAnalyze(ctx context.Context, resume *types.Resume, status, jobDescription, jdHash, cacheKey string) (*types.AnalysisResult, error) {
	resumeID := resume.ResumeID

	if !constants.IsStatusAllowed(status, constants.AllowedStatusesForAnalysis) {
		return nil, &PipelineError{ResumeID: resumeID, Stage: "analyze", BaseErr: ErrResumeBusy, Detail: "当前状态: " + status}
	}
	if err := c.store.UpdateStatus(ctx, resumeID, constants.StatusAnalyzing); err != nil {
		return nil, fmt.Errorf("更新状态失败: %w", err)
	}

	result, err := callWithRetry(ctx, c.providerTimeout, c.retryBackoff, isProviderUnavailable,
		func(cctx context.Context) (*types.AnalysisResult, error) {
			return c.scorer.Score(cctx, resume.Structured, resume.FormatStats, jobDescription)
		})
	if err != nil {
		// 评分失败：进入FAILED但返回带警告的部分结果，提取阶段产物随结果回带
		c.markFailed(ctx, resumeID)
		return &types.AnalysisResult{
			ResumeID:    resumeID,
			JDHash:      jdHash,
			Status:      types.StatusPartial,
			Warnings:    []string{"评分服务不可用: " + err.Error()},
			EvaluatedAt: c.now(),
			Structured:  resume.Structured,
		}, nil
	}

	result.ResumeID = resumeID
	result.JDHash = jdHash
	result.ATSScore = types.ClampScore(result.ATSScore)
	if result.RoleMatch != nil {
		clamped := types.ClampScore(*result.RoleMatch)
		result.RoleMatch = &clamped
	}
	if result.Status == "" {
		result.Status = types.StatusComputed
	}
	result.EvaluatedAt = c.now()

	if err := c.store.SaveAnalysis(ctx, result); err != nil {
		c.markFailed(ctx, resumeID)
		return nil, fmt.Errorf("保存分析结果失败: %w", err)
	}
	if err := c.cache.SetAnalysis(ctx, cacheKey, result); err != nil {
		c.log.Warn().Err(err).Str("resume_id", resumeID).Msg("写入分析缓存失败")
	}
	if err := c.store.UpdateStatus(ctx, resumeID, constants.StatusAnalyzed); err != nil {
		return nil, fmt.Errorf("更新状态失败: %w", err)
	}
	if err := c.publisher.PublishAnalyzed(ctx, resumeID); err != nil {
		c.log.Warn().Err(err).Str("resume_id", resumeID).Msg("发布分析完成事件失败")
	}
	return result, nil
}

//
// Improve
//

// improveOutcome 改进建议作业的共享结果
type improveOutcome struct {
	suggestions []types.Improvement
	status      types.ResultStatus
}

// Improve 生成改进建议。jobDescription 用于定位既有分析结果，可为空。
// 建议永不修改简历本身。
func (c *Coordinator) Improve(ctx context.Context, resumeID, jobDescription string) ([]types.Improvement, types.ResultStatus, error) {
	resume, _, err := c.store.GetResume(ctx, resumeID)
	if err != nil {
		return nil, "", err
	}
	if resume == nil {
		return nil, "", &PipelineError{ResumeID: resumeID, Stage: "improve", BaseErr: ErrResumeNotFound}
	}
	if resume.Structured == nil {
		return nil, "", &PipelineError{ResumeID: resumeID, Stage: "improve", BaseErr: ErrResumeNotExtracted}
	}

	// 已有分析结果时建议会参考它，没有也能仅凭结构化简历生成
	var analysis *types.AnalysisResult
	cacheKey := AnalysisCacheKey(resume.ContentHash, hashString(jobDescription))
	if cached, cerr := c.cache.GetAnalysis(ctx, cacheKey); cerr == nil && cached != nil {
		analysis = cached
	}

	val, _, err := c.registry.Do(ctx, "improve:"+resumeID+":"+cacheKey, func() (interface{}, error) {
		return c.runImprove(ctx, resumeID, resume.Structured, analysis)
	})
	if err != nil {
		return nil, "", err
	}
	outcome := val.(*improveOutcome)
	return outcome.suggestions, outcome.status, nil
}

// runImprove 单次改进建议作业
func (c *Coordinator) runImprove(ctx context.Context, resumeID string, structured *types.StructuredResume, analysis *types.AnalysisResult) (*improveOutcome, error) {
	if err := c.store.UpdateStatus(ctx, resumeID, constants.StatusImproving); err != nil {
		return nil, fmt.Errorf("更新状态失败: %w", err)
	}

	type suggestResult struct {
		suggestions []types.Improvement
		degraded    bool
	}
	res, err := callWithRetry(ctx, c.providerTimeout, c.retryBackoff, isProviderUnavailable,
		func(cctx context.Context) (*suggestResult, error) {
			suggestions, degraded, serr := c.suggester.Suggest(cctx, structured, analysis)
			if serr != nil {
				return nil, serr
			}
			return &suggestResult{suggestions: suggestions, degraded: degraded}, nil
		})
	if err != nil {
		c.markFailed(ctx, resumeID)
		return nil, err
	}

	if err := c.store.SaveImprovements(ctx, resumeID, res.suggestions); err != nil {
		c.markFailed(ctx, resumeID)
		return nil, fmt.Errorf("保存改进建议失败: %w", err)
	}
	if err := c.store.UpdateStatus(ctx, resumeID, constants.StatusDone); err != nil {
		return nil, fmt.Errorf("更新状态失败: %w", err)
	}

	status := types.StatusComputed
	if res.degraded {
		status = types.StatusPartial
	}
	return &improveOutcome{suggestions: res.suggestions, status: status}, nil
}

//
// 公共辅助
//

// markFailed 进入FAILED终态。已完成阶段的产物保持原样，仅状态翻转
func (c *Coordinator) markFailed(ctx context.Context, resumeID string) {
	if err := c.store.UpdateStatus(ctx, resumeID, constants.StatusFailed); err != nil {
		c.log.Error().Err(err).Str("resume_id", resumeID).Msg("标记FAILED状态失败")
	}
}

// isProviderUnavailable 判断是否为可重试的传输类错误
func isProviderUnavailable(err error) bool {
	return errors.Is(err, ErrExtractionProviderUnavailable) ||
		errors.Is(err, ErrAnalysisProviderUnavailable) ||
		errors.Is(err, ErrImprovementProviderUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// callWithRetry 结果通道方式调用能力提供方：带超时挂起等待，迟到的结果直接丢弃；
// 传输类错误退避后重试一次。
func callWithRetry[T any](ctx context.Context, timeout, backoff time.Duration, retryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	val, err := callOnce(ctx, timeout, fn)
	if err == nil || !retryable(err) {
		return val, err
	}

	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	return callOnce(ctx, timeout, fn)
}

// callOnce 单次带超时的提供方调用
func callOnce[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}
	// 缓冲1：超时后提供方迟到的结果写入通道即被丢弃
	ch := make(chan outcome, 1)

	cctx, cancel := context.WithTimeout(ctx, timeout)
	go func() {
		defer cancel()
		v, err := fn(cctx)
		ch <- outcome{val: v, err: err}
	}()

	select {
	case o := <-ch:
		return o.val, o.err
	case <-cctx.Done():
		var zero T
		return zero, cctx.Err()
	}
}
