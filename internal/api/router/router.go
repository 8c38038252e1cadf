package router

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"

	"resume-intel-go/internal/api/handler"
	"resume-intel-go/internal/config"
	"resume-intel-go/internal/pipeline"
)

// analyzeRequest 评分分析请求体
type analyzeRequest struct {
	JobDescription string `json:"job_description"`
	Force          bool   `json:"force"`
}

// improveRequest 改进建议请求体
type improveRequest struct {
	JobDescription string `json:"job_description"`
}

// RegisterRoutes 注册所有API路由
func RegisterRoutes(h *server.Hertz, cfg *config.Config, ph *handler.PipelineHandler) {
	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	v1 := h.Group("/api/v1")
	if len(cfg.Server.APIKeys) > 0 {
		v1.Use(apiKeyMiddleware(cfg.Server.APIKeys))
	}

	v1.POST("/resumes", func(ctx context.Context, c *app.RequestContext) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(consts.StatusBadRequest, utils.H{"error": "缺少file表单字段"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(consts.StatusBadRequest, utils.H{"error": "无法读取上传文件"})
			return
		}
		defer file.Close()

		resp, err := ph.HandleUpload(ctx, file,
			fileHeader.Filename,
			c.PostForm("file_type"),
			c.PostForm("owner_id"),
		)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(consts.StatusAccepted, resp)
	})

	v1.POST("/resumes/:resume_id/extract", func(ctx context.Context, c *app.RequestContext) {
		resp, err := ph.HandleExtract(ctx, c.Param("resume_id"), c.Query("force") == "true")
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(consts.StatusOK, resp)
	})

	v1.POST("/resumes/:resume_id/analysis", func(ctx context.Context, c *app.RequestContext) {
		var req analyzeRequest
		if err := c.BindJSON(&req); err != nil && len(c.Request.Body()) > 0 {
			c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体不是合法JSON"})
			return
		}
		resp, err := ph.HandleAnalyze(ctx, c.Param("resume_id"), req.JobDescription, req.Force)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(consts.StatusOK, resp)
	})

	v1.POST("/resumes/:resume_id/improvements", func(ctx context.Context, c *app.RequestContext) {
		var req improveRequest
		if err := c.BindJSON(&req); err != nil && len(c.Request.Body()) > 0 {
			c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体不是合法JSON"})
			return
		}
		resp, err := ph.HandleImprove(ctx, c.Param("resume_id"), req.JobDescription)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(consts.StatusOK, resp)
	})

	v1.GET("/enrichment/:source/:user_id", func(ctx context.Context, c *app.RequestContext) {
		stats, err := ph.HandleEnrichment(ctx,
			c.Param("user_id"),
			c.Param("source"),
			c.Query("handle"),
			c.Query("refresh") == "true",
		)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(consts.StatusOK, stats)
	})
}

// apiKeyMiddleware 基于 X-API-Key 请求头的静态密钥校验
func apiKeyMiddleware(keys []string) app.HandlerFunc {
	allowed := make(map[string]bool, len(keys))
	for _, k := range keys {
		allowed[k] = true
	}
	return keyauth.New(
		keyauth.WithKeyLookUp("header:X-API-Key", ""),
		keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
			return allowed[key], nil
		}),
	)
}

// writeError 把领域错误映射到HTTP状态码
func writeError(c *app.RequestContext, err error) {
	c.JSON(statusForError(err), utils.H{"error": err.Error()})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrUnsupportedFormat),
		errors.Is(err, pipeline.ErrCorruptDocument):
		return consts.StatusBadRequest
	case errors.Is(err, pipeline.ErrResumeNotFound):
		return consts.StatusNotFound
	case errors.Is(err, pipeline.ErrResumeBusy),
		errors.Is(err, pipeline.ErrResumeNotExtracted):
		return consts.StatusConflict
	case errors.Is(err, pipeline.ErrExtractionProviderUnavailable),
		errors.Is(err, pipeline.ErrAnalysisProviderUnavailable),
		errors.Is(err, pipeline.ErrImprovementProviderUnavailable),
		errors.Is(err, pipeline.ErrEnrichmentUnavailable):
		return consts.StatusServiceUnavailable
	default:
		return consts.StatusInternalServerError
	}
}
