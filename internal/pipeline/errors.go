package pipeline

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrUnsupportedFormat              = errors.New("不支持的文件格式")
	ErrCorruptDocument                = errors.New("文档损坏或无法解析")
	ErrExtractionProviderUnavailable  = errors.New("结构化提取服务不可用")
	ErrExtractionSchemaInvalid        = errors.New("结构化提取结果不符合约定格式")
	ErrAnalysisProviderUnavailable    = errors.New("评分分析服务不可用")
	ErrImprovementProviderUnavailable = errors.New("改进建议服务不可用")
	ErrEnrichmentUnavailable          = errors.New("外部数据服务不可用")
	ErrResumeNotFound                 = errors.New("简历不存在")
	ErrResumeNotExtracted             = errors.New("简历尚未完成结构化提取")
	ErrResumeBusy                     = errors.New("简历正在处理中")
)

// PipelineError 携带简历标识与失败阶段的自定义错误
type PipelineError struct {
	ResumeID string
	Stage    string
	BaseErr  error
	Detail   string
}

func (e *PipelineError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (阶段:%s, 简历:%s): %s", e.BaseErr, e.Stage, e.ResumeID, e.Detail)
	}
	return fmt.Sprintf("%s (阶段:%s, 简历:%s)", e.BaseErr, e.Stage, e.ResumeID)
}

func (e *PipelineError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *PipelineError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数

func NewUnsupportedFormatError(resumeID, detail string) error {
	return &PipelineError{
		ResumeID: resumeID,
		Stage:    "normalize",
		BaseErr:  ErrUnsupportedFormat,
		Detail:   detail,
	}
}

func NewCorruptDocumentError(resumeID, detail string) error {
	return &PipelineError{
		ResumeID: resumeID,
		Stage:    "normalize",
		BaseErr:  ErrCorruptDocument,
		Detail:   detail,
	}
}

func NewExtractionUnavailableError(resumeID, detail string) error {
	return &PipelineError{
		ResumeID: resumeID,
		Stage:    "extract",
		BaseErr:  ErrExtractionProviderUnavailable,
		Detail:   detail,
	}
}

func NewExtractionSchemaError(resumeID, detail string) error {
	return &PipelineError{
		ResumeID: resumeID,
		Stage:    "extract",
		BaseErr:  ErrExtractionSchemaInvalid,
		Detail:   detail,
	}
}

func NewAnalysisUnavailableError(resumeID, detail string) error {
	return &PipelineError{
		ResumeID: resumeID,
		Stage:    "analyze",
		BaseErr:  ErrAnalysisProviderUnavailable,
		Detail:   detail,
	}
}

func NewImprovementUnavailableError(resumeID, detail string) error {
	return &PipelineError{
		ResumeID: resumeID,
		Stage:    "improve",
		BaseErr:  ErrImprovementProviderUnavailable,
		Detail:   detail,
	}
}

func NewEnrichmentUnavailableError(userID, detail string) error {
	return &PipelineError{
		ResumeID: userID,
		Stage:    "enrich",
		BaseErr:  ErrEnrichmentUnavailable,
		Detail:   detail,
	}
}
