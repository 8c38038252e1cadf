package normalizer

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"resume-intel-go/internal/logger"
	"resume-intel-go/internal/pipeline"
	"resume-intel-go/internal/types"
)

// Normalizer 文档归一化器：把上传的原始字节转换为纯文本或页面图像。
// 纯转换组件，不落库、不访问网络。
type Normalizer struct {
	pdf *EinoPDFTextExtractor
	log zerolog.Logger
}

// Option 归一化器的配置选项
type Option func(*Normalizer)

// WithLogger 替换默认logger
func WithLogger(l zerolog.Logger) Option {
	return func(n *Normalizer) {
		n.log = l
	}
}

// New 创建归一化器，内部初始化PDF解析器
func New(ctx context.Context, options ...Option) (*Normalizer, error) {
	pdfExtractor, err := NewEinoPDFTextExtractor(ctx)
	if err != nil {
		return nil, fmt.Errorf("初始化PDF解析器失败: %w", err)
	}

	n := &Normalizer{
		pdf: pdfExtractor,
		log: logger.With("normalizer"),
	}
	for _, opt := range options {
		opt(n)
	}
	return n, nil
}

// Normalize 将原始字节归一化为 NormalizedDocument。
// 声明类型不在支持集合内返回 ErrUnsupportedFormat；
// 字节与声明类型不符或无法解析返回 ErrCorruptDocument。
func (n *Normalizer) Normalize(ctx context.Context, resumeID string, data []byte, declared types.FileType) (*types.NormalizedDocument, error) {
	if !declared.IsSupported() {
		return nil, pipeline.NewUnsupportedFormatError(resumeID, fmt.Sprintf("声明类型: %s", declared))
	}
	if len(data) == 0 {
		return nil, pipeline.NewCorruptDocumentError(resumeID, "文件内容为空")
	}

	sniffed := sniffFileType(data)
	if sniffed != declared {
		n.log.Warn().Str("resume_id", resumeID).
			Str("declared", string(declared)).Str("sniffed", string(sniffed)).
			Msg("文件内容与声明类型不符")
		return nil, pipeline.NewCorruptDocumentError(resumeID,
			fmt.Sprintf("声明类型 %s 与实际内容不符", declared))
	}

	var (
		doc *types.NormalizedDocument
		err error
	)
	switch declared {
	case types.FileTypePDF:
		doc, err = n.normalizePDF(ctx, resumeID, data)
	case types.FileTypeDOCX:
		doc, err = n.normalizeDOCX(resumeID, data)
	case types.FileTypeImage:
		doc, err = n.normalizeImage(resumeID, data)
	default:
		return nil, pipeline.NewUnsupportedFormatError(resumeID, fmt.Sprintf("声明类型: %s", declared))
	}
	if err != nil {
		return nil, err
	}

	doc.Stats.BulletUsed = detectBullets(doc.Text)
	n.log.Debug().Str("resume_id", resumeID).
		Int("text_len", len(doc.Text)).
		Int("page_images", len(doc.PageImages)).
		Bool("bullet_used", doc.Stats.BulletUsed).
		Msg("文档归一化完成")
	return doc, nil
}

// sniffFileType 通过文件头识别实际类型，识别不出时返回空串
func sniffFileType(data []byte) types.FileType {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return types.FileTypePDF
	case bytes.HasPrefix(data, []byte{0x50, 0x4B, 0x03, 0x04}):
		// ZIP容器，docx是其中一种；具体校验在docx路径里做
		return types.FileTypeDOCX
	case bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47}),
		bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return types.FileTypeImage
	}
	return types.FileType("")
}

// bulletMarkers 常见的项目符号前缀
var bulletMarkers = []string{"•", "◦", "▪", "- ", "* ", "– "}

// detectBullets 判断文本中是否使用了项目符号
func detectBullets(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		for _, marker := range bulletMarkers {
			if strings.HasPrefix(trimmed, marker) {
				return true
			}
		}
	}
	return false
}
