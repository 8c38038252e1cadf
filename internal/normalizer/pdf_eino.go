package normalizer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
	"github.com/rs/zerolog"

	"resume-intel-go/internal/logger"
	"resume-intel-go/internal/pipeline"
	"resume-intel-go/internal/types"
)

// EinoPDFTextExtractor 使用 Eino PDF Parser 提取文本
type EinoPDFTextExtractor struct {
	parser *pdf.PDFParser
	log    zerolog.Logger
}

// NewEinoPDFTextExtractor 初始化 Eino PDF 文本提取器
// 不按页面分割，获取整个文档的连续文本
func NewEinoPDFTextExtractor(ctx context.Context) (*EinoPDFTextExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 Eino PDF 解析器失败: %w", err)
	}

	return &EinoPDFTextExtractor{
		parser: p,
		log:    logger.With("pdf_extractor"),
	}, nil
}

// ExtractText 从 io.Reader 中提取PDF全文
func (e *EinoPDFTextExtractor) ExtractText(ctx context.Context, reader io.Reader, uri string) (string, error) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	docs, err := e.parser.Parse(ctx, reader, einoParser.WithURI(uri))
	duration := time.Since(startTime)
	if err != nil {
		e.log.Warn().Err(err).Str("uri", uri).Dur("elapsed", duration).Msg("PDF解析失败")
		return "", fmt.Errorf("eino PDF 解析失败 (URI %s): %w", uri, err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("eino PDF 解析无结果 (URI %s)", uri)
	}

	var full bytes.Buffer
	for i, doc := range docs {
		if i > 0 {
			full.WriteString("\n\n")
		}
		full.WriteString(doc.Content)
	}

	e.log.Debug().Str("uri", uri).Int("chars", full.Len()).Dur("elapsed", duration).Msg("PDF文本提取完成")
	return full.String(), nil
}

// normalizePDF PDF归一化路径：提取文本并收集版式统计。
// 文本为空的扫描件降级为页面图像占位，交给下游OCR。
func (n *Normalizer) normalizePDF(ctx context.Context, resumeID string, data []byte) (*types.NormalizedDocument, error) {
	text, err := n.pdf.ExtractText(ctx, bytes.NewReader(data), resumeID)
	if err != nil {
		return nil, pipeline.NewCorruptDocumentError(resumeID, err.Error())
	}

	doc := &types.NormalizedDocument{
		Text: text,
		Stats: types.FormatStats{
			Fonts:     extractPDFFontNames(data),
			PageCount: countPDFPages(data),
		},
	}

	if len(bytes.TrimSpace([]byte(text))) == 0 {
		// 无文本层的扫描件：原样保留字节作为页面图像，供OCR路径使用
		doc.Text = ""
		doc.PageImages = [][]byte{data}
		doc.Warnings = append(doc.Warnings, "PDF无文本层，需要OCR")
	}
	return doc, nil
}

var (
	baseFontPattern = regexp.MustCompile(`/BaseFont\s*/([A-Za-z0-9+\-,.]+)`)
	pageTypePattern = regexp.MustCompile(`/Type\s*/Page[^s]`)
)

// extractPDFFontNames 从原始字节中扫描 /BaseFont 条目，去除子集前缀并去重
func extractPDFFontNames(data []byte) []string {
	matches := baseFontPattern.FindAllSubmatch(data, -1)
	seen := make(map[string]struct{})
	var fonts []string
	for _, m := range matches {
		name := string(m[1])
		// 子集字体形如 "ABCDEF+Helvetica"，取加号后的真实字体名
		if idx := bytes.IndexByte([]byte(name), '+'); idx >= 0 && idx+1 < len(name) {
			name = name[idx+1:]
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		fonts = append(fonts, name)
	}
	return fonts
}

// countPDFPages 估算页数
func countPDFPages(data []byte) int {
	return len(pageTypePattern.FindAll(data, -1))
}
