package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"resume-intel-go/internal/logger"
	"resume-intel-go/internal/pipeline"
	"resume-intel-go/internal/types"
)

// LLMResumeExtractor 结构化提取引擎：把归一化后的简历文本交给LLM，
// 产出规范的结构化简历。输出无法通过校验时先严格重试一次，
// 再失败则降级为启发式的部分结构。
type LLMResumeExtractor struct {
	llmModel       model.ToolCallingChatModel
	log            zerolog.Logger
	promptTemplate string
	timeout        time.Duration
}

// LLMExtractorOption 提取器的配置选项
type LLMExtractorOption func(*LLMResumeExtractor)

// WithExtractorPromptTemplate 自定义提示模板，模板需包含一个 %s 占位简历文本
func WithExtractorPromptTemplate(template string) LLMExtractorOption {
	return func(e *LLMResumeExtractor) {
		e.promptTemplate = template
	}
}

// WithExtractorTimeout 设置单次LLM调用超时
func WithExtractorTimeout(d time.Duration) LLMExtractorOption {
	return func(e *LLMResumeExtractor) {
		e.timeout = d
	}
}

// NewLLMResumeExtractor 创建结构化提取引擎
func NewLLMResumeExtractor(llmModel model.ToolCallingChatModel, options ...LLMExtractorOption) *LLMResumeExtractor {
	e := &LLMResumeExtractor{
		llmModel: llmModel,
		log:      logger.With("extractor"),
		timeout:  60 * time.Second,
	}
	for _, opt := range options {
		opt(e)
	}
	if e.promptTemplate == "" {
		e.generatePromptTemplate()
	}
	return e
}

// generatePromptTemplate 生成默认提示模板
func (e *LLMResumeExtractor) generatePromptTemplate() {
	e.promptTemplate = `请将下面的简历文本整理为结构化JSON，格式如下:
{
  "sections": [{"type": "SUMMARY|EXPERIENCE|EDUCATION|SKILLS|PROJECTS|OTHER", "title": "原文标题", "content": "章节原文内容"}],
  "contact": {"name": "", "email": "", "phone": "", "location": "", "links": []},
  "skills": ["技能1", "技能2"],
  "years_of_experience": 0
}

要求:
1. 只输出JSON，不要输出任何解释性文字。
2. 章节type只能取给定的六个枚举值，无法归类的内容放入OTHER。
3. contact中缺失的字段留空，不要编造。
4. skills去重，保留原文大小写。

简历文本:
%s`
}

// llmStructuredResume LLM输出的中间结构
type llmStructuredResume struct {
	Sections []struct {
		Type    string `json:"type"`
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"sections"`
	Contact struct {
		Name     string   `json:"name"`
		Email    string   `json:"email"`
		Phone    string   `json:"phone"`
		Location string   `json:"location"`
		Links    []string `json:"links"`
	} `json:"contact"`
	Skills          []string `json:"skills"`
	YearsExperience float64  `json:"years_of_experience"`
}

// Extract 从归一化文本中提取结构化简历。
// 返回的错误只会是传输/鉴权类 (ErrExtractionProviderUnavailable)；
// 内容质量问题通过 Partial+Warnings 表达，不作为错误返回。
func (e *LLMResumeExtractor) Extract(ctx context.Context, content string) (*types.StructuredResume, error) {
	if e.llmModel == nil {
		return nil, fmt.Errorf("LLMResumeExtractor: llmModel 未初始化")
	}
	if strings.TrimSpace(content) == "" {
		return nil, pipeline.NewExtractionSchemaError("", "简历文本为空")
	}

	structured, err := e.extractOnce(ctx, content, false)
	if err == nil {
		structured.RawText = content
		return structured, nil
	}
	if isTransportError(err) {
		return nil, err
	}

	// 第一次输出不合格，追加严格指令重试一次
	e.log.Warn().Err(err).Msg("首次提取结果不合格，严格重试")
	structured, retryErr := e.extractOnce(ctx, content, true)
	if retryErr == nil {
		structured.RawText = content
		return structured, nil
	}
	if isTransportError(retryErr) {
		return nil, retryErr
	}

	// 两次都不合格：降级为启发式部分结构
	e.log.Warn().Err(retryErr).Msg("严格重试仍不合格，降级为启发式提取")
	fallback := heuristicExtract(content)
	fallback.Warnings = append(fallback.Warnings, "LLM提取结果不可用，已降级为启发式部分结构")
	return fallback, nil
}

// extractOnce 单次LLM调用与解析
func (e *LLMResumeExtractor) extractOnce(ctx context.Context, content string, strict bool) (*types.StructuredResume, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	systemMsg := "你是一个简历解析助手，负责把纯文本简历整理为结构化JSON。"
	userPrompt := fmt.Sprintf(e.promptTemplate, content)
	if strict {
		userPrompt += "\n\n注意: 上一次输出未能通过JSON校验。本次必须输出严格合法的JSON对象，第一个字符为 {，最后一个字符为 }。"
	}

	messages := []*einoschema.Message{
		einoschema.SystemMessage(systemMsg),
		einoschema.UserMessage(userPrompt),
	}

	response, err := e.llmModel.Generate(ctx, messages)
	if err != nil {
		return nil, pipeline.NewExtractionUnavailableError("", err.Error())
	}
	if response == nil || response.Content == "" {
		return nil, fmt.Errorf("LLM返回空响应")
	}

	processed := strings.TrimPrefix(response.Content, "\uFEFF")
	jsonStr := extractJSONFromResponse(processed)
	if jsonStr == "" {
		return nil, fmt.Errorf("无法从LLM响应中提取JSON: %.200s", processed)
	}
	if !utf8.ValidString(jsonStr) {
		jsonStr = strings.ToValidUTF8(jsonStr, "")
	}

	var raw llmStructuredResume
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		// 解析失败，自动修复再试一次
		fixed := sanitizeJSON(jsonStr)
		if jsonErr := json.Unmarshal([]byte(fixed), &raw); jsonErr != nil {
			return nil, fmt.Errorf("JSON反序列化失败: %w (修复后: %v)", err, jsonErr)
		}
	}

	structured := convertStructuredResume(&raw)
	if err := validateStructuredResume(structured); err != nil {
		return nil, err
	}
	return structured, nil
}

// convertStructuredResume 将LLM中间结构转为规范结构，收敛章节类型并去重技能
func convertStructuredResume(raw *llmStructuredResume) *types.StructuredResume {
	out := &types.StructuredResume{
		Contact: types.ContactInfo{
			Name:     strings.TrimSpace(raw.Contact.Name),
			Email:    strings.TrimSpace(raw.Contact.Email),
			Phone:    strings.TrimSpace(raw.Contact.Phone),
			Location: strings.TrimSpace(raw.Contact.Location),
			Links:    raw.Contact.Links,
		},
		YearsExperience: raw.YearsExperience,
	}

	for _, sec := range raw.Sections {
		content := strings.TrimSpace(sec.Content)
		if content == "" {
			continue
		}
		out.Sections = append(out.Sections, types.ResumeSection{
			Type:    types.NormalizeSectionType(strings.ToUpper(strings.TrimSpace(sec.Type))),
			Title:   strings.TrimSpace(sec.Title),
			Content: content,
		})
	}

	seen := make(map[string]struct{})
	for _, skill := range raw.Skills {
		skill = strings.TrimSpace(skill)
		if skill == "" {
			continue
		}
		key := strings.ToLower(skill)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out.Skills = append(out.Skills, skill)
	}
	return out
}

// validateStructuredResume 校验结构化结果的最低要求
func validateStructuredResume(sr *types.StructuredResume) error {
	if len(sr.Sections) == 0 {
		return fmt.Errorf("结构化结果不含任何非空章节")
	}
	return nil
}

// isTransportError 判断是否为传输/鉴权类错误
func isTransportError(err error) bool {
	return errors.Is(err, pipeline.ErrExtractionProviderUnavailable)
}

// extractJSONFromResponse 用括号配对从文本中提取第一个完整JSON对象
func extractJSONFromResponse(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	for i := start; i < len(text); i++ {
		if text[i] == '{' {
			level++
		} else if text[i] == '}' {
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// sanitizeJSON 会遍历 src，将位于字符串字面量内部但并非真正结束的双引号改写为 \"，
// 通过检查下一个非空白字符是否为 :, ], }, 或 , 来判断该 " 是否为字符串结束。
func sanitizeJSON(src string) string {
	var b strings.Builder
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		if c == '"' && !escaped {
			if !inStr {
				inStr = true
				b.WriteByte(c)
			} else {
				j := i + 1
				for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
					j++
				}
				if j < len(src) && (src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}') {
					inStr = false
					b.WriteByte(c)
				} else {
					b.WriteString("\\\"")
				}
			}
			escaped = false
		} else if c == '\\' && !escaped {
			escaped = true
			b.WriteByte(c)
		} else {
			b.WriteByte(c)
			escaped = false
		}
	}

	return b.String()
}
