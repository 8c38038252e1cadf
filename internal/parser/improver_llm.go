package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"resume-intel-go/internal/logger"
	"resume-intel-go/internal/types"
)

// LLMImprover 改进建议生成器：基于结构化简历与分析结果产出分章节的改进建议。
// LLM不可用或输出不可解析时降级为确定性的启发式建议，绝不修改简历本身。
type LLMImprover struct {
	llmModel       model.ToolCallingChatModel
	log            zerolog.Logger
	timeout        time.Duration
	maxSuggestions int
}

// LLMImproverOption 建议生成器的配置选项
type LLMImproverOption func(*LLMImprover)

// WithImproverTimeout 设置单次LLM调用超时
func WithImproverTimeout(d time.Duration) LLMImproverOption {
	return func(im *LLMImprover) {
		im.timeout = d
	}
}

// WithMaxSuggestions 设置建议条数上限
func WithMaxSuggestions(n int) LLMImproverOption {
	return func(im *LLMImprover) {
		if n > 0 {
			im.maxSuggestions = n
		}
	}
}

// NewLLMImprover 创建改进建议生成器
func NewLLMImprover(llmModel model.ToolCallingChatModel, options ...LLMImproverOption) *LLMImprover {
	im := &LLMImprover{
		llmModel:       llmModel,
		log:            logger.With("improver"),
		timeout:        60 * time.Second,
		maxSuggestions: 5,
	}
	for _, opt := range options {
		opt(im)
	}
	return im
}

// llmImprovement LLM输出的中间结构
type llmImprovement struct {
	Section      string `json:"section"`
	Category     string `json:"category"`
	Suggestion   string `json:"suggestion"`
	OriginalText string `json:"original_text"`
}

// validCategories 建议类别枚举
var validCategories = map[string]types.ImprovementCategory{
	"layout":  types.ImprovementLayout,
	"rewrite": types.ImprovementRewrite,
	"skills":  types.ImprovementSkills,
	"context": types.ImprovementContext,
}

// Suggest 生成改进建议。返回值 degraded 为 true 表示LLM不可用、
// 结果来自启发式降级。建议按重要性排序并截断到上限。
func (im *LLMImprover) Suggest(ctx context.Context, structured *types.StructuredResume, analysis *types.AnalysisResult) ([]types.Improvement, bool, error) {
	if structured == nil {
		return nil, false, fmt.Errorf("LLMImprover: structured 不能为空")
	}

	suggestions, err := im.suggestViaLLM(ctx, structured, analysis)
	if err != nil {
		im.log.Warn().Err(err).Msg("LLM建议生成失败，降级为启发式建议")
		heuristic := im.heuristicSuggestions(structured, analysis)
		return im.rankAndCap(heuristic, structured, analysis), true, nil
	}
	return im.rankAndCap(suggestions, structured, analysis), false, nil
}

// suggestViaLLM 通过LLM生成建议
func (im *LLMImprover) suggestViaLLM(ctx context.Context, structured *types.StructuredResume, analysis *types.AnalysisResult) ([]types.Improvement, error) {
	if im.llmModel == nil {
		return nil, fmt.Errorf("llmModel 未初始化")
	}

	ctx, cancel := context.WithTimeout(ctx, im.timeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString("请针对以下简历给出改进建议，输出JSON数组，每个元素形如:\n")
	sb.WriteString(`{"section": "SUMMARY|EXPERIENCE|EDUCATION|SKILLS|PROJECTS|OTHER", "category": "layout|rewrite|skills|context", "suggestion": "具体建议", "original_text": "建议针对的原文片段"}`)
	sb.WriteString("\n\n只输出JSON数组，建议要具体可执行。\n\n简历内容:\n")
	sb.WriteString(structured.FullText())

	if analysis != nil {
		if len(analysis.ATSFeedback) > 0 {
			sb.WriteString("\n\n已发现的合规问题:\n")
			for _, fb := range analysis.ATSFeedback {
				sb.WriteString("- " + fb + "\n")
			}
		}
		if len(analysis.MissingKeywords) > 0 {
			sb.WriteString("\n岗位描述要求但简历缺失的关键词: ")
			sb.WriteString(strings.Join(analysis.MissingKeywords, ", "))
		}
	}

	messages := []*einoschema.Message{
		einoschema.SystemMessage("你是一位资深简历顾问，负责给出具体、分章节的简历改进建议。"),
		einoschema.UserMessage(sb.String()),
	}

	response, err := im.llmModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("LLM调用失败: %w", err)
	}
	if response == nil || response.Content == "" {
		return nil, fmt.Errorf("LLM返回空响应")
	}

	jsonStr := extractJSONArrayFromResponse(strings.TrimPrefix(response.Content, "\uFEFF"))
	if jsonStr == "" {
		return nil, fmt.Errorf("无法从LLM响应中提取JSON数组: %.200s", response.Content)
	}
	if !utf8.ValidString(jsonStr) {
		jsonStr = strings.ToValidUTF8(jsonStr, "")
	}

	var raw []llmImprovement
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		fixed := sanitizeJSON(jsonStr)
		if jsonErr := json.Unmarshal([]byte(fixed), &raw); jsonErr != nil {
			return nil, fmt.Errorf("JSON反序列化失败: %w", err)
		}
	}

	var out []types.Improvement
	for _, r := range raw {
		suggestion := strings.TrimSpace(r.Suggestion)
		if suggestion == "" {
			continue
		}
		category, ok := validCategories[strings.ToLower(strings.TrimSpace(r.Category))]
		if !ok {
			category = types.ImprovementContext
		}
		out = append(out, types.Improvement{
			Section:      types.NormalizeSectionType(strings.ToUpper(strings.TrimSpace(r.Section))),
			Category:     category,
			Suggestion:   suggestion,
			OriginalText: strings.TrimSpace(r.OriginalText),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("LLM未给出任何有效建议")
	}
	return out, nil
}

// heuristicSuggestions 确定性降级建议：由分析反馈与缺失关键词推导
func (im *LLMImprover) heuristicSuggestions(structured *types.StructuredResume, analysis *types.AnalysisResult) []types.Improvement {
	var out []types.Improvement

	if analysis != nil && len(analysis.MissingKeywords) > 0 {
		out = append(out, types.Improvement{
			Section:    types.SectionSkills,
			Category:   types.ImprovementSkills,
			Suggestion: "岗位描述中的关键词未在简历中出现，如确有相关经验请补充: " + strings.Join(analysis.MissingKeywords, ", "),
		})
	}

	if analysis != nil {
		for _, fb := range analysis.ATSFeedback {
			out = append(out, types.Improvement{
				Section:    feedbackSection(fb),
				Category:   feedbackCategory(fb),
				Suggestion: fb,
			})
		}
	}

	if len(out) == 0 {
		// 没有任何分析线索时给出通用建议
		out = append(out, types.Improvement{
			Section:    types.SectionExperience,
			Category:   types.ImprovementRewrite,
			Suggestion: "建议用「动作 + 量化结果」的句式重写经历描述",
		})
	}
	return out
}

// feedbackCategory 由反馈文本推断建议类别
func feedbackCategory(feedback string) types.ImprovementCategory {
	switch {
	case strings.Contains(feedback, "技能"):
		return types.ImprovementSkills
	case strings.Contains(feedback, "量化") || strings.Contains(feedback, "篇幅"):
		return types.ImprovementRewrite
	case strings.Contains(feedback, "章节") || strings.Contains(feedback, "字体") || strings.Contains(feedback, "项目符号"):
		return types.ImprovementLayout
	}
	return types.ImprovementContext
}

// feedbackSection 由反馈文本推断目标章节
func feedbackSection(feedback string) types.SectionType {
	switch {
	case strings.Contains(feedback, "摘要"):
		return types.SectionSummary
	case strings.Contains(feedback, "工作经历") || strings.Contains(feedback, "量化"):
		return types.SectionExperience
	case strings.Contains(feedback, "教育"):
		return types.SectionEducation
	case strings.Contains(feedback, "技能"):
		return types.SectionSkills
	case strings.Contains(feedback, "项目经历"):
		return types.SectionProjects
	}
	return types.SectionOther
}

// rankAndCap 排序并截断建议，赋予从1开始的Rank。
// 优先级: 命中缺失关键词的技能建议 > 分析反馈相关 > 其余按文档章节顺序
func (im *LLMImprover) rankAndCap(suggestions []types.Improvement, structured *types.StructuredResume, analysis *types.AnalysisResult) []types.Improvement {
	sectionOrder := make(map[types.SectionType]int)
	for i, sec := range structured.Sections {
		if _, ok := sectionOrder[sec.Type]; !ok {
			sectionOrder[sec.Type] = i
		}
	}

	priority := func(imp types.Improvement) int {
		if analysis != nil && len(analysis.MissingKeywords) > 0 && imp.Category == types.ImprovementSkills {
			return 0
		}
		if analysis != nil {
			for i, fb := range analysis.ATSFeedback {
				if feedbackSection(fb) == imp.Section {
					return 1 + i
				}
			}
		}
		base := 1000
		if idx, ok := sectionOrder[imp.Section]; ok {
			base += idx
		} else {
			base += len(structured.Sections)
		}
		return base
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return priority(suggestions[i]) < priority(suggestions[j])
	})

	if len(suggestions) > im.maxSuggestions {
		suggestions = suggestions[:im.maxSuggestions]
	}
	for i := range suggestions {
		suggestions[i].Rank = i + 1
	}
	return suggestions
}

// extractJSONArrayFromResponse 用括号配对从文本中提取第一个完整JSON数组
func extractJSONArrayFromResponse(text string) string {
	start := strings.Index(text, "[")
	if start == -1 {
		return ""
	}
	level := 0
	for i := start; i < len(text); i++ {
		if text[i] == '[' {
			level++
		} else if text[i] == ']' {
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
