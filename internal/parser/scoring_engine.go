package parser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"resume-intel-go/internal/types"
)

// ScoringEngine 评分引擎：组合ATS合规评分与JD关键词匹配。
// 完全确定性，相同输入永远产出相同分数。
type ScoringEngine struct {
	ats     *ATSScorer
	matcher *KeywordMatcher
}

// NewScoringEngine 创建评分引擎
func NewScoringEngine() *ScoringEngine {
	return &ScoringEngine{
		ats:     NewATSScorer(),
		matcher: NewKeywordMatcher(),
	}
}

// Score 对结构化简历评分。jobDescription 为空时只做ATS合规评分，
// RoleMatch 保持为nil以区分「未评估」与「零匹配」。
func (s *ScoringEngine) Score(ctx context.Context, structured *types.StructuredResume, stats *types.FormatStats, jobDescription string) (*types.AnalysisResult, error) {
	if structured == nil {
		return nil, fmt.Errorf("ScoringEngine: structured 不能为空")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	atsScore, feedback := s.ats.Score(structured, stats)
	result := &types.AnalysisResult{
		ATSScore:    atsScore,
		ATSFeedback: feedback,
		Status:      types.StatusComputed,
		EvaluatedAt: time.Now(),
	}

	if strings.TrimSpace(jobDescription) != "" {
		// 技能列表并入匹配语料，技能章节缺失时也能命中
		corpus := structured.FullText() + "\n" + strings.Join(structured.Skills, " ")
		match := s.matcher.Match(jobDescription, corpus)
		roleMatch := types.ClampScore(match.RoleMatch)
		result.RoleMatch = &roleMatch
		result.MatchedKeywords = match.Matched
		result.MissingKeywords = match.Missing
	}

	if structured.Partial {
		result.Warnings = append(result.Warnings, "评分基于部分提取结果，可能偏低")
	}
	return result, nil
}
