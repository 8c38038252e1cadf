package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-intel-go/internal/types"
)

const goodImprovementJSON = `[
  {"section": "EXPERIENCE", "category": "rewrite", "suggestion": "把「负责订单系统」改写为包含量化结果的描述", "original_text": "负责订单系统"},
  {"section": "SKILLS", "category": "skills", "suggestion": "补充 Kubernetes 相关经验"},
  {"section": "SUMMARY", "category": "layout", "suggestion": "将摘要压缩到三句以内"}
]`

func analysisWithMissing() *types.AnalysisResult {
	return &types.AnalysisResult{
		ResumeID:        "r-1",
		ATSScore:        70,
		ATSFeedback:     []string{"经历描述中缺少量化指标，建议补充数字化成果"},
		MissingKeywords: []string{"kubernetes", "terraform"},
	}
}

func TestSuggest_LLMPath(t *testing.T) {
	mock := &MockLLMModel{Responses: []string{goodImprovementJSON}}
	im := NewLLMImprover(mock)

	suggestions, degraded, err := im.Suggest(context.Background(), fullResume(), analysisWithMissing())
	require.NoError(t, err)
	assert.False(t, degraded)
	require.Len(t, suggestions, 3)

	// 命中缺失关键词的技能建议排最前
	assert.Equal(t, types.ImprovementSkills, suggestions[0].Category)
	assert.Equal(t, 1, suggestions[0].Rank)
	for i, s := range suggestions {
		assert.Equal(t, i+1, s.Rank)
	}
}

func TestSuggest_CapEnforced(t *testing.T) {
	mock := &MockLLMModel{Responses: []string{`[
  {"section": "SUMMARY", "category": "layout", "suggestion": "s1"},
  {"section": "SUMMARY", "category": "layout", "suggestion": "s2"},
  {"section": "SUMMARY", "category": "layout", "suggestion": "s3"}
]`}}
	im := NewLLMImprover(mock, WithMaxSuggestions(2))

	suggestions, degraded, err := im.Suggest(context.Background(), fullResume(), nil)
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Len(t, suggestions, 2)
}

func TestSuggest_HeuristicFallbackOnLLMError(t *testing.T) {
	mock := &MockLLMModel{Errs: []error{errors.New("connection refused")}}
	im := NewLLMImprover(mock)

	suggestions, degraded, err := im.Suggest(context.Background(), fullResume(), analysisWithMissing())
	require.NoError(t, err)
	assert.True(t, degraded)
	require.NotEmpty(t, suggestions)

	// 降级建议也要遵守排序规则：缺失关键词建议在前
	assert.Equal(t, types.ImprovementSkills, suggestions[0].Category)
	assert.Contains(t, suggestions[0].Suggestion, "kubernetes")
}

func TestSuggest_HeuristicFallbackOnGarbageOutput(t *testing.T) {
	mock := &MockLLMModel{Responses: []string{"这不是JSON"}}
	im := NewLLMImprover(mock)

	suggestions, degraded, err := im.Suggest(context.Background(), fullResume(), analysisWithMissing())
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.NotEmpty(t, suggestions)
}

func TestSuggest_InvalidCategoryNormalized(t *testing.T) {
	mock := &MockLLMModel{Responses: []string{`[
  {"section": "EXPERIENCE", "category": "magic", "suggestion": "某条建议"}
]`}}
	im := NewLLMImprover(mock)

	suggestions, _, err := im.Suggest(context.Background(), fullResume(), nil)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, types.ImprovementContext, suggestions[0].Category)
}

func TestSuggest_NeverMutatesResume(t *testing.T) {
	mock := &MockLLMModel{Responses: []string{goodImprovementJSON}}
	im := NewLLMImprover(mock)

	structured := fullResume()
	before := structured.FullText()
	_, _, err := im.Suggest(context.Background(), structured, analysisWithMissing())
	require.NoError(t, err)
	assert.Equal(t, before, structured.FullText())
}
