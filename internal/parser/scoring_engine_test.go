package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-intel-go/internal/types"
)

func TestScoringEngine_WithoutJD(t *testing.T) {
	engine := NewScoringEngine()
	stats := &types.FormatStats{Fonts: []string{"Calibri"}, BulletUsed: true}

	result, err := engine.Score(context.Background(), fullResume(), stats, "")
	require.NoError(t, err)

	assert.Equal(t, 100, result.ATSScore)
	// 无JD时不做岗位匹配
	assert.Nil(t, result.RoleMatch)
	assert.Empty(t, result.MatchedKeywords)
	assert.Empty(t, result.MissingKeywords)
}

func TestScoringEngine_MissingKeywordsCaseInsensitive(t *testing.T) {
	engine := NewScoringEngine()
	structured := &types.StructuredResume{
		Sections: []types.ResumeSection{
			{Type: types.SectionExperience, Content: "Built services with golang and redis"},
		},
		Skills: []string{"Golang", "Redis"},
	}
	jd := "Looking for Golang, Redis, Docker and Kubernetes"

	result, err := engine.Score(context.Background(), structured, nil, jd)
	require.NoError(t, err)
	require.NotNil(t, result.RoleMatch)

	assert.ElementsMatch(t, []string{"golang", "redis"}, result.MatchedKeywords)
	assert.ElementsMatch(t, []string{"docker", "kubernetes"}, result.MissingKeywords)
	assert.Equal(t, 50, *result.RoleMatch)
}

func TestScoringEngine_PartialExtractionWarned(t *testing.T) {
	engine := NewScoringEngine()
	structured := &types.StructuredResume{
		Sections: []types.ResumeSection{{Type: types.SectionOther, Content: "一些内容"}},
		Partial:  true,
	}

	result, err := engine.Score(context.Background(), structured, nil, "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Warnings)
}

func TestScoringEngine_NilStructured(t *testing.T) {
	engine := NewScoringEngine()
	_, err := engine.Score(context.Background(), nil, nil, "")
	require.Error(t, err)
}
