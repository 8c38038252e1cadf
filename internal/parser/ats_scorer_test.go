package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-intel-go/internal/types"
)

// fullResume 覆盖所有计分项的结构化简历
func fullResume() *types.StructuredResume {
	longExperience := "负责核心交易系统，QPS提升40%。" + strings.Repeat("持续优化服务稳定性与性能表现。", 30)
	return &types.StructuredResume{
		Sections: []types.ResumeSection{
			{Type: types.SectionSummary, Content: "五年后端开发经验，专注高并发系统"},
			{Type: types.SectionExperience, Content: longExperience},
			{Type: types.SectionEducation, Content: "某大学 计算机科学学士"},
			{Type: types.SectionSkills, Content: "Go MySQL Redis Kafka Docker"},
			{Type: types.SectionProjects, Content: "开源项目维护者，" + strings.Repeat("实现了多个通用组件。", 10)},
		},
		Contact: types.ContactInfo{
			Email: "a@b.com",
			Phone: "13800138000",
			Links: []string{"https://www.linkedin.com/in/someone"},
		},
		Skills: []string{"Go", "MySQL", "Redis", "Kafka", "Docker"},
	}
}

func TestATSScore_FullMarks(t *testing.T) {
	s := NewATSScorer()
	stats := &types.FormatStats{Fonts: []string{"Calibri"}, BulletUsed: true}

	score, feedback := s.Score(fullResume(), stats)
	assert.Equal(t, 100, score)
	assert.Empty(t, feedback)
}

func TestATSScore_Deterministic(t *testing.T) {
	s := NewATSScorer()
	stats := &types.FormatStats{Fonts: []string{"Calibri"}, BulletUsed: true}

	first, _ := s.Score(fullResume(), stats)
	second, _ := s.Score(fullResume(), stats)
	assert.Equal(t, first, second)
}

func TestATSScore_MissingSectionsProduceFeedback(t *testing.T) {
	s := NewATSScorer()
	structured := &types.StructuredResume{
		Sections: []types.ResumeSection{
			{Type: types.SectionExperience, Content: "做过一些项目"},
		},
	}

	score, feedback := s.Score(structured, nil)
	assert.Less(t, score, 50)
	require.NotEmpty(t, feedback)
	assert.Contains(t, feedback, "缺少技能章节")
	assert.Contains(t, feedback, "缺少邮箱，招聘系统无法联系到你")
}

func TestATSScore_NeutralWhenNoFontData(t *testing.T) {
	s := NewATSScorer()
	base := fullResume()

	// 无字体数据时给中性分，不产生字体相关反馈
	score, feedback := s.Score(base, &types.FormatStats{BulletUsed: true})
	assert.Equal(t, 95, score)
	for _, fb := range feedback {
		assert.NotContains(t, fb, "字体")
	}
}

func TestATSScore_TooManyFonts(t *testing.T) {
	s := NewATSScorer()
	stats := &types.FormatStats{Fonts: []string{"A", "B", "C", "D"}, BulletUsed: true}

	score, feedback := s.Score(fullResume(), stats)
	assert.Equal(t, 95, score)
	found := false
	for _, fb := range feedback {
		if strings.Contains(fb, "字体") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestATSScore_ShortResumePenalized(t *testing.T) {
	s := NewATSScorer()
	structured := &types.StructuredResume{
		Sections: []types.ResumeSection{
			{Type: types.SectionSummary, Content: "简短摘要"},
			{Type: types.SectionExperience, Content: "QPS提升40%"},
			{Type: types.SectionEducation, Content: "本科"},
			{Type: types.SectionSkills, Content: "Go"},
			{Type: types.SectionProjects, Content: "项目"},
		},
		Contact: types.ContactInfo{Email: "a@b.com", Phone: "1", Links: []string{"linkedin.com/in/x"}},
		Skills:  []string{"Go", "MySQL", "Redis", "Kafka", "Docker"},
	}
	stats := &types.FormatStats{Fonts: []string{"Calibri"}, BulletUsed: true}

	score, feedback := s.Score(structured, stats)
	assert.Equal(t, 95, score)
	assert.Contains(t, feedback, "简历篇幅偏短，建议补充经历细节")
}

func TestCountWords_MixedLanguages(t *testing.T) {
	assert.Equal(t, 2, countWords("hello world"))
	// 中文按字符计数
	assert.Equal(t, 4, countWords("简历文本"))
	assert.Equal(t, 3, countWords("Go 语言"))
}
