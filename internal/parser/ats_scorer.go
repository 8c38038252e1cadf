package parser

import (
	"fmt"
	"regexp"
	"strings"

	"resume-intel-go/internal/types"
)

// ATSScorer 基于确定性规则的ATS合规评分器。
// 同一输入永远给出同一分数，分数范围 [0,100]。
//
// 分值构成:
//   核心章节覆盖  5×7 = 35
//   联系方式      15 (邮箱7 / 电话5 / LinkedIn 3)
//   量化成果      10
//   技能深度      10 (>=5项得10，>=1项得5)
//   版式一致性    10 (字体<=2得10，无字体数据中性5，>2得5)
//   项目符号      10
//   篇幅密度      10 (250-750词得10，否则5)
type ATSScorer struct{}

// NewATSScorer 创建ATS评分器
func NewATSScorer() *ATSScorer {
	return &ATSScorer{}
}

// coreSections 计入章节覆盖分的核心章节
var coreSections = []types.SectionType{
	types.SectionSummary,
	types.SectionExperience,
	types.SectionEducation,
	types.SectionSkills,
	types.SectionProjects,
}

// sectionMissFeedback 核心章节缺失时的反馈语
var sectionMissFeedback = map[types.SectionType]string{
	types.SectionSummary:    "缺少个人摘要章节，建议在开头加入2-3句概述",
	types.SectionExperience: "缺少工作经历章节",
	types.SectionEducation:  "缺少教育经历章节",
	types.SectionSkills:     "缺少技能章节",
	types.SectionProjects:   "缺少项目经历章节",
}

var quantifiedPattern = regexp.MustCompile(`\d+(\.\d+)?\s*(%|％|倍|万|亿|k|K|M|QPS|qps|ms)|(提升|降低|减少|增长|节省)\s*\d`)

// Score 对结构化简历打分，返回分数与逐项反馈
func (s *ATSScorer) Score(structured *types.StructuredResume, stats *types.FormatStats) (int, []string) {
	score := 0
	var feedback []string

	// 核心章节覆盖
	for _, st := range coreSections {
		if sec := structured.SectionByType(st); sec != nil && strings.TrimSpace(sec.Content) != "" {
			score += 7
		} else {
			feedback = append(feedback, sectionMissFeedback[st])
		}
	}

	// 联系方式
	if structured.Contact.Email != "" {
		score += 7
	} else {
		feedback = append(feedback, "缺少邮箱，招聘系统无法联系到你")
	}
	if structured.Contact.Phone != "" {
		score += 5
	} else {
		feedback = append(feedback, "缺少电话号码")
	}
	if hasLinkedIn(structured.Contact.Links) {
		score += 3
	} else {
		feedback = append(feedback, "建议附上LinkedIn或同类职业主页链接")
	}

	// 量化成果
	fullText := structured.FullText()
	if quantifiedPattern.MatchString(fullText) {
		score += 10
	} else {
		feedback = append(feedback, "经历描述中缺少量化指标，建议补充数字化成果")
	}

	// 技能深度
	switch {
	case len(structured.Skills) >= 5:
		score += 10
	case len(structured.Skills) >= 1:
		score += 5
		feedback = append(feedback, "技能列表偏少，建议列出至少5项相关技能")
	default:
		feedback = append(feedback, "未识别到任何技能项")
	}

	// 版式一致性，无字体数据时给中性分
	if stats == nil || len(stats.Fonts) == 0 {
		score += 5
	} else if len(stats.Fonts) <= 2 {
		score += 10
	} else {
		score += 5
		feedback = append(feedback, fmt.Sprintf("使用了%d种字体，建议控制在2种以内", len(stats.Fonts)))
	}

	// 项目符号
	if stats != nil && stats.BulletUsed {
		score += 10
	} else {
		feedback = append(feedback, "建议使用项目符号组织经历描述，提升可读性")
	}

	// 篇幅密度
	words := countWords(fullText)
	if words >= 250 && words <= 750 {
		score += 10
	} else {
		score += 5
		if words < 250 {
			feedback = append(feedback, "简历篇幅偏短，建议补充经历细节")
		} else {
			feedback = append(feedback, "简历篇幅偏长，建议精简到两页以内")
		}
	}

	return types.ClampScore(score), feedback
}

// hasLinkedIn 判断链接列表中是否有LinkedIn主页
func hasLinkedIn(links []string) bool {
	for _, l := range links {
		if strings.Contains(strings.ToLower(l), "linkedin.com") {
			return true
		}
	}
	return false
}

// countWords 统计词数。中文按字符计，英文按空白分词计
func countWords(text string) int {
	count := 0
	for _, field := range strings.Fields(text) {
		cjk := 0
		for _, r := range field {
			if r >= 0x4E00 && r <= 0x9FFF {
				cjk++
			}
		}
		if cjk > 0 {
			count += cjk
		} else {
			count++
		}
	}
	return count
}
