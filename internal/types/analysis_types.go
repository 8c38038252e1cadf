package types

import "time"

// ResultStatus 每个操作结果携带的状态标记，调用方据此区分
// 新计算、缓存命中与降级的部分结果。
type ResultStatus string

const (
	// StatusComputed 本次请求新计算的结果
	StatusComputed ResultStatus = "computed"
	// StatusCached 命中缓存的结果
	StatusCached ResultStatus = "cached"
	// StatusPartial 降级后的部分结果
	StatusPartial ResultStatus = "partial"
)

// AnalysisResult 分析结果，以 (简历标识, 岗位描述哈希) 为键。
// 一旦产出即不可变；相同输入在未强制重算时必须复用缓存值。
type AnalysisResult struct {
	ResumeID        string       `json:"resume_id"`
	JDHash          string       `json:"jd_hash"`
	ATSScore        int          `json:"ats_compliance_score"`
	ATSFeedback     []string     `json:"ats_feedback,omitempty"`
	RoleMatch       *int         `json:"role_match_percentage,omitempty"`
	MatchedKeywords []string     `json:"matched_keywords,omitempty"`
	MissingKeywords []string     `json:"missing_keywords,omitempty"`
	Status          ResultStatus `json:"status"`
	Warnings        []string     `json:"warnings,omitempty"`
	EvaluatedAt     time.Time    `json:"evaluated_at"`

	// Structured 仅在降级的部分结果中出现，携带提取阶段已完成的产物
	Structured *StructuredResume `json:"structured,omitempty"`
}

// ClampScore 将分数收敛到 [0,100]，能力提供方给出的越界数值只收敛、不拒绝
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// ImprovementCategory 建议类别
type ImprovementCategory string

const (
	// ImprovementLayout 版式/结构类建议
	ImprovementLayout ImprovementCategory = "layout"
	// ImprovementRewrite 文本重写类建议
	ImprovementRewrite ImprovementCategory = "rewrite"
	// ImprovementSkills 技能补充类建议
	ImprovementSkills ImprovementCategory = "skills"
	// ImprovementContext 背景补充类建议
	ImprovementContext ImprovementCategory = "context"
)

// Improvement 针对某一章节的改进建议。
// 始终归属于恰好一个分析结果或结构化简历快照，不跨结果共享。
type Improvement struct {
	Section      SectionType         `json:"section"`
	Category     ImprovementCategory `json:"category"`
	Suggestion   string              `json:"suggestion"`
	OriginalText string              `json:"original_text,omitempty"`
	Rank         int                 `json:"rank"`
}

// EnrichmentStats 某用户在某外部数据源上的活动统计。
// 过期条目仅在刷新失败时作为回退返回，并且必须带上 Stale 标记。
type EnrichmentStats struct {
	UserID    string            `json:"user_id"`
	Source    string            `json:"source"`
	Metrics   map[string]string `json:"metrics"`
	FetchedAt time.Time         `json:"fetched_at"`
	TTL       time.Duration     `json:"ttl"`
	Stale     bool              `json:"stale"`
	Status    ResultStatus      `json:"status"`
}

// Expired 判断该统计条目相对于给定时间是否已超过TTL
func (es *EnrichmentStats) Expired(now time.Time) bool {
	return now.Sub(es.FetchedAt) > es.TTL
}
