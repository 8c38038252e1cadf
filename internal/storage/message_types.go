package storage

import "time"

// ResumeExtractedMessage 结构化提取完成事件的消息体
type ResumeExtractedMessage struct {
	ResumeID    string    `json:"resume_id"`
	ContentHash string    `json:"content_hash,omitempty"`
	TextPathOSS string    `json:"text_path_oss,omitempty"` // 归一化文本在MinIO中的路径
	Partial     bool      `json:"partial,omitempty"`       // 降级提取产出的部分结构
	OccurredAt  time.Time `json:"occurred_at"`
}

// ResumeAnalyzedMessage 评分分析完成事件的消息体
type ResumeAnalyzedMessage struct {
	ResumeID   string    `json:"resume_id"`
	ATSScore   int       `json:"ats_compliance_score"`
	RoleMatch  *int      `json:"role_match_percentage,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
