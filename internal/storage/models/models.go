package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// ResumeRecord 简历主表，一行对应一份上传的简历文件
type ResumeRecord struct {
	ResumeID              string         `gorm:"type:char(36);primaryKey"`
	OwnerID               string         `gorm:"type:char(36);index:idx_resumes_owner_id"`
	FileType              string         `gorm:"type:varchar(10);not null"`
	RawPathOSS            string         `gorm:"type:varchar(1024)"`
	NormalizedTextPathOSS string         `gorm:"type:varchar(1024)"`
	ContentHash           string         `gorm:"type:char(64);not null;index:idx_resumes_content_hash"`
	StructuredJSON        datatypes.JSON `gorm:"type:json"`
	FormatStatsJSON       datatypes.JSON `gorm:"type:json"`
	PipelineStatus        string         `gorm:"type:varchar(50);default:'PENDING';index:idx_resumes_pipeline_status"`
	ExtractorVersion      string         `gorm:"type:varchar(50)"`
	CreatedAt             time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt             time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (ResumeRecord) TableName() string {
	return "resumes"
}

// AnalysisRecord 分析结果表，以 (简历, JD哈希) 唯一。
// 结果一旦产出即不可变，重算走 ON DUPLICATE 覆盖整行。
type AnalysisRecord struct {
	AnalysisID          uint64         `gorm:"primaryKey;autoIncrement"`
	ResumeID            string         `gorm:"type:char(36);not null;index:idx_ar_resume_id;uniqueIndex:idx_ar_resume_jd_unique,priority:1"`
	JDHash              string         `gorm:"type:char(64);not null;uniqueIndex:idx_ar_resume_jd_unique,priority:2"`
	ATSScore            int            `gorm:"type:int;not null"`
	ATSFeedbackJSON     datatypes.JSON `gorm:"type:json"`
	RoleMatch           *int           `gorm:"type:int"`
	MatchedKeywordsJSON datatypes.JSON `gorm:"type:json"`
	MissingKeywordsJSON datatypes.JSON `gorm:"type:json"`
	WarningsJSON        datatypes.JSON `gorm:"type:json"`
	EvaluatedAt         time.Time      `gorm:"type:datetime(6)"`
	CreatedAt           time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`

	Resume *ResumeRecord `gorm:"foreignKey:ResumeID;references:ResumeID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (AnalysisRecord) TableName() string {
	return "analysis_results"
}

// ImprovementRecord 改进建议表，每条建议归属恰好一份简历
type ImprovementRecord struct {
	ImprovementID uint64    `gorm:"primaryKey;autoIncrement"`
	ResumeID      string    `gorm:"type:char(36);not null;index:idx_imp_resume_id"`
	Section       string    `gorm:"type:varchar(50);not null"`
	Category      string    `gorm:"type:varchar(50);not null"`
	Suggestion    string    `gorm:"type:text;not null"`
	OriginalText  string    `gorm:"type:text"`
	Rank          int       `gorm:"column:suggestion_rank;not null"` // rank 是MySQL保留字
	CreatedAt     time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`

	Resume *ResumeRecord `gorm:"foreignKey:ResumeID;references:ResumeID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (ImprovementRecord) TableName() string {
	return "improvements"
}

// EnrichmentStatRecord 外部数据统计落库表，Redis缓存之外的持久化副本
type EnrichmentStatRecord struct {
	StatID      uint64         `gorm:"primaryKey;autoIncrement"`
	UserID      string         `gorm:"type:char(36);not null;uniqueIndex:idx_es_user_source,priority:1"`
	Source      string         `gorm:"type:varchar(50);not null;uniqueIndex:idx_es_user_source,priority:2"`
	MetricsJSON datatypes.JSON `gorm:"type:json"`
	FetchedAt   time.Time      `gorm:"type:datetime(6)"`
	CreatedAt   time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt   time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (EnrichmentStatRecord) TableName() string {
	return "enrichment_stats"
}

// ToJSON 把任意可序列化值转为 datatypes.JSON
func ToJSON(v interface{}) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// StringMapToJSON 把 map[string]string 转为 datatypes.JSON
func StringMapToJSON(m map[string]string) (datatypes.JSON, error) {
	return ToJSON(m)
}
