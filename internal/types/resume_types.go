package types

import "time"

// FileType 表示上传文件的声明类型
type FileType string

const (
	// FileTypePDF PDF文档
	FileTypePDF FileType = "pdf"
	// FileTypeDOCX Word文档
	FileTypeDOCX FileType = "docx"
	// FileTypeImage 图片（强制走OCR路径）
	FileTypeImage FileType = "image"
)

// IsSupported 判断声明的文件类型是否在可接受集合内
func (ft FileType) IsSupported() bool {
	switch ft {
	case FileTypePDF, FileTypeDOCX, FileTypeImage:
		return true
	}
	return false
}

// SectionType 表示简历章节类型
type SectionType string

const (
	// SectionSummary 个人摘要章节
	SectionSummary SectionType = "SUMMARY"
	// SectionExperience 工作经历章节
	SectionExperience SectionType = "EXPERIENCE"
	// SectionEducation 教育经历章节
	SectionEducation SectionType = "EDUCATION"
	// SectionSkills 技能章节
	SectionSkills SectionType = "SKILLS"
	// SectionProjects 项目经历章节
	SectionProjects SectionType = "PROJECTS"
	// SectionOther 未分类内容章节
	SectionOther SectionType = "OTHER"
)

// KnownSectionTypes 规范章节类型全集，LLM输出之外的类型统一归入 OTHER
var KnownSectionTypes = []SectionType{
	SectionSummary, SectionExperience, SectionEducation,
	SectionSkills, SectionProjects, SectionOther,
}

// NormalizeSectionType 将任意类型标签收敛到规范集合
func NormalizeSectionType(raw string) SectionType {
	for _, st := range KnownSectionTypes {
		if string(st) == raw {
			return st
		}
	}
	return SectionOther
}

// ResumeSection 简历章节结构
type ResumeSection struct {
	Type    SectionType `json:"type"`
	Title   string      `json:"title,omitempty"`
	Content string      `json:"content"`
}

// ContactInfo 简历中的联系方式信息
type ContactInfo struct {
	Name     string   `json:"name,omitempty"`
	Email    string   `json:"email,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Location string   `json:"location,omitempty"`
	Links    []string `json:"links,omitempty"`
}

// StructuredResume 规范化的结构化简历，由提取引擎产出。
// Partial 为 true 时表示提取降级为尽力而为的部分结构，Warnings 记录非致命问题。
type StructuredResume struct {
	Sections        []ResumeSection `json:"sections"`
	Contact         ContactInfo     `json:"contact"`
	Skills          []string        `json:"skills,omitempty"`
	YearsExperience float64         `json:"years_of_experience,omitempty"`
	RawText         string          `json:"-"`
	Partial         bool            `json:"partial,omitempty"`
	Warnings        []string        `json:"warnings,omitempty"`
}

// SectionByType 返回第一个指定类型的章节，不存在时返回nil
func (sr *StructuredResume) SectionByType(st SectionType) *ResumeSection {
	for i := range sr.Sections {
		if sr.Sections[i].Type == st {
			return &sr.Sections[i]
		}
	}
	return nil
}

// FullText 聚合所有章节内容，章节为空时回退到原始文本
func (sr *StructuredResume) FullText() string {
	if len(sr.Sections) == 0 {
		return sr.RawText
	}
	var out string
	for i, sec := range sr.Sections {
		if i > 0 {
			out += "\n"
		}
		if sec.Title != "" {
			out += sec.Title + "\n"
		}
		out += sec.Content
	}
	return out
}

// FormatStats 归一化阶段收集的版式统计信息，供ATS评分使用
type FormatStats struct {
	Fonts      []string `json:"fonts,omitempty"`
	BulletUsed bool     `json:"bullet_used"`
	PageCount  int      `json:"page_count,omitempty"`
}

// NormalizedDocument 归一化器的输出：纯文本，或在无法解析文本时给出页面图像
type NormalizedDocument struct {
	Text       string
	PageImages [][]byte
	Stats      FormatStats
	Warnings   []string
}

// NeedsOCR 判断该文档是否必须走下游OCR路径
func (nd *NormalizedDocument) NeedsOCR() bool {
	return nd.Text == "" && len(nd.PageImages) > 0
}

// Resume 简历实体。结构化提取在提取完成前为nil；
// 重新提取是显式覆盖，绝不隐式发生。
type Resume struct {
	ResumeID    string            `json:"resume_id"`
	OwnerID     string            `json:"owner_id"`
	FileType    FileType          `json:"file_type"`
	RawPath     string            `json:"raw_path"`
	ContentHash string            `json:"content_hash"`
	Structured  *StructuredResume `json:"structured,omitempty"`
	FormatStats *FormatStats      `json:"format_stats,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
