package parser

import (
	"regexp"
	"strings"

	"resume-intel-go/internal/types"
)

// sectionHeadings 启发式章节标题关键词 -> 规范章节类型
var sectionHeadings = []struct {
	pattern *regexp.Regexp
	stype   types.SectionType
}{
	{regexp.MustCompile(`(?i)^(summary|profile|objective|about|个人简介|自我评价|概述)\b?`), types.SectionSummary},
	{regexp.MustCompile(`(?i)^(experience|employment|work history|工作经历|工作经验|职业经历)`), types.SectionExperience},
	{regexp.MustCompile(`(?i)^(education|academic|教育经历|教育背景|学历)`), types.SectionEducation},
	{regexp.MustCompile(`(?i)^(skills?|technologies|技能|专业技能|技术栈)`), types.SectionSkills},
	{regexp.MustCompile(`(?i)^(projects?|portfolio|项目经历|项目经验)`), types.SectionProjects},
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`(\+?\d[\d\s\-()]{7,}\d)`)
	linkPattern  = regexp.MustCompile(`https?://[^\s)]+|(?:github\.com|linkedin\.com|leetcode\.com)/[^\s)]+`)
)

// heuristicExtract 启发式提取：按标题行切分章节，用正则抓取联系方式。
// 产物始终标记为 Partial，仅在LLM提取不可用时作为降级结构。
func heuristicExtract(content string) *types.StructuredResume {
	out := &types.StructuredResume{
		RawText: content,
		Partial: true,
	}

	out.Contact.Email = emailPattern.FindString(content)
	out.Contact.Phone = strings.TrimSpace(phonePattern.FindString(content))
	out.Contact.Links = dedupeStrings(linkPattern.FindAllString(content, -1))

	lines := strings.Split(content, "\n")
	current := types.SectionOther
	title := ""
	var buf []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(buf, "\n"))
		if text != "" {
			out.Sections = append(out.Sections, types.ResumeSection{
				Type:    current,
				Title:   title,
				Content: text,
			})
		}
		buf = buf[:0]
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if st, ok := matchHeading(trimmed); ok {
			flush()
			current = st
			title = trimmed
			continue
		}
		buf = append(buf, line)
	}
	flush()

	if sec := out.SectionByType(types.SectionSkills); sec != nil {
		out.Skills = splitSkills(sec.Content)
	}
	return out
}

// matchHeading 判断某行是否是章节标题。标题行一般较短且无句读
func matchHeading(line string) (types.SectionType, bool) {
	if line == "" || len([]rune(line)) > 40 {
		return types.SectionOther, false
	}
	for _, h := range sectionHeadings {
		if h.pattern.MatchString(line) {
			return h.stype, true
		}
	}
	return types.SectionOther, false
}

// splitSkills 把技能章节文本按常见分隔符切开
func splitSkills(content string) []string {
	fields := strings.FieldsFunc(content, func(r rune) bool {
		switch r {
		case ',', '，', ';', '；', '|', '/', '·', '\n', '\t':
			return true
		}
		return false
	})
	var skills []string
	for _, f := range fields {
		f = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(f), "•-* "))
		if f == "" || len([]rune(f)) > 30 {
			continue
		}
		skills = append(skills, f)
	}
	return dedupeStrings(skills)
}

// dedupeStrings 保序去重（忽略大小写）
func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
