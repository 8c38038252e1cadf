package parser

import (
	"strings"
	"unicode"
)

// KeywordMatcher 岗位描述关键词匹配器。
// 提取规则固定：小写化、去标点、最短词长4、剔除停用词与JD套话，保序去重。
type KeywordMatcher struct{}

// NewKeywordMatcher 创建关键词匹配器
func NewKeywordMatcher() *KeywordMatcher {
	return &KeywordMatcher{}
}

// MatchResult 关键词匹配结果
type MatchResult struct {
	Matched   []string // 简历中命中的JD关键词，保持JD中的首现顺序
	Missing   []string // 简历中缺失的JD关键词
	RoleMatch int      // 命中数/关键词总数 × 100，JD无有效关键词时为0
}

// stopWords 通用英文停用词
var stopWords = map[string]struct{}{
	"this": {}, "that": {}, "with": {}, "from": {}, "have": {}, "will": {},
	"your": {}, "what": {}, "when": {}, "where": {}, "which": {}, "their": {},
	"about": {}, "would": {}, "there": {}, "been": {}, "they": {}, "them": {},
	"than": {}, "then": {}, "into": {}, "over": {}, "such": {}, "some": {},
	"more": {}, "most": {}, "other": {}, "also": {}, "each": {}, "must": {},
	"should": {}, "could": {}, "well": {}, "very": {}, "able": {}, "within": {},
	"across": {}, "using": {}, "both": {}, "between": {}, "while": {}, "like": {},
}

// jobBoilerplate JD里常见但与技能无关的套话
var jobBoilerplate = map[string]struct{}{
	"experience": {}, "years": {}, "work": {}, "working": {}, "team": {},
	"teams": {}, "skills": {}, "strong": {}, "knowledge": {}, "ability": {},
	"excellent": {}, "good": {}, "required": {}, "requirements": {},
	"preferred": {}, "plus": {}, "responsibilities": {}, "role": {},
	"position": {}, "candidate": {}, "candidates": {}, "company": {},
	"looking": {}, "join": {}, "environment": {}, "opportunity": {},
	"benefits": {}, "salary": {}, "degree": {}, "bachelor": {}, "related": {},
	"field": {}, "including": {}, "understanding": {}, "familiarity": {},
	"communication": {}, "collaborate": {}, "develop": {}, "development": {},
	"developer": {}, "engineer": {}, "engineering": {}, "software": {},
}

// ExtractKeywords 从岗位描述中提取显著关键词
func (m *KeywordMatcher) ExtractKeywords(jobDescription string) []string {
	tokens := tokenize(jobDescription)
	seen := make(map[string]struct{})
	var keywords []string
	for _, tok := range tokens {
		if len(tok) < 4 {
			continue
		}
		if _, ok := stopWords[tok]; ok {
			continue
		}
		if _, ok := jobBoilerplate[tok]; ok {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}
	return keywords
}

// Match 将JD关键词与简历文本比对
func (m *KeywordMatcher) Match(jobDescription, resumeText string) *MatchResult {
	keywords := m.ExtractKeywords(jobDescription)
	result := &MatchResult{}
	if len(keywords) == 0 {
		return result
	}

	resumeTokens := make(map[string]struct{})
	for _, tok := range tokenize(resumeText) {
		resumeTokens[tok] = struct{}{}
	}

	for _, kw := range keywords {
		if _, ok := resumeTokens[kw]; ok {
			result.Matched = append(result.Matched, kw)
		} else {
			result.Missing = append(result.Missing, kw)
		}
	}
	result.RoleMatch = len(result.Matched) * 100 / len(keywords)
	return result
}

// tokenize 小写化并按非字母数字字符切分。
// 点号、井号与加号保留，避免拆散 "node.js"、"c#"、"c++" 这类技术名词；
// 句末的点号在切分后去掉
func tokenize(text string) []string {
	lower := strings.ToLower(text)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
		switch r {
		case '.', '#', '+':
			return false
		}
		return true
	})
	var tokens []string
	for _, f := range fields {
		f = strings.Trim(f, ".")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
