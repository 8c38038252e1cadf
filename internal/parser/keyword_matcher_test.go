package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractKeywords_FiltersNoise(t *testing.T) {
	m := NewKeywordMatcher()
	jd := "We are looking for a candidate with strong experience in Docker, Kubernetes and Golang. Excellent communication skills required. Go is a plus."

	keywords := m.ExtractKeywords(jd)
	assert.Contains(t, keywords, "docker")
	assert.Contains(t, keywords, "kubernetes")
	assert.Contains(t, keywords, "golang")
	// 停用词、套话和短词被剔除
	assert.NotContains(t, keywords, "with")
	assert.NotContains(t, keywords, "experience")
	assert.NotContains(t, keywords, "go")
}

func TestExtractKeywords_DedupKeepsFirstSeenOrder(t *testing.T) {
	m := NewKeywordMatcher()
	keywords := m.ExtractKeywords("Redis redis REDIS kafka Redis")
	assert.Equal(t, []string{"redis", "kafka"}, keywords)
}

func TestMatch_CaseInsensitive(t *testing.T) {
	m := NewKeywordMatcher()
	jd := "Required: Docker, Kubernetes, PostgreSQL"
	resume := "熟悉 docker 容器化部署，了解 postgresql 调优"

	result := m.Match(jd, resume)
	require.NotNil(t, result)
	assert.Equal(t, []string{"docker", "postgresql"}, result.Matched)
	assert.Equal(t, []string{"kubernetes"}, result.Missing)
	// 2/3 ≈ 66
	assert.Equal(t, 66, result.RoleMatch)
}

func TestMatch_EmptyJDYieldsNoKeywords(t *testing.T) {
	m := NewKeywordMatcher()
	result := m.Match("", "任意简历文本")
	assert.Empty(t, result.Matched)
	assert.Empty(t, result.Missing)
	assert.Equal(t, 0, result.RoleMatch)
}

func TestTokenize_PreservesTechTerms(t *testing.T) {
	tokens := tokenize("Experienced with Node.js, C# and C++.")
	assert.Contains(t, tokens, "node.js")
	assert.Contains(t, tokens, "c#")
	assert.Contains(t, tokens, "c++")
}
