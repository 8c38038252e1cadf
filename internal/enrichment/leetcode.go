package enrichment

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// LeetCodeFetcher 通过 LeetCode GraphQL API 抓取用户的刷题统计
type LeetCodeFetcher struct {
	client *resty.Client
	apiURL string
}

// NewLeetCodeFetcher 创建LeetCode抓取器
func NewLeetCodeFetcher(apiURL string) *LeetCodeFetcher {
	if apiURL == "" {
		apiURL = "https://leetcode.com/graphql"
	}
	return &LeetCodeFetcher{
		client: resty.New(),
		apiURL: apiURL,
	}
}

// Source 实现 StatsFetcher 接口
func (l *LeetCodeFetcher) Source() string {
	return "leetcode"
}

const leetcodeStatsQuery = `query userStats($username: String!) {
  matchedUser(username: $username) {
    profile { ranking }
    submitStatsGlobal {
      acSubmissionNum { difficulty count submissions }
    }
  }
}`

// Fetch 抓取用户的按难度通过数、总提交数与排名
func (l *LeetCodeFetcher) Fetch(ctx context.Context, handle string) (map[string]string, error) {
	resp, err := l.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"query":     leetcodeStatsQuery,
			"variables": map[string]string{"username": handle},
		}).
		Post(l.apiURL)
	if err != nil {
		return nil, fmt.Errorf("请求LeetCode失败: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("LeetCode请求返回 %d", resp.StatusCode())
	}

	body := resp.String()
	matched := gjson.Get(body, "data.matchedUser")
	if !matched.Exists() || matched.Type == gjson.Null {
		return nil, fmt.Errorf("LeetCode用户 %s 不存在", handle)
	}

	metrics := map[string]string{
		"ranking": matched.Get("profile.ranking").String(),
	}
	totalSubmissions := int64(0)
	for _, entry := range matched.Get("submitStatsGlobal.acSubmissionNum").Array() {
		difficulty := strings.ToLower(entry.Get("difficulty").String())
		switch difficulty {
		case "all":
			metrics["total_solved"] = entry.Get("count").String()
			totalSubmissions = entry.Get("submissions").Int()
		case "easy", "medium", "hard":
			metrics["solved_"+difficulty] = entry.Get("count").String()
		}
	}
	metrics["total_submissions"] = fmt.Sprintf("%d", totalSubmissions)
	return metrics, nil
}
