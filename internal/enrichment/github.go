package enrichment

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// GitHubFetcher 通过 GitHub REST API 抓取用户的公开活动统计
type GitHubFetcher struct {
	client  *resty.Client
	baseURL string
	token   string
}

// NewGitHubFetcher 创建GitHub抓取器，token为空时匿名访问（速率更低）
func NewGitHubFetcher(baseURL, token string) *GitHubFetcher {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &GitHubFetcher{
		client:  resty.New(),
		baseURL: baseURL,
		token:   token,
	}
}

// Source 实现 StatsFetcher 接口
func (g *GitHubFetcher) Source() string {
	return "github"
}

// Fetch 抓取用户概况与仓库列表，汇总出统计指标
func (g *GitHubFetcher) Fetch(ctx context.Context, handle string) (map[string]string, error) {
	req := g.client.R().SetContext(ctx).SetHeader("Accept", "application/vnd.github+json")
	if g.token != "" {
		req.SetHeader("Authorization", "Bearer "+g.token)
	}

	userResp, err := req.Get(fmt.Sprintf("%s/users/%s", g.baseURL, handle))
	if err != nil {
		return nil, fmt.Errorf("请求GitHub用户信息失败: %w", err)
	}
	if userResp.StatusCode() != 200 {
		return nil, fmt.Errorf("GitHub用户信息请求返回 %d", userResp.StatusCode())
	}
	userBody := userResp.String()

	repoReq := g.client.R().SetContext(ctx).SetHeader("Accept", "application/vnd.github+json")
	if g.token != "" {
		repoReq.SetHeader("Authorization", "Bearer "+g.token)
	}
	repoResp, err := repoReq.Get(fmt.Sprintf("%s/users/%s/repos?per_page=100&type=owner", g.baseURL, handle))
	if err != nil {
		return nil, fmt.Errorf("请求GitHub仓库列表失败: %w", err)
	}
	if repoResp.StatusCode() != 200 {
		return nil, fmt.Errorf("GitHub仓库列表请求返回 %d", repoResp.StatusCode())
	}
	repoBody := repoResp.String()

	totalStars := int64(0)
	originalRepos := 0
	forkedRepos := 0
	langCount := make(map[string]int)
	for _, repo := range gjson.Parse(repoBody).Array() {
		totalStars += repo.Get("stargazers_count").Int()
		if repo.Get("fork").Bool() {
			forkedRepos++
		} else {
			originalRepos++
			if lang := repo.Get("language").String(); lang != "" {
				langCount[lang]++
			}
		}
	}

	primaryLanguage := ""
	best := 0
	for lang, cnt := range langCount {
		if cnt > best || (cnt == best && lang < primaryLanguage) {
			primaryLanguage = lang
			best = cnt
		}
	}

	return map[string]string{
		"public_repos":     gjson.Get(userBody, "public_repos").String(),
		"followers":        gjson.Get(userBody, "followers").String(),
		"total_stars":      strconv.FormatInt(totalStars, 10),
		"original_repos":   strconv.Itoa(originalRepos),
		"forked_repos":     strconv.Itoa(forkedRepos),
		"primary_language": primaryLanguage,
	}, nil
}
