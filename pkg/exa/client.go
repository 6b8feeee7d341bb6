package exa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/iWorld-y/claim_radar/pkg/logger"
	"github.com/iWorld-y/claim_radar/pkg/search"
)

const defaultBaseURL = "https://api.exa.ai"

// Exa 单次查询最多返回 50 条
const maxResultsCap = 50

// Client Exa.ai API 客户端（神经搜索提供商）。
// 支持 neural/keyword/similarity 三种子模式，每次分发前先过限流闸门。
type Client struct {
	*search.Base
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// Ensure Client implements search.Provider
var _ search.Provider = (*Client)(nil)

// NewClient 创建一个新的 Exa 客户端。API Key 缺失时立即返回配置错误。
// rateCalls/ratePeriod 为限流窗口（如 100 次 / 60s），零值时默认 100/分钟。
func NewClient(apiKey string, timeout time.Duration, maxRetries int, rateCalls int, ratePeriod time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, &search.ConfigError{Message: "exa api key is missing"}
	}
	if rateCalls <= 0 {
		rateCalls = 100
	}
	if ratePeriod <= 0 {
		ratePeriod = time.Minute
	}

	limit := rate.Limit(float64(rateCalls) / ratePeriod.Seconds())
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  http.DefaultClient,
		limiter: rate.NewLimiter(limit, rateCalls),
	}
	c.Base = search.NewBase("exa", timeout, maxRetries, c.doSearch)

	logger.Log.Infof("Exa 客户端已初始化, 限流: %d 次/%s", rateCalls, ratePeriod)
	return c, nil
}

// Search implements search.Provider
func (c *Client) Search(ctx context.Context, q *search.Query) ([]search.Result, error) {
	return c.doSearch(ctx, q)
}

// searchRequest Exa /search 请求参数
type searchRequest struct {
	Query              string    `json:"query"`
	Type               string    `json:"type,omitempty"` // neural or keyword
	NumResults         int       `json:"numResults,omitempty"`
	UseAutoprompt      bool      `json:"useAutoprompt,omitempty"`
	IncludeDomains     []string  `json:"includeDomains,omitempty"`
	ExcludeDomains     []string  `json:"excludeDomains,omitempty"`
	StartPublishedDate string    `json:"startPublishedDate,omitempty"`
	EndPublishedDate   string    `json:"endPublishedDate,omitempty"`
	Contents           *contents `json:"contents,omitempty"`
}

// findSimilarRequest Exa /findSimilar 请求参数
type findSimilarRequest struct {
	URL        string    `json:"url"`
	NumResults int       `json:"numResults,omitempty"`
	Contents   *contents `json:"contents,omitempty"`
}

type contents struct {
	Text       bool `json:"text"`
	Highlights bool `json:"highlights"`
}

// searchResponse Exa 搜索响应
type searchResponse struct {
	Results          []searchResult `json:"results"`
	AutopromptString string         `json:"autopromptString"`
}

// searchResult 单个搜索结果
type searchResult struct {
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	ID            string   `json:"id"`
	Score         float64  `json:"score"`
	PublishedDate string   `json:"publishedDate"`
	Author        string   `json:"author"`
	Text          string   `json:"text"`
	Highlights    []string `json:"highlights"`
}

// doSearch 执行搜索：先过限流闸门，再按搜索模式路由到对应端点
func (c *Client) doSearch(ctx context.Context, q *search.Query) ([]search.Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.wrapErr("rate limiter wait failed", err)
	}

	var (
		endpoint string
		payload  any
		mode     string
	)
	switch q.SearchType {
	case search.TypeSimilarity:
		// similarity 模式需要参照 URL，缺失时回落到 neural
		if q.ReferenceURL != "" {
			endpoint = "/findSimilar"
			mode = "similarity"
			payload = findSimilarRequest{
				URL:        q.ReferenceURL,
				NumResults: q.ClampMaxResults(maxResultsCap),
				Contents:   &contents{Text: true, Highlights: true},
			}
			break
		}
		fallthrough
	case search.TypeNeural, search.TypeWeb, "":
		endpoint = "/search"
		mode = "neural"
		payload = c.searchPayload(q, "neural", q.UseAutoprompt)
	case search.TypeKeyword:
		// Exa 没有独立的关键词端点，关闭 autoprompt 以获得更字面的匹配
		endpoint = "/search"
		mode = "keyword"
		payload = c.searchPayload(q, "keyword", false)
	default:
		endpoint = "/search"
		mode = "neural"
		payload = c.searchPayload(q, "neural", q.UseAutoprompt)
	}

	resp, err := c.post(ctx, endpoint, payload)
	if err != nil {
		return nil, err
	}

	results := make([]search.Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, parseResult(r, mode, q.UseAutoprompt))
	}
	return results, nil
}

func (c *Client) searchPayload(q *search.Query, searchType string, autoprompt bool) searchRequest {
	return searchRequest{
		Query:              q.Query,
		Type:               searchType,
		NumResults:         q.ClampMaxResults(maxResultsCap),
		UseAutoprompt:      autoprompt,
		IncludeDomains:     q.IncludeDomains,
		ExcludeDomains:     q.ExcludeDomains,
		StartPublishedDate: q.StartPublishedDate,
		EndPublishedDate:   q.EndPublishedDate,
		Contents:           &contents{Text: true, Highlights: true},
	}
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) (*searchResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, c.wrapErr("marshal request failed", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, c.wrapErr("create request failed", err)
	}
	httpReq.Header.Add("x-api-key", c.apiKey)
	httpReq.Header.Add("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, c.wrapErr("request failed", err)
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, c.wrapErr("read body failed", err)
	}

	if res.StatusCode == http.StatusTooManyRequests {
		return nil, &search.RateLimitError{
			ProviderError: search.ProviderError{
				Provider: c.Name(),
				Message:  fmt.Sprintf("exa rate limit exceeded: %s", string(respBody)),
			},
			RetryAfter: time.Minute,
		}
	}
	if res.StatusCode != http.StatusOK {
		return nil, &search.ProviderError{
			Provider: c.Name(),
			Message:  fmt.Sprintf("exa api error (status %d): %s", res.StatusCode, string(respBody)),
		}
	}

	var searchResp searchResponse
	if err := json.Unmarshal(respBody, &searchResp); err != nil {
		return nil, c.wrapErr("unmarshal response failed", err)
	}
	return &searchResp, nil
}

// parseResult 把 Exa 原生结果映射成统一模型。
// Exa 的相关性分数本身就在 [0,1]，直接采用，仅做边界收敛。
func parseResult(r searchResult, mode string, autoprompt bool) search.Result {
	score := r.Score
	if score < 0 {
		score = 0
	}
	if score > 1.0 {
		score = 1.0
	}

	return search.Result{
		Title:         r.Title,
		URL:           r.URL,
		Content:       r.Text,
		Score:         score,
		Source:        "exa",
		PublishedDate: r.PublishedDate,
		Highlights:    r.Highlights,
		Metadata: map[string]any{
			"search_type":     mode,
			"autoprompt_used": autoprompt,
			"id":              r.ID,
			"author":          r.Author,
		},
	}
}

func (c *Client) wrapErr(msg string, err error) error {
	return &search.ProviderError{Provider: c.Name(), Message: msg, Err: err}
}
