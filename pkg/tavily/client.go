package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iWorld-y/claim_radar/pkg/search"
)

const defaultBaseURL = "https://api.tavily.com/search"

// Tavily 单次查询最多返回 20 条
const maxResultsCap = 20

// Client Tavily API 客户端（网页搜索提供商）
type Client struct {
	*search.Base
	apiKey  string
	baseURL string
	client  *http.Client
}

// Ensure Client implements search.Provider
var _ search.Provider = (*Client)(nil)

// NewClient 创建一个新的 Tavily 客户端。API Key 缺失时立即返回配置错误
func NewClient(apiKey string, timeout time.Duration, maxRetries int) (*Client, error) {
	if apiKey == "" {
		return nil, &search.ConfigError{Message: "tavily api key is missing"}
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  http.DefaultClient,
	}
	c.Base = search.NewBase("tavily", timeout, maxRetries, c.doSearch)
	return c, nil
}

// Search implements search.Provider
func (c *Client) Search(ctx context.Context, q *search.Query) ([]search.Result, error) {
	return c.doSearch(ctx, q)
}

// searchRequest Tavily 搜索请求参数
type searchRequest struct {
	Query             string   `json:"query"`
	SearchDepth       string   `json:"search_depth,omitempty"` // basic or advanced
	Topic             string   `json:"topic,omitempty"`        // general or news
	MaxResults        int      `json:"max_results,omitempty"`
	IncludeRawContent bool     `json:"include_raw_content,omitempty"`
	IncludeImages     bool     `json:"include_images,omitempty"`
	IncludeAnswer     bool     `json:"include_answer,omitempty"`
	IncludeDomains    []string `json:"include_domains,omitempty"`
	ExcludeDomains    []string `json:"exclude_domains,omitempty"`
	StartDate         string   `json:"start_date,omitempty"`
	EndDate           string   `json:"end_date,omitempty"`
}

// searchResponse Tavily 搜索响应
type searchResponse struct {
	Query   string         `json:"query"`
	Results []searchResult `json:"results"`
	Answer  string         `json:"answer"`
}

// searchResult 单个搜索结果
type searchResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	RawContent    string  `json:"raw_content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date"`
}

// doSearch 执行搜索并把原生响应解析成统一的 Result
func (c *Client) doSearch(ctx context.Context, q *search.Query) ([]search.Result, error) {
	req := searchRequest{
		Query:             q.Query,
		SearchDepth:       "basic",
		Topic:             "general",
		MaxResults:        q.ClampMaxResults(maxResultsCap),
		IncludeRawContent: true,
		IncludeDomains:    q.IncludeDomains,
		ExcludeDomains:    q.ExcludeDomains,
		StartDate:         q.StartPublishedDate,
		EndDate:           q.EndPublishedDate,
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, c.wrapErr("marshal request failed", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, c.wrapErr("create request failed", err)
	}
	httpReq.Header.Add("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Add("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, c.wrapErr("request failed", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, c.wrapErr("read body failed", err)
	}

	if res.StatusCode == http.StatusTooManyRequests {
		return nil, &search.RateLimitError{
			ProviderError: search.ProviderError{
				Provider: c.Name(),
				Message:  fmt.Sprintf("tavily rate limit exceeded: %s", string(body)),
			},
			RetryAfter: time.Minute,
		}
	}
	if res.StatusCode != http.StatusOK {
		return nil, &search.ProviderError{
			Provider: c.Name(),
			Message:  fmt.Sprintf("tavily api error (status %d): %s", res.StatusCode, string(body)),
		}
	}

	var searchResp searchResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, c.wrapErr("unmarshal response failed", err)
	}

	results := make([]search.Result, 0, len(searchResp.Results))
	for i, r := range searchResp.Results {
		results = append(results, parseResult(r, i))
	}
	return results, nil
}

// parseResult 把 Tavily 原生结果映射成统一模型。
// Tavily 可能不返回分数，此时按结果位置打分，越靠前分数越高。
func parseResult(r searchResult, index int) search.Result {
	score := r.Score
	if score == 0 {
		score = 1.0 - float64(index)*0.1
		if score < 0.1 {
			score = 0.1
		}
	}
	if score > 1.0 {
		score = 1.0
	}

	content := r.Content
	if content == "" {
		content = r.RawContent
	}

	return search.Result{
		Title:         r.Title,
		URL:           r.URL,
		Content:       content,
		Score:         score,
		Source:        "tavily",
		PublishedDate: r.PublishedDate,
		Metadata: map[string]any{
			"search_depth":          "basic",
			"search_type":           "web",
			"index":                 index,
			"raw_content_available": r.RawContent != "",
		},
	}
}

func (c *Client) wrapErr(msg string, err error) error {
	return &search.ProviderError{Provider: c.Name(), Message: msg, Err: err}
}
