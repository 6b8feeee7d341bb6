package search

import (
	"context"
	"time"
)

// SearchType 搜索模式
type SearchType string

const (
	TypeNeural     SearchType = "neural"
	TypeKeyword    SearchType = "keyword"
	TypeSimilarity SearchType = "similarity"
	TypeWeb        SearchType = "web"
)

// Provider 定义单个搜索后端的统一接口
type Provider interface {
	// Name 返回提供商名称（如 "exa", "tavily"）
	Name() string
	// Search 执行一次搜索，失败时返回 *ProviderError
	Search(ctx context.Context, q *Query) ([]Result, error)
	// SearchWithRetry 带重试与指数退避的搜索，重试耗尽后标记不健康并返回最后的错误
	SearchWithRetry(ctx context.Context, q *Query) ([]Result, error)
	// HealthCheck 发起一次最小化探测，任何非错误响应（包括零结果）视为健康
	HealthCheck(ctx context.Context) bool
	// Status 返回提供商的健康与性能状态
	Status(ctx context.Context) ProviderStatus
}

// Query 通用搜索请求，分发前不可变
type Query struct {
	Query              string     `json:"query"`
	MaxResults         int        `json:"max_results"`
	SearchType         SearchType `json:"search_type,omitempty"`
	UseAutoprompt      bool       `json:"use_autoprompt,omitempty"`
	IncludeDomains     []string   `json:"include_domains,omitempty"`
	ExcludeDomains     []string   `json:"exclude_domains,omitempty"`
	StartPublishedDate string     `json:"start_published_date,omitempty"` // YYYY-MM-DD
	EndPublishedDate   string     `json:"end_published_date,omitempty"`   // YYYY-MM-DD
	ReferenceURL       string     `json:"reference_url,omitempty"`        // similarity 模式的参照 URL
}

// ClampMaxResults 把 MaxResults 收敛到提供商支持的范围内
func (q *Query) ClampMaxResults(limit int) int {
	n := q.MaxResults
	if n < 1 {
		n = 1
	}
	if n > limit {
		n = limit
	}
	return n
}

// Result 单条搜索结果，Score 统一归一化到 [0,1]
type Result struct {
	Title         string         `json:"title"`
	URL           string         `json:"url"`
	Content       string         `json:"content"`
	Score         float64        `json:"score"`
	Source        string         `json:"source"`
	PublishedDate string         `json:"published_date,omitempty"`
	Highlights    []string       `json:"highlights,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// DualSearchResult 双引擎搜索结果
type DualSearchResult struct {
	Query             string         `json:"query"`
	ExaResults        []Result       `json:"exa_results"`
	TavilyResults     []Result       `json:"tavily_results"`
	AggregatedResults []Result       `json:"aggregated_results"`
	SearchStrategy    string         `json:"search_strategy"`
	ProcessingTime    time.Duration  `json:"processing_time"`
	ExaSuccess        bool           `json:"exa_success"`
	TavilySuccess     bool           `json:"tavily_success"`
	ExaAttempted      bool           `json:"exa_attempted"`
	TavilyAttempted   bool           `json:"tavily_attempted"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// TotalResults 聚合结果总数
func (r *DualSearchResult) TotalResults() int {
	return len(r.AggregatedResults)
}

// SuccessRate 实际尝试过的提供商的成功率。
// 未尝试的提供商不计入分母（intelligent 策略只调用单个提供商时，
// 另一个"没试过"不等于"失败"，也不应该白送成功）。
func (r *DualSearchResult) SuccessRate() float64 {
	attempted := 0
	succeeded := 0
	if r.ExaAttempted {
		attempted++
		if r.ExaSuccess {
			succeeded++
		}
	}
	if r.TavilyAttempted {
		attempted++
		if r.TavilySuccess {
			succeeded++
		}
	}
	if attempted == 0 {
		return 0
	}
	return float64(succeeded) / float64(attempted)
}

// ProviderStatus 提供商状态快照
type ProviderStatus struct {
	ProviderName string    `json:"provider_name"`
	IsHealthy    bool      `json:"is_healthy"`
	ResponseTime float64   `json:"response_time"` // 平均响应时间（秒）
	SuccessRate  float64   `json:"success_rate"`
	LastCheck    time.Time `json:"last_check"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// Metrics 编排器滚动指标
type Metrics struct {
	TotalSearches       int           `json:"total_searches"`
	SuccessfulSearches  int           `json:"successful_searches"`
	FailedSearches      int           `json:"failed_searches"`
	AverageResponseTime time.Duration `json:"average_response_time"`
}
