package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/iWorld-y/claim_radar/pkg/logger"
)

// Strategy 双引擎搜索的执行策略
type Strategy string

const (
	StrategyParallel    Strategy = "parallel"
	StrategySequential  Strategy = "sequential"
	StrategyIntelligent Strategy = "intelligent"
)

// Route intelligent 策略的路由结论
type Route int

const (
	RouteBoth Route = iota
	RouteNeural
	RouteWeb
)

// Classifier 可插拔的查询路由函数
type Classifier func(q *Query) Route

// 提示适合神经搜索的概念/定义类词汇
var neuralKeywords = []string{
	"concept", "meaning", "definition", "explain", "understand",
	"theory", "philosophy", "analysis", "interpretation", "semantic",
}

// 提示适合网页搜索的时效/新闻类词汇
var webKeywords = []string{
	"news", "recent", "latest", "current", "today", "yesterday",
	"breaking", "update", "announcement", "report", "price", "stock",
}

// DefaultClassifier 默认路由：显式指定的搜索类型优先；
// 未指定时按关键词启发，两边都不命中则回落到并行策略。
func DefaultClassifier(q *Query) Route {
	switch q.SearchType {
	case TypeNeural:
		return RouteNeural
	case TypeWeb:
		return RouteWeb
	}

	text := strings.ToLower(q.Query)
	if containsAny(text, neuralKeywords) {
		return RouteNeural
	}
	if containsAny(text, webKeywords) {
		return RouteWeb
	}
	return RouteBoth
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Orchestrator 双引擎搜索编排器：组合神经搜索与网页搜索两个提供商，
// 按选定策略执行并聚合结果。单个提供商的失败会被吸收进 success 标志，
// 只有 requireBoth 约束被破坏时才抛错。
type Orchestrator struct {
	exa      Provider
	tavily   Provider
	agg      *Aggregator
	timeout  time.Duration
	classify Classifier

	mu           sync.Mutex
	searchCount  int
	successCount int
	totalTime    time.Duration
}

// NewOrchestrator 创建编排器，timeout 为共享的双引擎超时（零值时默认 10s）
func NewOrchestrator(exa, tavily Provider, agg *Aggregator, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if agg == nil {
		agg = NewAggregator(true, 10, exa.Name())
	}
	return &Orchestrator{
		exa:      exa,
		tavily:   tavily,
		agg:      agg,
		timeout:  timeout,
		classify: DefaultClassifier,
	}
}

// SetClassifier 替换 intelligent 策略的路由函数
func (o *Orchestrator) SetClassifier(fn Classifier) {
	if fn != nil {
		o.classify = fn
	}
}

// Search 按策略执行双引擎搜索
func (o *Orchestrator) Search(ctx context.Context, q *Query, strategy Strategy, requireBoth bool) (*DualSearchResult, error) {
	start := time.Now()
	o.mu.Lock()
	o.searchCount++
	o.mu.Unlock()

	logger.Log.Infof("开始双引擎搜索, 策略: %s, 查询: %s", strategy, q.Query)

	var (
		result *DualSearchResult
		err    error
	)
	switch strategy {
	case StrategyParallel:
		result, err = o.parallelSearch(ctx, q, requireBoth)
	case StrategySequential:
		result, err = o.sequentialSearch(ctx, q, requireBoth)
	case StrategyIntelligent:
		result, err = o.intelligentSearch(ctx, q, requireBoth)
	default:
		return nil, &OrchestrationError{Message: "unknown search strategy: " + string(strategy)}
	}
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	result.ProcessingTime = elapsed
	if result.SearchStrategy == "" {
		result.SearchStrategy = string(strategy)
	}

	o.mu.Lock()
	o.successCount++
	o.totalTime += elapsed
	o.mu.Unlock()

	logger.Log.Infof("双引擎搜索完成: %d 条聚合结果, exa=%v, tavily=%v, 耗时 %.2fs",
		result.TotalResults(), result.ExaSuccess, result.TavilySuccess, elapsed.Seconds())
	return result, nil
}

type providerOutcome struct {
	results []Result
	err     error
}

// parallelSearch 并行策略：两个提供商同时出发，共享一个超时。
// 超时会统一取消两边的未完成调用，被切断的提供商按失败记账。
func (o *Orchestrator) parallelSearch(ctx context.Context, q *Query, requireBoth bool) (*DualSearchResult, error) {
	searchCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	exaCh := make(chan providerOutcome, 1)
	tavilyCh := make(chan providerOutcome, 1)

	go func() {
		results, err := o.exa.SearchWithRetry(searchCtx, q)
		exaCh <- providerOutcome{results, err}
	}()
	go func() {
		results, err := o.tavily.SearchWithRetry(searchCtx, o.webQuery(q))
		tavilyCh <- providerOutcome{results, err}
	}()

	exaOut := <-exaCh
	tavilyOut := <-tavilyCh

	exaSuccess := exaOut.err == nil
	tavilySuccess := tavilyOut.err == nil
	if !exaSuccess {
		logger.Log.Warnf("exa 并行搜索失败: %v", exaOut.err)
	}
	if !tavilySuccess {
		logger.Log.Warnf("tavily 并行搜索失败: %v", tavilyOut.err)
	}

	if requireBoth && (!exaSuccess || !tavilySuccess) {
		var failed []string
		if !exaSuccess {
			failed = append(failed, o.exa.Name())
		}
		if !tavilySuccess {
			failed = append(failed, o.tavily.Name())
		}
		return nil, &OrchestrationError{
			Message:         "both providers required but one or more failed",
			FailedProviders: failed,
		}
	}

	return &DualSearchResult{
		Query:             q.Query,
		ExaResults:        exaOut.results,
		TavilyResults:     tavilyOut.results,
		AggregatedResults: o.agg.Merge(exaOut.results, tavilyOut.results),
		ExaSuccess:        exaSuccess,
		TavilySuccess:     tavilySuccess,
		ExaAttempted:      true,
		TavilyAttempted:   true,
		Metadata: map[string]any{
			"require_both": requireBoth,
			"timeout":      o.timeout.String(),
		},
	}, nil
}

// sequentialSearch 串行策略：先 exa 后 tavily。
// requireBoth 时第一家失败立即返回，不再尝试第二家。
func (o *Orchestrator) sequentialSearch(ctx context.Context, q *Query, requireBoth bool) (*DualSearchResult, error) {
	exaResults, exaErr := o.exa.SearchWithRetry(ctx, q)
	if exaErr != nil {
		logger.Log.Warnf("exa 串行搜索失败: %v", exaErr)
		if requireBoth {
			return nil, &OrchestrationError{
				Message:         "exa search failed and both providers required",
				FailedProviders: []string{o.exa.Name()},
			}
		}
	}

	tavilyResults, tavilyErr := o.tavily.SearchWithRetry(ctx, o.webQuery(q))
	if tavilyErr != nil {
		logger.Log.Warnf("tavily 串行搜索失败: %v", tavilyErr)
		if requireBoth {
			return nil, &OrchestrationError{
				Message:         "tavily search failed and both providers required",
				FailedProviders: []string{o.tavily.Name()},
			}
		}
	}

	return &DualSearchResult{
		Query:             q.Query,
		ExaResults:        exaResults,
		TavilyResults:     tavilyResults,
		AggregatedResults: o.agg.Merge(exaResults, tavilyResults),
		ExaSuccess:        exaErr == nil,
		TavilySuccess:     tavilyErr == nil,
		ExaAttempted:      true,
		TavilyAttempted:   true,
		Metadata: map[string]any{
			"require_both":    requireBoth,
			"execution_order": []string{o.exa.Name(), o.tavily.Name()},
		},
	}, nil
}

// intelligentSearch 按查询特征选择路由；单提供商分支跳过聚合（没有可合并的对象）
func (o *Orchestrator) intelligentSearch(ctx context.Context, q *Query, requireBoth bool) (*DualSearchResult, error) {
	switch o.classify(q) {
	case RouteNeural:
		results, err := o.exa.SearchWithRetry(ctx, q)
		if err != nil {
			logger.Log.Warnf("exa intelligent 搜索失败: %v", err)
			if requireBoth {
				return nil, &OrchestrationError{
					Message:         "exa search failed",
					FailedProviders: []string{o.exa.Name()},
				}
			}
		}
		return &DualSearchResult{
			Query:             q.Query,
			ExaResults:        results,
			AggregatedResults: results,
			SearchStrategy:    "intelligent_exa_only",
			ExaSuccess:        err == nil,
			TavilySuccess:     true, // 未尝试，不算失败
			ExaAttempted:      true,
			Metadata: map[string]any{
				"intelligent_choice": "exa_only",
				"reasoning":          "query best suited for neural search",
			},
		}, nil

	case RouteWeb:
		results, err := o.tavily.SearchWithRetry(ctx, o.webQuery(q))
		if err != nil {
			logger.Log.Warnf("tavily intelligent 搜索失败: %v", err)
			if requireBoth {
				return nil, &OrchestrationError{
					Message:         "tavily search failed",
					FailedProviders: []string{o.tavily.Name()},
				}
			}
		}
		return &DualSearchResult{
			Query:             q.Query,
			TavilyResults:     results,
			AggregatedResults: results,
			SearchStrategy:    "intelligent_tavily_only",
			ExaSuccess:        true, // 未尝试，不算失败
			TavilySuccess:     err == nil,
			TavilyAttempted:   true,
			Metadata: map[string]any{
				"intelligent_choice": "tavily_only",
				"reasoning":          "query best suited for web search",
			},
		}, nil

	default:
		return o.parallelSearch(ctx, q, requireBoth)
	}
}

// webQuery 把查询转换成适合网页搜索提供商的形态（日期过滤与 autoprompt 不透传）
func (o *Orchestrator) webQuery(q *Query) *Query {
	return &Query{
		Query:          q.Query,
		MaxResults:     q.MaxResults,
		SearchType:     TypeWeb,
		IncludeDomains: q.IncludeDomains,
		ExcludeDomains: q.ExcludeDomains,
	}
}

// Metrics 编排器滚动指标快照
func (o *Orchestrator) Metrics() Metrics {
	o.mu.Lock()
	defer o.mu.Unlock()

	m := Metrics{
		TotalSearches:      o.searchCount,
		SuccessfulSearches: o.successCount,
		FailedSearches:     o.searchCount - o.successCount,
	}
	if o.successCount > 0 {
		m.AverageResponseTime = o.totalTime / time.Duration(o.successCount)
	}
	return m
}

// Providers 返回编排器持有的两个提供商（按 神经搜索, 网页搜索 顺序）
func (o *Orchestrator) Providers() (Provider, Provider) {
	return o.exa, o.tavily
}
