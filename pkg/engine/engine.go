package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/iWorld-y/claim_radar/pkg/analyst"
	"github.com/iWorld-y/claim_radar/pkg/cache"
	"github.com/iWorld-y/claim_radar/pkg/config"
	"github.com/iWorld-y/claim_radar/pkg/detector"
	"github.com/iWorld-y/claim_radar/pkg/exa"
	"github.com/iWorld-y/claim_radar/pkg/factcheck"
	"github.com/iWorld-y/claim_radar/pkg/logger"
	"github.com/iWorld-y/claim_radar/pkg/search"
	"github.com/iWorld-y/claim_radar/pkg/storage"
	"github.com/iWorld-y/claim_radar/pkg/tavily"
)

// Engine 核查引擎：按配置装配提供商、编排器、检测器、缓存与落库，
// 对上层（CLI / HTTP 服务）暴露统一入口。
type Engine struct {
	cfg          *config.Config
	orchestrator *search.Orchestrator
	service      *factcheck.Service
	analyst      *analyst.Analyst
	store        *storage.Storage

	factCache   *cache.Cache[*factcheck.Result]
	searchCache *cache.Cache[*search.DualSearchResult]
}

// Status 引擎整体状态
type Status struct {
	Providers   []search.ProviderStatus `json:"providers"`
	Service     factcheck.Stats         `json:"service"`
	CacheStats  *cache.Stats            `json:"cache_stats,omitempty"`
	StorageUp   bool                    `json:"storage_up"`
	AnalystUp   bool                    `json:"analyst_up"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// NewEngine 按配置装配引擎。两个搜索提供商缺一不可，
// LLM 解读与数据库落库按配置可选。
func NewEngine(ctx context.Context, cfg *config.Config) (*Engine, error) {
	exaClient, err := exa.NewClient(
		cfg.Search.Exa.APIKey,
		cfg.ExaTimeout(),
		cfg.Search.Exa.MaxRetries,
		cfg.Search.Exa.RateCalls,
		time.Duration(cfg.Search.Exa.RatePeriod)*time.Second,
	)
	if err != nil {
		return nil, fmt.Errorf("exa client init: %w", err)
	}

	tavilyClient, err := tavily.NewClient(
		cfg.Search.Tavily.APIKey,
		cfg.TavilyTimeout(),
		cfg.Search.Tavily.MaxRetries,
	)
	if err != nil {
		return nil, fmt.Errorf("tavily client init: %w", err)
	}

	agg := search.NewAggregator(true, cfg.Search.Dual.MaxResults, exaClient.Name())
	orchestrator := search.NewOrchestrator(exaClient, tavilyClient, agg, cfg.DualTimeout())

	var det *detector.Detector
	if cfg.Hallucination.Enabled {
		det = detector.NewDetector(exaClient, cfg.Hallucination.Threshold)
		det.EnrichContent = cfg.Hallucination.EnrichContent
	}

	e := &Engine{
		cfg:          cfg,
		orchestrator: orchestrator,
		service:      factcheck.NewService(orchestrator, det, cfg.Search.Dual.MaxResults),
	}

	if cfg.Cache.Enabled {
		e.factCache = cache.New[*factcheck.Result](cfg.Cache.MaxSize, cfg.CacheTTL())
		e.searchCache = cache.New[*search.DualSearchResult](cfg.Cache.MaxSize, cfg.CacheTTL())
	}

	if cfg.LLM.APIKey != "" {
		a, err := analyst.NewAnalyst(ctx, cfg.LLM, cfg.UserPersona)
		if err != nil {
			logger.Log.Warnf("LLM 解读器初始化失败，已跳过: %v", err)
		} else {
			e.analyst = a
		}
	}

	if cfg.DB.Host != "" {
		store, err := storage.NewStorage(cfg.DB)
		if err != nil {
			logger.Log.Warnf("数据库连接失败，核查历史不落库: %v", err)
		} else {
			e.store = store
			logger.Log.Info("已成功连接到数据库")
		}
	} else {
		logger.Log.Info("未配置数据库信息，跳过数据库连接")
	}

	return e, nil
}

// Close 释放持有的外部资源
func (e *Engine) Close() error {
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// CheckFact 执行事实核查，缓存启用时相同断言与选项直接命中
func (e *Engine) CheckFact(ctx context.Context, claim string, opts factcheck.Options) (*factcheck.Result, error) {
	params := map[string]any{
		"strategy":      string(opts.Strategy),
		"require_both":  opts.RequireBoth,
		"hallucination": opts.EnableHallucinationDetection,
	}
	if e.factCache != nil {
		if cached, ok := e.factCache.Get(claim, params); ok {
			logger.Log.Infof("核查缓存命中: %s", claim)
			return cached, nil
		}
	}

	result, err := e.service.CheckFact(ctx, claim, opts)
	if err != nil {
		return nil, err
	}

	if e.factCache != nil {
		e.factCache.Set(claim, params, result)
	}
	if e.store != nil {
		if _, err := e.store.SaveFactCheck(result); err != nil {
			logger.Log.Warnf("核查结果落库失败: %v", err)
		}
	}
	return result, nil
}

// Search 执行双引擎搜索（不经过核查流水线）
func (e *Engine) Search(ctx context.Context, q *search.Query, strategy search.Strategy, requireBoth bool) (*search.DualSearchResult, error) {
	if strategy == "" {
		strategy = search.Strategy(e.cfg.Search.Dual.Strategy)
	}

	params := map[string]any{
		"strategy":     string(strategy),
		"require_both": requireBoth,
		"max_results":  q.MaxResults,
		"search_type":  string(q.SearchType),
	}
	if e.searchCache != nil {
		if cached, ok := e.searchCache.Get(q.Query, params); ok {
			logger.Log.Infof("搜索缓存命中: %s", q.Query)
			return cached, nil
		}
	}

	result, err := e.orchestrator.Search(ctx, q, strategy, requireBoth)
	if err != nil {
		return nil, err
	}

	if e.searchCache != nil {
		e.searchCache.Set(q.Query, params, result)
	}
	return result, nil
}

// DetectHallucination 只执行幻觉检测
func (e *Engine) DetectHallucination(ctx context.Context, claim string) (*detector.HallucinationResult, error) {
	return e.service.DetectHallucination(ctx, claim)
}

// Interpret 调用 LLM 解读核查结果，解读器未配置时返回 nil
func (e *Engine) Interpret(ctx context.Context, result *factcheck.Result) (*analyst.Interpretation, error) {
	if e.analyst == nil {
		return nil, nil
	}
	return e.analyst.Interpret(ctx, result)
}

// History 最近的核查历史记录，数据库未配置时返回空
func (e *Engine) History(limit int) ([]storage.FactCheckRecord, error) {
	if e.store == nil {
		return nil, nil
	}
	return e.store.ListRecent(limit)
}

// Status 引擎状态快照：提供商健康、服务统计与缓存命中率
func (e *Engine) Status(ctx context.Context) Status {
	exaProvider, tavilyProvider := e.orchestrator.Providers()

	status := Status{
		Providers: []search.ProviderStatus{
			exaProvider.Status(ctx),
			tavilyProvider.Status(ctx),
		},
		Service:     e.service.Stats(),
		StorageUp:   e.store != nil,
		AnalystUp:   e.analyst != nil,
		GeneratedAt: time.Now(),
	}
	if e.factCache != nil {
		stats := e.factCache.Stats()
		status.CacheStats = &stats
	}
	return status
}

// DefaultOptions 配置文件给出的默认核查选项
func (e *Engine) DefaultOptions() factcheck.Options {
	return factcheck.Options{
		Strategy:                     search.Strategy(e.cfg.Search.Dual.Strategy),
		RequireBoth:                  e.cfg.Search.Dual.RequireBoth,
		EnableHallucinationDetection: e.cfg.Hallucination.Enabled,
	}
}
