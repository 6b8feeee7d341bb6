package search

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockProvider 模拟搜索提供商
type mockProvider struct {
	name      string
	results   []Result
	err       error
	lastQuery *Query
	calls     int
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Search(ctx context.Context, q *Query) ([]Result, error) {
	return m.results, m.err
}

func (m *mockProvider) SearchWithRetry(ctx context.Context, q *Query) ([]Result, error) {
	m.calls++
	m.lastQuery = q
	return m.results, m.err
}

func (m *mockProvider) HealthCheck(ctx context.Context) bool { return m.err == nil }

func (m *mockProvider) Status(ctx context.Context) ProviderStatus {
	return ProviderStatus{ProviderName: m.name, IsHealthy: m.err == nil}
}

func newTestOrchestrator(exa, tavily Provider) *Orchestrator {
	return NewOrchestrator(exa, tavily, NewAggregator(true, 10, "exa"), time.Second)
}

func TestOrchestrator_ParallelSearch(t *testing.T) {
	exa := &mockProvider{name: "exa", results: []Result{{URL: "https://a.com", Score: 0.9, Source: "exa"}}}
	tavily := &mockProvider{name: "tavily", results: []Result{{URL: "https://b.com", Score: 0.8, Source: "tavily"}}}
	o := newTestOrchestrator(exa, tavily)

	result, err := o.Search(context.Background(), &Query{Query: "test"}, StrategyParallel, false)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !result.ExaSuccess || !result.TavilySuccess {
		t.Errorf("success flags = %v/%v, want true/true", result.ExaSuccess, result.TavilySuccess)
	}
	if !result.ExaAttempted || !result.TavilyAttempted {
		t.Errorf("attempted flags = %v/%v, want true/true", result.ExaAttempted, result.TavilyAttempted)
	}
	if result.TotalResults() != 2 {
		t.Errorf("TotalResults() = %d, want 2", result.TotalResults())
	}
	if result.SearchStrategy != "parallel" {
		t.Errorf("SearchStrategy = %s, want parallel", result.SearchStrategy)
	}
	if result.SuccessRate() != 1.0 {
		t.Errorf("SuccessRate() = %v, want 1.0", result.SuccessRate())
	}
}

func TestOrchestrator_ParallelSearch_OneFailure(t *testing.T) {
	exa := &mockProvider{name: "exa", err: errors.New("boom")}
	tavily := &mockProvider{name: "tavily", results: []Result{{URL: "https://b.com", Score: 0.8}}}
	o := newTestOrchestrator(exa, tavily)

	result, err := o.Search(context.Background(), &Query{Query: "test"}, StrategyParallel, false)
	if err != nil {
		t.Fatalf("Search() error = %v, 单提供商失败应被吸收", err)
	}
	if result.ExaSuccess {
		t.Error("ExaSuccess = true, want false")
	}
	if !result.TavilySuccess {
		t.Error("TavilySuccess = false, want true")
	}
	if got := result.SuccessRate(); got != 0.5 {
		t.Errorf("SuccessRate() = %v, want 0.5", got)
	}
}

func TestOrchestrator_ParallelSearch_RequireBoth(t *testing.T) {
	exa := &mockProvider{name: "exa", err: errors.New("boom")}
	tavily := &mockProvider{name: "tavily", results: []Result{{URL: "https://b.com"}}}
	o := newTestOrchestrator(exa, tavily)

	_, err := o.Search(context.Background(), &Query{Query: "test"}, StrategyParallel, true)
	if err == nil {
		t.Fatal("Search() error = nil, want OrchestrationError")
	}
	var oe *OrchestrationError
	if !errors.As(err, &oe) {
		t.Fatalf("error type = %T, want *OrchestrationError", err)
	}
	if len(oe.FailedProviders) != 1 || oe.FailedProviders[0] != "exa" {
		t.Errorf("FailedProviders = %v, want [exa]", oe.FailedProviders)
	}
}

func TestOrchestrator_SequentialSearch_FailFast(t *testing.T) {
	exa := &mockProvider{name: "exa", err: errors.New("boom")}
	tavily := &mockProvider{name: "tavily", results: []Result{{URL: "https://b.com"}}}
	o := newTestOrchestrator(exa, tavily)

	_, err := o.Search(context.Background(), &Query{Query: "test"}, StrategySequential, true)
	if err == nil {
		t.Fatal("Search() error = nil, want fail fast")
	}
	if tavily.calls != 0 {
		t.Errorf("tavily calls = %d, 第一家失败后不应再调用第二家", tavily.calls)
	}
}

func TestOrchestrator_IntelligentSearch_WebRoute(t *testing.T) {
	exa := &mockProvider{name: "exa", results: []Result{{URL: "https://a.com"}}}
	tavily := &mockProvider{name: "tavily", results: []Result{{URL: "https://b.com", Score: 0.8}}}
	o := newTestOrchestrator(exa, tavily)

	result, err := o.Search(context.Background(),
		&Query{Query: "latest Bitcoin price today"}, StrategyIntelligent, false)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if exa.calls != 0 {
		t.Errorf("exa calls = %d, 时效类查询应只走网页搜索", exa.calls)
	}
	if tavily.calls != 1 {
		t.Errorf("tavily calls = %d, want 1", tavily.calls)
	}
	if result.SearchStrategy != "intelligent_tavily_only" {
		t.Errorf("SearchStrategy = %s, want intelligent_tavily_only", result.SearchStrategy)
	}
	if result.TavilyAttempted == false || result.ExaAttempted == true {
		t.Errorf("attempted flags = exa:%v tavily:%v", result.ExaAttempted, result.TavilyAttempted)
	}
	// 未尝试的提供商不计入成功率
	if result.SuccessRate() != 1.0 {
		t.Errorf("SuccessRate() = %v, want 1.0", result.SuccessRate())
	}
	if tavily.lastQuery.SearchType != TypeWeb {
		t.Errorf("tavily query type = %s, want web", tavily.lastQuery.SearchType)
	}
}

func TestOrchestrator_IntelligentSearch_NeuralRoute(t *testing.T) {
	exa := &mockProvider{name: "exa", results: []Result{{URL: "https://a.com"}}}
	tavily := &mockProvider{name: "tavily"}
	o := newTestOrchestrator(exa, tavily)

	result, err := o.Search(context.Background(),
		&Query{Query: "explain the concept of quantum entanglement"}, StrategyIntelligent, false)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if tavily.calls != 0 || exa.calls != 1 {
		t.Errorf("calls = exa:%d tavily:%d, want 1/0", exa.calls, tavily.calls)
	}
	if result.SearchStrategy != "intelligent_exa_only" {
		t.Errorf("SearchStrategy = %s, want intelligent_exa_only", result.SearchStrategy)
	}
}

func TestOrchestrator_IntelligentSearch_ExplicitTypeOverride(t *testing.T) {
	exa := &mockProvider{name: "exa", results: []Result{{URL: "https://a.com"}}}
	tavily := &mockProvider{name: "tavily"}
	o := newTestOrchestrator(exa, tavily)

	// 查询含时效词但显式指定 neural，显式类型优先
	_, err := o.Search(context.Background(),
		&Query{Query: "latest news about relativity", SearchType: TypeNeural}, StrategyIntelligent, false)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if exa.calls != 1 || tavily.calls != 0 {
		t.Errorf("calls = exa:%d tavily:%d, want 1/0", exa.calls, tavily.calls)
	}
}

func TestOrchestrator_IntelligentSearch_FallbackParallel(t *testing.T) {
	exa := &mockProvider{name: "exa", results: []Result{{URL: "https://a.com"}}}
	tavily := &mockProvider{name: "tavily", results: []Result{{URL: "https://b.com"}}}
	o := newTestOrchestrator(exa, tavily)

	result, err := o.Search(context.Background(),
		&Query{Query: "water boils at 100 degrees"}, StrategyIntelligent, false)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if exa.calls != 1 || tavily.calls != 1 {
		t.Errorf("calls = exa:%d tavily:%d, 两边都不命中时应回落并行", exa.calls, tavily.calls)
	}
	if result.SearchStrategy != "intelligent" {
		t.Errorf("SearchStrategy = %s, want intelligent", result.SearchStrategy)
	}
}

func TestOrchestrator_UnknownStrategy(t *testing.T) {
	o := newTestOrchestrator(&mockProvider{name: "exa"}, &mockProvider{name: "tavily"})

	_, err := o.Search(context.Background(), &Query{Query: "test"}, Strategy("bogus"), false)
	if err == nil {
		t.Fatal("Search() error = nil, want unknown strategy error")
	}
}

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		query string
		qtype SearchType
		want  Route
	}{
		{"explain the meaning of life", "", RouteNeural},
		{"breaking news today", "", RouteWeb},
		{"water is wet", "", RouteBoth},
		{"latest stock price", TypeNeural, RouteNeural},
		{"philosophy of mind", TypeWeb, RouteWeb},
	}

	for _, tt := range tests {
		got := DefaultClassifier(&Query{Query: tt.query, SearchType: tt.qtype})
		if got != tt.want {
			t.Errorf("DefaultClassifier(%q, %q) = %v, want %v", tt.query, tt.qtype, got, tt.want)
		}
	}
}

func TestOrchestrator_Metrics(t *testing.T) {
	exa := &mockProvider{name: "exa", results: []Result{{URL: "https://a.com"}}}
	tavily := &mockProvider{name: "tavily", results: []Result{{URL: "https://b.com"}}}
	o := newTestOrchestrator(exa, tavily)

	for i := 0; i < 3; i++ {
		if _, err := o.Search(context.Background(), &Query{Query: "test"}, StrategyParallel, false); err != nil {
			t.Fatalf("Search() error = %v", err)
		}
	}

	m := o.Metrics()
	if m.TotalSearches != 3 || m.SuccessfulSearches != 3 {
		t.Errorf("Metrics = %+v, want 3/3", m)
	}
}
