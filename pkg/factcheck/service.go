package factcheck

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iWorld-y/claim_radar/pkg/detector"
	"github.com/iWorld-y/claim_radar/pkg/logger"
	"github.com/iWorld-y/claim_radar/pkg/search"
)

// 置信度加权：证据支持 / 幻觉检测 / 搜索成功率 / 证据量
const (
	weightSupport       = 0.4
	weightHallucination = 0.3
	weightSearch        = 0.2
	weightEvidence      = 0.1
)

// Result 事实核查结果
type Result struct {
	Claim                 string                        `json:"claim"`
	Verdict               string                        `json:"verdict"`
	Confidence            float64                       `json:"confidence"`
	HallucinationAnalysis *detector.HallucinationResult `json:"hallucination_analysis"`
	SearchResults         *search.DualSearchResult      `json:"search_results"`
	EvidenceSummary       string                        `json:"evidence_summary"`
	SourcesUsed           []string                      `json:"sources_used"`
	ProcessingTime        time.Duration                 `json:"processing_time"`
	AccuracyScore         float64                       `json:"accuracy_score"`
	Context               string                        `json:"context,omitempty"`
}

// IsReliable 结果是否可靠：置信度、幻觉检测置信度、搜索成功率三道门各自独立
func (r *Result) IsReliable() bool {
	return r.Confidence >= 0.7 &&
		r.HallucinationAnalysis.ConfidenceScore >= 0.7 &&
		r.SearchResults.SuccessRate() >= 0.5
}

// Options 单次核查的选项
type Options struct {
	// Strategy 搜索策略，空值时默认 intelligent
	Strategy search.Strategy
	// RequireBoth 要求两个搜索提供商都成功
	RequireBoth bool
	// EnableHallucinationDetection 是否启用幻觉检测
	EnableHallucinationDetection bool
	// Context 断言的补充上下文，原样带回结果
	Context string
}

// Service 事实核查服务：组合双引擎搜索与幻觉检测
type Service struct {
	orchestrator *search.Orchestrator
	detector     *detector.Detector
	maxResults   int

	mu             sync.Mutex
	checksTotal    int
	checksSucceded int
	totalTime      time.Duration
}

// Stats 服务级统计
type Stats struct {
	FactChecksPerformed   int            `json:"fact_checks_performed"`
	SuccessfulFactChecks  int            `json:"successful_fact_checks"`
	SuccessRate           float64        `json:"success_rate"`
	AverageProcessingTime time.Duration  `json:"average_processing_time"`
	DualSearchStats       search.Metrics `json:"dual_search_stats"`
}

// NewService 创建核查服务。det 可以为 nil（幻觉检测整体关闭）。
// maxResults 为零时默认 10。
func NewService(orchestrator *search.Orchestrator, det *detector.Detector, maxResults int) *Service {
	if maxResults <= 0 {
		maxResults = 10
	}
	logger.Log.Info("事实核查服务已初始化")
	return &Service{
		orchestrator: orchestrator,
		detector:     det,
		maxResults:   maxResults,
	}
}

// CheckFact 对断言执行完整核查：双引擎搜证 → 幻觉检测 → 证据分析 →
// 加权置信度 → 结论与准确度
func (s *Service) CheckFact(ctx context.Context, claim string, opts Options) (*Result, error) {
	start := time.Now()
	s.mu.Lock()
	s.checksTotal++
	s.mu.Unlock()

	strategy := opts.Strategy
	if strategy == "" {
		strategy = search.StrategyIntelligent
	}
	logger.Log.Infof("开始事实核查: %s", truncate(claim, 100))

	// 搜索类型留空，intelligent 策略按断言内容自行路由
	q := &search.Query{
		Query:      claim,
		MaxResults: s.maxResults,
	}
	searchResults, err := s.orchestrator.Search(ctx, q, strategy, opts.RequireBoth)
	if err != nil {
		logger.Log.Errorf("事实核查搜索失败: %v", err)
		return nil, err
	}

	var hallucination *detector.HallucinationResult
	if opts.EnableHallucinationDetection && s.detector != nil {
		hallucination, err = s.detector.Detect(ctx, claim)
		if err != nil {
			logger.Log.Errorf("幻觉检测失败: %v", err)
			return nil, err
		}
	} else {
		hallucination = detector.DisabledResult(claim)
	}

	analysis := analyzeEvidence(claim, searchResults.AggregatedResults)
	confidence := enhancedConfidence(analysis, hallucination, searchResults)
	verdict := determineVerdict(analysis, hallucination, confidence)
	accuracy := accuracyScore(confidence, hallucination, searchResults)

	elapsed := time.Since(start)
	s.mu.Lock()
	s.checksSucceded++
	s.totalTime += elapsed
	s.mu.Unlock()

	result := &Result{
		Claim:                 claim,
		Verdict:               verdict,
		Confidence:            confidence,
		HallucinationAnalysis: hallucination,
		SearchResults:         searchResults,
		EvidenceSummary:       evidenceSummary(searchResults, hallucination),
		SourcesUsed:           sourcesUsed(searchResults),
		ProcessingTime:        elapsed,
		AccuracyScore:         accuracy,
		Context:               opts.Context,
	}

	logger.Log.Infof("事实核查完成: verdict=%s, confidence=%.3f, hallucination=%v, 耗时 %.2fs",
		verdict, confidence, hallucination.IsHallucination, elapsed.Seconds())
	return result, nil
}

// DetectHallucination 只执行幻觉检测
func (s *Service) DetectHallucination(ctx context.Context, claim string) (*detector.HallucinationResult, error) {
	if s.detector == nil {
		return nil, &search.DetectionError{Message: "hallucination detector not available"}
	}
	return s.detector.Detect(ctx, claim)
}

// SearchNeuralOnly 只使用神经搜索提供商执行一次搜索
func (s *Service) SearchNeuralOnly(ctx context.Context, query string, searchType search.SearchType, maxResults int) ([]search.Result, error) {
	exa, _ := s.orchestrator.Providers()
	if searchType == "" {
		searchType = search.TypeNeural
	}
	if maxResults <= 0 {
		maxResults = s.maxResults
	}
	q := &search.Query{
		Query:      query,
		SearchType: searchType,
		MaxResults: maxResults,
	}
	return exa.SearchWithRetry(ctx, q)
}

// Stats 服务统计快照
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		FactChecksPerformed:  s.checksTotal,
		SuccessfulFactChecks: s.checksSucceded,
		DualSearchStats:      s.orchestrator.Metrics(),
	}
	if s.checksTotal > 0 {
		stats.SuccessRate = float64(s.checksSucceded) / float64(s.checksTotal)
		stats.AverageProcessingTime = s.totalTime / time.Duration(s.checksTotal)
	}
	return stats
}

// evidenceAnalysis 聚合证据的支持/反驳分析
type evidenceAnalysis struct {
	SupportScore       float64
	ContradictionScore float64
	EvidenceQuality    float64
	Reasoning          string
}

// analyzeEvidence 分析聚合证据：与断言重叠超过 2 个词的证据才算相关，
// 相关证据中含反驳词的记反驳，否则记支持；证据量按 5 条封顶折算质量分
func analyzeEvidence(claim string, evidence []search.Result) evidenceAnalysis {
	if len(evidence) == 0 {
		return evidenceAnalysis{Reasoning: "No evidence found"}
	}

	claimWords := tokenSet(claim)
	var support, contradiction int

	for _, r := range evidence {
		words := tokenSet(r.Content + " " + r.Title)
		if overlapCount(claimWords, words) <= 2 {
			continue
		}
		if hasContradictionIndicator(words) {
			contradiction++
		} else {
			support++
		}
	}

	analysis := evidenceAnalysis{
		EvidenceQuality: minFloat(1.0, float64(len(evidence))/5.0),
		Reasoning: fmt.Sprintf("Found %d supporting and %d contradicting evidence items",
			support, contradiction),
	}
	if relevant := support + contradiction; relevant > 0 {
		analysis.SupportScore = float64(support) / float64(relevant)
		analysis.ContradictionScore = float64(contradiction) / float64(relevant)
	}
	return analysis
}

// enhancedConfidence 加权合成最终置信度。
// 幻觉因子取检测置信度，判定为幻觉时取反向（1-score）。
func enhancedConfidence(a evidenceAnalysis, h *detector.HallucinationResult, sr *search.DualSearchResult) float64 {
	hallucinationFactor := h.ConfidenceScore
	if h.IsHallucination {
		hallucinationFactor = 1.0 - hallucinationFactor
	}

	confidence := a.SupportScore*weightSupport +
		hallucinationFactor*weightHallucination +
		sr.SuccessRate()*weightSearch +
		a.EvidenceQuality*weightEvidence

	if confidence < 0 {
		return 0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return confidence
}

// determineVerdict 结论阶梯：高置信幻觉优先，其余按置信度分档
func determineVerdict(a evidenceAnalysis, h *detector.HallucinationResult, confidence float64) string {
	if h.IsHallucination && h.ConfidenceScore > 0.8 {
		return "False - Likely Hallucination"
	}

	switch {
	case confidence >= 0.8:
		if a.SupportScore > a.ContradictionScore {
			return "True"
		}
		return "False"
	case confidence >= 0.6:
		return "Partially True"
	case confidence >= 0.4:
		return "Unverifiable"
	default:
		return "False"
	}
}

// accuracyScore 在置信度基础上叠加质量加成：
// 高置信幻觉检测 ×1.1，双引擎全部成功 ×1.05，封顶 1.0
func accuracyScore(confidence float64, h *detector.HallucinationResult, sr *search.DualSearchResult) float64 {
	accuracy := confidence
	if h.ConfidenceScore > 0.8 {
		accuracy *= 1.1
	}
	if sr.SuccessRate() == 1.0 {
		accuracy *= 1.05
	}
	return minFloat(1.0, accuracy)
}

// evidenceSummary 生成证据摘要文本（来源计数、幻觉分析、头部来源）
func evidenceSummary(sr *search.DualSearchResult, h *detector.HallucinationResult) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Found %d total evidence sources:\n", sr.TotalResults())
	fmt.Fprintf(&sb, "- Exa.ai neural search: %d results\n", len(sr.ExaResults))
	fmt.Fprintf(&sb, "- Tavily web search: %d results\n", len(sr.TavilyResults))
	sb.WriteString("\nHallucination Analysis:\n")
	fmt.Fprintf(&sb, "- Risk level: %s\n", h.RiskLevel())
	fmt.Fprintf(&sb, "- Key facts analyzed: %d", len(h.KeyFacts))

	if len(sr.AggregatedResults) > 0 {
		sb.WriteString("\n\nTop Evidence Sources:")
		for i, r := range sr.AggregatedResults {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&sb, "\n%d. %s (%s)", i+1, r.Title, r.Source)
		}
	}
	return sb.String()
}

// sourcesUsed 实际产出结果且成功的提供商列表
func sourcesUsed(sr *search.DualSearchResult) []string {
	sources := []string{}
	if sr.ExaSuccess && len(sr.ExaResults) > 0 {
		sources = append(sources, "exa")
	}
	if sr.TavilySuccess && len(sr.TavilyResults) > 0 {
		sources = append(sources, "tavily")
	}
	return sources
}

// 核查阶段的反驳指示词
var contradictionIndicators = map[string]struct{}{
	"false": {}, "incorrect": {}, "wrong": {}, "untrue": {}, "myth": {},
	"debunked": {}, "not": {}, "never": {}, "denied": {}, "refuted": {},
	"disputed": {},
}

func hasContradictionIndicator(words map[string]struct{}) bool {
	for w := range contradictionIndicators {
		if _, ok := words[w]; ok {
			return true
		}
	}
	return false
}

func tokenSet(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func overlapCount(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
