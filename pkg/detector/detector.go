package detector

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/iWorld-y/claim_radar/pkg/logger"
	"github.com/iWorld-y/claim_radar/pkg/search"
)

const (
	// 每条关键事实检索的证据数
	evidencePerFact = 3
	// 针对原始断言整体检索的证据数
	evidenceForClaim = 5
	// 证据去重后的总量上限
	maxEvidence = 10
	// 证据正文短于该长度时尝试抓取原文补全
	minContentLength = 500
	// 抓取补全后的正文截断长度
	maxContentLength = 5000
)

// 证据中出现这些词且与断言有明显词汇重叠时，视为反驳信号
var contradictionWords = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "false": {}, "incorrect": {},
	"wrong": {}, "untrue": {}, "denied": {}, "refuted": {},
	"disputed": {}, "debunked": {}, "myth": {},
}

// HallucinationResult 幻觉检测结果
type HallucinationResult struct {
	Claim               string          `json:"claim"`
	IsHallucination     bool            `json:"is_hallucination"`
	ConfidenceScore     float64         `json:"confidence_score"`
	Evidence            []search.Result `json:"evidence"`
	KeyFacts            []string        `json:"key_facts"`
	Analysis            string          `json:"analysis"`
	ProcessingTime      time.Duration   `json:"processing_time"`
	EvidenceConsistency float64         `json:"evidence_consistency"`
	SourceCredibility   float64         `json:"source_credibility"`
}

// RiskLevel 结果的风险等级：高置信度时按是否幻觉区分 HIGH/LOW，
// 中等置信度为 MEDIUM，更低则视为 UNCERTAIN
func (r *HallucinationResult) RiskLevel() string {
	switch {
	case r.ConfidenceScore >= 0.9:
		if r.IsHallucination {
			return "HIGH"
		}
		return "LOW"
	case r.ConfidenceScore >= 0.7:
		return "MEDIUM"
	default:
		return "UNCERTAIN"
	}
}

// DisabledResult 检测功能关闭时返回的中性占位结果
func DisabledResult(claim string) *HallucinationResult {
	return &HallucinationResult{
		Claim:               claim,
		IsHallucination:     false,
		ConfidenceScore:     0.5,
		Evidence:            []search.Result{},
		KeyFacts:            []string{},
		Analysis:            "Hallucination detection not enabled",
		EvidenceConsistency: 0.5,
		SourceCredibility:   0.5,
	}
}

// Detector 基于神经搜索证据的幻觉检测器。
// 流程：抽取关键事实 → 逐条检索证据 → 一致性分析 → 来源可信度 → 结论。
type Detector struct {
	provider  search.Provider
	threshold float64
	// EnrichContent 为 true 时对过短的证据正文抓取原文补全
	EnrichContent bool

	searchDelay time.Duration
	fetchText   func(u string) (string, error)
}

// NewDetector 创建检测器，threshold 为零时默认 0.7
func NewDetector(provider search.Provider, threshold float64) *Detector {
	if threshold <= 0 {
		threshold = 0.7
	}
	d := &Detector{
		provider:    provider,
		threshold:   threshold,
		searchDelay: 100 * time.Millisecond,
		fetchText: func(u string) (string, error) {
			article, err := readability.FromURL(u, 30*time.Second)
			if err != nil {
				return "", err
			}
			return article.TextContent, nil
		},
	}
	logger.Log.Infof("幻觉检测器已初始化, 阈值: %.2f", threshold)
	return d
}

// Threshold 当前的一致性阈值
func (d *Detector) Threshold() float64 { return d.threshold }

// Detect 对断言执行幻觉检测。
// 单条事实的检索失败只记日志并跳过，整体只在上下文取消时返回错误。
func (d *Detector) Detect(ctx context.Context, claim string) (*HallucinationResult, error) {
	start := time.Now()
	logger.Log.Infof("开始幻觉检测: %s", truncate(claim, 100))

	keyFacts := ExtractKeyFacts(claim)
	logger.Log.Debugf("抽取到 %d 条关键事实: %v", len(keyFacts), keyFacts)

	evidence, err := d.gatherEvidence(ctx, keyFacts, claim)
	if err != nil {
		return nil, &search.DetectionError{Message: "evidence gathering aborted", Err: err}
	}
	logger.Log.Debugf("收集到 %d 条证据", len(evidence))

	consistency := analyzeConsistency(claim, evidence)
	credibility := sourceCredibility(evidence)
	isHallucination := consistency.Score < d.threshold

	result := &HallucinationResult{
		Claim:               claim,
		IsHallucination:     isHallucination,
		ConfidenceScore:     consistency.Score,
		Evidence:            evidence,
		KeyFacts:            keyFacts,
		Analysis:            buildAnalysis(claim, evidence, consistency, credibility),
		ProcessingTime:      time.Since(start),
		EvidenceConsistency: consistency.Score,
		SourceCredibility:   credibility,
	}

	logger.Log.Infof("幻觉检测完成: is_hallucination=%v, confidence=%.3f, 耗时 %.2fs",
		isHallucination, consistency.Score, result.ProcessingTime.Seconds())
	return result, nil
}

// gatherEvidence 逐条事实检索证据，再对断言整体检索一次，按 URL 去重
func (d *Detector) gatherEvidence(ctx context.Context, keyFacts []string, claim string) ([]search.Result, error) {
	var evidence []search.Result

	for _, fact := range keyFacts {
		q := &search.Query{
			Query:         fact,
			SearchType:    search.TypeNeural,
			MaxResults:    evidencePerFact,
			UseAutoprompt: true,
		}
		results, err := d.provider.SearchWithRetry(ctx, q)
		if err != nil {
			logger.Log.Warnf("事实检索失败, 跳过 '%s': %v", fact, err)
			continue
		}
		evidence = append(evidence, results...)

		// 间隔一小段时间，避免对 API 造成压力
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.searchDelay):
		}
	}

	claimQuery := &search.Query{
		Query:         claim,
		SearchType:    search.TypeNeural,
		MaxResults:    evidenceForClaim,
		UseAutoprompt: true,
	}
	claimResults, err := d.provider.SearchWithRetry(ctx, claimQuery)
	if err != nil {
		logger.Log.Warnf("断言整体检索失败: %v", err)
	} else {
		evidence = append(evidence, claimResults...)
	}

	seen := make(map[string]struct{}, len(evidence))
	unique := make([]search.Result, 0, len(evidence))
	for _, r := range evidence {
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		unique = append(unique, r)
	}
	if len(unique) > maxEvidence {
		unique = unique[:maxEvidence]
	}

	if d.EnrichContent {
		d.enrich(unique)
	}
	return unique, nil
}

// enrich 对正文过短的证据抓取原文补全，失败时保留原始摘要
func (d *Detector) enrich(evidence []search.Result) {
	for i := range evidence {
		if len(evidence[i].Content) >= minContentLength {
			continue
		}
		text, err := d.fetchText(evidence[i].URL)
		if err != nil {
			logger.Log.Debugf("原文抓取失败, 保留摘要 [%s]: %v", evidence[i].URL, err)
			continue
		}
		if len(text) > maxContentLength {
			text = text[:maxContentLength]
		}
		if len(text) > len(evidence[i].Content) {
			evidence[i].Content = text
		}
	}
}

// consistencyAnalysis 断言与证据的一致性分析
type consistencyAnalysis struct {
	Score              float64
	Reasoning          string
	SupportingCount    int
	ContradictingCount int
	NeutralCount       int
	SupportRatio       float64
	ContradictionRatio float64
}

// analyzeConsistency 基于词汇重叠的一致性分析：
// 证据含反驳词且与断言重叠超过 2 个词记为反驳；重叠超过 3 个词记为支持；
// 反驳占比超过 0.3 时分数压到 max(0, 0.3-ratio)，支持占比超过 0.5 时
// 抬到 min(1, 0.7+ratio*0.3)，其余情况记 0.5。零证据恒为 0。
func analyzeConsistency(claim string, evidence []search.Result) consistencyAnalysis {
	if len(evidence) == 0 {
		return consistencyAnalysis{
			Score:     0.0,
			Reasoning: "No evidence found to support or contradict the claim",
		}
	}

	claimWords := tokenSet(claim)
	var supporting, contradicting, neutral int

	for _, r := range evidence {
		words := tokenSet(r.Content + " " + r.Title)
		overlap := overlapCount(claimWords, words)

		if hasContradictionWord(words) {
			if overlap > 2 {
				contradicting++
			} else {
				neutral++
			}
		} else if overlap > 3 {
			supporting++
		} else {
			neutral++
		}
	}

	total := float64(len(evidence))
	supportRatio := float64(supporting) / total
	contradictionRatio := float64(contradicting) / total

	var score float64
	switch {
	case contradictionRatio > 0.3:
		score = 0.3 - contradictionRatio
		if score < 0 {
			score = 0
		}
	case supportRatio > 0.5:
		score = 0.7 + supportRatio*0.3
		if score > 1.0 {
			score = 1.0
		}
	default:
		score = 0.5
	}

	return consistencyAnalysis{
		Score: score,
		Reasoning: fmt.Sprintf("Found %d supporting, %d contradicting, %d neutral evidence items",
			supporting, contradicting, neutral),
		SupportingCount:    supporting,
		ContradictingCount: contradicting,
		NeutralCount:       neutral,
		SupportRatio:       supportRatio,
		ContradictionRatio: contradictionRatio,
	}
}

// 高可信来源（百科、主流媒体、学术与政府站点）
var highCredibilityDomains = []string{
	"wikipedia.org", "britannica.com", "reuters.com", "ap.org",
	"bbc.com", "cnn.com", "nytimes.com", "washingtonpost.com",
	"nature.com", "science.org", "pubmed.ncbi.nlm.nih.gov",
	"gov", "edu", "org",
}

var mediumCredibilityDomains = []string{"com", "net", "info"}

// sourceCredibility 按域名信誉对证据来源打分并取均值（高 1.0 / 中 0.6 / 其他 0.3）
func sourceCredibility(evidence []search.Result) float64 {
	if len(evidence) == 0 {
		return 0.0
	}

	var total float64
	for _, r := range evidence {
		domain := domainOf(r.URL)
		switch {
		case containsAnyDomain(domain, highCredibilityDomains):
			total += 1.0
		case containsAnyDomain(domain, mediumCredibilityDomains):
			total += 0.6
		default:
			total += 0.3
		}
	}

	score := total / float64(len(evidence))
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// buildAnalysis 生成确定性的检测说明文本（证据统计、评分、风险级别与头部来源）
func buildAnalysis(claim string, evidence []search.Result, c consistencyAnalysis, credibility float64) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Claim Analysis: '%s'\n\n", truncate(claim, 100))
	sb.WriteString("Evidence Summary:\n")
	fmt.Fprintf(&sb, "- Total evidence sources: %d\n", len(evidence))
	fmt.Fprintf(&sb, "- Supporting evidence: %d\n", c.SupportingCount)
	fmt.Fprintf(&sb, "- Contradicting evidence: %d\n", c.ContradictingCount)
	fmt.Fprintf(&sb, "- Neutral evidence: %d\n\n", c.NeutralCount)
	fmt.Fprintf(&sb, "Consistency Score: %.3f\n", c.Score)
	fmt.Fprintf(&sb, "Source Credibility: %.3f\n\n", credibility)
	fmt.Fprintf(&sb, "Assessment: %s\n\n", c.Reasoning)
	fmt.Fprintf(&sb, "Risk Level: %s", riskLevel(c.Score))

	if len(evidence) > 0 {
		sb.WriteString("\n\nTop Evidence Sources:")
		for i, r := range evidence {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&sb, "\n%d. %s (%s)", i+1, r.Title, r.URL)
		}
	}
	return sb.String()
}

// riskLevel 按一致性分数划分风险级别
func riskLevel(score float64) string {
	switch {
	case score >= 0.8:
		return "LOW RISK - High confidence in accuracy"
	case score >= 0.6:
		return "MEDIUM RISK - Moderate confidence"
	case score >= 0.4:
		return "HIGH RISK - Low confidence"
	default:
		return "VERY HIGH RISK - Very low confidence, likely hallucination"
	}
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

func hasContradictionWord(words map[string]struct{}) bool {
	for w := range contradictionWords {
		if _, ok := words[w]; ok {
			return true
		}
	}
	return false
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err == nil && u.Host != "" {
		return u.Host
	}
	return raw
}

func containsAnyDomain(domain string, candidates []string) bool {
	for _, c := range candidates {
		if strings.Contains(domain, c) {
			return true
		}
	}
	return false
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
