package search

import (
	"sort"
	"strings"
)

// 聚合阶段的加权系数
const (
	neuralBoost    = 1.10 // 语义相关性加成（神经搜索来源）
	highlightBoost = 1.05 // 携带摘录片段
	recencyBoost   = 1.02 // 携带发布日期
)

// Aggregator 把两个提供商的结果去重、重打分并排序成一份列表
type Aggregator struct {
	// Enabled 为 false 时跳过去重与重打分，仅拼接并截断
	Enabled bool
	// MaxResults 聚合结果上限
	MaxResults int
	// NeuralSource 享受语义加成的提供商名称
	NeuralSource string
}

// NewAggregator 创建聚合器，maxResults 为零时默认 10
func NewAggregator(enabled bool, maxResults int, neuralSource string) *Aggregator {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Aggregator{Enabled: enabled, MaxResults: maxResults, NeuralSource: neuralSource}
}

// Merge 聚合两组结果：拼接 → 按归一化 URL 去重（先到先得）→
// 重打分 → 按分数降序 → 截断
func (a *Aggregator) Merge(exaResults, tavilyResults []Result) []Result {
	all := make([]Result, 0, len(exaResults)+len(tavilyResults))
	all = append(all, exaResults...)
	all = append(all, tavilyResults...)

	if !a.Enabled {
		return truncate(all, a.MaxResults)
	}

	unique := a.deduplicate(all)
	scored := a.rescore(unique)

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	return truncate(scored, a.MaxResults)
}

// deduplicate 按归一化 URL（小写、去尾部斜杠）去重，保留第一次出现的结果
func (a *Aggregator) deduplicate(results []Result) []Result {
	seen := make(map[string]struct{}, len(results))
	unique := make([]Result, 0, len(results))

	for _, r := range results {
		key := normalizeURL(r.URL)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, r)
	}
	return unique
}

// rescore 在原始分数上叠加加成并收敛到 [0,1]
func (a *Aggregator) rescore(results []Result) []Result {
	out := make([]Result, len(results))
	copy(out, results)

	for i := range out {
		score := out[i].Score
		if out[i].Source == a.NeuralSource {
			score *= neuralBoost
		}
		if len(out[i].Highlights) > 0 {
			score *= highlightBoost
		}
		if out[i].PublishedDate != "" {
			score *= recencyBoost
		}
		if score > 1.0 {
			score = 1.0
		}
		out[i].Score = score
	}
	return out
}

func normalizeURL(u string) string {
	return strings.TrimRight(strings.ToLower(u), "/")
}

func truncate(results []Result, limit int) []Result {
	if len(results) > limit {
		return results[:limit]
	}
	return results
}
