package analyst

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/claim_radar/pkg/config"
	"github.com/iWorld-y/claim_radar/pkg/factcheck"
	"github.com/iWorld-y/claim_radar/pkg/logger"
)

// Interpretation LLM 对核查结果的深度解读
type Interpretation struct {
	Title      string   `json:"title"`
	Assessment string   `json:"assessment"`
	Reasoning  string   `json:"reasoning"`
	Caveats    []string `json:"caveats"`
	Advice     string   `json:"advice"`
}

// Analyst 核查结果解读器（可选组件）。
// 把结构化的核查结论交给 LLM，生成面向用户画像的可读解读。
type Analyst struct {
	cm      model.ChatModel
	limiter *rate.Limiter
	persona string
}

// NewAnalyst 创建解读器，rpm 为零时默认 10 次/分钟
func NewAnalyst(ctx context.Context, cfg config.LLMConfig, persona string) (*Analyst, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("chat model init: %w", err)
	}

	rpm := cfg.RPM
	if rpm <= 0 {
		rpm = 10
	}

	return &Analyst{
		cm:      cm,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		persona: persona,
	}, nil
}

const interpretPrompt = `Role: 资深事实核查分析师
Context
用户画像：%s
输入数据：一份针对某条断言的自动化核查报告（双引擎搜证 + 幻觉检测）。
核心诉求：用通俗语言解读核查结论，说明证据强弱与局限。

Instructions
请严格按照 JSON 格式输出：
{
    "title": "一句话概括核查结论（20字以内）",
    "assessment": "对断言真实性的通俗判断（Markdown格式）",
    "reasoning": "结合证据与评分说明判断依据（Markdown格式）",
    "caveats": ["局限性或需要注意的点1", "局限性2"],
    "advice": "给读者的建议（如何进一步验证）"
}

核查报告数据：
%s`

// Interpret 调用 LLM 解读核查结果，429 时指数退避重试
func (a *Analyst) Interpret(ctx context.Context, result *factcheck.Result) (*Interpretation, error) {
	report := a.buildReport(result)

	maxRetries := 3
	baseDelay := 2 * time.Second
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		messages := []*schema.Message{
			{Role: schema.System, Content: "你是一个 JSON 生成器。请只输出 JSON 字符串。"},
			{Role: schema.User, Content: fmt.Sprintf(interpretPrompt, a.persona, report)},
		}

		resp, err := a.cm.Generate(ctx, messages)
		if err != nil {
			if strings.Contains(err.Error(), "429") || strings.Contains(strings.ToLower(err.Error()), "too many requests") {
				lastErr = err
				if i < maxRetries {
					time.Sleep(baseDelay * time.Duration(1<<i))
					continue
				}
			}
			return nil, err
		}

		cleanContent := strings.TrimSpace(resp.Content)
		cleanContent = strings.TrimPrefix(cleanContent, "```json")
		cleanContent = strings.TrimPrefix(cleanContent, "```")
		cleanContent = strings.TrimSuffix(cleanContent, "```")

		var interp Interpretation
		if err := json.Unmarshal([]byte(cleanContent), &interp); err != nil {
			lastErr = err
			logger.Log.Warnf("解读结果 JSON 解析失败 (第 %d 次): %v", i+1, err)
			if i < maxRetries {
				continue
			}
			return nil, fmt.Errorf("json unmarshal: %w", err)
		}
		return &interp, nil
	}
	return nil, fmt.Errorf("failed after retries: %v", lastErr)
}

// buildReport 把核查结果压成给 LLM 的文本报告
func (a *Analyst) buildReport(result *factcheck.Result) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "断言: %s\n", result.Claim)
	fmt.Fprintf(&sb, "结论: %s\n", result.Verdict)
	fmt.Fprintf(&sb, "置信度: %.3f\n", result.Confidence)
	fmt.Fprintf(&sb, "准确度: %.3f\n", result.AccuracyScore)
	fmt.Fprintf(&sb, "是否可靠: %v\n", result.IsReliable())
	fmt.Fprintf(&sb, "幻觉判定: %v (置信度 %.3f)\n",
		result.HallucinationAnalysis.IsHallucination,
		result.HallucinationAnalysis.ConfidenceScore)
	fmt.Fprintf(&sb, "使用的搜索来源: %s\n", strings.Join(result.SourcesUsed, ", "))
	fmt.Fprintf(&sb, "\n证据摘要:\n%s\n", result.EvidenceSummary)
	return sb.String()
}
