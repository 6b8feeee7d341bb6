package search

import (
	"fmt"
	"strings"
	"time"
)

// ConfigError 配置错误（缺少 API Key 等），构造阶段直接失败，不重试
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "search config error: " + e.Message
}

// ProviderError 提供商错误（网络失败、非 2xx 响应、响应解析失败），
// 在提供商内部重试耗尽后才会向编排器暴露
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// RateLimitError 限流错误，携带 retry-after 提示。
// 编排器不做特殊处理，由上层在向 HTTP 层透出时决定是否遵守 RetryAfter。
type RateLimitError struct {
	ProviderError
	RetryAfter time.Duration
}

// OrchestrationError 仅在 require_both 约束被破坏时抛出
type OrchestrationError struct {
	Message         string
	FailedProviders []string
}

func (e *OrchestrationError) Error() string {
	if len(e.FailedProviders) > 0 {
		return fmt.Sprintf("dual search failed: %s (failed providers: %s)",
			e.Message, strings.Join(e.FailedProviders, ", "))
	}
	return "dual search failed: " + e.Message
}

// DetectionError 幻觉检测内部失败的统一包装
type DetectionError struct {
	Message string
	Err     error
}

func (e *DetectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hallucination detection failed: %s: %v", e.Message, e.Err)
	}
	return "hallucination detection failed: " + e.Message
}

func (e *DetectionError) Unwrap() error { return e.Err }
