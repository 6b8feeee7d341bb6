package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iWorld-y/claim_radar/pkg/logger"
)

const healthCheckInterval = 5 * time.Minute

// SearchFunc 具体提供商的单次搜索实现
type SearchFunc func(ctx context.Context, q *Query) ([]Result, error)

// Base 提供商公共骨架：重试、退避、健康与性能统计。
// 具体提供商（exa/tavily）在构造时注入自己的 Search 实现。
type Base struct {
	name        string
	timeout     time.Duration
	maxRetries  int
	backoffBase time.Duration
	search      SearchFunc

	mu                 sync.Mutex
	totalRequests      int
	successfulRequests int
	totalResponseTime  time.Duration
	errorCount         int
	healthy            bool
	lastHealthCheck    time.Time
}

// NewBase 创建提供商骨架，timeout/maxRetries 为零时使用默认值（30s / 3 次）
func NewBase(name string, timeout time.Duration, maxRetries int, fn SearchFunc) *Base {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Base{
		name:        name,
		timeout:     timeout,
		maxRetries:  maxRetries,
		backoffBase: time.Second,
		search:      fn,
		healthy:     true,
	}
}

// Name 提供商名称
func (b *Base) Name() string { return b.name }

// attemptOutcome 单次尝试的结果，只在重试循环内部流转，不向调用方暴露
type attemptOutcome struct {
	results []Result
	err     error
	elapsed time.Duration
}

func (b *Base) attempt(ctx context.Context, q *Query) attemptOutcome {
	b.mu.Lock()
	b.totalRequests++
	b.mu.Unlock()

	attemptCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	results, err := b.search(attemptCtx, q)
	elapsed := time.Since(start)

	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = &ProviderError{
			Provider: b.name,
			Message:  "search timeout after " + b.timeout.String(),
			Err:      err,
		}
	}
	return attemptOutcome{results: results, err: err, elapsed: elapsed}
}

// SearchWithRetry 带重试的搜索：每次尝试受单次超时约束，
// 失败后等待 2^attempt 秒再重试；重试耗尽后标记不健康并返回最后的错误。
func (b *Base) SearchWithRetry(ctx context.Context, q *Query) ([]Result, error) {
	var lastErr error

	for i := 0; i < b.maxRetries; i++ {
		out := b.attempt(ctx, q)
		if out.err == nil {
			b.recordSuccess(out.elapsed)
			logger.Log.Infof("[%s] 搜索成功: %d 条结果, 耗时 %.2fs", b.name, len(out.results), out.elapsed.Seconds())
			return out.results, nil
		}

		lastErr = out.err
		b.recordFailure()
		logger.Log.Warnf("[%s] 搜索失败 (第 %d/%d 次): %v", b.name, i+1, b.maxRetries, out.err)

		if i < b.maxRetries-1 {
			wait := b.backoffBase * time.Duration(1<<i)
			select {
			case <-ctx.Done():
				b.markUnhealthy()
				return nil, wrapProvider(b.name, "search canceled", ctx.Err())
			case <-time.After(wait):
			}
		}
	}

	b.markUnhealthy()
	logger.Log.Errorf("[%s] 重试 %d 次后仍然失败", b.name, b.maxRetries)
	return nil, wrapProvider(b.name, "search failed after retries", lastErr)
}

// wrapProvider 保证向调用方返回的终态错误是 *ProviderError
func wrapProvider(name, msg string, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: name, Message: msg, Err: err}
}

// HealthCheck 发起一次最小化探测（1 条结果），任何非错误响应视为健康
func (b *Base) HealthCheck(ctx context.Context) bool {
	q := &Query{Query: "test health check", MaxResults: 1}
	_, err := b.search(ctx, q)
	ok := err == nil
	if !ok {
		logger.Log.Warnf("[%s] 健康检查失败: %v", b.name, err)
	}

	b.mu.Lock()
	b.healthy = ok
	b.lastHealthCheck = time.Now()
	b.mu.Unlock()
	return ok
}

// Status 返回状态快照，健康标志最多每 5 分钟刷新一次
func (b *Base) Status(ctx context.Context) ProviderStatus {
	b.mu.Lock()
	stale := b.lastHealthCheck.IsZero() || time.Since(b.lastHealthCheck) > healthCheckInterval
	b.mu.Unlock()

	if stale {
		b.HealthCheck(ctx)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	status := ProviderStatus{
		ProviderName: b.name,
		IsHealthy:    b.healthy,
		SuccessRate:  1.0,
		LastCheck:    b.lastHealthCheck,
	}
	if b.totalRequests > 0 {
		status.SuccessRate = float64(b.successfulRequests) / float64(b.totalRequests)
	}
	if b.successfulRequests > 0 {
		status.ResponseTime = b.totalResponseTime.Seconds() / float64(b.successfulRequests)
	}
	if !b.healthy {
		status.ErrorMessage = "provider unhealthy"
	}
	return status
}

func (b *Base) recordSuccess(elapsed time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successfulRequests++
	b.totalResponseTime += elapsed
	// 连续错误清零：时好时坏的提供商恢复后无需等下一轮探测即可摘掉不健康标记
	b.errorCount = 0
	b.healthy = true
}

func (b *Base) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errorCount++
}

func (b *Base) markUnhealthy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.healthy = false
}

// SetBackoffBase 调整退避基准，仅测试使用
func (b *Base) SetBackoffBase(d time.Duration) { b.backoffBase = d }
