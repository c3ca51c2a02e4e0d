package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"autoposter/internal/autopost/models"
	"autoposter/internal/logger"
	"autoposter/internal/telemetry"

	"github.com/google/uuid"
)

// ErrAllScansFailed 所有集合都无法读取，视为顶层失败
var ErrAllScansFailed = errors.New("all post collections failed to scan")

// Trigger 运行来源，仅用于日志
type Trigger string

const (
	TriggerScheduler Trigger = "scheduler" // 受信任的外部调度器
	TriggerSecret    Trigger = "secret"    // 携带共享密钥
	TriggerManual    Trigger = "manual"    // 本地或手动调用
	TriggerTicker    Trigger = "ticker"    // 进程内定时器
	TriggerCLI       Trigger = "cli"
)

// Scanner 返回集合中到期的帖子（由 service.Scanner 实现）
type Scanner interface {
	Scan(ctx context.Context, collection string) ([]*models.Post, error)
}

// Processor 处理单个帖子（由 service.Processor 实现），不返回错误
type Processor interface {
	Process(ctx context.Context, runID string, post *models.Post) models.PostResult
}

// Lease 跨进程互斥
type Lease interface {
	Acquire(ctx context.Context, owner string) (bool, error)
	Release(ctx context.Context, owner string) error
}

// Notifier 运行结束后的通知
type Notifier interface {
	NotifyRun(ctx context.Context, summary *Summary) error
}

// Summary 一次调用的结果
type Summary struct {
	Success        bool                `json:"success"`
	Message        string              `json:"message"`
	RunID          string              `json:"runId,omitempty"`
	Posted         int                 `json:"posted"`
	Errors         int                 `json:"errors"`
	TotalProcessed int                 `json:"totalProcessed"`
	Results        []models.PostResult `json:"results"`
	Timestamp      time.Time           `json:"timestamp"`
	LastRun        *time.Time          `json:"lastRun,omitempty"`
	NextRun        *time.Time          `json:"nextRun,omitempty"`
	IsRunning      bool                `json:"isRunning,omitempty"`
}

// Config 协调器配置
type Config struct {
	Collections []string      // 按此顺序扫描
	MinInterval time.Duration // 两次运行开始时间的最小间隔
}

// Option 可选依赖
type Option func(*Coordinator)

// WithLease 启用跨进程租约
func WithLease(lease Lease) Option {
	return func(c *Coordinator) { c.lease = lease }
}

// WithNotifier 设置运行通知
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.nowFunc = now }
}

// Coordinator 运行协调器：进程内只允许一个运行，并限制运行频率
type Coordinator struct {
	collections []string
	minInterval time.Duration
	scanner     Scanner
	processor   Processor
	lease       Lease
	notifier    Notifier
	nowFunc     func() time.Time

	mu        sync.Mutex
	running   bool
	lastRunAt time.Time
}

// New 创建协调器，每个进程只应创建一个
func New(cfg Config, scanner Scanner, processor Processor, opts ...Option) *Coordinator {
	c := &Coordinator{
		collections: append([]string(nil), cfg.Collections...),
		minInterval: cfg.MinInterval,
		scanner:     scanner,
		processor:   processor,
		nowFunc:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsRunning 当前进程是否有运行在进行
func (c *Coordinator) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// LastRunAt 最近一次运行的开始时间，零值表示尚未运行
func (c *Coordinator) LastRunAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRunAt
}

// Run 执行一次运行
// 已有运行或距离上次运行太近时立即返回 Success=true 的摘要，不做任何处理
// 只有循环之外的失败（租约错误、全部集合读取失败、panic）才返回 error
func (c *Coordinator) Run(ctx context.Context, trigger Trigger) (summary *Summary, err error) {
	now := c.nowFunc()

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		telemetry.RunsTotal.WithLabelValues(telemetry.ResultRunning).Inc()
		logger.L().Infof("Auto-post run skipped (%s): previous run still in progress", trigger)
		return c.idleSummary(now, "Auto-post run is still in progress", true), nil
	}
	if !c.lastRunAt.IsZero() && c.minInterval > 0 {
		if wait := c.lastRunAt.Add(c.minInterval).Sub(now); wait > 0 {
			c.mu.Unlock()
			telemetry.RunsTotal.WithLabelValues(telemetry.ResultTooSoon).Inc()
			seconds := int((wait + time.Second - 1) / time.Second)
			logger.L().Debugf("Auto-post run skipped (%s): next run in %ds", trigger, seconds)
			return c.idleSummary(now, fmt.Sprintf("Too soon since last run. Next run in %d seconds", seconds), false), nil
		}
	}
	c.running = true
	c.lastRunAt = now
	c.mu.Unlock()

	telemetry.RunningGauge.Set(1)
	telemetry.LastRunGauge.Set(float64(now.Unix()))

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		telemetry.RunningGauge.Set(0)
	}()

	runID := uuid.NewString()
	log := logger.L().WithField("run_id", runID)

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Auto-post run panic recovered: %v", r)
			telemetry.RunsTotal.WithLabelValues(telemetry.ResultFailed).Inc()
			summary = nil
			err = fmt.Errorf("auto-post run %s aborted: %v", runID, r)
		}
	}()

	if c.lease != nil {
		acquired, leaseErr := c.lease.Acquire(ctx, runID)
		if leaseErr != nil {
			telemetry.RunsTotal.WithLabelValues(telemetry.ResultFailed).Inc()
			return nil, fmt.Errorf("failed to acquire run lease: %w", leaseErr)
		}
		if !acquired {
			telemetry.RunsTotal.WithLabelValues(telemetry.ResultLeased).Inc()
			log.Infof("Auto-post run skipped (%s): lease held by another instance", trigger)
			return c.idleSummary(now, "Auto-post run is in progress on another instance", true), nil
		}
		defer func() {
			// 请求上下文可能已取消，释放租约使用独立的短超时
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if releaseErr := c.lease.Release(releaseCtx, runID); releaseErr != nil {
				log.Warnf("Failed to release run lease: %v", releaseErr)
			}
		}()
	}

	log.Infof("Auto-post run started (%s), collections=%v", trigger, c.collections)
	started := time.Now()

	summary = c.newSummary(now, runID)
	scanFailures := 0
	for _, collection := range c.collections {
		posts, scanErr := c.scanner.Scan(ctx, collection)
		if scanErr != nil {
			scanFailures++
			telemetry.ScanErrors.WithLabelValues(collection).Inc()
			log.Errorf("Failed to scan %s: %v", collection, scanErr)
			continue
		}
		for _, post := range posts {
			result := c.processor.Process(ctx, runID, post)
			summary.add(result)
			telemetry.PostsTotal.WithLabelValues(collection, string(result.Outcome)).Inc()
		}
	}

	if len(c.collections) > 0 && scanFailures == len(c.collections) {
		telemetry.RunsTotal.WithLabelValues(telemetry.ResultFailed).Inc()
		return nil, fmt.Errorf("%w (%d collections)", ErrAllScansFailed, scanFailures)
	}

	summary.Message = fmt.Sprintf("Processed %d posts: %d posted, %d errors", summary.TotalProcessed, summary.Posted, summary.Errors)
	if scanFailures > 0 {
		summary.Message += fmt.Sprintf(" (%d collections could not be scanned)", scanFailures)
	}

	telemetry.RunsTotal.WithLabelValues(telemetry.ResultCompleted).Inc()
	telemetry.RunDuration.Observe(time.Since(started).Seconds())
	log.Infof("Auto-post run finished: %s", summary.Message)

	if c.notifier != nil {
		if notifyErr := c.notifier.NotifyRun(ctx, summary); notifyErr != nil {
			log.Warnf("Failed to send run notification: %v", notifyErr)
		}
	}
	return summary, nil
}

func (c *Coordinator) newSummary(now time.Time, runID string) *Summary {
	s := &Summary{
		Success:   true,
		RunID:     runID,
		Results:   []models.PostResult{},
		Timestamp: now.UTC(),
	}
	last := now.UTC()
	next := last.Add(c.minInterval)
	s.LastRun = &last
	s.NextRun = &next
	return s
}

// idleSummary 未执行处理时的摘要
func (c *Coordinator) idleSummary(now time.Time, message string, running bool) *Summary {
	s := &Summary{
		Success:   true,
		Message:   message,
		Results:   []models.PostResult{},
		Timestamp: now.UTC(),
		IsRunning: running,
	}
	if last := c.LastRunAt(); !last.IsZero() {
		last = last.UTC()
		next := last.Add(c.minInterval)
		s.LastRun = &last
		s.NextRun = &next
	}
	return s
}

func (s *Summary) add(result models.PostResult) {
	s.Results = append(s.Results, result)
	s.TotalProcessed++
	switch result.Outcome {
	case models.OutcomePosted:
		s.Posted++
	case models.OutcomeFailed, models.OutcomeRetry:
		s.Errors++
	}
}
