// Package pool 提供有界的后台任务池，用于不阻塞请求路径的写入（聊天记录等）。
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task 一个后台任务
type Task func(ctx context.Context) error

type taskWrapper struct {
	name string
	task Task
}

// Config 任务池配置
type Config struct {
	Workers     int           `yaml:"workers" json:"workers"`
	QueueSize   int           `yaml:"queue_size" json:"queue_size"`
	TaskTimeout time.Duration `yaml:"task_timeout" json:"task_timeout"` // 每个任务的执行上限
}

// DefaultConfig 4 个 worker、256 长度队列、5 秒任务超时
func DefaultConfig() Config {
	return Config{
		Workers:     4,
		QueueSize:   256,
		TaskTimeout: 5 * time.Second,
	}
}

// GoroutinePool 固定 worker 数的任务池。队列满时拒绝而不是阻塞调用方。
type GoroutinePool struct {
	config Config
	queue  chan taskWrapper
	logger *zap.Logger

	// base 在 Close 超时后被取消，让仍在执行的任务尽快返回
	base   context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	active    atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// NewGoroutinePool 创建并启动 worker
func NewGoroutinePool(config Config, logger *zap.Logger) *GoroutinePool {
	def := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = def.TaskTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base, cancel := context.WithCancel(context.Background())
	p := &GoroutinePool{
		config: config,
		queue:  make(chan taskWrapper, config.QueueSize),
		logger: logger.With(zap.String("component", "pool")),
		base:   base,
		cancel: cancel,
	}
	for i := 0; i < config.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit 非阻塞提交；队列满返回 ErrPoolFull，关闭后返回 ErrPoolClosed
func (p *GoroutinePool) Submit(name string, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- taskWrapper{name: name, task: task}:
		p.submitted.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

func (p *GoroutinePool) worker() {
	defer p.wg.Done()
	for w := range p.queue {
		p.active.Add(1)
		err := p.execute(w)
		p.active.Add(-1)

		if err != nil {
			p.failed.Add(1)
			p.logger.Warn("background task failed", zap.String("task", w.name), zap.Error(err))
			continue
		}
		p.completed.Add(1)
	}
}

func (p *GoroutinePool) execute(w taskWrapper) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(p.base, p.config.TaskTimeout)
	defer cancel()
	return w.task(ctx)
}

// Close 停止接收新任务并等待队列排空；ctx 到期后取消剩余任务
func (p *GoroutinePool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return fmt.Errorf("pool drain interrupted: %w", ctx.Err())
	}
}

// Stats 返回统计信息
func (p *GoroutinePool) Stats() Stats {
	return Stats{
		Workers:   p.config.Workers,
		Active:    int(p.active.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// Stats 任务池统计
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}
