package workerpool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var (
	ErrPoolClosed   = errors.New("worker pool is closed")
	ErrPoolOverload = errors.New("worker pool is overloaded")
)

// Config Worker Pool 配置
type Config struct {
	Workers     int           `mapstructure:"workers"`      // 最大并发 worker 数
	QueueSize   int           `mapstructure:"queue_size"`   // 等待队列上限，0 表示不限
	NonBlocking bool          `mapstructure:"non_blocking"` // 队列满时直接拒绝而不是阻塞调用方
	ExpiryIdle  time.Duration `mapstructure:"expiry_idle"`  // 空闲 worker 回收时间
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Workers:     16,
		QueueSize:   256,
		NonBlocking: true,
		ExpiryIdle:  time.Minute,
	}
}

// Statistics 统计信息
type Statistics struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Panicked  int64 `json:"panicked"`
	Rejected  int64 `json:"rejected"`
	Running   int   `json:"running"`
}

// Pool 基于 ants 的有界 worker 池，后台任务执行都走这里
type Pool struct {
	pool   *ants.Pool
	logger *zap.Logger
	wg     sync.WaitGroup

	// mu orders wg.Add in Submit before wg.Wait in Shutdown
	mu     sync.RWMutex
	closed bool

	submitted atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
	rejected  atomic.Int64
}

// New 创建 Worker Pool
func New(cfg *Config, logger *zap.Logger) (*Pool, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("workerpool: workers must be > 0, got %d", cfg.Workers)
	}

	p := &Pool{logger: logger}

	opts := []ants.Option{
		ants.WithNonblocking(cfg.NonBlocking),
		ants.WithPanicHandler(func(v any) {
			p.panicked.Add(1)
			logger.Error("worker panic", zap.Any("error", v), zap.Stack("stacktrace"))
		}),
	}
	if cfg.QueueSize > 0 {
		opts = append(opts, ants.WithMaxBlockingTasks(cfg.QueueSize))
	}
	if cfg.ExpiryIdle > 0 {
		opts = append(opts, ants.WithExpiryDuration(cfg.ExpiryIdle))
	}

	antsPool, err := ants.NewPool(cfg.Workers, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}
	p.pool = antsPool
	return p, nil
}

// Submit 提交任务，不等待执行结果
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	err := p.pool.Submit(func() {
		defer p.wg.Done()
		defer p.completed.Add(1)
		task()
	})
	if err != nil {
		p.wg.Done()
		p.rejected.Add(1)
		switch {
		case errors.Is(err, ants.ErrPoolClosed):
			return ErrPoolClosed
		case errors.Is(err, ants.ErrPoolOverload):
			return ErrPoolOverload
		}
		return err
	}

	p.submitted.Add(1)
	return nil
}

// Stats 获取统计信息
func (p *Pool) Stats() Statistics {
	return Statistics{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
		Rejected:  p.rejected.Load(),
		Running:   p.pool.Running(),
	}
}

// Shutdown 停止接收新任务，等待已提交任务完成，最多等待 timeout
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.pool.Release()
		return nil
	case <-time.After(timeout):
		p.pool.Release()
		return fmt.Errorf("workerpool: %d tasks still running after %s", p.pool.Running(), timeout)
	}
}
