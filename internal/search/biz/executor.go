package biz

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/metrics"
	"github.com/lk2023060901/pricehunt-backend/internal/search/platform"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ExecutorConfig bounds the fan-out.
type ExecutorConfig struct {
	MaxConcurrency     int           `mapstructure:"max_concurrency"`
	ResultsPerPlatform int           `mapstructure:"results_per_platform"`
	DefaultTimeout     time.Duration `mapstructure:"default_timeout"`
}

func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxConcurrency:     8,
		ResultsPerPlatform: 30,
		DefaultTimeout:     8 * time.Second,
	}
}

// Executor runs one search against several adapters concurrently. Each
// adapter gets its own timeout, a slow or failing platform only loses its
// own contribution.
type Executor struct {
	config *ExecutorConfig
	logger *logger.Logger
}

func NewExecutor(cfg *ExecutorConfig, log *logger.Logger) *Executor {
	if cfg == nil {
		cfg = DefaultExecutorConfig()
	}
	return &Executor{config: cfg, logger: log.Named("executor")}
}

type adapterResult struct {
	resp *types.RawSearchResponse
	err  error
}

// Execute waits for every adapter to answer or time out. It never fails
// as a whole: per-platform failures end up in the outcomes and in the
// returned aggregator.
func (e *Executor) Execute(ctx context.Context, adapters []platform.Adapter, req *types.SearchRequest) (map[types.PlatformCode]*types.PlatformSearchOutcome, *ErrorAggregator) {
	agg := NewErrorAggregator()
	outcomes := make(map[types.PlatformCode]*types.PlatformSearchOutcome, len(adapters))
	var mu sync.Mutex

	g := new(errgroup.Group)
	if e.config.MaxConcurrency > 0 {
		g.SetLimit(e.config.MaxConcurrency)
	}

	for _, a := range adapters {
		g.Go(func() error {
			out := e.run(ctx, a, req)
			if out.Error != nil {
				agg.Add(out.Error)
			}
			mu.Lock()
			outcomes[out.Platform] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, agg
}

func (e *Executor) run(ctx context.Context, a platform.Adapter, req *types.SearchRequest) *types.PlatformSearchOutcome {
	info := a.Info()
	timeout := info.Timeout
	if timeout <= 0 {
		timeout = e.config.DefaultTimeout
	}

	ctx = logger.WithPlatform(ctx, string(info.Code))
	log := e.logger.WithContext(ctx)
	start := time.Now()

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// buffered so a late adapter never blocks after we stopped waiting
	ch := make(chan adapterResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("adapter panic recovered",
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				ch <- adapterResult{err: types.NewPlatformError(info.Code, types.CodeInternal, fmt.Sprintf("adapter panic: %v", r), nil)}
			}
		}()
		filters := req.Filters
		resp, err := a.Search(tctx, req.Query, req.Kind, &filters, e.config.ResultsPerPlatform)
		ch <- adapterResult{resp: resp, err: err}
	}()

	var res adapterResult
	select {
	case res = <-ch:
	case <-tctx.Done():
		if ctx.Err() != nil {
			res.err = types.NewPlatformError(info.Code, types.CodeTimeout, "request cancelled", ctx.Err())
		} else {
			res.err = types.NewPlatformError(info.Code, types.CodeTimeout, fmt.Sprintf("no response within %s", timeout), tctx.Err())
		}
	}
	elapsed := time.Since(start)

	out := &types.PlatformSearchOutcome{Platform: info.Code, Elapsed: elapsed}
	metrics.PlatformRequestDuration.WithLabelValues(string(info.Code)).Observe(elapsed.Seconds())

	if res.err == nil && res.resp == nil {
		res.err = types.NewPlatformError(info.Code, types.CodeInternal, "adapter returned no response", nil)
	}
	if res.err != nil {
		out.Error = types.NewErrorRecord(info.Code, res.err)
		out.Results = []*types.SearchResult{}
		metrics.PlatformRequestsTotal.WithLabelValues(string(info.Code), string(out.Error.Code)).Inc()
		log.Warn("platform search failed",
			zap.String("code", string(out.Error.Code)),
			zap.Duration("elapsed", elapsed),
			zap.Error(res.err),
		)
		return out
	}

	out.Results = NormalizeAll(info, res.resp.Items)
	out.Count = len(out.Results)
	out.Metadata = res.resp.Metadata

	status := "success"
	if out.Count == 0 {
		status = "empty_result"
	}
	metrics.PlatformRequestsTotal.WithLabelValues(string(info.Code), status).Inc()
	metrics.PlatformResults.WithLabelValues(string(info.Code)).Observe(float64(out.Count))
	log.Info("platform search completed",
		zap.Int("count", out.Count),
		zap.Duration("elapsed", elapsed),
	)
	return out
}
