package biz

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/metrics"
	"github.com/lk2023060901/pricehunt-backend/internal/search/cache"
	"github.com/lk2023060901/pricehunt-backend/internal/search/platform"
	"github.com/lk2023060901/pricehunt-backend/internal/search/relevance"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Engine runs the synchronous search pipeline: resolve platforms, consult
// the cache, fan out, merge, dedup, score, filter, sort and paginate.
type Engine struct {
	registry   *platform.Registry
	executor   *Executor
	scorer     *relevance.Scorer
	cache      cache.Cache
	defaultTTL time.Duration
	logger     *logger.Logger
}

// NewEngine creates the pipeline. scorer and resultCache may be nil.
func NewEngine(registry *platform.Registry, executor *Executor, scorer *relevance.Scorer, resultCache cache.Cache, defaultTTL time.Duration, log *logger.Logger) *Engine {
	if scorer == nil {
		scorer = relevance.NewScorer(nil, 0)
	}
	if defaultTTL <= 0 {
		defaultTTL = types.DefaultCacheTTL
	}
	return &Engine{
		registry:   registry,
		executor:   executor,
		scorer:     scorer,
		cache:      resultCache,
		defaultTTL: defaultTTL,
		logger:     log.Named("engine"),
	}
}

// Registry returns the platform registry the engine searches.
func (e *Engine) Registry() *platform.Registry {
	return e.registry
}

// Search runs req through the pipeline. Only request validation and an
// empty platform selection are returned as errors. Upstream failures are
// reported inside the response, which has Success=false when every
// platform failed.
func (e *Engine) Search(ctx context.Context, req *types.SearchRequest) (*types.SearchResponse, error) {
	start := time.Now()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	adapters, skipped := e.registry.Resolve(req.Platforms, req.Kind)
	if len(adapters) == 0 {
		return nil, fmt.Errorf("%w: kind=%s", types.ErrNoPlatforms, req.Kind)
	}

	log := e.logger.WithContext(ctx)
	key := req.Fingerprint()

	if e.cache != nil && req.Cache.UseCache() {
		if resp, ok := e.cache.Get(ctx, key); ok {
			resp.Cached = true
			resp.ElapsedMS = time.Since(start).Milliseconds()
			metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
			metrics.SearchesTotal.WithLabelValues("cached").Inc()
			log.Debug("search served from cache", zap.String("key", key))
			return resp, nil
		}
		metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
	} else {
		metrics.CacheRequestsTotal.WithLabelValues("bypass").Inc()
	}

	outcomes, agg := e.executor.Execute(ctx, adapters, req)
	for _, code := range skipped {
		agg.Add(types.NewErrorRecord(code, types.NewPlatformError(code, types.CodeInvalidInput, "platform unknown or does not support this search kind", nil)))
	}

	merged, summaries, succeeded := merge(outcomes)
	results := Dedup(merged)

	if req.HasRelevanceContext() {
		scored, err := e.scorer.Apply(ctx, req.RelevanceQuery(), results)
		if err != nil {
			agg.Record("", types.NewPlatformError("", types.CodeInternal, "relevance classifier failed", err))
			log.Warn("relevance classifier failed, using lexical scores only", zap.Error(err))
		}
		results = scored
	}

	results = ApplyFilters(results, &req.Filters)
	Sort(results, req.Filters.Sort)
	page, pageInfo := Paginate(results, req.Pagination.Page, req.Pagination.Limit, req.Pagination.Offset)

	resp := &types.SearchResponse{
		Success:    succeeded > 0,
		Query:      req.Query,
		Kind:       req.Kind,
		Results:    page,
		Pagination: pageInfo,
		Platforms:  summaries,
		Errors:     agg.Snapshot(),
	}
	if !resp.Success {
		resp.Message = "all platforms failed"
	}

	if resp.Success && e.cache != nil && req.Cache.UseCache() {
		if err := e.cache.Set(ctx, key, resp, req.Cache.TTL(e.defaultTTL)); err != nil {
			log.Warn("cache write failed", zap.Error(err))
		}
	}

	resp.ElapsedMS = time.Since(start).Milliseconds()
	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	switch {
	case !resp.Success:
		metrics.SearchesTotal.WithLabelValues("failed").Inc()
	case resp.Errors.Total > 0:
		metrics.SearchesTotal.WithLabelValues("degraded").Inc()
	default:
		metrics.SearchesTotal.WithLabelValues("success").Inc()
	}

	log.Info("search completed",
		zap.String("kind", string(req.Kind)),
		zap.Int("platforms", len(adapters)),
		zap.Int("succeeded", succeeded),
		zap.Int("total", pageInfo.Total),
		zap.Int("errors", resp.Errors.Total),
		zap.Int64("elapsed_ms", resp.ElapsedMS),
	)
	return resp, nil
}

// merge concatenates outcomes in platform code order, keeping adapter
// order within each platform.
func merge(outcomes map[types.PlatformCode]*types.PlatformSearchOutcome) ([]*types.SearchResult, []types.PlatformSummary, int) {
	codes := make([]types.PlatformCode, 0, len(outcomes))
	for code := range outcomes {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	var merged []*types.SearchResult
	summaries := make([]types.PlatformSummary, 0, len(codes))
	succeeded := 0
	for _, code := range codes {
		o := outcomes[code]
		s := types.PlatformSummary{
			Platform:  code,
			Success:   o.Succeeded(),
			Count:     o.Count,
			ElapsedMS: o.Elapsed.Milliseconds(),
		}
		if o.Error != nil {
			s.ErrorCode = o.Error.Code
		} else {
			succeeded++
		}
		summaries = append(summaries, s)
		merged = append(merged, o.Results...)
	}
	return merged, summaries, succeeded
}

// PlatformStatus pairs a platform's capabilities with a live health probe.
type PlatformStatus struct {
	Info   types.PlatformInfo `json:"info"`
	Health types.HealthStatus `json:"health"`
}

// Platforms probes every registered platform concurrently.
func (e *Engine) Platforms(ctx context.Context) []PlatformStatus {
	adapters := e.registry.List()
	out := make([]PlatformStatus, len(adapters))

	var g errgroup.Group
	for i, a := range adapters {
		g.Go(func() error {
			out[i] = PlatformStatus{Info: a.Info(), Health: a.HealthCheck(ctx)}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
