package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Adapter is implemented by every marketplace connector.
//
// Search returns an empty item list, not an error, when nothing matches.
// Failures are returned as *types.PlatformError and never panic past the
// adapter boundary.
type Adapter interface {
	Search(ctx context.Context, query string, kind types.SearchKind, filters *types.Filters, limit int) (*types.RawSearchResponse, error)
	HealthCheck(ctx context.Context) types.HealthStatus
	Info() types.PlatformInfo
}

// Closer is implemented by adapters holding resources such as a browser.
type Closer interface {
	Close() error
}

const maxBodyBytes = 8 << 20

// BaseAdapter carries the plumbing shared by HTTP API adapters: key
// rotation, a token bucket built from the declared rate limit and retries
// with exponential backoff for retryable failures.
type BaseAdapter struct {
	info       types.PlatformInfo
	config     *types.PlatformConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	apiKeys    []string
	keyIndex   atomic.Uint32
	logger     *logger.Logger

	// initial backoff interval, shortened in tests
	backoffInitial time.Duration
}

// NewBaseAdapter creates the shared adapter plumbing.
func NewBaseAdapter(info types.PlatformInfo, cfg *types.PlatformConfig, log *logger.Logger) *BaseAdapter {
	if info.Timeout == 0 {
		info.Timeout = cfg.TimeoutOr(8 * time.Second)
	}
	info.RateLimit = cfg.RateLimit
	info.Burst = cfg.Burst
	if len(cfg.Regions) > 0 {
		info.Regions = cfg.Regions
	}
	if cfg.Name != "" && cfg.Name != string(info.Code) {
		info.Name = cfg.Name
	}

	var keys []string
	for _, k := range strings.Split(cfg.APIKey, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &BaseAdapter{
		info:   info,
		config: cfg,
		httpClient: &http.Client{
			Timeout: info.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:        limiter,
		apiKeys:        keys,
		logger:         log.Named(string(info.Code)),
		backoffInitial: 500 * time.Millisecond,
	}
}

// Info returns the static capability descriptor.
func (b *BaseAdapter) Info() types.PlatformInfo {
	return b.info
}

// APIKey returns the next key in round-robin order.
func (b *BaseAdapter) APIKey() string {
	if len(b.apiKeys) == 0 {
		return ""
	}
	i := b.keyIndex.Add(1) - 1
	return b.apiKeys[int(i)%len(b.apiKeys)]
}

// Fail builds a PlatformError for this platform.
func (b *BaseAdapter) Fail(code types.ErrorCode, msg string, err error) *types.PlatformError {
	return types.NewPlatformError(b.info.Code, code, msg, err)
}

// wait blocks on the rate limiter. A wait that cannot finish before the
// context deadline is reported as a rate limit failure.
func (b *BaseAdapter) wait(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	if err := b.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return b.Fail(types.CodeTimeout, "cancelled while waiting for rate limiter", ctx.Err())
		}
		return b.Fail(types.CodeRateLimit, "declared rate limit exceeded", err)
	}
	return nil
}

// Fetch performs the request built by newReq and returns the body of a 200
// response. Retryable failures are retried with exponential backoff up to
// max_retries times, others fail immediately.
func (b *BaseAdapter) Fetch(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	maxRetries := b.config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.backoffInitial
	policy.MaxElapsedTime = 0

	var body []byte
	attempt := 0
	op := func() error {
		attempt++
		if err := b.wait(ctx); err != nil {
			return classifyForRetry(err)
		}

		req, err := newReq(ctx)
		if err != nil {
			return backoff.Permanent(b.Fail(types.CodeInternal, "build request", err))
		}

		resp, err := b.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(b.Fail(types.CodeTimeout, "request cancelled", ctx.Err()))
			}
			code := types.Classify(err)
			if code == types.CodeInternal {
				code = types.CodeNetwork
			}
			return classifyForRetry(b.Fail(code, "request failed", err))
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return classifyForRetry(b.Fail(types.CodeNetwork, "read body", err))
		}
		if resp.StatusCode != http.StatusOK {
			pe := b.Fail(types.CodeForStatus(resp.StatusCode), fmt.Sprintf("upstream returned HTTP %d", resp.StatusCode), nil)
			pe.Status = resp.StatusCode
			if len(data) > 0 {
				pe.Message += ": " + truncate(string(data), 200)
			}
			return classifyForRetry(pe)
		}

		body = data
		return nil
	}

	notify := func(err error, next time.Duration) {
		b.logger.WithContext(ctx).Debug("retrying upstream request",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(maxRetries)), ctx), notify)
	if err != nil {
		if types.Classify(err) == types.CodeTimeout || ctx.Err() != nil {
			if _, ok := err.(*types.PlatformError); !ok {
				return nil, b.Fail(types.CodeTimeout, "deadline exceeded", err)
			}
		}
		return nil, err
	}
	return body, nil
}

// classifyForRetry marks non-retryable errors as permanent.
func classifyForRetry(err error) error {
	if types.Classify(err).Retryable() {
		return err
	}
	return backoff.Permanent(err)
}

// HealthCheck issues a GET against the API host.
func (b *BaseAdapter) HealthCheck(ctx context.Context) types.HealthStatus {
	status := types.HealthStatus{Platform: b.info.Code, CheckedAt: time.Now()}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.config.APIHost, nil)
	if err != nil {
		status.Message = err.Error()
		return status
	}
	resp, err := b.httpClient.Do(req)
	status.Latency = time.Since(start)
	if err != nil {
		status.Message = err.Error()
		return status
	}
	resp.Body.Close()

	// API roots usually answer 400/404 without parameters, anything below
	// 500 means the host is reachable
	status.Healthy = resp.StatusCode < 500
	status.Message = resp.Status
	return status
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
