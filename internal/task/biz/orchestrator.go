package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/metrics"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	"go.uber.org/zap"
)

// Config 任务编排配置
type Config struct {
	ResultLimit int           `mapstructure:"result_limit"` // 每个任务保存的结果行数上限
	DetailLimit int           `mapstructure:"detail_limit"` // 详情接口返回的结果行数
	NameTimeout time.Duration `mapstructure:"name_timeout"` // 创建任务时解析商品名的超时
	ExecTimeout time.Duration `mapstructure:"exec_timeout"` // 单个任务执行的超时
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		ResultLimit: types.MaxPageLimit,
		DetailLimit: 20,
		NameTimeout: 3 * time.Second,
		ExecTimeout: 2 * time.Minute,
	}
}

// Searcher runs one synchronous aggregated search.
type Searcher interface {
	Search(ctx context.Context, req *types.SearchRequest) (*types.SearchResponse, error)
}

// Submitter schedules fire-and-forget work.
type Submitter interface {
	Submit(task func()) error
}

// Orchestrator 异步搜索任务编排
//
// 状态只会沿 pending -> running -> completed|failed 或 -> cancelled 前进，
// 所有写入都以条件更新的方式落库，先提交的终态生效。
type Orchestrator struct {
	repo     TaskRepo
	searcher Searcher
	pool     Submitter
	resolver NameResolver
	cfg      *Config
	logger   *logger.Logger
	now      func() time.Time
}

// NewOrchestrator 创建任务编排器，resolver 可以为 nil
func NewOrchestrator(repo TaskRepo, searcher Searcher, pool Submitter, resolver NameResolver, cfg *Config, log *logger.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ResultLimit <= 0 || cfg.ResultLimit > types.MaxPageLimit {
		cfg.ResultLimit = types.MaxPageLimit
	}
	if cfg.DetailLimit <= 0 {
		cfg.DetailLimit = 20
	}
	return &Orchestrator{
		repo:     repo,
		searcher: searcher,
		pool:     pool,
		resolver: resolver,
		cfg:      cfg,
		logger:   log.Named("task"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create 校验 JAN 码，持久化 pending 任务并提交后台执行，立即返回
func (o *Orchestrator) Create(ctx context.Context, janCode string) (*Task, error) {
	jan := types.NormalizeJAN(janCode)
	if !types.ValidJAN(jan) {
		return nil, types.ErrInvalidJAN
	}

	now := o.now()
	task := &Task{
		ID:     uuid.NewString(),
		Name:   o.resolveName(ctx, jan),
		Status: StatusPending,
		SearchParams: SearchParams{
			JANCode: jan,
			Kind:    types.KindJAN,
			Limit:   o.cfg.ResultLimit,
		},
		ProcessingLogs: []LogEntry{{
			Timestamp: now,
			Step:      StepTaskCreated,
			Status:    "success",
			Message:   fmt.Sprintf("search task created for JAN %s", jan),
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.repo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	metrics.TasksTotal.WithLabelValues(string(StatusPending)).Inc()

	log := o.logger.WithContext(logger.WithTaskID(ctx, task.ID))
	log.Info("task created", zap.String("jan", jan), zap.String("name", task.Name))

	id := task.ID
	if err := o.pool.Submit(func() { o.Execute(context.Background(), id) }); err != nil {
		log.Error("failed to schedule task", zap.Error(err))
		msg := fmt.Sprintf("%v: %v", ErrExecutionNotScheduled, err)
		failed, ferr := o.repo.Transition(ctx, id, Transition{
			From:         []Status{StatusPending},
			To:           StatusFailed,
			ErrorMessage: &msg,
			Logs:         []LogEntry{o.entry(StepSearchFailed, "error", msg)},
			At:           o.now(),
		})
		if ferr != nil {
			return nil, fmt.Errorf("mark unscheduled task failed: %w", ferr)
		}
		metrics.TasksTotal.WithLabelValues(string(StatusFailed)).Inc()
		return failed, nil
	}
	return task, nil
}

func (o *Orchestrator) resolveName(ctx context.Context, jan string) string {
	if o.resolver == nil {
		return FallbackName(jan)
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.NameTimeout)
	defer cancel()

	name, err := o.resolver.ResolveName(ctx, jan)
	if err != nil || name == "" {
		o.logger.WithContext(ctx).Debug("product name not resolved, using fallback",
			zap.String("jan", jan), zap.Error(err))
		return FallbackName(jan)
	}
	return name
}

// Execute 执行任务。只会被 Create 调用一次，任务已被取消时直接返回。
func (o *Orchestrator) Execute(ctx context.Context, id string) {
	ctx = logger.WithTaskID(ctx, id)
	ctx, cancel := context.WithTimeout(ctx, o.cfg.ExecTimeout)
	defer cancel()
	log := o.logger.WithContext(ctx)

	task, err := o.repo.Transition(ctx, id, Transition{
		From: []Status{StatusPending},
		To:   StatusRunning,
		Logs: []LogEntry{o.entry(StepSearchStarted, "info", "aggregated search started")},
		At:   o.now(),
	})
	if err != nil {
		if errors.Is(err, ErrStaleWrite) || errors.Is(err, ErrTaskNotFound) {
			log.Info("task no longer pending, skipping execution", zap.Error(err))
			return
		}
		log.Error("failed to start task", zap.Error(err))
		return
	}
	metrics.TasksTotal.WithLabelValues(string(StatusRunning)).Inc()
	metrics.TasksRunning.Inc()
	defer metrics.TasksRunning.Dec()

	req := &types.SearchRequest{
		Kind:       types.KindJAN,
		Query:      task.SearchParams.JANCode,
		Platforms:  task.SearchParams.Platforms,
		Pagination: types.Pagination{Page: 1, Limit: task.SearchParams.Limit},
		Filters:    types.Filters{Sort: types.SortPriceAsc},
	}
	resp, err := o.searcher.Search(ctx, req)
	if err != nil {
		o.fail(ctx, id, err.Error(), nil)
		return
	}

	logs := make([]LogEntry, 0, len(resp.Platforms)+1)
	for _, p := range resp.Platforms {
		if p.Success {
			logs = append(logs, o.entry(StepPlatformCompleted, "success",
				fmt.Sprintf("%s returned %d results in %dms", p.Platform, p.Count, p.ElapsedMS)))
		} else {
			logs = append(logs, o.entry(StepPlatformFailed, "error",
				fmt.Sprintf("%s failed with %s", p.Platform, p.ErrorCode)))
		}
	}

	if !resp.Success {
		o.fail(ctx, id, resp.Message, logs)
		return
	}

	result := &Result{
		Success:      true,
		TotalResults: len(resp.Results),
		Platforms:    resp.Platforms,
		Errors:       resp.Errors,
		Cached:       resp.Cached,
		ElapsedMS:    resp.ElapsedMS,
	}
	rows := resp.Results
	if rows == nil {
		rows = []*types.SearchResult{}
	}
	logs = append(logs, o.entry(StepSearchCompleted, "success",
		fmt.Sprintf("found %d results across %d platforms", len(rows), len(resp.Platforms))))

	_, err = o.repo.Transition(ctx, id, Transition{
		From:    []Status{StatusRunning},
		To:      StatusCompleted,
		Result:  result,
		Results: rows,
		Logs:    logs,
		At:      o.now(),
	})
	switch {
	case errors.Is(err, ErrStaleWrite), errors.Is(err, ErrTaskNotFound):
		log.Info("task cancelled or deleted during execution, result discarded", zap.Error(err))
		return
	case err != nil:
		log.Error("failed to persist task result", zap.Error(err))
		o.fail(ctx, id, fmt.Sprintf("persist result: %v", err), nil)
		return
	}

	metrics.TasksTotal.WithLabelValues(string(StatusCompleted)).Inc()
	log.Info("task completed",
		zap.Int("results", len(rows)),
		zap.Int("errors", resp.Errors.Total),
		zap.Int64("elapsed_ms", resp.ElapsedMS))
}

func (o *Orchestrator) fail(ctx context.Context, id, msg string, logs []LogEntry) {
	log := o.logger.WithContext(ctx)
	logs = append(logs, o.entry(StepSearchFailed, "error", msg))

	// the execution deadline may already be gone, the failure still has to land
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	_, err := o.repo.Transition(wctx, id, Transition{
		From:         []Status{StatusRunning},
		To:           StatusFailed,
		ErrorMessage: &msg,
		Logs:         logs,
		At:           o.now(),
	})
	switch {
	case errors.Is(err, ErrStaleWrite), errors.Is(err, ErrTaskNotFound):
		log.Info("task cancelled or deleted during execution, failure discarded", zap.String("error", msg))
	case err != nil:
		log.Error("failed to persist task failure", zap.Error(err), zap.String("error", msg))
	default:
		metrics.TasksTotal.WithLabelValues(string(StatusFailed)).Inc()
		log.Warn("task failed", zap.String("error", msg))
	}
}

// Cancel 取消 pending 或 running 的任务，终态任务返回 ErrTaskTerminal
func (o *Orchestrator) Cancel(ctx context.Context, id string) (*Task, error) {
	task, err := o.repo.Transition(ctx, id, Transition{
		From: []Status{StatusPending, StatusRunning},
		To:   StatusCancelled,
		Logs: []LogEntry{o.entry(StepTaskCancelled, "info", "task cancelled by request")},
		At:   o.now(),
	})
	if errors.Is(err, ErrStaleWrite) {
		return nil, fmt.Errorf("%w: %s", ErrTaskTerminal, id)
	}
	if err != nil {
		return nil, err
	}
	metrics.TasksTotal.WithLabelValues(string(StatusCancelled)).Inc()
	o.logger.WithContext(logger.WithTaskID(ctx, id)).Info("task cancelled")
	return task, nil
}

// UpdateStatus 内部状态迁移，只允许迁移到 failed 或 cancelled；
// running 与 completed 只能由后台执行写入
func (o *Orchestrator) UpdateStatus(ctx context.Context, id string, status Status, errorMessage string) (*Task, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if status.ExecutionOwned() {
		return nil, fmt.Errorf("%w: %s is set by task execution only", ErrInvalidTransition, status)
	}
	from := Sources(status)
	if len(from) == 0 {
		return nil, fmt.Errorf("%w: nothing transitions to %s", ErrInvalidTransition, status)
	}

	t := Transition{
		From: from,
		To:   status,
		Logs: []LogEntry{o.entry(StepStatusUpdated, "info", fmt.Sprintf("status set to %s", status))},
		At:   o.now(),
	}
	if errorMessage != "" {
		t.ErrorMessage = &errorMessage
	}

	task, err := o.repo.Transition(ctx, id, t)
	if errors.Is(err, ErrStaleWrite) {
		current, gerr := o.repo.Get(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		if current.Status.Terminal() {
			return nil, fmt.Errorf("%w: %s is %s", ErrTaskTerminal, id, current.Status)
		}
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}
	if err != nil {
		return nil, err
	}
	metrics.TasksTotal.WithLabelValues(string(status)).Inc()
	return task, nil
}

// Delete 删除任务及其结果，任意状态都可以删除
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	if err := o.repo.Delete(ctx, id); err != nil {
		return err
	}
	o.logger.WithContext(logger.WithTaskID(ctx, id)).Info("task deleted")
	return nil
}

// Get 任务详情：最便宜的 DetailLimit 条结果和统计信息
func (o *Orchestrator) Get(ctx context.Context, id string) (*TaskDetail, error) {
	task, err := o.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	results, stats, err := o.repo.Results(ctx, id, o.cfg.DetailLimit)
	if err != nil {
		return nil, err
	}
	return &TaskDetail{Task: task, Results: results, Stats: stats}, nil
}

// List 任务列表，附带每个任务的结果数
func (o *Orchestrator) List(ctx context.Context, filter ListFilter) ([]*TaskSummary, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidStatus, filter.Status)
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = types.DefaultPageLimit
	}
	if filter.Limit > types.MaxPageLimit {
		filter.Limit = types.MaxPageLimit
	}
	return o.repo.List(ctx, filter)
}

func (o *Orchestrator) entry(step, status, msg string) LogEntry {
	return LogEntry{Timestamp: o.now(), Step: step, Status: status, Message: msg}
}
