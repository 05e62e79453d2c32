package biz_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/workerpool"
	searchbiz "github.com/lk2023060901/pricehunt-backend/internal/search/biz"
	"github.com/lk2023060901/pricehunt-backend/internal/search/platform"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	"github.com/lk2023060901/pricehunt-backend/internal/task/biz"
	"github.com/lk2023060901/pricehunt-backend/internal/task/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAdapter struct {
	code    types.PlatformCode
	items   []types.RawItem
	err     error
	delay   time.Duration
	jan     bool
	scraped bool
}

func (f *fakeAdapter) Search(ctx context.Context, query string, kind types.SearchKind, filters *types.Filters, limit int) (*types.RawSearchResponse, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, types.NewPlatformError(f.code, types.CodeTimeout, "deadline", ctx.Err())
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &types.RawSearchResponse{Items: f.items}, nil
}

func (f *fakeAdapter) HealthCheck(ctx context.Context) types.HealthStatus {
	return types.HealthStatus{Platform: f.code, Healthy: true}
}

func (f *fakeAdapter) Info() types.PlatformInfo {
	return types.PlatformInfo{
		Code:       f.code,
		Name:       string(f.code),
		Kinds:      []types.SearchKind{types.KindJAN, types.KindKeyword, types.KindProductName},
		Timeout:    time.Second,
		SupportJAN: f.jan,
		Scraped:    f.scraped,
	}
}

// holdSubmitter keeps submitted work until Run is called.
type holdSubmitter struct {
	mu    sync.Mutex
	tasks []func()
	err   error
}

func (h *holdSubmitter) Submit(task func()) error {
	if h.err != nil {
		return h.err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tasks = append(h.tasks, task)
	return nil
}

func (h *holdSubmitter) Run() {
	h.mu.Lock()
	tasks := h.tasks
	h.tasks = nil
	h.mu.Unlock()
	for _, t := range tasks {
		t()
	}
}

func newEngine(t *testing.T, adapters ...platform.Adapter) *searchbiz.Engine {
	t.Helper()
	reg := platform.NewRegistry()
	for _, a := range adapters {
		require.NoError(t, reg.Register(a))
	}
	return searchbiz.NewEngine(reg, searchbiz.NewExecutor(nil, logger.NewNop()), nil, nil, 0, logger.NewNop())
}

func marketAdapters() []platform.Adapter {
	return []platform.Adapter{
		&fakeAdapter{code: "rakuten", jan: true, items: []types.RawItem{
			{ID: "r1", Title: "Nintendo Switch Lite", Price: 19800, ShippingFee: 0, ShippingKnown: true},
			{ID: "r2", Title: "Nintendo Switch Lite グレー", Price: 21000, ShippingFee: 800, ShippingKnown: true},
		}},
		&fakeAdapter{code: "yahoo", jan: true, items: []types.RawItem{
			{ID: "y1", Title: "Switch Lite 本体", Price: 18500, ShippingFee: 600, ShippingKnown: true},
		}},
		&fakeAdapter{code: "mercari", scraped: true, items: []types.RawItem{
			{ID: "m1", Title: "スイッチライト 中古", Price: 12000, ShippingFee: 0, ShippingKnown: true},
		}},
	}
}

func newOrchestrator(t *testing.T, engine *searchbiz.Engine, pool biz.Submitter) (*biz.Orchestrator, *data.MemoryTaskRepo) {
	t.Helper()
	repo := data.NewMemoryTaskRepo()
	resolver := biz.NewSearchNameResolver(engine, engine.Registry())
	return biz.NewOrchestrator(repo, engine, pool, resolver, biz.DefaultConfig(), logger.NewNop()), repo
}

func waitForTerminal(t *testing.T, o *biz.Orchestrator, id string) *biz.TaskDetail {
	t.Helper()
	var detail *biz.TaskDetail
	require.Eventually(t, func() bool {
		d, err := o.Get(context.Background(), id)
		if err != nil {
			return false
		}
		detail = d
		return d.Task.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return detail
}

func TestStatus_StateMachine(t *testing.T) {
	tests := []struct {
		from, to biz.Status
		ok       bool
	}{
		{biz.StatusPending, biz.StatusRunning, true},
		{biz.StatusPending, biz.StatusCancelled, true},
		{biz.StatusRunning, biz.StatusCompleted, true},
		{biz.StatusRunning, biz.StatusFailed, true},
		{biz.StatusRunning, biz.StatusCancelled, true},
		{biz.StatusRunning, biz.StatusPending, false},
		{biz.StatusCompleted, biz.StatusCancelled, false},
		{biz.StatusFailed, biz.StatusRunning, false},
		{biz.StatusCancelled, biz.StatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
	assert.Empty(t, biz.Sources(biz.StatusPending))
	assert.ElementsMatch(t, []biz.Status{biz.StatusPending}, biz.Sources(biz.StatusRunning))
	assert.False(t, biz.Status("paused").Valid())
}

func TestOrchestrator_CreateValidatesJAN(t *testing.T) {
	o, _ := newOrchestrator(t, newEngine(t, marketAdapters()...), &holdSubmitter{})
	ctx := context.Background()

	for _, bad := range []string{"", "123", "490237054073", "49023705407345", "abcdefgh", "4902370-54073x",
		"4902370-540734", "4902 3705", "49-02-37-05", "4902\t3705"} {
		_, err := o.Create(ctx, bad)
		assert.ErrorIs(t, err, types.ErrInvalidJAN, bad)
	}

	for _, good := range []string{"49023705", "4902370540734", "４９０２３７０５４０７３４"} {
		task, err := o.Create(ctx, good)
		require.NoError(t, err, good)
		assert.Equal(t, biz.StatusPending, task.Status)

		got, err := o.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, biz.StatusPending, got.Task.Status)
	}
}

func TestOrchestrator_CreateResolvesName(t *testing.T) {
	o, _ := newOrchestrator(t, newEngine(t, marketAdapters()...), &holdSubmitter{})

	task, err := o.Create(context.Background(), "4902370540734")
	require.NoError(t, err)
	// cheapest hit among barcode-capable API platforms, mercari is not asked
	assert.Equal(t, "Switch Lite 本体", task.Name)
	assert.Equal(t, "4902370540734", task.SearchParams.JANCode)
	require.Len(t, task.ProcessingLogs, 1)
	assert.Equal(t, biz.StepTaskCreated, task.ProcessingLogs[0].Step)
}

func TestOrchestrator_CreateFallsBackName(t *testing.T) {
	engine := newEngine(t, &fakeAdapter{code: "rakuten", jan: true, err: types.NewPlatformError("rakuten", types.CodeNetwork, "down", nil)})
	o, _ := newOrchestrator(t, engine, &holdSubmitter{})

	task, err := o.Create(context.Background(), "49023705")
	require.NoError(t, err)
	assert.Equal(t, "JAN 49023705", task.Name)
}

func TestOrchestrator_CreateMarksUnschedulableTaskFailed(t *testing.T) {
	o, _ := newOrchestrator(t, newEngine(t, marketAdapters()...), &holdSubmitter{err: workerpool.ErrPoolOverload})

	task, err := o.Create(context.Background(), "4902370540734")
	require.NoError(t, err)
	assert.Equal(t, biz.StatusFailed, task.Status)
	assert.Contains(t, task.ErrorMessage, "overloaded")
}

func TestOrchestrator_EndToEnd(t *testing.T) {
	pool, err := workerpool.New(&workerpool.Config{Workers: 2, QueueSize: 10}, zap.NewNop())
	require.NoError(t, err)
	defer pool.Shutdown(time.Second)

	o, _ := newOrchestrator(t, newEngine(t, marketAdapters()...), pool)
	task, err := o.Create(context.Background(), "4902370540734")
	require.NoError(t, err)

	detail := waitForTerminal(t, o, task.ID)
	require.Equal(t, biz.StatusCompleted, detail.Task.Status)
	require.NotNil(t, detail.Task.CompletedAt)
	require.NotEmpty(t, detail.Results)

	for i, r := range detail.Results {
		assert.Equal(t, r.BasePrice+r.ShippingFee, r.TotalPrice, r.ItemID)
		if i > 0 {
			assert.LessOrEqual(t, detail.Results[i-1].TotalPrice, r.TotalPrice)
		}
	}
	assert.Equal(t, "m1", detail.Results[0].ItemID)
	assert.Equal(t, 4, detail.Stats.Count)
	assert.Equal(t, 12000.0, detail.Stats.MinPrice)
	assert.Equal(t, 21800.0, detail.Stats.MaxPrice)
	assert.Equal(t, []types.PlatformCode{"mercari", "rakuten", "yahoo"}, detail.Stats.Platforms)

	steps := make([]string, 0, len(detail.Task.ProcessingLogs))
	for _, l := range detail.Task.ProcessingLogs {
		steps = append(steps, l.Step)
	}
	assert.Equal(t, biz.StepTaskCreated, steps[0])
	assert.Equal(t, biz.StepSearchStarted, steps[1])
	assert.Equal(t, biz.StepSearchCompleted, steps[len(steps)-1])
	assert.Contains(t, steps, biz.StepPlatformCompleted)

	// terminal state is stable
	again, err := o.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, biz.StatusCompleted, again.Task.Status)
	_, err = o.Cancel(context.Background(), task.ID)
	assert.ErrorIs(t, err, biz.ErrTaskTerminal)
}

func TestOrchestrator_DetailCappedAtTwenty(t *testing.T) {
	items := make([]types.RawItem, 30)
	for i := range items {
		items[i] = types.RawItem{ID: string(rune('A' + i)), Title: "item " + string(rune('A'+i)), Price: float64(1000 - i)}
	}
	hold := &holdSubmitter{}
	o, repo := newOrchestrator(t, newEngine(t, &fakeAdapter{code: "yahoo", items: items}), hold)

	task, err := o.Create(context.Background(), "49023705")
	require.NoError(t, err)
	hold.Run()

	detail, err := o.Get(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, biz.StatusCompleted, detail.Task.Status)
	assert.Len(t, detail.Results, 20)
	assert.Equal(t, 30, detail.Stats.Count)
	assert.Equal(t, 971.0, detail.Results[0].TotalPrice)
	assert.Equal(t, 30, repo.ResultCount(task.ID))
}

func TestOrchestrator_PartialFailureCompletes(t *testing.T) {
	hold := &holdSubmitter{}
	engine := newEngine(t,
		&fakeAdapter{code: "rakuten", items: []types.RawItem{{ID: "r1", Title: "x", Price: 100}}},
		&fakeAdapter{code: "yahoo", err: types.NewPlatformError("yahoo", types.CodeAuth, "bad key", nil)},
	)
	o, _ := newOrchestrator(t, engine, hold)

	task, err := o.Create(context.Background(), "49023705")
	require.NoError(t, err)
	hold.Run()

	detail, err := o.Get(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, biz.StatusCompleted, detail.Task.Status)
	require.NotNil(t, detail.Task.Result)
	assert.Equal(t, 1, detail.Task.Result.Errors.Total)

	var failed int
	for _, l := range detail.Task.ProcessingLogs {
		if l.Step == biz.StepPlatformFailed {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestOrchestrator_AllPlatformsFailed(t *testing.T) {
	hold := &holdSubmitter{}
	engine := newEngine(t, &fakeAdapter{code: "yahoo", err: types.NewPlatformError("yahoo", types.CodeNetwork, "down", nil)})
	o, _ := newOrchestrator(t, engine, hold)

	task, err := o.Create(context.Background(), "49023705")
	require.NoError(t, err)
	hold.Run()

	got, err := o.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, biz.StatusFailed, got.Task.Status)
	assert.NotEmpty(t, got.Task.ErrorMessage)
	assert.Equal(t, biz.StepSearchFailed, got.Task.ProcessingLogs[len(got.Task.ProcessingLogs)-1].Step)
}

func TestOrchestrator_CancelPendingSkipsExecution(t *testing.T) {
	hold := &holdSubmitter{}
	o, repo := newOrchestrator(t, newEngine(t, marketAdapters()...), hold)
	ctx := context.Background()

	task, err := o.Create(ctx, "4902370540734")
	require.NoError(t, err)

	cancelled, err := o.Cancel(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, biz.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CompletedAt)

	hold.Run()
	got, err := o.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, biz.StatusCancelled, got.Task.Status)
	assert.Equal(t, 0, repo.ResultCount(task.ID))

	_, err = o.Cancel(ctx, task.ID)
	assert.ErrorIs(t, err, biz.ErrTaskTerminal)
}

func TestOrchestrator_CancelWhileRunningDiscardsResult(t *testing.T) {
	engine := newEngine(t, &fakeAdapter{code: "yahoo", delay: 200 * time.Millisecond, items: []types.RawItem{{ID: "1", Title: "x", Price: 1}}})
	hold := &holdSubmitter{}
	repo := data.NewMemoryTaskRepo()
	o := biz.NewOrchestrator(repo, engine, hold, nil, biz.DefaultConfig(), logger.NewNop())
	ctx := context.Background()

	task, err := o.Create(ctx, "49023705")
	require.NoError(t, err)
	assert.Equal(t, "JAN 49023705", task.Name)

	done := make(chan struct{})
	go func() {
		hold.Run()
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, err := repo.Get(ctx, task.ID)
		return err == nil && got.Status == biz.StatusRunning
	}, time.Second, 5*time.Millisecond)

	_, err = o.Cancel(ctx, task.ID)
	require.NoError(t, err)
	<-done

	got, err := o.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, biz.StatusCancelled, got.Task.Status)
	assert.Empty(t, got.Results)
}

func TestOrchestrator_UpdateStatus(t *testing.T) {
	o, _ := newOrchestrator(t, newEngine(t, marketAdapters()...), &holdSubmitter{})
	ctx := context.Background()

	task, err := o.Create(ctx, "49023705")
	require.NoError(t, err)

	_, err = o.UpdateStatus(ctx, task.ID, "paused", "")
	assert.ErrorIs(t, err, biz.ErrInvalidStatus)

	for _, status := range []biz.Status{biz.StatusPending, biz.StatusRunning, biz.StatusCompleted} {
		_, err = o.UpdateStatus(ctx, task.ID, status, "")
		assert.ErrorIs(t, err, biz.ErrInvalidTransition, string(status))
	}

	got, err := o.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, biz.StatusPending, got.Task.Status)

	failed, err := o.UpdateStatus(ctx, task.ID, biz.StatusFailed, "upstream maintenance")
	require.NoError(t, err)
	assert.Equal(t, biz.StatusFailed, failed.Status)
	assert.Equal(t, "upstream maintenance", failed.ErrorMessage)

	_, err = o.UpdateStatus(ctx, task.ID, biz.StatusCancelled, "")
	assert.ErrorIs(t, err, biz.ErrTaskTerminal)

	_, err = o.UpdateStatus(ctx, "missing", biz.StatusFailed, "")
	assert.ErrorIs(t, err, biz.ErrTaskNotFound)
}

func TestOrchestrator_ManualUpdateDoesNotStrandExecution(t *testing.T) {
	hold := &holdSubmitter{}
	o, repo := newOrchestrator(t, newEngine(t, marketAdapters()...), hold)
	ctx := context.Background()

	task, err := o.Create(ctx, "4902370540734")
	require.NoError(t, err)

	_, err = o.UpdateStatus(ctx, task.ID, biz.StatusRunning, "")
	require.ErrorIs(t, err, biz.ErrInvalidTransition)
	_, err = o.UpdateStatus(ctx, task.ID, biz.StatusCompleted, "")
	require.ErrorIs(t, err, biz.ErrInvalidTransition)

	hold.Run()

	got, err := o.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, biz.StatusCompleted, got.Task.Status)
	require.NotNil(t, got.Task.Result)
	assert.Positive(t, repo.ResultCount(task.ID))
}

func TestOrchestrator_DeleteFromAnyState(t *testing.T) {
	hold := &holdSubmitter{}
	o, repo := newOrchestrator(t, newEngine(t, marketAdapters()...), hold)
	ctx := context.Background()

	pending, err := o.Create(ctx, "49023705")
	require.NoError(t, err)
	hold.tasks = nil

	completed, err := o.Create(ctx, "4902370540734")
	require.NoError(t, err)
	hold.Run()
	require.Positive(t, repo.ResultCount(completed.ID))

	for _, id := range []string{pending.ID, completed.ID} {
		require.NoError(t, o.Delete(ctx, id))
		_, err := o.Get(ctx, id)
		assert.ErrorIs(t, err, biz.ErrTaskNotFound)
		assert.Equal(t, 0, repo.ResultCount(id))
	}
	assert.ErrorIs(t, o.Delete(ctx, pending.ID), biz.ErrTaskNotFound)
}

func TestOrchestrator_List(t *testing.T) {
	hold := &holdSubmitter{}
	o, _ := newOrchestrator(t, newEngine(t, marketAdapters()...), hold)
	ctx := context.Background()

	first, err := o.Create(ctx, "49023705")
	require.NoError(t, err)
	hold.Run()
	_, err = o.Create(ctx, "4902370540734")
	require.NoError(t, err)

	items, total, err := o.List(ctx, biz.ListFilter{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, items, 2)

	items, total, err = o.List(ctx, biz.ListFilter{Status: biz.StatusCompleted})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, first.ID, items[0].Task.ID)
	assert.Equal(t, 4, items[0].ResultCount)

	_, _, err = o.List(ctx, biz.ListFilter{Status: "paused"})
	assert.ErrorIs(t, err, biz.ErrInvalidStatus)
}

func TestComputeStats(t *testing.T) {
	stats := biz.ComputeStats(nil)
	assert.Zero(t, stats.Count)
	assert.Empty(t, stats.Platforms)

	stats = biz.ComputeStats([]*types.SearchResult{
		{Platform: "b", TotalPrice: 300},
		{Platform: "a", TotalPrice: 100},
		{Platform: "b", TotalPrice: 201},
	})
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 100.0, stats.MinPrice)
	assert.Equal(t, 300.0, stats.MaxPrice)
	assert.Equal(t, 200.33, stats.AvgPrice)
	assert.Equal(t, []types.PlatformCode{"a", "b"}, stats.Platforms)
	assert.Equal(t, map[types.PlatformCode]int{"a": 1, "b": 2}, stats.PlatformCounts)
}
