package data

import (
	"context"
	"sort"
	"sync"

	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	"github.com/lk2023060901/pricehunt-backend/internal/task/biz"
	"github.com/samber/lo"
)

// MemoryTaskRepo implements biz.TaskRepo in process memory. Every read
// returns a copy so callers never share state with the store.
type MemoryTaskRepo struct {
	mu      sync.RWMutex
	tasks   map[string]*biz.Task
	results map[string][]*types.SearchResult
}

func NewMemoryTaskRepo() *MemoryTaskRepo {
	return &MemoryTaskRepo{
		tasks:   make(map[string]*biz.Task),
		results: make(map[string][]*types.SearchResult),
	}
}

func (r *MemoryTaskRepo) Create(ctx context.Context, task *biz.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = cloneTask(task)
	return nil
}

func (r *MemoryTaskRepo) Get(ctx context.Context, id string) (*biz.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, biz.ErrTaskNotFound
	}
	return cloneTask(t), nil
}

func (r *MemoryTaskRepo) List(ctx context.Context, filter biz.ListFilter) ([]*biz.TaskSummary, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := lo.Filter(lo.Values(r.tasks), func(t *biz.Task, _ int) bool {
		return filter.Status == "" || t.Status == filter.Status
	})
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := (filter.Page - 1) * filter.Limit
	if start >= len(matched) {
		return []*biz.TaskSummary{}, total, nil
	}
	end := min(start+filter.Limit, len(matched))

	out := make([]*biz.TaskSummary, 0, end-start)
	for _, t := range matched[start:end] {
		out = append(out, &biz.TaskSummary{Task: cloneTask(t), ResultCount: len(r.results[t.ID])})
	}
	return out, total, nil
}

func (r *MemoryTaskRepo) Transition(ctx context.Context, id string, t biz.Transition) (*biz.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, biz.ErrTaskNotFound
	}
	if !lo.Contains(t.From, task.Status) {
		return nil, biz.ErrStaleWrite
	}

	task.Status = t.To
	task.UpdatedAt = t.At
	task.ProcessingLogs = append(task.ProcessingLogs, t.Logs...)
	if t.ErrorMessage != nil {
		task.ErrorMessage = *t.ErrorMessage
	}
	if t.Result != nil {
		res := *t.Result
		task.Result = &res
	}
	if t.Name != "" {
		task.Name = t.Name
	}
	if t.To.Terminal() {
		at := t.At
		task.CompletedAt = &at
	}
	if t.Results != nil {
		r.results[id] = cloneResults(t.Results)
	}
	return cloneTask(task), nil
}

func (r *MemoryTaskRepo) Results(ctx context.Context, id string, limit int) ([]*types.SearchResult, biz.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.tasks[id]; !ok {
		return nil, biz.Stats{}, biz.ErrTaskNotFound
	}

	rows := cloneResults(r.results[id])
	stats := biz.ComputeStats(rows)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TotalPrice < rows[j].TotalPrice })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, stats, nil
}

func (r *MemoryTaskRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return biz.ErrTaskNotFound
	}
	delete(r.tasks, id)
	delete(r.results, id)
	return nil
}

// ResultCount is used by tests to check that rows went away with the task.
func (r *MemoryTaskRepo) ResultCount(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.results[id])
}

func cloneTask(t *biz.Task) *biz.Task {
	cp := *t
	cp.ProcessingLogs = append([]biz.LogEntry(nil), t.ProcessingLogs...)
	cp.SearchParams.Platforms = append([]types.PlatformCode(nil), t.SearchParams.Platforms...)
	if t.Result != nil {
		res := *t.Result
		cp.Result = &res
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

func cloneResults(in []*types.SearchResult) []*types.SearchResult {
	out := make([]*types.SearchResult, len(in))
	for i, r := range in {
		cp := *r
		cp.ImageURLs = append([]string(nil), r.ImageURLs...)
		out[i] = &cp
	}
	return out
}
