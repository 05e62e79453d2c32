package biz

import (
	"context"
	"errors"
	"time"

	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
)

var (
	ErrTaskNotFound          = errors.New("task not found")
	ErrTaskTerminal          = errors.New("task already reached a terminal state")
	ErrInvalidStatus         = errors.New("invalid task status")
	ErrInvalidTransition     = errors.New("invalid task status transition")
	ErrStaleWrite            = errors.New("task status changed concurrently")
	ErrExecutionNotScheduled = errors.New("task execution could not be scheduled")
)

// Status 任务状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// transitions is the forward-only state machine. Terminal states have no
// outgoing edges.
var transitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusCancelled, StatusFailed},
	StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether s -> next is an edge of the state machine.
func (s Status) CanTransition(next Status) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// ExecutionOwned reports whether only background execution may move a task
// into s. running is entered once when execution starts and completed needs
// the result payload, so neither is reachable through a manual update.
func (s Status) ExecutionOwned() bool {
	return s == StatusRunning || s == StatusCompleted
}

// Sources returns every status from which next is reachable in one step.
func Sources(next Status) []Status {
	var out []Status
	for from, tos := range transitions {
		for _, to := range tos {
			if to == next {
				out = append(out, from)
			}
		}
	}
	return out
}

// Processing log steps.
const (
	StepTaskCreated       = "task_created"
	StepSearchStarted     = "search_started"
	StepPlatformCompleted = "platform_completed"
	StepPlatformFailed    = "platform_failed"
	StepSearchCompleted   = "search_completed"
	StepSearchFailed      = "search_failed"
	StepTaskCancelled     = "task_cancelled"
	StepStatusUpdated     = "status_updated"
)

// LogEntry 任务处理日志，按时间顺序追加
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Step      string    `json:"step"`
	Status    string    `json:"status"` // success, error, info
	Message   string    `json:"message"`
}

// SearchParams 任务的搜索参数
type SearchParams struct {
	JANCode   string               `json:"jan_code"`
	Kind      types.SearchKind     `json:"kind"`
	Platforms []types.PlatformCode `json:"platforms,omitempty"`
	Limit     int                  `json:"limit"`
}

// Result 任务完成后的汇总信息，结果明细单独存放在结果表中
type Result struct {
	Success      bool                    `json:"success"`
	TotalResults int                     `json:"total_results"`
	Platforms    []types.PlatformSummary `json:"platforms"`
	Errors       types.ErrorSnapshot     `json:"errors"`
	Cached       bool                    `json:"cached"`
	ElapsedMS    int64                   `json:"elapsed_ms"`
}

// Task 异步搜索任务
type Task struct {
	ID             string
	Name           string
	Status         Status
	SearchParams   SearchParams
	Result         *Result
	ErrorMessage   string
	ProcessingLogs []LogEntry
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// Stats 任务结果统计
type Stats struct {
	Count          int                        `json:"count"`
	MinPrice       float64                    `json:"min_price"`
	MaxPrice       float64                    `json:"max_price"`
	AvgPrice       float64                    `json:"avg_price"`
	Platforms      []types.PlatformCode       `json:"platforms"`
	PlatformCounts map[types.PlatformCode]int `json:"platform_counts"`
}

// TaskDetail is a task merged with its cheapest result rows.
type TaskDetail struct {
	Task    *Task
	Results []*types.SearchResult
	Stats   Stats
}

// TaskSummary is a list entry.
type TaskSummary struct {
	Task        *Task
	ResultCount int
}

// ListFilter 任务列表查询条件
type ListFilter struct {
	Page   int
	Limit  int
	Status Status // empty means any
}

// Transition describes a monotonic status write. The write is applied only
// if the stored status is one of From; otherwise the repo returns
// ErrStaleWrite (or ErrTaskNotFound).
type Transition struct {
	From         []Status
	To           Status
	ErrorMessage *string
	Result       *Result
	Results      []*types.SearchResult // replaces the task's result rows when non-nil
	Logs         []LogEntry            // appended
	Name         string                // replaces the name when non-empty
	At           time.Time
}

// TaskRepo 任务存储接口
type TaskRepo interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, filter ListFilter) ([]*TaskSummary, int64, error)
	// Transition applies t atomically and returns the updated task.
	Transition(ctx context.Context, id string, t Transition) (*Task, error)
	// Results returns up to limit result rows ordered by ascending total
	// price, and stats over every stored row.
	Results(ctx context.Context, id string, limit int) ([]*types.SearchResult, Stats, error)
	// Delete removes the task and its result rows atomically.
	Delete(ctx context.Context, id string) error
}
