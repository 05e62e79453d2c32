package service

import (
	"time"

	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	"github.com/lk2023060901/pricehunt-backend/internal/task/biz"
)

// CreateTaskRequest is the body of POST /search/tasks.
type CreateTaskRequest struct {
	JANCode string `json:"jan_code" binding:"required"`
}

// UpdateStatusRequest is the body of PUT /search/tasks/:id.
type UpdateStatusRequest struct {
	Status       string `json:"status" binding:"required"`
	ErrorMessage string `json:"error_message"`
}

// ListTasksQuery binds GET /search/tasks query parameters.
type ListTasksQuery struct {
	Page   int    `form:"page" binding:"omitempty,min=1"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Status string `form:"status"`
}

// TaskResponse 任务基本信息
type TaskResponse struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Status         biz.Status       `json:"status"`
	SearchParams   biz.SearchParams `json:"search_params"`
	Result         *biz.Result      `json:"result,omitempty"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	ProcessingLogs []biz.LogEntry   `json:"processing_logs,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
}

// CreateTaskResponse is the minimal view returned on creation.
type CreateTaskResponse struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Status       biz.Status       `json:"status"`
	SearchParams biz.SearchParams `json:"search_params"`
	CreatedAt    time.Time        `json:"created_at"`
}

// TaskDetailResponse 任务详情，包含价格最低的结果和统计
type TaskDetailResponse struct {
	*TaskResponse
	Results []*types.SearchResult `json:"results"`
	Stats   biz.Stats             `json:"stats"`
}

// TaskListItem 列表项
type TaskListItem struct {
	*TaskResponse
	ResultCount int `json:"result_count"`
}

// TaskListResponse 分页列表
type TaskListResponse struct {
	Items      []*TaskListItem `json:"items"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	Total      int64           `json:"total"`
	TotalPages int             `json:"total_pages"`
}

func toTaskResponse(t *biz.Task) *TaskResponse {
	return &TaskResponse{
		ID:             t.ID,
		Name:           t.Name,
		Status:         t.Status,
		SearchParams:   t.SearchParams,
		Result:         t.Result,
		ErrorMessage:   t.ErrorMessage,
		ProcessingLogs: t.ProcessingLogs,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
		CompletedAt:    t.CompletedAt,
	}
}
