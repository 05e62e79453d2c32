package service

import (
	"errors"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/pricehunt-backend/internal/pkg/errors"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/response"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	"github.com/lk2023060901/pricehunt-backend/internal/task/biz"
	"go.uber.org/zap"
)

// TaskService 异步搜索任务 HTTP 服务
type TaskService struct {
	orchestrator *biz.Orchestrator
	logger       *logger.Logger
}

// NewTaskService 创建任务服务
func NewTaskService(orchestrator *biz.Orchestrator, logger *logger.Logger) *TaskService {
	return &TaskService{orchestrator: orchestrator, logger: logger}
}

// RegisterRoutes 注册任务路由
func (s *TaskService) RegisterRoutes(rg *gin.RouterGroup) {
	tasks := rg.Group("/search/tasks")
	{
		tasks.POST("", s.CreateTask)
		tasks.GET("", s.ListTasks)
		tasks.GET("/:id", s.GetTask)
		tasks.PUT("/:id", s.UpdateTaskStatus)
		tasks.DELETE("/:id", s.DeleteTask)
	}
}

// CreateTask 创建任务，后台执行，立即返回
func (s *TaskService) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	task, err := s.orchestrator.Create(c.Request.Context(), req.JANCode)
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Created(c, &CreateTaskResponse{
		ID:           task.ID,
		Name:         task.Name,
		Status:       task.Status,
		SearchParams: task.SearchParams,
		CreatedAt:    task.CreatedAt,
	})
}

// GetTask 任务详情
func (s *TaskService) GetTask(c *gin.Context) {
	detail, err := s.orchestrator.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return
	}

	results := detail.Results
	if results == nil {
		results = []*types.SearchResult{}
	}
	response.Success(c, &TaskDetailResponse{
		TaskResponse: toTaskResponse(detail.Task),
		Results:      results,
		Stats:        detail.Stats,
	})
}

// ListTasks 任务列表
func (s *TaskService) ListTasks(c *gin.Context) {
	var q ListTasksQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	filter := biz.ListFilter{Page: q.Page, Limit: q.Limit, Status: biz.Status(q.Status)}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = types.DefaultPageLimit
	}

	items, total, err := s.orchestrator.List(c.Request.Context(), filter)
	if err != nil {
		s.handleError(c, err)
		return
	}

	out := make([]*TaskListItem, len(items))
	for i, it := range items {
		tr := toTaskResponse(it.Task)
		tr.ProcessingLogs = nil
		out[i] = &TaskListItem{TaskResponse: tr, ResultCount: it.ResultCount}
	}
	response.Success(c, &TaskListResponse{
		Items:      out,
		Page:       filter.Page,
		Limit:      filter.Limit,
		Total:      total,
		TotalPages: int((total + int64(filter.Limit) - 1) / int64(filter.Limit)),
	})
}

// UpdateTaskStatus 内部状态更新
func (s *TaskService) UpdateTaskStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	task, err := s.orchestrator.UpdateStatus(c.Request.Context(), c.Param("id"), biz.Status(req.Status), req.ErrorMessage)
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, toTaskResponse(task))
}

// DeleteTask action=cancel 取消任务；action=delete（默认）删除任务及结果
func (s *TaskService) DeleteTask(c *gin.Context) {
	id := c.Param("id")

	switch c.DefaultQuery("action", "delete") {
	case "cancel":
		task, err := s.orchestrator.Cancel(c.Request.Context(), id)
		if err != nil {
			s.handleError(c, err)
			return
		}
		response.Success(c, toTaskResponse(task))
	case "delete":
		if err := s.orchestrator.Delete(c.Request.Context(), id); err != nil {
			s.handleError(c, err)
			return
		}
		response.Success(c, gin.H{"id": id, "deleted": true})
	default:
		response.ErrorWithCode(c, apperrors.ErrTaskInvalidAction)
	}
}

func (s *TaskService) handleError(c *gin.Context, err error) {
	appErr := ToAppError(err)
	if apperrors.IsServerError(appErr.Code) {
		s.logger.WithContext(c.Request.Context()).Error("task request failed", zap.Error(err))
	}
	response.HandleError(c, appErr)
}

// ToAppError maps orchestrator errors to business codes.
func ToAppError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, types.ErrInvalidJAN):
		return apperrors.Wrap(err, apperrors.ErrSearchInvalidJAN)
	case errors.Is(err, biz.ErrTaskNotFound):
		return apperrors.Wrap(err, apperrors.ErrTaskNotFound)
	case errors.Is(err, biz.ErrInvalidStatus):
		return apperrors.Wrap(err, apperrors.ErrTaskInvalidStatus, err.Error())
	case errors.Is(err, biz.ErrTaskTerminal):
		return apperrors.Wrap(err, apperrors.ErrTaskTerminal)
	case errors.Is(err, biz.ErrInvalidTransition):
		return apperrors.Wrap(err, apperrors.ErrTaskInvalidTransition, err.Error())
	}
	return apperrors.Wrap(err, apperrors.ErrTaskPersistence)
}
