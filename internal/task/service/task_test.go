package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/pricehunt-backend/internal/pkg/errors"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	searchbiz "github.com/lk2023060901/pricehunt-backend/internal/search/biz"
	"github.com/lk2023060901/pricehunt-backend/internal/search/platform"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	"github.com/lk2023060901/pricehunt-backend/internal/task/biz"
	"github.com/lk2023060901/pricehunt-backend/internal/task/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	code  types.PlatformCode
	items []types.RawItem
}

func (s *stubAdapter) Search(ctx context.Context, query string, kind types.SearchKind, filters *types.Filters, limit int) (*types.RawSearchResponse, error) {
	return &types.RawSearchResponse{Items: s.items}, nil
}

func (s *stubAdapter) HealthCheck(ctx context.Context) types.HealthStatus {
	return types.HealthStatus{Platform: s.code, Healthy: true}
}

func (s *stubAdapter) Info() types.PlatformInfo {
	return types.PlatformInfo{
		Code:       s.code,
		Name:       string(s.code),
		Kinds:      []types.SearchKind{types.KindJAN},
		Timeout:    time.Second,
		SupportJAN: true,
	}
}

// inlineSubmitter runs work on the caller's goroutine once released.
type inlineSubmitter struct {
	queued []func()
}

func (s *inlineSubmitter) Submit(task func()) error {
	s.queued = append(s.queued, task)
	return nil
}

func (s *inlineSubmitter) drain() {
	for len(s.queued) > 0 {
		task := s.queued[0]
		s.queued = s.queued[1:]
		task()
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setupRouter(t *testing.T) (*gin.Engine, *inlineSubmitter) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := platform.NewRegistry()
	require.NoError(t, reg.Register(&stubAdapter{code: "yahoo", items: []types.RawItem{
		{ID: "2", Title: "Switch Lite 本体", Price: 18500, ShippingFee: 600},
		{ID: "1", Title: "Switch Lite", Price: 17000, ShippingFee: 0},
	}}))
	engine := searchbiz.NewEngine(reg, searchbiz.NewExecutor(nil, logger.NewNop()), nil, nil, 0, logger.NewNop())

	pool := &inlineSubmitter{}
	orch := biz.NewOrchestrator(data.NewMemoryTaskRepo(), engine, pool, biz.NewSearchNameResolver(engine, reg), nil, logger.NewNop())

	r := gin.New()
	NewTaskService(orch, logger.NewNop()).RegisterRoutes(r.Group("/api/v1"))
	return r, pool
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func createTask(t *testing.T, r http.Handler, jan string) CreateTaskResponse {
	t.Helper()
	w, env := do(t, r, http.MethodPost, "/api/v1/search/tasks", gin.H{"jan_code": jan})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created CreateTaskResponse
	require.NoError(t, json.Unmarshal(env.Data, &created))
	return created
}

func TestCreateTask(t *testing.T) {
	r, _ := setupRouter(t)

	created := createTask(t, r, "4902370540734")
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Switch Lite", created.Name)
	assert.Equal(t, biz.StatusPending, created.Status)
	assert.Equal(t, "4902370540734", created.SearchParams.JANCode)
	assert.False(t, created.CreatedAt.IsZero())
}

func TestCreateTask_InvalidJAN(t *testing.T) {
	r, _ := setupRouter(t)

	for _, body := range []any{gin.H{"jan_code": "12345"}, gin.H{"jan_code": "49023705407a4"}, gin.H{}} {
		w, env := do(t, r, http.MethodPost, "/api/v1/search/tasks", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NotEqual(t, apperrors.Success, env.Code)
	}
}

func TestGetTask_CompletedWithResults(t *testing.T) {
	r, pool := setupRouter(t)
	created := createTask(t, r, "4902370540734")
	pool.drain()

	w, env := do(t, r, http.MethodGet, "/api/v1/search/tasks/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var detail TaskDetailResponse
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, biz.StatusCompleted, detail.Status)
	require.Len(t, detail.Results, 2)
	assert.Equal(t, 17000.0, detail.Results[0].TotalPrice)
	assert.Equal(t, 19100.0, detail.Results[1].TotalPrice)
	assert.Equal(t, 2, detail.Stats.Count)
	assert.Equal(t, 18050.0, detail.Stats.AvgPrice)
	assert.Equal(t, []types.PlatformCode{"yahoo"}, detail.Stats.Platforms)
	assert.NotEmpty(t, detail.ProcessingLogs)
}

func TestGetTask_NotFound(t *testing.T) {
	r, _ := setupRouter(t)
	w, env := do(t, r, http.MethodGet, "/api/v1/search/tasks/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperrors.ErrTaskNotFound, env.Code)
}

func TestListTasks(t *testing.T) {
	r, pool := setupRouter(t)
	createTask(t, r, "4902370540734")
	pool.drain()
	createTask(t, r, "49023705")

	w, env := do(t, r, http.MethodGet, "/api/v1/search/tasks?page=1&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list TaskListResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 2, list.Total)
	assert.Equal(t, 1, list.TotalPages)
	require.Len(t, list.Items, 2)

	w, env = do(t, r, http.MethodGet, "/api/v1/search/tasks?status=completed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, 2, list.Items[0].ResultCount)

	w, _ = do(t, r, http.MethodGet, "/api/v1/search/tasks?status=paused", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/search/tasks?limit=500", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateTaskStatus(t *testing.T) {
	r, _ := setupRouter(t)
	created := createTask(t, r, "49023705")
	path := "/api/v1/search/tasks/" + created.ID

	w, env := do(t, r, http.MethodPut, path, gin.H{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.ErrTaskInvalidStatus, env.Code)

	for _, status := range []string{"running", "completed"} {
		w, env = do(t, r, http.MethodPut, path, gin.H{"status": status})
		assert.Equal(t, http.StatusConflict, w.Code, status)
		assert.Equal(t, apperrors.ErrTaskInvalidTransition, env.Code, status)
	}

	w, env = do(t, r, http.MethodPut, path, gin.H{"status": "failed", "error_message": "manual stop"})
	require.Equal(t, http.StatusOK, w.Code)
	var task TaskResponse
	require.NoError(t, json.Unmarshal(env.Data, &task))
	assert.Equal(t, biz.StatusFailed, task.Status)
	assert.Equal(t, "manual stop", task.ErrorMessage)

	w, env = do(t, r, http.MethodPut, path, gin.H{"status": "cancelled"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperrors.ErrTaskTerminal, env.Code)
}

func TestDeleteTask_CancelAndDelete(t *testing.T) {
	r, pool := setupRouter(t)

	pending := createTask(t, r, "49023705")
	w, env := do(t, r, http.MethodDelete, "/api/v1/search/tasks/"+pending.ID+"?action=cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cancelled TaskResponse
	require.NoError(t, json.Unmarshal(env.Data, &cancelled))
	assert.Equal(t, biz.StatusCancelled, cancelled.Status)

	completed := createTask(t, r, "4902370540734")
	pool.drain()
	w, env = do(t, r, http.MethodDelete, "/api/v1/search/tasks/"+completed.ID+"?action=cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperrors.ErrTaskTerminal, env.Code)

	w, _ = do(t, r, http.MethodDelete, "/api/v1/search/tasks/"+completed.ID+"?action=archive", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodDelete, "/api/v1/search/tasks/"+completed.ID+"?action=delete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, http.MethodGet, "/api/v1/search/tasks/"+completed.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, r, http.MethodDelete, "/api/v1/search/tasks/"+pending.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
