package service

import (
	"errors"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/pricehunt-backend/internal/pkg/errors"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/response"
	"github.com/lk2023060901/pricehunt-backend/internal/search/biz"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	"go.uber.org/zap"
)

// SearchService 同步搜索 HTTP 服务
type SearchService struct {
	engine *biz.Engine
	logger *logger.Logger
}

// NewSearchService 创建搜索服务
func NewSearchService(engine *biz.Engine, logger *logger.Logger) *SearchService {
	return &SearchService{engine: engine, logger: logger}
}

// RegisterRoutes 注册搜索路由
func (s *SearchService) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/search", s.Search)
	rg.GET("/platforms", s.ListPlatforms)
}

// Search 聚合搜索
//
// 上游全部失败时依旧返回 HTTP 200，body 中 success=false 并携带错误明细；
// 只有请求本身不合法才返回 4xx。
func (s *SearchService) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := s.engine.Search(c.Request.Context(), req.toDomain())
	if err != nil {
		response.HandleError(c, ToAppError(err))
		return
	}

	if !resp.Success {
		s.logger.WithContext(c.Request.Context()).Warn("search degraded, every platform failed",
			zap.String("query", resp.Query),
			zap.Int("errors", resp.Errors.Total))
		response.Degraded(c, apperrors.ErrSearchAllFailed, resp)
		return
	}
	response.Success(c, resp)
}

// ListPlatforms 平台能力与健康状态
func (s *SearchService) ListPlatforms(c *gin.Context) {
	statuses := s.engine.Platforms(c.Request.Context())

	items := make([]*PlatformResponse, len(statuses))
	for i, st := range statuses {
		items[i] = &PlatformResponse{
			Code:       st.Info.Code,
			Name:       st.Info.Name,
			Kinds:      st.Info.Kinds,
			Regions:    st.Info.Regions,
			RateLimit:  st.Info.RateLimit,
			TimeoutMS:  st.Info.Timeout.Milliseconds(),
			NewOnly:    st.Info.NewOnly,
			Scraped:    st.Info.Scraped,
			SupportJAN: st.Info.SupportJAN,
			Healthy:    st.Health.Healthy,
			LatencyMS:  st.Health.Latency.Milliseconds(),
			Message:    st.Health.Message,
		}
	}
	response.Success(c, gin.H{"platforms": items})
}

// ToAppError maps request validation errors of the search pipeline to
// business codes.
func ToAppError(err error) error {
	switch {
	case errors.Is(err, types.ErrInvalidJAN):
		return apperrors.Wrap(err, apperrors.ErrSearchInvalidJAN)
	case errors.Is(err, types.ErrNoPlatforms):
		return apperrors.Wrap(err, apperrors.ErrSearchNoPlatforms, err.Error())
	case errors.Is(err, types.ErrPlatformNotFound):
		return apperrors.Wrap(err, apperrors.ErrPlatformNotFound, err.Error())
	case isValidationError(err):
		return apperrors.Wrap(err, apperrors.ErrSearchInvalidRequest, err.Error())
	}
	return apperrors.Wrap(err, apperrors.ErrInternalServer)
}

func isValidationError(err error) bool {
	for _, target := range []error{
		types.ErrInvalidKind, types.ErrEmptyQuery, types.ErrInvalidLimit, types.ErrInvalidOffset,
		types.ErrInvalidSort, types.ErrInvalidPriceRange, types.ErrInvalidCondition, types.ErrInvalidCacheTTL,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
