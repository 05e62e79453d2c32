package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/pricehunt-backend/internal/pkg/errors"
)

// Response is the JSON envelope every handler writes.
type Response struct {
	Code    int    `json:"code"` // 0 on success, otherwise a business error code
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

// Success writes a 200 with data.
func Success(c *gin.Context, data any) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusOK, Response{Code: apperrors.Success, Data: data})
}

// Created writes a 201 with data.
func Created(c *gin.Context, data any) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusCreated, Response{Code: apperrors.Success, Data: data})
}

// Degraded writes a 200 carrying a non-zero code. Used when the request was
// valid but every upstream failed; data still carries the diagnostics.
func Degraded(c *gin.Context, code int, data any) {
	c.JSON(http.StatusOK, Response{Code: code, Message: apperrors.GetMessage(code), Data: data})
}

// HandleError maps err to its HTTP status via the AppError code table.
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)

	code := apperrors.ExtractCode(err)
	c.JSON(apperrors.GetHTTPStatus(code), Response{
		Code:    code,
		Message: apperrors.FormatError(code, apperrors.GetDetails(err)),
		Data:    struct{}{},
	})
}

// ErrorWithCode writes the error response for code.
func ErrorWithCode(c *gin.Context, code int, details ...string) {
	c.JSON(apperrors.GetHTTPStatus(code), Response{
		Code:    code,
		Message: apperrors.FormatError(code, details...),
		Data:    struct{}{},
	})
}

// BadRequest writes a 400 with the invalid-params code.
func BadRequest(c *gin.Context, message string) {
	ErrorWithCode(c, apperrors.ErrInvalidParams, message)
}
