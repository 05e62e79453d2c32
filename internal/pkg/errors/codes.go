package errors

import (
	"fmt"
	"net/http"
)

// Code binds a business error code to its HTTP status and message.
type Code struct {
	Code    int
	Status  int
	Message string
}

const (
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrConflict        = 1005
	ErrTooManyRequests = 1006
	ErrBadRequest      = 1007
	ErrServiceUnavail  = 1008

	// Search errors (2000-2999)
	ErrSearchInvalidRequest = 2000
	ErrSearchInvalidJAN     = 2001
	ErrSearchNoPlatforms    = 2002
	ErrPlatformNotFound     = 2003
	ErrSearchAllFailed      = 2004

	// Task errors (3000-3999)
	ErrTaskNotFound          = 3000
	ErrTaskInvalidStatus     = 3001
	ErrTaskTerminal          = 3002
	ErrTaskInvalidTransition = 3003
	ErrTaskInvalidAction     = 3004
	ErrTaskPersistence       = 3005
)

var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrConflict:        {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, "Too many requests"},
	ErrBadRequest:      {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	ErrSearchInvalidRequest: {ErrSearchInvalidRequest, http.StatusBadRequest, "Invalid search request"},
	ErrSearchInvalidJAN:     {ErrSearchInvalidJAN, http.StatusBadRequest, "JAN code must be 8 or 13 digits"},
	ErrSearchNoPlatforms:    {ErrSearchNoPlatforms, http.StatusBadRequest, "No enabled platform matches the request"},
	ErrPlatformNotFound:     {ErrPlatformNotFound, http.StatusNotFound, "Platform not found"},
	// upstream-only failures stay HTTP 200 with success=false in the body
	ErrSearchAllFailed: {ErrSearchAllFailed, http.StatusOK, "All platforms failed"},

	ErrTaskNotFound:          {ErrTaskNotFound, http.StatusNotFound, "Task not found"},
	ErrTaskInvalidStatus:     {ErrTaskInvalidStatus, http.StatusBadRequest, "Invalid task status"},
	ErrTaskTerminal:          {ErrTaskTerminal, http.StatusConflict, "Task already finished"},
	ErrTaskInvalidTransition: {ErrTaskInvalidTransition, http.StatusConflict, "Invalid task status transition"},
	ErrTaskInvalidAction:     {ErrTaskInvalidAction, http.StatusBadRequest, "Invalid action, must be 'cancel' or 'delete'"},
	ErrTaskPersistence:       {ErrTaskPersistence, http.StatusInternalServerError, "Task storage failure"},
}

// GetCode returns the Code for code, or the internal error code when unknown.
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

func GetMessage(code int) string {
	return GetCode(code).Message
}

func IsSuccess(code int) bool {
	return code == Success
}

func IsClientError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}

func IsServerError(code int) bool {
	return GetHTTPStatus(code) >= 500
}

// FormatError renders the message for code, optionally suffixed with a detail.
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
