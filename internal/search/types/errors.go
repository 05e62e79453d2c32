package types

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
)

var (
	// configuration
	ErrInvalidPlatformName = errors.New("invalid platform name")
	ErrInvalidTimeout      = errors.New("platform timeout must be >= 0")
	ErrInvalidRetries      = errors.New("platform max_retries must be >= 0")
	ErrInvalidRateLimit    = errors.New("platform rate_limit must be >= 0")
	ErrMissingAPIKey       = errors.New("missing API key")
	ErrMissingAPIHost      = errors.New("missing API host")

	// request validation
	ErrInvalidKind       = errors.New("search kind must be one of: jan, product_name, keyword")
	ErrEmptyQuery        = errors.New("empty search query")
	ErrInvalidJAN        = errors.New("JAN code must be 8 or 13 digits")
	ErrInvalidLimit      = errors.New("limit must be > 0")
	ErrInvalidOffset     = errors.New("offset must be >= 0")
	ErrInvalidSort       = errors.New("invalid sort option")
	ErrInvalidPriceRange = errors.New("min_price must not exceed max_price")
	ErrInvalidCondition  = errors.New("invalid condition filter")
	ErrInvalidCacheTTL   = errors.New("cache ttl must be >= 0")

	// registry
	ErrDuplicatePlatform = errors.New("platform already registered")
	ErrPlatformNotFound  = errors.New("platform not found")
	ErrNoPlatforms       = errors.New("no enabled platform matches the request")
)

// ErrorCode is the failure taxonomy shared by adapters, the executor and the
// error aggregator.
type ErrorCode string

const (
	CodeNetwork      ErrorCode = "NETWORK_ERROR"
	CodeTimeout      ErrorCode = "TIMEOUT"
	CodeRateLimit    ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeAuth         ErrorCode = "AUTH_ERROR"
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
	CodeParse        ErrorCode = "PARSE_ERROR"
	CodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// Severity ranks error records for reporting.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type codeAttrs struct {
	retryable   bool
	recoverable bool
	severity    Severity
}

var codeTable = map[ErrorCode]codeAttrs{
	CodeNetwork:      {retryable: true, recoverable: true, severity: SeverityMedium},
	CodeTimeout:      {retryable: true, recoverable: true, severity: SeverityMedium},
	CodeRateLimit:    {retryable: true, recoverable: true, severity: SeverityLow},
	CodeAuth:         {retryable: false, recoverable: false, severity: SeverityHigh},
	CodeInvalidInput: {retryable: false, recoverable: false, severity: SeverityLow},
	CodeParse:        {retryable: false, recoverable: true, severity: SeverityMedium},
	CodeInternal:     {retryable: false, recoverable: false, severity: SeverityCritical},
}

func (c ErrorCode) attrs() codeAttrs {
	if a, ok := codeTable[c]; ok {
		return a
	}
	return codeTable[CodeInternal]
}

// Retryable reports whether an operation failing with c may be retried
// with backoff.
func (c ErrorCode) Retryable() bool { return c.attrs().retryable }

// Recoverable reports whether the failure is expected to clear on its own.
func (c ErrorCode) Recoverable() bool { return c.attrs().recoverable }

func (c ErrorCode) Severity() Severity { return c.attrs().severity }

// PlatformError is the typed error adapters return.
type PlatformError struct {
	Platform PlatformCode
	Code     ErrorCode
	Message  string
	Status   int // upstream HTTP status, 0 when not applicable
	Err      error
}

func (e *PlatformError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Platform, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Platform, e.Code, e.Message)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// NewPlatformError builds a PlatformError.
func NewPlatformError(platform PlatformCode, code ErrorCode, msg string, err error) *PlatformError {
	return &PlatformError{Platform: platform, Code: code, Message: msg, Err: err}
}

// CodeForStatus maps an upstream HTTP status to the taxonomy.
func CodeForStatus(status int) ErrorCode {
	switch {
	case status == http.StatusTooManyRequests:
		return CodeRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CodeAuth
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return CodeTimeout
	case status == http.StatusBadRequest || status == http.StatusNotFound || status == http.StatusUnprocessableEntity:
		return CodeInvalidInput
	case status >= 500:
		return CodeNetwork
	default:
		return CodeInternal
	}
}

// Classify maps any error to the taxonomy.
func Classify(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return CodeTimeout
		}
		return CodeNetwork
	}
	if errors.Is(err, ErrEmptyQuery) || errors.Is(err, ErrInvalidJAN) {
		return CodeInvalidInput
	}
	if errors.Is(err, ErrMissingAPIKey) || errors.Is(err, ErrMissingAPIHost) {
		return CodeAuth
	}
	return CodeInternal
}

// ErrorRecord is one failure captured during a search.
type ErrorRecord struct {
	ID          string         `json:"id"`
	Code        ErrorCode      `json:"code"`
	Message     string         `json:"message"`
	Platform    PlatformCode   `json:"platform,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Recoverable bool           `json:"recoverable"`
	Retryable   bool           `json:"retryable"`
	Severity    Severity       `json:"severity"`
	Details     map[string]any `json:"details,omitempty"`
}

// NewErrorRecord builds a record for err. The taxonomy attributes come from
// the classified code.
func NewErrorRecord(platform PlatformCode, err error) *ErrorRecord {
	code := Classify(err)
	rec := &ErrorRecord{
		ID:          uuid.NewString(),
		Code:        code,
		Message:     err.Error(),
		Platform:    platform,
		Timestamp:   time.Now(),
		Recoverable: code.Recoverable(),
		Retryable:   code.Retryable(),
		Severity:    code.Severity(),
	}

	var pe *PlatformError
	if errors.As(err, &pe) {
		rec.Message = pe.Message
		if pe.Status != 0 || pe.Err != nil {
			rec.Details = map[string]any{}
		}
		if pe.Status != 0 {
			rec.Details["status"] = pe.Status
		}
		if pe.Err != nil {
			rec.Details["cause"] = pe.Err.Error()
		}
	}
	return rec
}
