package types

// PageInfo describes the slice returned by the paginator.
type PageInfo struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	Offset      int  `json:"offset"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// PlatformSummary reports one platform's outcome in a response.
type PlatformSummary struct {
	Platform  PlatformCode `json:"platform"`
	Success   bool         `json:"success"`
	Count     int          `json:"count"`
	ElapsedMS int64        `json:"elapsed_ms"`
	ErrorCode ErrorCode    `json:"error_code,omitempty"`
}

// ErrorSnapshot is the aggregated view of every failure in a request.
type ErrorSnapshot struct {
	Total      int                  `json:"total"`
	ByCode     map[ErrorCode]int    `json:"by_code"`
	ByPlatform map[PlatformCode]int `json:"by_platform"`
	BySeverity map[Severity]int     `json:"by_severity"`
	Records    []*ErrorRecord       `json:"records"`
}

// SearchResponse is the synchronous search result.
type SearchResponse struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message,omitempty"`
	Query      string            `json:"query"`
	Kind       SearchKind        `json:"kind"`
	Results    []*SearchResult   `json:"results"`
	Pagination PageInfo          `json:"pagination"`
	Platforms  []PlatformSummary `json:"platforms"`
	Errors     ErrorSnapshot     `json:"errors"`
	Cached     bool              `json:"cached"`
	ElapsedMS  int64             `json:"elapsed_ms"`
}
