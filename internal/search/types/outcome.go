package types

import "time"

// PlatformSearchOutcome is one platform's contribution to a search. A failed
// platform has no results and a non-nil Error.
type PlatformSearchOutcome struct {
	Platform PlatformCode    `json:"platform"`
	Results  []*SearchResult `json:"-"`
	Count    int             `json:"count"`
	Elapsed  time.Duration   `json:"-"`
	Metadata map[string]any  `json:"metadata,omitempty"`
	Error    *ErrorRecord    `json:"error,omitempty"`
}

// Succeeded reports whether the platform answered without error.
func (o *PlatformSearchOutcome) Succeeded() bool {
	return o.Error == nil
}
