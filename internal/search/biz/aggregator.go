package biz

import (
	"sync"

	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
)

// ErrorAggregator collects the failures of one search. It is safe for
// concurrent use by the fan-out workers.
type ErrorAggregator struct {
	mu      sync.Mutex
	records []*types.ErrorRecord
}

func NewErrorAggregator() *ErrorAggregator {
	return &ErrorAggregator{}
}

// Add appends a record.
func (a *ErrorAggregator) Add(rec *types.ErrorRecord) {
	if rec == nil {
		return
	}
	a.mu.Lock()
	a.records = append(a.records, rec)
	a.mu.Unlock()
}

// Record classifies err and appends it, returning the new record.
func (a *ErrorAggregator) Record(platform types.PlatformCode, err error) *types.ErrorRecord {
	rec := types.NewErrorRecord(platform, err)
	a.Add(rec)
	return rec
}

func (a *ErrorAggregator) HasErrors() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records) > 0
}

// Records returns a copy of the collected records in insertion order.
func (a *ErrorAggregator) Records() []*types.ErrorRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*types.ErrorRecord, len(a.records))
	copy(out, a.records)
	return out
}

// Snapshot counts the records by code, platform and severity.
func (a *ErrorAggregator) Snapshot() types.ErrorSnapshot {
	records := a.Records()
	snap := types.ErrorSnapshot{
		Total:      len(records),
		ByCode:     make(map[types.ErrorCode]int),
		ByPlatform: make(map[types.PlatformCode]int),
		BySeverity: make(map[types.Severity]int),
		Records:    records,
	}
	for _, r := range records {
		snap.ByCode[r.Code]++
		if r.Platform != "" {
			snap.ByPlatform[r.Platform]++
		}
		snap.BySeverity[r.Severity]++
	}
	return snap
}
