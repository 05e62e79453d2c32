package biz

import (
	"math"
	"sort"

	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
)

// PlatformAggregate is one platform's share of a task's result rows.
type PlatformAggregate struct {
	Platform types.PlatformCode
	Count    int
	Min      float64
	Max      float64
	Sum      float64
}

// ComputeStats derives task stats from result rows.
func ComputeStats(results []*types.SearchResult) Stats {
	byPlatform := make(map[types.PlatformCode]*PlatformAggregate)
	for _, r := range results {
		agg, ok := byPlatform[r.Platform]
		if !ok {
			agg = &PlatformAggregate{Platform: r.Platform, Min: r.TotalPrice, Max: r.TotalPrice}
			byPlatform[r.Platform] = agg
		}
		agg.Count++
		agg.Sum += r.TotalPrice
		agg.Min = math.Min(agg.Min, r.TotalPrice)
		agg.Max = math.Max(agg.Max, r.TotalPrice)
	}

	aggs := make([]PlatformAggregate, 0, len(byPlatform))
	for _, a := range byPlatform {
		aggs = append(aggs, *a)
	}
	return MergeStats(aggs)
}

// MergeStats folds per-platform aggregates into task stats. Storage
// backends that aggregate in the database call it directly.
func MergeStats(aggs []PlatformAggregate) Stats {
	stats := Stats{
		Platforms:      []types.PlatformCode{},
		PlatformCounts: make(map[types.PlatformCode]int, len(aggs)),
	}

	var sum float64
	for _, a := range aggs {
		if a.Count == 0 {
			continue
		}
		if stats.Count == 0 || a.Min < stats.MinPrice {
			stats.MinPrice = a.Min
		}
		if stats.Count == 0 || a.Max > stats.MaxPrice {
			stats.MaxPrice = a.Max
		}
		stats.Count += a.Count
		sum += a.Sum
		stats.Platforms = append(stats.Platforms, a.Platform)
		stats.PlatformCounts[a.Platform] = a.Count
	}
	if stats.Count > 0 {
		stats.AvgPrice = math.Round(sum/float64(stats.Count)*100) / 100
	}
	sort.Slice(stats.Platforms, func(i, j int) bool { return stats.Platforms[i] < stats.Platforms[j] })
	return stats
}
