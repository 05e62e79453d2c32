package biz

import (
	"sort"
	"strings"

	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	"github.com/samber/lo"
)

// ApplyFilters drops results outside the price range, condition set or
// seller lists. Prices compare against the total price.
func ApplyFilters(results []*types.SearchResult, f *types.Filters) []*types.SearchResult {
	if f == nil {
		return results
	}

	allow := lowerSet(f.SellerAllow)
	deny := lowerSet(f.SellerDeny)

	return lo.Filter(results, func(r *types.SearchResult, _ int) bool {
		if f.MinPrice != nil && r.TotalPrice < *f.MinPrice {
			return false
		}
		if f.MaxPrice != nil && r.TotalPrice > *f.MaxPrice {
			return false
		}
		if len(f.Conditions) > 0 && !lo.Contains(f.Conditions, r.Condition) {
			return false
		}
		if len(allow) > 0 && !sellerIn(r.Seller, allow) {
			return false
		}
		if len(deny) > 0 && sellerIn(r.Seller, deny) {
			return false
		}
		return true
	})
}

func lowerSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func sellerIn(s types.Seller, set map[string]struct{}) bool {
	for _, v := range []string{s.ID, s.Name} {
		if v == "" {
			continue
		}
		if _, ok := set[strings.ToLower(v)]; ok {
			return true
		}
	}
	return false
}

// Sort orders results in place. All orders are stable so equal keys keep
// their merge order.
func Sort(results []*types.SearchResult, option types.SortOption) {
	var less func(a, b *types.SearchResult) bool

	switch option {
	case types.SortRelevance:
		less = func(a, b *types.SearchResult) bool {
			ra, rb := relevanceOf(a), relevanceOf(b)
			if ra != rb {
				return ra > rb
			}
			return a.TotalPrice < b.TotalPrice
		}
	case types.SortPriceDesc:
		less = func(a, b *types.SearchResult) bool { return a.TotalPrice > b.TotalPrice }
	case types.SortNewest:
		less = func(a, b *types.SearchResult) bool {
			switch {
			case a.ListedAt == nil && b.ListedAt == nil:
				return a.TotalPrice < b.TotalPrice
			case a.ListedAt == nil:
				return false
			case b.ListedAt == nil:
				return true
			case !a.ListedAt.Equal(*b.ListedAt):
				return a.ListedAt.After(*b.ListedAt)
			}
			return a.TotalPrice < b.TotalPrice
		}
	default:
		less = func(a, b *types.SearchResult) bool { return a.TotalPrice < b.TotalPrice }
	}

	sort.SliceStable(results, func(i, j int) bool { return less(results[i], results[j]) })
}

func relevanceOf(r *types.SearchResult) int {
	if r.Relevance == nil {
		return -1
	}
	return *r.Relevance
}

// Paginate slices results. The offset is (page-1)*limit unless an explicit
// offset is given, in which case the reported page is derived from it.
func Paginate(results []*types.SearchResult, page, limit int, offset *int) ([]*types.SearchResult, types.PageInfo) {
	if limit <= 0 {
		limit = types.DefaultPageLimit
	}
	if page < 1 {
		page = 1
	}

	start := (page - 1) * limit
	if offset != nil {
		start = *offset
		page = start/limit + 1
	}

	total := len(results)
	info := types.PageInfo{
		Page:        page,
		Limit:       limit,
		Offset:      start,
		Total:       total,
		TotalPages:  (total + limit - 1) / limit,
		HasNext:     start+limit < total,
		HasPrevious: start > 0,
	}

	if start >= total {
		return []*types.SearchResult{}, info
	}
	end := start + limit
	if end > total {
		end = total
	}
	return results[start:end], info
}
