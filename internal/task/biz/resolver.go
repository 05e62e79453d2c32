package biz

import (
	"context"
	"strings"

	"github.com/lk2023060901/pricehunt-backend/internal/search/platform"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
)

const maxNameRunes = 120

// NameResolver 根据 JAN 码解析商品显示名
type NameResolver interface {
	ResolveName(ctx context.Context, jan string) (string, error)
}

// FallbackName is the display name used when no product name is known.
func FallbackName(jan string) string {
	return "JAN " + jan
}

// SearchNameResolver takes the title of the first hit returned by the
// barcode-capable API platforms. Scraped platforms are too slow for the
// creation call and are not asked.
type SearchNameResolver struct {
	searcher Searcher
	registry *platform.Registry
}

func NewSearchNameResolver(searcher Searcher, registry *platform.Registry) *SearchNameResolver {
	return &SearchNameResolver{searcher: searcher, registry: registry}
}

func (r *SearchNameResolver) ResolveName(ctx context.Context, jan string) (string, error) {
	var codes []types.PlatformCode
	for _, a := range r.registry.List() {
		info := a.Info()
		if info.SupportJAN && !info.Scraped {
			codes = append(codes, info.Code)
		}
	}
	if len(codes) == 0 {
		return "", types.ErrNoPlatforms
	}

	resp, err := r.searcher.Search(ctx, &types.SearchRequest{
		Kind:       types.KindJAN,
		Query:      jan,
		Platforms:  codes,
		Pagination: types.Pagination{Page: 1, Limit: 1},
		Filters:    types.Filters{Sort: types.SortPriceAsc},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return truncateRunes(strings.TrimSpace(resp.Results[0].Title), maxNameRunes), nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
