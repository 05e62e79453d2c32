package service

import "github.com/lk2023060901/pricehunt-backend/internal/search/types"

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Kind        string         `json:"kind" binding:"required"`
	Query       string         `json:"query" binding:"required"`
	ProductName string         `json:"product_name"`
	Filters     FiltersRequest `json:"filters"`
	Page        int            `json:"page" binding:"omitempty,min=1"`
	Limit       int            `json:"limit" binding:"omitempty,min=1,max=100"`
	Offset      *int           `json:"offset" binding:"omitempty,min=0"`
	Platforms   []string       `json:"platforms"`
	Cache       *CacheRequest  `json:"cache"`
}

type FiltersRequest struct {
	MinPrice    *float64 `json:"min_price" binding:"omitempty,min=0"`
	MaxPrice    *float64 `json:"max_price" binding:"omitempty,min=0"`
	Conditions  []string `json:"conditions"`
	SellerAllow []string `json:"seller_allow"`
	SellerDeny  []string `json:"seller_deny"`
	Sort        string   `json:"sort"`
}

type CacheRequest struct {
	Enabled    *bool `json:"enabled"`
	TTLSeconds int   `json:"ttl_seconds" binding:"omitempty,min=0"`
}

func (r *SearchRequest) toDomain() *types.SearchRequest {
	req := &types.SearchRequest{
		Kind:        types.SearchKind(r.Kind),
		Query:       r.Query,
		ProductName: r.ProductName,
		Filters: types.Filters{
			MinPrice:    r.Filters.MinPrice,
			MaxPrice:    r.Filters.MaxPrice,
			SellerAllow: r.Filters.SellerAllow,
			SellerDeny:  r.Filters.SellerDeny,
			Sort:        types.SortOption(r.Filters.Sort),
		},
		Pagination: types.Pagination{Page: r.Page, Limit: r.Limit, Offset: r.Offset},
	}
	for _, c := range r.Filters.Conditions {
		req.Filters.Conditions = append(req.Filters.Conditions, types.Condition(c))
	}
	for _, p := range r.Platforms {
		req.Platforms = append(req.Platforms, types.PlatformCode(p))
	}
	if r.Cache != nil {
		req.Cache = types.CachePolicy{Enabled: r.Cache.Enabled, TTLSeconds: r.Cache.TTLSeconds}
	}
	return req
}

// PlatformResponse is one entry of GET /api/v1/platforms.
type PlatformResponse struct {
	Code       types.PlatformCode `json:"code"`
	Name       string             `json:"name"`
	Kinds      []types.SearchKind `json:"kinds"`
	Regions    []string           `json:"regions"`
	RateLimit  float64            `json:"rate_limit"`
	TimeoutMS  int64              `json:"timeout_ms"`
	NewOnly    bool               `json:"new_only"`
	Scraped    bool               `json:"scraped"`
	SupportJAN bool               `json:"support_jan"`
	Healthy    bool               `json:"healthy"`
	LatencyMS  int64              `json:"latency_ms"`
	Message    string             `json:"message,omitempty"`
}
