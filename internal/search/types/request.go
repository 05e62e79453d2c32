package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/text/width"
)

// SearchKind selects how the query string is interpreted.
type SearchKind string

const (
	KindJAN         SearchKind = "jan"
	KindProductName SearchKind = "product_name"
	KindKeyword     SearchKind = "keyword"
)

func (k SearchKind) Valid() bool {
	return k == KindJAN || k == KindProductName || k == KindKeyword
}

// SortOption orders the final result list.
type SortOption string

const (
	SortDefault   SortOption = ""
	SortRelevance SortOption = "relevance"
	SortPriceAsc  SortOption = "price_asc"
	SortPriceDesc SortOption = "price_desc"
	SortNewest    SortOption = "newest"
)

func (s SortOption) Valid() bool {
	switch s {
	case SortDefault, SortRelevance, SortPriceAsc, SortPriceDesc, SortNewest:
		return true
	}
	return false
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	DefaultCacheTTL  = 5 * time.Minute
)

// Filters narrow the merged result set. They are applied after
// deduplication and before pagination.
type Filters struct {
	MinPrice    *float64    `json:"min_price,omitempty"`
	MaxPrice    *float64    `json:"max_price,omitempty"`
	Conditions  []Condition `json:"conditions,omitempty"`
	SellerAllow []string    `json:"seller_allow,omitempty"` // seller id or name
	SellerDeny  []string    `json:"seller_deny,omitempty"`
	Sort        SortOption  `json:"sort,omitempty"`
}

// Pagination selects a page of the ranked results. Offset, when set,
// overrides the page-derived offset.
type Pagination struct {
	Page   int  `json:"page"`
	Limit  int  `json:"limit"`
	Offset *int `json:"offset,omitempty"`
}

// CachePolicy controls result caching for a single request.
type CachePolicy struct {
	Enabled    *bool `json:"enabled,omitempty"` // nil means enabled
	TTLSeconds int   `json:"ttl_seconds,omitempty"`
}

// UseCache reports whether the cache should be consulted.
func (c CachePolicy) UseCache() bool {
	return c.Enabled == nil || *c.Enabled
}

// TTL returns the per-request TTL or def.
func (c CachePolicy) TTL(def time.Duration) time.Duration {
	if c.TTLSeconds > 0 {
		return time.Duration(c.TTLSeconds) * time.Second
	}
	return def
}

// SearchRequest is the normalized input of the search pipeline.
type SearchRequest struct {
	Kind       SearchKind     `json:"kind"`
	Query      string         `json:"query"`
	Filters    Filters        `json:"filters"`
	Pagination Pagination     `json:"pagination"`
	Platforms  []PlatformCode `json:"platforms,omitempty"`
	Cache      CachePolicy    `json:"cache"`

	// ProductName is an optional resolved product name used for relevance
	// scoring when the query itself is a barcode.
	ProductName string `json:"product_name,omitempty"`
}

var janPattern = regexp.MustCompile(`^(\d{8}|\d{13})$`)

// NormalizeJAN trims surrounding space and folds full-width digits
// ("４９０２..."). Separators inside the code are kept so that ValidJAN
// rejects them.
func NormalizeJAN(code string) string {
	return width.Narrow.String(strings.TrimSpace(code))
}

// ValidJAN reports whether code is an 8 or 13 digit JAN code.
func ValidJAN(code string) bool {
	return janPattern.MatchString(code)
}

// Normalize fills defaults and canonicalizes the request in place.
func (r *SearchRequest) Normalize() {
	r.Query = strings.Join(strings.Fields(width.Fold.String(r.Query)), " ")
	if r.Kind == KindJAN {
		r.Query = NormalizeJAN(r.Query)
	}
	r.ProductName = strings.TrimSpace(r.ProductName)

	if r.Pagination.Page < 1 {
		r.Pagination.Page = 1
	}
	if r.Pagination.Limit == 0 {
		r.Pagination.Limit = DefaultPageLimit
	}
	if r.Pagination.Limit > MaxPageLimit {
		r.Pagination.Limit = MaxPageLimit
	}

	r.Platforms = lo.Uniq(r.Platforms)
	sort.Slice(r.Platforms, func(i, j int) bool { return r.Platforms[i] < r.Platforms[j] })

	r.Filters.Conditions = lo.Uniq(r.Filters.Conditions)
	sort.Slice(r.Filters.Conditions, func(i, j int) bool { return r.Filters.Conditions[i] < r.Filters.Conditions[j] })

	if r.Filters.Sort == SortDefault {
		r.Filters.Sort = r.DefaultSort()
	}
}

// DefaultSort is relevance when the query names a product and price
// ascending for barcode and browse style queries.
func (r *SearchRequest) DefaultSort() SortOption {
	if r.HasRelevanceContext() {
		return SortRelevance
	}
	return SortPriceAsc
}

// HasRelevanceContext reports whether titles can be meaningfully scored
// against the query.
func (r *SearchRequest) HasRelevanceContext() bool {
	return r.Kind == KindProductName || r.ProductName != ""
}

// RelevanceQuery is the string titles are scored against.
func (r *SearchRequest) RelevanceQuery() string {
	if r.ProductName != "" {
		return r.ProductName
	}
	return r.Query
}

// Validate checks request invariants. It expects a normalized request.
func (r *SearchRequest) Validate() error {
	if !r.Kind.Valid() {
		return ErrInvalidKind
	}
	if r.Query == "" {
		return ErrEmptyQuery
	}
	if r.Kind == KindJAN && !ValidJAN(r.Query) {
		return ErrInvalidJAN
	}
	if r.Pagination.Limit <= 0 {
		return ErrInvalidLimit
	}
	if r.Pagination.Offset != nil && *r.Pagination.Offset < 0 {
		return ErrInvalidOffset
	}
	if !r.Filters.Sort.Valid() {
		return ErrInvalidSort
	}
	if r.Filters.MinPrice != nil && r.Filters.MaxPrice != nil && *r.Filters.MinPrice > *r.Filters.MaxPrice {
		return ErrInvalidPriceRange
	}
	for _, c := range r.Filters.Conditions {
		if !c.Valid() {
			return ErrInvalidCondition
		}
	}
	if r.Cache.TTLSeconds < 0 {
		return ErrInvalidCacheTTL
	}
	return nil
}

// PageOffset returns the explicit offset or (page-1)*limit.
func (r *SearchRequest) PageOffset() int {
	if r.Pagination.Offset != nil {
		return *r.Pagination.Offset
	}
	return (r.Pagination.Page - 1) * r.Pagination.Limit
}

// Fingerprint is the cache key of a normalized request. The cache policy
// is excluded so the same query with different TTLs shares an entry.
func (r *SearchRequest) Fingerprint() string {
	key := struct {
		Kind        SearchKind     `json:"k"`
		Query       string         `json:"q"`
		ProductName string         `json:"n,omitempty"`
		Filters     Filters        `json:"f"`
		Pagination  Pagination     `json:"p"`
		Platforms   []PlatformCode `json:"pl"`
	}{r.Kind, strings.ToLower(r.Query), strings.ToLower(r.ProductName), r.Filters, r.Pagination, r.Platforms}

	// struct of plain fields, Marshal cannot fail
	b, _ := json.Marshal(key)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
