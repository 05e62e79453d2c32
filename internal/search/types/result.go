package types

import "time"

// Condition is the normalized item condition.
type Condition string

const (
	ConditionNew        Condition = "new"
	ConditionLikeNew    Condition = "like_new"
	ConditionVeryGood   Condition = "very_good"
	ConditionGood       Condition = "good"
	ConditionAcceptable Condition = "acceptable"
	ConditionUnknown    Condition = "unknown"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionVeryGood, ConditionGood, ConditionAcceptable, ConditionUnknown:
		return true
	}
	return false
}

// Seller describes who lists an item.
type Seller struct {
	ID     string   `json:"id,omitempty"`
	Name   string   `json:"name,omitempty"`
	Rating *float64 `json:"rating,omitempty"`
}

// SearchResult is the canonical listing shape. It is only produced by the
// result normalizer, adapters hand over RawItem values.
type SearchResult struct {
	Platform        PlatformCode `json:"platform"`
	ItemID          string       `json:"item_id"`
	Title           string       `json:"title"`
	Description     string       `json:"description,omitempty"`
	URL             string       `json:"url"`
	ImageURLs       []string     `json:"image_urls,omitempty"`
	BasePrice       float64      `json:"base_price"`
	ShippingFee     float64      `json:"shipping_fee"`
	ShippingUnknown bool         `json:"shipping_unknown,omitempty"` // upstream gave no fee, total is base only
	TotalPrice      float64      `json:"total_price"`
	Currency        string       `json:"currency"`
	Condition       Condition    `json:"condition"`
	Seller          Seller       `json:"seller"`
	Relevance       *int         `json:"relevance,omitempty"`
	RelevanceTag    string       `json:"relevance_tag,omitempty"` // high, medium, low
	ListedAt        *time.Time   `json:"listed_at,omitempty"`
}

// RawItem is what an adapter extracts from its upstream before
// normalization. Prices are taken as reported; total is never trusted.
type RawItem struct {
	ID            string
	Title         string
	Description   string
	URL           string
	ImageURLs     []string
	Price         float64
	ShippingFee   float64
	ShippingKnown bool // false when the upstream did not say
	FreeShipping  bool
	Currency      string
	ConditionText string
	SellerID      string
	SellerName    string
	SellerRating  *float64
	ListedAt      *time.Time
}

// RawSearchResponse is the adapter's answer for one search call.
type RawSearchResponse struct {
	Items    []RawItem
	Metadata map[string]any
}
