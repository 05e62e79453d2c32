package biz

import (
	"strconv"
	"strings"

	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
)

const defaultCurrency = "JPY"

// conditionPhrases is checked in order, longer phrases first since
// "未使用に近い" contains "未使用".
var conditionPhrases = []struct {
	phrase    string
	condition types.Condition
}{
	{"未使用に近い", types.ConditionLikeNew},
	{"目立った傷や汚れなし", types.ConditionVeryGood},
	{"やや傷や汚れあり", types.ConditionGood},
	{"全体的に状態が悪い", types.ConditionAcceptable},
	{"傷や汚れあり", types.ConditionAcceptable},
	{"新品", types.ConditionNew},
	{"未使用", types.ConditionNew},
	{"like new", types.ConditionLikeNew},
	{"like_new", types.ConditionLikeNew},
	{"very good", types.ConditionVeryGood},
	{"very_good", types.ConditionVeryGood},
	{"brand new", types.ConditionNew},
	{"new", types.ConditionNew},
	{"good", types.ConditionGood},
	{"acceptable", types.ConditionAcceptable},
	{"fair", types.ConditionAcceptable},
	{"poor", types.ConditionAcceptable},
}

// ParseCondition maps upstream condition text to the enum.
func ParseCondition(text string) types.Condition {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return types.ConditionUnknown
	}
	for _, p := range conditionPhrases {
		if strings.Contains(t, p.phrase) {
			return p.condition
		}
	}
	return types.ConditionUnknown
}

// Normalize converts one adapter item into the canonical result. The total
// price is always recomputed as base + shipping.
func Normalize(info types.PlatformInfo, raw types.RawItem) *types.SearchResult {
	base := raw.Price
	if base < 0 {
		base = 0
	}
	shipping := raw.ShippingFee
	if raw.FreeShipping || shipping < 0 {
		shipping = 0
	}
	shippingUnknown := !raw.ShippingKnown && !raw.FreeShipping

	currency := strings.ToUpper(strings.TrimSpace(raw.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	condition := ParseCondition(raw.ConditionText)
	if condition == types.ConditionUnknown && info.NewOnly {
		condition = types.ConditionNew
	}

	id := strings.TrimSpace(raw.ID)
	if id == "" {
		id = strings.TrimSpace(raw.URL)
	}

	images := make([]string, 0, len(raw.ImageURLs))
	for _, u := range raw.ImageURLs {
		if u = strings.TrimSpace(u); u != "" {
			images = append(images, u)
		}
	}
	if len(images) == 0 {
		images = nil
	}

	return &types.SearchResult{
		Platform:        info.Code,
		ItemID:          id,
		Title:           strings.TrimSpace(raw.Title),
		Description:     strings.TrimSpace(raw.Description),
		URL:             strings.TrimSpace(raw.URL),
		ImageURLs:       images,
		BasePrice:       base,
		ShippingFee:     shipping,
		ShippingUnknown: shippingUnknown,
		TotalPrice:      base + shipping,
		Currency:        currency,
		Condition:       condition,
		Seller: types.Seller{
			ID:     strings.TrimSpace(raw.SellerID),
			Name:   strings.TrimSpace(raw.SellerName),
			Rating: raw.SellerRating,
		},
		ListedAt: raw.ListedAt,
	}
}

// NormalizeAll converts items keeping adapter order.
func NormalizeAll(info types.PlatformInfo, items []types.RawItem) []*types.SearchResult {
	out := make([]*types.SearchResult, 0, len(items))
	for _, it := range items {
		out = append(out, Normalize(info, it))
	}
	return out
}

// DedupKey is (platform, lower(trim(title)), total_price). Cross-platform
// copies of the same item keep distinct keys.
func DedupKey(r *types.SearchResult) string {
	return string(r.Platform) + "\x00" +
		strings.ToLower(strings.TrimSpace(r.Title)) + "\x00" +
		strconv.FormatFloat(r.TotalPrice, 'f', -1, 64)
}

// Dedup keeps the first result per DedupKey in encounter order.
func Dedup(results []*types.SearchResult) []*types.SearchResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]*types.SearchResult, 0, len(results))
	for _, r := range results {
		k := DedupKey(r)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
