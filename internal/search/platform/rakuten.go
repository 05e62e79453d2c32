package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	"github.com/tidwall/gjson"
)

const (
	rakutenDefaultHost = "https://app.rakuten.co.jp/services/api/IchibaItem/Search/20220601"
	rakutenMaxHits     = 30
)

// RakutenAdapter searches Rakuten Ichiba through the Item Search API.
type RakutenAdapter struct {
	*BaseAdapter
}

// NewRakutenAdapter creates a Rakuten Ichiba adapter
func NewRakutenAdapter(cfg *types.PlatformConfig, log *logger.Logger) (Adapter, error) {
	if cfg.APIKey == "" {
		return nil, types.ErrMissingAPIKey
	}
	if cfg.APIHost == "" {
		cfg.APIHost = rakutenDefaultHost
	}

	info := types.PlatformInfo{
		Code:       types.PlatformRakuten,
		Name:       "Rakuten Ichiba",
		Kinds:      []types.SearchKind{types.KindJAN, types.KindProductName, types.KindKeyword},
		Regions:    []string{"JP"},
		Timeout:    cfg.TimeoutOr(8 * time.Second),
		NewOnly:    true,
		SupportJAN: true,
	}
	return &RakutenAdapter{BaseAdapter: NewBaseAdapter(info, cfg, log)}, nil
}

// Search executes a query against the Item Search API
func (a *RakutenAdapter) Search(ctx context.Context, query string, kind types.SearchKind, filters *types.Filters, limit int) (*types.RawSearchResponse, error) {
	if query == "" {
		return nil, a.Fail(types.CodeInvalidInput, "empty query", types.ErrEmptyQuery)
	}
	if limit <= 0 || limit > rakutenMaxHits {
		limit = rakutenMaxHits
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("formatVersion", "2")
	params.Set("keyword", query)
	params.Set("hits", strconv.Itoa(limit))
	params.Set("sort", "+itemPrice")
	params.Set("availability", "1")
	if a.config.AffiliateID != "" {
		params.Set("affiliateId", a.config.AffiliateID)
	}
	if filters != nil {
		if filters.MinPrice != nil {
			params.Set("minPrice", strconv.Itoa(int(*filters.MinPrice)))
		}
		if filters.MaxPrice != nil {
			params.Set("maxPrice", strconv.Itoa(int(*filters.MaxPrice)))
		}
	}

	body, err := a.Fetch(ctx, func(ctx context.Context) (*http.Request, error) {
		// the key rotates per attempt
		params.Set("applicationId", a.APIKey())
		return http.NewRequestWithContext(ctx, http.MethodGet, a.config.APIHost+"?"+params.Encode(), nil)
	})
	if err != nil {
		return nil, err
	}

	return a.parse(body)
}

func (a *RakutenAdapter) parse(body []byte) (*types.RawSearchResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, a.Fail(types.CodeParse, "invalid JSON response", nil)
	}

	root := gjson.ParseBytes(body)
	if e := root.Get("error"); e.Exists() {
		return nil, a.Fail(types.CodeInvalidInput, fmt.Sprintf("%s: %s", e.String(), root.Get("error_description").String()), nil)
	}

	items := root.Get("Items")
	if !items.Exists() {
		return nil, a.Fail(types.CodeParse, "response has no Items field", nil)
	}

	out := &types.RawSearchResponse{
		Items: make([]types.RawItem, 0, len(items.Array())),
		Metadata: map[string]any{
			"total": root.Get("count").Int(),
			"page":  root.Get("page").Int(),
		},
	}

	items.ForEach(func(_, it gjson.Result) bool {
		// formatVersion=1 nests each item under "Item"
		if inner := it.Get("Item"); inner.Exists() {
			it = inner
		}

		item := types.RawItem{
			ID:          it.Get("itemCode").String(),
			Title:       it.Get("itemName").String(),
			Description: it.Get("itemCaption").String(),
			URL:         it.Get("itemUrl").String(),
			Price:       it.Get("itemPrice").Float(),
			Currency:    "JPY",
			SellerID:    it.Get("shopCode").String(),
			SellerName:  it.Get("shopName").String(),
		}
		for _, img := range it.Get("mediumImageUrls").Array() {
			u := img.String()
			if img.IsObject() {
				u = img.Get("imageUrl").String()
			}
			if u != "" {
				item.ImageURLs = append(item.ImageURLs, u)
			}
		}
		// postageFlag 0 means the price includes shipping
		if pf := it.Get("postageFlag"); pf.Exists() && pf.Int() == 0 {
			item.ShippingKnown = true
			item.FreeShipping = true
		}
		if r := it.Get("reviewAverage"); r.Exists() && r.Float() > 0 {
			rating := r.Float()
			item.SellerRating = &rating
		}
		if item.ID != "" && item.Title != "" {
			out.Items = append(out.Items, item)
		}
		return true
	})

	return out, nil
}
