package platform

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	"github.com/tidwall/gjson"
)

const (
	yahooDefaultHost = "https://shopping.yahooapis.jp/ShoppingWebService/V3/itemSearch"
	yahooMaxResults  = 50

	// shipping.code values of the itemSearch API
	yahooShippingFree = 2
)

// YahooAdapter searches Yahoo! Shopping through itemSearch v3.
type YahooAdapter struct {
	*BaseAdapter
}

// NewYahooAdapter creates a Yahoo! Shopping adapter
func NewYahooAdapter(cfg *types.PlatformConfig, log *logger.Logger) (Adapter, error) {
	if cfg.APIKey == "" {
		return nil, types.ErrMissingAPIKey
	}
	if cfg.APIHost == "" {
		cfg.APIHost = yahooDefaultHost
	}

	info := types.PlatformInfo{
		Code:       types.PlatformYahoo,
		Name:       "Yahoo! Shopping",
		Kinds:      []types.SearchKind{types.KindJAN, types.KindProductName, types.KindKeyword},
		Regions:    []string{"JP"},
		Timeout:    cfg.TimeoutOr(8 * time.Second),
		SupportJAN: true,
	}
	return &YahooAdapter{BaseAdapter: NewBaseAdapter(info, cfg, log)}, nil
}

// Search executes a query against itemSearch. JAN searches use the
// dedicated jan_code parameter instead of a keyword match.
func (a *YahooAdapter) Search(ctx context.Context, query string, kind types.SearchKind, filters *types.Filters, limit int) (*types.RawSearchResponse, error) {
	if query == "" {
		return nil, a.Fail(types.CodeInvalidInput, "empty query", types.ErrEmptyQuery)
	}
	if limit <= 0 || limit > yahooMaxResults {
		limit = yahooMaxResults
	}

	params := url.Values{}
	if kind == types.KindJAN {
		params.Set("jan_code", query)
	} else {
		params.Set("query", query)
	}
	params.Set("results", strconv.Itoa(limit))
	params.Set("sort", "+price")
	params.Set("in_stock", "true")
	if a.config.AffiliateID != "" {
		params.Set("affiliate_type", "vc")
		params.Set("affiliate_id", a.config.AffiliateID)
	}
	if filters != nil {
		if filters.MinPrice != nil {
			params.Set("price_from", strconv.Itoa(int(*filters.MinPrice)))
		}
		if filters.MaxPrice != nil {
			params.Set("price_to", strconv.Itoa(int(*filters.MaxPrice)))
		}
		if len(filters.Conditions) == 1 && filters.Conditions[0] == types.ConditionNew {
			params.Set("condition", "new")
		}
	}

	body, err := a.Fetch(ctx, func(ctx context.Context) (*http.Request, error) {
		params.Set("appid", a.APIKey())
		return http.NewRequestWithContext(ctx, http.MethodGet, a.config.APIHost+"?"+params.Encode(), nil)
	})
	if err != nil {
		return nil, err
	}

	return a.parse(body)
}

func (a *YahooAdapter) parse(body []byte) (*types.RawSearchResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, a.Fail(types.CodeParse, "invalid JSON response", nil)
	}

	root := gjson.ParseBytes(body)
	if msg := root.Get("Error.Message"); msg.Exists() {
		return nil, a.Fail(types.CodeInvalidInput, msg.String(), nil)
	}

	hits := root.Get("hits")
	if !hits.Exists() {
		return nil, a.Fail(types.CodeParse, "response has no hits field", nil)
	}

	out := &types.RawSearchResponse{
		Items: make([]types.RawItem, 0, len(hits.Array())),
		Metadata: map[string]any{
			"total": root.Get("totalResultsAvailable").Int(),
		},
	}

	hits.ForEach(func(_, h gjson.Result) bool {
		item := types.RawItem{
			ID:            h.Get("code").String(),
			Title:         h.Get("name").String(),
			Description:   h.Get("description").String(),
			URL:           h.Get("url").String(),
			Price:         h.Get("price").Float(),
			Currency:      "JPY",
			ConditionText: h.Get("condition").String(),
			SellerID:      h.Get("seller.sellerId").String(),
			SellerName:    h.Get("seller.name").String(),
		}
		if img := h.Get("image.medium").String(); img != "" {
			item.ImageURLs = []string{img}
		}
		if h.Get("shipping.code").Int() == yahooShippingFree {
			item.ShippingKnown = true
			item.FreeShipping = true
		}
		if r := h.Get("seller.review.rate"); r.Exists() && r.Float() > 0 {
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
