package platform

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	"go.uber.org/zap"
)

const (
	mercariBaseURL     = "https://jp.mercari.com"
	mercariImageURL    = "https://static.mercdn.net/thumb/item/webp/%s_1.jpg"
	mercariItemCell    = `[data-testid="item-cell"]:has(a)`
	mercariItemTitle   = `[data-testid="thumbnail-item-name"]`
	mercariEmptyState  = `.merEmptyState`
	mercariChallenge   = `[class*="challenge"], [id*="challenge"]`
	mercariHealthProbe = 5 * time.Second
)

var (
	errMercariNoItems = errors.New("no items")
	errMercariBlocked = errors.New("anti-bot challenge")

	priceDigitsRe       = regexp.MustCompile(`[0-9]+`)
	priceWithCurrencyRe = regexp.MustCompile(`[¥￥]\s*([0-9][0-9,]*)`)

	// item_condition_id values of the search page
	mercariConditionIDs = map[types.Condition]string{
		types.ConditionNew:        "1",
		types.ConditionLikeNew:    "2",
		types.ConditionVeryGood:   "3",
		types.ConditionGood:       "4",
		types.ConditionAcceptable: "5,6",
	}

	// third party hosts that only slow the page down
	mercariBlockedURLs = []string{
		"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.woff", "*.woff2",
		"*google-analytics*", "*googletagmanager*", "*doubleclick*", "*facebook*", "*sentry*",
	}
)

// MercariAdapter scrapes the Mercari search page with a headless browser.
// The browser is launched on first use and shared by all searches.
type MercariAdapter struct {
	info   types.PlatformInfo
	config *types.PlatformConfig
	logger *logger.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewMercariAdapter creates a Mercari scraping adapter
func NewMercariAdapter(cfg *types.PlatformConfig, log *logger.Logger) (Adapter, error) {
	if cfg.APIHost == "" {
		cfg.APIHost = mercariBaseURL
	}
	name := cfg.Name
	if name == "" || name == string(types.PlatformMercari) {
		name = "Mercari"
	}
	regions := cfg.Regions
	if len(regions) == 0 {
		regions = []string{"JP"}
	}

	return &MercariAdapter{
		info: types.PlatformInfo{
			Code:      types.PlatformMercari,
			Name:      name,
			Kinds:     []types.SearchKind{types.KindJAN, types.KindProductName, types.KindKeyword},
			Regions:   regions,
			RateLimit: cfg.RateLimit,
			Burst:     cfg.Burst,
			Timeout:   cfg.TimeoutOr(45 * time.Second),
			Scraped:   true,
		},
		config: cfg,
		logger: log.Named(string(types.PlatformMercari)),
	}, nil
}

func (a *MercariAdapter) Info() types.PlatformInfo {
	return a.info
}

func (a *MercariAdapter) fail(code types.ErrorCode, msg string, err error) *types.PlatformError {
	return types.NewPlatformError(a.info.Code, code, msg, err)
}

// ensureBrowser launches and connects the shared browser once.
func (a *MercariAdapter) ensureBrowser() (*rod.Browser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.browser != nil {
		return a.browser, nil
	}

	bin := a.config.BrowserBin
	if bin == "" {
		path, err := launcher.NewBrowser().Get()
		if err != nil {
			return nil, fmt.Errorf("download browser: %w", err)
		}
		bin = path
	}

	l := launcher.New().
		Headless(a.config.Headless).
		Bin(bin).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage", "true").
		Set("disable-gpu", "true").
		Set("disk-cache-size", "1").
		Set("js-flags", "--max_old_space_size=512")

	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	a.browser = browser
	a.launcher = l
	a.logger.Info("browser started", zap.String("bin", bin), zap.Bool("headless", a.config.Headless))
	return browser, nil
}

// resetBrowser drops a browser that stopped responding so the next
// search relaunches it.
func (a *MercariAdapter) resetBrowser() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.browser != nil {
		_ = a.browser.Close()
		a.browser = nil
	}
	if a.launcher != nil {
		a.launcher.Kill()
		a.launcher = nil
	}
}

// SearchURL builds the on-sale search page URL for query.
func (a *MercariAdapter) SearchURL(query string, filters *types.Filters) string {
	params := url.Values{}
	params.Set("keyword", query)
	params.Set("status", "on_sale")
	params.Set("sort", "price")
	params.Set("order", "asc")
	if filters != nil {
		if filters.MinPrice != nil {
			params.Set("price_min", strconv.Itoa(int(*filters.MinPrice)))
		}
		if filters.MaxPrice != nil {
			params.Set("price_max", strconv.Itoa(int(*filters.MaxPrice)))
		}
		var ids []string
		for _, c := range filters.Conditions {
			if id, ok := mercariConditionIDs[c]; ok {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			params.Set("item_condition_id", strings.Join(ids, ","))
		}
	}
	return strings.TrimRight(a.config.APIHost, "/") + "/search?" + params.Encode()
}

// Search loads the search page and extracts the listed items. Mercari has
// no barcode index, JAN codes are searched as keywords.
func (a *MercariAdapter) Search(ctx context.Context, query string, kind types.SearchKind, filters *types.Filters, limit int) (*types.RawSearchResponse, error) {
	if query == "" {
		return nil, a.fail(types.CodeInvalidInput, "empty query", types.ErrEmptyQuery)
	}

	browser, err := a.ensureBrowser()
	if err != nil {
		return nil, a.fail(types.CodeInternal, "browser unavailable", err)
	}

	page, err := stealth.Page(browser)
	if err != nil {
		a.resetBrowser()
		return nil, a.fail(types.CodeNetwork, "create page", err)
	}
	defer func() { _ = page.Close() }()

	if err := (proto.NetworkSetBlockedURLs{Urls: mercariBlockedURLs}).Call(page); err != nil {
		a.logger.Debug("set blocked urls failed", zap.Error(err))
	}

	p := page.Context(ctx)
	target := a.SearchURL(query, filters)
	a.logger.WithContext(ctx).Debug("loading page", zap.String("url", target))

	if err := p.Navigate(target); err != nil {
		return nil, a.pageError(ctx, "navigate", err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, a.pageError(ctx, "wait load", err)
	}

	// the page is a SPA, wait for the first rendered cell, the empty state
	// or a bot challenge, whichever comes first
	_, err = p.Race().
		Element(`[data-testid="item-cell"] a`).Handle(func(e *rod.Element) error {
		return nil
	}).
		Element(mercariEmptyState).Handle(func(e *rod.Element) error {
		return errMercariNoItems
	}).
		Element(mercariChallenge).Handle(func(e *rod.Element) error {
		return errMercariBlocked
	}).
		Do()
	switch {
	case errors.Is(err, errMercariNoItems):
		return &types.RawSearchResponse{Items: []types.RawItem{}, Metadata: map[string]any{"url": target}}, nil
	case errors.Is(err, errMercariBlocked):
		return nil, a.fail(types.CodeRateLimit, "blocked by anti-bot challenge", err)
	case err != nil:
		return nil, a.pageError(ctx, "wait for items", err)
	}

	cells, err := p.Elements(mercariItemCell)
	if err != nil {
		return nil, a.pageError(ctx, "list items", err)
	}

	out := &types.RawSearchResponse{
		Items:    make([]types.RawItem, 0, len(cells)),
		Metadata: map[string]any{"url": target},
	}
	skipped := 0
	for _, cell := range cells {
		if limit > 0 && len(out.Items) >= limit {
			break
		}
		item, err := extractMercariItem(cell)
		if err != nil {
			skipped++
			continue
		}
		out.Items = append(out.Items, *item)
	}
	if skipped > 0 {
		a.logger.WithContext(ctx).Debug("skipped unparsable cells", zap.Int("count", skipped))
	}
	if len(out.Items) == 0 && len(cells) > 0 {
		return nil, a.fail(types.CodeParse, "no item cell could be parsed", nil)
	}
	return out, nil
}

func (a *MercariAdapter) pageError(ctx context.Context, phase string, err error) *types.PlatformError {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return a.fail(types.CodeTimeout, phase+" timed out", err)
	}
	return a.fail(types.CodeNetwork, phase+" failed", err)
}

// HealthCheck opens a blank page in the shared browser. A browser that has
// not been launched yet is reported healthy, it starts on first search.
func (a *MercariAdapter) HealthCheck(ctx context.Context) types.HealthStatus {
	status := types.HealthStatus{Platform: a.info.Code, CheckedAt: time.Now()}

	a.mu.Lock()
	browser := a.browser
	a.mu.Unlock()

	if browser == nil {
		status.Healthy = true
		status.Message = "browser not started"
		return status
	}

	start := time.Now()
	hctx, cancel := context.WithTimeout(ctx, mercariHealthProbe)
	defer cancel()

	page, err := browser.Context(hctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		status.Message = err.Error()
		return status
	}
	defer func() { _ = page.Close() }()

	if _, err := page.Eval("() => document.title"); err != nil {
		status.Message = err.Error()
		return status
	}
	status.Latency = time.Since(start)
	status.Healthy = true
	status.Message = "ok"
	return status
}

// Close shuts the browser down.
func (a *MercariAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	if a.browser != nil {
		err = a.browser.Close()
		a.browser = nil
	}
	if a.launcher != nil {
		a.launcher.Kill()
		a.launcher = nil
	}
	return err
}

// extractMercariItem reads one search result cell. It does not rely on
// <img> being present since images are blocked.
func extractMercariItem(el *rod.Element) (*types.RawItem, error) {
	link, err := el.Element("a")
	if err != nil {
		return nil, fmt.Errorf("link: %w", err)
	}
	href := ""
	if h, _ := link.Attribute("href"); h != nil {
		href = *h
	}
	id := mercariItemID(href)
	if id == "" {
		return nil, fmt.Errorf("no item id in %q", href)
	}

	title := ""
	if titleEl, err := el.Element(mercariItemTitle); err == nil {
		title, _ = titleEl.Text()
	} else if img, err := el.Element("img"); err == nil {
		if alt, _ := img.Attribute("alt"); alt != nil {
			title = strings.TrimSuffix(*alt, "のサムネイル")
		}
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("no title for %s", id)
	}

	price, err := extractMercariPrice(el)
	if err != nil {
		return nil, err
	}

	item := &types.RawItem{
		ID:       id,
		Title:    title,
		URL:      normalizeMercariURL(href),
		Price:    float64(price),
		Currency: "JPY",
		// search listings show the price including shipping
		ShippingKnown: true,
		FreeShipping:  true,
	}
	if strings.HasPrefix(id, "m") {
		item.ImageURLs = []string{fmt.Sprintf(mercariImageURL, id)}
	}
	return item, nil
}

func extractMercariPrice(el *rod.Element) (int64, error) {
	for _, sel := range []string{".merPrice", "span[class^='merPrice']", "[data-testid='price']"} {
		container, err := el.Element(sel)
		if err != nil {
			continue
		}
		if numEl, err := container.Element("span[class^='number']"); err == nil {
			if txt, err := numEl.Text(); err == nil && txt != "" {
				if price, err := parsePrice(txt); err == nil {
					return price, nil
				}
			}
		}
		if txt, err := container.Text(); err == nil && txt != "" {
			if price, err := parsePrice(txt); err == nil {
				return price, nil
			}
		}
	}
	return 0, errors.New("price element not found")
}

// mercariItemID extracts the listing id from /item/m123 or
// /shops/product/abc links.
func mercariItemID(href string) string {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	parts := strings.Split(strings.TrimRight(href, "/"), "/")
	last := parts[len(parts)-1]
	switch {
	case strings.Contains(href, "/item/") && strings.HasPrefix(last, "m"):
		return last
	case strings.Contains(href, "/shops/product/") && last != "":
		return "shops_" + last
	}
	return ""
}

// parsePrice turns "¥ 1,200" or "1,999" into 1200 and 1999.
func parsePrice(txt string) (int64, error) {
	if m := priceWithCurrencyRe.FindStringSubmatch(txt); len(m) > 1 {
		if v, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64); err == nil {
			return v, nil
		}
	}

	cleaned := strings.NewReplacer("¥", "", "￥", "", ",", "").Replace(txt)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, errors.New("empty price")
	}

	// the longest digit run is the price, shorter ones are badges like "2"
	var best int64
	bestLen := 0
	for _, m := range priceDigitsRe.FindAllString(cleaned, -1) {
		v, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		if len(m) > bestLen || (len(m) == bestLen && v > best) {
			best, bestLen = v, len(m)
		}
	}
	if bestLen == 0 {
		return 0, errors.New("no digits")
	}
	return best, nil
}

func normalizeMercariURL(u string) string {
	switch {
	case u == "":
		return u
	case strings.HasPrefix(u, "http://"), strings.HasPrefix(u, "https://"):
		return u
	case strings.HasPrefix(u, "//"):
		return "https:" + u
	case strings.HasPrefix(u, "/"):
		return mercariBaseURL + u
	}
	return mercariBaseURL + "/" + u
}
