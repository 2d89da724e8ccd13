package extract

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"pricewatch/models"
)

// BestBuyAdapter queries Best Buy Canada's public product API directly by
// SKU (spec.md §4.4), bypassing HTML entirely the way the Shopify adapter
// bypasses it via the storefront JSON endpoints.
type BestBuyAdapter struct {
	client  *http.Client
	baseURL string
}

func NewBestBuyAdapter() *BestBuyAdapter {
	return &BestBuyAdapter{client: &http.Client{}, baseURL: "https://www.bestbuy.ca/api/v2/json/product"}
}

// NewBestBuyAdapterWithBaseURL overrides the product-API base URL, used by
// tests to point the adapter at a fake server.
func NewBestBuyAdapterWithBaseURL(baseURL string) *BestBuyAdapter {
	return &BestBuyAdapter{client: &http.Client{}, baseURL: baseURL}
}

var (
	skuSegmentRe = regexp.MustCompile(`\b([0-9]{6,})\b`)
)

// Matches reports whether pageURL is a bestbuy.ca product URL and extracts
// its SKU from a path segment or a sku/id query parameter.
func (a *BestBuyAdapter) Matches(pageURL string) (sku string, ok bool) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}
	if !strings.Contains(strings.ToLower(u.Hostname()), "bestbuy.ca") {
		return "", false
	}

	for _, key := range []string{"sku", "id"} {
		if v := u.Query().Get(key); skuSegmentRe.MatchString(v) {
			return skuSegmentRe.FindString(v), true
		}
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if skuSegmentRe.MatchString(seg) {
			return skuSegmentRe.FindString(seg), true
		}
	}
	return "", false
}

type bestBuyProduct struct {
	Name         string  `json:"name"`
	SalePrice    float64 `json:"salePrice"`
	Availability struct {
		OnlineAvailability  string `json:"onlineAvailability"`
		IsAvailableOnline   bool   `json:"isAvailableOnline"`
		InStoreAvailability bool   `json:"inStoreAvailability"`
	} `json:"availability"`
}

// Fetch calls the Best Buy product API for sku extracted from pageURL.
func (a *BestBuyAdapter) Fetch(pageURL string) (*models.ExtractResult, bool) {
	sku, ok := a.Matches(pageURL)
	if !ok {
		return nil, false
	}

	endpoint := fmt.Sprintf("%s/%s", a.baseURL, sku)
	resp, err := a.client.Get(endpoint)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false
	}

	var product bestBuyProduct
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return nil, false
	}
	if product.Name == "" {
		return nil, false
	}

	stockState := classifyBestBuyAvailability(product)
	priceCents := int64(product.SalePrice*100 + 0.5)

	return &models.ExtractResult{
		ProductName: NormalizeProductName(product.Name),
		PriceCents:  &priceCents,
		InStock:     models.InStockFromState(stockState),
		StockState:  stockState,
		Confidence:  0.96,
		Method:      models.MethodStatic,
		Evidence:    fmt.Sprintf("bestbuy-api:%s", endpoint),
	}, true
}

func classifyBestBuyAvailability(product bestBuyProduct) models.StockState {
	online := strings.ToLower(product.Availability.OnlineAvailability)
	switch {
	case strings.Contains(online, "instock"):
		return models.StockInStock
	case strings.Contains(online, "outofstock"), strings.Contains(online, "soldout"), strings.Contains(online, "backorder"):
		return models.StockOutOfStock
	}
	if product.Availability.IsAvailableOnline || product.Availability.InStoreAvailability {
		return models.StockInStock
	}
	return models.StockOutOfStock
}
