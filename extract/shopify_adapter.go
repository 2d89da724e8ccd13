package extract

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"pricewatch/models"
	"pricewatch/parser"
)

// ShopifyAdapter probes a product's .js then .json Shopify storefront
// endpoint (spec.md §4.4). Grounded on the teacher's
// scraper/docker_ocr_extractor.go HTTP-JSON-service call shape (marshal or
// build URL, client.Get/Post, unmarshal, map fields) generalized from a
// single OCR endpoint to a two-probe cascade.
type ShopifyAdapter struct {
	client      *http.Client
	priceParser *parser.PriceParser
}

func NewShopifyAdapter() *ShopifyAdapter {
	return &ShopifyAdapter{client: &http.Client{CheckRedirect: noFollowRedirect}, priceParser: parser.NewPriceParser()}
}

var shopifyProductPathRe = regexp.MustCompile(`/products/([a-zA-Z0-9-]+)`)

// Matches reports whether pageURL looks like a Shopify product page.
func (a *ShopifyAdapter) Matches(pageURL string) (handle string, ok bool) {
	m := shopifyProductPathRe.FindStringSubmatch(pageURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

type shopifyProduct struct {
	Title    string           `json:"title"`
	Variants []shopifyVariant `json:"variants"`
}

type shopifyVariant struct {
	Price     interface{} `json:"price"`
	Title     string      `json:"title"`
	Available bool        `json:"available"`
}

type shopifyJSONEnvelope struct {
	Product shopifyProduct `json:"product"`
}

// Fetch probes <base>/products/<handle>.js then .json, returning the better
// scoring parse, or ok=false if neither responds with 2xx JSON.
func (a *ShopifyAdapter) Fetch(pageURL string, totalTimeoutMS int) (*models.ExtractResult, bool) {
	handle, ok := a.Matches(pageURL)
	if !ok {
		return nil, false
	}
	base := baseOrigin(pageURL)
	if base == "" {
		return nil, false
	}

	perRequest := time.Duration(totalTimeoutMS/2) * time.Millisecond
	if perRequest < 2500*time.Millisecond {
		perRequest = 2500 * time.Millisecond
	}
	a.client.Timeout = perRequest

	var candidates []*models.ExtractResult

	if result, ok := a.probe(base+"/products/"+handle+".js", true); ok {
		candidates = append(candidates, result)
	}
	if result, ok := a.probe(base+"/products/"+handle+".json", false); ok {
		candidates = append(candidates, result)
	}

	if len(candidates) == 0 {
		return nil, false
	}

	best := candidates[0]
	bestScore := shopifyAdapterScore(best)
	for _, c := range candidates[1:] {
		if score := shopifyAdapterScore(c); score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, true
}

func (a *ShopifyAdapter) probe(endpoint string, pricesAreCents bool) (*models.ExtractResult, bool) {
	resp, err := a.client.Get(endpoint)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()

	// Redirects are treated as "no result" (spec.md §4.4): the client does
	// not follow them, so a 3xx arrives here like any other non-2xx status,
	// which is not an error either.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false
	}

	var envelope shopifyJSONEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, false
	}
	if envelope.Product.Title == "" && len(envelope.Product.Variants) == 0 {
		return nil, false
	}

	var priceCents *int64
	var fallbackCents *int64
	var variants []models.VariantStock
	knownIn, knownOut := false, false

	for _, v := range envelope.Product.Variants {
		label := sanitizeVariantLabel(v.Title)
		state := models.StockOutOfStock
		if v.Available {
			state = models.StockInStock
			knownIn = true
		} else {
			knownOut = true
		}
		if label != "" && len(variants) < 8 {
			variants = append(variants, models.VariantStock{Label: label, State: state})
		}
		if cents, ok := a.shopifyVariantCents(v.Price, pricesAreCents); ok {
			if fallbackCents == nil {
				fallbackCents = &cents
			}
			// Prefer the price of an available variant — an unavailable
			// variant's price is not what a buyer would actually pay.
			if v.Available && priceCents == nil {
				priceCents = &cents
			}
		}
	}
	if priceCents == nil {
		priceCents = fallbackCents
	}

	stockState := models.StockUnknown
	switch {
	case knownIn && knownOut:
		stockState = models.StockPartial
	case knownIn:
		stockState = models.StockInStock
	case knownOut:
		stockState = models.StockOutOfStock
	}

	confidence := 0.84
	if priceCents != nil {
		confidence += 0.06
	}
	if stockState != models.StockUnknown {
		confidence += 0.07
	}
	if len(variants) > 0 {
		confidence += 0.03
	}
	if confidence > 0.99 {
		confidence = 0.99
	}

	return &models.ExtractResult{
		ProductName:  NormalizeProductName(envelope.Product.Title),
		PriceCents:   priceCents,
		InStock:      models.InStockFromState(stockState),
		StockState:   stockState,
		VariantStock: variants,
		Confidence:   confidence,
		Method:       models.MethodShopifyJSON,
		Evidence:     fmt.Sprintf("shopify:%s", endpoint),
	}, true
}

// shopifyVariantCents interprets a raw variant price per spec.md §4.4: the
// .js endpoint reports integer cents, the .json endpoint reports whole
// currency units.
func (a *ShopifyAdapter) shopifyVariantCents(price interface{}, pricesAreCents bool) (int64, bool) {
	switch v := price.(type) {
	case float64:
		if pricesAreCents {
			return int64(v), true
		}
		return int64(v * 100), true
	case string:
		if pricesAreCents {
			var cents int64
			if _, err := fmt.Sscanf(v, "%d", &cents); err == nil {
				return cents, true
			}
			return 0, false
		}
		p, ok := a.priceParser.Parse(v)
		if !ok {
			return 0, false
		}
		return p.PriceCents, true
	}
	return 0, false
}

// shopifyAdapterScore implements spec.md §4.4's multi-probe ranking:
// 2*hasPrice + stockScore + 0.25*min(knownVariants,8) + confidence.
func shopifyAdapterScore(r *models.ExtractResult) float64 {
	score := 0.0
	if r.PriceCents != nil {
		score += 2
	}
	switch r.StockState {
	case models.StockPartial:
		score += 3
	case models.StockInStock, models.StockOutOfStock:
		score += 2.4
	}
	score += 0.25 * float64(min(len(r.VariantStock), 8))
	score += r.Confidence
	return score
}

func baseOrigin(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
