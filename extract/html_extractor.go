package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pricewatch/models"
	"pricewatch/parser"
)

// HtmlExtractor turns a static HTML document into an ExtractResult by
// voting across independent candidate sources (spec.md §4.3). Grounded
// stylistically on the teacher's scraper/bot_detector.go weighted-regexp
// scoring shape, generalized from a single bot/no-bot score into the
// spec's multi-source candidate pool and stock-signal counters.
type HtmlExtractor struct {
	priceParser *parser.PriceParser
}

func NewHtmlExtractor() *HtmlExtractor {
	return &HtmlExtractor{priceParser: parser.NewPriceParser()}
}

var (
	jsonLDProductRe   = regexp.MustCompile(`(?i)"@type"\s*:\s*"Product"`)
	skuPriceRe        = regexp.MustCompile(`(?i)productSku[^{}]*?"price"\s*:\s*"?([0-9.,]+)"?`)
	skuSoldOutRe      = regexp.MustCompile(`(?i)"isSoldOut"\s*:\s*(true|false)`)
	defaultPriceRe    = regexp.MustCompile(`(?i)"defaultPrice"\s*:\s*"?([0-9.,]+)"?`)
	productContextRe  = regexp.MustCompile(`(?i)product|sku`)
	currencyTextRe    = regexp.MustCompile(`(?:US\$|C\$|CAD\$|\$|€|£)\s?[0-9][0-9.,\s]*`)

	outPatterns = []weightedPattern{
		{regexp.MustCompile(`(?i)out of stock|sold out`), 2.0},
		{regexp.MustCompile(`(?i)currently unavailable`), 1.4},
		{regexp.MustCompile(`(?i)temporarily out of stock`), 1.6},
		{regexp.MustCompile(`(?i)back[- ]?ordered`), 1.2},
		{regexp.MustCompile(`(?i)pre[- ]?order`), 0.8},
		{regexp.MustCompile(`(?i)unavailable`), 0.5},
	}
	inPatterns = []weightedPattern{
		{regexp.MustCompile(`(?i)in stock`), 1.5},
		{regexp.MustCompile(`(?i)add to cart|buy now`), 2.1},
		{regexp.MustCompile(`(?i)available now|ready to ship|ships today`), 1.1},
	}

	ctaSelector    = "button, input[type=submit], a[role=button]"
	ctaTextRe      = regexp.MustCompile(`(?i)add to cart|buy now|add to bag`)
	variantSelector = "select option, [data-size], [data-model], [data-variant], [data-option], [class*=variant], [class*=swatch], [class*=size], [class*=model]"
)

type weightedPattern struct {
	re     *regexp.Regexp
	weight float64
}

// Extract implements spec.md §4.3.
func (h *HtmlExtractor) Extract(html, sourceURL string) (*models.ExtractResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %v", err)
	}

	candidates := h.collectCandidates(doc, html)
	best, evidence := pickBestCandidate(candidates)

	stockState, inStock, variantStock, stockEvidence := h.detectStock(doc, html)

	confidence := 0.0
	if best != nil {
		confidence = best.score
	}
	if inStock != nil {
		floor := 0.75
		if stockState == models.StockPartial {
			floor = 0.80
		}
		if confidence < floor {
			confidence = floor
		}
	}

	name := ""
	var priceCents *int64
	if best != nil {
		name = best.name
		priceCents = best.priceCents
	}

	sum := sha256.Sum256([]byte(html))

	result := &models.ExtractResult{
		ProductName:  name,
		PriceCents:   priceCents,
		InStock:      inStock,
		StockState:   stockState,
		VariantStock: variantStock,
		Confidence:   confidence,
		Method:       models.MethodStatic,
		Evidence:     evidence + "; " + stockEvidence,
		ContentHash:  hex.EncodeToString(sum[:]),
	}
	return result, nil
}

func (h *HtmlExtractor) collectCandidates(doc *goquery.Document, html string) []candidate {
	var out []candidate

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		text := s.Text()
		if !jsonLDProductRe.MatchString(text) {
			return
		}
		name, cents, hasPrice := parseJSONLDProduct(text, h.priceParser)
		score := 0.88
		if hasPrice {
			score = 0.95
		}
		out = append(out, candidate{source: "jsonld", name: name, priceCents: cents, score: score, evidence: "jsonld-product"}.withBonuses())
	})

	if m := skuPriceRe.FindStringSubmatch(html); m != nil {
		if p, ok := h.priceParser.Parse(m[1]); ok {
			soldOut := skuSoldOutRe.FindStringSubmatch(html)
			ev := "productSku.price"
			if soldOut != nil {
				ev += "+isSoldOut=" + soldOut[1]
			}
			out = append(out, candidate{source: "productSku", priceCents: ptr(p.PriceCents), score: 0.92, evidence: ev}.withBonuses())
		}
	}

	for _, m := range defaultPriceRe.FindAllStringSubmatchIndex(html, -1) {
		start := max0(m[0] - 240)
		end := min(len(html), m[1]+240)
		ctx := html[start:end]
		if !productContextRe.MatchString(ctx) {
			continue
		}
		raw := html[m[2]:m[3]]
		if p, ok := h.priceParser.Parse(raw); ok {
			out = append(out, candidate{source: "defaultPrice", priceCents: ptr(p.PriceCents), score: 0.86, evidence: "defaultPrice"}.withBonuses())
		}
	}

	metaSelectors := []string{
		`meta[property="og:price:amount"]`,
		`meta[property="product:price:amount"]`,
		`[itemprop="price"]`,
	}
	for _, sel := range metaSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			val, exists := s.Attr("content")
			if !exists {
				val = s.AttrOr("value", s.Text())
			}
			if p, ok := h.priceParser.Parse(val); ok {
				out = append(out, candidate{source: "meta", priceCents: ptr(p.PriceCents), score: 0.82, evidence: "meta:" + sel}.withBonuses())
			}
		})
	}

	domSelectors := []string{
		`[class*=price]`, `[id*=price]`, `[data-price]`, `[itemprop=price]`, `.product-price`, `.price`,
	}
	for _, sel := range domSelectors {
		doc.Find(sel).EachWithBreak(func(i int, s *goquery.Selection) bool {
			if i > 10 {
				return false
			}
			text := s.Text()
			if v, exists := s.Attr("data-price"); exists {
				text = v + " " + text
			}
			if p, ok := h.priceParser.Parse(text); ok {
				out = append(out, candidate{source: "dom", priceCents: ptr(p.PriceCents), score: 0.72, evidence: "dom:" + sel}.withBonuses())
			}
			return true
		})
	}

	bodyText := doc.Find("body").Text()
	if m := currencyTextRe.FindString(bodyText); m != "" {
		if p, ok := h.priceParser.Parse(m); ok {
			out = append(out, candidate{source: "body-text", priceCents: ptr(p.PriceCents), score: 0.60, evidence: "body-text-scan"}.withBonuses())
		}
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title != "" {
		out = append(out, candidate{source: "title", name: NormalizeProductName(title), score: 0.0, evidence: "title"})
	}

	return out
}

// pickBestCandidate sorts descending by score and applies the ambiguity
// penalty (spec.md §4.3): if the runner-up disagrees on price and trails by
// less than 0.05, the top candidate is penalized by 0.10 (floor 0.50).
func pickBestCandidate(candidates []candidate) (*candidate, string) {
	priced := make([]candidate, 0, len(candidates))
	var nameOnly *candidate
	for i := range candidates {
		c := candidates[i]
		if c.priceCents != nil {
			priced = append(priced, c)
		} else if c.name != "" && nameOnly == nil {
			nameOnly = &c
		}
	}
	if len(priced) == 0 {
		if nameOnly != nil {
			return nameOnly, "name-only:" + nameOnly.evidence
		}
		return nil, "no-candidates"
	}

	sortCandidatesDesc(priced)
	top := priced[0]
	if top.name == "" {
		for _, c := range priced {
			if c.name != "" {
				top.name = c.name
				break
			}
		}
		if top.name == "" && nameOnly != nil {
			top.name = nameOnly.name
		}
	}

	if len(priced) > 1 {
		second := priced[1]
		if second.priceCents != nil && top.priceCents != nil && *second.priceCents != *top.priceCents {
			if top.score-second.score < 0.05 {
				top.score -= 0.10
				if top.score < 0.50 {
					top.score = 0.50
				}
			}
		}
	}

	return &top, top.source + ":" + top.evidence
}

func sortCandidatesDesc(c []candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].score > c[j-1].score; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

// detectStock implements the stock-signal scoring and precedence rules of
// spec.md §4.3.
func (h *HtmlExtractor) detectStock(doc *goquery.Document, html string) (models.StockState, *bool, []models.VariantStock, string) {
	bodyText := doc.Find("body").Text()
	scopedText := doc.Find(`[class*=stock], [id*=stock], [class*=availability], [id*=availability]`).Text()

	inScore, outScore := 0.0, 0.0
	for _, wp := range outPatterns {
		outScore += scorePattern(wp, bodyText) + scorePattern(wp, scopedText)
	}
	for _, wp := range inPatterns {
		inScore += scorePattern(wp, bodyText) + scorePattern(wp, scopedText)
	}

	explicitIn, explicitOut := false, false
	doc.Find(`meta[itemprop=availability], link[itemprop=availability], [itemprop=availability]`).Each(func(_ int, s *goquery.Selection) {
		val := s.AttrOr("content", s.AttrOr("href", s.Text()))
		lower := strings.ToLower(val)
		if strings.Contains(lower, "instock") {
			inScore += 3
			explicitIn = true
		} else if strings.Contains(lower, "outofstock") || strings.Contains(lower, "soldout") {
			outScore += 3
			explicitOut = true
		}
	})

	enabledCTA, disabledCTA := 0, 0
	doc.Find(ctaSelector).Each(func(_ int, s *goquery.Selection) {
		if insideChrome(s) {
			return
		}
		if !ctaTextRe.MatchString(s.Text()) && !ctaTextRe.MatchString(s.AttrOr("value", "")) {
			return
		}
		_, disabledAttr := s.Attr("disabled")
		ariaDisabled := strings.EqualFold(s.AttrOr("aria-disabled", ""), "true")
		if disabledAttr || ariaDisabled {
			disabledCTA++
		} else {
			enabledCTA++
		}
	})
	if enabledCTA > 0 {
		inScore += float64(3 + min(enabledCTA, 2))
	}
	if disabledCTA > 0 {
		outScore += float64(1 + min(disabledCTA, 2))
	}

	embeddedOutCount := strings.Count(html, `"isSoldOut":true`) + countMatches(`(?i)"availability"\s*:\s*"[^"]*OutOfStock"`, html) + countMatches(`(?i)"outOfStockMsg"\s*:\s*"[^"]+"`, html)
	embeddedInCount := strings.Count(html, `"isSoldOut":false`) + countMatches(`(?i)"availability"\s*:\s*"[^"]*InStock"`, html)
	if embeddedOutCount > 0 {
		outScore += float64(min(embeddedOutCount, 8)) * 1.6
	}
	if embeddedInCount > 0 {
		inScore += float64(min(embeddedInCount, 8)) * 1.2
	}

	var state models.StockState
	switch {
	case explicitIn && !explicitOut:
		state = models.StockInStock
	case explicitOut && !explicitIn && enabledCTA == 0:
		state = models.StockOutOfStock
	case embeddedOutCount > 0 && embeddedInCount == 0 && enabledCTA == 0:
		state = models.StockOutOfStock
	case enabledCTA > 0 && inScore >= outScore-2:
		state = models.StockInStock
	case outScore >= inScore+3 && outScore >= 3:
		state = models.StockOutOfStock
	case inScore >= outScore+2 && inScore >= 2:
		state = models.StockInStock
	default:
		state = models.StockUnknown
	}

	variants := h.extractVariants(doc)
	state = mergeVariantState(state, variants)

	inStock := models.InStockFromState(state)
	evidence := fmt.Sprintf(
		"inScore=%.1f outScore=%.1f cta=%d/%d variants=%d embeddedOut=%d embeddedIn=%d",
		inScore, outScore, enabledCTA, disabledCTA, len(variants), embeddedOutCount, embeddedInCount,
	)
	return state, inStock, variants, evidence
}

func mergeVariantState(pageState models.StockState, variants []models.VariantStock) models.StockState {
	if len(variants) == 0 {
		return pageState
	}
	hasIn, hasOut := false, false
	for _, v := range variants {
		switch v.State {
		case models.StockInStock:
			hasIn = true
		case models.StockOutOfStock:
			hasOut = true
		}
	}
	var variantState models.StockState
	switch {
	case hasIn && hasOut:
		return models.StockPartial
	case hasIn:
		variantState = models.StockInStock
	case hasOut:
		variantState = models.StockOutOfStock
	default:
		variantState = models.StockUnknown
	}
	if pageState == models.StockUnknown {
		return variantState
	}
	return pageState
}

var (
	selectGenericRe  = regexp.MustCompile(`(?i)^(select|size|default title)$`)
	availabilityWordRe = regexp.MustCompile(`(?i)\b(in stock|out of stock|sold out|available|unavailable)\b`)
	alnumRe          = regexp.MustCompile(`[A-Za-z0-9]`)
)

// extractVariants implements spec.md §4.3's "collect per-variant
// availability from JSON-LD offers and from DOM elements": JSON-LD offers
// are checked first since they are the more structured source, then DOM
// variant controls fill in anything JSON-LD didn't cover, deduped by
// label+state and capped at 8.
func (h *HtmlExtractor) extractVariants(doc *goquery.Document) []models.VariantStock {
	type keyed struct {
		key string
		v   models.VariantStock
	}
	seen := map[string]bool{}
	var out []keyed

	addCandidate := func(label string, state models.StockState) bool {
		if len(out) >= 8 {
			return false
		}
		key := strings.ToLower(label) + "|" + string(state)
		if seen[key] {
			return true
		}
		seen[key] = true
		out = append(out, keyed{key: key, v: models.VariantStock{Label: label, State: state}})
		return true
	}

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, v := range jsonLDOfferVariants(s.Text()) {
			if !addCandidate(v.Label, v.State) {
				return false
			}
		}
		return true
	})

	doc.Find(variantSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label := sanitizeVariantLabel(s.Text())
		if label == "" {
			return true
		}
		_, disabledAttr := s.Attr("disabled")
		ariaDisabled := strings.EqualFold(s.AttrOr("aria-disabled", ""), "true")
		var state models.StockState
		switch {
		case disabledAttr || ariaDisabled:
			state = models.StockOutOfStock
		default:
			state = classifyAvailabilityText(s.Text())
		}
		return addCandidate(label, state)
	})

	result := make([]models.VariantStock, 0, len(out))
	for _, k := range out {
		result = append(result, k.v)
	}
	return result
}

// jsonLDOfferVariants pulls per-offer availability out of a Product
// JSON-LD block's "offers" array. A single offer describes the page as a
// whole, not a variant, so only arrays of 2+ offers contribute here.
func jsonLDOfferVariants(text string) []models.VariantStock {
	if !jsonLDProductRe.MatchString(text) {
		return nil
	}
	var generic map[string]interface{}
	if err := json.Unmarshal([]byte(text), &generic); err != nil {
		return nil
	}
	list, ok := generic["offers"].([]interface{})
	if !ok || len(list) < 2 {
		return nil
	}

	var out []models.VariantStock
	for _, item := range list {
		offer, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		label := offerVariantLabel(offer)
		if label == "" {
			continue
		}
		out = append(out, models.VariantStock{Label: label, State: classifyOfferAvailability(offer)})
	}
	return out
}

func offerVariantLabel(offer map[string]interface{}) string {
	for _, key := range []string{"name", "sku", "@id"} {
		if v, ok := offer[key].(string); ok {
			if label := sanitizeVariantLabel(v); label != "" {
				return label
			}
		}
	}
	return ""
}

func classifyOfferAvailability(offer map[string]interface{}) models.StockState {
	v, ok := offer["availability"].(string)
	if !ok {
		return models.StockUnknown
	}
	lower := strings.ToLower(v)
	switch {
	case strings.Contains(lower, "instock"):
		return models.StockInStock
	case strings.Contains(lower, "outofstock"), strings.Contains(lower, "soldout"), strings.Contains(lower, "backorder"), strings.Contains(lower, "discontinued"):
		return models.StockOutOfStock
	}
	return models.StockUnknown
}

func sanitizeVariantLabel(raw string) string {
	label := strings.TrimSpace(raw)
	label = availabilityWordRe.ReplaceAllString(label, "")
	label = strings.TrimSpace(label)
	if selectGenericRe.MatchString(label) {
		return ""
	}
	if len(label) < 1 || len(label) > 64 {
		return ""
	}
	if !alnumRe.MatchString(label) {
		return ""
	}
	return label
}

func classifyAvailabilityText(text string) models.StockState {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "out of stock") || strings.Contains(lower, "sold out") || strings.Contains(lower, "unavailable") {
		return models.StockOutOfStock
	}
	if strings.Contains(lower, "in stock") || strings.Contains(lower, "available") {
		return models.StockInStock
	}
	return models.StockUnknown
}

func insideChrome(s *goquery.Selection) bool {
	return s.ParentsFiltered("header, nav, footer").Length() > 0
}

func scorePattern(wp weightedPattern, text string) float64 {
	matches := wp.re.FindAllStringIndex(text, -1)
	return float64(min(len(matches), 3)) * wp.weight
}

func countMatches(pattern, text string) int {
	re := regexp.MustCompile(pattern)
	return len(re.FindAllStringIndex(text, -1))
}

func parseJSONLDProduct(text string, pp *parser.PriceParser) (name string, priceCents *int64, hasPrice bool) {
	var generic map[string]interface{}
	if err := json.Unmarshal([]byte(text), &generic); err != nil {
		return "", nil, false
	}
	if n, ok := generic["name"].(string); ok {
		name = NormalizeProductName(n)
	}
	offers, ok := generic["offers"]
	if !ok {
		return name, nil, false
	}
	price := findOfferPrice(offers)
	if price == "" {
		return name, nil, false
	}
	if p, ok := pp.Parse(price); ok {
		return name, ptr(p.PriceCents), true
	}
	return name, nil, false
}

func findOfferPrice(offers interface{}) string {
	switch v := offers.(type) {
	case map[string]interface{}:
		if p, ok := v["price"]; ok {
			return fmt.Sprintf("%v", p)
		}
		if p, ok := v["lowPrice"]; ok {
			return fmt.Sprintf("%v", p)
		}
	case []interface{}:
		for _, item := range v {
			if price := findOfferPrice(item); price != "" {
				return price
			}
		}
	}
	return ""
}

func ptr(v int64) *int64 { return &v }

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
