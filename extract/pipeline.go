package extract

import (
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"pricewatch/models"
)

var regionalSubdomains = map[string]bool{
	"us": true, "ca": true, "uk": true, "eu": true, "au": true,
	"de": true, "fr": true, "it": true, "es": true, "jp": true,
	"sg": true, "hk": true,
}

// ExtractionPipeline orchestrates the layered cascade of spec.md §4.5:
// Best Buy adapter -> Shopify adapter -> static HTML -> rendered fetch ->
// AI fallback, with confidence gates between each step.
type ExtractionPipeline struct {
	html     *HtmlExtractor
	shopify  *ShopifyAdapter
	bestbuy  *BestBuyAdapter
	rendered RenderedFetcher
	ai       AiExtractor

	httpClient *http.Client

	aiConfidenceThreshold  float64
	outOfStockVerifyThresh float64
	aiEvidenceMaxChars     int
	aiMaxOutputTokens      int
	aiInputCostPer1M       float64
	aiOutputCostPer1M      float64
}

func NewExtractionPipeline(
	rendered RenderedFetcher,
	ai AiExtractor,
	aiConfidenceThreshold float64,
	outOfStockVerifyThresh float64,
	aiEvidenceMaxChars int,
	aiMaxOutputTokens int,
	aiInputCostPer1M float64,
	aiOutputCostPer1M float64,
) *ExtractionPipeline {
	return &ExtractionPipeline{
		html:                   NewHtmlExtractor(),
		shopify:                NewShopifyAdapter(),
		bestbuy:                NewBestBuyAdapter(),
		rendered:               rendered,
		ai:                     ai,
		httpClient:             &http.Client{CheckRedirect: noFollowRedirect},
		aiConfidenceThreshold:  aiConfidenceThreshold,
		outOfStockVerifyThresh: outOfStockVerifyThresh,
		aiEvidenceMaxChars:     aiEvidenceMaxChars,
		aiMaxOutputTokens:      aiMaxOutputTokens,
		aiInputCostPer1M:       aiInputCostPer1M,
		aiOutputCostPer1M:      aiOutputCostPer1M,
	}
}

func noFollowRedirect(_ *http.Request, _ []*http.Request) error {
	return http.ErrUseLastResponse
}

// Run implements the 8-step algorithm of spec.md §4.5.
func (p *ExtractionPipeline) Run(pageURL string, opts models.PipelineOptions) models.ExtractionAttempt {
	timeoutMS := opts.TimeoutMS
	if timeoutMS <= 0 {
		timeoutMS = 20000
	}

	// Step 1: Best Buy adapter.
	if result, ok := p.bestbuy.Fetch(pageURL); ok {
		return models.ExtractionAttempt{Status: models.ExtractionSuccess, Result: result}
	}

	// Step 2: Shopify adapter.
	if result, ok := p.shopify.Fetch(pageURL, timeoutMS); ok {
		return models.ExtractionAttempt{Status: models.ExtractionSuccess, Result: result}
	}

	// Step 3: static HTML, redirect: manual.
	html, finalURL, attempt, done := p.fetchStatic(pageURL, timeoutMS)
	if done {
		return attempt
	}

	// Step 4: regional-redirect mismatch.
	if isRegionalRedirectMismatch(pageURL, finalURL) {
		return models.ExtractionAttempt{Status: models.ExtractionNeedsReview, Reason: models.ErrRegionalRedirectMismatch}
	}

	// Step 5: static HtmlExtractor.
	result, err := p.html.Extract(html, finalURL)
	if err != nil {
		return models.ExtractionAttempt{Status: models.ExtractionNeedsReview, Reason: models.ErrUnknownExtraction}
	}

	usedPlaywright := false

	// Step 6: rendered fetch.
	needsRender := result.Confidence < p.aiConfidenceThreshold && opts.AllowPlaywright &&
		(boolOrTrue(result.InStock) || result.Confidence < p.outOfStockVerifyThresh)
	if needsRender && p.rendered != nil {
		if rHTML, rFinalURL, ok := p.rendered.Fetch(pageURL, timeoutMS); ok {
			if sameURLIgnoringFragment(rFinalURL, pageURL) {
				if rendResult, err := p.html.Extract(rHTML, rFinalURL); err == nil && rendResult.Confidence > result.Confidence {
					rendResult.Method = models.MethodPlaywright
					result = rendResult
					usedPlaywright = true
				}
			}
		}
	}

	usedAI := false
	var tokenInput, tokenOutput int
	var estimatedCost float64

	// Step 7: AI fallback.
	if result.Confidence < p.aiConfidenceThreshold {
		if aiFallbackGate(result, p.outOfStockVerifyThresh) {
			if !opts.AllowAI {
				return models.ExtractionAttempt{
					Status: models.ExtractionNeedsReview, Reason: models.ErrAIBudgetExceededOrOff,
					UsedPlaywright: usedPlaywright,
				}
			}
			if p.ai != nil {
				evidence := BuildEvidence(pageURL, result.ProductName, "", result.StockState, opts.AIHints, result.VariantStock, []string{result.Evidence}, p.aiEvidenceMaxChars)
				if aiResult, usage, err := p.ai.Extract(evidence, opts.Model, p.aiMaxOutputTokens); err == nil {
					result = aiResult
					usedAI = true
					tokenInput, tokenOutput = usage.InputTokens, usage.OutputTokens
					estimatedCost = EstimateCostUSD(opts.Model, tokenInput, tokenOutput, p.aiInputCostPer1M, p.aiOutputCostPer1M)
				}
			}
		}
	}

	// Step 8: final gate.
	if result.ProductName == "" || result.Confidence < 0.70 || (boolOrTrue(result.InStock) && result.PriceCents == nil) {
		return models.ExtractionAttempt{
			Status: models.ExtractionNeedsReview, Reason: models.ErrLowConfidenceExtraction,
			UsedPlaywright: usedPlaywright, UsedAI: usedAI,
			TokenInput: tokenInput, TokenOutput: tokenOutput, EstimatedCostUSD: estimatedCost,
		}
	}

	return models.ExtractionAttempt{
		Status: models.ExtractionSuccess, Result: result,
		UsedPlaywright: usedPlaywright, UsedAI: usedAI,
		TokenInput: tokenInput, TokenOutput: tokenOutput, EstimatedCostUSD: estimatedCost,
	}
}

func (p *ExtractionPipeline) fetchStatic(pageURL string, timeoutMS int) (html, finalURL string, attempt models.ExtractionAttempt, done bool) {
	client := &http.Client{
		Timeout:       time.Duration(timeoutMS) * time.Millisecond,
		CheckRedirect: noFollowRedirect,
	}

	resp, err := client.Get(pageURL)
	if err != nil {
		return "", "", models.ExtractionAttempt{Status: models.ExtractionNeedsReview, Reason: models.ErrUnknownExtraction}, true
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return "", "", models.ExtractionAttempt{Status: models.ExtractionNeedsReview, Reason: models.ErrURLRedirectBlocked}, true
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", models.ExtractionAttempt{Status: models.ExtractionNeedsReview, Reason: models.ErrUnknownExtraction}, true
	}

	bodyBytes := make([]byte, 0, 64*1024)
	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			bodyBytes = append(bodyBytes, buf[:n]...)
		}
		if rerr != nil {
			break
		}
	}

	finalURL = pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return string(bodyBytes), finalURL, models.ExtractionAttempt{}, false
}

// isRegionalRedirectMismatch implements spec.md §4.5 step 4: final host
// differs from requested host only by a regional-subdomain-prefix swap.
func isRegionalRedirectMismatch(requestedURL, finalURL string) bool {
	reqHost, err1 := hostOf(requestedURL)
	finalHost, err2 := hostOf(finalURL)
	if err1 != nil || err2 != nil || reqHost == finalHost {
		return false
	}

	reqPrefix, reqRoot := splitRegionalPrefix(reqHost)
	finalPrefix, finalRoot := splitRegionalPrefix(finalHost)
	if reqRoot == "" || finalRoot == "" || reqRoot != finalRoot {
		return false
	}
	return regionalSubdomains[reqPrefix] && regionalSubdomains[finalPrefix] && reqPrefix != finalPrefix
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return strings.ToLower(u.Hostname()), nil
}

var labelSplitRe = regexp.MustCompile(`\.`)

func splitRegionalPrefix(host string) (prefix, root string) {
	labels := labelSplitRe.Split(host, -1)
	if len(labels) < 3 {
		return "", ""
	}
	return labels[0], strings.Join(labels[len(labels)-2:], ".")
}

func sameURLIgnoringFragment(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	ua.Fragment, ub.Fragment = "", ""
	return ua.String() == ub.String()
}

var embeddedCountRe = regexp.MustCompile(`embedded(Out|In)=(\d+)`)

// aiFallbackGate implements spec.md §4.5's AI-fallback gate: prevents
// wasting tokens on already-confident out-of-stock results.
func aiFallbackGate(result *models.ExtractResult, outOfStockVerifyThresh float64) bool {
	if boolOrTrue(result.InStock) {
		return true
	}

	if result.StockState == models.StockOutOfStock {
		embeddedOut, embeddedIn := 0, 0
		for _, m := range embeddedCountRe.FindAllStringSubmatch(result.Evidence, -1) {
			n, _ := strconv.Atoi(m[2])
			if m[1] == "Out" {
				embeddedOut = n
			} else {
				embeddedIn = n
			}
		}
		if embeddedOut > 0 && embeddedIn == 0 {
			return false
		}
	}

	if result.StockState == models.StockPartial || len(result.VariantStock) > 0 {
		return true
	}
	return result.Confidence < outOfStockVerifyThresh
}

// boolOrTrue treats a nil or true *bool as "not known false" — the spec's
// recurring "inStock ≠ false" condition.
func boolOrTrue(b *bool) bool {
	return b == nil || *b
}
