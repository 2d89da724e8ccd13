package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pricewatch/models"
	"pricewatch/parser"
)

// modelPricing is the default per-1M-token USD rate table (spec.md §4.6),
// used when OPENAI_INPUT_COST_PER_1M / OPENAI_OUTPUT_COST_PER_1M overrides
// are not set.
var modelPricing = map[string][2]float64{
	"gpt-5-mini":   {0.25, 2.0},
	"gpt-5-nano":   {0.05, 0.4},
	"gpt-5":        {1.25, 10.0},
	"gpt-4.1-mini": {0.4, 1.6},
	"gpt-4.1-nano": {0.1, 0.4},
	"gpt-4o-mini":  {0.15, 0.6},
}

var defaultPricing = [2]float64{0.25, 2.0}

// EstimateCostUSD implements spec.md §4.6's cost formula, preferring env
// overrides over the per-model default table.
func EstimateCostUSD(model string, inputTokens, outputTokens int, overrideInputRate, overrideOutputRate float64) float64 {
	inputRate, outputRate := defaultPricing[0], defaultPricing[1]
	if rates, ok := modelPricing[model]; ok {
		inputRate, outputRate = rates[0], rates[1]
	}
	if overrideInputRate > 0 {
		inputRate = overrideInputRate
	}
	if overrideOutputRate > 0 {
		outputRate = overrideOutputRate
	}
	return (float64(inputTokens)/1e6)*inputRate + (float64(outputTokens)/1e6)*outputRate
}

// OpenAICompatibleExtractor implements AiExtractor against any OpenAI
// chat-completions-compatible endpoint, grounded on the teacher's
// scraper/docker_ocr_extractor.go HTTP-JSON-service call shape: marshal a
// payload, client.Post, unmarshal the response, map fields.
type OpenAICompatibleExtractor struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func NewOpenAICompatibleExtractor(baseURL, apiKey string) *OpenAICompatibleExtractor {
	return &OpenAICompatibleExtractor{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
	}
}

type chatCompletionRequest struct {
	Model          string                 `json:"model"`
	Temperature    float64                `json:"temperature"`
	MaxTokens      int                    `json:"max_tokens"`
	ResponseFormat map[string]string      `json:"response_format"`
	Messages       []chatCompletionMsg    `json:"messages"`
}

type chatCompletionMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMsg `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type aiExtractionJSON struct {
	ProductName  string  `json:"productName"`
	Price        *string `json:"price"`
	InStock      *bool   `json:"inStock"`
	StockState   string  `json:"stockState"`
	VariantStock []struct {
		Label string `json:"label"`
		State string `json:"state"`
	} `json:"variantStock"`
}

const systemPrompt = `You extract product data from evidence lines. Respond with strict JSON only: {"productName":string,"price":string|null,"inStock":boolean|null,"stockState":"IN_STOCK"|"OUT_OF_STOCK"|"PARTIAL"|"UNKNOWN","variantStock":[{"label":string,"state":string}]}. Never include commentary.`

// Extract posts a single JSON-mode chat completion (spec.md §4.6) and maps
// the response onto an ExtractResult.
func (e *OpenAICompatibleExtractor) Extract(evidence, model string, maxOutputTokens int) (*models.ExtractResult, tokenUsage, error) {
	reqBody := chatCompletionRequest{
		Model:          model,
		Temperature:    0,
		MaxTokens:      maxOutputTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
		Messages: []chatCompletionMsg{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: evidence},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, tokenUsage{}, fmt.Errorf("failed to marshal ai request: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, tokenUsage{}, fmt.Errorf("failed to build ai request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, tokenUsage{}, fmt.Errorf("ai request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, tokenUsage{}, fmt.Errorf("failed to read ai response: %v", err)
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, tokenUsage{}, fmt.Errorf("failed to parse ai response: %v", err)
	}
	usage := tokenUsage{InputTokens: completion.Usage.PromptTokens, OutputTokens: completion.Usage.CompletionTokens}

	if len(completion.Choices) == 0 {
		return nil, usage, fmt.Errorf("ai response had no choices")
	}

	var parsed aiExtractionJSON
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &parsed); err != nil {
		return nil, usage, fmt.Errorf("ai response failed schema: %v", err)
	}

	result := reconcileAIResult(parsed)
	return result, usage, nil
}

// reconcileAIResult implements spec.md §4.6's post-processing: normalize the
// name, reconcile stockState with inStock and variants, derive an unknown
// stockState from variants then from inStock.
func reconcileAIResult(parsed aiExtractionJSON) *models.ExtractResult {
	name := NormalizeProductName(parsed.ProductName)

	var priceCents *int64
	if parsed.Price != nil {
		if p, ok := aiParsePrice(*parsed.Price); ok {
			priceCents = &p
		}
	}

	var variants []models.VariantStock
	for _, v := range parsed.VariantStock {
		if len(variants) >= 8 {
			break
		}
		label := sanitizeVariantLabel(v.Label)
		if label == "" {
			continue
		}
		variants = append(variants, models.VariantStock{Label: label, State: models.StockState(strings.ToUpper(v.State))})
	}

	state := models.StockState(strings.ToUpper(parsed.StockState))
	if state == "" || state == models.StockUnknown {
		state = mergeVariantState(models.StockUnknown, variants)
	}
	if state == models.StockUnknown && parsed.InStock != nil {
		if *parsed.InStock {
			state = models.StockInStock
		} else {
			state = models.StockOutOfStock
		}
	}

	inStock := parsed.InStock
	if inStock == nil {
		inStock = models.InStockFromState(state)
	}

	return &models.ExtractResult{
		ProductName:  name,
		PriceCents:   priceCents,
		InStock:      inStock,
		StockState:   state,
		VariantStock: variants,
		Confidence:   0.87,
		Method:       models.MethodAI,
		Evidence:     "ai-extraction",
	}
}

// BuildEvidence assembles the compact, line-oriented evidence block passed
// to AiExtractor (spec.md §4.6): url/title/meta/stockState, up to 4 prior
// hints, up to 6 variants, up to 12 candidates — truncated to maxChars.
func BuildEvidence(pageURL, title, meta string, stockState models.StockState, hints []string, variants []models.VariantStock, candidateLines []string, maxChars int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "url=%s\n", pageURL)
	fmt.Fprintf(&b, "title=%s\n", title)
	fmt.Fprintf(&b, "meta=%s\n", meta)
	fmt.Fprintf(&b, "stockState=%s\n", stockState)

	for i, h := range hints {
		if i >= 4 {
			break
		}
		fmt.Fprintf(&b, "hint=%s\n", h)
	}
	for i, v := range variants {
		if i >= 6 {
			break
		}
		fmt.Fprintf(&b, "variant=%s|%s\n", v.Label, v.State)
	}
	for i, c := range candidateLines {
		if i >= 12 {
			break
		}
		fmt.Fprintf(&b, "candidate=%s\n", c)
	}

	out := b.String()
	if len(out) > maxChars {
		out = out[:maxChars]
	}
	return out
}

var aiPriceParser = parser.NewPriceParser()

func aiParsePrice(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	parsed, ok := aiPriceParser.Parse(raw)
	if !ok {
		return 0, false
	}
	return parsed.PriceCents, true
}
