package extract

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"pricewatch/models"
)

type fakeRenderedFetcher struct {
	html     string
	finalURL string
	ok       bool
}

func (f *fakeRenderedFetcher) Fetch(url string, timeoutMS int) (string, string, bool) {
	return f.html, f.finalURL, f.ok
}

type fakeAiExtractor struct {
	result *models.ExtractResult
	usage  tokenUsage
}

func (f *fakeAiExtractor) Extract(evidence, model string, maxOutputTokens int) (*models.ExtractResult, tokenUsage, error) {
	return f.result, f.usage, nil
}

func TestExtractionPipelineShopifySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"product":{"title":"Demo Shirt","variants":[{"title":"M","available":true,"price":"42.50"}]}}`))
	}))
	defer srv.Close()

	p := NewExtractionPipeline(nil, nil, 0.88, 0.78, 6000, 180, 0, 0)
	attempt := p.Run(srv.URL+"/products/demo-shirt", models.PipelineOptions{TimeoutMS: 5000})
	if attempt.Status != models.ExtractionSuccess {
		t.Fatalf("Status = %v, want success", attempt.Status)
	}
	if attempt.Result.Method != models.MethodShopifyJSON {
		t.Errorf("Method = %v, want shopify_json", attempt.Result.Method)
	}
}

func TestExtractionPipelineRedirectBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://other.example.com/x", http.StatusFound)
	}))
	defer srv.Close()

	p := NewExtractionPipeline(nil, nil, 0.88, 0.78, 6000, 180, 0, 0)
	attempt := p.Run(srv.URL+"/product/x", models.PipelineOptions{TimeoutMS: 5000})
	if attempt.Status != models.ExtractionNeedsReview || attempt.Reason != models.ErrURLRedirectBlocked {
		t.Fatalf("got status=%v reason=%v, want needs_review/URL_REDIRECT_BLOCKED", attempt.Status, attempt.Reason)
	}
}

func TestExtractionPipelineAIBudgetExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>Great deal, only $19.99!</p></body></html>`))
	}))
	defer srv.Close()

	p := NewExtractionPipeline(nil, nil, 0.88, 0.78, 6000, 180, 0, 0)
	attempt := p.Run(srv.URL+"/product/x", models.PipelineOptions{TimeoutMS: 5000, AllowAI: false, AllowPlaywright: false})
	if attempt.Status != models.ExtractionNeedsReview || attempt.Reason != models.ErrAIBudgetExceededOrOff {
		t.Fatalf("got status=%v reason=%v, want needs_review/AI_BUDGET_EXCEEDED_OR_DISABLED", attempt.Status, attempt.Reason)
	}
}

func TestExtractionPipelineLowConfidenceFinalGate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>Nothing useful here.</p></body></html>`))
	}))
	defer srv.Close()

	p := NewExtractionPipeline(nil, nil, 0.88, 0.78, 6000, 180, 0, 0)
	attempt := p.Run(srv.URL+"/product/x", models.PipelineOptions{TimeoutMS: 5000, AllowAI: true, AllowPlaywright: false})
	if attempt.Status != models.ExtractionNeedsReview {
		t.Fatalf("Status = %v, want needs_review", attempt.Status)
	}
}
