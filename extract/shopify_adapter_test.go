package extract

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pricewatch/models"
)

func TestShopifyAdapterPartialStock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".js") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"product":{"title":"Demo Shirt","variants":[
			{"title":"P2S","available":false,"price":"39.99"},
			{"title":"X1C","available":true,"price":"42.50"}
		]}}`))
	}))
	defer srv.Close()

	a := NewShopifyAdapter()
	result, ok := a.Fetch(srv.URL+"/products/demo-shirt", 5000)
	if !ok {
		t.Fatal("Fetch returned ok=false")
	}
	if result.Method != models.MethodShopifyJSON {
		t.Errorf("Method = %v, want shopify_json", result.Method)
	}
	if result.PriceCents == nil || *result.PriceCents != 4250 {
		t.Errorf("PriceCents = %v, want 4250", result.PriceCents)
	}
	if result.StockState != models.StockPartial {
		t.Errorf("StockState = %v, want PARTIAL", result.StockState)
	}
	if len(result.VariantStock) != 2 {
		t.Errorf("VariantStock length = %d, want 2", len(result.VariantStock))
	}
}

func TestShopifyAdapterNoMatchForNonProductPath(t *testing.T) {
	a := NewShopifyAdapter()
	if _, ok := a.Matches("https://shop.example.com/collections/all"); ok {
		t.Error("Matches() = true for a non-product path")
	}
}
