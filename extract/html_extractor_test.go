package extract

import "testing"

func TestHtmlExtractorJSONLDProduct(t *testing.T) {
	html := `<html><head>
		<script type="application/ld+json">{"@type":"Product","name":"Widget Pro","offers":{"price":"49.99"}}</script>
	</head><body><div class="price">$49.99</div></body></html>`

	e := NewHtmlExtractor()
	result, err := e.Extract(html, "https://shop.example.com/products/widget-pro")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.ProductName != "Widget Pro" {
		t.Errorf("ProductName = %q, want %q", result.ProductName, "Widget Pro")
	}
	if result.PriceCents == nil || *result.PriceCents != 4999 {
		t.Errorf("PriceCents = %v, want 4999", result.PriceCents)
	}
	if result.Confidence < 0.85 {
		t.Errorf("Confidence = %v, want >= 0.85", result.Confidence)
	}
}

func TestHtmlExtractorBodyTextOnlyLowConfidence(t *testing.T) {
	html := `<html><body><p>Check out this great deal for only $19.99 today!</p></body></html>`

	e := NewHtmlExtractor()
	result, err := e.Extract(html, "https://shop.example.com/p/thing")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Confidence >= 0.85 {
		t.Errorf("Confidence = %v, want < 0.85 for body-text-only evidence", result.Confidence)
	}
}

func TestHtmlExtractorCTAOverridesNoise(t *testing.T) {
	html := `<html><body>
		<p>This item is currently unavailable in some regions.</p>
		<div class="price">$129.99</div>
		<button>Add to Cart</button>
		<button>Add to Cart</button>
	</body></html>`

	e := NewHtmlExtractor()
	result, err := e.Extract(html, "https://shop.example.com/p/thing")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.StockState != "IN_STOCK" {
		t.Errorf("StockState = %v, want IN_STOCK (enabled CTA overrides generic unavailable text)", result.StockState)
	}
}

func TestHtmlExtractorAmbiguityPenalty(t *testing.T) {
	html := `<html><body>
		<div class="price">$10.00</div>
		<div class="price">$99.00</div>
	</body></html>`

	e := NewHtmlExtractor()
	result, err := e.Extract(html, "https://shop.example.com/p/thing")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Confidence < 0.50 {
		t.Errorf("Confidence = %v, should not fall below the ambiguity floor of 0.50", result.Confidence)
	}
}

func TestHtmlExtractorJSONLDOfferVariants(t *testing.T) {
	html := `<html><head>
		<script type="application/ld+json">{"@type":"Product","name":"Widget Pro","offers":[
			{"name":"Small","price":"49.99","availability":"https://schema.org/InStock"},
			{"name":"Large","price":"59.99","availability":"https://schema.org/OutOfStock"}
		]}</script>
	</head><body><div class="price">$49.99</div></body></html>`

	e := NewHtmlExtractor()
	result, err := e.Extract(html, "https://shop.example.com/products/widget-pro")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(result.VariantStock) != 2 {
		t.Fatalf("VariantStock = %v, want 2 entries", result.VariantStock)
	}
	if result.StockState != "PARTIAL" {
		t.Errorf("StockState = %v, want PARTIAL (one in-stock, one out-of-stock variant)", result.StockState)
	}
}

func TestNormalizeProductNameStripsTrailingClauses(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Widget Pro with Extra Battery", "Widget Pro"},
		{"Widget Pro for Home Use", "Widget Pro"},
		{"Widget Pro, Black Edition", "Widget Pro"},
		{"Air Purifiers", "Air Purifier"},
	}
	for _, c := range cases {
		got := NormalizeProductName(c.in)
		if got != c.want {
			t.Errorf("NormalizeProductName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
