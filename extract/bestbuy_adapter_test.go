package extract

import "testing"

func TestBestBuyAdapterMatchesSKU(t *testing.T) {
	a := NewBestBuyAdapter()
	sku, ok := a.Matches("https://www.bestbuy.ca/en-ca/product/nintendo-switch-2/17182932")
	if !ok {
		t.Fatal("Matches() = false, want true")
	}
	if sku != "17182932" {
		t.Errorf("sku = %q, want %q", sku, "17182932")
	}
}

func TestBestBuyAdapterMatchesQueryParam(t *testing.T) {
	a := NewBestBuyAdapter()
	sku, ok := a.Matches("https://www.bestbuy.ca/en-ca/product?sku=17182932")
	if !ok {
		t.Fatal("Matches() = false, want true")
	}
	if sku != "17182932" {
		t.Errorf("sku = %q, want %q", sku, "17182932")
	}
}

func TestBestBuyAdapterIgnoresOtherHosts(t *testing.T) {
	a := NewBestBuyAdapter()
	if _, ok := a.Matches("https://shop.example.com/p/17182932"); ok {
		t.Error("Matches() = true for a non-bestbuy.ca host")
	}
}

func TestClassifyBestBuyAvailability(t *testing.T) {
	p := bestBuyProduct{}
	p.Availability.OnlineAvailability = "InStock"
	if state := classifyBestBuyAvailability(p); state != "IN_STOCK" {
		t.Errorf("state = %v, want IN_STOCK", state)
	}

	p.Availability.OnlineAvailability = "SoldOut"
	if state := classifyBestBuyAvailability(p); state != "OUT_OF_STOCK" {
		t.Errorf("state = %v, want OUT_OF_STOCK", state)
	}
}
