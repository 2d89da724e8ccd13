package parser

import "testing"

func TestUrlNormalizerStripsTracking(t *testing.T) {
	n := NewUrlNormalizer()
	got, err := n.Normalize("https://shop.example.com/products/widget?utm_source=ig&color=blue&ref=123#reviews")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	want := "https://shop.example.com/products/widget?color=blue"
	if got != want {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}
}

func TestUrlNormalizerSortsParams(t *testing.T) {
	n := NewUrlNormalizer()
	got, err := n.Normalize("https://example.com/p?b=2&a=1")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	want := "https://example.com/p?a=1&b=2"
	if got != want {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}
}

func TestUrlNormalizerStripsTrailingSlash(t *testing.T) {
	n := NewUrlNormalizer()
	got, err := n.Normalize("https://example.com/products/widget/")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	want := "https://example.com/products/widget"
	if got != want {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}

	root, err := n.Normalize("https://example.com/")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if root != "https://example.com/" {
		t.Errorf("Normalize() root = %q, want unchanged root path", root)
	}
}

func TestUrlNormalizerIdempotent(t *testing.T) {
	n := NewUrlNormalizer()
	inputs := []string{
		"https://shop.example.com/products/widget?utm_source=ig&color=blue&ref=123#reviews",
		"https://example.com/p?b=2&a=1/",
		"https://example.com/",
	}
	for _, in := range inputs {
		once, err := n.Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q) failed: %v", in, err)
		}
		twice, err := n.Normalize(once)
		if err != nil {
			t.Fatalf("Normalize(%q) failed: %v", once, err)
		}
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func TestUrlNormalizerHost(t *testing.T) {
	n := NewUrlNormalizer()
	host, err := n.Host("https://Shop.Example.COM/products/widget")
	if err != nil {
		t.Fatalf("Host failed: %v", err)
	}
	if host != "shop.example.com" {
		t.Errorf("Host() = %q, want lowercased host", host)
	}
}
