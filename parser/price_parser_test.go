package parser

import "testing"

func TestPriceParserRoundTrip(t *testing.T) {
	p := NewPriceParser()
	cases := []int64{1, 99, 100, 12345, 129999}
	for _, cents := range cases {
		formatted := p.Format(cents)
		got, ok := p.Parse(formatted)
		if !ok {
			t.Fatalf("Parse(%q) failed for cents=%d", formatted, cents)
		}
		if got.PriceCents != cents {
			t.Errorf("round trip cents=%d formatted=%q got=%d", cents, formatted, got.PriceCents)
		}
	}
}

func TestPriceParserSeparators(t *testing.T) {
	p := NewPriceParser()
	cases := []struct {
		text string
		want int64
	}{
		{"$1,299.99", 129999},
		{"1.299,99 €", 129999},
		{"1 299,99", 129999},
		{"1 299.99", 129999},
		{"€9.99", 999},
		{"€9,99", 999},
		{"Price: 1234", 123400},
		{"1.234", 123400},
		{"1,234", 123400},
		{"$0.50", 50},
	}
	for _, c := range cases {
		got, ok := p.Parse(c.text)
		if !ok {
			t.Fatalf("Parse(%q) failed, want %d", c.text, c.want)
		}
		if got.PriceCents != c.want {
			t.Errorf("Parse(%q) = %d, want %d", c.text, got.PriceCents, c.want)
		}
	}
}

func TestPriceParserRejectsNonsense(t *testing.T) {
	p := NewPriceParser()
	cases := []string{"", "out of stock", "free"}
	for _, c := range cases {
		if _, ok := p.Parse(c); ok {
			t.Errorf("Parse(%q) unexpectedly succeeded", c)
		}
	}
}
