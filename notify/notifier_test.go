package notify

import "testing"

func TestFormatPriceEnCA(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{0, "$0.00"},
		{99, "$0.99"},
		{123456, "$1,234.56"},
		{100000000, "$1,000,000.00"},
		{5, "$0.05"},
	}
	for _, c := range cases {
		if got := formatPriceEnCA(c.cents); got != c.want {
			t.Errorf("formatPriceEnCA(%d) = %q, want %q", c.cents, got, c.want)
		}
	}
}

func TestGroupThousands(t *testing.T) {
	cases := []struct{ in, want string }{
		{"1", "1"},
		{"123", "123"},
		{"1234", "1,234"},
		{"1234567", "1,234,567"},
	}
	for _, c := range cases {
		if got := groupThousands(c.in); got != c.want {
			t.Errorf("groupThousands(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
