package valuation

import (
	"testing"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  string
	}{
		{"zero", 0, "0 SOL"},
		{"tiny bracket", 0.0009, "0.000900 SOL"},
		{"sub-unit bracket", 0.5, "0.500 SOL"},
		{"lower bracket edge", 0.001, "0.001 SOL"},
		{"hundreds bracket", 500, "500.00 SOL"},
		{"unit edge", 1, "1.00 SOL"},
		{"thousands bracket", 5000, "5000 SOL"},
		{"thousand edge", 1000, "1000 SOL"},
		{"two sol", 2, "2.00 SOL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatAmount(tt.value); got != tt.want {
				t.Errorf("FormatAmount(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}
