package valuation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConverter_UnknownMintIsZero(t *testing.T) {
	c := NewDefaultConverter()

	assert.Equal(t, 0.0, c.ValueInReferenceUnit("UnknownMint1111111111111111111111111111111", 123456789, 6))
	assert.Equal(t, 0.0, c.ValueInReferenceUnit("", 1, 0))
	assert.False(t, c.HasRate("UnknownMint1111111111111111111111111111111"))
}

func TestConverter_ZeroAmountIsZero(t *testing.T) {
	c := NewDefaultConverter()

	for _, decimals := range []uint8{0, 6, 9, 18} {
		assert.Equal(t, 0.0, c.ValueInReferenceUnit(MintUSDC, 0, decimals), "decimals=%d", decimals)
	}
}

func TestConverter_ScalesByDecimalsAndRate(t *testing.T) {
	c := NewConverter(map[string]float64{
		"MintA": 2.0,
		"MintB": 0.5,
	})

	// 1.5 tokens (6 decimals) at 2 SOL each
	assert.InDelta(t, 3.0, c.ValueInReferenceUnit("MintA", 1_500_000, 6), 1e-12)
	// 10 tokens (0 decimals) at 0.5 SOL each
	assert.InDelta(t, 5.0, c.ValueInReferenceUnit("MintB", 10, 0), 1e-12)
}

func TestConverter_WrappedSOLIsParity(t *testing.T) {
	c := NewDefaultConverter()
	assert.InDelta(t, 1.5, c.ValueInReferenceUnit(MintWrappedSOL, 1_500_000_000, 9), 1e-12)
}

func TestConverter_CopiesRateTable(t *testing.T) {
	rates := map[string]float64{"MintA": 1}
	c := NewConverter(rates)
	rates["MintA"] = 100

	assert.InDelta(t, 1.0, c.ValueInReferenceUnit("MintA", 1, 0), 1e-12)
}

func TestLamportsToSOL(t *testing.T) {
	assert.InDelta(t, 2.0, LamportsToSOL(2_000_000_000), 1e-12)
	assert.InDelta(t, 0.000000001, LamportsToSOL(1), 1e-18)
	assert.Equal(t, 0.0, LamportsToSOL(0))
}
