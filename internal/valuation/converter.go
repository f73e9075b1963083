// Package valuation converts raw ledger amounts into the reference unit (SOL)
// and formats accumulated volumes for display.
//
// Rates are illustrative market approximations, not live prices.
package valuation

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ReferenceUnit is the display symbol of the reference unit.
const ReferenceUnit = "SOL"

// NativeDecimals is the number of decimals of the native unit (lamports per SOL = 1e9).
const NativeDecimals = 9

// Well-known SPL token mints.
const (
	MintWrappedSOL = "So11111111111111111111111111111111111111112"
	MintUSDC       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	MintUSDT       = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	MintMSOL       = "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So"
	MintJitoSOL    = "J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn"
	MintBONK       = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	MintJUP        = "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"
)

// DefaultRates maps a mint to its value in SOL per whole token.
var DefaultRates = map[string]float64{
	MintWrappedSOL: 1.0,
	MintUSDC:       0.0067,
	MintUSDT:       0.0067,
	MintMSOL:       1.22,
	MintJitoSOL:    1.18,
	MintBONK:       0.00000015,
	MintJUP:        0.0055,
}

// Converter maps secondary-unit amounts to the reference unit using a static table.
type Converter struct {
	rates map[string]decimal.Decimal
}

// NewConverter creates a converter from a mint -> SOL rate table.
// The table is copied; later changes to rates have no effect.
func NewConverter(rates map[string]float64) *Converter {
	c := &Converter{rates: make(map[string]decimal.Decimal, len(rates))}
	for mint, rate := range rates {
		c.rates[mint] = decimal.NewFromFloat(rate)
	}
	return c
}

// NewDefaultConverter creates a converter over DefaultRates.
func NewDefaultConverter() *Converter {
	return NewConverter(DefaultRates)
}

// ValueInReferenceUnit returns rawAmount / 10^decimals * rate(mint).
// Unknown mints have rate 0 and contribute nothing.
func (c *Converter) ValueInReferenceUnit(mint string, rawAmount uint64, decimals uint8) float64 {
	rate, ok := c.rates[mint]
	if !ok || rawAmount == 0 {
		return 0
	}
	amount := decimal.NewFromBigInt(new(big.Int).SetUint64(rawAmount), -int32(decimals))
	return amount.Mul(rate).InexactFloat64()
}

// HasRate reports whether mint is priced.
func (c *Converter) HasRate(mint string) bool {
	_, ok := c.rates[mint]
	return ok
}

// LamportsToSOL converts a raw native amount to SOL.
func LamportsToSOL(lamports uint64) float64 {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -NativeDecimals).InexactFloat64()
}
