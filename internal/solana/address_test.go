package solana

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    bool
	}{
		{"system program", "11111111111111111111111111111111", true},
		{"token program", "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", true},
		{"usdc mint", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", true},
		{"empty", "", false},
		{"too short", "abc", false},
		{"invalid alphabet", "0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl", false},
		{"too long", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1vEPjF", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidAddress(tt.address))
			assert.Equal(t, tt.want, Base58Validator{}.IsValid(tt.address))
		})
	}
}

func TestIsOnCurve(t *testing.T) {
	// The all-zero key encodes y=0, which is a valid curve point.
	assert.True(t, IsOnCurve("11111111111111111111111111111111"))
	assert.False(t, IsOnCurve("not-a-key"))
}
