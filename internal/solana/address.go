package solana

import (
	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeyLength is the byte length of a Solana public key.
const PublicKeyLength = 32

// AddressValidator performs a structural address check without network calls.
type AddressValidator interface {
	IsValid(address string) bool
}

// Base58Validator accepts base58 strings that decode to a 32-byte public key.
type Base58Validator struct{}

// IsValid reports whether address is a well-formed Solana public key.
func (Base58Validator) IsValid(address string) bool {
	return IsValidAddress(address)
}

// IsValidAddress reports whether address decodes to a 32-byte key.
func IsValidAddress(address string) bool {
	// 32 bytes encode to 32..44 base58 characters.
	if len(address) < 32 || len(address) > 44 {
		return false
	}
	decoded, err := base58.Decode(address)
	if err != nil {
		return false
	}
	return len(decoded) == PublicKeyLength
}

// IsOnCurve reports whether address is an ed25519 point, i.e. a key that can
// sign (wallet) rather than a program-derived address. Invalid input is off-curve.
func IsOnCurve(address string) bool {
	decoded, err := base58.Decode(address)
	if err != nil || len(decoded) != PublicKeyLength {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(decoded)
	return err == nil
}
