package ingestion

import (
	"fmt"
	"strings"
	"time"
)

// ProviderTier identifies the class of upstream RPC service.
type ProviderTier string

const (
	// TierStandard is a public or free endpoint that throttles aggressively.
	TierStandard ProviderTier = "standard"
	// TierPremium is a paid endpoint with generous limits and batch support.
	TierPremium ProviderTier = "premium"
)

// String returns the string representation of ProviderTier.
func (t ProviderTier) String() string {
	return string(t)
}

// ParseTier parses a tier name, case-insensitively.
func ParseTier(s string) (ProviderTier, error) {
	switch ProviderTier(strings.ToLower(strings.TrimSpace(s))) {
	case TierStandard, "":
		return TierStandard, nil
	case TierPremium:
		return TierPremium, nil
	default:
		return "", fmt.Errorf("unknown provider tier %q (want standard or premium)", s)
	}
}

// FetchPolicy carries every tier-dependent fetch parameter.
// It is selected once per run and passed down.
type FetchPolicy struct {
	Tier ProviderTier

	// SignatureWindow is how many recent signatures are listed.
	SignatureWindow int
	// MaxRecords caps the transactions examined per run.
	MaxRecords int

	// BatchSize is the number of transactions requested per batch.
	BatchSize int
	// BatchDelay separates consecutive batches; the first batch is not delayed.
	BatchDelay time.Duration
	// UseBatchRequests sends one JSON-RPC batch per batch instead of sequential requests.
	UseBatchRequests bool
	// RequestDelay separates sequential requests inside a batch.
	RequestDelay time.Duration

	// RateLimitBackoff is the pause after a throttling signal, scaled by attempt number.
	RateLimitBackoff time.Duration
	// MaxAttempts bounds the tries per batch before it is skipped.
	MaxAttempts int
}

// PolicyFor returns the default policy for tier.
func PolicyFor(tier ProviderTier) FetchPolicy {
	if tier == TierPremium {
		return FetchPolicy{
			Tier:             TierPremium,
			SignatureWindow:  50,
			MaxRecords:       50,
			BatchSize:        5,
			BatchDelay:       1 * time.Second,
			UseBatchRequests: true,
			RequestDelay:     100 * time.Millisecond,
			RateLimitBackoff: 2 * time.Second,
			MaxAttempts:      3,
		}
	}
	return FetchPolicy{
		Tier:             TierStandard,
		SignatureWindow:  50,
		MaxRecords:       20,
		BatchSize:        2,
		BatchDelay:       2 * time.Second,
		UseBatchRequests: false,
		RequestDelay:     300 * time.Millisecond,
		RateLimitBackoff: 5 * time.Second,
		MaxAttempts:      2,
	}
}

// Validate checks that the policy can drive a fetch.
func (p FetchPolicy) Validate() error {
	if p.SignatureWindow <= 0 {
		return fmt.Errorf("signature window must be positive, got %d", p.SignatureWindow)
	}
	if p.MaxRecords <= 0 {
		return fmt.Errorf("max records must be positive, got %d", p.MaxRecords)
	}
	if p.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", p.BatchSize)
	}
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", p.MaxAttempts)
	}
	if p.BatchDelay < 0 || p.RequestDelay < 0 || p.RateLimitBackoff < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	return nil
}
