package domain

import "errors"

// Analysis error taxonomy.
var (
	// ErrInvalidAddress is returned for malformed addresses. Never retried or cached.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrUpstreamUnavailable wraps transport failures reaching the ledger provider.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
