package domain

// InteractionType is a qualitative label for how a counterparty moved value.
type InteractionType string

const (
	InteractionNativeInflow  InteractionType = "sol_in"
	InteractionNativeOutflow InteractionType = "sol_out"
	InteractionTokenTransfer InteractionType = "token_transfer"
)

// String returns the string representation of InteractionType.
func (t InteractionType) String() string {
	return string(t)
}

// AccountAggregate accumulates everything observed about one counterparty
// during a single analysis run. It is discarded once the run is formatted.
type AccountAggregate struct {
	Address          string
	InteractionCount int
	Volume           float64 // reference-unit (SOL) volume, unrounded
	LastInteraction  int64   // unix seconds, monotonically non-decreasing
	Types            []InteractionType
}

// NewAccountAggregate creates an empty aggregate for address.
func NewAccountAggregate(address string) *AccountAggregate {
	return &AccountAggregate{Address: address}
}

// Touch records a transaction timestamp, keeping the latest.
func (a *AccountAggregate) Touch(blockTime int64) {
	if blockTime > a.LastInteraction {
		a.LastInteraction = blockTime
	}
}

// AddType appends t unless it was already observed.
func (a *AccountAggregate) AddType(t InteractionType) {
	for _, existing := range a.Types {
		if existing == t {
			return
		}
	}
	a.Types = append(a.Types, t)
}

// HasType reports whether t was observed.
func (a *AccountAggregate) HasType(t InteractionType) bool {
	for _, existing := range a.Types {
		if existing == t {
			return true
		}
	}
	return false
}
