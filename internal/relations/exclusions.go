package relations

import "strings"

// Well-known program and sysvar accounts. They appear in almost every
// transaction and are never meaningful counterparties.
const (
	SystemProgram          = "11111111111111111111111111111111"
	TokenProgram           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022Program       = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	ComputeBudgetProgram   = "ComputeBudget111111111111111111111111111111"
	AssociatedTokenProgram = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	VoteProgram            = "Vote111111111111111111111111111111111111111"
	StakeProgram           = "Stake11111111111111111111111111111111111111"
	MemoProgram            = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"
	SysvarRent             = "SysvarRent111111111111111111111111111111111"
	SysvarClock            = "SysvarC1ock11111111111111111111111111111111"
)

// DefaultExcludedAccounts returns the built-in exclusion list.
func DefaultExcludedAccounts() []string {
	return []string{
		SystemProgram,
		TokenProgram,
		Token2022Program,
		ComputeBudgetProgram,
		AssociatedTokenProgram,
		VoteProgram,
		StakeProgram,
		MemoProgram,
		SysvarRent,
		SysvarClock,
	}
}

// ExclusionSet is an immutable set of accounts that never count as counterparties.
type ExclusionSet struct {
	accounts map[string]struct{}
}

// NewExclusionSet builds a set from the default list plus extra accounts.
// Blank entries in extra are ignored.
func NewExclusionSet(extra ...string) ExclusionSet {
	defaults := DefaultExcludedAccounts()
	set := ExclusionSet{accounts: make(map[string]struct{}, len(defaults)+len(extra))}
	for _, addr := range defaults {
		set.accounts[addr] = struct{}{}
	}
	for _, addr := range extra {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			set.accounts[addr] = struct{}{}
		}
	}
	return set
}

// Contains reports whether addr is excluded.
func (s ExclusionSet) Contains(addr string) bool {
	_, ok := s.accounts[addr]
	return ok
}

// Len returns the number of excluded accounts.
func (s ExclusionSet) Len() int {
	return len(s.accounts)
}
