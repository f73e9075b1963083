// Package relations turns fetched transactions into ranked counterparties.
package relations

import (
	"solana-counterparty-lab/internal/domain"
	"solana-counterparty-lab/internal/solana"
	"solana-counterparty-lab/internal/valuation"
)

// Aggregator accumulates per-counterparty aggregates for one queried address.
// It is not safe for concurrent use; one Aggregator serves one analysis run.
//
// Native SOL deltas and SPL token deltas live in different sections of a
// transaction and are reconciled in two passes that feed the same aggregate.
type Aggregator struct {
	queried    string
	converter  *valuation.Converter
	exclusions ExclusionSet

	accounts map[string]*domain.AccountAggregate
	added    int
	skipped  int
}

// NewAggregator creates an Aggregator for queried.
func NewAggregator(queried string, converter *valuation.Converter, exclusions ExclusionSet) *Aggregator {
	if converter == nil {
		converter = valuation.NewDefaultConverter()
	}
	return &Aggregator{
		queried:    queried,
		converter:  converter,
		exclusions: exclusions,
		accounts:   make(map[string]*domain.AccountAggregate),
	}
}

// Aggregate runs a fresh Aggregator over records.
func Aggregate(records []*solana.Transaction, queried string, converter *valuation.Converter, exclusions ExclusionSet) map[string]*domain.AccountAggregate {
	agg := NewAggregator(queried, converter, exclusions)
	for _, tx := range records {
		agg.Add(tx)
	}
	return agg.Accounts()
}

// Add folds one transaction into the aggregates. Transactions without
// balance sections, or that failed on chain, are skipped and counted.
// Returns false if tx was skipped.
func (a *Aggregator) Add(tx *solana.Transaction) bool {
	if !tx.HasBalanceChanges() || tx.Meta.Err != nil {
		a.skipped++
		return false
	}
	a.added++

	// An account counts one interaction per transaction, whichever pass sees it.
	touched := make(map[string]struct{})
	a.addNative(tx, touched)
	a.addTokens(tx, touched)
	return true
}

// Accounts returns the aggregates keyed by counterparty address.
func (a *Aggregator) Accounts() map[string]*domain.AccountAggregate {
	return a.accounts
}

// Added returns the number of transactions that contributed.
func (a *Aggregator) Added() int {
	return a.added
}

// Skipped returns the number of transactions skipped for missing metadata.
func (a *Aggregator) Skipped() int {
	return a.skipped
}

func (a *Aggregator) addNative(tx *solana.Transaction, touched map[string]struct{}) {
	keys := tx.AccountKeys()
	pre, post := tx.Meta.PreBalances, tx.Meta.PostBalances
	n := min(len(keys), len(pre), len(post))

	for i := 0; i < n; i++ {
		addr := keys[i]
		if a.ignored(addr) || pre[i] == post[i] {
			continue
		}

		var delta uint64
		label := domain.InteractionNativeInflow
		if post[i] > pre[i] {
			delta = post[i] - pre[i]
		} else {
			delta = pre[i] - post[i]
			label = domain.InteractionNativeOutflow
		}

		agg := a.touch(addr, tx.BlockTime, touched)
		agg.Volume += valuation.LamportsToSOL(delta)
		agg.AddType(label)
	}
}

type holding struct {
	owner string
	mint  string
}

type holdingAmount struct {
	amount   uint64
	decimals uint8
}

func (a *Aggregator) addTokens(tx *solana.Transaction, touched map[string]struct{}) {
	pre := a.holdings(tx.Meta.PreTokenBalances)
	post := a.holdings(tx.Meta.PostTokenBalances)
	if len(pre) == 0 && len(post) == 0 {
		return
	}

	// Deterministic order keeps first-seen label order stable across runs.
	keys := make([]holding, 0, len(pre)+len(post))
	seen := make(map[holding]struct{}, len(pre)+len(post))
	for _, section := range [][]solana.TokenBalance{tx.Meta.PreTokenBalances, tx.Meta.PostTokenBalances} {
		for _, tb := range section {
			key := holding{owner: tb.Owner, mint: tb.Mint}
			if _, ok := seen[key]; ok {
				continue
			}
			if _, ok := pre[key]; !ok {
				if _, ok := post[key]; !ok {
					continue
				}
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}

	for _, key := range keys {
		before, after := pre[key], post[key]
		if before.amount == after.amount {
			continue
		}

		delta := after.amount - before.amount
		if before.amount > after.amount {
			delta = before.amount - after.amount
		}
		decimals := after.decimals
		if _, ok := post[key]; !ok {
			decimals = before.decimals
		}

		agg := a.touch(key.owner, tx.BlockTime, touched)
		agg.Volume += a.converter.ValueInReferenceUnit(key.mint, delta, decimals)
		agg.AddType(domain.InteractionTokenTransfer)
	}
}

// holdings sums a token balance section by (owner, mint), dropping entries
// that cannot be attributed to a counterparty.
func (a *Aggregator) holdings(section []solana.TokenBalance) map[holding]holdingAmount {
	out := make(map[holding]holdingAmount, len(section))
	for _, tb := range section {
		if tb.Owner == "" || a.ignored(tb.Owner) {
			continue
		}
		key := holding{owner: tb.Owner, mint: tb.Mint}
		cur := out[key]
		cur.amount += tb.Amount
		cur.decimals = tb.Decimals
		out[key] = cur
	}
	return out
}

func (a *Aggregator) ignored(addr string) bool {
	return addr == a.queried || a.exclusions.Contains(addr)
}

func (a *Aggregator) touch(addr string, blockTime int64, touched map[string]struct{}) *domain.AccountAggregate {
	agg, ok := a.accounts[addr]
	if !ok {
		agg = domain.NewAccountAggregate(addr)
		a.accounts[addr] = agg
	}
	if _, ok := touched[addr]; !ok {
		touched[addr] = struct{}{}
		agg.InteractionCount++
	}
	agg.Touch(blockTime)
	return agg
}
