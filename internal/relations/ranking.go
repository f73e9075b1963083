package relations

import (
	"fmt"
	"sort"
	"strings"

	"solana-counterparty-lab/internal/domain"
	"solana-counterparty-lab/internal/solana"
	"solana-counterparty-lab/internal/valuation"
)

// RankPolicy selects the primary sort key for counterparties.
type RankPolicy string

const (
	// RankByVolume orders by volume, then interaction count.
	RankByVolume RankPolicy = "volume"
	// RankByInteractions orders by interaction count, then volume.
	RankByInteractions RankPolicy = "interactions"
)

// DefaultTopN is the default number of counterparties returned.
const DefaultTopN = 25

// ParseRankPolicy parses a policy name. Empty means RankByVolume.
func ParseRankPolicy(s string) (RankPolicy, error) {
	switch RankPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case RankByVolume, "":
		return RankByVolume, nil
	case RankByInteractions:
		return RankByInteractions, nil
	default:
		return "", fmt.Errorf("unknown rank policy %q (want volume or interactions)", s)
	}
}

// Rank returns the aggregates ordered by policy, descending.
// Ties on both keys fall back to address ascending.
func Rank(accounts map[string]*domain.AccountAggregate, policy RankPolicy) []*domain.AccountAggregate {
	ranked := make([]*domain.AccountAggregate, 0, len(accounts))
	for _, agg := range accounts {
		ranked = append(ranked, agg)
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if policy == RankByInteractions {
			if a.InteractionCount != b.InteractionCount {
				return a.InteractionCount > b.InteractionCount
			}
			if a.Volume != b.Volume {
				return a.Volume > b.Volume
			}
		} else {
			if a.Volume != b.Volume {
				return a.Volume > b.Volume
			}
			if a.InteractionCount != b.InteractionCount {
				return a.InteractionCount > b.InteractionCount
			}
		}
		return a.Address < b.Address
	})
	return ranked
}

// Summarize ranks accounts, keeps the top n and formats them for output.
// n <= 0 keeps everything.
func Summarize(accounts map[string]*domain.AccountAggregate, policy RankPolicy, n int) []domain.RelatedAccount {
	ranked := Rank(accounts, policy)
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}

	out := make([]domain.RelatedAccount, 0, len(ranked))
	for _, agg := range ranked {
		out = append(out, toRelatedAccount(agg))
	}
	return out
}

func toRelatedAccount(agg *domain.AccountAggregate) domain.RelatedAccount {
	types := make([]domain.InteractionType, len(agg.Types))
	copy(types, agg.Types)
	return domain.RelatedAccount{
		Address:          agg.Address,
		TotalVolume:      valuation.FormatAmount(agg.Volume),
		Volume:           agg.Volume,
		InteractionCount: agg.InteractionCount,
		LastInteraction:  agg.LastInteraction,
		TransactionTypes: types,
		OnCurve:          solana.IsOnCurve(agg.Address),
	}
}
