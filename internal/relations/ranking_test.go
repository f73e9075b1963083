package relations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-counterparty-lab/internal/domain"
)

func rankFixture() map[string]*domain.AccountAggregate {
	return map[string]*domain.AccountAggregate{
		"a": {Address: "a", Volume: 5, InteractionCount: 1},
		"b": {Address: "b", Volume: 1, InteractionCount: 9},
		"c": {Address: "c", Volume: 5, InteractionCount: 3},
		"d": {Address: "d", Volume: 1, InteractionCount: 9},
	}
}

func addresses(ranked []*domain.AccountAggregate) []string {
	out := make([]string, len(ranked))
	for i, agg := range ranked {
		out[i] = agg.Address
	}
	return out
}

func TestRank_ByVolume(t *testing.T) {
	ranked := Rank(rankFixture(), RankByVolume)
	assert.Equal(t, []string{"c", "a", "b", "d"}, addresses(ranked))
}

func TestRank_ByInteractions(t *testing.T) {
	ranked := Rank(rankFixture(), RankByInteractions)
	assert.Equal(t, []string{"b", "d", "c", "a"}, addresses(ranked))
}

func TestRank_Empty(t *testing.T) {
	assert.Empty(t, Rank(nil, RankByVolume))
	related := Summarize(nil, RankByVolume, DefaultTopN)
	require.NotNil(t, related)
	assert.Empty(t, related)
}

func TestSummarize_TopN(t *testing.T) {
	related := Summarize(rankFixture(), RankByVolume, 2)
	require.Len(t, related, 2)
	assert.Equal(t, "c", related[0].Address)
	assert.Equal(t, "a", related[1].Address)

	assert.Len(t, Summarize(rankFixture(), RankByVolume, 0), 4)
}

func TestSummarize_Shape(t *testing.T) {
	accounts := map[string]*domain.AccountAggregate{
		alice: {
			Address:          alice,
			Volume:           0.0005,
			InteractionCount: 2,
			LastInteraction:  1700000000,
			Types:            []domain.InteractionType{domain.InteractionNativeOutflow},
		},
	}

	related := Summarize(accounts, RankByVolume, DefaultTopN)
	require.Len(t, related, 1)
	r := related[0]
	assert.Equal(t, "0.000500 SOL", r.TotalVolume)
	assert.Equal(t, 0.0005, r.Volume)
	assert.Equal(t, 2, r.InteractionCount)
	assert.Equal(t, int64(1700000000), r.LastInteraction)
	assert.Equal(t, []domain.InteractionType{domain.InteractionNativeOutflow}, r.TransactionTypes)

	// Output does not alias the aggregate.
	accounts[alice].Types[0] = domain.InteractionTokenTransfer
	assert.Equal(t, domain.InteractionNativeOutflow, r.TransactionTypes[0])
}

func TestParseRankPolicy(t *testing.T) {
	p, err := ParseRankPolicy("Interactions")
	require.NoError(t, err)
	assert.Equal(t, RankByInteractions, p)

	p, err = ParseRankPolicy("")
	require.NoError(t, err)
	assert.Equal(t, RankByVolume, p)

	_, err = ParseRankPolicy("recency")
	assert.Error(t, err)
}
