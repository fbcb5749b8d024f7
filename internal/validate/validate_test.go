package validate

import (
	"testing"

	"github.com/aman-zulfiqar/solana-swap-indexer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWhitelist map[string]bool

func (f fakeWhitelist) HasBuilder(programID string) bool { return f[programID] }

func TestScenario1BuyObservation(t *testing.T) {
	v := New(fakeWhitelist{"P": true})

	candidates := []models.TradeCandidate{{
		Type: models.TradeBuy, InputMint: models.WSOLMint, OutputMint: "M",
		InputAmountRaw: 1_000_000, OutputAmountRaw: 500, ProgramID: "P", Pool: "X",
	}}
	tx := models.TransactionRecord{Signature: "sig", Slot: 42}

	obs, rej := v.Validate(candidates, tx, nil)
	require.Empty(t, rej)
	require.Len(t, obs, 1)
	assert.Equal(t, "M", obs[0].Mint)
	assert.Equal(t, "X", obs[0].Pool)
	assert.Equal(t, 2000.0, obs[0].AvgPrice)
	assert.Equal(t, "P", obs[0].ProgramID)
	assert.Equal(t, "42", obs[0].Slot)
}

func TestSolSolFilterDiscardsNoise(t *testing.T) {
	v := New(fakeWhitelist{"P": true})
	candidates := []models.TradeCandidate{{
		Type: models.TradeBuy, InputMint: models.WSOLMint, OutputMint: models.WSOLMint,
		InputAmountRaw: 1, OutputAmountRaw: 1, ProgramID: "P", Pool: "X",
	}}
	obs, rej := v.Validate(candidates, models.TransactionRecord{Slot: 1}, nil)
	assert.Empty(t, obs)
	require.Len(t, rej, 1)
	assert.Equal(t, "sol-sol noise", rej[0].Reason)
}

func TestAmountRepairBorrowsFromSibling(t *testing.T) {
	v := New(fakeWhitelist{"P": true})
	candidates := []models.TradeCandidate{
		{Type: models.TradeBuy, InputMint: models.WSOLMint, OutputMint: "M", InputAmountRaw: 0, OutputAmountRaw: 0, ProgramID: "P", Pool: "X"},
		{Type: models.TradeBuy, InputMint: models.WSOLMint, OutputMint: "M", InputAmountRaw: 1_000_000, OutputAmountRaw: 1000, ProgramID: "P", Pool: "X"},
	}
	obs, _ := v.Validate(candidates, models.TransactionRecord{Slot: 1}, nil)
	require.Len(t, obs, 2)
	assert.Equal(t, 1000.0, obs[0].AvgPrice)
}

func TestBalanceDeltaFallback(t *testing.T) {
	v := New(fakeWhitelist{"P": true})
	candidates := []models.TradeCandidate{{
		Type: models.TradeBuy, InputMint: models.WSOLMint, OutputMint: "M",
		InputAmountRaw: 0, OutputAmountRaw: 0, ProgramID: "P", Pool: "X",
	}}
	tx := models.TransactionRecord{Slot: 1}
	tx.Meta = models.TxMeta{
		PreBalances:       []int64{5_000_000_000},
		PostBalances:      []int64{4_000_000_000},
		PreTokenBalances:  []models.TokenBalance{{AccountIndex: 0, Mint: "M", UIAmount: 0}},
		PostTokenBalances: []models.TokenBalance{{AccountIndex: 0, Mint: "M", UIAmount: 500}},
	}

	obs, rej := v.Validate(candidates, tx, nil)
	require.Empty(t, rej)
	require.Len(t, obs, 1)
	assert.Equal(t, 2_000_000.0, obs[0].AvgPrice)
}

func TestPoolResolutionViaMemeEventTiers(t *testing.T) {
	v := New(fakeWhitelist{"P": true})
	candidates := []models.TradeCandidate{{
		Type: models.TradeBuy, InputMint: models.WSOLMint, OutputMint: "M",
		InputAmountRaw: 1000, OutputAmountRaw: 10, ProgramID: "P",
		Signature: "sig", InstructionIdx: 2, User: "user1",
	}}
	memeEvents := []models.MemeEvent{{Signature: "sig", InstructionIdx: 2, User: "user1", BondingCurve: "BC1"}}

	obs, rej := v.Validate(candidates, models.TransactionRecord{Signature: "sig", Slot: 1}, memeEvents)
	require.Empty(t, rej)
	require.Len(t, obs, 1)
	assert.Equal(t, "BC1", obs[0].Pool)
}

func TestRejectsUnwhitelistedProgram(t *testing.T) {
	v := New(fakeWhitelist{})
	candidates := []models.TradeCandidate{{
		Type: models.TradeBuy, InputMint: models.WSOLMint, OutputMint: "M",
		InputAmountRaw: 1000, OutputAmountRaw: 10, ProgramID: "Unknown", Pool: "X",
	}}
	obs, rej := v.Validate(candidates, models.TransactionRecord{Slot: 1}, nil)
	assert.Empty(t, obs)
	require.Len(t, rej, 1)
}
