package extract

import (
	"testing"

	"github.com/aman-zulfiqar/solana-swap-indexer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transferIx(programIdx, src, dst int, amount uint64) models.CompiledInstruction {
	data := make([]byte, 9)
	data[0] = 3 // Transfer discriminator
	return models.CompiledInstruction{
		ProgramIDIndex: programIdx,
		Accounts:       []int{src, dst, 0},
		Data:           data,
	}
}

func TestExtractRecognizesWhitelistedTransfer(t *testing.T) {
	e := New([]string{"Prog1111111111111111111111111111111111111"}, nil)

	rec := models.TransactionRecord{
		Signature: "sig1",
		Slot:      100,
		Message: models.TxMessage{
			AccountKeys: []string{
				"Signer11111111111111111111111111111111111",
				"Prog1111111111111111111111111111111111111",
				"SrcAccount11111111111111111111111111111111",
				"DstAccount11111111111111111111111111111111",
			},
			Instructions: []models.CompiledInstruction{transferIx(1, 2, 3, 1000)},
		},
		Meta: models.TxMeta{
			PreTokenBalances:  []models.TokenBalance{{AccountIndex: 2, Mint: models.WSOLMint, Raw: "1000000"}},
			PostTokenBalances: []models.TokenBalance{{AccountIndex: 3, Mint: "TokenMintXYZ", Raw: "500"}},
		},
	}

	trades, memeEvents, stats := e.Extract(rec)
	require.Len(t, trades, 1)
	assert.Empty(t, memeEvents)
	assert.Equal(t, 1, stats.TotalTrades)
	assert.False(t, stats.Recovered)
	assert.Equal(t, "Prog1111111111111111111111111111111111111", trades[0].ProgramID)
}

func TestExtractIgnoresNonWhitelistedProgram(t *testing.T) {
	e := New([]string{"OtherProgram"}, nil)

	rec := models.TransactionRecord{
		Message: models.TxMessage{
			AccountKeys:  []string{"Signer", "Prog1", "Src", "Dst"},
			Instructions: []models.CompiledInstruction{transferIx(1, 2, 3, 1000)},
		},
	}

	trades, _, stats := e.Extract(rec)
	assert.Empty(t, trades)
	assert.Equal(t, 0, stats.TotalTrades)
}

func TestExtractNeverPanics(t *testing.T) {
	e := New([]string{"Prog1"}, nil)

	// Instruction referencing out-of-range account indexes must not panic.
	rec := models.TransactionRecord{
		Message: models.TxMessage{
			AccountKeys: []string{"Signer", "Prog1"},
			Instructions: []models.CompiledInstruction{
				{ProgramIDIndex: 1, Accounts: []int{99, 100, 101}, Data: []byte{3, 0, 0, 0, 0, 0, 0, 0, 0}},
			},
		},
	}

	assert.NotPanics(t, func() {
		trades, memeEvents, stats := e.Extract(rec)
		assert.Empty(t, trades)
		assert.Empty(t, memeEvents)
		assert.Equal(t, 0, stats.TotalTrades)
	})
}

func TestDetectVersion(t *testing.T) {
	assert.Equal(t, models.VersionV0, detectVersion(models.TxMessage{AddressTableLookups: []models.AccountKeyLookup{{}}}))
	assert.Equal(t, models.VersionLegacy, detectVersion(models.TxMessage{Instructions: []models.CompiledInstruction{{}}}))
	assert.Equal(t, models.VersionV0, detectVersion(models.TxMessage{Version: models.VersionV0}))
}
