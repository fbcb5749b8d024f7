package grpcpush

import (
	"encoding/json"
	"testing"

	"github.com/aman-zulfiqar/solana-swap-indexer/internal/extract"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/models"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDataFrameSurvivesIntoExtractor(t *testing.T) {
	transferData := base58.Encode(append([]byte{3}, make([]byte, 8)...))

	raw := `{
		"slot": 100,
		"transaction": {
			"signature": "sig1",
			"message": {
				"accountKeys": ["Signer1", "Prog1", "Src1", "Dst1"],
				"instructions": [{"programIdIndex": 1, "accounts": [2, 3, 0], "data": "` + transferData + `"}]
			},
			"meta": {
				"preTokenBalances": [{"accountIndex": 2, "mint": "` + models.WSOLMint + `", "raw": "1000000"}],
				"postTokenBalances": [{"accountIndex": 3, "mint": "TokenMintXYZ", "raw": "500"}]
			}
		}
	}`

	var f dataFrame
	require.NoError(t, json.Unmarshal([]byte(raw), &f))

	rec := decodeDataFrame(f, "conn1")
	require.Len(t, rec.Message.Instructions, 1)
	assert.Equal(t, []string{"Signer1", "Prog1", "Src1", "Dst1"}, rec.Message.AccountKeys)
	assert.Equal(t, byte(3), rec.Message.Instructions[0].Data[0])

	e := extract.New([]string{"Prog1"}, nil)
	trades, _, stats := e.Extract(rec)
	assert.False(t, stats.Recovered)
	require.Len(t, trades, 1)
	assert.Equal(t, "Prog1", trades[0].ProgramID)
}

func TestDecodeDataFrameDetectsV0FromAddressTableLookups(t *testing.T) {
	raw := `{
		"slot": 1,
		"transaction": {
			"signature": "sig2",
			"message": {
				"accountKeys": ["Signer1"],
				"addressTableLookups": [{"accountKey": "Table1", "writableIndexes": [0], "readonlyIndexes": [1]}]
			},
			"meta": {}
		}
	}`

	var f dataFrame
	require.NoError(t, json.Unmarshal([]byte(raw), &f))

	rec := decodeDataFrame(f, "conn1")
	assert.Equal(t, models.VersionV0, rec.Message.Version)
	require.Len(t, rec.Message.AddressTableLookups, 1)
	assert.Equal(t, "Table1", rec.Message.AddressTableLookups[0].AccountKey)
}
