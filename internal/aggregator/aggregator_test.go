package aggregator

import (
	"context"
	"testing"

	"github.com/aman-zulfiqar/solana-swap-indexer/internal/priceindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuoteClient struct {
	resp *QuoteResponse
	err  error
}

func (f fakeQuoteClient) Quote(ctx context.Context, inputMint, outputMint string, amountRaw uint64) (*QuoteResponse, error) {
	return f.resp, f.err
}

type fakeWhitelist map[string]bool

func (f fakeWhitelist) HasBuilder(programID string) bool { return f[programID] }

func newIndex() *priceindex.Index {
	return priceindex.New(priceindex.Config{CeilingBytes: 1 << 20})
}

func TestResolveAcceptsSingleHopMappedLabel(t *testing.T) {
	client := fakeQuoteClient{resp: &QuoteResponse{
		OutAmount: "500000",
		RoutePlan: []RoutePlanStep{{Label: "Orca", AmmID: "PoolX"}},
	}}
	idx := newIndex()
	f := New(client, idx, fakeWhitelist{"ProgOrca": true}, LabelProgramIDs{"Orca": "ProgOrca"}, nil)

	obs, err := f.Resolve(context.Background(), "MintA")
	require.NoError(t, err)
	assert.Equal(t, "PoolX", obs.Pool)
	assert.Equal(t, "ProgOrca", obs.ProgramID)
	assert.InDelta(t, 2000.0, obs.AvgPrice, 0.001)

	stored, ok := idx.Get("MintA")
	require.True(t, ok)
	assert.Equal(t, obs.Pool, stored.Pool)
}

func TestResolveRejectsMultiHop(t *testing.T) {
	client := fakeQuoteClient{resp: &QuoteResponse{
		OutAmount: "500000",
		RoutePlan: []RoutePlanStep{{Label: "Orca", AmmID: "PoolX"}, {Label: "Raydium", AmmID: "PoolY"}},
	}}
	f := New(client, newIndex(), fakeWhitelist{"ProgOrca": true}, LabelProgramIDs{"Orca": "ProgOrca"}, nil)

	_, err := f.Resolve(context.Background(), "MintA")
	assert.Error(t, err)
}

func TestResolveRejectsUnmappedLabel(t *testing.T) {
	client := fakeQuoteClient{resp: &QuoteResponse{
		OutAmount: "500000",
		RoutePlan: []RoutePlanStep{{Label: "Unknown", AmmID: "PoolX"}},
	}}
	f := New(client, newIndex(), fakeWhitelist{}, LabelProgramIDs{}, nil)

	_, err := f.Resolve(context.Background(), "MintA")
	assert.Error(t, err)
}

func TestResolveRejectsUnregisteredProgram(t *testing.T) {
	client := fakeQuoteClient{resp: &QuoteResponse{
		OutAmount: "500000",
		RoutePlan: []RoutePlanStep{{Label: "Orca", AmmID: "PoolX"}},
	}}
	f := New(client, newIndex(), fakeWhitelist{}, LabelProgramIDs{"Orca": "ProgOrca"}, nil)

	_, err := f.Resolve(context.Background(), "MintA")
	assert.Error(t, err)
}
