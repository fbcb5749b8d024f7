package txbuild

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

type fakeBlockhashSource struct {
	hash solana.Hash
	err  error
}

func (f fakeBlockhashSource) GetLatestBlockhash(ctx context.Context, commitment ...string) (solana.Hash, error) {
	return f.hash, f.err
}

func TestFinalizeProducesDecodableBase64(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	dest := solana.NewWallet().PublicKey()
	ix := solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{
		{PublicKey: payer, IsWritable: true, IsSigner: true},
		{PublicKey: dest, IsWritable: true, IsSigner: false},
	}, []byte{2, 0, 0, 0})

	f := NewFinalizer(fakeBlockhashSource{hash: solana.Hash{}}, "processed")
	encoded, err := f.Finalize(context.Background(), []solana.Instruction{ix}, payer, "base64")
	require.NoError(t, err)
	require.NotEmpty(t, encoded)
}

func TestFinalizeRejectsEmptyInstructions(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	f := NewFinalizer(fakeBlockhashSource{}, "processed")
	_, err := f.Finalize(context.Background(), nil, payer, "base64")
	require.Error(t, err)
}

func TestFinalizeRejectsUnknownEncoding(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	dest := solana.NewWallet().PublicKey()
	ix := solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{
		{PublicKey: payer, IsWritable: true, IsSigner: true},
		{PublicKey: dest, IsWritable: true, IsSigner: false},
	}, []byte{2, 0, 0, 0})

	f := NewFinalizer(fakeBlockhashSource{hash: solana.Hash{}}, "processed")
	_, err := f.Finalize(context.Background(), []solana.Instruction{ix}, payer, "xml")
	require.Error(t, err)
}
