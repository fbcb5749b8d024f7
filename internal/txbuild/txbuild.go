// Package txbuild finalizes the instructions a registry.Builder produces
// into an unsigned, wire-ready transaction: it fetches a recent blockhash,
// compiles a v0 message with the caller's signer as fee payer, serializes
// it, and encodes the result. It never holds or touches a private key —
// signing and submission are someone else's concern.
package txbuild

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	projectrpc "github.com/aman-zulfiqar/solana-swap-indexer/internal/rpc"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// BlockhashSource abstracts the one chain read this package performs,
// mirroring the wallet's GetLatestBlockhash without reusing anything
// signing-related from it.
type BlockhashSource interface {
	GetLatestBlockhash(ctx context.Context, commitment ...string) (solana.Hash, error)
}

// RPCBlockhashSource adapts the project's JSON-RPC client to BlockhashSource.
type RPCBlockhashSource struct {
	rpc        *projectrpc.Client
	commitment string
}

// NewRPCBlockhashSource builds a BlockhashSource over an existing RPC client.
func NewRPCBlockhashSource(client *projectrpc.Client, commitment string) *RPCBlockhashSource {
	if commitment == "" {
		commitment = "processed"
	}
	return &RPCBlockhashSource{rpc: client, commitment: commitment}
}

// GetLatestBlockhash fetches the current blockhash over JSON-RPC.
func (s *RPCBlockhashSource) GetLatestBlockhash(ctx context.Context, commitment ...string) (solana.Hash, error) {
	level := s.commitment
	if len(commitment) > 0 {
		level = commitment[0]
	}

	var resp struct {
		Result struct {
			Value struct {
				Blockhash string `json:"blockhash"`
			} `json:"value"`
		} `json:"result"`
		Error *projectrpc.RPCError `json:"error"`
	}

	params := []any{map[string]any{"commitment": level}}
	if err := s.rpc.Call(ctx, "getLatestBlockhash", params, &resp); err != nil {
		return solana.Hash{}, fmt.Errorf("getLatestBlockhash failed: %w", err)
	}
	if resp.Error != nil {
		return solana.Hash{}, fmt.Errorf("getLatestBlockhash error: %s", resp.Error.Message)
	}

	hash, err := solana.HashFromBase58(resp.Result.Value.Blockhash)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("invalid blockhash format: %w", err)
	}
	return hash, nil
}

// Finalizer compiles builder output into an encoded, unsigned transaction.
type Finalizer struct {
	blockhash  BlockhashSource
	commitment string
}

// NewFinalizer creates a Finalizer reading blockhashes from src.
func NewFinalizer(src BlockhashSource, commitment string) *Finalizer {
	if commitment == "" {
		commitment = "processed"
	}
	return &Finalizer{blockhash: src, commitment: commitment}
}

// Finalize fetches a recent blockhash, compiles instructions into a v0
// message with payer as fee payer, serializes it and encodes it as enc.
func (f *Finalizer) Finalize(ctx context.Context, instructions []solana.Instruction, payer solana.PublicKey, enc string) (string, error) {
	if len(instructions) == 0 {
		return "", fmt.Errorf("txbuild: no instructions to finalize")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	blockhash, err := f.blockhash.GetLatestBlockhash(ctx, f.commitment)
	if err != nil {
		return "", fmt.Errorf("txbuild: fetch blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhash,
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return "", fmt.Errorf("txbuild: compile transaction: %w", err)
	}
	tx.Message.SetVersion(solana.MessageVersionV0)

	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("txbuild: serialize transaction: %w", err)
	}

	switch enc {
	case "base58":
		return base58.Encode(raw), nil
	case "base64", "":
		return base64.StdEncoding.EncodeToString(raw), nil
	default:
		return "", fmt.Errorf("txbuild: unsupported encoding %q", enc)
	}
}
