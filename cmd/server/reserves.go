package main

import (
	"context"
	"fmt"

	projectrpc "github.com/aman-zulfiqar/solana-swap-indexer/internal/rpc"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/registry/protocols/orcalegacy"
	"github.com/gagliardetto/solana-go"
)

// chainReserveReader reads a pool's vault balances over JSON-RPC. This is
// the one piece of chain-read machinery the builder needs that the registry
// itself deliberately has no opinion about.
type chainReserveReader struct {
	rpc *projectrpc.Client
}

func newChainReserveReader(client *projectrpc.Client) *chainReserveReader {
	return &chainReserveReader{rpc: client}
}

func (r *chainReserveReader) Reserves(ctx context.Context, pool orcalegacy.Pool) (reserveA, reserveB uint64, err error) {
	a, err := r.tokenAccountBalance(ctx, pool.VaultA)
	if err != nil {
		return 0, 0, fmt.Errorf("read vault A: %w", err)
	}
	b, err := r.tokenAccountBalance(ctx, pool.VaultB)
	if err != nil {
		return 0, 0, fmt.Errorf("read vault B: %w", err)
	}
	return a, b, nil
}

func (r *chainReserveReader) tokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	var resp struct {
		Result struct {
			Value struct {
				Amount string `json:"amount"`
			} `json:"value"`
		} `json:"result"`
		Error *projectrpc.RPCError `json:"error"`
	}

	params := []any{account.String()}
	if err := r.rpc.Call(ctx, "getTokenAccountBalance", params, &resp); err != nil {
		return 0, err
	}
	if resp.Error != nil {
		return 0, fmt.Errorf("getTokenAccountBalance: %s", resp.Error.Message)
	}

	var amount uint64
	if _, err := fmt.Sscanf(resp.Result.Value.Amount, "%d", &amount); err != nil {
		return 0, fmt.Errorf("parse token balance %q: %w", resp.Result.Value.Amount, err)
	}
	return amount, nil
}

// ataTokenAccountResolver derives the associated token account for an
// owner/mint pair; it never creates accounts, since this service only ever
// hands back unsigned instructions.
type ataTokenAccountResolver struct{}

func newATATokenAccountResolver() ataTokenAccountResolver { return ataTokenAccountResolver{} }

func (ataTokenAccountResolver) Resolve(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token account: %w", err)
	}
	return addr, nil
}
