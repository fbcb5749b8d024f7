// Package orcalegacy is the registry.Builder implementation for Orca's
// legacy constant-product swap program, adapted from the pool-registry and
// instruction-assembly conventions of a constant-product AMM client: pools
// are loaded from a static JSON configuration, reserves are read through an
// injected collaborator (the chain-read mechanics are out of scope per the
// registry's own contract), and swap output follows the x*y=k formula with
// fee applied to the input leg.
package orcalegacy

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"os"

	"github.com/aman-zulfiqar/solana-swap-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/registry"
	"github.com/gagliardetto/solana-go"
)

// ProgramID is Orca's legacy constant-product swap program.
const ProgramID = "9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP"

// Market is the tag this builder registers under.
const Market = "OrcaLegacy"

// PoolConfig is one entry of the static JSON pool configuration file.
type PoolConfig struct {
	Name           string `json:"name"`
	SwapAccount    string `json:"swap_account"`
	Authority      string `json:"authority"`
	TokenMintA     string `json:"token_mint_a"`
	TokenMintB     string `json:"token_mint_b"`
	VaultA         string `json:"vault_a"`
	VaultB         string `json:"vault_b"`
	PoolMint       string `json:"pool_mint"`
	FeeAccount     string `json:"fee_account"`
	HostFeeAccount string `json:"host_fee_account,omitempty"`
	FeeNumerator   uint64 `json:"fee_numerator"`
	FeeDenominator uint64 `json:"fee_denominator"`
}

// Pool is a parsed, ready-to-use pool configuration.
type Pool struct {
	Name           string
	SwapAccount    solana.PublicKey
	Authority      solana.PublicKey
	TokenMintA     solana.PublicKey
	TokenMintB     solana.PublicKey
	VaultA         solana.PublicKey
	VaultB         solana.PublicKey
	PoolMint       solana.PublicKey
	FeeAccount     solana.PublicKey
	HostFeeAccount *solana.PublicKey
	FeeNumerator   uint64
	FeeDenominator uint64
}

// ReserveReader reads a pool's current vault balances. Its mechanics (an
// RPC call, a cached snapshot, or a simulated read) are the builder's own
// concern, not the registry's.
type ReserveReader interface {
	Reserves(ctx context.Context, pool Pool) (reserveA, reserveB uint64, err error)
}

// TokenAccountResolver derives (and, if necessary, would create) the
// signer's token account for a mint. Only derivation is used here; account
// creation is an execution-time concern out of scope for an unsigned-tx
// builder.
type TokenAccountResolver interface {
	Resolve(owner, mint solana.PublicKey) (solana.PublicKey, error)
}

// Builder is the Orca-legacy registry.Builder.
type Builder struct {
	pools     []Pool
	reserves  ReserveReader
	tokenAccs TokenAccountResolver
}

// LoadPools reads and validates a JSON pool-configuration file.
func LoadPools(path string) ([]Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pool config: %w", err)
	}
	var configs []PoolConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	pools := make([]Pool, 0, len(configs))
	for i, cfg := range configs {
		p, err := parseConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("pool %d (%s): %w", i, cfg.Name, err)
		}
		pools = append(pools, p)
	}
	return pools, nil
}

func parseConfig(cfg PoolConfig) (Pool, error) {
	if cfg.FeeDenominator == 0 {
		return Pool{}, fmt.Errorf("fee_denominator must be > 0")
	}
	p := Pool{
		Name:           cfg.Name,
		SwapAccount:    solana.MustPublicKeyFromBase58(cfg.SwapAccount),
		Authority:      solana.MustPublicKeyFromBase58(cfg.Authority),
		TokenMintA:     solana.MustPublicKeyFromBase58(cfg.TokenMintA),
		TokenMintB:     solana.MustPublicKeyFromBase58(cfg.TokenMintB),
		VaultA:         solana.MustPublicKeyFromBase58(cfg.VaultA),
		VaultB:         solana.MustPublicKeyFromBase58(cfg.VaultB),
		PoolMint:       solana.MustPublicKeyFromBase58(cfg.PoolMint),
		FeeAccount:     solana.MustPublicKeyFromBase58(cfg.FeeAccount),
		FeeNumerator:   cfg.FeeNumerator,
		FeeDenominator: cfg.FeeDenominator,
	}
	if cfg.HostFeeAccount != "" {
		h := solana.MustPublicKeyFromBase58(cfg.HostFeeAccount)
		p.HostFeeAccount = &h
	}
	return p, nil
}

// New creates a Builder over the given pools. reserves and tokenAccs may be
// swapped for test doubles.
func New(pools []Pool, reserves ReserveReader, tokenAccs TokenAccountResolver) *Builder {
	return &Builder{pools: pools, reserves: reserves, tokenAccs: tokenAccs}
}

// Register wires this builder into a registry.Registry under ProgramID.
func (b *Builder) Register(r *registry.Registry) {
	r.Register(ProgramID, Market, b)
}

func (b *Builder) findPool(mint string) (Pool, bool) {
	for _, p := range b.pools {
		if p.TokenMintA.String() == mint || p.TokenMintB.String() == mint {
			return p, true
		}
	}
	return Pool{}, false
}

// Build assembles the swap instruction (plus the uniform build-params
// contract) for params.Mint against the pool that trades it.
func (b *Builder) Build(ctx context.Context, params registry.BuildParams) ([]solana.Instruction, error) {
	pool, ok := b.findPool(params.Mint)
	if !ok {
		return nil, fmt.Errorf("orcalegacy: no pool for mint %s", params.Mint)
	}

	inputMint, outputMint := inputOutputMints(pool, params)

	reserveA, reserveB, err := b.reserves.Reserves(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("orcalegacy: read reserves: %w", err)
	}
	reserveIn, reserveOut := reserveA, reserveB
	aToBSwap := inputMint.Equals(pool.TokenMintA)
	if !aToBSwap {
		reserveIn, reserveOut = reserveB, reserveA
	}

	amountOut, _, err := calculateSwapOutput(params.InputAmount, reserveIn, reserveOut, pool.FeeNumerator, pool.FeeDenominator)
	if err != nil {
		return nil, fmt.Errorf("orcalegacy: %w", err)
	}
	minOut := applySlippage(amountOut, params.SlippageBps)

	userIn, err := b.tokenAccs.Resolve(params.Signer, inputMint)
	if err != nil {
		return nil, fmt.Errorf("orcalegacy: resolve input token account: %w", err)
	}
	userOut, err := b.tokenAccs.Resolve(params.Signer, outputMint)
	if err != nil {
		return nil, fmt.Errorf("orcalegacy: resolve output token account: %w", err)
	}

	ix, err := buildSwapInstruction(pool, params.InputAmount, minOut, params.Signer, userIn, userOut, aToBSwap)
	if err != nil {
		return nil, err
	}

	return []solana.Instruction{ix}, nil
}

func inputOutputMints(pool Pool, params registry.BuildParams) (input, output solana.PublicKey) {
	target := solana.MustPublicKeyFromBase58(params.Mint)
	other := pool.TokenMintA
	if pool.TokenMintB.Equals(target) {
		other = pool.TokenMintA
	} else {
		other = pool.TokenMintB
	}
	if params.Type == models.SwapBuy {
		return other, target
	}
	return target, other
}

func buildSwapInstruction(pool Pool, amountIn, minAmountOut uint64, signer, userIn, userOut solana.PublicKey, aToB bool) (solana.Instruction, error) {
	poolSource, poolDest := pool.VaultA, pool.VaultB
	if !aToB {
		poolSource, poolDest = pool.VaultB, pool.VaultA
	}

	accounts := []*solana.AccountMeta{
		{PublicKey: pool.SwapAccount, IsWritable: true, IsSigner: false},
		{PublicKey: pool.Authority, IsWritable: false, IsSigner: false},
		{PublicKey: signer, IsWritable: false, IsSigner: true},
		{PublicKey: userIn, IsWritable: true, IsSigner: false},
		{PublicKey: poolSource, IsWritable: true, IsSigner: false},
		{PublicKey: poolDest, IsWritable: true, IsSigner: false},
		{PublicKey: userOut, IsWritable: true, IsSigner: false},
		{PublicKey: pool.PoolMint, IsWritable: true, IsSigner: false},
		{PublicKey: pool.FeeAccount, IsWritable: true, IsSigner: false},
		{PublicKey: solana.TokenProgramID, IsWritable: false, IsSigner: false},
	}
	if pool.HostFeeAccount != nil {
		accounts = append(accounts, &solana.AccountMeta{PublicKey: *pool.HostFeeAccount, IsWritable: true, IsSigner: false})
	}

	data := make([]byte, 17)
	data[0] = 1
	binary.LittleEndian.PutUint64(data[1:9], amountIn)
	binary.LittleEndian.PutUint64(data[9:17], minAmountOut)

	return solana.NewInstruction(pool.SwapAccount, accounts, data), nil
}

// calculateSwapOutput applies the constant-product formula with fee taken
// from the input leg, using math/big throughout to avoid uint64 overflow.
func calculateSwapOutput(amountIn, reserveIn, reserveOut, feeNumerator, feeDenominator uint64) (uint64, float64, error) {
	if amountIn == 0 || reserveIn == 0 || reserveOut == 0 {
		return 0, 0, fmt.Errorf("invalid inputs: amounts must be > 0")
	}
	if feeDenominator == 0 {
		return 0, 0, fmt.Errorf("feeDenominator cannot be 0")
	}

	amountInBig := new(big.Int).SetUint64(amountIn)
	feeMultiplier := new(big.Int).SetUint64(feeDenominator - feeNumerator)
	feeDenom := new(big.Int).SetUint64(feeDenominator)

	amountInAfterFee := new(big.Int).Mul(amountInBig, feeMultiplier)
	amountInAfterFee.Div(amountInAfterFee, feeDenom)

	reserveOutBig := new(big.Int).SetUint64(reserveOut)
	reserveInBig := new(big.Int).SetUint64(reserveIn)

	numerator := new(big.Int).Mul(amountInAfterFee, reserveOutBig)
	denominator := new(big.Int).Add(reserveInBig, amountInAfterFee)
	amountOutBig := new(big.Int).Div(numerator, denominator)

	if !amountOutBig.IsUint64() {
		return 0, 0, fmt.Errorf("output amount overflow")
	}
	amountOut := amountOutBig.Uint64()

	idealRate := float64(reserveOut) / float64(reserveIn)
	executionRate := float64(amountOut) / float64(amountIn)
	priceImpact := 0.0
	if idealRate > 0 {
		priceImpact = math.Max(0, 1-(executionRate/idealRate))
	}
	return amountOut, priceImpact, nil
}

func applySlippage(amountOut uint64, slippageBps uint16) uint64 {
	if slippageBps >= 10000 {
		return 0
	}
	slippageFactor := 10000 - uint64(slippageBps)
	amountBig := new(big.Int).SetUint64(amountOut)
	factor := new(big.Int).SetUint64(slippageFactor)
	denom := new(big.Int).SetUint64(10000)
	result := new(big.Int).Mul(amountBig, factor)
	result.Div(result, denom)
	return result.Uint64()
}
