// Package models holds the data types that flow between the ingestion,
// extraction, validation and indexing stages.
package models

import "time"

// WSOLMint is the wrapped-SOL mint, hard-coded as the universal quote token.
const WSOLMint = "So11111111111111111111111111111111111111112"

// TransactionVersion discriminates legacy and v0 message encodings. Branch on
// this tag rather than inspecting which optional fields are set.
type TransactionVersion string

const (
	VersionLegacy TransactionVersion = "legacy"
	VersionV0     TransactionVersion = "v0"
)

// AccountKeyLookup is one entry of a v0 message's address-table lookups.
type AccountKeyLookup struct {
	AccountKey      string
	WritableIndexes []uint8
	ReadonlyIndexes []uint8
}

// CompiledInstruction is a single instruction referencing accounts by index
// into the owning message's account-key list.
type CompiledInstruction struct {
	ProgramIDIndex int
	Accounts       []int
	Data           []byte
}

// TxMessage is the account/instruction body of a TransactionRecord.
type TxMessage struct {
	AccountKeys         []string
	Instructions        []CompiledInstruction
	InnerInstructions   map[int][]CompiledInstruction // keyed by outer instruction index
	AddressTableLookups []AccountKeyLookup
	Version             TransactionVersion
}

// TokenBalance is a pre/post SPL token balance entry, keyed by account index.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	UIAmount     float64
	Raw          string
}

// TxMeta carries the execution side-effects of a transaction.
type TxMeta struct {
	Err               any
	PreBalances       []int64 // lamports, keyed by account index
	PostBalances      []int64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	LogMessages       []string
}

// TransactionRecord is the unit handed from the transaction source (A) to
// the trade extractor (B).
type TransactionRecord struct {
	Signature    string
	Slot         uint64
	Message      TxMessage
	Meta         TxMeta
	BlockTime    *int64
	ConnectionID string
}

// TradeType distinguishes a quote-to-base purchase from a base-to-quote sale.
type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// TradeCandidate is produced by the extractor (B) and consumed by the
// validator (C). It is ephemeral: it never outlives the pipeline call that
// produced it.
type TradeCandidate struct {
	Type            TradeType
	InputMint       string
	OutputMint      string
	InputAmountRaw  uint64
	OutputAmountRaw uint64
	ProgramID       string
	Pool            string
	Signature       string
	Slot            uint64
	InstructionIdx  int
	User            string
}

// MemeEvent is an auxiliary bonding-curve creation/update record emitted
// alongside a trade, used to recover a pool identifier the trade itself
// lacks.
type MemeEvent struct {
	Signature      string
	InstructionIdx int
	User           string
	BaseMint       string
	QuoteMint      string
	BondingCurve   string
}

// Observation is the value stored in the price index (D).
type Observation struct {
	Mint       string
	Pool       string
	AvgPrice   float64
	ProgramID  string
	Slot       string
	StoredAt   int64 // unix millis
	LastAccess int64 // unix millis
}

// SwapRequestType mirrors TradeType at the API boundary.
type SwapRequestType string

const (
	SwapBuy  SwapRequestType = "buy"
	SwapSell SwapRequestType = "sell"
)

// TxEncoding is the wire text encoding of a serialized unsigned transaction.
type TxEncoding string

const (
	EncodingBase64 TxEncoding = "base64"
	EncodingBase58 TxEncoding = "base58"
)

// QuoteOverride lets a caller pin the observation used to build a swap
// instead of reading the price index.
type QuoteOverride struct {
	Mint      string
	Pool      string
	AvgPrice  float64
	ProgramID string
	Slot      string
}

// SwapRequest is F's input, parsed and validated from POST /api/swap/:mint.
type SwapRequest struct {
	Mint        string
	Signer      string
	Type        SwapRequestType
	AmountIn    *float64
	AmountOut   *float64
	SlippageBps uint16
	Quote       *QuoteOverride
	Encoding    TxEncoding
}

// SwapResult is F's output.
type SwapResult struct {
	Success bool
	Tx      string
	Error   string
}

// SourceStats counts ingestion activity for a single Source; fields are
// updated with atomic operations and tolerate unsynchronized reads.
type SourceStats struct {
	TransactionsReceived int64
	Errors               int64
	StartTime            time.Time
}
