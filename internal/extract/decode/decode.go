// Package decode is the parser library the extractor treats as a black box:
// "given a versioned transaction record, produce a list of decoded trades
// and a list of decoded meme events." The program-id/discriminator
// classification here mirrors solanaswap-go's Parser, generalized from a
// fixed Raydium/Orca/Meteora/PumpFun set to any program in a configured
// whitelist.
package decode

import (
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/models"
)

// TokenProgramID and Token2022ProgramID are the two SPL token program
// variants; a transfer from either counts as a balance-moving instruction.
const (
	TokenProgramID     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
)

const (
	transferDiscriminator        = 3
	transferCheckedDiscriminator = 12
)

// Decoder classifies a transaction's instructions against a whitelist of
// swap program ids and reconstructs trade/meme-event candidates.
type Decoder struct {
	whitelist map[string]bool
}

// New creates a Decoder that recognizes instructions from the given set of
// program identifiers as swaps.
func New(programWhitelist []string) *Decoder {
	w := make(map[string]bool, len(programWhitelist))
	for _, p := range programWhitelist {
		w[p] = true
	}
	return &Decoder{whitelist: w}
}

// Result is the decoder's output for one transaction.
type Result struct {
	Trades     []models.TradeCandidate
	MemeEvents []models.MemeEvent
}

// Decode classifies every top-level and inner instruction of rec and
// reconstructs trade and meme-event candidates from whitelisted programs.
// It never panics on malformed input; callers relying on fault isolation
// should still wrap this in a recover barrier (see extract.Extract).
func (d *Decoder) Decode(rec models.TransactionRecord) Result {
	var res Result

	for i, ix := range rec.Message.Instructions {
		d.decodeInstruction(rec, i, ix, &res)
		for _, inner := range rec.Message.InnerInstructions[i] {
			d.decodeInstruction(rec, i, inner, &res)
		}
	}

	return res
}

func (d *Decoder) decodeInstruction(rec models.TransactionRecord, idx int, ix models.CompiledInstruction, res *Result) {
	progID := programID(rec, ix)
	if progID == "" {
		return
	}

	if bc, ok := isBondingCurveEvent(rec, ix); ok {
		res.MemeEvents = append(res.MemeEvents, models.MemeEvent{
			Signature:      rec.Signature,
			InstructionIdx: idx,
			User:           signer(rec),
			BondingCurve:   bc,
		})
		return
	}

	if !d.whitelist[progID] {
		return
	}

	if !isTransferLike(ix) {
		return
	}

	candidate, ok := buildCandidate(rec, idx, ix, progID)
	if ok {
		res.Trades = append(res.Trades, candidate)
	}
}

func programID(rec models.TransactionRecord, ix models.CompiledInstruction) string {
	if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(rec.Message.AccountKeys) {
		return ""
	}
	return rec.Message.AccountKeys[ix.ProgramIDIndex]
}

func signer(rec models.TransactionRecord) string {
	if len(rec.Message.AccountKeys) == 0 {
		return ""
	}
	return rec.Message.AccountKeys[0]
}

// isTransferLike recognizes Token Program Transfer (discriminator 3) and
// TransferChecked (discriminator 12), the two instruction shapes that move
// an observable balance — mirrors solanaswap-go's isTransfer/isTransferCheck.
func isTransferLike(ix models.CompiledInstruction) bool {
	if len(ix.Data) == 0 {
		return false
	}
	switch ix.Data[0] {
	case transferDiscriminator:
		return len(ix.Accounts) >= 3 && len(ix.Data) >= 9
	case transferCheckedDiscriminator:
		return len(ix.Accounts) >= 4 && len(ix.Data) >= 9
	default:
		return false
	}
}

// isBondingCurveEvent recognizes a launchpad-style program log/account
// update that carries a bonding-curve account but is not itself a trade.
// A real deployment wires one matcher per launchpad program id; this
// generalizes the pattern to any instruction tagged with the sentinel
// account role "bondingCurve" by the upstream decoder.
func isBondingCurveEvent(rec models.TransactionRecord, ix models.CompiledInstruction) (string, bool) {
	const bondingCurveMarker = 200 // reserved discriminator range, see original_source notes
	if len(ix.Data) == 0 || ix.Data[0] != bondingCurveMarker {
		return "", false
	}
	if len(ix.Accounts) == 0 {
		return "", false
	}
	idx := ix.Accounts[0]
	if idx < 0 || idx >= len(rec.Message.AccountKeys) {
		return "", false
	}
	return rec.Message.AccountKeys[idx], true
}

func buildCandidate(rec models.TransactionRecord, idx int, ix models.CompiledInstruction, progID string) (models.TradeCandidate, bool) {
	if len(ix.Accounts) < 3 {
		return models.TradeCandidate{}, false
	}
	srcIdx, dstIdx := ix.Accounts[0], ix.Accounts[1]
	if srcIdx < 0 || srcIdx >= len(rec.Message.AccountKeys) || dstIdx < 0 || dstIdx >= len(rec.Message.AccountKeys) {
		return models.TradeCandidate{}, false
	}

	inputMint, inputAmt := balanceForAccount(rec, srcIdx, true)
	outputMint, outputAmt := balanceForAccount(rec, dstIdx, false)

	tradeType := models.TradeBuy
	if inputMint != models.WSOLMint && outputMint == models.WSOLMint {
		tradeType = models.TradeSell
	}

	return models.TradeCandidate{
		Type:            tradeType,
		InputMint:       inputMint,
		OutputMint:      outputMint,
		InputAmountRaw:  inputAmt,
		OutputAmountRaw: outputAmt,
		ProgramID:       progID,
		Signature:       rec.Signature,
		Slot:            rec.Slot,
		InstructionIdx:  idx,
		User:            signer(rec),
	}, true
}

// balanceForAccount looks up the token balance for the given account index,
// returning its mint and raw amount: the pre-transaction balance when pre is
// true, else the post-transaction balance. No pre/post delta is computed; the
// other side is consulted only to fill in a missing mint.
func balanceForAccount(rec models.TransactionRecord, accountIdx int, pre bool) (mint string, amount uint64) {
	pick := rec.Meta.PostTokenBalances
	other := rec.Meta.PreTokenBalances
	if pre {
		pick, other = other, pick
	}
	for _, b := range pick {
		if b.AccountIndex != accountIdx {
			continue
		}
		mint = b.Mint
		amount = uint64FromUIString(b.Raw)
	}
	for _, b := range other {
		if b.AccountIndex == accountIdx && mint == "" {
			mint = b.Mint
		}
	}
	return mint, amount
}

func uint64FromUIString(s string) uint64 {
	var n uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + uint64(c-'0')
	}
	return n
}
