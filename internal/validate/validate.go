// Package validate implements the trade validator (C): it filters and
// repairs trade candidates produced by the extractor, reducing each either
// to an Observation or a typed, counted rejection.
package validate

import (
	"fmt"
	"math"

	"github.com/aman-zulfiqar/solana-swap-indexer/internal/models"
	"github.com/shopspring/decimal"
)

// balanceDeltaThresholdLamports is the minimum absolute SOL-balance change
// considered significant enough to drive the step-4 fallback.
const balanceDeltaThresholdLamports = 1_000_000

// Rejection is a typed, human-readable reason a candidate was dropped. It is
// counted by callers but never propagated further.
type Rejection struct {
	Candidate models.TradeCandidate
	Reason    string
}

// Whitelist answers whether a program id has a registered builder; it is
// the same set §4.3 calls the whitelist and §4.5 calls supportedProgramIds.
type Whitelist interface {
	HasBuilder(programID string) bool
}

// Validator runs the seven-step pipeline over one transaction's candidates.
type Validator struct {
	whitelist Whitelist
}

// New creates a Validator consulting whitelist for the final admission
// check (step 7).
func New(whitelist Whitelist) *Validator {
	return &Validator{whitelist: whitelist}
}

// Validate runs candidates (all drawn from one TransactionRecord, tx) through
// the seven ordered steps and returns the admitted observations plus a
// rejection per dropped candidate.
func (v *Validator) Validate(candidates []models.TradeCandidate, tx models.TransactionRecord, memeEvents []models.MemeEvent) ([]models.Observation, []Rejection) {
	var observations []models.Observation
	var rejections []Rejection

	// Step 1: SOL-SOL filter.
	filtered := make([]models.TradeCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.InputMint == models.WSOLMint && c.OutputMint == models.WSOLMint {
			rejections = append(rejections, Rejection{c, "sol-sol noise"})
			continue
		}
		filtered = append(filtered, c)
	}

	for i, c := range filtered {
		obs, reason := v.validateOne(c, filtered, i, tx, memeEvents)
		if reason != "" {
			rejections = append(rejections, Rejection{c, reason})
			continue
		}
		observations = append(observations, obs)
	}

	return observations, rejections
}

func (v *Validator) validateOne(c models.TradeCandidate, siblings []models.TradeCandidate, idx int, tx models.TransactionRecord, memeEvents []models.MemeEvent) (models.Observation, string) {
	// Step 2: amount repair.
	c = repairAmounts(c, siblings, idx)

	// Step 3: average-price computation.
	avgPrice := computeAvgPrice(c)

	// Step 4: balance-delta fallback.
	if avgPrice == 0 {
		avgPrice = balanceDeltaFallback(c, tx)
	}

	// Step 5: pool resolution.
	pool := c.Pool
	if pool == "" {
		pool = resolvePool(c, memeEvents)
	}

	// Step 6: mint resolution.
	mint := c.OutputMint
	if mint == models.WSOLMint || mint == "" {
		mint = c.InputMint
	}
	if mint == "" || mint == models.WSOLMint {
		mint = borrowMint(siblings, idx)
	}

	// Step 7: final validation.
	if mint == "" || mint == models.WSOLMint {
		return models.Observation{}, "missing mint"
	}
	if pool == "" {
		return models.Observation{}, "missing pool"
	}
	if !(avgPrice > 0) {
		return models.Observation{}, "non-positive avgPrice"
	}
	if c.ProgramID == "" || !v.whitelist.HasBuilder(c.ProgramID) {
		return models.Observation{}, fmt.Sprintf("programId %q not in whitelist", c.ProgramID)
	}
	if tx.Slot == 0 {
		return models.Observation{}, "missing slot"
	}

	return models.Observation{
		Mint:      mint,
		Pool:      pool,
		AvgPrice:  avgPrice,
		ProgramID: c.ProgramID,
		Slot:      fmt.Sprintf("%d", tx.Slot),
	}, ""
}

// repairAmounts borrows a missing input or output amount from a sibling
// candidate sharing at least one mint; failing that, from the first sibling
// with non-zero amounts.
func repairAmounts(c models.TradeCandidate, siblings []models.TradeCandidate, idx int) models.TradeCandidate {
	if c.InputAmountRaw != 0 && c.OutputAmountRaw != 0 {
		return c
	}

	for i, s := range siblings {
		if i == idx || (s.InputAmountRaw == 0 && s.OutputAmountRaw == 0) {
			continue
		}
		sharesMint := s.InputMint == c.InputMint || s.InputMint == c.OutputMint ||
			s.OutputMint == c.InputMint || s.OutputMint == c.OutputMint
		if !sharesMint {
			continue
		}
		if c.InputAmountRaw == 0 {
			c.InputAmountRaw = s.InputAmountRaw
		}
		if c.OutputAmountRaw == 0 {
			c.OutputAmountRaw = s.OutputAmountRaw
		}
		return c
	}

	for i, s := range siblings {
		if i == idx || (s.InputAmountRaw == 0 && s.OutputAmountRaw == 0) {
			continue
		}
		if c.InputAmountRaw == 0 {
			c.InputAmountRaw = s.InputAmountRaw
		}
		if c.OutputAmountRaw == 0 {
			c.OutputAmountRaw = s.OutputAmountRaw
		}
		return c
	}

	return c
}

func computeAvgPrice(c models.TradeCandidate) float64 {
	if c.InputAmountRaw == 0 || c.OutputAmountRaw == 0 {
		return 0
	}
	in := decimal.NewFromInt(int64(c.InputAmountRaw))
	out := decimal.NewFromInt(int64(c.OutputAmountRaw))
	if c.Type == models.TradeSell {
		return rawRatio(out, in)
	}
	return rawRatio(in, out)
}

// rawRatio divides two raw token amounts with shopspring/decimal rather than
// plain float64, avoiding drift on the large integer ratios raw lamport and
// token amounts produce.
func rawRatio(numerator, denominator decimal.Decimal) float64 {
	f, _ := numerator.DivRound(denominator, 18).Float64()
	return f
}

// balanceDeltaFallback scans pre/post SOL balances for a significant delta
// and pairs it with the target mint's token-balance delta.
func balanceDeltaFallback(c models.TradeCandidate, tx models.TransactionRecord) float64 {
	targetMint := c.OutputMint
	if targetMint == models.WSOLMint || targetMint == "" {
		targetMint = c.InputMint
	}
	if targetMint == "" || targetMint == models.WSOLMint {
		return 0
	}

	var solDelta int64
	found := false
	n := len(tx.Meta.PreBalances)
	if len(tx.Meta.PostBalances) < n {
		n = len(tx.Meta.PostBalances)
	}
	for i := 0; i < n; i++ {
		d := tx.Meta.PostBalances[i] - tx.Meta.PreBalances[i]
		if d < 0 {
			d = -d
		}
		if d > balanceDeltaThresholdLamports {
			solDelta = tx.Meta.PostBalances[i] - tx.Meta.PreBalances[i]
			found = true
			break
		}
	}
	if !found {
		return 0
	}

	var tokenDelta float64
	foundToken := false
	pre := map[int]float64{}
	for _, b := range tx.Meta.PreTokenBalances {
		if b.Mint == targetMint {
			pre[b.AccountIndex] = b.UIAmount
		}
	}
	for _, b := range tx.Meta.PostTokenBalances {
		if b.Mint != targetMint {
			continue
		}
		d := b.UIAmount - pre[b.AccountIndex]
		if d != 0 {
			tokenDelta = d
			foundToken = true
			break
		}
	}
	if !foundToken || tokenDelta == 0 {
		return 0
	}

	return math.Abs(float64(solDelta)) / math.Abs(tokenDelta)
}

// resolvePool joins c against memeEvents in three progressively looser
// steps, per §4.3 step 5.
func resolvePool(c models.TradeCandidate, memeEvents []models.MemeEvent) string {
	// (i) same signature and same instruction index.
	for _, m := range memeEvents {
		if m.Signature == c.Signature && m.InstructionIdx == c.InstructionIdx && m.BondingCurve != "" {
			return m.BondingCurve
		}
	}
	// (ii) same user and base/quote pair matches the trade's mint pair.
	for _, m := range memeEvents {
		if m.User == c.User && m.BondingCurve != "" {
			pairMatches := (m.BaseMint == c.InputMint && m.QuoteMint == c.OutputMint) ||
				(m.BaseMint == c.OutputMint && m.QuoteMint == c.InputMint)
			if pairMatches {
				return m.BondingCurve
			}
		}
	}
	// (iii) same user, any pair — flagged in the design notes as capable of
	// over-attribution when a user submits several trades in one block;
	// kept as specified, not changed.
	for _, m := range memeEvents {
		if m.User == c.User && m.BondingCurve != "" {
			return m.BondingCurve
		}
	}
	return ""
}

func borrowMint(siblings []models.TradeCandidate, idx int) string {
	for i, s := range siblings {
		if i == idx {
			continue
		}
		if s.OutputMint != "" && s.OutputMint != models.WSOLMint {
			return s.OutputMint
		}
		if s.InputMint != "" && s.InputMint != models.WSOLMint {
			return s.InputMint
		}
	}
	return ""
}
