// Package aggregator implements the external price fallback (G): when the
// price index misses, it probes an external swap aggregator for a SOL-to-
// token quote, accepts only single-hop routes whose DEX label maps to a
// registered builder, and writes the resulting observation back into the
// index so subsequent lookups hit D directly.
package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aman-zulfiqar/solana-swap-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/priceindex"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ProbeAmountLamports is the fixed SOL amount (in lamports) quoted against
// the target mint to derive an average price.
const ProbeAmountLamports = 1_000_000_000 // 1 SOL

// ErrUnavailable wraps every rejection that means "no admissible price could
// be derived", as opposed to a transport-level failure reaching the
// aggregator itself.
var ErrUnavailable = errors.New("aggregator: price unavailable")

// Whitelist answers whether a program id has a registered builder; the same
// contract the validator and registry satisfy.
type Whitelist interface {
	HasBuilder(programID string) bool
}

// QuoteClient is the minimal aggregator-HTTP surface this package depends
// on; it is satisfied by Client below or any test double.
type QuoteClient interface {
	Quote(ctx context.Context, inputMint, outputMint string, amountRaw uint64) (*QuoteResponse, error)
}

// QuoteResponse is the subset of an aggregator quote response needed to
// derive an Observation.
type QuoteResponse struct {
	InputMint  string
	OutputMint string
	InAmount   string
	OutAmount  string
	RoutePlan  []RoutePlanStep
}

// RoutePlanStep is one hop of a route.
type RoutePlanStep struct {
	Label string
	AmmID string
}

// Client is an HTTP client for a Jupiter-shaped quote API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client; an empty baseURL defaults to the public
// aggregator endpoint.
func NewClient(baseURL string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.jup.ag/swap/v1"
	}
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 12 * time.Second}}
}

type httpError struct {
	status int
	body   []byte
}

func (e *httpError) Error() string {
	return fmt.Sprintf("aggregator http %d: %s", e.status, strings.TrimSpace(string(e.body)))
}

// Quote fetches a quote for amountRaw units of inputMint priced in outputMint.
func (c *Client) Quote(ctx context.Context, inputMint, outputMint string, amountRaw uint64) (*QuoteResponse, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatUint(amountRaw, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpError{status: resp.StatusCode, body: body}
	}

	var wire struct {
		InputMint  string `json:"inputMint"`
		OutputMint string `json:"outputMint"`
		InAmount   string `json:"inAmount"`
		OutAmount  string `json:"outAmount"`
		RoutePlan  []struct {
			SwapInfo struct {
				AmmKey string `json:"ammKey"`
				Label  string `json:"label"`
			} `json:"swapInfo"`
		} `json:"routePlan"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode aggregator quote: %w", err)
	}

	out := &QuoteResponse{InputMint: wire.InputMint, OutputMint: wire.OutputMint, InAmount: wire.InAmount, OutAmount: wire.OutAmount}
	for _, step := range wire.RoutePlan {
		out.RoutePlan = append(out.RoutePlan, RoutePlanStep{Label: step.SwapInfo.Label, AmmID: step.SwapInfo.AmmKey})
	}
	return out, nil
}

// LabelProgramIDs maps an aggregator route label to the on-chain program id
// the registry expects; unmapped or unregistered labels are rejected.
type LabelProgramIDs map[string]string

// Fallback resolves a missing or invalid observation by querying an
// external aggregator and writing the result back into the index.
type Fallback struct {
	client    QuoteClient
	index     *priceindex.Index
	whitelist Whitelist
	labels    LabelProgramIDs
	group     singleflight.Group
	logger    *logrus.Logger
}

// New creates a Fallback. logger may be nil.
func New(client QuoteClient, index *priceindex.Index, whitelist Whitelist, labels LabelProgramIDs, logger *logrus.Logger) *Fallback {
	if logger == nil {
		logger = logrus.New()
	}
	return &Fallback{client: client, index: index, whitelist: whitelist, labels: labels, logger: logger}
}

// Resolve probes for mint's price in SOL and, on a single-hop route whose
// label maps to a registered builder, stores and returns the observation.
// Concurrent calls for the same mint are deduplicated onto one probe.
func (f *Fallback) Resolve(ctx context.Context, mint string) (models.Observation, error) {
	v, err, _ := f.group.Do(mint, func() (any, error) {
		return f.resolve(ctx, mint)
	})
	if err != nil {
		return models.Observation{}, err
	}
	return v.(models.Observation), nil
}

func (f *Fallback) resolve(ctx context.Context, mint string) (models.Observation, error) {
	quote, err := f.client.Quote(ctx, models.WSOLMint, mint, ProbeAmountLamports)
	if err != nil {
		return models.Observation{}, fmt.Errorf("aggregator: quote failed: %w", err)
	}

	if len(quote.RoutePlan) != 1 {
		return models.Observation{}, fmt.Errorf("%w: multi-hop route (%d hops) for %s", ErrUnavailable, len(quote.RoutePlan), mint)
	}
	hop := quote.RoutePlan[0]

	programID, ok := f.labels[hop.Label]
	if !ok {
		return models.Observation{}, fmt.Errorf("%w: unmapped route label %q", ErrUnavailable, hop.Label)
	}
	if !f.whitelist.HasBuilder(programID) {
		return models.Observation{}, fmt.Errorf("%w: programId %q has no registered builder", ErrUnavailable, programID)
	}

	outAmount, err := strconv.ParseUint(quote.OutAmount, 10, 64)
	if err != nil || outAmount == 0 {
		return models.Observation{}, fmt.Errorf("%w: invalid outAmount %q", ErrUnavailable, quote.OutAmount)
	}
	// Divided via shopspring/decimal, not plain float64, to avoid drift on
	// the raw-lamport ratio before it's stored as the observation's price.
	avgPrice, _ := decimal.NewFromInt(ProbeAmountLamports).
		DivRound(decimal.NewFromInt(int64(outAmount)), 18).
		Float64()

	obs := models.Observation{
		Mint:      mint,
		Pool:      hop.AmmID,
		AvgPrice:  avgPrice,
		ProgramID: programID,
	}
	f.index.Put(obs)
	f.logger.WithFields(logrus.Fields{"mint": mint, "pool": obs.Pool, "avgPrice": avgPrice}).Info("resolved price via external fallback")
	return obs, nil
}
