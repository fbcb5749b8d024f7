package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/aman-zulfiqar/solana-swap-indexer/internal/aggregator"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/flags"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/priceindex"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/registry"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/txbuild"
	"github.com/gagliardetto/solana-go"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// IngestStats names and reports one transaction source's counters for the
// health endpoint.
type IngestStats interface {
	Name() string
	Stats() models.SourceStats
}

// Handlers bundles every collaborator an HTTP request may need.
type Handlers struct {
	Index      *priceindex.Index
	Registry   *registry.Registry
	Aggregator *aggregator.Fallback
	Finalizer  *txbuild.Finalizer
	Flags      *flags.Store
	Ingest     []IngestStats
	DevMode    bool
	Logger     *logrus.Logger
}

func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// Health reports index occupancy and every wired source's counters.
func (h *Handlers) Health(c echo.Context) error {
	st := h.Index.Stats()
	resp := HealthResponse{
		OK: true,
		Index: IndexStats{
			Entries:      st.Entries,
			UsageBytes:   st.UsageBytes,
			CeilingBytes: st.CeilingBytes,
			UsagePercent: st.UsagePercent,
		},
	}
	for _, s := range h.Ingest {
		stats := s.Stats()
		resp.Ingest = append(resp.Ingest, SourceStat{
			Name:                 s.Name(),
			TransactionsReceived: stats.TransactionsReceived,
			Errors:               stats.Errors,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// Quote consults the price index and, on a miss, the external fallback.
func (h *Handlers) Quote(c echo.Context) error {
	mint := strings.TrimSpace(c.Param("mint"))
	if mint == "" {
		return h.err(c, http.StatusBadRequest, "mint is required", nil)
	}

	if obs, ok := h.Index.Get(mint); ok && obs.AvgPrice > 0 {
		return c.JSON(http.StatusOK, toQuoteResponse(obs))
	}

	if h.Aggregator == nil {
		return h.err(c, http.StatusNotFound, "quote not found", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	obs, err := h.Aggregator.Resolve(ctx, mint)
	if err != nil {
		if errors.Is(err, aggregator.ErrUnavailable) {
			return h.err(c, http.StatusNotFound, "quote not found", nil)
		}
		return h.err(c, http.StatusInternalServerError, "failed to resolve quote", map[string]any{"err": err.Error()})
	}
	return c.JSON(http.StatusOK, toQuoteResponse(obs))
}

func toQuoteResponse(obs models.Observation) QuoteResponse {
	return QuoteResponse{Mint: obs.Mint, Pool: obs.Pool, AvgPrice: obs.AvgPrice, ProgramID: obs.ProgramID, Slot: obs.Slot}
}

// Swap validates a swap request, resolves an observation (override, index,
// or external fallback), dispatches to the registered builder, and
// finalizes the result into an unsigned, encoded transaction.
func (h *Handlers) Swap(c echo.Context) error {
	mint := strings.TrimSpace(c.Param("mint"))
	if mint == "" {
		return h.err(c, http.StatusBadRequest, "mint is required", nil)
	}

	var body SwapRequestBody
	if err := c.Bind(&body); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}

	req, verr := parseSwapRequest(mint, body)
	if verr != "" {
		return h.err(c, http.StatusBadRequest, verr, nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	obs, err := h.resolveObservation(ctx, req)
	if err != nil {
		if errors.Is(err, aggregator.ErrUnavailable) {
			return h.err(c, http.StatusNotFound, "quote not found", nil)
		}
		return h.err(c, http.StatusInternalServerError, "failed to resolve quote", map[string]any{"err": err.Error()})
	}

	if !h.Registry.HasBuilder(obs.ProgramID) {
		return c.JSON(http.StatusBadRequest, UnsupportedProtocolResponse{
			Error:               "unsupported protocol",
			Code:                http.StatusBadRequest,
			SupportedProtocols: h.Registry.SupportedProgramIDs(),
		})
	}

	inputAmount, outputAmount := projectAmounts(req, obs.AvgPrice)

	signer, err := solana.PublicKeyFromBase58(req.Signer)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid signer", nil)
	}

	instructions, err := h.Registry.Build(ctx, obs.ProgramID, registry.BuildParams{
		Mint:         mint,
		Signer:       signer,
		Type:         req.Type,
		InputAmount:  inputAmount,
		OutputAmount: outputAmount,
		SlippageBps:  req.SlippageBps,
		Observation:  obs,
	})
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to build swap instructions", map[string]any{"err": err.Error()})
	}

	encoding := string(req.Encoding)
	tx, err := h.Finalizer.Finalize(ctx, instructions, signer, encoding)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to finalize transaction", map[string]any{"err": err.Error()})
	}

	return c.JSON(http.StatusOK, SwapResponse{Success: true, Tx: tx})
}

func (h *Handlers) resolveObservation(ctx context.Context, req models.SwapRequest) (models.Observation, error) {
	if req.Quote != nil {
		return models.Observation{
			Mint:      req.Mint,
			Pool:      req.Quote.Pool,
			AvgPrice:  req.Quote.AvgPrice,
			ProgramID: req.Quote.ProgramID,
			Slot:      req.Quote.Slot,
		}, nil
	}
	if obs, ok := h.Index.Get(req.Mint); ok && obs.AvgPrice > 0 {
		return obs, nil
	}
	if h.Aggregator == nil {
		return models.Observation{}, aggregator.ErrUnavailable
	}
	return h.Aggregator.Resolve(ctx, req.Mint)
}

func parseSwapRequest(mint string, body SwapRequestBody) (models.SwapRequest, string) {
	req := models.SwapRequest{Mint: mint}

	if len(strings.TrimSpace(body.Signer)) < 32 {
		return req, "signer must be at least 32 characters"
	}
	req.Signer = body.Signer

	switch body.Type {
	case "buy":
		req.Type = models.SwapBuy
	case "sell":
		req.Type = models.SwapSell
	default:
		return req, "type must be 'buy' or 'sell'"
	}

	hasIn := body.AmountIn != nil && *body.AmountIn > 0
	hasOut := body.AmountOut != nil && *body.AmountOut > 0
	if hasIn == hasOut {
		return req, "exactly one of amountIn or amountOut must be a positive number"
	}
	req.AmountIn = body.AmountIn
	req.AmountOut = body.AmountOut

	if body.SlippageBps < 1000 || body.SlippageBps > 10000 {
		return req, "slippageBps must be between 1000 and 10000"
	}
	req.SlippageBps = body.SlippageBps

	switch body.Encoding {
	case "", "base64":
		req.Encoding = models.EncodingBase64
	case "base58":
		req.Encoding = models.EncodingBase58
	default:
		return req, "encoding must be 'base64' or 'base58'"
	}

	if body.Quote != nil {
		if body.Quote.Pool == "" || body.Quote.AvgPrice <= 0 || body.Quote.ProgramID == "" || body.Quote.Slot == "" {
			return req, "quote override is incomplete"
		}
		req.Quote = &models.QuoteOverride{
			Mint:      mint,
			Pool:      body.Quote.Pool,
			AvgPrice:  body.Quote.AvgPrice,
			ProgramID: body.Quote.ProgramID,
			Slot:      body.Quote.Slot,
		}
	}

	return req, ""
}

// projectAmounts converts the caller-specified side (amountIn xor
// amountOut) into the raw input/output pair the builder needs, using
// avgPrice as lamports-per-token. Sell-side projections floor to avoid
// overstating what the pool can actually deliver.
func projectAmounts(req models.SwapRequest, avgPrice float64) (inputAmount, outputAmount uint64) {
	switch req.Type {
	case models.SwapBuy:
		if req.AmountIn != nil {
			in := *req.AmountIn
			return uint64(in), uint64(math.Floor(in / avgPrice))
		}
		out := *req.AmountOut
		return uint64(math.Ceil(out * avgPrice)), uint64(out)
	default: // sell
		if req.AmountIn != nil {
			in := *req.AmountIn
			return uint64(in), uint64(math.Floor(in * avgPrice))
		}
		out := *req.AmountOut
		return uint64(math.Floor(out / avgPrice)), uint64(out)
	}
}

// FlagsUpsert creates or updates a feature flag. When the key names a
// registered program id's disablement switch ("builder.<programId>"), the
// registry's runtime toggle is updated in the same request.
func (h *Handlers) FlagsUpsert(c echo.Context) error {
	var req struct {
		Key   string `json:"key"`
		Value bool   `json:"value"`
	}
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	if err := flags.ValidateKey(req.Key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Flags.Upsert(ctx, req.Key, req.Value)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to upsert flag", nil)
	}
	h.applyBuilderToggle(req.Key, req.Value)
	return c.JSON(http.StatusOK, out)
}

// FlagsUpdate updates an existing flag's value.
func (h *Handlers) FlagsUpdate(c echo.Context) error {
	key := c.Param("key")
	if err := flags.ValidateKey(key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", nil)
	}
	var req struct {
		Value bool `json:"value"`
	}
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Flags.Upsert(ctx, key, req.Value)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to update flag", nil)
	}
	h.applyBuilderToggle(key, req.Value)
	return c.JSON(http.StatusOK, out)
}

// FlagsGet retrieves a flag by key.
func (h *Handlers) FlagsGet(c echo.Context) error {
	key := c.Param("key")
	if err := flags.ValidateKey(key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Flags.Get(ctx, key)
	if err != nil {
		if errors.Is(err, flags.ErrNotFound) {
			return h.err(c, http.StatusNotFound, "flag not found", nil)
		}
		return h.err(c, http.StatusInternalServerError, "failed to get flag", nil)
	}
	return c.JSON(http.StatusOK, out)
}

// FlagsList returns every flag.
func (h *Handlers) FlagsList(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Flags.List(ctx)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to list flags", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// FlagsDelete removes a flag.
func (h *Handlers) FlagsDelete(c echo.Context) error {
	key := c.Param("key")
	if err := flags.ValidateKey(key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Flags.Delete(ctx, key); err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to delete flag", nil)
	}
	return c.NoContent(http.StatusNoContent)
}

const builderFlagPrefix = "builder."

func (h *Handlers) applyBuilderToggle(key string, disabled bool) {
	programID, ok := strings.CutPrefix(key, builderFlagPrefix)
	if !ok || h.Registry == nil {
		return
	}
	h.Registry.SetDisabled(programID, disabled)
	h.Logger.WithFields(logrus.Fields{"programId": programID, "disabled": disabled}).Info("builder disablement toggled via feature flag")
}
