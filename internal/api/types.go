package api

// ErrorResponse is the uniform JSON error shape for every failure path.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details any    `json:"details,omitempty"`
}

// HealthResponse is GET /health's body.
type HealthResponse struct {
	OK    bool         `json:"ok"`
	Index IndexStats   `json:"index"`
	Ingest []SourceStat `json:"ingest,omitempty"`
}

// IndexStats mirrors priceindex.Stats for the health surface.
type IndexStats struct {
	Entries      int     `json:"entries"`
	UsageBytes   int64   `json:"usageBytes"`
	CeilingBytes int64   `json:"ceilingBytes"`
	UsagePercent float64 `json:"usagePercent"`
}

// SourceStat mirrors models.SourceStats for the health surface.
type SourceStat struct {
	Name                 string `json:"name"`
	TransactionsReceived int64  `json:"transactionsReceived"`
	Errors               int64  `json:"errors"`
}

// QuoteResponse is GET /api/quote/:mint's body on a hit.
type QuoteResponse struct {
	Mint      string  `json:"mint"`
	Pool      string  `json:"pool"`
	AvgPrice  float64 `json:"avgPrice"`
	ProgramID string  `json:"programId"`
	Slot      string  `json:"slot"`
}

// SwapRequestBody is POST /api/swap/:mint's body.
type SwapRequestBody struct {
	Signer      string         `json:"signer"`
	Type        string         `json:"type"`
	AmountIn    *float64       `json:"amountIn,omitempty"`
	AmountOut   *float64       `json:"amountOut,omitempty"`
	SlippageBps uint16         `json:"slippageBps"`
	Encoding    string         `json:"encoding,omitempty"`
	Quote       *QuoteOverride `json:"quote,omitempty"`
}

// QuoteOverride lets a caller pin the observation used to build a swap.
type QuoteOverride struct {
	Pool      string  `json:"pool"`
	AvgPrice  float64 `json:"avgPrice"`
	ProgramID string  `json:"programId"`
	Slot      string  `json:"slot"`
}

// SwapResponse is POST /api/swap/:mint's success body.
type SwapResponse struct {
	Success bool   `json:"success"`
	Tx      string `json:"tx"`
}

// UnsupportedProtocolResponse is returned on dispatch against an
// unregistered or disabled program id.
type UnsupportedProtocolResponse struct {
	Error               string   `json:"error"`
	Code                int      `json:"code"`
	SupportedProtocols []string `json:"supportedProtocols"`
}
