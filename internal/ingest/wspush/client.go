// Package wspush implements transaction-source Implementation β:
// server-pushed notifications over a framed socket (a JSON-RPC
// "transactionSubscribe" call followed by transactionNotification frames).
package wspush

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aman-zulfiqar/solana-swap-indexer/internal/ingest"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/models"
	"github.com/gorilla/websocket"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
)

const pingInterval = 30 * time.Second

// Config configures a Client.
type Config struct {
	URL    string // ws(s):// endpoint, credentials already embedded if needed
	Logger *logrus.Logger
}

// Client is Implementation β of the transaction source.
type Client struct {
	cfg    Config
	logger *logrus.Logger

	life     *ingest.Lifecycle
	counters *ingest.Counters

	nextReqID atomic.Int64
	subID     atomic.Int64

	closeCh chan struct{}
}

// New creates a Client in the disconnected state.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Client{
		cfg:      cfg,
		logger:   cfg.Logger,
		life:     ingest.NewLifecycle(cfg.Logger),
		counters: ingest.NewCounters(),
		closeCh:  make(chan struct{}),
	}
}

type subscribeParamsFilter struct {
	Failed         bool     `json:"failed"`
	AccountInclude []string `json:"accountInclude"`
}

type subscribeParamsOptions struct {
	Commitment                     string `json:"commitment"`
	Encoding                       string `json:"encoding"`
	TransactionDetails             string `json:"transactionDetails"`
	ShowRewards                    bool   `json:"showRewards"`
	MaxSupportedTransactionVersion int    `json:"maxSupportedTransactionVersion"`
}

type subscribeRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type subscribeResponse struct {
	ID     int64 `json:"id"`
	Result int64 `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type notificationEnvelope struct {
	Method string `json:"method"`
	Params struct {
		Subscription int64           `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

type wireInstruction struct {
	ProgramIDIndex int    `json:"programIdIndex"`
	Accounts       []int  `json:"accounts"`
	Data           string `json:"data"` // base58-encoded, per the "json" subscribe encoding
}

type wireInnerInstructionGroup struct {
	Index        int               `json:"index"`
	Instructions []wireInstruction `json:"instructions"`
}

type wireAddressTableLookup struct {
	AccountKey      string `json:"accountKey"`
	WritableIndexes []int  `json:"writableIndexes"`
	ReadonlyIndexes []int  `json:"readonlyIndexes"`
}

type notificationResult struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Transaction struct {
		Transaction struct {
			Message struct {
				AccountKeys         []string                 `json:"accountKeys"`
				Instructions        []wireInstruction        `json:"instructions"`
				AddressTableLookups []wireAddressTableLookup `json:"addressTableLookups"`
			} `json:"message"`
		} `json:"transaction"`
		Meta struct {
			Err               any                         `json:"err"`
			PreBalances       []int64                     `json:"preBalances"`
			PostBalances      []int64                     `json:"postBalances"`
			LogMessages       []string                    `json:"logMessages"`
			PreTokenBalances  []models.TokenBalance       `json:"preTokenBalances"`
			PostTokenBalances []models.TokenBalance       `json:"postTokenBalances"`
			InnerInstructions []wireInnerInstructionGroup `json:"innerInstructions"`
		} `json:"meta"`
	} `json:"transaction"`
}

// Subscribe starts the reconnect-driven ingestion goroutine.
func (c *Client) Subscribe(ctx context.Context, accounts []string, commitment ingest.Commitment) (<-chan models.TransactionRecord, error) {
	out := make(chan models.TransactionRecord, 256)

	connectCtx, cancel := context.WithTimeout(ctx, ingest.HandshakeTimeout)
	defer cancel()

	conn, subID, err := c.connectAndSubscribe(connectCtx, accounts, commitment)
	if err != nil {
		return nil, fmt.Errorf("wspush: initial connect failed: %w", err)
	}
	c.subID.Store(subID)
	c.life.EnterRunning()

	go c.run(ctx, conn, accounts, commitment, out)

	return out, nil
}

func (c *Client) connectAndSubscribe(ctx context.Context, accounts []string, commitment ingest.Commitment) (*websocket.Conn, int64, error) {
	c.life.EnterConnecting()

	dialer := websocket.Dialer{HandshakeTimeout: ingest.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("dial: %w", err)
	}

	reqID := c.nextReqID.Add(1)
	req := subscribeRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "transactionSubscribe",
		Params: []any{
			subscribeParamsFilter{Failed: false, AccountInclude: accounts},
			subscribeParamsOptions{
				Commitment:                     string(commitment),
				Encoding:                       "json",
				TransactionDetails:             "full",
				ShowRewards:                    false,
				MaxSupportedTransactionVersion: 0,
			},
		},
	}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, 0, fmt.Errorf("write subscribe request: %w", err)
	}

	var resp subscribeResponse
	if err := conn.ReadJSON(&resp); err != nil {
		conn.Close()
		return nil, 0, fmt.Errorf("read subscribe response: %w", err)
	}
	if resp.Error != nil {
		conn.Close()
		return nil, 0, fmt.Errorf("subscribe rejected: %s", resp.Error.Message)
	}

	return conn, resp.Result, nil
}

func (c *Client) run(ctx context.Context, conn *websocket.Conn, accounts []string, commitment ingest.Commitment, out chan<- models.TransactionRecord) {
	defer close(out)

	failures := 0
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	readCh := make(chan []byte, 64)
	readErrCh := make(chan error, 1)

	startReader := func(conn *websocket.Conn) {
		go func() {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					readErrCh <- err
					return
				}
				readCh <- data
			}
		}()
	}
	startReader(conn)

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			c.life.EnterDisconnected()
			return

		case <-c.closeCh:
			conn.Close()
			c.life.EnterDisconnected()
			return

		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				c.counters.IncErrors()
				conn.Close()
				conn, failures = c.reconnectLoop(ctx, accounts, commitment, failures)
				if conn == nil {
					return
				}
				startReader(conn)
			}

		case data := <-readCh:
			var env notificationEnvelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.counters.IncErrors()
				continue
			}
			if env.Method != "transactionNotification" {
				continue
			}
			if env.Params.Subscription != c.subID.Load() {
				continue
			}
			rec, err := decodeNotification(env.Params.Result, c.life.ConnectionID())
			if err != nil {
				c.counters.IncErrors()
				continue
			}
			c.counters.IncReceived()
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}

		case err := <-readErrCh:
			c.logger.WithError(err).Debug("wspush: read error, reconnecting")
			c.counters.IncErrors()
			conn.Close()
			conn, failures = c.reconnectLoop(ctx, accounts, commitment, failures)
			if conn == nil {
				return
			}
			startReader(conn)
		}
	}
}

// reconnectLoop retries connectAndSubscribe with the spec's 5s/10s backoff
// until ctx is cancelled or a new connection is established.
func (c *Client) reconnectLoop(ctx context.Context, accounts []string, commitment ingest.Commitment, failures int) (*websocket.Conn, int) {
	if !c.life.RequestReconnect() {
		return nil, failures
	}
	for {
		select {
		case <-ctx.Done():
			return nil, failures
		case <-time.After(ingest.ReconnectDelay(failures)):
		}

		connectCtx, cancel := context.WithTimeout(ctx, ingest.HandshakeTimeout)
		conn, subID, err := c.connectAndSubscribe(connectCtx, accounts, commitment)
		cancel()
		if err != nil {
			failures++
			c.counters.IncErrors()
			continue
		}
		c.subID.Store(subID)
		c.life.EnterRunning()
		return conn, 0
	}
}

func decodeNotification(raw json.RawMessage, connectionID string) (models.TransactionRecord, error) {
	var r notificationResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return models.TransactionRecord{}, fmt.Errorf("decode notification result: %w", err)
	}

	msg := r.Transaction.Transaction.Message

	version := models.VersionLegacy
	if len(msg.AddressTableLookups) > 0 {
		version = models.VersionV0
	}

	return models.TransactionRecord{
		Signature: r.Signature,
		Slot:      r.Slot,
		BlockTime: r.BlockTime,
		Message: models.TxMessage{
			AccountKeys:         msg.AccountKeys,
			Instructions:        decodeInstructions(msg.Instructions),
			InnerInstructions:   decodeInnerInstructions(r.Transaction.Meta.InnerInstructions),
			AddressTableLookups: decodeAddressTableLookups(msg.AddressTableLookups),
			Version:             version,
		},
		Meta: models.TxMeta{
			Err:               r.Transaction.Meta.Err,
			PreBalances:       r.Transaction.Meta.PreBalances,
			PostBalances:      r.Transaction.Meta.PostBalances,
			LogMessages:       r.Transaction.Meta.LogMessages,
			PreTokenBalances:  r.Transaction.Meta.PreTokenBalances,
			PostTokenBalances: r.Transaction.Meta.PostTokenBalances,
		},
		ConnectionID: connectionID,
	}, nil
}

func decodeInstructions(wire []wireInstruction) []models.CompiledInstruction {
	if len(wire) == 0 {
		return nil
	}
	out := make([]models.CompiledInstruction, len(wire))
	for i, ix := range wire {
		out[i] = models.CompiledInstruction{
			ProgramIDIndex: ix.ProgramIDIndex,
			Accounts:       ix.Accounts,
			Data:           decodeBase58(ix.Data),
		}
	}
	return out
}

func decodeInnerInstructions(wire []wireInnerInstructionGroup) map[int][]models.CompiledInstruction {
	if len(wire) == 0 {
		return nil
	}
	out := make(map[int][]models.CompiledInstruction, len(wire))
	for _, group := range wire {
		out[group.Index] = decodeInstructions(group.Instructions)
	}
	return out
}

func decodeAddressTableLookups(wire []wireAddressTableLookup) []models.AccountKeyLookup {
	if len(wire) == 0 {
		return nil
	}
	out := make([]models.AccountKeyLookup, len(wire))
	for i, lookup := range wire {
		out[i] = models.AccountKeyLookup{
			AccountKey:      lookup.AccountKey,
			WritableIndexes: toUint8s(lookup.WritableIndexes),
			ReadonlyIndexes: toUint8s(lookup.ReadonlyIndexes),
		}
	}
	return out
}

func toUint8s(in []int) []uint8 {
	if len(in) == 0 {
		return nil
	}
	out := make([]uint8, len(in))
	for i, v := range in {
		out[i] = uint8(v)
	}
	return out
}

// decodeBase58 decodes a wire instruction's data field; malformed data
// decodes to nil rather than erroring, since decode.Decoder already treats
// empty data as not-transfer-like.
func decodeBase58(s string) []byte {
	if s == "" {
		return nil
	}
	b, err := base58.Decode(s)
	if err != nil {
		return nil
	}
	return b
}

// Stats returns ingestion counters.
func (c *Client) Stats() models.SourceStats {
	s := c.counters.Snapshot()
	return models.SourceStats{TransactionsReceived: s.TransactionsReceived, Errors: s.Errors, StartTime: s.StartTime}
}

// Close stops the ingestion goroutine.
func (c *Client) Close() error {
	close(c.closeCh)
	return nil
}
