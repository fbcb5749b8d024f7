// Package grpcpush implements transaction-source Implementation α: a single
// long-lived bidirectional streaming RPC connection, subscribed once and
// kept alive with periodic pings.
package grpcpush

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aman-zulfiqar/solana-swap-indexer/internal/ingest"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/models"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	pingInterval = 10 * time.Second
	subscribeMethod = "/txsource.TransactionSource/Subscribe"
)

// Config configures a Client.
type Config struct {
	Addr   string // host:port of the push gRPC service
	Logger *logrus.Logger
}

type wireMessage struct {
	Type      string           `json:"type"`
	Subscribe *subscribeFilter `json:"subscribe,omitempty"`
	PingID    *int64           `json:"pingId,omitempty"`
	Data      *dataFrame       `json:"data,omitempty"`
}

type subscribeFilter struct {
	Vote           bool     `json:"vote"`
	Failed         bool     `json:"failed"`
	AccountExclude []string `json:"accountExclude"`
	AccountRequired []string `json:"accountRequired"`
	AccountInclude []string `json:"accountInclude"`
	Commitment     string   `json:"commitment"`
}

type wireInstruction struct {
	ProgramIDIndex int    `json:"programIdIndex"`
	Accounts       []int  `json:"accounts"`
	Data           string `json:"data"` // base58-encoded, matching the RPC "json" encoding
}

type wireInnerInstructionGroup struct {
	Index        int               `json:"index"` // outer instruction index this group belongs to
	Instructions []wireInstruction `json:"instructions"`
}

type wireAddressTableLookup struct {
	AccountKey      string `json:"accountKey"`
	WritableIndexes []int  `json:"writableIndexes"`
	ReadonlyIndexes []int  `json:"readonlyIndexes"`
}

type dataFrame struct {
	Slot        uint64 `json:"slot"`
	Transaction struct {
		Signature string `json:"signature"`
		Message   struct {
			AccountKeys         []string                 `json:"accountKeys"`
			Instructions        []wireInstruction         `json:"instructions"`
			AddressTableLookups []wireAddressTableLookup  `json:"addressTableLookups"`
		} `json:"message"`
		Meta struct {
			Err               any                         `json:"err"`
			PreBalances       []int64                     `json:"preBalances"`
			PostBalances      []int64                     `json:"postBalances"`
			LogMessages       []string                    `json:"logMessages"`
			PreTokenBalances  []models.TokenBalance       `json:"preTokenBalances"`
			PostTokenBalances []models.TokenBalance       `json:"postTokenBalances"`
			InnerInstructions []wireInnerInstructionGroup `json:"innerInstructions"`
		} `json:"meta"`
		BlockTime *int64 `json:"blockTime"`
	} `json:"transaction"`
}

// Client is Implementation α of the transaction source.
type Client struct {
	cfg    Config
	logger *logrus.Logger

	life     *ingest.Lifecycle
	counters *ingest.Counters

	conn    *grpc.ClientConn
	closeCh chan struct{}

	nextPingID int64
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

func (c *Client) dial(ctx context.Context) (*grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, ingest.HandshakeTimeout)
	defer cancel()
	conn, err := grpc.DialContext(dialCtx, c.cfg.Addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}

func (c *Client) openStream(ctx context.Context, conn *grpc.ClientConn, accounts []string, commitment ingest.Commitment) (grpc.ClientStream, error) {
	desc := &grpc.StreamDesc{StreamName: "Subscribe", ServerStreams: true, ClientStreams: true}
	stream, err := conn.NewStream(ctx, desc, subscribeMethod, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	sub := wireMessage{Type: "subscribe", Subscribe: &subscribeFilter{
		Vote:           false,
		Failed:         false,
		AccountInclude: accounts,
		Commitment:     string(commitment),
	}}
	if err := stream.SendMsg(&sub); err != nil {
		return nil, fmt.Errorf("send subscribe: %w", err)
	}
	return stream, nil
}

// Subscribe starts the reconnect-driven ingestion goroutine.
func (c *Client) Subscribe(ctx context.Context, accounts []string, commitment ingest.Commitment) (<-chan models.TransactionRecord, error) {
	c.life.EnterConnecting()

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("grpcpush: initial connect failed: %w", err)
	}
	stream, err := c.openStream(ctx, conn, accounts, commitment)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("grpcpush: initial subscribe failed: %w", err)
	}
	c.conn = conn
	c.life.EnterRunning()

	out := make(chan models.TransactionRecord, 256)
	go c.run(ctx, conn, stream, accounts, commitment, out)
	return out, nil
}

func (c *Client) run(ctx context.Context, conn *grpc.ClientConn, stream grpc.ClientStream, accounts []string, commitment ingest.Commitment, out chan<- models.TransactionRecord) {
	defer close(out)

	failures := 0
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	msgCh := make(chan *wireMessage, 64)
	errCh := make(chan error, 1)

	startReceiver := func(s grpc.ClientStream) {
		go func() {
			for {
				var msg wireMessage
				if err := s.RecvMsg(&msg); err != nil {
					errCh <- err
					return
				}
				msgCh <- &msg
			}
		}()
	}
	startReceiver(stream)

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
			c.nextPingID++
			id := c.nextPingID
			if err := stream.SendMsg(&wireMessage{Type: "ping", PingID: &id}); err != nil {
				c.counters.IncErrors()
				stream, conn, failures = c.reconnectLoop(ctx, accounts, commitment, failures)
				if stream == nil {
					return
				}
				startReceiver(stream)
			}

		case msg := <-msgCh:
			switch msg.Type {
			case "pong":
				// pongs are silently consumed
			case "data":
				if msg.Data == nil {
					continue
				}
				rec := decodeDataFrame(*msg.Data, c.life.ConnectionID())
				c.counters.IncReceived()
				select {
				case out <- rec:
				case <-ctx.Done():
					return
				}
			}

		case err := <-errCh:
			if err == io.EOF {
				c.logger.Debug("grpcpush: stream ended, reconnecting")
			} else {
				c.logger.WithError(err).Debug("grpcpush: stream error, reconnecting")
			}
			c.counters.IncErrors()
			stream, conn, failures = c.reconnectLoop(ctx, accounts, commitment, failures)
			if stream == nil {
				return
			}
			startReceiver(stream)
		}
	}
}

func (c *Client) reconnectLoop(ctx context.Context, accounts []string, commitment ingest.Commitment, failures int) (grpc.ClientStream, *grpc.ClientConn, int) {
	if !c.life.RequestReconnect() {
		return nil, nil, failures
	}
	for {
		select {
		case <-ctx.Done():
			return nil, nil, failures
		case <-time.After(ingest.ReconnectDelay(failures)):
		}

		c.life.EnterConnecting()
		conn, err := c.dial(ctx)
		if err != nil {
			failures++
			c.counters.IncErrors()
			continue
		}
		stream, err := c.openStream(ctx, conn, accounts, commitment)
		if err != nil {
			conn.Close()
			failures++
			c.counters.IncErrors()
			continue
		}
		c.conn = conn
		c.life.EnterRunning()
		return stream, conn, 0
	}
}

func decodeDataFrame(f dataFrame, connectionID string) models.TransactionRecord {
	version := models.VersionLegacy
	if len(f.Transaction.Message.AddressTableLookups) > 0 {
		version = models.VersionV0
	}

	return models.TransactionRecord{
		Signature: f.Transaction.Signature,
		Slot:      f.Slot,
		BlockTime: f.Transaction.BlockTime,
		Message: models.TxMessage{
			AccountKeys:         f.Transaction.Message.AccountKeys,
			Instructions:        decodeInstructions(f.Transaction.Message.Instructions),
			InnerInstructions:   decodeInnerInstructions(f.Transaction.Meta.InnerInstructions),
			AddressTableLookups: decodeAddressTableLookups(f.Transaction.Message.AddressTableLookups),
			Version:             version,
		},
		Meta: models.TxMeta{
			Err:               f.Transaction.Meta.Err,
			PreBalances:       f.Transaction.Meta.PreBalances,
			PostBalances:      f.Transaction.Meta.PostBalances,
			LogMessages:       f.Transaction.Meta.LogMessages,
			PreTokenBalances:  f.Transaction.Meta.PreTokenBalances,
			PostTokenBalances: f.Transaction.Meta.PostTokenBalances,
		},
		ConnectionID: connectionID,
	}
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

// decodeBase58 decodes a wire instruction's data field, matching the RPC
// "json" encoding's base58 convention; malformed data decodes to nil rather
// than erroring, since decode.Decoder already treats empty data as
// not-transfer-like.
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
