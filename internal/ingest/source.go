// Package ingest implements the transaction source (A): a long-lived,
// provider-agnostic subscription to a push service that emits
// models.TransactionRecord values, with reconnection and keepalive.
package ingest

import (
	"context"

	"github.com/aman-zulfiqar/solana-swap-indexer/internal/models"
)

// Commitment is the durability tier requested from the upstream provider.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// Source opens a long-lived subscription to a push provider and emits raw
// transaction records. The returned channel is closed only when ctx is
// cancelled or Close is called; mid-stream errors never close it; they are
// handled internally by the reconnect loop and counted in Stats.
type Source interface {
	// Subscribe starts the ingestion loop and returns a channel of records.
	// Connection-establishment errors are surfaced once via the returned
	// error; once the initial connection succeeds, subsequent errors are
	// handled by reconnection and never surfaced here.
	Subscribe(ctx context.Context, accounts []string, commitment Commitment) (<-chan models.TransactionRecord, error)

	// Stats returns a snapshot of ingestion counters.
	Stats() models.SourceStats

	// Close tears down the subscription and releases resources.
	Close() error
}
