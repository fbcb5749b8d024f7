// Package extract implements the trade extractor (B): it decodes a raw
// transaction record into normalized trade candidates and meme events,
// delegating instruction classification to decode.Decoder and treating it
// as a black box behind a fault barrier.
package extract

import (
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/extract/decode"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/models"
	"github.com/sirupsen/logrus"
)

// Stats summarizes one Extract call.
type Stats struct {
	TotalTrades     int
	TotalMemeEvents int
	Recovered       bool // true if a panic was recovered and an empty result returned
}

// Extractor wraps a decode.Decoder with version detection and a fault
// barrier so a single malformed transaction can never take down ingestion.
type Extractor struct {
	decoder *decode.Decoder
	logger  *logrus.Logger
}

// New creates an Extractor recognizing swaps from the given program
// whitelist (normally registry.SupportedProgramIDs()).
func New(programWhitelist []string, logger *logrus.Logger) *Extractor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Extractor{decoder: decode.New(programWhitelist), logger: logger}
}

// Extract decodes rec's instructions and inner instructions into trade
// candidates and meme events. Version detection fills rec.Message.Version
// when the caller left it unset: the presence of address-table lookups
// implies v0, otherwise a populated instruction list implies legacy.
// Any panic from the decoder is recovered and reported as an empty result
// with Recovered=true, matching the "fault barrier" contract — callers
// never see a parser exception.
func (e *Extractor) Extract(rec models.TransactionRecord) (trades []models.TradeCandidate, memeEvents []models.MemeEvent, stats Stats) {
	rec.Message.Version = detectVersion(rec.Message)

	defer func() {
		if r := recover(); r != nil {
			e.logger.WithField("panic", r).WithField("signature", rec.Signature).
				Debug("extract: recovered from decoder panic")
			trades, memeEvents, stats = nil, nil, Stats{Recovered: true}
		}
	}()

	result := e.decoder.Decode(rec)
	stats = Stats{TotalTrades: len(result.Trades), TotalMemeEvents: len(result.MemeEvents)}
	return result.Trades, result.MemeEvents, stats
}

func detectVersion(msg models.TxMessage) models.TransactionVersion {
	if msg.Version != "" {
		return msg.Version
	}
	if len(msg.AddressTableLookups) > 0 {
		return models.VersionV0
	}
	if len(msg.Instructions) > 0 {
		return models.VersionLegacy
	}
	return models.VersionV0
}

// NewQuietLogger returns a *logrus.Logger with a hook that drops records
// below warnLevel, used to silence a noisy decoder without ever rebinding a
// global logger (the source's approach of rebinding console.error is
// explicitly disallowed).
func NewQuietLogger(base *logrus.Logger, warnLevel logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(base.Out)
	l.SetFormatter(base.Formatter)
	l.SetLevel(warnLevel)
	l.AddHook(&levelFilterHook{min: warnLevel})
	return l
}

type levelFilterHook struct{ min logrus.Level }

func (h *levelFilterHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *levelFilterHook) Fire(e *logrus.Entry) error {
	if e.Level > h.min {
		e.Message = "" // drop below-threshold records' payload; level gate already applied by logger
	}
	return nil
}
