// Command server runs the real-time market-data and swap-transaction
// service: it ingests transactions from a configured source, extracts and
// validates trade candidates into the price index, and serves quotes and
// unsigned swap transactions over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/aman-zulfiqar/solana-swap-indexer/internal/aggregator"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/api"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/config"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/extract"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/flags"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/ingest"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/ingest/grpcpush"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/ingest/wspush"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/models"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/priceindex"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/registry"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/registry/protocols/orcalegacy"
	projectrpc "github.com/aman-zulfiqar/solana-swap-indexer/internal/rpc"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/txbuild"
	"github.com/aman-zulfiqar/solana-swap-indexer/internal/validate"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func loadEnv(logger *logrus.Logger) {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

// namedStats adapts an ingest.Source into api.IngestStats for the health
// endpoint.
type namedStats struct {
	name   string
	source ingest.Source
}

func (n namedStats) Name() string             { return n.name }
func (n namedStats) Stats() models.SourceStats { return n.source.Stats() }

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	logger.SetLevel(logrus.InfoLevel)

	loadEnv(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// D: price index.
	index := priceindex.New(priceindex.Config{
		CeilingBytes:     cfg.CacheCeilingBytes(),
		CleanupThreshold: cfg.CacheCleanupFrac,
		EvictToFraction:  cfg.CacheEvictFrac,
		Logger:           logger,
	})

	// E: builder registry, seeded with the Orca-legacy reference builder.
	reg := registry.New()
	if pools, err := orcalegacy.LoadPools(cfg.OrcaPoolConfigPath); err != nil {
		logger.WithError(err).Warn("orcalegacy: no pool configuration loaded, builder left unregistered")
	} else {
		rpcClient := projectrpc.NewClient(projectrpc.ClientConfig{
			BaseURL:      cfg.RPCUrl,
			Timeout:      cfg.HTTPTimeout,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
			Logger:       logger,
		})
		builder := orcalegacy.New(pools, newChainReserveReader(rpcClient), newATATokenAccountResolver())
		builder.Register(reg)
		logger.WithField("pools", len(pools)).Info("orcalegacy: builder registered")
	}

	// A: transaction source.
	source := newSource(cfg, logger)
	stream, err := source.Subscribe(ctx, cfg.WatchAccounts, ingest.Commitment(cfg.Commitment))
	if err != nil {
		logger.WithError(err).Fatal("failed to subscribe to transaction source")
	}

	// B, C: extractor and validator, wired into the ingestion pipeline.
	extractor := extract.New(reg.SupportedProgramIDs(), logger)
	validator := validate.New(reg)
	go runPipeline(ctx, stream, extractor, validator, index, logger)

	// G: external price fallback.
	var fallback *aggregator.Fallback
	if cfg.AggregatorBaseURL != "" {
		client := aggregator.NewClient(cfg.AggregatorBaseURL)
		fallback = aggregator.New(client, index, reg, defaultLabelProgramIDs(), logger)
	}

	// F's finalization step.
	rpcClient := projectrpc.NewClient(projectrpc.ClientConfig{
		BaseURL:      cfg.RPCUrl,
		Timeout:      cfg.HTTPTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Logger:       logger,
	})
	finalizer := txbuild.NewFinalizer(txbuild.NewRPCBlockhashSource(rpcClient, cfg.Commitment), cfg.Commitment)

	var flagStore *flags.Store
	rclient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rclient.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("redis unavailable, feature-flag endpoints disabled")
	} else if s, err := flags.NewStore(rclient); err == nil {
		flagStore = s
	}

	handlers := &api.Handlers{
		Index:      index,
		Registry:   reg,
		Aggregator: fallback,
		Finalizer:  finalizer,
		Flags:      flagStore,
		Ingest:     []api.IngestStats{namedStats{name: cfg.StreamProvider, source: source}},
		DevMode:    cfg.DevMode,
		Logger:     logger,
	}

	srv, err := api.NewServer(api.Deps{
		Handlers: handlers,
		Config:   api.Config{Addr: fmt.Sprintf(":%d", cfg.Port), DevMode: cfg.DevMode},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		_ = source.Close()
		index.Clear()
		_ = srv.Shutdown(context.Background())
	}()

	logger.WithField("port", cfg.Port).Info("server starting")
	if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
		logger.WithError(err).Fatal("server failed")
	}

	if err := srv.WaitClosed(context.Background()); err != nil {
		logger.WithError(err).Error("shutdown did not complete cleanly")
	}
}

func newSource(cfg *config.Config, logger *logrus.Logger) ingest.Source {
	switch cfg.StreamProvider {
	case "websocket":
		return wspush.New(wspush.Config{URL: cfg.WebsocketURL, Logger: logger})
	default:
		return grpcpush.New(grpcpush.Config{Addr: cfg.GRPCAddr, Logger: logger})
	}
}

func runPipeline(ctx context.Context, stream <-chan models.TransactionRecord, extractor *extract.Extractor, validator *validate.Validator, index *priceindex.Index, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-stream:
			if !ok {
				return
			}
			trades, memeEvents, stats := extractor.Extract(rec)
			if stats.Recovered {
				logger.WithField("signature", rec.Signature).Warn("extractor recovered from panic")
			}
			observations, rejections := validator.Validate(trades, rec, memeEvents)
			for _, obs := range observations {
				index.Put(obs)
			}
			for _, rej := range rejections {
				logger.WithFields(logrus.Fields{"reason": rej.Reason, "signature": rec.Signature}).Debug("trade candidate rejected")
			}
		}
	}
}

// defaultLabelProgramIDs maps the aggregator's DEX route labels onto the
// program ids this service's registry can dispatch to.
func defaultLabelProgramIDs() aggregator.LabelProgramIDs {
	return aggregator.LabelProgramIDs{
		"Orca": orcalegacy.ProgramID,
	}
}
