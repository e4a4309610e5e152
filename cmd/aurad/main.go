// aurad is the negotiation metabolism daemon: it ingests pricing signals,
// reasons about them through a pluggable strategy, enforces economic
// invariants on both sides of the reasoning step, and emits audit events.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"aura/internal/aggregator"
	"aura/internal/config"
	"aura/internal/connector"
	"aura/internal/gateway"
	"aura/internal/generator"
	"aura/internal/membrane"
	"aura/internal/pipeline"
	"aura/internal/store"
	"aura/internal/strategy"
	"aura/internal/types"
)

var (
	cfgPath string
	verbose bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "aurad",
	Short: "Aura negotiation metabolism daemon",
	Long: `aurad runs the negotiation metabolism pipeline:

  Signal -> Inbound Guard -> Aggregator -> Strategy -> Outbound Guard
         -> Connector -> Event Emitter

The membrane guards are deterministic and authoritative: no strategy output
leaves the pipeline below the floor price or carrying internal pricing data.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway over the pipeline",
	RunE:  runServe,
}

var negotiateCmd = &cobra.Command{
	Use:   "negotiate",
	Short: "Run one signal through the pipeline and print the decision",
	RunE:  runNegotiate,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert or update an item record",
	RunE:  runSeed,
}

var (
	negItem     string
	negBid      float64
	negAgent    string
	negSession  string
	negCurrency string

	seedItem  string
	seedName  string
	seedBase  float64
	seedFloor float64
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "aura.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	negotiateCmd.Flags().StringVar(&negItem, "item", "", "item id (required)")
	negotiateCmd.Flags().Float64Var(&negBid, "bid", 0, "bid amount (required)")
	negotiateCmd.Flags().StringVar(&negAgent, "agent", "did:aura:cli", "agent DID")
	negotiateCmd.Flags().StringVar(&negSession, "session", "", "session id")
	negotiateCmd.Flags().StringVar(&negCurrency, "currency", "USD", "currency code")
	_ = negotiateCmd.MarkFlagRequired("item")
	_ = negotiateCmd.MarkFlagRequired("bid")

	seedCmd.Flags().StringVar(&seedItem, "item", "widget-001", "item id")
	seedCmd.Flags().StringVar(&seedName, "name", "Demo Widget", "item name")
	seedCmd.Flags().Float64Var(&seedBase, "base", 100, "base price")
	seedCmd.Flags().Float64Var(&seedFloor, "floor", 50, "floor price")

	rootCmd.AddCommand(serveCmd, negotiateCmd, seedCmd)
}

// runtime bundles everything built from config that needs teardown.
type runtime struct {
	cfg      config.Config
	store    *store.Store
	watcher  *membrane.BlocklistWatcher
	emitter  *generator.Emitter
	pipeline *pipeline.Pipeline
}

func buildRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	timeouts, err := cfg.Timeouts.Parse()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Storage.Path, logger.Named("store"))
	if err != nil {
		return nil, err
	}

	detector := membrane.NewBlocklistDetector()
	var watcher *membrane.BlocklistWatcher
	if cfg.Membrane.BlocklistPath != "" {
		watcher, err = membrane.WatchBlocklist(detector, cfg.Membrane.BlocklistPath, logger.Named("membrane"))
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	var strat types.Strategy
	switch cfg.Strategy.Engine {
	case "gemini":
		strat, err = strategy.NewGeminiEngine(ctx, cfg.Strategy.APIKey, cfg.Strategy.Model, logger.Named("strategy"))
		if err != nil {
			st.Close()
			return nil, err
		}
	default:
		strat = strategy.NewRuleEngine(cfg.Strategy.UITriggerPrice)
	}
	logger.Info("strategy selected", zap.String("engine", strat.Name()))

	var bus types.Bus
	if cfg.Bus.Endpoint != "" {
		bus = generator.NewWebhookBus(cfg.Bus.Endpoint)
	} else {
		bus = generator.NewNopBus(logger.Named("bus"))
	}
	emitter := generator.NewEmitter(bus, cfg.Bus.Buffer, timeouts.Publish, logger.Named("generator"))

	p := pipeline.New(
		membrane.NewInboundGuard(detector, logger.Named("membrane")),
		aggregator.New(st, logger.Named("aggregator")),
		strat,
		membrane.NewOutboundGuard(logger.Named("membrane")),
		connector.New(st, logger.Named("connector")),
		emitter,
		timeouts,
		logger.Named("pipeline"),
	)

	return &runtime{cfg: cfg, store: st, watcher: watcher, emitter: emitter, pipeline: p}, nil
}

func (rt *runtime) close() {
	rt.emitter.Close()
	if rt.watcher != nil {
		_ = rt.watcher.Close()
	}
	_ = rt.store.Close()
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	handler := gateway.New(rt.pipeline, logger.Named("gateway"))
	srv := &http.Server{
		Addr:              rt.cfg.Gateway.Listen,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func runNegotiate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	sig := types.Signal{
		RequestID: uuid.NewString(),
		ItemID:    negItem,
		BidAmount: negBid,
		Currency:  negCurrency,
		AgentDID:  negAgent,
		SessionID: negSession,
	}

	dec, err := rt.pipeline.Execute(ctx, sig)
	if err != nil && dec.Status == "" {
		return err
	}
	if err != nil {
		logger.Warn("decision returned with warning", zap.Error(err))
	}

	out, err := json.MarshalIndent(dec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.close()

	rec := types.ItemRecord{
		ItemID:     seedItem,
		Name:       seedName,
		BasePrice:  seedBase,
		FloorPrice: seedFloor,
	}
	if err := rt.store.UpsertItem(context.Background(), rec); err != nil {
		return err
	}
	logger.Info("item seeded",
		zap.String("item_id", rec.ItemID),
		zap.Float64("base_price", rec.BasePrice))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
