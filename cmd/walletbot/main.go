// Wallet bot: runs the daily operation cycle over a list of wallets and
// serves its status over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gateway-fm/walletbot/internal/chain"
	"github.com/gateway-fm/walletbot/internal/config"
	"github.com/gateway-fm/walletbot/internal/metrics"
	"github.com/gateway-fm/walletbot/internal/operation"
	"github.com/gateway-fm/walletbot/internal/pacing"
	"github.com/gateway-fm/walletbot/internal/random"
	"github.com/gateway-fm/walletbot/internal/ratelimit"
	"github.com/gateway-fm/walletbot/internal/retry"
	"github.com/gateway-fm/walletbot/internal/rpc"
	"github.com/gateway-fm/walletbot/internal/runner"
	"github.com/gateway-fm/walletbot/internal/scheduler"
	"github.com/gateway-fm/walletbot/internal/status"
	"github.com/gateway-fm/walletbot/internal/storage"
	"github.com/gateway-fm/walletbot/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(realMain())
}

func realMain() (code int) {
	config.LoadDotEnv()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	logger := newLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("fatal panic", "panic", r, "stack", string(debug.Stack()))
			code = 1
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("wallet bot stopped", "error", err)
		return 1
	}
	logger.Info("wallet bot stopped")
	return 0
}

// newLogger builds the process logger from the configured level and format.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	m := metrics.NewPrometheusMetrics(prometheus.DefaultRegisterer)

	// History storage is optional.
	var store storage.Storage
	if cfg.DatabasePath != "" {
		s, err := storage.NewSQLiteStorage(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("initialize storage: %w", err)
		}
		defer s.Close()
		store = s
		logger.Info("initialized storage", "path", cfg.DatabasePath)
	}

	rpcCfg := rpc.DefaultClientConfig(cfg.Network.RPCURL)
	rpcCfg.Timeout = cfg.RPCTimeout
	rpcCfg.Limiter = ratelimit.New(float64(cfg.RPCRateLimit))
	rpcCfg.Logger = logger
	rpcCfg.OnCall = func(method string, d time.Duration, _ error) {
		m.RecordRPCLatency(method, d)
	}
	rpcClient := rpc.NewHTTPClient(rpcCfg)

	checkChainID(ctx, rpcClient, cfg.Network.ChainID, logger)

	chainClient := chain.New(chain.Config{
		Backend:        rpcClient,
		ChainID:        big.NewInt(cfg.Network.ChainID),
		ReceiptTimeout: cfg.ReceiptTimeout,
		PollInterval:   cfg.ReceiptPollInterval,
		Logger:         logger,
		OnTransaction:  m.RecordTransaction,
	})

	src := random.New()
	retrier := retry.New(retry.Config{
		MaxRetries:    cfg.RetryMaxAttempts,
		InitialDelay:  cfg.RetryInitialDelay,
		BackoffFactor: cfg.RetryBackoff,
		Logger:        logger,
	})
	pacer := pacing.New(pacing.Config{
		Source:  src,
		Logger:  logger,
		OnPause: m.RecordPause,
	})

	catalog, err := operation.NewCatalog(operation.Config{
		Network:        cfg.Network,
		Chain:          chainClient,
		Retry:          retrier,
		Pacer:          pacer,
		Source:         src,
		OperationPause: cfg.OperationPause,
		MintPause:      cfg.MintPause,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("build operation catalog: %w", err)
	}

	var ws *transport.WebSocketServer
	if cfg.ListenAddr != "" {
		ws = transport.NewWebSocketServer(logger)
		ws.Start()
		defer ws.Stop()
	}

	trackerCfg := status.Config{
		Metrics: m,
		Storage: store,
		Logger:  logger,
	}
	if ws != nil {
		trackerCfg.Publisher = ws
	}
	tracker := status.New(trackerCfg)

	walletRunner := runner.New(runner.Config{
		Operations: catalog.Operations(),
		Retry:      retrier,
		Source:     src,
		Observer:   tracker,
		Logger:     logger,
	})

	sched := scheduler.New(scheduler.Config{
		Loader:      scheduler.FileLoader(cfg.KeysFile),
		Runner:      walletRunner,
		Pacer:       pacer,
		WalletPause: cfg.WalletPause,
		Interval:    cfg.CycleInterval,
		Observer:    tracker,
		Logger:      logger,
	})

	serverErr := make(chan error, 1)
	if cfg.ListenAddr != "" {
		api := transport.NewServer(tracker, transport.RPCHealth{Client: rpcClient}, ws, logger, cfg.CORSAllowedOrigins)
		srv := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			logger.Info("starting HTTP server", "addr", cfg.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("HTTP server shutdown", "error", err)
			}
		}()
	}

	logger.Info("wallet bot starting",
		"rpc", cfg.Network.RPCURL,
		"chainId", cfg.Network.ChainID,
		"keysFile", cfg.KeysFile,
		"interval", cfg.CycleInterval,
		"operations", len(catalog.Operations()),
		"maxRetries", retrier.MaxRetries(),
		"backoff", fmt.Sprint(retrier.Delays()),
	)

	schedCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	schedErr := make(chan error, 1)
	go func() {
		schedErr <- runGuarded(schedCtx, sched, logger)
	}()

	select {
	case err := <-schedErr:
		return err
	case err := <-serverErr:
		cancel()
		<-schedErr
		return fmt.Errorf("HTTP server failed: %w", err)
	}
}

type foreverRunner interface {
	RunForever(ctx context.Context) error
}

// runGuarded runs the scheduler loop and turns a panic on its goroutine into
// an error, so the process still logs it and exits with code 1.
func runGuarded(ctx context.Context, r foreverRunner, logger *slog.Logger) (err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("scheduler panic", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("scheduler panic: %v", p)
		}
	}()
	return r.RunForever(ctx)
}

type chainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// checkChainID warns when the node reports a different chain than configured.
// Transactions are signed for the configured chain regardless.
func checkChainID(ctx context.Context, client chainIDReader, want int64, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	got, err := client.ChainID(ctx)
	if err != nil {
		logger.Warn("could not verify chain ID", "error", err)
		return
	}
	if got.Cmp(big.NewInt(want)) != 0 {
		logger.Warn("RPC chain ID differs from configuration", "configured", want, "rpc", got.String())
	}
}
