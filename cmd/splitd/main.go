package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"splitledger/config"
	"splitledger/core"
	"splitledger/core/state"
	"splitledger/observability/logging"
	"splitledger/observability/otel"
	"splitledger/rpc"
	"splitledger/storage"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	rpcTokenEnv  = "SPLITD_RPC_TOKEN"
	jwtSecretEnv = "SPLITD_JWT_SECRET"
	envEnv       = "SPLITD_ENV"

	shutdownGrace = 10 * time.Second
)

func main() {
	configFile := flag.String("config", "./splitd.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envEnv))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if env == "" {
		env = cfg.Environment
	}

	var fileCfg *logging.FileConfig
	if strings.TrimSpace(cfg.Log.Path) != "" {
		fileCfg = &logging.FileConfig{
			Path:       cfg.Log.Path,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		}
	}
	logger := logging.Setup(cfg.ServiceName, env, fileCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := otel.Init(ctx, otel.Config{
		ServiceName: cfg.ServiceName,
		Environment: env,
		Endpoint:    cfg.OTLP.Endpoint,
		Insecure:    cfg.OTLP.Insecure,
	})
	if err != nil {
		logger.Error("telemetry init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	vault, err := parseAddr(cfg.VaultAddress)
	if err != nil {
		logger.Error("invalid vault address", slog.Any("error", err))
		os.Exit(1)
	}
	pool, err := parseAddr(cfg.RewardsPool)
	if err != nil {
		logger.Error("invalid rewards pool address", slog.Any("error", err))
		os.Exit(1)
	}
	oracles := make([][20]byte, 0, len(cfg.Oracles))
	for _, raw := range cfg.Oracles {
		addr, err := parseAddr(raw)
		if err != nil {
			logger.Error("invalid oracle address", slog.String("address", raw), slog.Any("error", err))
			os.Exit(1)
		}
		oracles = append(oracles, addr)
	}

	node := core.NewNode(state.NewManager(db))
	if err := node.Initialize(vault, pool, oracles); err != nil {
		logger.Error("failed to initialize ledger", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(node, rpc.Config{
		AuthToken:         strings.TrimSpace(os.Getenv(rpcTokenEnv)),
		JWTSecret:         strings.TrimSpace(os.Getenv(jwtSecretEnv)),
		RequestsPerMinute: float64(cfg.RequestsPerMinute),
		Burst:             cfg.RateBurst,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(server.Router(), "rpc"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rpc server listening", slog.String("address", cfg.ListenAddress))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("rpc server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("rpc shutdown failed", slog.Any("error", err))
	}
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StorageBackend)) {
	case "memory":
		return storage.NewMemDB(), nil
	case "bolt":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "splitd.db"))
	case "leveldb":
		return storage.NewLevelDB(cfg.DataDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func parseAddr(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, err
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("address must be %d bytes, got %d", len(addr), len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}
