package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dexlend-labs/dexlend-hub/portal/actions"
	"github.com/dexlend-labs/dexlend-hub/portal/config"
	"github.com/dexlend-labs/dexlend-hub/portal/gateway"
	"github.com/dexlend-labs/dexlend-hub/portal/registry"
	"github.com/dexlend-labs/dexlend-hub/portal/rpc"
	"github.com/dexlend-labs/dexlend-hub/portal/syncer"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()

	// Share the logger with the other packages
	rpc.SetLogger(log)
	gateway.SetLogger(log)
	syncer.SetLogger(log)
	actions.SetLogger(log)
}

func main() {
	configPath := flag.String("config", "", "portal config toml; env vars are used when empty")
	manifestPath := flag.String("manifest", "", "contract manifest override (path, URL or github source)")
	flag.Parse()

	log.Info().Msg("Starting DexLend portal")

	var cfgPath *string
	if *configPath != "" {
		cfgPath = configPath
	}
	cfg, err := config.LoadPortalConfig(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load portal config")
	}

	manifestSrc := cfg.ManifestPath
	if *manifestPath != "" {
		manifestSrc = *manifestPath
	}
	manifest, err := config.LoadManifest(manifestSrc)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load contract manifest")
	}
	mintPrice, err := manifest.MintPrice()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse mint price")
	}

	log.Info().
		Int("endpoints", len(manifest.Endpoints)).
		Str("defi_contract", manifest.DefiContract).
		Str("nft_contract", manifest.NftContract).
		Msg("Loaded contract manifest")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw, err := gateway.NewEVM(ctx, buildGatewayConfig(manifest))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to chain endpoints")
	}
	defer gw.Close()

	store := registry.NewStore()
	engine := syncer.NewEngine(gw, store, syncer.Config{
		NftContract:       manifest.NftContract,
		PollInterval:      time.Duration(cfg.PollIntervalMinutes) * time.Minute,
		SweepOverdueLoans: cfg.SweepOverdueLoans,
	})
	dispatcher := actions.NewDispatcher(gw, store, engine, mintPrice)

	server, err := rpc.NewServer(ctx, buildServerConfig(cfg), store, dispatcher, engine)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create HTTP server")
	}

	accounts, err := gw.RequestAccounts(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve wallet accounts")
	}
	account := accounts[0]
	log.Info().Str("account", account).Msg("Wallet account resolved")

	// Run the sync loop for the active account
	go func() {
		if err := engine.Run(ctx, account); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Sync engine stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			sigCh <- syscall.SIGTERM
		}
	}()

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}

// buildGatewayConfig converts manifest durations to the gateway config,
// falling back to the gateway defaults when unset.
func buildGatewayConfig(m *config.Manifest) gateway.Config {
	cfg := gateway.DefaultConfig()
	cfg.Endpoints = m.Endpoints
	cfg.DefiContract = m.DefiContract
	cfg.NftContract = m.NftContract
	if m.ReceiptTimeoutSeconds > 0 {
		cfg.ReceiptTimeout = time.Duration(m.ReceiptTimeoutSeconds) * time.Second
	}
	if m.LogPollSeconds > 0 {
		cfg.LogPollInterval = time.Duration(m.LogPollSeconds) * time.Second
	}
	if m.HealthCheckSeconds > 0 {
		cfg.HealthCheckInterval = time.Duration(m.HealthCheckSeconds) * time.Second
	}
	return cfg
}

// buildServerConfig converts the loaded PortalConfig to rpc.ServerConfig
func buildServerConfig(cfg *config.PortalConfig) *rpc.ServerConfig {
	serverConfig := &rpc.ServerConfig{
		Address:        cfg.Host + ":" + strconv.Itoa(cfg.Port),
		AllowedOrigins: cfg.AllowedOrigins,
		EnableMetrics:  cfg.UsePrometheus,
	}

	if cfg.RatePerMinute > 0 {
		serverConfig.RatePerMinute = &cfg.RatePerMinute
	}
	if cfg.MaxConcurrentRequests > 0 {
		serverConfig.Burst = &cfg.MaxConcurrentRequests
	}

	if cfg.EnableTracing || cfg.EnableMetrics || cfg.EnableLogs || cfg.UsePrometheus {
		serverConfig.OTelConfig = rpc.OTelFromPortalConfig(cfg)
		if serverConfig.OTelConfig.ServiceName == "" {
			serverConfig.OTelConfig.ServiceName = "dexlend-portal"
		}
		if serverConfig.OTelConfig.ServiceVersion == "" {
			serverConfig.OTelConfig.ServiceVersion = "1.0.0"
		}
		if serverConfig.OTelConfig.Environment == "" {
			serverConfig.OTelConfig.Environment = "development"
		}
	}

	return serverConfig
}
