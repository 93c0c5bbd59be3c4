package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/thereceipt/order-printer/internal/command"
	"github.com/thereceipt/order-printer/internal/config"
	"github.com/thereceipt/order-printer/internal/dispatch"
	"github.com/thereceipt/order-printer/internal/execx"
	"github.com/thereceipt/order-printer/internal/gate"
	"github.com/thereceipt/order-printer/internal/logging"
	"github.com/thereceipt/order-printer/internal/oplog"
	"github.com/thereceipt/order-printer/internal/printer"
	"github.com/thereceipt/order-printer/internal/relay"
	"github.com/thereceipt/order-printer/internal/renderer"
	"github.com/thereceipt/order-printer/internal/tui"
)

// Version is set during build via ldflags
var Version = "dev"

func main() {
	console := flag.Bool("console", false, "Run the interactive operator console")
	port := flag.String("port", "", "Listen port (overrides RELAY_PORT)")
	flag.Parse()

	cfg := config.Load()
	if *port != "" {
		cfg.RelayPort = *port
	}
	if err := cfg.EnsureDirs(); err != nil {
		slog.Error("failed to create data directories", "dir", cfg.DataDir, "err", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	if *console {
		// stdout belongs to the console; process logs go to a file
		f, err := os.OpenFile(filepath.Join(cfg.DataDir, "relay.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			slog.Error("failed to open relay log file", "err", err)
			os.Exit(1)
		}
		defer f.Close()
		logger = logging.NewWithWriter(f, cfg.LogLevel)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ips, err := gate.New(cfg.AuthFile, cfg.TrustedRelayIPs, logger)
	if err != nil {
		logger.Error("failed to load authorized IPs", "path", cfg.AuthFile, "err", err)
		os.Exit(1)
	}

	runner := execx.OS{}
	opLog := oplog.New(cfg.LogCapacity, relayLogFile(cfg.LogFile), logger)

	discoverer := printer.NewDiscoverer(runner, printer.DiscoveryOptions{
		USBDescriptors: cfg.DiscoverUSBDescriptors,
		Serial:         cfg.DiscoverSerial,
	}, logger)

	// no RelayURLs: the relay prints locally
	dispatcher := dispatch.New(
		discoverer,
		printer.NewSpooler(runner, cfg.PrintTimeout),
		printer.NewRawPrinter(cfg.PrintTimeout),
		opLog,
		dispatch.Options{
			ThermalIdentifiers: cfg.ThermalIdentifiers,
			UnprintedDir:       cfg.UnprintedDir,
		},
		logger,
	)

	executor := command.NewExecutor(command.Deps{
		Catalog:    discoverer,
		Activator:  printer.NewActivator(runner, cfg.ActivationDelay, logger),
		Dispatcher: dispatcher,
		Renderer:   renderer.New(cfg.RestaurantName),
		Log:        opLog,
		Gate:       ips,
	})

	server := relay.NewServer(relay.Deps{
		Gate:       ips,
		Dispatcher: dispatcher,
		Catalog:    discoverer,
		Log:        opLog,
		Executor:   executor,
		PublicURL:  cfg.RelayPublicURL,
	}, logger)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.RelayPort,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("print relay starting", "addr", srv.Addr, "version", Version, "trusted", cfg.TrustedRelayIPs)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("relay error", "err", err)
			stop()
		}
	}()
	opLog.Info("print relay started", map[string]any{"port": cfg.RelayPort, "version": Version})

	if *console {
		c := tui.NewConsole(ips, opLog, executor, discoverer, cfg.RelayPort)
		if err := c.Run(ctx); err != nil {
			logger.Error("console error", "err", err)
		}
		stop()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "err", err)
	}
}

// relayLogFile keeps the relay's operation log apart from the server's when
// both run on one machine.
func relayLogFile(serverLog string) string {
	if serverLog == "" {
		return ""
	}
	return strings.TrimSuffix(serverLog, ".json") + "_relay.json"
}
