package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thereceipt/order-printer/internal/api"
	"github.com/thereceipt/order-printer/internal/autoprint"
	"github.com/thereceipt/order-printer/internal/command"
	"github.com/thereceipt/order-printer/internal/config"
	"github.com/thereceipt/order-printer/internal/dispatch"
	"github.com/thereceipt/order-printer/internal/events"
	"github.com/thereceipt/order-printer/internal/execx"
	"github.com/thereceipt/order-printer/internal/logging"
	"github.com/thereceipt/order-printer/internal/oplog"
	"github.com/thereceipt/order-printer/internal/orders"
	"github.com/thereceipt/order-printer/internal/orders/sqlite"
	"github.com/thereceipt/order-printer/internal/printer"
	"github.com/thereceipt/order-printer/internal/renderer"
)

// Version is set during build via ldflags
var Version = "dev"

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.EnsureDirs(); err != nil {
		logger.Error("failed to create data directories", "dir", cfg.DataDir, "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := execx.OS{}
	opLog := oplog.New(cfg.LogCapacity, cfg.LogFile, logger)

	discoverer := printer.NewDiscoverer(runner, printer.DiscoveryOptions{
		USBDescriptors: cfg.DiscoverUSBDescriptors,
		Serial:         cfg.DiscoverSerial,
	}, logger)
	discoverer.OnPrinterAdded(func(d printer.Device) {
		opLog.Info("printer connected: "+d.DisplayName, map[string]any{"printerId": d.ID, "kind": d.Kind})
	})
	discoverer.OnPrinterRemoved(func(d printer.Device) {
		opLog.Warn("printer disconnected: "+d.DisplayName, map[string]any{"printerId": d.ID, "kind": d.Kind})
	})

	dispatcher := dispatch.New(
		discoverer,
		printer.NewSpooler(runner, cfg.PrintTimeout),
		printer.NewRawPrinter(cfg.PrintTimeout),
		opLog,
		dispatch.Options{
			RelayURLs:          cfg.RelayURLs,
			RelayTimeout:       cfg.RelayTimeout,
			ThermalIdentifiers: cfg.ThermalIdentifiers,
			UnprintedDir:       cfg.UnprintedDir,
		},
		logger,
	)

	publisher := events.Publisher(events.Nop{})
	if cfg.MQTTBroker != "" {
		p, err := events.Connect(events.Config{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Topic:    cfg.MQTTTopicPrints,
		}, logger)
		if err != nil {
			logger.Warn("MQTT unavailable, print events disabled", "broker", cfg.MQTTBroker, "err", err)
		} else {
			go p.Start(ctx)
			publisher = p
		}
	}
	defer publisher.Close()
	dispatcher.OnResult(publisher.Publish)

	source, closeSource, err := openOrders(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open orders source", "err", err)
		os.Exit(1)
	}
	defer closeSource()

	rend := renderer.New(cfg.RestaurantName)

	monitor := autoprint.New(source, discoverer, dispatcher, rend, opLog, cfg.AutoprintInterval, logger)
	if cfg.AutoprintEnabled {
		monitor.Enable()
	}
	monitor.Start(ctx)
	defer monitor.Stop()

	watcher := printer.NewWatcher(discoverer, cfg.PrinterWatchInterval, logger)
	watcher.Start(ctx)
	defer watcher.Stop()

	activator := printer.NewActivator(runner, cfg.ActivationDelay, logger)
	executor := command.NewExecutor(command.Deps{
		Catalog:    discoverer,
		Activator:  activator,
		Dispatcher: dispatcher,
		Renderer:   rend,
		Log:        opLog,
		AutoPrint:  monitor,
	})

	server := api.NewServer(api.Deps{
		Catalog:    discoverer,
		Activator:  activator,
		Dispatcher: dispatcher,
		Renderer:   rend,
		Orders:     source,
		Log:        opLog,
		AutoPrint:  monitor,
		Executor:   executor,
	}, logger)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.ServerPort,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("print server starting", "addr", srv.Addr, "version", Version, "relays", len(cfg.RelayURLs))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			stop()
		}
	}()
	opLog.Info("print server started", map[string]any{"port": cfg.ServerPort, "version": Version})

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "err", err)
	}
}

// openOrders picks the dashboard API, then a local SQLite store, then an
// empty in-memory store.
func openOrders(ctx context.Context, cfg config.Config, logger *slog.Logger) (orders.Collaborator, func(), error) {
	switch {
	case cfg.OrdersAPIURL != "":
		logger.Info("orders source: dashboard API", "url", cfg.OrdersAPIURL)
		return orders.NewHTTPSource(cfg.OrdersAPIURL, cfg.OrdersAPIKey, cfg.RelayTimeout), func() {}, nil
	case cfg.OrdersDB != "":
		store, err := sqlite.Open(ctx, cfg.OrdersDB, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("orders source: sqlite", "path", cfg.OrdersDB)
		return store, func() { store.Close() }, nil
	default:
		logger.Warn("no orders source configured, auto-print has nothing to watch")
		return orders.NewMemory(), func() {}, nil
	}
}
