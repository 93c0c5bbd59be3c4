package printer

import (
	"context"
	"log/slog"
	"time"
)

// Catalog is anything that can rediscover printers.
type Catalog interface {
	DetectAllPrinters(ctx context.Context) []Device
}

// Watcher refreshes the printer catalog on an interval so that
// OnPrinterAdded and OnPrinterRemoved callbacks fire for hot-plugged devices.
type Watcher struct {
	catalog  Catalog
	interval time.Duration
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewWatcher creates a watcher; Start must be called to begin polling.
func NewWatcher(catalog Catalog, interval time.Duration, logger *slog.Logger) *Watcher {
	return &Watcher{
		catalog:  catalog,
		interval: interval,
		logger:   logger,
	}
}

// Start performs an initial discovery and then polls until ctx is done or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	w.refresh()

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.ctx.Done():
				return
			case <-ticker.C:
				w.refresh()
			}
		}
	}()
}

// Stop halts polling and waits for the loop to exit.
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

func (w *Watcher) refresh() {
	ctx, cancel := context.WithTimeout(w.ctx, w.interval)
	defer cancel()
	devices := w.catalog.DetectAllPrinters(ctx)
	w.logger.Debug("printer catalog refreshed", "count", len(devices))
}
