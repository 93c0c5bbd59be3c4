// Package autoprint polls the orders source and prints each new order once
package autoprint

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thereceipt/order-printer/internal/dispatch"
	"github.com/thereceipt/order-printer/internal/oplog"
	"github.com/thereceipt/order-printer/internal/orders"
	"github.com/thereceipt/order-printer/internal/printer"
)

// DefaultInterval between polls
const DefaultInterval = 5 * time.Second

// Dispatcher delivers a print job
type Dispatcher interface {
	Dispatch(ctx context.Context, job dispatch.Job) dispatch.Result
}

// Renderer turns an order into receipt text
type Renderer interface {
	Render(o orders.Order) string
}

// Monitor watches for new orders on a fixed interval. The loop keeps
// running while disabled; ticks are then no-ops.
type Monitor struct {
	source     orders.Collaborator
	catalog    dispatch.Catalog
	dispatcher Dispatcher
	renderer   Renderer
	oplog      *oplog.Log
	logger     *slog.Logger
	interval   time.Duration

	enabled  atomic.Bool
	inFlight atomic.Bool
	running  atomic.Bool

	mu            sync.Mutex
	lastProcessed int64
	printed       map[int64]bool
	reported      map[int64]bool
	lastTickAt    time.Time
	lastError     string

	cancel context.CancelFunc
	done   chan struct{}
}

// TickReport summarises one poll
type TickReport struct {
	Skipped  bool    `json:"skipped"`
	Disabled bool    `json:"disabled"`
	Printed  []int64 `json:"printed"`
	Failed   []int64 `json:"failed"`
	Error    string  `json:"error,omitempty"`
}

// Status is the monitor state exposed to operators
type Status struct {
	Enabled              bool      `json:"enabled"`
	Running              bool      `json:"running"`
	InFlight             bool      `json:"inFlight"`
	Interval             string    `json:"interval"`
	LastProcessedOrderID int64     `json:"lastProcessedOrderId"`
	PrintedOrderIDs      []int64   `json:"printedOrderIds"`
	LastTickAt           time.Time `json:"lastTickAt,omitempty"`
	LastError            string    `json:"lastError,omitempty"`
}

// New creates a disabled monitor.
func New(source orders.Collaborator, catalog dispatch.Catalog, dispatcher Dispatcher, renderer Renderer, log *oplog.Log, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		source:     source,
		catalog:    catalog,
		dispatcher: dispatcher,
		renderer:   renderer,
		oplog:      log,
		logger:     logger,
		interval:   interval,
		printed:    make(map[int64]bool),
		reported:   make(map[int64]bool),
	}
}

// Start begins polling until ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		defer m.running.Store(false)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Tick runs inline so a slow poll delays the next one rather
				// than overlapping it; ticks that fire meanwhile are dropped.
				m.Tick(ctx)
			}
		}
	}()
}

// Stop ends the polling loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

func (m *Monitor) Enable() {
	if !m.enabled.Swap(true) {
		m.oplog.Info("auto-print enabled", nil)
		m.logger.Info("auto-print enabled")
	}
}

func (m *Monitor) Disable() {
	if m.enabled.Swap(false) {
		m.oplog.Info("auto-print disabled", nil)
		m.logger.Info("auto-print disabled")
	}
}

func (m *Monitor) Enabled() bool {
	return m.enabled.Load()
}

// Status returns a snapshot of the monitor state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, len(m.printed))
	for id := range m.printed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return Status{
		Enabled:              m.enabled.Load(),
		Running:              m.running.Load(),
		InFlight:             m.inFlight.Load(),
		Interval:             m.interval.String(),
		LastProcessedOrderID: m.lastProcessed,
		PrintedOrderIDs:      ids,
		LastTickAt:           m.lastTickAt,
		LastError:            m.lastError,
	}
}

// Tick runs one poll. A tick requested while another is in flight is
// skipped.
func (m *Monitor) Tick(ctx context.Context) TickReport {
	if !m.enabled.Load() {
		return TickReport{Disabled: true}
	}
	if !m.inFlight.CompareAndSwap(false, true) {
		m.logger.Debug("auto-print tick skipped, previous tick still running")
		return TickReport{Skipped: true}
	}
	defer m.inFlight.Store(false)

	report := TickReport{}

	all, err := m.source.GetAllOrders(ctx)
	m.mu.Lock()
	m.lastTickAt = time.Now()
	if err != nil {
		m.lastError = err.Error()
	}
	m.mu.Unlock()
	if err != nil {
		m.logger.Error("failed to fetch orders", "err", err)
		m.oplog.Error("auto-print failed to fetch orders", map[string]any{"error": err.Error()})
		report.Error = err.Error()
		return report
	}

	for _, o := range m.pending(all) {
		if ctx.Err() != nil || !m.enabled.Load() {
			break
		}
		if m.printOrder(ctx, o) {
			report.Printed = append(report.Printed, o.ID)
		} else {
			report.Failed = append(report.Failed, o.ID)
		}
	}
	return report
}

// pending filters orders to those above the cursor, sorted by id, and
// reports once each failed order the cursor has passed.
func (m *Monitor) pending(all []orders.Order) []orders.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []orders.Order
	for _, o := range all {
		if o.IsCancelled() || o.Printed || m.printed[o.ID] {
			continue
		}
		if o.ID <= m.lastProcessed {
			if !m.reported[o.ID] {
				m.reported[o.ID] = true
				m.logger.Warn("unprinted order below cursor will not be retried",
					"order_id", o.ID, "cursor", m.lastProcessed)
				m.oplog.Warn("skipped_below_cursor", map[string]any{
					"orderId": o.ID,
					"cursor":  m.lastProcessed,
				})
			}
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Monitor) printOrder(ctx context.Context, o orders.Order) bool {
	target := pickPrinter(m.catalog.DetectAllPrinters(ctx))

	res := m.dispatcher.Dispatch(ctx, dispatch.Job{
		OrderID:         o.ID,
		Text:            m.renderer.Render(o),
		TargetPrinterID: target,
		UserName:        "autoprint",
	})

	if !res.Success {
		m.mu.Lock()
		m.lastError = fmt.Sprintf("order %d: %s", o.ID, res.Message)
		m.mu.Unlock()
		m.logger.Error("auto-print failed", "order_id", o.ID, "error", res.Error, "message", res.Message)
		return false
	}

	m.mu.Lock()
	if m.printed[o.ID] {
		m.mu.Unlock()
		return true
	}
	m.printed[o.ID] = true
	if o.ID > m.lastProcessed {
		m.lastProcessed = o.ID
	}
	m.mu.Unlock()

	if err := m.source.UpdatePrintStatus(ctx, o.ID, true); err != nil {
		m.logger.Warn("failed to mark order printed", "order_id", o.ID, "err", err)
		m.oplog.Warn("failed to mark order printed", map[string]any{"orderId": o.ID, "error": err.Error()})
	}
	m.logger.Info("auto-printed order", "order_id", o.ID, "printer_id", res.PrinterID, "fallback", res.Fallback)
	return true
}

// pickPrinter returns the first online printer, or the first printer when
// none is online.
func pickPrinter(devices []printer.Device) string {
	for _, d := range devices {
		if d.Status == printer.StatusOnline {
			return d.ID
		}
	}
	if len(devices) > 0 {
		return devices[0].ID
	}
	return ""
}
