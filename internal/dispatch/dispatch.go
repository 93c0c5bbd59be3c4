// Package dispatch delivers rendered receipts through an ordered cascade of
// strategies, ending in an on-disk fallback so no job is silently lost.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thereceipt/order-printer/internal/execx"
	"github.com/thereceipt/order-printer/internal/oplog"
	"github.com/thereceipt/order-printer/internal/printer"
	"github.com/thereceipt/order-printer/internal/renderer"
)

// Catalog supplies the current printer snapshot.
type Catalog interface {
	DetectAllPrinters(ctx context.Context) []printer.Device
}

// SystemPrinter submits text to a spooler queue. An empty queue is the
// system default.
type SystemPrinter interface {
	Print(ctx context.Context, queue, text string) error
}

// DevicePrinter writes text directly to a USB or serial device.
type DevicePrinter interface {
	Print(ctx context.Context, dev printer.Device, text string) error
}

// Options configures a Dispatcher
type Options struct {
	RelayURLs          []string
	RelayTimeout       time.Duration
	ThermalIdentifiers []string
	UnprintedDir       string
	HTTPClient         *http.Client
}

// Dispatcher runs print jobs one at a time.
type Dispatcher struct {
	catalog Catalog
	system  SystemPrinter
	device  DevicePrinter
	oplog   *oplog.Log
	opts    Options
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time

	onResult []func(Job, Result)
	mu       sync.Mutex
}

// New creates a Dispatcher.
func New(catalog Catalog, system SystemPrinter, device DevicePrinter, log *oplog.Log, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.RelayTimeout <= 0 {
		opts.RelayTimeout = 5 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.RelayTimeout}
	}
	return &Dispatcher{
		catalog: catalog,
		system:  system,
		device:  device,
		oplog:   log,
		opts:    opts,
		client:  client,
		logger:  logger,
		now:     time.Now,
	}
}

// OnResult registers a callback invoked with every final result.
func (d *Dispatcher) OnResult(fn func(Job, Result)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onResult = append(d.onResult, fn)
}

// Dispatch delivers job, stopping at the first strategy that succeeds.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	run := &cascade{
		d:         d,
		job:       job,
		text:      renderer.SanitizeForThermal(job.Text),
		result:    Result{JobID: uuid.New().String()},
		attempted: make(map[string]bool),
	}

	d.oplog.Info("print job started", map[string]any{
		"jobId":   run.result.JobID,
		"orderId": job.OrderID,
		"target":  job.TargetPrinterID,
	})

	result := run.execute(ctx)

	level := oplog.LevelSuccess
	switch {
	case !result.Success:
		level = oplog.LevelError
	case result.Fallback:
		level = oplog.LevelWarn
	}
	d.oplog.Append(level, result.Message, map[string]any{
		"jobId":     result.JobID,
		"orderId":   job.OrderID,
		"printerId": result.PrinterID,
		"fallback":  result.Fallback,
		"filepath":  result.FilePath,
		"error":     result.Error,
		"trace":     result.Trace,
	})
	d.logger.Info("print job finished",
		"job_id", result.JobID,
		"order_id", job.OrderID,
		"success", result.Success,
		"fallback", result.Fallback,
		"printer_id", result.PrinterID,
		"attempts", len(result.Trace),
	)

	for _, fn := range d.onResult {
		fn(job, result)
	}
	return result
}

// cascade holds the state of one Dispatch call.
type cascade struct {
	d         *Dispatcher
	job       Job
	text      string
	result    Result
	devices   []printer.Device
	attempted map[string]bool
}

func (c *cascade) execute(ctx context.Context) Result {
	if len(c.d.opts.RelayURLs) > 0 {
		if done := c.relay(ctx); done {
			return c.result
		}
	}

	c.devices = c.d.catalog.DetectAllPrinters(ctx)

	if c.job.TargetPrinterID != "" {
		if c.preferred(ctx) {
			return c.result
		}
	}

	for _, dev := range c.devices {
		if c.attempted[dev.ID] || !c.isThermal(dev) {
			continue
		}
		if c.tryDevice(ctx, StrategyThermal, dev) {
			return c.result
		}
	}

	if c.systemDefault(ctx) {
		return c.result
	}

	for _, dev := range c.devices {
		if c.attempted[dev.ID] {
			continue
		}
		if c.tryDevice(ctx, StrategyDiscovered, dev) {
			return c.result
		}
	}

	c.fallback()
	return c.result
}

func (c *cascade) record(a Attempt) {
	c.result.Trace = append(c.result.Trace, a)

	level := oplog.LevelError
	switch {
	case a.Success:
		level = oplog.LevelSuccess
	case a.ErrorCode == CodePrintTimeout:
		level = oplog.LevelWarn
	}
	c.d.oplog.Append(level, a.Message, map[string]any{
		"jobId":     c.result.JobID,
		"orderId":   c.job.OrderID,
		"strategy":  a.Strategy,
		"printerId": a.PrinterID,
		"errorCode": a.ErrorCode,
	})
}

func (c *cascade) succeed(a Attempt) bool {
	c.record(a)
	c.result.Success = true
	c.result.Message = a.Message
	c.result.PrinterID = a.PrinterID
	return true
}

func (c *cascade) preferred(ctx context.Context) bool {
	for _, dev := range c.devices {
		if dev.ID == c.job.TargetPrinterID {
			return c.tryDevice(ctx, StrategyPreferred, dev)
		}
	}

	c.attempted[c.job.TargetPrinterID] = true
	c.record(Attempt{
		Strategy:  StrategyPreferred,
		PrinterID: c.job.TargetPrinterID,
		Message:   fmt.Sprintf("printer %s not found", c.job.TargetPrinterID),
		ErrorCode: CodePrinterNotFound,
	})
	return false
}

func (c *cascade) systemDefault(ctx context.Context) bool {
	var def *printer.Device
	for i := range c.devices {
		if c.devices[i].IsDefault && c.devices[i].Kind == printer.KindSystem {
			def = &c.devices[i]
			break
		}
	}

	a := Attempt{Strategy: StrategyDefault}
	if def != nil {
		a.PrinterID = def.ID
		if c.attempted[def.ID] {
			return false
		}
		c.attempted[def.ID] = true
		if def.Status == printer.StatusInactive {
			a.Message = inactiveMessage(*def)
			a.ErrorCode = CodePrinterInactive
			c.record(a)
			return false
		}
	}

	if err := c.d.system.Print(ctx, "", c.text); err != nil {
		a.Message = fmt.Sprintf("default printer failed: %v", err)
		a.ErrorCode = errorCode(err)
		c.record(a)
		return false
	}
	a.Message = "printed on the system default printer"
	return c.succeed(a)
}

func (c *cascade) tryDevice(ctx context.Context, strategy Strategy, dev printer.Device) bool {
	c.attempted[dev.ID] = true
	a := Attempt{Strategy: strategy, PrinterID: dev.ID}

	if dev.Status == printer.StatusInactive {
		a.Message = inactiveMessage(dev)
		a.ErrorCode = CodePrinterInactive
		c.record(a)
		return false
	}

	var err error
	switch dev.Kind {
	case printer.KindSystem:
		err = c.d.system.Print(ctx, dev.DisplayName, c.text)
	case printer.KindUSB, printer.KindSerial:
		err = c.d.device.Print(ctx, dev, c.text)
	default:
		err = fmt.Errorf("unsupported printer kind %q", dev.Kind)
	}

	if err != nil {
		a.Message = fmt.Sprintf("printer %s failed: %v", dev.DisplayName, err)
		a.ErrorCode = errorCode(err)
		c.record(a)
		return false
	}
	a.Message = fmt.Sprintf("printed on %s", dev.DisplayName)
	return c.succeed(a)
}

func (c *cascade) isThermal(dev printer.Device) bool {
	name := strings.ToLower(dev.DisplayName + " " + dev.Description)
	for _, ident := range c.d.opts.ThermalIdentifiers {
		ident = strings.ToLower(strings.TrimSpace(ident))
		if ident != "" && strings.Contains(name, ident) {
			return true
		}
	}
	return false
}

func inactiveMessage(dev printer.Device) string {
	return fmt.Sprintf("printer %s is inactive and must be activated manually", dev.DisplayName)
}

func errorCode(err error) string {
	if errors.Is(err, execx.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return CodePrintTimeout
	}
	return CodePrintFailed
}
