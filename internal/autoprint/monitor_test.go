package autoprint

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thereceipt/order-printer/internal/dispatch"
	"github.com/thereceipt/order-printer/internal/logging"
	"github.com/thereceipt/order-printer/internal/oplog"
	"github.com/thereceipt/order-printer/internal/orders"
	"github.com/thereceipt/order-printer/internal/printer"
	"github.com/thereceipt/order-printer/internal/renderer"
)

type fakeDispatcher struct {
	mu      sync.Mutex
	jobs    []dispatch.Job
	fail    func(orderID int64, attempt int) bool
	entered chan struct{}
	release chan struct{}
}

func (f *fakeDispatcher) Dispatch(_ context.Context, job dispatch.Job) dispatch.Result {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)

	attempt := 0
	for _, j := range f.jobs {
		if j.OrderID == job.OrderID {
			attempt++
		}
	}
	if f.fail != nil && f.fail(job.OrderID, attempt) {
		return dispatch.Result{Success: false, Message: "all printers failed", Error: dispatch.CodeFallbackFailed}
	}
	return dispatch.Result{Success: true, Message: "printed", PrinterID: job.TargetPrinterID}
}

func (f *fakeDispatcher) count(orderID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, j := range f.jobs {
		if j.OrderID == orderID {
			n++
		}
	}
	return n
}

type fakeCatalog struct{ devices []printer.Device }

func (f fakeCatalog) DetectAllPrinters(context.Context) []printer.Device { return f.devices }

// staticSource never records the printed flag, so only the monitor's own
// bookkeeping prevents reprints.
type staticSource struct{ orders []orders.Order }

func (s staticSource) GetAllOrders(context.Context) ([]orders.Order, error) { return s.orders, nil }

func (s staticSource) UpdatePrintStatus(context.Context, int64, bool) error {
	return errors.New("dashboard unavailable")
}

func newTestMonitor(src orders.Collaborator, d Dispatcher, devices ...printer.Device) (*Monitor, *oplog.Log) {
	log := oplog.New(100, "", logging.Discard())
	m := New(src, fakeCatalog{devices: devices}, d, renderer.New("Teste"), log, time.Hour, logging.Discard())
	m.Enable()
	return m, log
}

func TestTick_AtMostOnce(t *testing.T) {
	src := staticSource{orders: []orders.Order{{ID: 3}, {ID: 1}, {ID: 2}}}
	d := &fakeDispatcher{}
	m, _ := newTestMonitor(src, d)

	for i := 0; i < 5; i++ {
		m.Tick(context.Background())
	}

	for _, id := range []int64{1, 2, 3} {
		if n := d.count(id); n != 1 {
			t.Errorf("Expected order %d dispatched once, got %d", id, n)
		}
	}
	if d.jobs[0].OrderID != 1 || d.jobs[2].OrderID != 3 {
		t.Errorf("Expected ascending order, got %+v", d.jobs)
	}

	st := m.Status()
	if st.LastProcessedOrderID != 3 || len(st.PrintedOrderIDs) != 3 {
		t.Errorf("Unexpected status %+v", st)
	}
}

func TestTick_MarksOrdersPrinted(t *testing.T) {
	src := orders.NewMemory(orders.Order{ID: 10, CustomerName: "Ana"})
	d := &fakeDispatcher{}
	m, _ := newTestMonitor(src, d)

	report := m.Tick(context.Background())
	if len(report.Printed) != 1 || report.Printed[0] != 10 {
		t.Fatalf("Unexpected report %+v", report)
	}

	updates := src.Updates()
	if len(updates) != 1 || updates[0].OrderID != 10 || !updates[0].Printed {
		t.Errorf("Expected printed flag persisted, got %+v", updates)
	}
}

func TestTick_FailureIsRetried(t *testing.T) {
	src := orders.NewMemory(orders.Order{ID: 1})
	d := &fakeDispatcher{fail: func(id int64, attempt int) bool { return attempt == 1 }}
	m, _ := newTestMonitor(src, d)

	first := m.Tick(context.Background())
	if len(first.Failed) != 1 || m.Status().LastProcessedOrderID != 0 {
		t.Fatalf("Expected failure with cursor untouched, got %+v / %+v", first, m.Status())
	}

	second := m.Tick(context.Background())
	if len(second.Printed) != 1 || m.Status().LastProcessedOrderID != 1 {
		t.Fatalf("Expected retry to succeed, got %+v", second)
	}
	if d.count(1) != 2 {
		t.Errorf("Expected two attempts, got %d", d.count(1))
	}
}

func TestTick_SkippedBelowCursorReportedOnce(t *testing.T) {
	src := orders.NewMemory(orders.Order{ID: 1}, orders.Order{ID: 2})
	d := &fakeDispatcher{fail: func(id int64, _ int) bool { return id == 1 }}
	m, log := newTestMonitor(src, d)

	m.Tick(context.Background())
	m.Tick(context.Background())
	m.Tick(context.Background())

	if d.count(1) != 1 {
		t.Errorf("Expected order 1 not retried below cursor, got %d attempts", d.count(1))
	}

	skipped := 0
	for _, e := range log.Entries() {
		if e.Message == "skipped_below_cursor" {
			skipped++
			if e.Level != oplog.LevelWarn {
				t.Errorf("Expected warn level, got %s", e.Level)
			}
		}
	}
	if skipped != 1 {
		t.Errorf("Expected one skipped_below_cursor entry, got %d", skipped)
	}
}

func TestTick_SkipsCancelledAndPrinted(t *testing.T) {
	src := orders.NewMemory(
		orders.Order{ID: 1, Status: "cancelado"},
		orders.Order{ID: 2, Status: "Cancelled"},
		orders.Order{ID: 3, Printed: true},
		orders.Order{ID: 4, Status: "pendente"},
	)
	d := &fakeDispatcher{}
	m, _ := newTestMonitor(src, d)

	m.Tick(context.Background())
	if len(d.jobs) != 1 || d.jobs[0].OrderID != 4 {
		t.Errorf("Expected only order 4, got %+v", d.jobs)
	}
}

func TestTick_DisabledIsNoop(t *testing.T) {
	d := &fakeDispatcher{}
	m, _ := newTestMonitor(orders.NewMemory(orders.Order{ID: 1}), d)
	m.Disable()

	if r := m.Tick(context.Background()); !r.Disabled {
		t.Errorf("Expected disabled report, got %+v", r)
	}
	if len(d.jobs) != 0 {
		t.Error("Expected no dispatch while disabled")
	}
}

func TestTick_OverlapIsSkipped(t *testing.T) {
	d := &fakeDispatcher{entered: make(chan struct{}), release: make(chan struct{})}
	m, _ := newTestMonitor(orders.NewMemory(orders.Order{ID: 1}), d)

	done := make(chan TickReport)
	go func() { done <- m.Tick(context.Background()) }()
	<-d.entered

	if r := m.Tick(context.Background()); !r.Skipped {
		t.Errorf("Expected overlapping tick skipped, got %+v", r)
	}

	close(d.release)
	if r := <-done; len(r.Printed) != 1 {
		t.Errorf("Expected first tick to print, got %+v", r)
	}
}

func TestTick_TargetsFirstOnlinePrinter(t *testing.T) {
	d := &fakeDispatcher{}
	m, _ := newTestMonitor(orders.NewMemory(orders.Order{ID: 1}), d,
		printer.Device{ID: "system_A", Status: printer.StatusOffline},
		printer.Device{ID: "system_B", Status: printer.StatusOnline},
	)

	m.Tick(context.Background())
	if d.jobs[0].TargetPrinterID != "system_B" {
		t.Errorf("Expected system_B, got %q", d.jobs[0].TargetPrinterID)
	}
	if d.jobs[0].Text == "" {
		t.Error("Expected rendered receipt text")
	}
}

func TestPickPrinter(t *testing.T) {
	if got := pickPrinter(nil); got != "" {
		t.Errorf("Expected empty target, got %q", got)
	}
	got := pickPrinter([]printer.Device{{ID: "a", Status: printer.StatusError}, {ID: "b", Status: printer.StatusInactive}})
	if got != "a" {
		t.Errorf("Expected first printer when none online, got %q", got)
	}
}

func TestStartStop(t *testing.T) {
	d := &fakeDispatcher{}
	log := oplog.New(10, "", logging.Discard())
	m := New(orders.NewMemory(orders.Order{ID: 1}), fakeCatalog{}, d, renderer.New(""), log, 5*time.Millisecond, logging.Discard())
	m.Enable()

	m.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for d.count(1) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()

	if d.count(1) != 1 {
		t.Errorf("Expected order dispatched once by the loop, got %d", d.count(1))
	}
	if m.Status().Running {
		t.Error("Expected monitor stopped")
	}
}
