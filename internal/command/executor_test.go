package command

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/thereceipt/order-printer/internal/autoprint"
	"github.com/thereceipt/order-printer/internal/dispatch"
	"github.com/thereceipt/order-printer/internal/gate"
	"github.com/thereceipt/order-printer/internal/logging"
	"github.com/thereceipt/order-printer/internal/oplog"
	"github.com/thereceipt/order-printer/internal/printer"
	"github.com/thereceipt/order-printer/internal/renderer"
)

type stubCatalog []printer.Device

func (s stubCatalog) DetectAllPrinters(context.Context) []printer.Device { return s }

type stubActivator struct{ called string }

func (a *stubActivator) Activate(_ context.Context, id string) printer.ActivationResult {
	a.called = id
	if id == "usb_lp0" {
		return printer.ActivationResult{Success: false, Message: "not a system printer", PrinterID: id, ErrorCode: printer.CodeNotSystemPrinter}
	}
	return printer.ActivationResult{Success: true, Message: "activated", PrinterID: id}
}

type stubDispatcher struct{ jobs []dispatch.Job }

func (d *stubDispatcher) Dispatch(_ context.Context, job dispatch.Job) dispatch.Result {
	d.jobs = append(d.jobs, job)
	return dispatch.Result{Success: true, Message: "printed on Kitchen", PrinterID: job.TargetPrinterID}
}

type stubAutoPrint struct {
	enabled bool
	ticks   int
}

func (s *stubAutoPrint) Enable()  { s.enabled = true }
func (s *stubAutoPrint) Disable() { s.enabled = false }
func (s *stubAutoPrint) Status() autoprint.Status {
	return autoprint.Status{Enabled: s.enabled, LastProcessedOrderID: 7}
}
func (s *stubAutoPrint) Tick(context.Context) autoprint.TickReport {
	s.ticks++
	return autoprint.TickReport{Printed: []int64{8}}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"detect", []string{"detect"}},
		{"activate system_Kitchen", []string{"activate", "system_Kitchen"}},
		{`test "system_Kitchen Printer"`, []string{"test", "system_Kitchen Printer"}},
		{"  ip   approve\t10.0.0.2 ", []string{"ip", "approve", "10.0.0.2"}},
		{"", []string{}},
	}

	for _, tt := range tests {
		result := parseCommand(tt.input)
		if len(result) != len(tt.expected) {
			t.Errorf("parseCommand(%q) = %v, want %v", tt.input, result, tt.expected)
			continue
		}
		for i := range result {
			if result[i] != tt.expected[i] {
				t.Errorf("parseCommand(%q)[%d] = %q, want %q", tt.input, i, result[i], tt.expected[i])
			}
		}
	}
}

func newServerExecutor(t *testing.T) (*Executor, *stubDispatcher, *stubAutoPrint) {
	t.Helper()
	d := &stubDispatcher{}
	ap := &stubAutoPrint{}
	log := oplog.New(10, "", logging.Discard())
	log.Info("first", nil)
	log.Error("second", nil)

	e := NewExecutor(Deps{
		Catalog: stubCatalog{
			{ID: "system_Kitchen", DisplayName: "Kitchen", Kind: printer.KindSystem, Status: printer.StatusOnline, IsDefault: true},
			{ID: "usb_lp0", DisplayName: "lp0", Kind: printer.KindUSB, Status: printer.StatusError},
		},
		Activator:  &stubActivator{},
		Dispatcher: d,
		Renderer:   renderer.New("Teste"),
		Log:        log,
		AutoPrint:  ap,
	})
	return e, d, ap
}

func TestExecute_Detect(t *testing.T) {
	e, _, _ := newServerExecutor(t)
	res := e.Execute(context.Background(), "detect")
	if !res.Success || res.Data["count"] != 2 {
		t.Fatalf("Unexpected result %+v", res)
	}
	if !strings.Contains(res.Message, "system_Kitchen") || !strings.Contains(res.Message, "(default)") {
		t.Errorf("Expected printer listing, got %q", res.Message)
	}
}

func TestExecute_Activate(t *testing.T) {
	e, _, _ := newServerExecutor(t)

	if res := e.Execute(context.Background(), "activate system_Kitchen"); !res.Success {
		t.Errorf("Expected success, got %+v", res)
	}
	res := e.Execute(context.Background(), "activate usb_lp0")
	if res.Success || res.Data["errorCode"] != printer.CodeNotSystemPrinter {
		t.Errorf("Expected NOT_SYSTEM_PRINTER, got %+v", res)
	}
	if res := e.Execute(context.Background(), "activate"); res.Success {
		t.Error("Expected usage error")
	}
}

func TestExecute_Test(t *testing.T) {
	e, d, _ := newServerExecutor(t)
	res := e.Execute(context.Background(), "test system_Kitchen")
	if !res.Success {
		t.Fatalf("Expected success, got %+v", res)
	}
	if len(d.jobs) != 1 || d.jobs[0].TargetPrinterID != "system_Kitchen" {
		t.Fatalf("Unexpected jobs %+v", d.jobs)
	}
	if !strings.Contains(d.jobs[0].Text, "Impressora: Kitchen") {
		t.Errorf("Expected test page naming the printer, got %q", d.jobs[0].Text)
	}
}

func TestExecute_StatusAndLogs(t *testing.T) {
	e, _, _ := newServerExecutor(t)

	res := e.Execute(context.Background(), "status")
	if !res.Success || !strings.Contains(res.Message, "2 printer(s), 1 active, default: Kitchen") {
		t.Errorf("Unexpected status %+v", res)
	}

	res = e.Execute(context.Background(), "logs 1")
	if !res.Success || !strings.Contains(res.Message, "[error] second") || strings.Contains(res.Message, "first") {
		t.Errorf("Unexpected logs %q", res.Message)
	}
	if res := e.Execute(context.Background(), "logs abc"); res.Success {
		t.Error("Expected usage error for non-numeric count")
	}
}

func TestExecute_AutoPrint(t *testing.T) {
	e, _, ap := newServerExecutor(t)

	e.Execute(context.Background(), "autoprint on")
	if !ap.enabled {
		t.Error("Expected enabled")
	}
	res := e.Execute(context.Background(), "autoprint tick")
	if !res.Success || ap.ticks != 1 || res.Message != "printed 1, failed 0" {
		t.Errorf("Unexpected tick result %+v", res)
	}
	e.Execute(context.Background(), "autoprint off")
	if ap.enabled {
		t.Error("Expected disabled")
	}
	if res := e.Execute(context.Background(), "autoprint maybe"); res.Success {
		t.Error("Expected usage error")
	}
}

func TestExecute_IPCommandsOnlyWithGate(t *testing.T) {
	e, _, _ := newServerExecutor(t)
	if res := e.Execute(context.Background(), "ip list"); res.Success {
		t.Error("Expected ip commands unavailable without a gate")
	}

	store, err := gate.New(filepath.Join(t.TempDir(), "ips.json"), nil, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	store.RecordUnknown("203.0.113.9", "")
	relay := NewExecutor(Deps{Gate: store})

	if res := relay.Execute(context.Background(), "ip approve ::ffff:203.0.113.9"); !res.Success {
		t.Fatalf("Expected approve success, got %+v", res)
	}
	if !store.IsAuthorized("203.0.113.9") {
		t.Error("Expected IP approved")
	}
	res := relay.Execute(context.Background(), "ip list")
	if !res.Success || !strings.Contains(res.Message, "approved") {
		t.Errorf("Unexpected list %+v", res)
	}
	if res := relay.Execute(context.Background(), "ip reject 192.0.2.200"); res.Success || !strings.Contains(res.Error, "not found") {
		t.Errorf("Expected not found, got %+v", res)
	}
	if res := relay.Execute(context.Background(), "detect"); res.Success {
		t.Error("Expected detect unavailable on a gate-only executor")
	}
}

func TestExecute_HelpListsAvailableCommands(t *testing.T) {
	relay := NewExecutor(Deps{Log: oplog.New(5, "", logging.Discard())})
	res := relay.Execute(context.Background(), "help")
	if !res.Success || !strings.Contains(res.Message, "logs [n]") {
		t.Fatalf("Unexpected help %+v", res)
	}
	if strings.Contains(res.Message, "activate") {
		t.Error("Expected help to omit unavailable commands")
	}
}

func TestExecute_Unknown(t *testing.T) {
	e, _, _ := newServerExecutor(t)
	for _, cmd := range []string{"", "frobnicate"} {
		if res := e.Execute(context.Background(), cmd); res.Success || res.Error == "" {
			t.Errorf("Expected error for %q, got %+v", cmd, res)
		}
	}
}
