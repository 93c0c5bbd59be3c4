package tui

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/thereceipt/order-printer/internal/command"
	"github.com/thereceipt/order-printer/internal/gate"
	"github.com/thereceipt/order-printer/internal/logging"
	"github.com/thereceipt/order-printer/internal/oplog"
)

func newTestConsole(t *testing.T) (*Console, *gate.Store, *oplog.Log) {
	t.Helper()
	g, err := gate.New(filepath.Join(t.TempDir(), "ips.json"), nil, logging.Discard())
	if err != nil {
		t.Fatalf("gate.New: %v", err)
	}
	log := oplog.New(20, "", logging.Discard())
	exec := command.NewExecutor(command.Deps{Log: log, Gate: g})
	return NewConsole(g, log, exec, nil, "12213"), g, log
}

func TestConsole_ApproveSelectedIP(t *testing.T) {
	c, g, _ := newTestConsole(t)
	g.RecordUnknown("203.0.113.9", "caixa")
	c.Refresh()

	if got := c.ipTable.GetRowCount(); got != 2 {
		t.Fatalf("Expected header plus one row, got %d", got)
	}
	c.ipTable.Select(1, 0)
	if ip := c.SelectedIP(); ip != "203.0.113.9" {
		t.Fatalf("Expected selected IP 203.0.113.9, got %q", ip)
	}

	if !c.HandleIPKey('a') {
		t.Fatal("Expected 'a' to be consumed")
	}
	if !g.IsAuthorized("203.0.113.9") {
		t.Error("Expected IP approved")
	}

	c.ipTable.Select(1, 0)
	c.HandleIPKey('d')
	if _, ok := g.Get("203.0.113.9"); ok {
		t.Error("Expected IP removed")
	}
	if c.HandleIPKey('x') {
		t.Error("Expected unrelated key to pass through")
	}
}

func TestConsole_PendingListedFirst(t *testing.T) {
	c, g, _ := newTestConsole(t)
	g.RecordUnknown("192.0.2.1", "")
	g.Approve("192.0.2.1")
	g.RecordUnknown("192.0.2.2", "")
	c.Refresh()

	if got := c.ipTable.GetCell(1, 0).Text; got != "192.0.2.2" {
		t.Errorf("Expected pending IP on top, got %s", got)
	}
}

func TestConsole_RunCommandEchoesResult(t *testing.T) {
	c, _, _ := newTestConsole(t)

	c.RunCommand("ip approve 192.0.2.99")
	lines := strings.Join(c.Lines(), "\n")
	if !strings.Contains(lines, "> ip approve 192.0.2.99") {
		t.Errorf("Expected command echo, got %q", lines)
	}
	if !strings.Contains(lines, "[red]IP not found") {
		t.Errorf("Expected error line, got %q", lines)
	}

	c.RunCommand("clear")
	if len(c.Lines()) != 0 {
		t.Errorf("Expected clear to empty the log panel, got %d lines", len(c.Lines()))
	}
}

func TestFormatEntry(t *testing.T) {
	e := oplog.Entry{Level: oplog.LevelSuccess, Message: "printed [42]", Timestamp: time.Date(2026, 10, 16, 12, 0, 0, 0, time.Local)}
	got := FormatEntry(e)
	if !strings.HasPrefix(got, "[green]") || !strings.Contains(got, "12:00:00") {
		t.Errorf("Unexpected entry format %q", got)
	}
	if !strings.Contains(got, "printed [42[]") {
		t.Errorf("Expected message escaped for tview, got %q", got)
	}
}

func TestFormatResult(t *testing.T) {
	ok := FormatResult(&command.Result{Success: true, Message: "done", Data: map[string]interface{}{"b": 2, "a": 1}})
	if ok != "[green]done[white]\n  a: 1\n  b: 2" {
		t.Errorf("Unexpected success format %q", ok)
	}
	bad := FormatResult(&command.Result{Error: "boom"})
	if bad != "[red]boom[white]" {
		t.Errorf("Unexpected failure format %q", bad)
	}
}
