package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/thereceipt/order-printer/internal/dispatch"
	"github.com/thereceipt/order-printer/internal/gate"
	"github.com/thereceipt/order-printer/internal/printer"
)

// handleDetect handles detect command
// Usage: detect
func (e *Executor) handleDetect(ctx context.Context) *Result {
	printers := e.deps.Catalog.DetectAllPrinters(ctx)

	lines := make([]string, 0, len(printers))
	for _, p := range printers {
		line := fmt.Sprintf("  %-28s %-7s %s", p.ID, p.Kind, p.Status)
		if p.IsDefault {
			line += " (default)"
		}
		lines = append(lines, line)
	}

	msg := fmt.Sprintf("Detected %d printer(s)", len(printers))
	if len(lines) > 0 {
		msg += "\n" + strings.Join(lines, "\n")
	}
	return &Result{
		Success: true,
		Message: msg,
		Data: map[string]interface{}{
			"count":    len(printers),
			"printers": printers,
		},
	}
}

// handleActivate handles activate command
// Usage: activate <printer-id>
func (e *Executor) handleActivate(ctx context.Context, args []string) *Result {
	if len(args) != 1 {
		return failure("usage: activate <printer-id>")
	}

	res := e.deps.Activator.Activate(ctx, args[0])
	if !res.Success {
		return &Result{
			Success: false,
			Error:   res.Message,
			Data:    map[string]interface{}{"errorCode": res.ErrorCode, "printerId": res.PrinterID},
		}
	}
	return &Result{
		Success: true,
		Message: res.Message,
		Data:    map[string]interface{}{"printerId": res.PrinterID},
	}
}

// handleTest handles test command
// Usage: test <printer-id>
func (e *Executor) handleTest(ctx context.Context, args []string) *Result {
	if len(args) != 1 {
		return failure("usage: test <printer-id>")
	}

	name := args[0]
	for _, p := range e.deps.Catalog.DetectAllPrinters(ctx) {
		if p.ID == args[0] {
			name = p.DisplayName
			break
		}
	}

	res := e.deps.Dispatcher.Dispatch(ctx, dispatch.Job{
		Text:            e.deps.Renderer.RenderTest(name),
		TargetPrinterID: args[0],
		UserName:        "console",
	})
	return fromDispatch(res)
}

// handleStatus handles status command
// Usage: status
func (e *Executor) handleStatus(ctx context.Context) *Result {
	summary := printer.Summarize(e.deps.Catalog.DetectAllPrinters(ctx))

	def := "none"
	if summary.DefaultPrinter != nil {
		def = *summary.DefaultPrinter
	}
	msg := fmt.Sprintf("%d printer(s), %d active, default: %s", summary.TotalPrinters, summary.ActivePrinters, def)

	data := map[string]interface{}{
		"totalPrinters":  summary.TotalPrinters,
		"activePrinters": summary.ActivePrinters,
		"defaultPrinter": summary.DefaultPrinter,
	}
	if e.deps.AutoPrint != nil {
		st := e.deps.AutoPrint.Status()
		data["autoprint"] = st
		msg += fmt.Sprintf("\nauto-print: %s, last order %d", onOff(st.Enabled), st.LastProcessedOrderID)
	}
	if e.deps.Gate != nil {
		counts := e.deps.Gate.Counts()
		data["ips"] = counts
		msg += fmt.Sprintf("\nIPs: %d approved, %d pending, %d rejected",
			counts[gate.StatusApproved], counts[gate.StatusPending], counts[gate.StatusRejected])
	}
	return &Result{Success: true, Message: msg, Data: data}
}

// handleLogs handles logs command
// Usage: logs [n]
func (e *Executor) handleLogs(args []string) *Result {
	n := 20
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return failure("usage: logs [n]")
		}
		n = v
	}

	entries := e.deps.Log.Recent(n)
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("%s [%s] %s", entry.Timestamp.Format("15:04:05"), entry.Level, entry.Message))
	}
	return &Result{
		Success: true,
		Message: strings.Join(lines, "\n"),
		Data:    map[string]interface{}{"logs": entries},
	}
}

// handleAutoPrint handles autoprint commands
// Usage: autoprint on|off|status|tick
func (e *Executor) handleAutoPrint(ctx context.Context, args []string) *Result {
	if len(args) != 1 {
		return failure("usage: autoprint on|off|status|tick")
	}

	m := e.deps.AutoPrint
	switch args[0] {
	case "on", "enable":
		m.Enable()
	case "off", "disable":
		m.Disable()
	case "status":
	case "tick":
		report := m.Tick(ctx)
		return &Result{
			Success: true,
			Message: fmt.Sprintf("printed %d, failed %d", len(report.Printed), len(report.Failed)),
			Data:    map[string]interface{}{"report": report},
		}
	default:
		return failure("usage: autoprint on|off|status|tick")
	}

	st := m.Status()
	return &Result{
		Success: true,
		Message: fmt.Sprintf("auto-print %s (last order %d)", onOff(st.Enabled), st.LastProcessedOrderID),
		Data:    map[string]interface{}{"autoprint": st},
	}
}

// handleIP handles ip commands
// Usage: ip list | ip approve|reject|remove <ip>
func (e *Executor) handleIP(args []string) *Result {
	if len(args) == 0 {
		return failure("usage: ip list|approve|reject|remove <ip>")
	}

	store := e.deps.Gate
	if args[0] == "list" {
		entries := store.List()
		lines := make([]string, 0, len(entries))
		for _, entry := range entries {
			lines = append(lines, fmt.Sprintf("  %-40s %-9s %s", entry.IP, entry.Status, entry.LastActivityAt.Format("02/01 15:04")))
		}
		msg := fmt.Sprintf("%d IP(s)", len(entries))
		if len(lines) > 0 {
			msg += "\n" + strings.Join(lines, "\n")
		}
		return &Result{Success: true, Message: msg, Data: map[string]interface{}{"ips": entries}}
	}

	if len(args) != 2 {
		return failure("usage: ip list|approve|reject|remove <ip>")
	}

	ip := args[1]
	var err error
	switch args[0] {
	case "approve":
		_, err = store.Approve(ip)
	case "reject":
		_, err = store.Reject(ip)
	case "remove":
		err = store.Remove(ip)
	default:
		return failure("usage: ip list|approve|reject|remove <ip>")
	}

	if errors.Is(err, gate.ErrIPNotFound) {
		return failure("IP not found: %s", ip)
	}
	if err != nil {
		return failure("%v", err)
	}
	return &Result{Success: true, Message: fmt.Sprintf("%s: %s", args[0], gate.Normalize(ip))}
}

var helpLines = []struct {
	command string
	usage   string
}{
	{"detect", "detect\n    Detect printers"},
	{"status", "status\n    Show printer, auto-print and IP summary"},
	{"activate", "activate <printer-id>\n    Re-enable a disabled system printer"},
	{"test", "test <printer-id>\n    Print a test page"},
	{"logs", "logs [n]\n    Show the last n operation log entries"},
	{"autoprint", "autoprint on|off|status|tick\n    Control the auto-print monitor"},
	{"ip", "ip list\n  ip approve|reject|remove <ip>\n    Manage relay client IPs"},
	{"help", "help\n    Show this help message"},
}

// handleHelp lists the commands this executor has components for.
func (e *Executor) handleHelp() *Result {
	var b strings.Builder
	b.WriteString("Available Commands:\n")
	for _, h := range helpLines {
		if e.available(h.command) {
			b.WriteString("\n  " + h.usage + "\n")
		}
	}
	return &Result{Success: true, Message: b.String()}
}

func fromDispatch(res dispatch.Result) *Result {
	data := map[string]interface{}{"result": res}
	if !res.Success {
		return &Result{Success: false, Error: res.Message, Data: data}
	}
	msg := res.Message
	if res.Fallback {
		msg = "no printer answered, saved to " + res.FilePath
	}
	return &Result{Success: true, Message: msg, Data: data}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
