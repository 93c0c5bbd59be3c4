// Package tui holds the relay operator console and the CLI output styles.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/thereceipt/order-printer/internal/command"
	"github.com/thereceipt/order-printer/internal/gate"
	"github.com/thereceipt/order-printer/internal/oplog"
	"github.com/thereceipt/order-printer/internal/printer"
)

const maxLogLines = 200

// Console is the relay operator terminal: pending IPs, printers, the
// operation log and a command line.
type Console struct {
	App      *tview.Application
	gate     *gate.Store
	log      *oplog.Log
	executor *command.Executor
	catalog  command.Catalog
	port     string

	flex         *tview.Flex
	ipTable      *tview.Table
	printersList *tview.List
	statusBox    *tview.TextView
	logsArea     *tview.TextView
	commandInput *tview.InputField

	lines     []string
	startTime time.Time
}

// NewConsole creates the console. catalog may be nil.
func NewConsole(g *gate.Store, log *oplog.Log, executor *command.Executor, catalog command.Catalog, port string) *Console {
	c := &Console{
		App:       tview.NewApplication(),
		gate:      g,
		log:       log,
		executor:  executor,
		catalog:   catalog,
		port:      port,
		startTime: time.Now(),
	}
	c.setupUI()
	return c
}

func (c *Console) setupUI() {
	c.ipTable = tview.NewTable().SetSelectable(true, false).SetFixed(1, 0)
	c.ipTable.SetBorder(true)
	c.ipTable.SetTitle(" IPs  [a]provar [r]ejeitar [d]remover ")

	c.printersList = tview.NewList().ShowSecondaryText(true)
	c.printersList.SetBorder(true)
	c.printersList.SetTitle(" Impressoras ")

	c.statusBox = tview.NewTextView().SetDynamicColors(true)
	c.statusBox.SetBorder(true)
	c.statusBox.SetTitle(" Relay ")

	c.logsArea = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	c.logsArea.SetBorder(true)
	c.logsArea.SetTitle(" Log de operações ")

	c.commandInput = tview.NewInputField().
		SetLabel("> ").
		SetFieldWidth(0).
		SetPlaceholder("Digite um comando (ex.: 'help')").
		SetDoneFunc(func(key tcell.Key) {
			if key == tcell.KeyEnter {
				c.RunCommand(c.commandInput.GetText())
				c.commandInput.SetText("")
			}
		})

	c.ipTable.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyRune && c.HandleIPKey(event.Rune()) {
			return nil
		}
		return event
	})

	topRow := tview.NewFlex().
		AddItem(c.ipTable, 0, 2, true).
		AddItem(c.printersList, 0, 1, false).
		AddItem(c.statusBox, 0, 1, false)

	bottom := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.logsArea, 0, 3, false).
		AddItem(c.commandInput, 1, 0, false)

	c.flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(topRow, 0, 1, true).
		AddItem(bottom, 0, 1, false)

	c.App.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if c.commandInput.HasFocus() {
			if event.Key() == tcell.KeyEsc {
				c.App.SetFocus(c.ipTable)
				return nil
			}
			return event
		}

		switch event.Key() {
		case tcell.KeyCtrlC:
			c.App.Stop()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case ':':
				c.App.SetFocus(c.commandInput)
				return nil
			case 'q':
				c.App.Stop()
				return nil
			}
		}
		return event
	})

	c.App.SetRoot(c.flex, true).SetFocus(c.ipTable)
}

// Run draws the console until the operator quits or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	for _, e := range c.log.Recent(50) {
		c.appendLine(FormatEntry(e))
	}
	c.Refresh()

	sub := c.log.Subscribe()
	defer c.log.Unsubscribe(sub)

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				c.App.Stop()
				return
			case e, ok := <-sub:
				if !ok {
					return
				}
				c.App.QueueUpdateDraw(func() {
					c.appendLine(FormatEntry(e))
					c.refreshIPs()
				})
			case <-ticker.C:
				c.App.QueueUpdateDraw(c.Refresh)
			}
		}
	}()

	return c.App.Run()
}

// Refresh redraws every panel from current state.
func (c *Console) Refresh() {
	c.refreshIPs()
	c.refreshPrinters()
	c.refreshStatus()
}

func (c *Console) refreshIPs() {
	selected := c.SelectedIP()
	c.ipTable.Clear()

	for col, h := range []string{"IP", "Origem", "Status", "Última atividade"} {
		c.ipTable.SetCell(0, col, tview.NewTableCell(h).SetSelectable(false).SetTextColor(tcell.ColorAqua))
	}

	entries := c.gate.List()
	// pending first so the operator sees new requests at the top
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Status == gate.StatusPending && entries[j].Status != gate.StatusPending
	})

	for i, e := range entries {
		row := i + 1
		c.ipTable.SetCell(row, 0, tview.NewTableCell(e.IP))
		c.ipTable.SetCell(row, 1, tview.NewTableCell(e.Label))
		c.ipTable.SetCell(row, 2, tview.NewTableCell(string(e.Status)).SetTextColor(statusColor(e.Status)))
		c.ipTable.SetCell(row, 3, tview.NewTableCell(e.LastActivityAt.Local().Format("02/01 15:04:05")))
		if e.IP == selected {
			c.ipTable.Select(row, 0)
		}
	}
}

func (c *Console) refreshPrinters() {
	c.printersList.Clear()
	if c.catalog == nil {
		c.printersList.AddItem("Descoberta desativada", "", 0, nil)
		return
	}

	devices := c.catalog.DetectAllPrinters(context.Background())
	if len(devices) == 0 {
		c.printersList.AddItem("Nenhuma impressora", "", 0, nil)
		return
	}
	for _, d := range devices {
		icon := "🟢"
		if d.Status == printer.StatusInactive {
			icon = "🔴"
		}
		name := d.DisplayName
		if d.IsDefault {
			name += " (padrão)"
		}
		c.printersList.AddItem(icon+" "+name, string(d.Kind)+" • "+d.ID, 0, nil)
	}
}

func (c *Console) refreshStatus() {
	counts := c.gate.Counts()
	uptime := time.Since(c.startTime).Truncate(time.Second)
	c.statusBox.SetText(fmt.Sprintf(`[green]🟢 Online[white]

Porta: :%s
Ativo há: %s
Pendentes: [yellow]%d[white]
Aprovados: [green]%d[white]
Rejeitados: [red]%d[white]`,
		c.port, uptime, counts[gate.StatusPending], counts[gate.StatusApproved], counts[gate.StatusRejected]))
}

// SelectedIP returns the IP of the highlighted row, or "".
func (c *Console) SelectedIP() string {
	row, _ := c.ipTable.GetSelection()
	if row < 1 || row >= c.ipTable.GetRowCount() {
		return ""
	}
	cell := c.ipTable.GetCell(row, 0)
	if cell == nil {
		return ""
	}
	return cell.Text
}

// HandleIPKey applies an approve, reject or remove key to the selected IP
// and reports whether the key was consumed.
func (c *Console) HandleIPKey(key rune) bool {
	var verb string
	switch key {
	case 'a':
		verb = "approve"
	case 'r':
		verb = "reject"
	case 'd':
		verb = "remove"
	default:
		return false
	}

	ip := c.SelectedIP()
	if ip == "" {
		return true
	}
	c.RunCommand("ip " + verb + " " + ip)
	c.refreshIPs()
	return true
}

// RunCommand executes a console command and echoes the result.
func (c *Console) RunCommand(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	switch line {
	case "quit", "exit":
		c.App.Stop()
		return
	case "clear":
		c.lines = nil
		c.logsArea.Clear()
		return
	}

	c.appendLine("[aqua]> " + tview.Escape(line) + "[white]")
	res := c.executor.Execute(context.Background(), line)
	for _, l := range strings.Split(FormatResult(res), "\n") {
		c.appendLine(l)
	}
	c.Refresh()
}

// Lines returns what the log panel currently shows.
func (c *Console) Lines() []string {
	return append([]string(nil), c.lines...)
}

func (c *Console) appendLine(line string) {
	c.lines = append(c.lines, line)
	if len(c.lines) > maxLogLines {
		c.lines = c.lines[len(c.lines)-maxLogLines:]
	}
	c.logsArea.SetText(strings.Join(c.lines, "\n"))
	c.logsArea.ScrollToEnd()
}

// FormatEntry renders an operation log entry with tview color tags.
func FormatEntry(e oplog.Entry) string {
	var color, icon string
	switch e.Level {
	case oplog.LevelError:
		color, icon = "[red]", "❌"
	case oplog.LevelWarn:
		color, icon = "[yellow]", "⚠️"
	case oplog.LevelSuccess:
		color, icon = "[green]", "✅"
	default:
		color, icon = "[white]", "ℹ️"
	}
	return fmt.Sprintf("%s[%s] %s %s[white]", color, e.Timestamp.Local().Format("15:04:05"), icon, tview.Escape(e.Message))
}

// FormatResult renders a command result with tview color tags.
func FormatResult(res *command.Result) string {
	if !res.Success {
		return "[red]" + tview.Escape(res.Error) + "[white]"
	}
	var b strings.Builder
	b.WriteString("[green]")
	if res.Message != "" {
		b.WriteString(tview.Escape(res.Message))
	} else {
		b.WriteString("ok")
	}
	b.WriteString("[white]")

	keys := make([]string, 0, len(res.Data))
	for k := range res.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n  %s: %s", k, tview.Escape(fmt.Sprint(res.Data[k])))
	}
	return b.String()
}

func statusColor(s gate.Status) tcell.Color {
	switch s {
	case gate.StatusApproved:
		return tcell.ColorGreen
	case gate.StatusRejected:
		return tcell.ColorRed
	default:
		return tcell.ColorYellow
	}
}
