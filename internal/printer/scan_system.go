package printer

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/thereceipt/order-printer/internal/execx"
)

// Line prefixes lpstat uses to introduce a queue, per locale.
var printerLinePrefixes = []string{
	"printer ",
	"impressora ",
	"la impresora ",
	"impresora ",
}

// Fragments marking a queue as disabled. "inativa"/"inactiva" mean idle and
// are deliberately absent.
var disabledMarkers = []string{
	"disabled",
	"desabilitad",
	"desativad",
	"deshabilitad",
}

var notAcceptingMarkers = []string{
	"not accepting",
	"não está aceitando",
	"nao esta aceitando",
	"no acepta",
}

var defaultDestinationMarkers = []string{
	"default destination",
	"destino padrão",
	"destino padrao",
	"destino predeterminado",
}

type spoolerEntry struct {
	name     string
	disabled bool
}

// scanSystem queries the spooler with lpstat.
func (d *Discoverer) scanSystem(ctx context.Context) ([]Device, error) {
	out, err := execx.WithTimeout(ctx, d.runner, scanTimeout, "lpstat", "-p")
	if err != nil {
		return nil, fmt.Errorf("lpstat -p: %w", err)
	}
	entries := parsePrinterStatus(string(out))
	if len(entries) == 0 {
		return nil, nil
	}

	defaultName := ""
	if out, err := execx.WithTimeout(ctx, d.runner, scanTimeout, "lpstat", "-d"); err == nil {
		defaultName = parseDefaultDestination(string(out))
	} else {
		d.logger.Debug("default printer query failed", "err", err)
	}

	var rejecting map[string]bool
	if out, err := execx.WithTimeout(ctx, d.runner, scanTimeout, "lpstat", "-a"); err == nil {
		rejecting = parseNotAccepting(string(out))
	}

	devices := make([]Device, 0, len(entries))
	for _, e := range entries {
		status := StatusOnline
		switch {
		case e.disabled:
			status = StatusInactive
		case rejecting[e.name]:
			status = StatusOffline
		}
		devices = append(devices, Device{
			ID:          SystemID(e.name),
			DisplayName: e.name,
			Kind:        KindSystem,
			Status:      status,
			IsDefault:   e.name == defaultName,
			CanActivate: status == StatusInactive,
		})
	}
	return devices, nil
}

// parsePrinterStatus reads `lpstat -p` output, one queue per status line.
// Indented continuation lines (alerts, descriptions) are ignored.
func parsePrinterStatus(out string) []spoolerEntry {
	var entries []spoolerEntry
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		lower := strings.ToLower(line)

		rest := ""
		for _, prefix := range printerLinePrefixes {
			if strings.HasPrefix(lower, prefix) {
				rest = line[len(prefix):]
				break
			}
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}

		entries = append(entries, spoolerEntry{
			name:     fields[0],
			disabled: containsAny(lower, disabledMarkers),
		})
	}
	return entries
}

// parseDefaultDestination reads `lpstat -d`.
func parseDefaultDestination(out string) string {
	for _, line := range strings.Split(out, "\n") {
		lower := strings.ToLower(line)
		if !containsAny(lower, defaultDestinationMarkers) {
			continue
		}
		idx := strings.LastIndex(line, ":")
		if idx < 0 {
			continue
		}
		if name := strings.TrimSpace(line[idx+1:]); name != "" {
			return name
		}
	}
	return ""
}

// parseNotAccepting reads `lpstat -a` and returns queues rejecting jobs.
func parseNotAccepting(out string) map[string]bool {
	rejecting := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if containsAny(strings.ToLower(line), notAcceptingMarkers) {
			rejecting[fields[0]] = true
		}
	}
	return rejecting
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
