package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Colors
var (
	Primary   = lipgloss.Color("#7C3AED") // Purple
	Secondary = lipgloss.Color("#06B6D4") // Cyan
	Success   = lipgloss.Color("#10B981") // Green
	Warning   = lipgloss.Color("#F59E0B") // Amber
	Error     = lipgloss.Color("#EF4444") // Red
	Muted     = lipgloss.Color("#6B7280") // Gray

	colorTextBright = lipgloss.Color("#F8FAFC")
	colorTextMuted  = lipgloss.Color("#64748B")
)

// Styles
var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorTextBright).
			Background(Primary).
			Padding(0, 2)

	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Muted).
			Padding(0, 1)

	KeyStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	TextMuted = lipgloss.NewStyle().Foreground(colorTextMuted)

	SuccessStyle = lipgloss.NewStyle().Foreground(Success)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)

	StatusOnline  = lipgloss.NewStyle().Foreground(Success).SetString("●")
	StatusOffline = lipgloss.NewStyle().Foreground(Error).SetString("●")
	StatusPending = lipgloss.NewStyle().Foreground(Warning).SetString("●")
)

// StatusIcon maps printer and IP states to a colored dot.
func StatusIcon(status string) string {
	switch status {
	case "online", "approved", "success":
		return StatusOnline.String()
	case "inactive", "offline", "rejected", "error":
		return StatusOffline.String()
	default:
		return StatusPending.String()
	}
}

// Truncate shortens s to max runes with an ellipsis.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// CommandResponse is the JSON body returned by POST /command.
type CommandResponse struct {
	Success bool
	Message string
	Error   string
	Data    map[string]json.RawMessage
}

// ParseCommandResponse splits the flat /command body into its parts.
func ParseCommandResponse(body []byte) (CommandResponse, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return CommandResponse{}, err
	}

	var resp CommandResponse
	json.Unmarshal(raw["success"], &resp.Success)
	json.Unmarshal(raw["message"], &resp.Message)
	json.Unmarshal(raw["error"], &resp.Error)
	delete(raw, "success")
	delete(raw, "message")
	delete(raw, "error")
	resp.Data = raw
	return resp, nil
}

// RenderResponse formats a command response for a terminal.
func RenderResponse(command string, resp CommandResponse) string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render("order-printer") + " " + TextMuted.Render(command) + "\n")

	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = resp.Message
		}
		b.WriteString(ErrorStyle.Render("✗ " + msg))
		return b.String()
	}

	msg := resp.Message
	if msg == "" {
		msg = "ok"
	}
	table := ""
	if printers, ok := resp.Data["printers"]; ok {
		table = renderPrinters(printers)
		delete(resp.Data, "printers")
	}
	if table != "" {
		// the card replaces the plain-text listing
		msg, _, _ = strings.Cut(msg, "\n")
	}
	b.WriteString(SuccessStyle.Render("✓ ") + msg)
	if table != "" {
		b.WriteString("\n" + CardStyle.Render(table))
	}

	keys := make([]string, 0, len(resp.Data))
	for k := range resp.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n  %s %s", KeyStyle.Render(k+":"), Truncate(string(resp.Data[k]), 120))
	}
	return b.String()
}

func renderPrinters(raw json.RawMessage) string {
	var printers []struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
		Kind        string `json:"kind"`
		Status      string `json:"status"`
		IsDefault   bool   `json:"isDefault"`
	}
	if err := json.Unmarshal(raw, &printers); err != nil || len(printers) == 0 {
		return ""
	}

	lines := make([]string, 0, len(printers))
	for _, p := range printers {
		line := fmt.Sprintf("%s %-28s %-7s %s", StatusIcon(p.Status), Truncate(p.DisplayName, 28), p.Kind, TextMuted.Render(p.ID))
		if p.IsDefault {
			line += " " + WarningStyle.Render("padrão")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
