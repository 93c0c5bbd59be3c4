package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/thereceipt/order-printer/internal/oplog"
	"github.com/thereceipt/order-printer/internal/tui"
)

const (
	defaultServerURL = "http://localhost:12212"
	defaultRelayURL  = "http://localhost:12213"
)

var client = &http.Client{Timeout: 30 * time.Second}

func main() {
	var serverURL string
	var relay bool
	flag.StringVar(&serverURL, "server", "", "Server URL")
	flag.StringVar(&serverURL, "s", "", "Server URL (short)")
	flag.BoolVar(&relay, "relay", false, "Talk to the local print relay instead of the server")
	flag.Parse()

	if serverURL == "" {
		serverURL = defaultServerURL
		if relay {
			serverURL = defaultRelayURL
		}
	}
	serverURL = strings.TrimSuffix(serverURL, "/")

	if flag.NArg() == 0 {
		printUsage()
		os.Exit(1)
	}
	args := flag.Args()

	var err error
	switch {
	case args[0] == "preview":
		err = preview(serverURL, args[1:])
	case args[0] == "follow":
		err = follow(serverURL)
	default:
		err = runCommand(serverURL, strings.Join(quoteArgs(args), " "))
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, tui.ErrorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Order Printer CLI

Usage:
  order-printer-cli [flags] <command>

Flags:
  -s, -server <url>    Server URL (default: %s)
  -relay               Use the local relay (default: %s)

Commands (server):
  detect                       List detected printers
  activate <printer-id>        Re-enable a paused system printer
  test <printer-id>            Print the test page
  status                       Printer and auto-print summary
  logs [n]                     Last n operation log entries
  autoprint on|off|status|tick Control the auto-print monitor
  preview <order-id> [file]    Save a PNG preview of an order receipt
  follow                       Stream the operation log

Commands (relay, with -relay):
  ip list                      List known client IPs
  ip approve|reject|remove <ip>

Examples:
  order-printer-cli detect
  order-printer-cli activate system_EPSON_TM_T20
  order-printer-cli preview 42 pedido42.png
  order-printer-cli -relay ip approve 203.0.113.9

`, defaultServerURL, defaultRelayURL)
}

// quoteArgs keeps arguments with spaces intact for the server-side parser.
func quoteArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t") {
			a = `"` + a + `"`
		}
		out[i] = a
	}
	return out
}

func runCommand(serverURL, command string) error {
	body, err := json.Marshal(map[string]string{"command": command})
	if err != nil {
		return err
	}

	resp, err := client.Post(serverURL+"/command", "application/json", strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	result, err := tui.ParseCommandResponse(data)
	if err != nil {
		return fmt.Errorf("failed to parse response (HTTP %d): %w", resp.StatusCode, err)
	}

	fmt.Println(tui.RenderResponse(command, result))
	if !result.Success {
		os.Exit(1)
	}
	return nil
}

func preview(serverURL string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: preview <order-id> [file]")
	}
	out := "pedido_" + args[0] + ".png"
	if len(args) > 1 {
		out = args[1]
	}

	resp, err := client.Get(serverURL + "/printer/preview/" + url.PathEscape(args[0]))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("preview failed (HTTP %d): %s", resp.StatusCode, body.Message)
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return err
	}

	fmt.Println(tui.SuccessStyle.Render("✓ ") + "preview saved to " + out)
	return nil
}

// follow prints operation log entries as they arrive over the websocket.
func follow(serverURL string) error {
	u, err := url.Parse(serverURL)
	if err != nil {
		return err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", u, err)
	}
	defer conn.Close()

	for {
		var msg struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		var entries []oplog.Entry
		switch msg.Event {
		case "backlog":
			json.Unmarshal(msg.Data, &entries)
		case "log":
			var e oplog.Entry
			if json.Unmarshal(msg.Data, &e) == nil {
				entries = append(entries, e)
			}
		}
		for _, e := range entries {
			printEntry(e)
		}
	}
}

func printEntry(e oplog.Entry) {
	style := tui.TextMuted
	switch e.Level {
	case oplog.LevelSuccess:
		style = tui.SuccessStyle
	case oplog.LevelWarn:
		style = tui.WarningStyle
	case oplog.LevelError:
		style = tui.ErrorStyle
	}
	fmt.Printf("%s %s %s\n", tui.TextMuted.Render(e.Timestamp.Local().Format("15:04:05")), style.Render(strings.ToUpper(string(e.Level))), e.Message)
}
