// Package command provides the text command console shared by the server,
// the relay and the operator terminal.
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/thereceipt/order-printer/internal/autoprint"
	"github.com/thereceipt/order-printer/internal/dispatch"
	"github.com/thereceipt/order-printer/internal/gate"
	"github.com/thereceipt/order-printer/internal/oplog"
	"github.com/thereceipt/order-printer/internal/printer"
)

// Catalog lists printers
type Catalog interface {
	DetectAllPrinters(ctx context.Context) []printer.Device
}

// Activator re-enables system printers
type Activator interface {
	Activate(ctx context.Context, printerID string) printer.ActivationResult
}

// Dispatcher delivers print jobs
type Dispatcher interface {
	Dispatch(ctx context.Context, job dispatch.Job) dispatch.Result
}

// AutoPrint is the auto-print monitor surface
type AutoPrint interface {
	Enable()
	Disable()
	Status() autoprint.Status
	Tick(ctx context.Context) autoprint.TickReport
}

// TestRenderer builds the canned test page
type TestRenderer interface {
	RenderTest(printerName string) string
}

// Deps are the components commands act on. A nil component disables the
// commands that need it.
type Deps struct {
	Catalog    Catalog
	Activator  Activator
	Dispatcher Dispatcher
	Renderer   TestRenderer
	Log        *oplog.Log
	AutoPrint  AutoPrint
	Gate       *gate.Store
}

// Executor executes commands
type Executor struct {
	deps Deps
}

// NewExecutor creates a new command executor
func NewExecutor(deps Deps) *Executor {
	return &Executor{deps: deps}
}

// Result represents the result of executing a command
type Result struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

func failure(format string, args ...interface{}) *Result {
	return &Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Execute executes a command string and returns a result
func (e *Executor) Execute(ctx context.Context, cmdStr string) *Result {
	parts := parseCommand(cmdStr)
	if len(parts) == 0 {
		return failure("empty command")
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	if !e.available(command) {
		return failure("unknown command: %s. Type 'help' for available commands", command)
	}

	switch command {
	case "detect":
		return e.handleDetect(ctx)
	case "activate":
		return e.handleActivate(ctx, args)
	case "test":
		return e.handleTest(ctx, args)
	case "status":
		return e.handleStatus(ctx)
	case "logs":
		return e.handleLogs(args)
	case "autoprint":
		return e.handleAutoPrint(ctx, args)
	case "ip":
		return e.handleIP(args)
	case "help":
		return e.handleHelp()
	}
	return failure("unknown command: %s. Type 'help' for available commands", command)
}

// available reports whether the components a command needs are wired.
func (e *Executor) available(command string) bool {
	d := e.deps
	switch command {
	case "detect", "status":
		return d.Catalog != nil
	case "activate":
		return d.Activator != nil
	case "test":
		return d.Catalog != nil && d.Dispatcher != nil && d.Renderer != nil
	case "logs":
		return d.Log != nil
	case "autoprint":
		return d.AutoPrint != nil
	case "ip":
		return d.Gate != nil
	case "help":
		return true
	}
	return false
}

// parseCommand parses a command string into parts, handling quoted strings
func parseCommand(cmdStr string) []string {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		return []string{}
	}

	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := byte(0)

	for i := 0; i < len(cmdStr); i++ {
		char := cmdStr[i]

		if char == '"' || char == '\'' {
			if !inQuotes {
				inQuotes = true
				quoteChar = char
			} else if char == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else {
				current.WriteByte(char)
			}
		} else if (char == ' ' || char == '\t') && !inQuotes {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		} else {
			current.WriteByte(char)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
