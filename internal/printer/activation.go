package printer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/thereceipt/order-printer/internal/execx"
)

// Activation error codes.
const (
	CodeNotSystemPrinter        = "NOT_SYSTEM_PRINTER"
	CodeConfigurationIssue      = "PRINTER_CONFIGURATION_ISSUE"
	CodeActivationCommandFailed = "ACTIVATION_COMMAND_FAILED"
)

// ActivationResult is the outcome of an operator-requested activation.
type ActivationResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	PrinterID string `json:"printerId,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// Activator re-enables disabled spooler queues.
type Activator struct {
	runner execx.Runner
	delay  time.Duration
	logger *slog.Logger
	sleep  func(context.Context, time.Duration)
}

// NewActivator creates an Activator that waits delay before verifying.
func NewActivator(runner execx.Runner, delay time.Duration, logger *slog.Logger) *Activator {
	return &Activator{
		runner: runner,
		delay:  delay,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Activate enables the queue behind printerID and re-checks its state.
func (a *Activator) Activate(ctx context.Context, printerID string) ActivationResult {
	name, err := SystemName(printerID)
	if err != nil {
		return ActivationResult{
			Success:   false,
			Message:   "Only system printers can be activated",
			PrinterID: printerID,
			ErrorCode: CodeNotSystemPrinter,
		}
	}

	_, enableErr := execx.WithTimeout(ctx, a.runner, scanTimeout, "cupsenable", name)
	if enableErr != nil {
		a.logger.Warn("cupsenable failed", "printer", name, "err", enableErr)
	} else if _, err := execx.WithTimeout(ctx, a.runner, scanTimeout, "cupsaccept", name); err != nil {
		a.logger.Warn("cupsaccept failed", "printer", name, "err", err)
	}

	a.sleep(ctx, a.delay)

	out, err := execx.WithTimeout(ctx, a.runner, scanTimeout, "lpstat", "-p", name)
	if err != nil {
		return ActivationResult{
			Success:   false,
			Message:   fmt.Sprintf("Could not verify printer %s after activation: %v", name, err),
			PrinterID: printerID,
			ErrorCode: CodeActivationCommandFailed,
		}
	}

	entries := parsePrinterStatus(string(out))
	if len(entries) > 0 && !entries[0].disabled {
		a.logger.Info("printer activated", "printer", name)
		return ActivationResult{
			Success:   true,
			Message:   fmt.Sprintf("Printer %s activated", name),
			PrinterID: printerID,
		}
	}

	if enableErr == nil && a.spoolerAccepts(ctx, name) {
		return ActivationResult{
			Success:   false,
			Message:   fmt.Sprintf("Printer %s is accepted by the spooler but remains disabled; check the driver or device connection", name),
			PrinterID: printerID,
			ErrorCode: CodeConfigurationIssue,
		}
	}

	return ActivationResult{
		Success:   false,
		Message:   fmt.Sprintf("Activation command had no effect on printer %s", name),
		PrinterID: printerID,
		ErrorCode: CodeActivationCommandFailed,
	}
}

func (a *Activator) spoolerAccepts(ctx context.Context, name string) bool {
	out, err := execx.WithTimeout(ctx, a.runner, scanTimeout, "lpstat", "-a", name)
	if err != nil {
		return false
	}
	return !parseNotAccepting(string(out))[name]
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
