package dispatch

import (
	"encoding/json"
)

// Strategy names one step of the delivery cascade
type Strategy string

const (
	StrategyRelay      Strategy = "relay"
	StrategyPreferred  Strategy = "preferred"
	StrategyThermal    Strategy = "thermal"
	StrategyDefault    Strategy = "default"
	StrategyDiscovered Strategy = "discovered"
	StrategyFallback   Strategy = "fallback"
)

// Error codes reported in attempts and results
const (
	CodeIPNotAuthorized  = "IP_NOT_AUTHORIZED"
	CodePrinterInactive  = "PRINTER_INACTIVE"
	CodePrinterNotFound  = "PRINTER_NOT_FOUND"
	CodePrintTimeout     = "PRINT_TIMEOUT"
	CodePrintFailed      = "PRINT_FAILED"
	CodeRelayUnreachable = "RELAY_UNREACHABLE"
	CodeRelayError       = "RELAY_ERROR"
	CodeFallbackFailed   = "FALLBACK_FAILED"
)

// Job is one print request
type Job struct {
	OrderID         int64           `json:"orderId"`
	Text            string          `json:"printText"`
	TargetPrinterID string          `json:"printerId,omitempty"`
	ClientIP        string          `json:"clientIP,omitempty"`
	UserName        string          `json:"userName,omitempty"`
	OrderData       json.RawMessage `json:"orderData,omitempty"`
}

// Attempt records the outcome of one cascade step
type Attempt struct {
	Strategy  Strategy `json:"strategy"`
	PrinterID string   `json:"printerId,omitempty"`
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	ErrorCode string   `json:"errorCode,omitempty"`
}

// Result is the final outcome of a job
type Result struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	PrinterID string    `json:"printerId,omitempty"`
	Error     string    `json:"error,omitempty"`
	AuthURL   string    `json:"authUrl,omitempty"`
	Fallback  bool      `json:"fallback,omitempty"`
	FilePath  string    `json:"filepath,omitempty"`
	JobID     string    `json:"jobId"`
	Trace     []Attempt `json:"trace"`
}

// Strategies returns the strategy of every attempt in order.
func (r Result) Strategies() []Strategy {
	out := make([]Strategy, len(r.Trace))
	for i, a := range r.Trace {
		out[i] = a.Strategy
	}
	return out
}
