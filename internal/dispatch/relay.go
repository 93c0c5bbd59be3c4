package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// RelayRequest is the body posted to a relay's /print endpoint.
type RelayRequest struct {
	OrderID   int64           `json:"orderId"`
	PrintText string          `json:"printText"`
	OrderData json.RawMessage `json:"orderData,omitempty"`
	ClientIP  string          `json:"clientIP,omitempty"`
	UserName  string          `json:"userName,omitempty"`
}

// RelayResponse is the body a relay answers with.
type RelayResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
	AuthURL   string `json:"authUrl,omitempty"`
	PrinterID string `json:"printerId,omitempty"`
}

// relay tries each relay URL in order. It reports true when the cascade must
// stop, either on success or on an authorization failure.
func (c *cascade) relay(ctx context.Context) bool {
	body, err := json.Marshal(RelayRequest{
		OrderID:   c.job.OrderID,
		PrintText: c.text,
		OrderData: c.job.OrderData,
		ClientIP:  c.job.ClientIP,
		UserName:  c.job.UserName,
	})
	if err != nil {
		c.record(Attempt{Strategy: StrategyRelay, Message: fmt.Sprintf("failed to encode relay request: %v", err), ErrorCode: CodeRelayError})
		return false
	}

	for _, base := range c.d.opts.RelayURLs {
		base = strings.TrimRight(strings.TrimSpace(base), "/")
		if base == "" {
			continue
		}

		status, resp, err := c.d.postRelay(ctx, base+"/print", body)
		a := Attempt{Strategy: StrategyRelay, PrinterID: base}

		switch {
		case err != nil:
			a.Message = fmt.Sprintf("relay %s unreachable: %v", base, err)
			a.ErrorCode = CodeRelayUnreachable
			c.record(a)

		case status == http.StatusOK:
			a.Message = fmt.Sprintf("printed via relay %s", base)
			if resp.Message != "" {
				a.Message = resp.Message
			}
			c.succeed(a)
			if resp.PrinterID != "" {
				c.result.PrinterID = resp.PrinterID
			}
			return true

		case status == http.StatusForbidden:
			authURL := resp.AuthURL
			if authURL == "" {
				authURL = base + "/auth"
			}
			a.Message = "IP not authorized on relay, approve it at " + authURL
			a.ErrorCode = CodeIPNotAuthorized
			c.record(a)
			c.result.Success = false
			c.result.Message = a.Message
			c.result.Error = CodeIPNotAuthorized
			c.result.AuthURL = authURL
			return true

		default:
			a.Message = fmt.Sprintf("relay %s answered %d", base, status)
			if resp.Message != "" {
				a.Message += ": " + resp.Message
			}
			a.ErrorCode = CodeRelayError
			c.record(a)
		}
	}
	return false
}

func (d *Dispatcher) postRelay(ctx context.Context, url string, body []byte) (int, RelayResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.RelayTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, RelayResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := d.client.Do(req)
	if err != nil {
		return 0, RelayResponse{}, err
	}
	defer res.Body.Close()

	var out RelayResponse
	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err == nil && len(data) > 0 {
		// Non-JSON bodies from proxies are tolerated; only the status matters.
		_ = json.Unmarshal(data, &out)
	}
	return res.StatusCode, out, nil
}
