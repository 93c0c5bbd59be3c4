package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// HTTPSource reads orders from the dashboard REST API.
type HTTPSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPSource creates a source rooted at baseURL (e.g. http://dashboard/api).
func NewHTTPSource(baseURL, apiKey string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// GetAllOrders fetches GET {base}/orders. Both a bare JSON array and the
// {"success":..,"data":[..]} envelope are accepted.
func (s *HTTPSource) GetAllOrders(ctx context.Context) ([]Order, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/orders", nil)
	if err != nil {
		return nil, err
	}
	s.decorate(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch orders: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("orders API error %d: %s", resp.StatusCode, string(body))
	}

	return decodeOrders(body)
}

// UpdatePrintStatus sends PATCH {base}/orders/{id}/print-status.
func (s *HTTPSource) UpdatePrintStatus(ctx context.Context, orderID int64, printed bool) error {
	payload, err := json.Marshal(map[string]bool{"impresso": printed})
	if err != nil {
		return err
	}

	url := s.baseURL + "/orders/" + strconv.FormatInt(orderID, 10) + "/print-status"
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	s.decorate(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to update print status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrOrderNotFound
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("orders API error %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (s *HTTPSource) decorate(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-Api-Key", s.apiKey)
	}
}

func decodeOrders(body []byte) ([]Order, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []Order
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to decode orders: %w", err)
		}
		return list, nil
	}

	var envelope struct {
		Success bool    `json:"success"`
		Data    []Order `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return envelope.Data, nil
}
