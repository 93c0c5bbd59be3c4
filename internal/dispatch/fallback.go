package dispatch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// fallback saves the receipt to the unprinted orders directory.
func (c *cascade) fallback() {
	path, err := c.d.saveUnprinted(c.job.OrderID, c.text)
	a := Attempt{Strategy: StrategyFallback}

	if err != nil {
		a.Message = fmt.Sprintf("no printer accepted the job and the fallback file could not be written: %v", err)
		a.ErrorCode = CodeFallbackFailed
		c.record(a)
		c.result.Success = false
		c.result.Message = a.Message
		c.result.Error = CodeFallbackFailed
		return
	}

	a.Success = true
	a.Message = "no printer available, receipt saved to " + path
	c.record(a)
	c.result.Success = true
	c.result.Fallback = true
	c.result.FilePath = path
	c.result.Message = a.Message
}

// saveUnprinted writes text to pedido_<orderId>_<timestamp>.txt without
// overwriting an existing file from the same second.
func (d *Dispatcher) saveUnprinted(orderID int64, text string) (string, error) {
	dir := d.opts.UnprintedDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	stamp := d.now().Format("20060102_150405")
	base := fmt.Sprintf("pedido_%d_%s", orderID, stamp)

	for i := 1; i <= 100; i++ {
		name := base + ".txt"
		if i > 1 {
			name = fmt.Sprintf("%s_%d.txt", base, i)
		}
		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.WriteString(text); err != nil {
			f.Close()
			os.Remove(path)
			return "", err
		}
		if err := f.Close(); err != nil {
			return "", err
		}
		return path, nil
	}
	return "", fmt.Errorf("too many fallback files for order %d", orderID)
}
