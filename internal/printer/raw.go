package printer

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/hennedo/escpos"
	"github.com/tarm/serial"
	"github.com/thereceipt/order-printer/internal/execx"
)

// DeviceConnection is a raw byte sink for a directly attached printer.
type DeviceConnection interface {
	io.Writer
	Close() error
}

// SerialConnection represents a serial printer connection
type SerialConnection struct {
	port *serial.Port
	mu   sync.Mutex
}

// ConnectSerial connects to a serial printer
func ConnectSerial(device string, baud int) (*SerialConnection, error) {
	if baud == 0 {
		baud = 9600
	}
	port, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return &SerialConnection{port: port}, nil
}

// Write sends data to the serial printer
func (c *SerialConnection) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port.Write(data)
}

// Close closes the serial connection
func (c *SerialConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port != nil {
		return c.port.Close()
	}
	return nil
}

// OpenDevice opens a raw connection to a USB or serial printer.
func OpenDevice(dev Device) (DeviceConnection, error) {
	if dev.DevicePath == "" {
		return nil, fmt.Errorf("printer %s has no device path", dev.ID)
	}
	switch dev.Kind {
	case KindUSB:
		f, err := os.OpenFile(dev.DevicePath, os.O_WRONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to open USB device: %w", err)
		}
		return f, nil
	case KindSerial:
		return ConnectSerial(dev.DevicePath, 9600)
	default:
		return nil, fmt.Errorf("unsupported raw printer kind: %s", dev.Kind)
	}
}

// portLocks serialises access to each device path between printing and
// discovery scans.
var portLocks sync.Map

func portLock(path string) *sync.Mutex {
	m, _ := portLocks.LoadOrStore(path, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// escInit resets the printer to its power-on style.
var escInit = []byte{0x1b, '@'}

// RawPrinter writes receipts straight to device files. Unlike the spooler
// path there is no driver framing, so ESC/POS init and cut are added here.
type RawPrinter struct {
	open    func(Device) (DeviceConnection, error)
	timeout time.Duration
}

// NewRawPrinter creates a RawPrinter with a per-job write timeout.
func NewRawPrinter(timeout time.Duration) *RawPrinter {
	return &RawPrinter{open: OpenDevice, timeout: timeout}
}

// Print sends text to dev and cuts the paper. The text goes out as is; only
// the init and cut commands are added.
func (r *RawPrinter) Print(ctx context.Context, dev Device, text string) error {
	lock := portLock(dev.DevicePath)
	lock.Lock()
	defer lock.Unlock()

	conn, err := r.open(dev)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		p := escpos.New(conn)
		if _, err := p.WriteRaw(escInit); err != nil {
			done <- fmt.Errorf("failed to write to printer: %w", err)
			return
		}
		if _, err := p.WriteRaw([]byte(text)); err != nil {
			done <- fmt.Errorf("failed to write to printer: %w", err)
			return
		}
		done <- p.PrintAndCut()
	}()

	timeout := r.timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if cerr := conn.Close(); err == nil && cerr != nil {
			err = cerr
		}
		return err
	case <-timer.C:
		conn.Close()
		return fmt.Errorf("write to %s: %w", dev.DevicePath, execx.ErrTimeout)
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	}
}
