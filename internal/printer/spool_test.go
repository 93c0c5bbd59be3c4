package printer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/thereceipt/order-printer/internal/execx"
)

func TestSpooler_PrintRemovesTempFile(t *testing.T) {
	var submitted, content string
	f := execx.NewFake().Handle("lp", func(args []string) ([]byte, error) {
		submitted = args[len(args)-1]
		data, _ := os.ReadFile(submitted)
		content = string(data)
		return []byte("request id is Kitchen-12"), nil
	})

	s := NewSpooler(f, time.Second)
	s.tempDir = t.TempDir()

	if err := s.Print(context.Background(), "Kitchen", "hello\n"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if content != "hello\n" {
		t.Errorf("Expected lp to see the receipt text, got %q", content)
	}
	if _, err := os.Stat(submitted); !os.IsNotExist(err) {
		t.Errorf("Expected temp file removed, stat err = %v", err)
	}

	call := f.CallsTo("lp")[0]
	if call.Args[0] != "-d" || call.Args[1] != "Kitchen" {
		t.Errorf("Expected -d Kitchen, got %v", call.Args)
	}
}

func TestSpooler_DefaultQueueAndFailureCleanup(t *testing.T) {
	f := execx.NewFake().Fail("lp", errors.New("lp: No default destination"))
	s := NewSpooler(f, time.Second)
	s.tempDir = t.TempDir()

	if err := s.Print(context.Background(), "", "x"); err == nil {
		t.Fatal("Expected error")
	}
	call := f.CallsTo("lp")[0]
	if len(call.Args) != 1 {
		t.Errorf("Expected only the file argument for the default queue, got %v", call.Args)
	}
	entries, _ := os.ReadDir(s.tempDir)
	if len(entries) != 0 {
		t.Errorf("Expected temp dir empty after failure, found %d files", len(entries))
	}
}

func TestSpooler_Timeout(t *testing.T) {
	f := execx.NewFake().Handle("lp", func([]string) ([]byte, error) {
		time.Sleep(50 * time.Millisecond)
		return nil, errors.New("signal: killed")
	})
	s := NewSpooler(f, 5*time.Millisecond)
	s.tempDir = t.TempDir()

	err := s.Print(context.Background(), "Kitchen", "x")
	if !errors.Is(err, execx.ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(s.tempDir, "pedido-*"))
	if len(matches) != 0 {
		t.Errorf("Expected temp file removed after timeout, found %v", matches)
	}
}

type bufferConn struct {
	bytes.Buffer
	closed bool
}

func (b *bufferConn) Close() error {
	b.closed = true
	return nil
}

func TestRawPrinter_WritesTextAndCloses(t *testing.T) {
	conn := &bufferConn{}
	r := NewRawPrinter(time.Second)
	r.open = func(Device) (DeviceConnection, error) { return conn, nil }

	dev := Device{ID: "usb_lp0", Kind: KindUSB, DevicePath: "/dev/usb/lp0"}
	if err := r.Print(context.Background(), dev, "PEDIDO #42\n"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	out := conn.Bytes()
	if !bytes.Contains(out, append([]byte{0x1b, '@'}, "PEDIDO #42\n"...)) {
		t.Errorf("Expected ESC @ followed directly by the receipt text, got % x", out)
	}
	if bytes.Contains(out, []byte{0x1d, '!'}) {
		t.Errorf("Expected no character size command, got % x", out)
	}
	if !conn.closed {
		t.Error("Expected connection closed")
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func TestScanSerialPorts_SkipsPortInUse(t *testing.T) {
	var opened []string
	open := func(path string) (io.Closer, error) {
		opened = append(opened, path)
		if path == "/dev/ttyUSB9" {
			return nil, errors.New("no such device")
		}
		return nopCloser{}, nil
	}

	busy := portLock("/dev/ttyUSB1")
	busy.Lock()
	devices := scanSerialPorts([]string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB9"}, open)
	busy.Unlock()

	if len(opened) != 2 || opened[0] != "/dev/ttyUSB0" || opened[1] != "/dev/ttyUSB9" {
		t.Errorf("Expected the busy port to be left alone, opened %v", opened)
	}
	if len(devices) != 2 || devices[1].DevicePath != "/dev/ttyUSB1" || devices[1].Status != StatusOnline {
		t.Errorf("Expected busy port reported online, got %+v", devices)
	}
}

func TestRawPrinter_HoldsPortDuringWrite(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	r := NewRawPrinter(time.Second)
	r.open = func(Device) (DeviceConnection, error) {
		close(entered)
		<-release
		return &bufferConn{}, nil
	}

	dev := Device{ID: "serial_ttyUSB2", Kind: KindSerial, DevicePath: "/dev/ttyUSB2"}
	done := make(chan error, 1)
	go func() { done <- r.Print(context.Background(), dev, "x") }()
	<-entered

	if portLock(dev.DevicePath).TryLock() {
		t.Error("Expected port locked while printing")
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !portLock(dev.DevicePath).TryLock() {
		t.Fatal("Expected port released after printing")
	}
	portLock(dev.DevicePath).Unlock()
}

func TestOpenDevice_RequiresPath(t *testing.T) {
	if _, err := OpenDevice(Device{ID: "usb_x", Kind: KindUSB}); err == nil {
		t.Error("Expected error for device without path")
	}
	if _, err := OpenDevice(Device{ID: "system_x", Kind: KindSystem, DevicePath: "/x"}); err == nil {
		t.Error("Expected error for system printer")
	}
}
