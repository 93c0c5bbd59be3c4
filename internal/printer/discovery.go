package printer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/thereceipt/order-printer/internal/execx"
)

// scanTimeout bounds each lpstat invocation during discovery.
const scanTimeout = 5 * time.Second

// DiscoveryOptions toggles the optional scans.
type DiscoveryOptions struct {
	// USBDirs are glob patterns for raw line-printer character devices.
	USBDirs []string
	// USBDescriptors labels raw USB printers with libusb descriptor strings.
	USBDescriptors bool
	// Serial enables the serial-port scan.
	Serial bool
}

// DefaultUSBDirs are the known raw line-printer device locations.
var DefaultUSBDirs = []string{"/dev/usb/lp*", "/dev/lp*"}

// Discoverer enumerates printers from the OS spooler and raw devices.
type Discoverer struct {
	runner execx.Runner
	opts   DiscoveryOptions
	logger *slog.Logger

	// scan hooks, replaced in tests
	usbScan     func() []Device
	serialScan  func() []Device
	describeUSB func([]Device) []Device

	mu       sync.RWMutex
	snapshot []Device

	onPrinterAdded   func(Device)
	onPrinterRemoved func(Device)
}

// NewDiscoverer creates a Discoverer using runner for spooler commands.
func NewDiscoverer(runner execx.Runner, opts DiscoveryOptions, logger *slog.Logger) *Discoverer {
	if len(opts.USBDirs) == 0 {
		opts.USBDirs = DefaultUSBDirs
	}
	d := &Discoverer{
		runner: runner,
		opts:   opts,
		logger: logger,
	}
	d.usbScan = func() []Device { return scanRawUSB(d.opts.USBDirs) }
	d.serialScan = scanSerial
	d.describeUSB = func(devs []Device) []Device { return describeUSB(devs, d.logger) }
	return d
}

// DetectAllPrinters runs every scan and returns the deduplicated catalog.
// It never fails; a failing scan contributes nothing.
func (d *Discoverer) DetectAllPrinters(ctx context.Context) []Device {
	var devices []Device

	system, err := d.scanSystem(ctx)
	if err != nil {
		d.logger.Warn("system printer scan failed", "err", err)
	}
	devices = append(devices, system...)

	usb := d.usbScan()
	if d.opts.USBDescriptors && len(usb) > 0 {
		usb = d.describeUSB(usb)
	}
	devices = append(devices, usb...)

	if d.opts.Serial {
		devices = append(devices, d.serialScan()...)
	}

	devices = Dedupe(devices)
	d.store(devices)
	return devices
}

// Snapshot returns the result of the last discovery run.
func (d *Discoverer) Snapshot() []Device {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Device(nil), d.snapshot...)
}

// GetPrinter looks up a device in the last snapshot.
func (d *Discoverer) GetPrinter(id string) (Device, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, dev := range d.snapshot {
		if dev.ID == id {
			return dev, true
		}
	}
	return Device{}, false
}

// OnPrinterAdded sets a callback for devices that appear between snapshots.
func (d *Discoverer) OnPrinterAdded(callback func(Device)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onPrinterAdded = callback
}

// OnPrinterRemoved sets a callback for devices that vanish between snapshots.
func (d *Discoverer) OnPrinterRemoved(callback func(Device)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onPrinterRemoved = callback
}

func (d *Discoverer) store(devices []Device) {
	d.mu.Lock()
	previous := d.snapshot
	d.snapshot = append([]Device(nil), devices...)
	added, removed := d.onPrinterAdded, d.onPrinterRemoved
	d.mu.Unlock()

	if added == nil && removed == nil {
		return
	}

	prev := make(map[string]Device, len(previous))
	for _, p := range previous {
		prev[p.ID] = p
	}
	curr := make(map[string]bool, len(devices))
	for _, p := range devices {
		curr[p.ID] = true
		if _, ok := prev[p.ID]; !ok && added != nil {
			added(p)
		}
	}
	for id, p := range prev {
		if !curr[id] && removed != nil {
			removed(p)
		}
	}
}
