package printer

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/gousb"
)

// scanRawUSB lists raw line-printer character devices matching patterns.
func scanRawUSB(patterns []string) []Device {
	var paths []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, _ := filepath.Glob(pattern)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)

	devices := make([]Device, 0, len(paths))
	for _, path := range paths {
		status := StatusOnline
		if err := checkWritable(path); err != nil {
			status = StatusError
		}
		devices = append(devices, Device{
			ID:          usbID(path),
			DisplayName: filepath.Base(path),
			Kind:        KindUSB,
			Status:      status,
			DevicePath:  path,
		})
	}
	return devices
}

// describeUSB labels raw USB devices with printer-class descriptors read via
// libusb. Devices are matched in bus order; unmatched devices are returned
// unchanged.
func describeUSB(devices []Device, logger *slog.Logger) []Device {
	labels, err := usbPrinterDescriptors()
	if err != nil {
		logger.Debug("usb descriptor enumeration failed", "err", err)
		return devices
	}

	out := append([]Device(nil), devices...)
	for i := range out {
		if i >= len(labels) {
			break
		}
		out[i].Description = labels[i]
	}
	return out
}

// usbPrinterDescriptors returns "USB: <manufacturer> <product> (VID:PID)"
// for every USB device of the printer class.
func usbPrinterDescriptors() ([]string, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return isPrinterClass(desc)
	})
	defer func() {
		for _, dev := range devs {
			dev.Close()
		}
	}()
	if err != nil && len(devs) == 0 {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}

	var labels []string
	for _, dev := range devs {
		desc := dev.Desc
		manufacturer, _ := dev.Manufacturer()
		product, _ := dev.Product()

		label := fmt.Sprintf("USB: %04X:%04X", uint16(desc.Vendor), uint16(desc.Product))
		if name := strings.TrimSpace(manufacturer + " " + product); name != "" {
			label = fmt.Sprintf("USB: %s (%04X:%04X)", name, uint16(desc.Vendor), uint16(desc.Product))
		}
		labels = append(labels, label)
	}
	return labels, nil
}

func isPrinterClass(desc *gousb.DeviceDesc) bool {
	if desc.Class == gousb.ClassPrinter {
		return true
	}
	for _, cfg := range desc.Configs {
		for _, iface := range cfg.Interfaces {
			for _, alt := range iface.AltSettings {
				if alt.Class == gousb.ClassPrinter {
					return true
				}
			}
		}
	}
	return false
}
