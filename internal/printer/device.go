// Package printer handles printer discovery, activation and OS-level printing
package printer

import (
	"errors"
	"path/filepath"
	"strings"
)

// Kind is the transport class of a discovered printer.
type Kind string

const (
	KindSystem Kind = "system"
	KindUSB    Kind = "usb"
	KindSerial Kind = "serial"
)

// Status is the readiness of a discovered printer.
type Status string

const (
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
	StatusInactive Status = "inactive"
	StatusError    Status = "error"
)

// ID prefixes; the system prefix is stripped to recover the spooler name.
const (
	systemPrefix = "system_"
	usbPrefix    = "usb_"
	serialPrefix = "serial_"
)

// ErrNotSystemPrinter is returned for operations that only apply to spooler printers.
var ErrNotSystemPrinter = errors.New("not a system printer")

// Device is one printer in a discovery snapshot.
type Device struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Kind        Kind   `json:"kind"`
	Status      Status `json:"status"`
	IsDefault   bool   `json:"isDefault"`
	DevicePath  string `json:"devicePath,omitempty"`
	CanActivate bool   `json:"canActivate"`
	// Description carries USB descriptor strings when enrichment is enabled.
	Description string `json:"description,omitempty"`
}

// SystemID builds the id of a spooler printer.
func SystemID(name string) string {
	return systemPrefix + name
}

// SystemName recovers the spooler name from a system printer id.
func SystemName(id string) (string, error) {
	if !strings.HasPrefix(id, systemPrefix) || len(id) == len(systemPrefix) {
		return "", ErrNotSystemPrinter
	}
	return strings.TrimPrefix(id, systemPrefix), nil
}

func usbID(path string) string {
	return usbPrefix + filepath.Base(path)
}

func serialID(path string) string {
	return serialPrefix + filepath.Base(path)
}

type dedupKey struct {
	name string
	kind Kind
}

// Dedupe collapses devices sharing (DisplayName, Kind). The first one wins.
func Dedupe(devices []Device) []Device {
	seen := make(map[dedupKey]bool, len(devices))
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		key := dedupKey{name: d.DisplayName, kind: d.Kind}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}
