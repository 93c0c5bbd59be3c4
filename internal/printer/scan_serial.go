package printer

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/tarm/serial"
)

// scanSerial opens candidate serial ports briefly to confirm they exist.
func scanSerial() []Device {
	return scanSerialPorts(serialCandidates(), openSerialPort)
}

func openSerialPort(path string) (io.Closer, error) {
	return serial.OpenPort(&serial.Config{
		Name:        path,
		Baud:        9600,
		ReadTimeout: 200 * time.Millisecond,
	})
}

// scanSerialPorts checks each port with open. A port that is being printed
// to is reported online without being touched.
func scanSerialPorts(paths []string, open func(string) (io.Closer, error)) []Device {
	var devices []Device
	for _, portPath := range paths {
		lock := portLock(portPath)
		if lock.TryLock() {
			port, err := open(portPath)
			if err == nil {
				port.Close()
			}
			lock.Unlock()
			if err != nil {
				continue
			}
		}

		devices = append(devices, Device{
			ID:          serialID(portPath),
			DisplayName: filepath.Base(portPath),
			Kind:        KindSerial,
			Status:      StatusOnline,
			DevicePath:  portPath,
			Description: fmt.Sprintf("Serial: %s", filepath.Base(portPath)),
		})
	}
	return devices
}

func serialCandidates() []string {
	var ports []string

	switch runtime.GOOS {
	case "darwin":
		skipPatterns := []string{"Bluetooth", "Modem", "SPP", "DialIn", "Callout", "KeySerial", "debug-console"}
		cuPorts, _ := filepath.Glob("/dev/cu.*")
		for _, port := range cuPorts {
			skip := false
			for _, pattern := range skipPatterns {
				if strings.Contains(port, pattern) {
					skip = true
					break
				}
			}
			if !skip {
				ports = append(ports, port)
			}
		}
	case "linux":
		usbPorts, _ := filepath.Glob("/dev/ttyUSB*")
		acmPorts, _ := filepath.Glob("/dev/ttyACM*")
		ports = append(ports, usbPorts...)
		ports = append(ports, acmPorts...)
	case "windows":
		for i := 1; i <= 32; i++ {
			ports = append(ports, fmt.Sprintf("COM%d", i))
		}
	}

	return ports
}
