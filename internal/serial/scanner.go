// Package serial opens, frames and enumerates the serial ports pumps are attached to.
package serial

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"sort"
	"time"

	"go.bug.st/serial/enumerator"
)

// PortType represents the type of serial port
type PortType int

const (
	PortTypeUnknown PortType = iota
	PortTypeUSB
	PortTypeNative
	PortTypeBluetooth
	PortTypeVirtual
)

// String returns the string representation of PortType
func (p PortType) String() string {
	switch p {
	case PortTypeUSB:
		return "USB"
	case PortTypeNative:
		return "Native"
	case PortTypeBluetooth:
		return "Bluetooth"
	case PortTypeVirtual:
		return "Virtual"
	default:
		return "Unknown"
	}
}

// PortInfo contains information about a serial port
type PortInfo struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	HardwareID   string   `json:"hardware_id"`
	Manufacturer string   `json:"manufacturer"`
	Product      string   `json:"product"`
	SerialNumber string   `json:"serial_number"`
	VID          string   `json:"vid"`
	PID          string   `json:"pid"`
	PortType     PortType `json:"port_type"`
}

// Scanner handles serial port discovery and enumeration
type Scanner struct {
	excludePatterns []*regexp.Regexp
	list            func() ([]*enumerator.PortDetails, error)
}

// NewScanner creates a new port scanner
func NewScanner(excludePatterns []string) (*Scanner, error) {
	s := &Scanner{
		list: enumerator.GetDetailedPortsList,
	}

	for _, pattern := range excludePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: exclude pattern %q: %v", ErrInvalidConfig, pattern, err)
		}
		s.excludePatterns = append(s.excludePatterns, re)
	}

	return s, nil
}

// Scan discovers all available serial ports
func (s *Scanner) Scan() ([]PortInfo, error) {
	ports, err := s.list()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate ports: %w", err)
	}

	var result []PortInfo

	for _, port := range ports {
		// Check if port should be excluded
		if s.isExcluded(port.Name) {
			continue
		}

		info := PortInfo{
			Name:         port.Name,
			Product:      port.Product,
			SerialNumber: port.SerialNumber,
			VID:          port.VID,
			PID:          port.PID,
			PortType:     s.detectPortType(port),
		}

		// Build hardware ID
		if port.VID != "" && port.PID != "" {
			info.HardwareID = "USB\\VID_" + port.VID + "&PID_" + port.PID
		}

		// Set description based on available info
		info.Description = s.buildDescription(port)

		result = append(result, info)
	}

	// Sort ports by name
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result, nil
}

// GetPort returns information about a specific port
func (s *Scanner) GetPort(name string) (*PortInfo, error) {
	ports, err := s.Scan()
	if err != nil {
		return nil, err
	}

	for _, port := range ports {
		if port.Name == name {
			return &port, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrPortNotFound, name)
}

// isExcluded checks if a port should be excluded based on patterns
func (s *Scanner) isExcluded(name string) bool {
	for _, pattern := range s.excludePatterns {
		if pattern.MatchString(name) {
			return true
		}
	}
	return false
}

// detectPortType determines the type of port
func (s *Scanner) detectPortType(port *enumerator.PortDetails) PortType {
	if port.IsUSB {
		return PortTypeUSB
	}

	// Check for Bluetooth ports
	switch runtime.GOOS {
	case "windows":
		// Windows Bluetooth COM ports often have specific names
		if matched, _ := regexp.MatchString(`(?i)bluetooth|bth`, port.Name); matched {
			return PortTypeBluetooth
		}
	case "linux":
		if matched, _ := regexp.MatchString(`/dev/rfcomm`, port.Name); matched {
			return PortTypeBluetooth
		}
	case "darwin":
		if matched, _ := regexp.MatchString(`/dev/.*Bluetooth`, port.Name); matched {
			return PortTypeBluetooth
		}
	}

	// Check for virtual/pseudo terminals
	if runtime.GOOS == "linux" {
		if matched, _ := regexp.MatchString(`/dev/pts/|/dev/pty`, port.Name); matched {
			return PortTypeVirtual
		}
	}

	return PortTypeNative
}

// buildDescription creates a human-readable description for the port
func (s *Scanner) buildDescription(port *enumerator.PortDetails) string {
	if port.Product != "" {
		return port.Product
	}
	if port.IsUSB {
		return "USB Serial Device"
	}
	return "Serial Port"
}

// PortChangeCallback is called when ports change
type PortChangeCallback func(added, removed []PortInfo, current []PortInfo)

// WatchPorts rescans every interval until ctx is done and calls callback
// whenever ports appear or disappear. The first scan reports every port as added.
func (s *Scanner) WatchPorts(ctx context.Context, interval time.Duration, callback PortChangeCallback) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastPorts := make(map[string]PortInfo)
	for {
		ports, err := s.Scan()
		if err == nil {
			currentPorts := make(map[string]PortInfo, len(ports))
			for _, p := range ports {
				currentPorts[p.Name] = p
			}

			added := diffPorts(currentPorts, lastPorts)
			removed := diffPorts(lastPorts, currentPorts)
			if len(added) > 0 || len(removed) > 0 {
				callback(added, removed, ports)
			}
			lastPorts = currentPorts
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// diffPorts returns the ports in a that are missing from b, sorted by name.
func diffPorts(a, b map[string]PortInfo) []PortInfo {
	var out []PortInfo
	for name, port := range a {
		if _, exists := b[name]; !exists {
			out = append(out, port)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
