package link

import (
	"fmt"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
	"go.bug.st/serial/enumerator"
)

// PortInfo describes one detected serial port.
type PortInfo struct {
	Device       string
	VID          string
	PID          string
	SerialNumber string
	// Module is the recognised sensor module name, empty for unknown
	// devices.
	Module string
}

// knownModules maps usb vid:pid pairs to the sensor module they identify.
var knownModules = map[string]string{
	"0483:a41d": "XC120",
	"0483:a42c": "XC120",
	"0483:a42d": "XC120",
	"0483:5740": "XM125",
	"1366:0105": "XB122",
}

// detailedPorts is swappable in tests; the default asks the OS.
var detailedPorts = enumerator.GetDetailedPortsList

// Registry caches the detected serial ports keyed by device path so repeated
// port lookups do not re-probe the hardware. It replaces any process-global
// cache: construct one, pass it where ports are resolved, and call Refresh
// or Invalidate explicitly.
type Registry struct {
	ports *xsync.MapOf[string, PortInfo]
	fresh bool
}

// NewRegistry returns an empty registry; the first lookup triggers a
// refresh.
func NewRegistry() *Registry {
	return &Registry{ports: xsync.NewMapOf[string, PortInfo]()}
}

// Refresh re-enumerates the serial ports and replaces the cached view.
func (r *Registry) Refresh() error {
	list, err := detailedPorts()
	if err != nil {
		return fmt.Errorf("enumerate serial ports: %w", err)
	}
	r.ports.Clear()
	for _, p := range list {
		info := PortInfo{Device: p.Name}
		if p.IsUSB {
			info.VID = strings.ToLower(p.VID)
			info.PID = strings.ToLower(p.PID)
			info.SerialNumber = p.SerialNumber
			info.Module = knownModules[info.VID+":"+info.PID]
		}
		r.ports.Store(p.Name, info)
	}
	r.fresh = true
	return nil
}

// Invalidate drops the cached view; the next lookup re-probes.
func (r *Registry) Invalidate() {
	r.ports.Clear()
	r.fresh = false
}

func (r *Registry) ensure() error {
	if !r.fresh {
		return r.Refresh()
	}
	return nil
}

// Ports returns all cached ports.
func (r *Registry) Ports() ([]PortInfo, error) {
	if err := r.ensure(); err != nil {
		return nil, err
	}
	var out []PortInfo
	r.ports.Range(func(_ string, info PortInfo) bool {
		out = append(out, info)
		return true
	})
	return out, nil
}

// FindSensorPorts returns the cached ports recognised as sensor modules.
func (r *Registry) FindSensorPorts() ([]PortInfo, error) {
	all, err := r.Ports()
	if err != nil {
		return nil, err
	}
	var out []PortInfo
	for _, p := range all {
		if p.Module != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// Lookup returns the cached info for a device path.
func (r *Registry) Lookup(device string) (PortInfo, bool, error) {
	if err := r.ensure(); err != nil {
		return PortInfo{}, false, err
	}
	info, ok := r.ports.Load(device)
	return info, ok, nil
}
