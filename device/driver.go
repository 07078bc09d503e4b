// Package device defines the driver model shared by all hardware drivers and
// keeps the registry that the kernel walks during boot to detect and
// initialize the machine's devices.
package device

import (
	"io"

	"kernos/kernel"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprintf.
	DriverInit(io.Writer) *kernel.Error
}

// ProbeFn is a function that scans for the presence of a particular piece of
// hardware and returns a driver for it. Probes return nil when the hardware
// is absent.
type ProbeFn func() Driver

// DetectOrder specifies when each driver probe runs relative to the other
// probes during hardware detection.
type DetectOrder int

const (
	// DetectOrderEarly is used by drivers that other subsystems depend on
	// as soon as possible, such as the serial console.
	DetectOrderEarly DetectOrder = -128

	// DetectOrderNormal is the default detection order.
	DetectOrderNormal DetectOrder = 0

	// DetectOrderLast is used by drivers that must probe after every other
	// driver has been given a chance to claim its hardware.
	DetectOrderLast DetectOrder = 128
)

// DriverInfo describes a driver probe to the hardware detection code.
type DriverInfo struct {
	// Order defines when the probe runs during hardware detection.
	Order DetectOrder

	// Probe checks for the presence of the device and returns a driver
	// for it.
	Probe ProbeFn
}

// DriverInfoList is a list of registered drivers sortable by detect order.
type DriverInfoList []*DriverInfo

// Len returns the number of entries in the list.
func (l DriverInfoList) Len() int { return len(l) }

// Swap exchanges the values of two list entries.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

// Less reports whether entry i must be probed before entry j.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }

var registeredDrivers DriverInfoList

// RegisterDriver adds a driver to the registry. Drivers call it from their
// package init functions.
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns the list of registered drivers.
func DriverList() DriverInfoList {
	return registeredDrivers
}
