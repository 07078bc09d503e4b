// Package serial provides a driver for the 16550 UART behind the COM1 port.
// The kernel uses it as its console: once the driver initializes it becomes
// the output sink for kfmt and everything buffered during early boot is
// replayed to it.
package serial

import (
	"io"

	"kernos/device"
	"kernos/kernel"
	"kernos/kernel/cpu"
	"kernos/kernel/kfmt"
)

const (
	// com1Base is the I/O port base for the first serial port.
	com1Base = uint16(0x3f8)

	// Register offsets from the port base.
	regData       = 0 // also divisor low byte while DLAB is set
	regIntEnable  = 1 // also divisor high byte while DLAB is set
	regFIFOCtrl   = 2
	regLineCtrl   = 3
	regModemCtrl  = 4
	regLineStatus = 5

	// lineStatusTxReady is set when the transmitter holding register can
	// accept another byte.
	lineStatusTxReady = 1 << 5

	// lineCtrlDLAB exposes the baud rate divisor registers.
	lineCtrlDLAB = 1 << 7

	// lineCtrl8N1 selects 8 data bits, no parity, one stop bit.
	lineCtrl8N1 = 0x03

	// baudDivisor divides the UART's 115200 base rate down to 38400.
	baudDivisor = 3
)

var (
	portWriteByteFn = cpu.PortWriteByte
	portReadByteFn  = cpu.PortReadByte

	errLoopbackFailed = &kernel.Error{Module: "serial", Message: "COM1 loopback test failed"}
)

// uart16550 drives the UART and doubles as the console io.Writer.
type uart16550 struct {
	base uint16
}

// DriverName returns the name of the driver.
func (u *uart16550) DriverName() string { return "uart16550" }

// DriverVersion returns the driver version.
func (u *uart16550) DriverVersion() (uint16, uint16, uint16) { return 0, 1, 0 }

// DriverInit programs the UART for 38400 8N1 operation with FIFOs enabled
// and verifies the chip via its loopback mode. On success the driver
// installs itself as the kfmt output sink.
func (u *uart16550) DriverInit(w io.Writer) *kernel.Error {
	// Mask UART interrupts; the console transmit path polls.
	portWriteByteFn(u.base+regIntEnable, 0x00)

	// Program the baud divisor.
	portWriteByteFn(u.base+regLineCtrl, lineCtrlDLAB)
	portWriteByteFn(u.base+regData, baudDivisor&0xff)
	portWriteByteFn(u.base+regIntEnable, baudDivisor>>8)
	portWriteByteFn(u.base+regLineCtrl, lineCtrl8N1)

	// Enable FIFOs, clear them, 14-byte trigger threshold.
	portWriteByteFn(u.base+regFIFOCtrl, 0xc7)

	// Check that the chip echoes a byte in loopback mode before trusting
	// it with console output.
	portWriteByteFn(u.base+regModemCtrl, 0x1e)
	portWriteByteFn(u.base+regData, 0xae)
	if portReadByteFn(u.base+regData) != 0xae {
		return errLoopbackFailed
	}

	// Normal operation: DTR + RTS asserted.
	portWriteByteFn(u.base+regModemCtrl, 0x0f)

	kfmt.SetOutputSink(u)
	return nil
}

// Write sends p to the UART, translating each newline to a carriage return,
// newline pair for the benefit of terminal emulators. It never fails; the
// signature exists to satisfy io.Writer.
func (u *uart16550) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			u.writeByte('\r')
		}
		u.writeByte(b)
	}
	return len(p), nil
}

func (u *uart16550) writeByte(b byte) {
	for portReadByteFn(u.base+regLineStatus)&lineStatusTxReady == 0 {
	}
	portWriteByteFn(u.base+regData, b)
}

func probeForUART() device.Driver {
	return &uart16550{base: com1Base}
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForUART,
	})
}
