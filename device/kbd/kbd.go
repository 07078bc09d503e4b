// Package kbd provides a driver for the PS/2 keyboard controller. The
// interrupt handler does the bare minimum (read one scancode, queue it); all
// decoding and echoing happens later in task context.
package kbd

import (
	"io"

	"kernos/device"
	"kernos/kernel"
	"kernos/kernel/cpu"
	"kernos/kernel/event"
	"kernos/kernel/irq"
)

// dataPort is the PS/2 controller data port. Reading it returns the next
// scancode and acknowledges the keyboard interrupt at the device level.
const dataPort = uint16(0x60)

var (
	portReadByteFn = cpu.PortReadByte
	handleIRQFn    = irq.HandleIRQ

	keyboard ps2Keyboard
)

// ps2Keyboard drives the PS/2 keyboard controller.
type ps2Keyboard struct {
	events event.Queue
}

// DriverName returns the name of the driver.
func (k *ps2Keyboard) DriverName() string { return "ps2_kbd" }

// DriverVersion returns the driver version.
func (k *ps2Keyboard) DriverVersion() (uint16, uint16, uint16) { return 0, 1, 0 }

// DriverInit attaches the driver to the keyboard interrupt line.
func (k *ps2Keyboard) DriverInit(_ io.Writer) *kernel.Error {
	handleIRQFn(irq.KeyboardIRQ, k.onIRQ)
	return nil
}

// onIRQ runs in interrupt context. The scancode must be consumed before the
// controller raises the next interrupt; queueing it is all the handler does.
func (k *ps2Keyboard) onIRQ() {
	k.events.Push(portReadByteFn(dataPort))
}

// EventQueue returns the queue the driver delivers scancodes into.
func EventQueue() *event.Queue {
	return &keyboard.events
}

func probeForKeyboard() device.Driver {
	return &keyboard
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderNormal,
		Probe: probeForKeyboard,
	})
}
