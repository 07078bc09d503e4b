// Package timer provides a driver for the programmable interval timer. The
// timer keeps ticking at the rate programmed by the firmware; the driver
// only counts the interrupts, which is enough to give the kernel a coarse
// monotonic clock and a periodic wake source for parked tasks.
package timer

import (
	"io"
	"sync/atomic"

	"kernos/device"
	"kernos/kernel"
	"kernos/kernel/irq"
)

var (
	handleIRQFn = irq.HandleIRQ

	pit intervalTimer
)

// intervalTimer counts the interrupts raised by PIT channel 0.
type intervalTimer struct {
	ticks uint64
}

// DriverName returns the name of the driver.
func (p *intervalTimer) DriverName() string { return "pit" }

// DriverVersion returns the driver version.
func (p *intervalTimer) DriverVersion() (uint16, uint16, uint16) { return 0, 1, 0 }

// DriverInit attaches the driver to the timer interrupt line, which also
// unmasks it at the interrupt controller.
func (p *intervalTimer) DriverInit(_ io.Writer) *kernel.Error {
	handleIRQFn(irq.TimerIRQ, p.onIRQ)
	return nil
}

// onIRQ runs in interrupt context on every tick. Bumping the counter is all
// it does; the dispatcher acknowledges the interrupt after it returns.
func (p *intervalTimer) onIRQ() {
	atomic.AddUint64(&p.ticks, 1)
}

// Ticks returns the number of timer interrupts serviced since boot.
func Ticks() uint64 {
	return atomic.LoadUint64(&pit.ticks)
}

func probeForTimer() device.Driver {
	return &pit
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderNormal,
		Probe: probeForTimer,
	})
}
