package irq

import "kernos/kernel/cpu"

// 8259A programmable interrupt controller ports. The system wires two PICs
// in a master/slave cascade with the slave attached to master line 2.
const (
	picMasterCmdPort  = 0x20
	picMasterDataPort = 0x21
	picSlaveCmdPort   = 0xa0
	picSlaveDataPort  = 0xa1

	// picCmdInit starts the initialization sequence (ICW1). The LSB
	// indicates that an ICW4 word will follow.
	picCmdInit = 0x11

	// picCmdEOI signals end of interrupt.
	picCmdEOI = 0x20

	// picMode8086 selects 8086/88 mode (ICW4).
	picMode8086 = 0x01

	// slaveCascadeLine is the master input line the slave PIC is wired to.
	slaveCascadeLine = 2

	// numIRQLines is the total number of input lines across both PICs.
	numIRQLines = 16
)

var portWriteByteFn = cpu.PortWriteByte

// pic8259 drives the master/slave 8259A pair. All lines start out masked;
// individual lines are unmasked as drivers register interest in them.
type pic8259 struct {
	masterMask uint8
	slaveMask  uint8
}

// init remaps the PIC pair so that the master delivers its interrupts at
// masterOffset and the slave at slaveOffset. Remapping is mandatory: the
// power-on vector range overlaps the CPU exception vectors which makes it
// impossible to tell a hardware interrupt from a fault.
//
// The sequence follows the ICW1-ICW4 initialization protocol described in
// the 8259A datasheet and leaves every line masked except the cascade line.
func (p *pic8259) init(masterOffset, slaveOffset uint8) {
	// ICW1: begin initialization on both PICs.
	portWriteByteFn(picMasterCmdPort, picCmdInit)
	portWriteByteFn(picSlaveCmdPort, picCmdInit)

	// ICW2: vector offsets.
	portWriteByteFn(picMasterDataPort, masterOffset)
	portWriteByteFn(picSlaveDataPort, slaveOffset)

	// ICW3: master learns which line the slave hangs off; the slave
	// learns its cascade identity.
	portWriteByteFn(picMasterDataPort, 1<<slaveCascadeLine)
	portWriteByteFn(picSlaveDataPort, slaveCascadeLine)

	// ICW4: 8086 mode.
	portWriteByteFn(picMasterDataPort, picMode8086)
	portWriteByteFn(picSlaveDataPort, picMode8086)

	// Mask everything. The cascade line stays open so slave interrupts
	// can propagate once they are individually unmasked.
	p.masterMask = 0xff &^ (1 << slaveCascadeLine)
	p.slaveMask = 0xff
	portWriteByteFn(picMasterDataPort, p.masterMask)
	portWriteByteFn(picSlaveDataPort, p.slaveMask)
}

// unmask enables delivery for the given IRQ line.
func (p *pic8259) unmask(line uint8) {
	if line >= numIRQLines {
		return
	}

	if line < 8 {
		p.masterMask &^= 1 << line
		portWriteByteFn(picMasterDataPort, p.masterMask)
		return
	}

	p.slaveMask &^= 1 << (line - 8)
	portWriteByteFn(picSlaveDataPort, p.slaveMask)
}

// mask disables delivery for the given IRQ line.
func (p *pic8259) mask(line uint8) {
	if line >= numIRQLines {
		return
	}

	if line < 8 {
		p.masterMask |= 1 << line
		portWriteByteFn(picMasterDataPort, p.masterMask)
		return
	}

	p.slaveMask |= 1 << (line - 8)
	portWriteByteFn(picSlaveDataPort, p.slaveMask)
}

// ack signals end of interrupt for the given IRQ line. Interrupts routed
// through the slave PIC require an EOI to the slave before the master;
// acknowledging the master first would allow it to re-raise the cascade line
// while the slave still has the interrupt in service.
func (p *pic8259) ack(line uint8) {
	if line >= 8 {
		portWriteByteFn(picSlaveCmdPort, picCmdEOI)
	}
	portWriteByteFn(picMasterCmdPort, picCmdEOI)
}
