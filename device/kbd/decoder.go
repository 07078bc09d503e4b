package kbd

// Decoder translates raw scancodes into printable characters. Implementations
// carry whatever state the translation needs (shift level, layout, escape
// sequences in progress).
type Decoder interface {
	// Decode consumes one scancode and returns the character it completes,
	// if any.
	Decode(scancode uint8) (rune, bool)
}

// breakCodeBit is set on scancodes that report a key release.
const breakCodeBit = 0x80

// usQwertyMap translates scancode set 1 make codes for a US layout. Entries
// left zero have no printable representation.
var usQwertyMap = [128]rune{
	0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5',
	0x07: '6', 0x08: '7', 0x09: '8', 0x0a: '9', 0x0b: '0',
	0x0c: '-', 0x0d: '=',
	0x0f: '\t',
	0x10: 'q', 0x11: 'w', 0x12: 'e', 0x13: 'r', 0x14: 't',
	0x15: 'y', 0x16: 'u', 0x17: 'i', 0x18: 'o', 0x19: 'p',
	0x1a: '[', 0x1b: ']',
	0x1c: '\n',
	0x1e: 'a', 0x1f: 's', 0x20: 'd', 0x21: 'f', 0x22: 'g',
	0x23: 'h', 0x24: 'j', 0x25: 'k', 0x26: 'l',
	0x27: ';', 0x28: '\'', 0x29: '`',
	0x2b: '\\',
	0x2c: 'z', 0x2d: 'x', 0x2e: 'c', 0x2f: 'v', 0x30: 'b',
	0x31: 'n', 0x32: 'm',
	0x33: ',', 0x34: '.', 0x35: '/',
	0x37: '*',
	0x39: ' ',
}

// usQwertyDecoder decodes scancode set 1 for a US layout. Key releases and
// non-printable keys are swallowed.
type usQwertyDecoder struct{}

// NewUSQwertyDecoder returns a decoder for the US keyboard layout.
func NewUSQwertyDecoder() Decoder {
	return &usQwertyDecoder{}
}

// Decode implements Decoder.
func (d *usQwertyDecoder) Decode(scancode uint8) (rune, bool) {
	if scancode&breakCodeBit != 0 {
		return 0, false
	}

	ch := usQwertyMap[scancode&^breakCodeBit]
	if ch == 0 {
		return 0, false
	}
	return ch, true
}
