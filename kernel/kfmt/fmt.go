// Package kfmt provides a minimal, allocation-free Printf implementation
// that can be safely used from any kernel context, including the early boot
// stages where the Go allocator is not yet available and interrupt handlers
// where allocation is forbidden.
package kfmt

import (
	"io"
)

// maxNumBufSize defines the buffer size for formatting numbers. It is large
// enough to hold a 64-bit value formatted in base 8.
const maxNumBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	numFmtBuf [maxNumBufSize]byte

	// singleByte is a shared one-byte buffer used for emitting individual
	// characters without triggering a string-to-slice conversion (which
	// would allocate).
	singleByte = []byte{0}

	// earlyPrintBuffer captures Printf output produced before an output
	// sink has been registered.
	earlyPrintBuffer ringBuffer

	// outputSink is the io.Writer that receives Printf output. While nil,
	// output is redirected to earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the target for calls to Printf to w and replays any
// buffered early boot output to it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the currently registered output sink.
func GetOutputSink() io.Writer {
	return outputSink
}

// Printf writes the formatted output for a format specifier to the active
// output sink. The following subset of formatting verbs is supported:
//
// Strings:
//              %s the uninterpreted bytes of the string or byte slice
//
// Integers:
//              %o base 8
//              %d base 10
//              %x base 16, with lower-case letters for a-f
//
// Booleans:
//              %t "true" or "false"
//
// Characters:
//              %c the character represented by the byte
//
// An optional decimal width may precede the verb. Strings and base-10
// integers shorter than the width are left-padded with spaces; base-16 and
// base-8 integers are left-padded with zeroes.
//
// Printf neither allocates nor blocks and is therefore safe to call from
// interrupt handlers.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but writes the formatted output to w.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		fmtLen  = len(format)
		nextArg int
	)

	for i := 0; i < fmtLen; i++ {
		ch := format[i]
		if ch != '%' {
			emitByte(w, ch)
			continue
		}

		// Parse the optional width that follows the '%'.
		var padLen int
		for i++; i < fmtLen && format[i] >= '0' && format[i] <= '9'; i++ {
			padLen = padLen*10 + int(format[i]-'0')
		}

		if i >= fmtLen {
			emitBytes(w, errNoVerb)
			return
		}

		if format[i] == '%' {
			emitByte(w, '%')
			continue
		}

		if nextArg >= len(args) {
			emitBytes(w, errMissingArg)
			continue
		}

		emitVerb(w, format[i], padLen, args[nextArg])
		nextArg++
	}

	if nextArg < len(args) {
		emitBytes(w, errExtraArg)
	}
}

// emitVerb formats a single argument according to verb and the requested
// padding and writes it to w.
func emitVerb(w io.Writer, verb byte, padLen int, arg interface{}) {
	switch verb {
	case 'c':
		if v, isByte := arg.(byte); isByte {
			emitByte(w, v)
			return
		}
		emitBytes(w, errWrongArgType)
	case 'o':
		emitUint(w, arg, 8, padLen)
	case 'd':
		emitUint(w, arg, 10, padLen)
	case 'x':
		emitUint(w, arg, 16, padLen)
	case 's':
		emitString(w, arg, padLen)
	case 't':
		switch v := arg.(type) {
		case bool:
			if v {
				emitBytes(w, trueValue)
			} else {
				emitBytes(w, falseValue)
			}
		default:
			emitBytes(w, errWrongArgType)
		}
	default:
		emitBytes(w, errNoVerb)
	}
}

// emitString emits the contents of a string or byte slice argument,
// left-padding it with spaces up to padLen.
func emitString(w io.Writer, arg interface{}, padLen int) {
	switch v := arg.(type) {
	case string:
		for pad := padLen - len(v); pad > 0; pad-- {
			emitByte(w, ' ')
		}
		// Emitting the string one byte at a time avoids the allocation
		// that a string-to-slice conversion would trigger.
		for i := 0; i < len(v); i++ {
			emitByte(w, v[i])
		}
	case []byte:
		for pad := padLen - len(v); pad > 0; pad-- {
			emitByte(w, ' ')
		}
		emitBytes(w, v)
	default:
		emitBytes(w, errWrongArgType)
	}
}

// emitUint formats an integer argument of any built-in integer type in the
// requested base and writes it to w. Base-16 and base-8 values are padded
// with zeroes, base-10 values with spaces. Negative base-10 values emit a
// leading minus sign.
func emitUint(w io.Writer, arg interface{}, base, padLen int) {
	var (
		v        uint64
		negative bool
	)

	switch t := arg.(type) {
	case uint8:
		v = uint64(t)
	case uint16:
		v = uint64(t)
	case uint32:
		v = uint64(t)
	case uint64:
		v = t
	case uintptr:
		v = uint64(t)
	case uint:
		v = uint64(t)
	case int8:
		negative = t < 0
		v = abs64(int64(t))
	case int16:
		negative = t < 0
		v = abs64(int64(t))
	case int32:
		negative = t < 0
		v = abs64(int64(t))
	case int64:
		negative = t < 0
		v = abs64(t)
	case int:
		negative = t < 0
		v = abs64(int64(t))
	default:
		emitBytes(w, errWrongArgType)
		return
	}

	padCh := byte('0')
	if base == 10 {
		padCh = ' '
	}

	// Format the digits from the tail of numFmtBuf towards its head.
	wrIndex := maxNumBufSize
	for {
		wrIndex--
		digit := byte(v % uint64(base))
		if digit < 10 {
			numFmtBuf[wrIndex] = '0' + digit
		} else {
			numFmtBuf[wrIndex] = 'a' + digit - 10
		}
		if v /= uint64(base); v == 0 {
			break
		}
	}

	if negative {
		emitByte(w, '-')
	}

	for pad := padLen - (maxNumBufSize - wrIndex); pad > 0; pad-- {
		emitByte(w, padCh)
	}

	emitBytes(w, numFmtBuf[wrIndex:])
}

// emitByte writes a single byte to w, or to the early boot ring buffer when
// w is nil.
func emitByte(w io.Writer, b byte) {
	singleByte[0] = b
	emitBytes(w, singleByte)
}

// emitBytes writes p to w, or to the early boot ring buffer when w is nil.
func emitBytes(w io.Writer, p []byte) {
	if w == nil {
		earlyPrintBuffer.Write(p)
		return
	}
	w.Write(p)
}

func abs64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}
