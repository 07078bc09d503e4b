package kfmt

import "io"

// PrefixWriter is an io.Writer that inserts a prefix at the beginning of
// each line of output. It is used by the driver probe code to tag each
// driver's init output with the driver name.
type PrefixWriter struct {
	// Sink specifies the io.Writer where all writes are sent to.
	Sink io.Writer

	// Prefix contains the prefix injected at the beginning of each line.
	Prefix []byte

	// midLine tracks whether the last write ended in the middle of a
	// line, in which case the next write must not inject the prefix.
	midLine bool
}

// Write writes len(p) bytes from p to the underlying data stream injecting
// the configured prefix at the beginning of each line.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var written, start int

	for i := 0; i < len(p); i++ {
		if !w.midLine {
			if start < i {
				n, err := w.Sink.Write(p[start:i])
				written += n
				if err != nil {
					return written, err
				}
				start = i
			}

			if _, err := w.Sink.Write(w.Prefix); err != nil {
				return written, err
			}
			w.midLine = true
		}

		if p[i] == '\n' {
			w.midLine = false
		}
	}

	if start < len(p) {
		n, err := w.Sink.Write(p[start:])
		written += n
		if err != nil {
			return written, err
		}
	}

	return written, nil
}
