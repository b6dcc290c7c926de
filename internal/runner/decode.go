// Package runner implements the subprocess streaming engine: it launches a
// CLI agent, multiplexes its stdout and stderr into one ordered event
// stream, and tears the run down deterministically on completion, stop or
// timeout.
package runner

import (
	"strings"
	"unicode/utf8"
)

const replacementChar = "�"

// textDecoder converts raw byte chunks into UTF-8 text incrementally. A
// multi-byte sequence split across chunk boundaries is held back until its
// remaining bytes arrive; invalid sequences are replaced with U+FFFD
// instead of failing the stream.
type textDecoder struct {
	pending []byte
}

// Decode appends a chunk and returns all text that is complete so far.
func (d *textDecoder) Decode(chunk []byte) string {
	d.pending = append(d.pending, chunk...)

	cut := len(d.pending)
	// A rune is at most utf8.UTFMax bytes, so only the tail can hold an
	// incomplete sequence worth waiting for.
	for i := len(d.pending) - 1; i >= 0 && i >= len(d.pending)-utf8.UTFMax; i-- {
		if utf8.RuneStart(d.pending[i]) {
			if !utf8.FullRune(d.pending[i:]) {
				cut = i
			}
			break
		}
	}

	out := strings.ToValidUTF8(string(d.pending[:cut]), replacementChar)
	d.pending = append(d.pending[:0], d.pending[cut:]...)
	return out
}

// Flush drains any held-back bytes at end of stream. A partial sequence
// that can never complete decodes under the same replacement policy.
func (d *textDecoder) Flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	out := strings.ToValidUTF8(string(d.pending), replacementChar)
	d.pending = d.pending[:0]
	return out
}
