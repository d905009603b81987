// Package wire implements the relay line protocol.
//
// Every message is one UTF-8 line terminated by '\n' ("\r\n" is accepted too).
// A line longer than the reader size is delivered as consecutive chunks,
// so long input is never silently truncated.
package wire

import (
	"bufio"
	"io"
	"unicode/utf8"
)

const (
	// DefaultMaxMessageSize - default size of single message in bytes.
	DefaultMaxMessageSize = 1024
	// MinMessageSize - smallest accepted message size, bufio does not go lower.
	MinMessageSize = 16
)

// Reader - reads valid utf-8 messages from the underlying stream.
type Reader struct {
	src *bufio.Reader
	// rest - incomplete rune cut from the end of previous chunk
	rest []byte
}

// NewReader - builds Reader which splits lines longer than size into chunks.
// Size lower than MinMessageSize is replaced with MinMessageSize.
func NewReader(r io.Reader, size int) *Reader {
	if size < MinMessageSize {
		size = MinMessageSize
	}
	return &Reader{src: bufio.NewReaderSize(r, size)}
}

// ReadMessage - returns next non-empty message without line terminator,
// the rest of the line bytes are kept as is.
// Chunk of a long line may exceed the reader size by the bytes of one rune
// carried over from the previous chunk.
func (r *Reader) ReadMessage() ([]byte, error) {
	for {
		line, isPrefix, err := r.src.ReadLine()
		if err != nil {
			return nil, err
		}
		data := make([]byte, 0, len(r.rest)+len(line))
		data = append(data, r.rest...)
		data = append(data, line...)
		r.rest = r.rest[:0]
		if isPrefix {
			if cut := IncompleteTail(data); cut > 0 {
				r.rest = append(r.rest, data[len(data)-cut:]...)
				data = data[:len(data)-cut]
			}
		}
		if msg := Sanitize(data); len(msg) > 0 {
			return msg, nil
		}
	}
}

// Encode - returns a copy of payload terminated by '\n'.
func Encode(payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+1)
	frame = append(frame, payload...)
	return append(frame, '\n')
}

// WriteMessage - writes payload as single frame with one Write call.
func WriteMessage(w io.Writer, payload []byte) error {
	_, err := w.Write(Encode(payload))
	return err
}

// Sanitize - drops invalid unicode sequences, valid text is returned unchanged.
func Sanitize(p []byte) []byte {
	if utf8.Valid(p) {
		return p
	}
	out := make([]byte, 0, len(p))
	for len(p) > 0 {
		r, size := utf8.DecodeRune(p)
		if r != utf8.RuneError || size > 1 {
			out = append(out, p[:size]...)
		}
		p = p[size:]
	}
	return out
}

// IncompleteTail - returns number of bytes at the end of p which start
// a valid but unfinished utf-8 sequence. Returns 0 if p ends with complete rune.
func IncompleteTail(p []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(p); i++ {
		tail := p[len(p)-i:]
		if !utf8.RuneStart(tail[0]) {
			continue
		}
		if utf8.FullRune(tail) {
			return 0
		}
		return i
	}
	return 0
}
