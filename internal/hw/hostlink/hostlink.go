package hostlink

import (
	"io"
	"strings"

	"github.com/openastro/altaz/internal/debug"
)

// Link turns a raw byte stream into newline-terminated protocol lines.
// Inbound, it buffers partial reads and yields one complete line per
// Poll; outbound, WriteLine appends CRLF. Lines may be terminated by LF
// or a bare CR (older host clients send CR only).
// maxLineBytes bounds a single inbound line. Protocol commands are a
// few dozen bytes; anything longer is line noise or a runaway host.
const maxLineBytes = 256

type Link struct {
	rw       io.ReadWriter
	readBuf  []byte
	partial  []byte   // bytes of an incomplete line
	pending  []string // complete lines not yet handed out
	overflow bool     // current line exceeded maxLineBytes, drop it
}

// New wraps an already-open byte stream (serial port, stdio, test pipe).
func New(rw io.ReadWriter) *Link {
	return &Link{
		rw:      rw,
		readBuf: make([]byte, 256),
	}
}

// Poll returns the next pending command line, reading from the stream
// at most once. A stream with nothing to say yields ("", false, nil):
// absence of input causes no action. io.EOF is returned once the stream
// is closed and all buffered lines are drained.
func (l *Link) Poll() (string, bool, error) {
	if line, ok := l.nextPending(); ok {
		return line, true, nil
	}

	n, err := l.rw.Read(l.readBuf)
	if n > 0 {
		l.feed(l.readBuf[:n])
	}
	if err != nil {
		if err == io.EOF {
			// drain what the final read produced before reporting EOF
			if line, ok := l.nextPending(); ok {
				return line, true, nil
			}
			return "", false, io.EOF
		}
		return "", false, err
	}

	line, ok := l.nextPending()
	return line, ok, nil
}

// WriteLine sends one reply line, CRLF-terminated.
func (l *Link) WriteLine(s string) error {
	debug.Reply(s)
	_, err := l.rw.Write([]byte(s + "\r\n"))
	return err
}

// Close closes the underlying stream if it supports closing.
func (l *Link) Close() error {
	if c, ok := l.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (l *Link) nextPending() (string, bool) {
	if len(l.pending) == 0 {
		return "", false
	}
	line := l.pending[0]
	l.pending = l.pending[1:]
	return line, true
}

// feed splits incoming bytes on CR or LF. Blank lines (including the LF
// of a CRLF pair) are dropped; surrounding whitespace is trimmed. A line
// that grows past maxLineBytes is discarded up to its terminator so an
// unterminated byte stream cannot grow the buffer without bound.
func (l *Link) feed(data []byte) {
	for _, b := range data {
		if b == '\n' || b == '\r' {
			if l.overflow {
				debug.Verbose("Host link: overlong line dropped")
				l.overflow = false
				continue
			}
			line := strings.TrimSpace(string(l.partial))
			l.partial = l.partial[:0]
			if line != "" {
				l.pending = append(l.pending, line)
			}
			continue
		}
		if l.overflow {
			continue
		}
		if len(l.partial) >= maxLineBytes {
			l.overflow = true
			l.partial = l.partial[:0]
			continue
		}
		l.partial = append(l.partial, b)
	}
}
