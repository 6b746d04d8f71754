// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package at

import (
	"bytes"
	"io"
	"strings"
	"time"
)

// link buffers the byte stream read from the modem and provides line and
// fixed length reads with a timeout.
//
// The link is only accessed from the goroutine issuing commands, apart from
// the reader goroutine which only sends on the chunks channel.
type link struct {
	rw io.ReadWriter

	// chunks read from the modem, closed when the read side fails
	chunks chan []byte

	// closed when the modem read side fails
	closed chan struct{}

	// bytes received but not yet consumed
	buf []byte

	// set once chunks has been closed and drained
	eof bool
}

func newLink(rw io.ReadWriter) *link {
	l := &link{
		rw:     rw,
		chunks: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	go l.reader()
	return l
}

// reader takes chunks from the modem and redirects them to the chunks channel.
//
// reader exits when a read from the modem returns an error.
func (l *link) reader() {
	defer func() {
		close(l.chunks)
		close(l.closed)
	}()
	for {
		b := make([]byte, 512)
		n, err := l.rw.Read(b)
		if n > 0 {
			l.chunks <- b[:n]
		}
		if err != nil {
			return
		}
	}
}

func (l *link) write(p []byte) error {
	_, err := l.rw.Write(p)
	return err
}

// available returns the number of bytes received and not yet consumed,
// without blocking.
func (l *link) available() int {
	for !l.eof {
		select {
		case b, ok := <-l.chunks:
			if !ok {
				l.eof = true
				break
			}
			l.buf = append(l.buf, b...)
		default:
			return len(l.buf)
		}
	}
	return len(l.buf)
}

// drain discards any received data, returning the non-empty lines it
// contained.
func (l *link) drain() []string {
	if l.available() == 0 {
		return nil
	}
	var lines []string
	for {
		line, ok := l.nextLine()
		if !ok {
			break
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	if rest := strings.TrimSpace(string(l.buf)); rest != "" {
		lines = append(lines, rest)
	}
	l.buf = nil
	return lines
}

// readLine returns the next line from the modem, stripped of the line
// delimiter.
//
// If no complete line arrives within the timeout then any partial line is
// returned, else ErrTimeout.
func (l *link) readLine(timeout time.Duration) (string, error) {
	if line, ok := l.nextLine(); ok {
		return line, nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		if line, ok := l.nextLine(); ok {
			return line, nil
		}
		if l.eof {
			if len(l.buf) > 0 {
				return string(l.take(len(l.buf))), nil
			}
			return "", ErrClosed
		}
		select {
		case b, ok := <-l.chunks:
			if !ok {
				l.eof = true
				continue
			}
			l.buf = append(l.buf, b...)
		case <-t.C:
			if len(l.buf) > 0 {
				return strings.TrimRight(string(l.take(len(l.buf))), "\r"), nil
			}
			return "", ErrTimeout
		}
	}
}

// readFull returns the next n bytes from the modem.
//
// If fewer than n bytes arrive within the timeout then those received are
// returned along with ErrTimeout.
func (l *link) readFull(n int, timeout time.Duration) ([]byte, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	for len(l.buf) < n {
		if l.eof {
			return l.take(len(l.buf)), ErrClosed
		}
		select {
		case b, ok := <-l.chunks:
			if !ok {
				l.eof = true
				continue
			}
			l.buf = append(l.buf, b...)
		case <-t.C:
			return l.take(len(l.buf)), ErrTimeout
		}
	}
	return l.take(n), nil
}

// nextLine removes the next complete line from the buffer.
//
// The data prompt, a '>' and any trailing spaces, is returned as a line even
// though the modem does not terminate it.
func (l *link) nextLine() (string, bool) {
	if len(l.buf) > 0 && l.buf[0] == '>' {
		i := 1
		// there may be trailing space, so swallow that...
		for ; i < len(l.buf) && l.buf[i] == ' '; i++ {
		}
		l.buf = l.buf[i:]
		return ">", true
	}
	i := bytes.IndexByte(l.buf, '\n')
	if i < 0 {
		return "", false
	}
	line := strings.TrimRight(string(l.buf[:i]), "\r")
	l.buf = l.buf[i+1:]
	return line, true
}

func (l *link) take(n int) []byte {
	b := make([]byte, n)
	copy(b, l.buf[:n])
	l.buf = l.buf[n:]
	return b
}
