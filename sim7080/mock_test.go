// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package sim7080_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/warthog618/sim7080/at"
	"github.com/warthog618/sim7080/sim7080"
)

// script maps each command, as written to the modem, to a sequence of
// responses. Each write of the command returns the next response in the
// sequence, and the last response is repeated once the sequence is
// exhausted. An empty response elicits no reply at all.
type script map[string][][]string

// merge returns a copy of the script with the overrides applied.
func (s script) merge(overrides script) script {
	m := script{}
	for k, v := range s {
		m[k] = v
	}
	for k, v := range overrides {
		m[k] = v
	}
	return m
}

// reply is a response sequence that always returns the same lines.
func reply(lines ...string) [][]string {
	return [][]string{lines}
}

// mockModem is a scripted modem.
//
// Commands not in the script are answered with ERROR.
type mockModem struct {
	mu      sync.Mutex
	script  script
	calls   map[string]int
	writes  []string
	closed  bool
	r       chan []byte
	pending []byte
}

func newMockModem(s script) *mockModem {
	return &mockModem{
		script: s,
		calls:  map[string]int{},
		r:      make(chan []byte, 100),
	}
}

func (m *mockModem) Read(p []byte) (int, error) {
	if len(m.pending) == 0 {
		data, ok := <-m.r
		if !ok {
			return 0, io.EOF
		}
		m.pending = data
	}
	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

func (m *mockModem) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, at.ErrClosed
	}
	cmd := string(p)
	m.writes = append(m.writes, cmd)
	seq, ok := m.script[cmd]
	if !ok {
		m.r <- []byte("\r\nERROR\r\n")
		return len(p), nil
	}
	idx := m.calls[cmd]
	m.calls[cmd]++
	if len(seq) == 0 {
		return len(p), nil
	}
	if idx >= len(seq) {
		idx = len(seq) - 1
	}
	for _, l := range seq[idx] {
		m.r <- []byte(l)
	}
	return len(p), nil
}

func (m *mockModem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.r)
	}
	return nil
}

// Writes returns all the data written to the modem.
func (m *mockModem) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}

// Count returns the number of writes that start with the prefix.
func (m *mockModem) Count(prefix string) int {
	n := 0
	for _, w := range m.Writes() {
		if strings.HasPrefix(w, prefix) {
			n++
		}
	}
	return n
}

// Index returns the index of the nth (from 0) write that starts with the
// prefix, or -1 if there is no such write.
func (m *mockModem) Index(prefix string, nth int) int {
	for i, w := range m.Writes() {
		if strings.HasPrefix(w, prefix) {
			if nth == 0 {
				return i
			}
			nth--
		}
	}
	return -1
}

type fakePower struct {
	mu      sync.Mutex
	toggles int
	err     error
}

func (p *fakePower) Toggle(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toggles++
	return p.err
}

func (p *fakePower) Toggles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.toggles
}

// script fragments for common modem states.
var (
	poweredOn = script{
		"ATE0\r\n":        reply("\r\nOK\r\n"),
		"AT+CNACT?\r\n":   reply("\r\n+CNACT: 0,0,\"0.0.0.0\"\r\n", "+CNACT: 1,0,\"0.0.0.0\"\r\n", "\r\nOK\r\n"),
		"AT+SMSTATE?\r\n": reply("\r\n+SMSTATE: 0\r\n", "\r\nOK\r\n"),
	}
	attached = poweredOn.merge(script{
		"AT+CNACT?\r\n": reply("\r\n+CNACT: 0,1,\"10.94.1.2\"\r\n", "+CNACT: 1,0,\"0.0.0.0\"\r\n", "\r\nOK\r\n"),
	})
	connected = attached.merge(script{
		"AT+SMSTATE?\r\n": reply("\r\n+SMSTATE: 1\r\n", "\r\nOK\r\n"),
	})
)

func newModem(t *testing.T, s script, options ...sim7080.Option) (*sim7080.Modem, *mockModem) {
	t.Helper()
	mm := newMockModem(s)
	t.Cleanup(func() { mm.Close() })
	a := at.New(mm, at.WithTimeout(10*time.Millisecond))
	opts := []sim7080.Option{
		sim7080.WithLogger(zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))),
		sim7080.WithLongTimeout(20 * time.Millisecond),
		sim7080.WithRetryInterval(time.Millisecond),
	}
	m := sim7080.New(a, append(opts, options...)...)
	return m, mm
}
