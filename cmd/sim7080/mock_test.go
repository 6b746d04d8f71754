// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/warthog618/sim7080/at"
	"github.com/warthog618/sim7080/metrics"
	"github.com/warthog618/sim7080/sim7080"
)

// script maps each command, as written to the modem, to the lines it elicits.
type script map[string][]string

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

// mockModem is a scripted modem.
//
// Commands not in the script are answered with ERROR.
type mockModem struct {
	mu      sync.Mutex
	script  script
	writes  []string
	closed  bool
	r       chan []byte
	pending []byte
}

func newMockModem(s script) *mockModem {
	return &mockModem{
		script: s,
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
	lines, ok := m.script[cmd]
	if !ok {
		lines = []string{"\r\nERROR\r\n"}
	}
	for _, l := range lines {
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

// Count returns the number of writes that start with the prefix.
func (m *mockModem) Count(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, w := range m.writes {
		if strings.HasPrefix(w, prefix) {
			n++
		}
	}
	return n
}

type fakePower struct{}

func (fakePower) Toggle(ctx context.Context) error {
	return nil
}

var (
	poweredOn = script{
		"ATE0\r\n":        {"\r\nOK\r\n"},
		"AT+CNACT?\r\n":   {"\r\n+CNACT: 0,0,\"0.0.0.0\"\r\n", "\r\nOK\r\n"},
		"AT+SMSTATE?\r\n": {"\r\n+SMSTATE: 0\r\n", "\r\nOK\r\n"},
		"AT+CPOWD=1\r\n":  {"\r\nNORMAL POWER DOWN\r\n"},
	}
	connected = poweredOn.merge(script{
		"AT+CNACT?\r\n":    {"\r\n+CNACT: 0,1,\"10.94.1.2\"\r\n", "\r\nOK\r\n"},
		"AT+SMSTATE?\r\n":  {"\r\n+SMSTATE: 1\r\n", "\r\nOK\r\n"},
		"AT+CSQ\r\n":       {"\r\n+CSQ: 20,99\r\n", "\r\nOK\r\n"},
		"AT+SMDISC\r\n":    {"\r\nOK\r\n"},
		"AT+CNACT=0,0\r\n": {"\r\nOK\r\n"},
	})
)

// newTestApp returns an app driving a scripted modem.
func newTestApp(t *testing.T, s script, testMode bool) (*app, *mockModem, *prometheus.Registry) {
	t.Helper()
	cfg, err := LoadConfig(WithDefaults())
	require.Nil(t, err)
	cfg.MQTT.Topic = "events"
	reg := prometheus.NewRegistry()
	met, err := metrics.New(reg)
	require.Nil(t, err)
	log := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	a := &app{
		cfg:      cfg,
		log:      log,
		metrics:  met,
		registry: reg,
		testMode: testMode,
		out:      &bytes.Buffer{},
	}
	mm := newMockModem(s)
	t.Cleanup(func() { mm.Close() })
	am := at.New(mm, at.WithTimeout(10*time.Millisecond))
	a.modem = sim7080.New(am,
		sim7080.WithLogger(log.Named("modem")),
		sim7080.WithLongTimeout(20*time.Millisecond),
		sim7080.WithRetryInterval(time.Millisecond),
		sim7080.WithPower(fakePower{}),
		sim7080.WithTestMode(testMode),
		sim7080.WithLevelObserver(a.observeLevel))
	return a, mm, reg
}
