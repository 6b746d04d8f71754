// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

// Package serial provides a serial port, which provides the io.ReadWriter
// interface, that provides the connection between the host and the modem.
package serial

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// Config contains the configuration of the serial port.
type Config struct {
	port string
	baud int
	poll time.Duration
}

// Option modifies the serial port Config.
type Option func(*Config)

// Port is a serial port connected to the modem.
//
// Reads block until data is available or the port is closed.
type Port struct {
	p      *serial.Port
	closed atomic.Bool
}

// New creates a serial port.
//
// This is currently a simple wrapper around tarm serial.
func New(options ...Option) (*Port, error) {
	cfg := defaultConfig
	for _, option := range options {
		option(&cfg)
	}
	if cfg.baud <= 0 {
		return nil, errors.Errorf("invalid baud rate %d", cfg.baud)
	}
	config := &serial.Config{
		Name:        cfg.port,
		Baud:        cfg.baud,
		ReadTimeout: cfg.poll,
	}
	p, err := serial.OpenPort(config)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", cfg.port)
	}
	return &Port{p: p}, nil
}

// WithBaud sets the baud rate for the serial port.
func WithBaud(b int) Option {
	return func(c *Config) {
		c.baud = b
	}
}

// WithPort specifies the port for the serial port.
func WithPort(p string) Option {
	return func(c *Config) {
		c.port = p
	}
}

// WithPollInterval sets the period the driver waits for data before
// rechecking whether the port has been closed.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) {
		c.poll = d
	}
}

// Read reads from the modem.
//
// The driver reports a poll expiry with no data as io.EOF, which is not the
// end of the stream, so reads are retried until data arrives or the port is
// closed.
func (p *Port) Read(b []byte) (int, error) {
	for {
		n, err := p.p.Read(b)
		if n > 0 || (err != nil && err != io.EOF) {
			return n, err
		}
		if p.closed.Load() {
			return 0, io.EOF
		}
	}
}

func (p *Port) Write(b []byte) (int, error) {
	return p.p.Write(b)
}

// Close closes the port, which will unblock any pending Read.
func (p *Port) Close() error {
	p.closed.Store(true)
	return p.p.Close()
}
