// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

// Package trace provides a decorator for io.ReadWriter that logs all reads
// and writes.
package trace

import (
	"encoding/hex"
	"io"

	"go.uber.org/zap"
)

// Trace is a trace log on an io.ReadWriter.
//
// All reads and writes are logged at debug level.
type Trace struct {
	rw     io.ReadWriter
	l      *zap.Logger
	rmsg   string
	wmsg   string
	encode func([]byte) zap.Field
}

// Option modifies a Trace object created by New.
type Option func(*Trace)

// New creates a new trace on the io.ReadWriter.
func New(rw io.ReadWriter, options ...Option) *Trace {
	t := &Trace{
		rw:     rw,
		l:      zap.NewNop(),
		rmsg:   "r",
		wmsg:   "w",
		encode: textField,
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// WithReadMessage sets the message used for read logs.
func WithReadMessage(msg string) Option {
	return func(t *Trace) {
		t.rmsg = msg
	}
}

// WithWriteMessage sets the message used for write logs.
func WithWriteMessage(msg string) Option {
	return func(t *Trace) {
		t.wmsg = msg
	}
}

// WithHex logs the data hex encoded rather than as text.
//
// This is more readable for binary transfers such as file downloads.
func WithHex() Option {
	return func(t *Trace) {
		t.encode = hexField
	}
}

// WithLogger specifies the logger to be used to log trace messages.
//
// By default traces are discarded.
func WithLogger(l *zap.Logger) Option {
	return func(t *Trace) {
		t.l = l
	}
}

func (t *Trace) Read(p []byte) (n int, err error) {
	n, err = t.rw.Read(p)
	if n > 0 {
		t.l.Debug(t.rmsg, t.encode(p[:n]))
	}
	return n, err
}

func (t *Trace) Write(p []byte) (n int, err error) {
	n, err = t.rw.Write(p)
	if n > 0 {
		t.l.Debug(t.wmsg, t.encode(p[:n]))
	}
	return n, err
}

func textField(p []byte) zap.Field {
	return zap.ByteString("data", p)
}

func hexField(p []byte) zap.Field {
	return zap.String("data", hex.EncodeToString(p))
}
