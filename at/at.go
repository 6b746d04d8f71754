// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

// Package at provides a low level driver for AT modems.
package at

import (
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/warthog618/sim7080/info"
)

// AT represents a modem that can be managed using AT commands.
//
// Commands are issued synchronously and strictly one at a time. Each call
// blocks until the terminal line is received, the modem reports an error, or
// no line arrives within the timeout. The outcome is always reported in the
// returned Response - the dispatcher methods never fail.
//
// Any unsolicited lines received before a command is issued are drained and
// logged, so they are never interpreted as part of the response.
//
// An AT is not safe for concurrent use.
type AT struct {
	// the buffered link to the underlying modem
	l *link

	// the default time to wait for each response line
	timeout time.Duration

	log *zap.Logger

	obs Observer
}

// Option is a construction option for an AT.
type Option func(*AT)

// DefaultTimeout is the default time to wait for each line of a response.
const DefaultTimeout = time.Second

// New creates a new AT modem.
func New(modem io.ReadWriter, options ...Option) *AT {
	a := &AT{
		timeout: DefaultTimeout,
		log:     zap.NewNop(),
		obs:     nopObserver{},
	}
	for _, option := range options {
		option(a)
	}
	a.l = newLink(modem)
	return a
}

// WithTimeout sets the default time to wait for each line of a response.
//
// The default timeout is 1 second.
func WithTimeout(d time.Duration) Option {
	return func(a *AT) {
		a.timeout = d
	}
}

// WithLogger specifies the logger used to log requests and responses.
func WithLogger(l *zap.Logger) Option {
	return func(a *AT) {
		a.log = l
	}
}

// WithObserver specifies an observer to be notified of the outcome of every
// exchange with the modem.
func WithObserver(o Observer) Option {
	return func(a *AT) {
		a.obs = o
	}
}

// Observer is notified of the outcome of each exchange.
type Observer interface {
	ObserveCommand(kind Kind, status Status, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveCommand(Kind, Status, time.Duration) {}

// Kind identifies the shape of an exchange.
type Kind int

const (
	// KindTest is AT<cmd>=?
	KindTest Kind = iota
	// KindRead is AT<cmd>?
	KindRead
	// KindWrite is AT<cmd>=<params>
	KindWrite
	// KindExecute is AT<cmd>
	KindExecute
	// KindPayload is raw data sent after a prompt.
	KindPayload
	// KindWait is a wait for a notification.
	KindWait
)

func (k Kind) String() string {
	switch k {
	case KindTest:
		return "test"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindExecute:
		return "execute"
	case KindPayload:
		return "payload"
	case KindWait:
		return "wait"
	default:
		return "unknown"
	}
}

// command describes a single exchange.
type command struct {
	terminal string
	timeout  time.Duration
}

// CommandOption alters the behaviour of a single exchange.
type CommandOption func(*command)

// WithCmdTimeout overrides the default timeout for a single exchange.
func WithCmdTimeout(d time.Duration) CommandOption {
	return func(c *command) {
		c.timeout = d
	}
}

// WithTerminal overrides the line prefix that completes a single exchange.
//
// The default terminal is "OK".
func WithTerminal(marker string) CommandOption {
	return func(c *command) {
		c.terminal = marker
	}
}

// Closed returns a channel which will block while the modem is not closed.
func (a *AT) Closed() <-chan struct{} {
	return a.l.closed
}

// Timeout returns the default timeout.
func (a *AT) Timeout() time.Duration {
	return a.timeout
}

// Test issues the test form of the command, AT<cmd>=?, and returns the raw
// lines of the response.
//
// The command should NOT include the AT prefix, nor <CR><LF> suffix which is
// automatically added.
func (a *AT) Test(cmd string, options ...CommandOption) *Response {
	return a.issue(KindTest, cmd, cmd+"=?", options)
}

// Read issues the read form of the command, AT<cmd>?.
//
// Info lines prefixed with the command have that prefix removed in the
// Message.
func (a *AT) Read(cmd string, options ...CommandOption) *Response {
	return a.issue(KindRead, cmd, cmd+"?", options)
}

// Write issues the write form of the command, AT<cmd>=<params>.
//
// Info lines prefixed with the command have that prefix removed in the
// Message.
func (a *AT) Write(cmd, params string, options ...CommandOption) *Response {
	return a.issue(KindWrite, cmd, cmd+"="+params, options)
}

// Execute issues the command as is, AT<cmd>.
func (a *AT) Execute(cmd string, options ...CommandOption) *Response {
	return a.issue(KindExecute, cmd, cmd, options)
}

// Send writes raw data to the modem, typically following a prompt or
// DOWNLOAD indication, and awaits the terminal.
//
// No line delimiter is added to the data.
func (a *AT) Send(data []byte, options ...CommandOption) *Response {
	c := a.newCommand(options)
	a.drain()
	a.log.Debug("request", zap.Int("payload_len", len(data)))
	return a.exchange(KindPayload, "", data, c)
}

// WaitFor awaits a notification line beginning with the prefix.
//
// Unlike commands, nothing is drained before the wait as the notification
// may already have been received.
//
// The prefix, and any following colon and spaces, are removed from the
// notification in the Message, so the Payload of the Response is the content
// of the notification.
func (a *AT) WaitFor(prefix string, options ...CommandOption) *Response {
	c := a.newCommand(append([]CommandOption{WithTerminal(prefix)}, options...))
	a.log.Debug("wait for message", zap.String("prefix", prefix))
	start := time.Now()
	rsp := a.readUntil(c.terminal, c.timeout)
	for _, line := range rsp.Raw {
		if strings.HasPrefix(line, prefix) {
			line = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, prefix), ":"))
		}
		rsp.Message = append(rsp.Message, line)
	}
	a.complete(KindWait, rsp, start)
	return rsp
}

// ReadRaw reads exactly n bytes of raw data from the modem, such as a block
// of a file following its read indication.
//
// If the data does not arrive within the timeout then the partial data is
// returned along with ErrTimeout.
func (a *AT) ReadRaw(n int, options ...CommandOption) ([]byte, error) {
	c := a.newCommand(options)
	b, err := a.l.readFull(n, c.timeout)
	if err != nil {
		a.log.Debug("raw read failed",
			zap.Int("expected", n),
			zap.Int("received", len(b)),
			zap.Error(err))
		return b, errors.Wrapf(err, "read %d bytes", n)
	}
	return b, nil
}

func (a *AT) newCommand(options []CommandOption) command {
	c := command{terminal: "OK", timeout: a.timeout}
	for _, option := range options {
		option(&c)
	}
	return c
}

func (a *AT) issue(kind Kind, cmdID, cmdLine string, options []CommandOption) *Response {
	c := a.newCommand(options)
	a.drain()
	a.log.Debug("request", zap.String("cmd", "AT"+cmdLine))
	return a.exchange(kind, cmdID, []byte("AT"+cmdLine+"\r\n"), c)
}

func (a *AT) exchange(kind Kind, cmdID string, data []byte, c command) *Response {
	start := time.Now()
	var rsp *Response
	if err := a.l.write(data); err != nil {
		rsp = &Response{Status: StatusError, Err: err}
	} else {
		rsp = a.readUntil(c.terminal, c.timeout)
	}
	rsp.Message = messageLines(kind, cmdID, rsp.Raw)
	a.complete(kind, rsp, start)
	return rsp
}

func (a *AT) complete(kind Kind, rsp *Response, start time.Time) {
	a.obs.ObserveCommand(kind, rsp.Status, time.Since(start))
	a.log.Debug("raw response",
		zap.Stringer("kind", kind),
		zap.Stringer("status", rsp.Status),
		zap.Strings("raw", rsp.Raw))
}

// drain discards any unsolicited lines received since the last exchange.
func (a *AT) drain() {
	for _, line := range a.l.drain() {
		a.log.Debug("unsolicited message from device", zap.String("line", line))
	}
}

// messageLines extracts the lines of interest to the caller from the raw
// response.
func messageLines(kind Kind, cmdID string, raw []string) []string {
	if kind == KindTest {
		return append([]string(nil), raw...)
	}
	var msg []string
	for _, line := range raw {
		switch {
		case cmdID != "" && strings.HasPrefix(line, "AT"+cmdID):
			// echo
		case cmdID != "" && info.HasPrefix(line, cmdID):
			msg = append(msg, info.TrimPrefix(line, cmdID))
		default:
			msg = append(msg, line)
		}
	}
	return msg
}

// CMEError indicates a CME Error was returned by the modem.
//
// The value is the error value, in string form, which may be the numeric or
// textual, depending on the modem configuration.
type CMEError string

// CMSError indicates a CMS Error was returned by the modem.
//
// The value is the error value, in string form, which may be the numeric or
// textual, depending on the modem configuration.
type CMSError string

func (e CMEError) Error() string {
	return string("CME Error: " + e)
}

func (e CMSError) Error() string {
	return string("CMS Error: " + e)
}

var (
	// ErrClosed indicates an operation cannot be performed as the modem has
	// been closed.
	ErrClosed = errors.New("closed")

	// ErrError indicates the modem returned a generic AT ERROR in response to
	// an operation.
	ErrError = errors.New("ERROR")

	// ErrTimeout indicates the modem did not respond within the timeout.
	ErrTimeout = errors.New("timeout")
)

// newError parses a line and creates an error corresponding to the content.
func newError(line string) error {
	var err error
	switch {
	case strings.HasPrefix(line, "+CMS ERROR:"):
		err = CMSError(strings.TrimSpace(line[11:]))
	case strings.HasPrefix(line, "+CME ERROR:"):
		err = CMEError(strings.TrimSpace(line[11:]))
	default:
		err = ErrError
	}
	return err
}
