// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package at

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// Status is the outcome of an exchange with the modem.
type Status int

const (
	// StatusOK indicates the terminal marker was received.
	StatusOK Status = iota + 1

	// StatusError indicates the modem returned an error line, or the link to
	// the modem failed.
	StatusError

	// StatusTimeout indicates no line was received within the timeout.
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	case StatusTimeout:
		return "TIMEOUT"
	default:
		return "unknown"
	}
}

// Response is the result of one command or wait.
//
// Raw contains every non-empty line received, in order, including the line
// that terminated the exchange.
//
// Message contains the received lines with the command or notification
// prefix removed. Echoed command lines are not included, except for test
// commands which return the raw lines verbatim. Other lines, including the
// OK or ERROR result code, pass through unchanged.
type Response struct {
	Status  Status
	Err     error
	Raw     []string
	Message []string
}

// IsSuccess returns true if the terminal marker was received.
func (r *Response) IsSuccess() bool {
	return r.Status == StatusOK
}

// IsError returns true if the exchange did not complete successfully,
// including timeouts.
func (r *Response) IsError() bool {
	return !r.IsSuccess()
}

// Line returns the nth message line, or an empty string if there is no such
// line.
func (r *Response) Line(n int) string {
	if n < 0 || n >= len(r.Message) {
		return ""
	}
	return r.Message[n]
}

// Lines returns the message lines without the bare OK and ERROR result
// codes.
func (r *Response) Lines() []string {
	var lines []string
	for _, l := range r.Message {
		if l == "OK" || l == "ERROR" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

// Payload returns the last message line, which for a wait is the payload of
// the awaited notification.
func (r *Response) Payload() string {
	return r.Line(len(r.Message) - 1)
}

func (r *Response) String() string {
	return "message: [" + strings.Join(r.Message, ", ") + "] - status: " + r.Status.String()
}

// Received line types.
type rxl int

const (
	rxlInfo rxl = iota
	rxlTerminal
	rxlStatusError
)

// parseRxLine identifies the line type relative to the expected terminal
// marker.
//
// Extended errors take precedence over the terminal so a wait for an
// arbitrary prefix still fails on +CME ERROR.
func parseRxLine(line, terminal string) rxl {
	switch {
	case strings.HasPrefix(line, "+CME ERROR:"),
		strings.HasPrefix(line, "+CMS ERROR:"):
		return rxlStatusError
	case strings.HasPrefix(line, terminal):
		return rxlTerminal
	case strings.HasPrefix(line, "ERROR"):
		return rxlStatusError
	default:
		return rxlInfo
	}
}

// readUntil reads lines from the modem until a line begins with the terminal
// marker, an error line is received, or no line arrives within the timeout.
//
// Blank lines are discarded.
func (a *AT) readUntil(terminal string, timeout time.Duration) *Response {
	rsp := &Response{}
	for {
		line, err := a.l.readLine(timeout)
		if err != nil {
			if err == ErrTimeout {
				a.log.Debug("TIMEOUT!", zap.Duration("timeout", timeout))
				rsp.Status = StatusTimeout
			} else {
				rsp.Status = StatusError
			}
			rsp.Err = err
			return rsp
		}
		if line == "" {
			continue
		}
		rsp.Raw = append(rsp.Raw, line)
		switch parseRxLine(line, terminal) {
		case rxlTerminal:
			rsp.Status = StatusOK
			return rsp
		case rxlStatusError:
			rsp.Status = StatusError
			rsp.Err = newError(line)
			return rsp
		}
	}
}
