// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package main

import (
	"time"

	"github.com/warthog618/sim7080/sim7080"
)

// Status is the status document published by send_status.
type Status struct {
	DeviceID string          `json:"device_id"`
	Level    string          `json:"level"`
	Signal   *sim7080.Signal `json:"signal,omitempty"`
	// SignalDBm is omitted if the RSSI is unknown.
	SignalDBm *int      `json:"signal_dbm,omitempty"`
	Message   string    `json:"message,omitempty"`
	Time      time.Time `json:"time"`
}

type statusSource interface {
	Level() sim7080.Level
	SignalQuality() (sim7080.Signal, error)
}

// newStatus builds the status document from the current state of the modem.
//
// A failure to read the signal quality only omits the signal from the
// document.
func newStatus(src statusSource, deviceID, msg string, now time.Time) Status {
	st := Status{
		DeviceID: deviceID,
		Level:    src.Level().String(),
		Message:  msg,
		Time:     now.UTC(),
	}
	if sig, err := src.SignalQuality(); err == nil {
		st.Signal = &sig
		if dbm, ok := sig.DBm(); ok {
			st.SignalDBm = &dbm
		}
	}
	return st
}
