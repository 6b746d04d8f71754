// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package main

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/warthog618/sim7080/sim7080"
)

func TestDownloadName(t *testing.T) {
	patterns := []struct {
		name   string
		url    string
		file   string
		hasErr bool
	}{
		{"file", "http://example.com/fw/update.bin", "update.bin", false},
		{"query", "https://example.com/a/b.txt?x=1", "b.txt", false},
		{"root", "http://example.com/", "", true},
		{"no path", "http://example.com", "", true},
		{"malformed", "http://[::1", "", true},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			name, err := downloadName(p.url)
			assert.Equal(t, p.file, name)
			if p.hasErr {
				assert.NotNil(t, err)
			} else {
				assert.Nil(t, err)
			}
		}
		t.Run(p.name, f)
	}
}

type fakeStatusSource struct {
	level  sim7080.Level
	signal sim7080.Signal
	err    error
}

func (s fakeStatusSource) Level() sim7080.Level {
	return s.level
}

func (s fakeStatusSource) SignalQuality() (sim7080.Signal, error) {
	return s.signal, s.err
}

func TestNewStatus(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	src := fakeStatusSource{level: sim7080.MQTTConnected, signal: sim7080.Signal{RSSI: 20, BER: 0}}
	st := newStatus(src, "unit-7", "hello", now)
	assert.Equal(t, "unit-7", st.DeviceID)
	assert.Equal(t, "mqtt connected", st.Level)
	assert.Equal(t, "hello", st.Message)
	assert.Equal(t, now, st.Time)
	if assert.NotNil(t, st.Signal) {
		assert.Equal(t, 20, st.Signal.RSSI)
	}
	if assert.NotNil(t, st.SignalDBm) {
		assert.Equal(t, -73, *st.SignalDBm)
	}

	src = fakeStatusSource{level: sim7080.MQTTConnected, signal: sim7080.Signal{RSSI: 99, BER: 99}}
	st = newStatus(src, "unit-7", "", now)
	assert.NotNil(t, st.Signal)
	assert.Nil(t, st.SignalDBm)

	src = fakeStatusSource{level: sim7080.NetworkAttached, err: errors.New("no signal")}
	st = newStatus(src, "unit-7", "", now)
	assert.Equal(t, "network attached", st.Level)
	assert.Nil(t, st.Signal)
	assert.Nil(t, st.SignalDBm)
}
