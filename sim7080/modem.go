// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

// Package sim7080 provides a driver for SIMCom SIM7080 cellular IoT modules.
//
// The Modem tracks the connectivity level of the module and provides
// operations that climb to the level they require before using the
// module's network, MQTT, HTTP, NTP and filesystem services.
package sim7080

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/warthog618/sim7080/at"
	"github.com/warthog618/sim7080/info"
	"github.com/warthog618/sim7080/power"
)

// Level is the connectivity level of the modem.
//
// Levels are ordered, and each level implies all the lower levels hold.
type Level int

const (
	// PoweredOff indicates the modem is not responding.
	PoweredOff Level = iota + 1
	// PoweredOn indicates the modem responds to AT commands.
	PoweredOn
	// NetworkAttached indicates the modem has an active PDP context.
	NetworkAttached
	// MQTTConnected indicates the modem has an MQTT session.
	MQTTConnected
)

func (l Level) String() string {
	switch l {
	case PoweredOff:
		return "powered off"
	case PoweredOn:
		return "powered on"
	case NetworkAttached:
		return "network attached"
	case MQTTConnected:
		return "mqtt connected"
	default:
		return "unknown"
	}
}

// Power toggles the power key of the modem.
type Power interface {
	Toggle(ctx context.Context) error
}

// Modem decorates the AT modem with SIM7080 specific functionality.
//
// A Modem is not safe for concurrent use.
type Modem struct {
	*at.AT
	log   *zap.Logger
	power Power
	level Level

	apn string

	// interval between network attach attempts
	retry time.Duration

	// timeout for slow exchanges, such as connects and notifications
	long time.Duration

	// suppress network visible side effects
	testMode bool

	// number of failed power cycles between diagnostics
	warnAfter int

	onLevel func(Level)
}

// Option is a construction option for a Modem.
type Option func(*Modem)

// New creates a new SIM7080 modem.
//
// The modem is assumed to be powered off until queried by Init or SyncStatus.
func New(a *at.AT, options ...Option) *Modem {
	m := &Modem{
		AT:        a,
		log:       zap.NewNop(),
		power:     power.Unsupported{},
		level:     PoweredOff,
		retry:     10 * time.Second,
		long:      10 * time.Second,
		warnAfter: 5,
		onLevel:   func(Level) {},
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// WithLogger specifies the logger for modem operations.
func WithLogger(l *zap.Logger) Option {
	return func(m *Modem) {
		m.log = l
	}
}

// WithPower specifies the power key control.
//
// By default the modem has no power control.
func WithPower(p Power) Option {
	return func(m *Modem) {
		m.power = p
	}
}

// WithAPN specifies the APN used when attaching to the network.
//
// By default the APN provided by the network is used.
func WithAPN(apn string) Option {
	return func(m *Modem) {
		m.apn = apn
	}
}

// WithRetryInterval sets the period between network attach attempts.
//
// The default is 10 seconds.
func WithRetryInterval(d time.Duration) Option {
	return func(m *Modem) {
		m.retry = d
	}
}

// WithLongTimeout sets the timeout for slow exchanges, such as MQTT connects
// and asynchronous notifications.
//
// The default is 10 seconds.
func WithLongTimeout(d time.Duration) Option {
	return func(m *Modem) {
		m.long = d
	}
}

// WithTestMode suppresses MQTT publishes.
func WithTestMode(enabled bool) Option {
	return func(m *Modem) {
		m.testMode = enabled
	}
}

// WithPowerWarnAfter sets the number of failed power cycles after which
// EnsurePower logs an error, and repeats it every that many cycles.
//
// The default is 5.
func WithPowerWarnAfter(n int) Option {
	return func(m *Modem) {
		if n > 0 {
			m.warnAfter = n
		}
	}
}

// WithLevelObserver specifies a function called whenever the level changes.
func WithLevelObserver(f func(Level)) Option {
	return func(m *Modem) {
		m.onLevel = f
	}
}

// Init queries the modem and, if it is powered on, enables textual errors.
func (m *Modem) Init() error {
	if m.SyncStatus() == PoweredOff {
		return nil
	}
	return rspError(m.Write("+CMEE", "2"), "enable textual errors")
}

// Level returns the level as of the last query or transition.
func (m *Modem) Level() Level {
	return m.level
}

// TestMode returns true if publishes are suppressed.
func (m *Modem) TestMode() bool {
	return m.testMode
}

func (m *Modem) setLevel(l Level) {
	if l == m.level {
		return
	}
	m.log.Debug("level changed",
		zap.Stringer("from", m.level),
		zap.Stringer("to", l))
	m.level = l
	m.onLevel(l)
}

// raise sets the level if it is higher than the current level.
func (m *Modem) raise(l Level) {
	if l > m.level {
		m.setLevel(l)
	}
}

// lower sets the level if it is lower than the current level.
func (m *Modem) lower(l Level) {
	if l < m.level {
		m.setLevel(l)
	}
}

// SyncStatus queries the modem and sets the level to the highest level that
// holds.
func (m *Modem) SyncStatus() Level {
	switch {
	case !m.isPoweredOn():
		m.setLevel(PoweredOff)
	case !m.isNetworkAttached():
		m.setLevel(PoweredOn)
	case !m.isMQTTConnected():
		m.setLevel(NetworkAttached)
	default:
		m.setLevel(MQTTConnected)
	}
	return m.level
}

func (m *Modem) isPoweredOn() bool {
	return m.Execute("E0").IsSuccess()
}

func (m *Modem) isNetworkAttached() bool {
	ip, err := m.ipAddr()
	return err == nil && ip != "" && ip != "0.0.0.0"
}

func (m *Modem) isMQTTConnected() bool {
	rsp := m.Read("+SMSTATE")
	return rsp.IsSuccess() && rsp.Line(0) == "1"
}

// ipAddr returns the address of the first PDP context.
func (m *Modem) ipAddr() (string, error) {
	rsp := m.Read("+CNACT")
	if rsp.IsError() {
		return "", rspError(rsp, "read pdp context")
	}
	f := info.Fields(rsp.Line(0))
	if len(f) < 3 {
		return "", errors.Wrapf(ErrMalformedResponse, "pdp context %q", rsp.Line(0))
	}
	return f[2], nil
}

// EnsurePower toggles the power key until the modem responds.
//
// There is no limit to the number of power cycles as the modem boot time is
// unpredictable, but an error is logged every few cycles. EnsurePower
// returns ErrPowerControlUnsupported if the modem is not responding and
// there is no power control, and the context error if the context is
// cancelled.
func (m *Modem) EnsurePower(ctx context.Context) error {
	if m.level > PoweredOff {
		return nil
	}
	m.log.Info("modem is powered off")
	for cycle := 1; ; cycle++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.log.Info("trying to power on", zap.Int("cycle", cycle))
		err := m.power.Toggle(ctx)
		switch {
		case err == nil:
		case errors.Is(err, power.ErrUnsupported):
			if m.isPoweredOn() {
				m.raise(PoweredOn)
				return nil
			}
			m.log.Error("modem not responding and power control unsupported")
			return ErrPowerControlUnsupported
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			m.log.Warn("power toggle failed", zap.Error(err))
		}
		if m.isPoweredOn() {
			m.raise(PoweredOn)
			m.log.Info("modem is ready")
			return nil
		}
		if cycle%m.warnAfter == 0 {
			m.log.Error("modem not responding after power cycles, check power key wiring",
				zap.Int("cycles", cycle))
		}
	}
}

// EnsureNetwork blocks until the modem is attached to the network.
//
// Failed attach attempts are retried indefinitely, after the retry interval.
// EnsureNetwork only returns an error if EnsurePower does or the context is
// cancelled.
func (m *Modem) EnsureNetwork(ctx context.Context) error {
	m.SyncStatus()
	for {
		if m.level >= NetworkAttached {
			m.log.Info("modem is attached to network")
			return nil
		}
		m.log.Info("modem has no network connection")
		if err := m.EnsurePower(ctx); err != nil {
			return err
		}
		err := m.AttachNetwork(ctx, m.apn)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if m.SyncStatus() >= NetworkAttached {
			continue
		}
		m.log.Info("trying again", zap.Duration("after", m.retry))
		if err := sleep(ctx, m.retry); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
