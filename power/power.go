// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

// Package power toggles the power key of the modem.
//
// The SIM7080 is switched on, or off, by pulsing its PWRKEY line, which on
// the HATs is driven by a GPIO on the host.
package power

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Pin is an output line driving the power key.
type Pin interface {
	SetHigh() error
	SetLow() error
	Close() error
}

// ErrUnsupported indicates the host has no means to control modem power.
var ErrUnsupported = errors.New("power control unsupported")

// Key pulses the power key via a Pin.
type Key struct {
	pin Pin
	log *zap.Logger

	// time the line is held low before the pulse
	pre time.Duration
	// width of the pulse
	pulse time.Duration
	// time allowed for the modem to react to the pulse
	settle time.Duration
}

// KeyOption modifies a Key created by NewKey.
type KeyOption func(*Key)

// NewKey creates a Key that drives the pin.
func NewKey(pin Pin, options ...KeyOption) *Key {
	k := &Key{
		pin:    pin,
		log:    zap.NewNop(),
		pre:    100 * time.Millisecond,
		pulse:  time.Second,
		settle: 5 * time.Second,
	}
	for _, option := range options {
		option(k)
	}
	return k
}

// WithLogger specifies the logger for power key events.
func WithLogger(l *zap.Logger) KeyOption {
	return func(k *Key) {
		k.log = l
	}
}

// WithTimings overrides the pulse timings.
//
// The defaults are 100ms low, a 1s pulse, then 5s to settle.
func WithTimings(pre, pulse, settle time.Duration) KeyOption {
	return func(k *Key) {
		k.pre = pre
		k.pulse = pulse
		k.settle = settle
	}
}

// Toggle pulses the power key, which turns the modem on if it is off, and off
// if it is on.
//
// Toggle returns once the settle period has elapsed, or immediately if the
// context is cancelled, in which case the line is returned low.
func (k *Key) Toggle(ctx context.Context) error {
	k.log.Info("toggling power key")
	if err := k.pin.SetLow(); err != nil {
		return errors.Wrap(err, "set power key low")
	}
	if err := sleep(ctx, k.pre); err != nil {
		return err
	}
	if err := k.pin.SetHigh(); err != nil {
		return errors.Wrap(err, "set power key high")
	}
	err := sleep(ctx, k.pulse)
	if lerr := k.pin.SetLow(); lerr != nil {
		return errors.Wrap(lerr, "set power key low")
	}
	if err != nil {
		return err
	}
	return sleep(ctx, k.settle)
}

// Close releases the pin.
func (k *Key) Close() error {
	return k.pin.Close()
}

// Unsupported is the power control for hosts without a power key.
type Unsupported struct{}

// Toggle always returns ErrUnsupported.
func (Unsupported) Toggle(context.Context) error {
	return ErrUnsupported
}

// Close is a nop.
func (Unsupported) Close() error {
	return nil
}

// Control is a power key control.
type Control interface {
	Toggle(ctx context.Context) error
	Close() error
}

// Open returns the power control for the named driver.
//
// The drivers are "gpiocdev", "rpio" and "none". If the pin cannot be opened
// then the error is logged and an Unsupported control returned, so a host
// without GPIO access degrades to running without power control.
func Open(driver, chip string, offset int, options ...KeyOption) (Control, error) {
	var pin Pin
	var err error
	switch driver {
	case "none", "":
		return Unsupported{}, nil
	case "gpiocdev":
		pin, err = OpenGPIOCDev(chip, offset)
	case "rpio":
		pin, err = OpenRPIO(offset)
	default:
		return nil, errors.Errorf("unknown power driver %q", driver)
	}
	k := NewKey(nil, options...)
	if err != nil {
		k.log.Error("power control unavailable",
			zap.String("driver", driver),
			zap.Error(err))
		return Unsupported{}, nil
	}
	k.pin = pin
	return k, nil
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
