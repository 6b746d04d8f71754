// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package power_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warthog618/sim7080/power"
)

type fakePin struct {
	mu     sync.Mutex
	levels []int
	err    error
	closed bool
}

func (p *fakePin) set(v int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.levels = append(p.levels, v)
	return nil
}

func (p *fakePin) SetHigh() error {
	return p.set(1)
}

func (p *fakePin) SetLow() error {
	return p.set(0)
}

func (p *fakePin) Close() error {
	p.closed = true
	return nil
}

func (p *fakePin) Levels() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.levels...)
}

func TestToggle(t *testing.T) {
	pin := &fakePin{}
	k := power.NewKey(pin,
		power.WithLogger(zaptest.NewLogger(t)),
		power.WithTimings(time.Millisecond, 5*time.Millisecond, 10*time.Millisecond))
	start := time.Now()
	err := k.Toggle(context.Background())
	require.Nil(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 16*time.Millisecond)
	assert.Equal(t, []int{0, 1, 0}, pin.Levels())
	require.Nil(t, k.Close())
	assert.True(t, pin.closed)
}

func TestToggleCancelled(t *testing.T) {
	pin := &fakePin{}
	k := power.NewKey(pin, power.WithTimings(time.Millisecond, time.Hour, time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := k.Toggle(ctx)
	assert.Equal(t, context.DeadlineExceeded, err)
	// line is always returned low
	assert.Equal(t, []int{0, 1, 0}, pin.Levels())
}

func TestTogglePinError(t *testing.T) {
	pinErr := errors.New("line busy")
	pin := &fakePin{err: pinErr}
	k := power.NewKey(pin, power.WithTimings(0, 0, 0))
	err := k.Toggle(context.Background())
	assert.Equal(t, pinErr, errors.Cause(err))
}

func TestUnsupported(t *testing.T) {
	var c power.Control = power.Unsupported{}
	err := c.Toggle(context.Background())
	assert.True(t, errors.Is(err, power.ErrUnsupported))
	assert.Nil(t, c.Close())
}

func TestOpen(t *testing.T) {
	patterns := []struct {
		name        string
		driver      string
		unsupported bool
		err         bool
	}{
		{"none", "none", true, false},
		{"empty", "", true, false},
		{"missing chip", "gpiocdev", true, false},
		{"unknown", "bogus", false, true},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			c, err := power.Open(p.driver, "gpiochip-bogus", 4,
				power.WithLogger(zaptest.NewLogger(t)))
			if p.err {
				assert.NotNil(t, err)
				assert.Nil(t, c)
				return
			}
			require.Nil(t, err)
			_, ok := c.(power.Unsupported)
			assert.Equal(t, p.unsupported, ok)
		}
		t.Run(p.name, f)
	}
}
