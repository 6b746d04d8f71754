// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package power

import (
	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPIO is a Pin driven through the Raspberry Pi GPIO registers.
//
// This is for older kernels that lack the GPIO character device.
type RPIO struct {
	pin rpio.Pin
}

// OpenRPIO maps the GPIO registers and sets the BCM pin as an output.
func OpenRPIO(bcm int) (*RPIO, error) {
	if err := rpio.Open(); err != nil {
		return nil, errors.Wrap(err, "open rpio")
	}
	pin := rpio.Pin(bcm)
	pin.Output()
	pin.Low()
	return &RPIO{pin: pin}, nil
}

// SetHigh drives the pin high.
func (p *RPIO) SetHigh() error {
	p.pin.High()
	return nil
}

// SetLow drives the pin low.
func (p *RPIO) SetLow() error {
	p.pin.Low()
	return nil
}

// Close unmaps the GPIO registers.
func (p *RPIO) Close() error {
	return rpio.Close()
}
