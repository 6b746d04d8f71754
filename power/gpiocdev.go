// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

//go:build linux

package power

import (
	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

// GPIOCDev is a Pin on a GPIO character device line.
type GPIOCDev struct {
	line *gpiocdev.Line
}

// OpenGPIOCDev requests the line as an output, initially low.
func OpenGPIOCDev(chip string, offset int) (*GPIOCDev, error) {
	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("sim7080-pwrkey"),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "request %s line %d", chip, offset)
	}
	return &GPIOCDev{line: line}, nil
}

// SetHigh drives the line high.
func (p *GPIOCDev) SetHigh() error {
	return p.line.SetValue(1)
}

// SetLow drives the line low.
func (p *GPIOCDev) SetLow() error {
	return p.line.SetValue(0)
}

// Close releases the line.
func (p *GPIOCDev) Close() error {
	return p.line.Close()
}
