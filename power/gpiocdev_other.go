// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

//go:build !linux

package power

// OpenGPIOCDev always fails as the GPIO character device is Linux only.
func OpenGPIOCDev(chip string, offset int) (Pin, error) {
	return nil, ErrUnsupported
}
