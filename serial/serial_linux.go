// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

//go:build linux

package serial

import "time"

// The SIM7080 HATs are wired to the Pi's primary UART.
var defaultConfig = Config{
	port: "/dev/ttyS0",
	baud: 115200,
	poll: 100 * time.Millisecond,
}
