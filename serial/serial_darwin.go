// SPDX-License-Identifier: MIT
//
// Copyright © 2020 Kent Gibson <warthog618@gmail.com>.

//go:build darwin

package serial

import "time"

var defaultConfig = Config{
	port: "/dev/tty.usbserial",
	baud: 115200,
	poll: 100 * time.Millisecond,
}
