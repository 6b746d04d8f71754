// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

//go:build linux

package main

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// setClock sets the host clock, which requires CAP_SYS_TIME.
func setClock(t time.Time) error {
	tv := unix.NsecToTimeval(t.UnixNano())
	return errors.Wrap(unix.Settimeofday(&tv), "set clock")
}
