// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

//go:build !linux

package main

import (
	"time"

	"github.com/pkg/errors"
)

func setClock(t time.Time) error {
	return errors.New("setting the clock is only supported on Linux")
}
