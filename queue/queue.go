// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

// Package queue provides the outbound message queue that supplies payloads
// to be published by the modem.
//
// Producers push payloads onto the head of the queue and the modem drains
// the oldest payloads from the tail.
package queue

import (
	"context"

	"github.com/pkg/errors"
)

// Queue is a named FIFO of payloads.
type Queue interface {
	// Len returns the number of payloads in the queue.
	Len(ctx context.Context) (int64, error)

	// PopOldest removes and returns the oldest payload, and false if the
	// queue is empty.
	PopOldest(ctx context.Context) ([]byte, bool, error)

	// Push adds a payload to the queue.
	Push(ctx context.Context, payload []byte) error

	// Requeue returns a popped payload to the queue so it is the next to
	// be popped.
	Requeue(ctx context.Context, payload []byte) error

	Close() error
}

// Config selects and configures a queue backend.
type Config struct {
	// Driver is "redis" or "sqlite".
	Driver string

	// Name of the queue.
	Name string

	RedisAddr  string
	SQLitePath string
}

// Open opens the queue described by the config.
func Open(cfg Config) (Queue, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg.RedisAddr, cfg.Name), nil
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath, cfg.Name)
	default:
		return nil, errors.Errorf("unknown queue driver %q", cfg.Driver)
	}
}
