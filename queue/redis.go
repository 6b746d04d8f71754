// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package queue

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Redis is a queue held in a Redis list.
//
// Producers LPUSH onto the list and the oldest payload is taken with RPOP.
type Redis struct {
	c    *redis.Client
	name string
}

// NewRedis creates a queue on the named list of the Redis server.
//
// The connection is established lazily.
func NewRedis(addr, name string) *Redis {
	return &Redis{
		c:    redis.NewClient(&redis.Options{Addr: addr}),
		name: name,
	}
}

// Len returns the length of the list.
func (r *Redis) Len(ctx context.Context) (int64, error) {
	n, err := r.c.LLen(ctx, r.name).Result()
	return n, errors.Wrap(err, "llen")
}

// PopOldest pops the tail of the list.
func (r *Redis) PopOldest(ctx context.Context) ([]byte, bool, error) {
	b, err := r.c.RPop(ctx, r.name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "rpop")
	}
	return b, true, nil
}

// Push pushes the payload onto the head of the list.
func (r *Redis) Push(ctx context.Context, payload []byte) error {
	return errors.Wrap(r.c.LPush(ctx, r.name, payload).Err(), "lpush")
}

// Requeue returns a payload to the oldest end of the list.
func (r *Redis) Requeue(ctx context.Context, payload []byte) error {
	return errors.Wrap(r.c.RPush(ctx, r.name, payload).Err(), "rpush")
}

// Close closes the connection to the server.
func (r *Redis) Close() error {
	return r.c.Close()
}
