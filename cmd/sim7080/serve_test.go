// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warthog618/sim7080/metrics"
	"github.com/warthog618/sim7080/queue"
	"github.com/warthog618/sim7080/sim7080"
)

type fakePublisher struct {
	mu       sync.Mutex
	payloads []string
	// fail the publish with the given index
	failAt int
	calls  int
	// called after each successful publish
	onPublish func(n int)
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls == p.failAt {
		return sim7080.ErrPublishFailed
	}
	p.payloads = append(p.payloads, string(payload))
	if p.onPublish != nil {
		p.onPublish(len(p.payloads))
	}
	return nil
}

func (p *fakePublisher) Payloads() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.payloads...)
}

func newDrainer(t *testing.T, pub publisher) (*drainer, queue.Queue, *prometheus.Registry) {
	t.Helper()
	q, err := queue.OpenSQLite(filepath.Join(t.TempDir(), "queue.db"), "events")
	require.Nil(t, err)
	t.Cleanup(func() { q.Close() })
	reg := prometheus.NewRegistry()
	met, err := metrics.New(reg)
	require.Nil(t, err)
	d := &drainer{
		q:        q,
		pub:      pub,
		topic:    "events",
		idle:     time.Millisecond,
		retryMin: time.Millisecond,
		retryMax: 5 * time.Millisecond,
		log:      zaptest.NewLogger(t),
		metrics:  met,
	}
	return d, q, reg
}

func push(t *testing.T, q queue.Queue, payloads ...string) {
	t.Helper()
	for _, p := range payloads {
		require.Nil(t, q.Push(context.Background(), []byte(p)))
	}
}

func TestDrain(t *testing.T) {
	pub := &fakePublisher{}
	d, q, reg := newDrainer(t, pub)
	push(t, q, "one", "two", "three")

	n, err := d.drain(context.Background())
	require.Nil(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"one", "two", "three"}, pub.Payloads())

	l, err := q.Len(context.Background())
	require.Nil(t, err)
	assert.Equal(t, int64(0), l)

	expected := `
# HELP sim7080_mqtt_publish_total Total MQTT publishes by result
# TYPE sim7080_mqtt_publish_total counter
sim7080_mqtt_publish_total{result="success"} 3
# HELP sim7080_queue_depth Payloads waiting in the outbound queue
# TYPE sim7080_queue_depth gauge
sim7080_queue_depth 0
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"sim7080_mqtt_publish_total", "sim7080_queue_depth")
	assert.Nil(t, err)
}

func TestDrainEmpty(t *testing.T) {
	pub := &fakePublisher{}
	d, _, _ := newDrainer(t, pub)
	n, err := d.drain(context.Background())
	require.Nil(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, pub.Payloads())
}

func TestDrainPublishFails(t *testing.T) {
	pub := &fakePublisher{failAt: 2}
	d, q, _ := newDrainer(t, pub)
	push(t, q, "one", "two", "three")

	n, err := d.drain(context.Background())
	assert.True(t, errors.Is(err, sim7080.ErrPublishFailed))
	assert.Equal(t, 1, n)

	// the failed payload is requeued
	l, err := q.Len(context.Background())
	require.Nil(t, err)
	assert.Equal(t, int64(2), l)

	// queued after the failure
	push(t, q, "four")

	n, err = d.drain(context.Background())
	require.Nil(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"one", "two", "three", "four"}, pub.Payloads())
}

func TestRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pub := &fakePublisher{onPublish: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	d, q, _ := newDrainer(t, pub)
	push(t, q, "one", "two")

	connects := 0
	connect := func(context.Context) error {
		connects++
		if connects < 3 {
			return sim7080.ErrMQTTConnectFailed
		}
		return nil
	}
	done := make(chan error, 1)
	go func() {
		done <- d.run(ctx, connect)
	}()
	select {
	case err := <-done:
		assert.Nil(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}
	assert.Equal(t, 3, connects)
	assert.Equal(t, []string{"one", "two"}, pub.Payloads())
}

func TestRunPowerUnsupported(t *testing.T) {
	pub := &fakePublisher{}
	d, _, _ := newDrainer(t, pub)
	connect := func(context.Context) error {
		return sim7080.ErrPowerControlUnsupported
	}
	err := d.run(context.Background(), connect)
	assert.Equal(t, sim7080.ErrPowerControlUnsupported, err)
}

func TestRunCancelled(t *testing.T) {
	pub := &fakePublisher{}
	d, _, _ := newDrainer(t, pub)
	d.idle = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.run(ctx, func(context.Context) error { return nil })
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.Nil(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}
}

func TestRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	met, err := metrics.New(reg)
	require.Nil(t, err)
	a := &app{metrics: met, registry: reg}
	a.observeLevel(sim7080.PoweredOff)
	h := a.router()

	patterns := []struct {
		name   string
		level  sim7080.Level
		code   int
		status string
	}{
		{"powered off", sim7080.PoweredOff, http.StatusServiceUnavailable, "degraded"},
		{"powered on", sim7080.PoweredOn, http.StatusOK, "ok"},
		{"connected", sim7080.MQTTConnected, http.StatusOK, "ok"},
	}
	for _, p := range patterns {
		f := func(t *testing.T) {
			a.observeLevel(p.level)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, p.code, rec.Code)
			var body map[string]string
			require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, p.status, body["status"])
			assert.Equal(t, p.level.String(), body["level"])
		}
		t.Run(p.name, f)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sim7080_modem_level 4")
}
