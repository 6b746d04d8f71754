// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/warthog618/sim7080/metrics"
	"github.com/warthog618/sim7080/queue"
	"github.com/warthog618/sim7080/sim7080"
)

// serve drains the outbound queue to the MQTT broker until terminated.
func serve(ctx context.Context, a *app, args []string) error {
	q, err := queue.Open(a.cfg.Queue.Queue())
	if err != nil {
		return err
	}
	defer q.Close()

	var srv *http.Server
	if addr := a.cfg.Metrics.Addr; addr != "" {
		srv = &http.Server{
			Addr:         addr,
			Handler:      a.router(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			a.log.Info("listening", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("listener failed", zap.Error(err))
			}
		}()
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("service manager notify failed", zap.Error(err))
	} else if ok {
		a.log.Debug("notified service manager")
	}

	session := a.cfg.MQTT.Session()
	d := &drainer{
		q:        q,
		pub:      a.modem,
		topic:    a.cfg.MQTT.Topic,
		idle:     a.cfg.Queue.Idle,
		retryMin: 10 * time.Second,
		retryMax: 5 * time.Minute,
		log:      a.log.Named("drain"),
		metrics:  a.metrics,
		testMode: a.testMode,
	}
	err = d.run(ctx, func(ctx context.Context) error {
		return a.modem.ConnectMQTT(ctx, session)
	})

	daemon.SdNotify(false, daemon.SdNotifyStopping)
	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := srv.Shutdown(sctx); serr != nil {
			a.log.Warn("listener shutdown failed", zap.Error(serr))
		}
	}
	return err
}

// router serves the health and metrics endpoints.
func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		l := a.Level()
		status := "ok"
		code := http.StatusOK
		if l <= sim7080.PoweredOff {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{
			"status": status,
			"level":  l.String(),
		})
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	return r
}

type publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// drainer publishes payloads from the queue, oldest first.
type drainer struct {
	q     queue.Queue
	pub   publisher
	topic string

	// period between polls of an empty queue
	idle time.Duration

	// bounds of the backoff after a failed connect or drain
	retryMin time.Duration
	retryMax time.Duration

	log      *zap.Logger
	metrics  *metrics.Metrics
	testMode bool
}

// run connects and drains the queue until the context is cancelled.
//
// Failures are retried with exponential backoff, except for the modem being
// unreachable without power control, which is returned.
func (d *drainer) run(ctx context.Context, connect func(context.Context) error) error {
	b := backoff.Backoff{
		Min: d.retryMin,
		Max: d.retryMax,
	}
	for {
		err := connect(ctx)
		if err == nil {
			_, err = d.drain(ctx)
		}
		if ctx.Err() != nil {
			return nil
		}
		var wait time.Duration
		switch {
		case err == nil:
			b.Reset()
			wait = d.idle
		case errors.Is(err, sim7080.ErrPowerControlUnsupported):
			return err
		default:
			wait = b.Duration()
			d.log.Warn("drain failed", zap.Error(err), zap.Duration("retry_after", wait))
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// drain publishes payloads until the queue is empty, returning the number
// published.
//
// A payload that fails to publish is returned to the queue, ahead of any
// queued since.
func (d *drainer) drain(ctx context.Context) (int, error) {
	sent := 0
	for {
		n, err := d.q.Len(ctx)
		if err != nil {
			return sent, err
		}
		d.metrics.ObserveQueueDepth(n)
		if n == 0 {
			return sent, nil
		}
		payload, ok, err := d.q.PopOldest(ctx)
		if err != nil {
			return sent, err
		}
		if !ok {
			return sent, nil
		}
		err = d.pub.Publish(ctx, d.topic, payload)
		d.metrics.ObservePublish(err, d.testMode)
		if err != nil {
			if perr := d.q.Requeue(context.WithoutCancel(ctx), payload); perr != nil {
				d.log.Error("payload lost", zap.Error(perr), zap.ByteString("payload", payload))
			}
			return sent, err
		}
		sent++
		d.log.Debug("published", zap.Int("size", len(payload)), zap.Int64("queued", n-1))
	}
}
