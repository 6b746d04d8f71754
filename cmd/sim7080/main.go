// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

// sim7080 drives a SIM7080 module attached to the host to publish messages
// via MQTT, transfer files and fetch the time.
//
// Unless told to keep it on, the modem is powered down after each command,
// including after a failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warthog618/sim7080/at"
	"github.com/warthog618/sim7080/metrics"
	"github.com/warthog618/sim7080/power"
	"github.com/warthog618/sim7080/serial"
	"github.com/warthog618/sim7080/sim7080"
	"github.com/warthog618/sim7080/trace"
)

var version = "undefined"

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"write_file":    {"<files...>", writeFiles},
	"delete_file":   {"<files...>", deleteFiles},
	"download_file": {"[-dir d] <urls...>", downloadFiles},
	"send_msg":      {"-message m", sendMessage},
	"send_status":   {"[-message m]", sendStatus},
	"sync_time":     {"", syncTime},
	"serve":         {"", serve},
	"info":          {"", modemInfo},
	"network_info":  {"", networkInfo},
	"ping":          {"<host>", ping},
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		out := fs.Output()
		fmt.Fprintf(out, "usage: %s [options] <command> [args]\n\noptions:\n", fs.Name())
		fs.PrintDefaults()
		fmt.Fprintf(out, "\ncommands:\n")
		names := make([]string, 0, len(commands))
		for name := range commands {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "  %s %s\n", name, commands[name].usage)
		}
	}
}

func run(args []string) int {
	fs := flag.NewFlagSet("sim7080", flag.ContinueOnError)
	fs.Usage = usage(fs)
	cfgPath := fs.String("config", "conf/settings.yaml", "path to the settings file")
	var verbose, testMode, keepOn bool
	fs.BoolVar(&verbose, "v", false, "log modem interactions")
	fs.BoolVar(&verbose, "verbose", false, "log modem interactions")
	fs.BoolVar(&testMode, "t", false, "suppress MQTT publishes and host clock changes")
	fs.BoolVar(&testMode, "test", false, "suppress MQTT publishes and host clock changes")
	fs.BoolVar(&keepOn, "o", false, "leave the modem powered on")
	fs.BoolVar(&keepOn, "keep_on", false, "leave the modem powered on")
	fs.String("port", "", "path to modem device")
	fs.Int("baud", 0, "baud rate")
	fs.String("apn", "", "access point name")
	fs.String("log-level", "", "log level")
	vsn := fs.Bool("version", false, "report version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *vsn {
		fmt.Printf("%s %s\n", os.Args[0], version)
		return 0
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return 2
	}
	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", name)
		fs.Usage()
		return 2
	}
	cfgRequired := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			cfgRequired = true
		}
	})
	cfg, err := LoadConfig(WithDefaults(), WithFile(*cfgPath, cfgRequired), WithEnv(), WithFlags(fs))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log, err := newLogger(cfg.Log.Level, verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer log.Sync()

	reg := prometheus.NewRegistry()
	met, err := metrics.New(reg)
	if err != nil {
		log.Error("metrics unavailable", zap.Error(err))
		return 1
	}
	a := &app{
		cfg:      cfg,
		log:      log,
		metrics:  met,
		registry: reg,
		testMode: testMode,
		out:      os.Stdout,
	}
	if err := a.open(verbose); err != nil {
		log.Error("open modem failed", zap.Error(err))
		a.close()
		return 1
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.runCommand(ctx, name, cmd, fs.Args()[1:], keepOn)
}

func newLogger(level string, verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// app is the state shared by the commands.
type app struct {
	cfg      *Config
	log      *zap.Logger
	modem    *sim7080.Modem
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	testMode bool
	out      io.Writer

	// level mirrors the modem level for readers outside the command
	// goroutine.
	level atomic.Int32

	closers []io.Closer
}

// open opens the serial port and power control and queries the modem.
func (a *app) open(verbose bool) error {
	cfg := a.cfg
	p, err := serial.New(serial.WithPort(cfg.Serial.Port), serial.WithBaud(cfg.Serial.Baud))
	if err != nil {
		return err
	}
	a.closers = append(a.closers, p)
	var mio io.ReadWriter = p
	if verbose && cfg.Serial.Trace {
		mio = trace.New(p, trace.WithLogger(a.log.Named("serial")))
	}
	pc, err := power.Open(cfg.Power.Driver, cfg.Power.Chip, cfg.Power.Pin,
		power.WithLogger(a.log.Named("power")))
	if err != nil {
		return err
	}
	a.closers = append(a.closers, pc)
	am := at.New(mio,
		at.WithTimeout(cfg.Serial.Timeout),
		at.WithLogger(a.log.Named("at")),
		at.WithObserver(a.metrics))
	a.modem = sim7080.New(am,
		sim7080.WithLogger(a.log.Named("modem")),
		sim7080.WithPower(pc),
		sim7080.WithAPN(cfg.Network.APN),
		sim7080.WithTestMode(a.testMode),
		sim7080.WithLevelObserver(a.observeLevel))
	a.observeLevel(a.modem.Level())
	return a.modem.Init()
}

func (a *app) observeLevel(l sim7080.Level) {
	a.metrics.ObserveLevel(l)
	a.level.Store(int32(l))
}

// Level returns the modem level as last observed.
func (a *app) Level() sim7080.Level {
	return sim7080.Level(a.level.Load())
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

// runCommand runs the command then, unless keepOn, powers down the modem,
// whether the command succeeded or not.
//
// It returns the exit code for the process.
func (a *app) runCommand(ctx context.Context, name string, cmd command, args []string, keepOn bool) int {
	err := a.exec(ctx, cmd, args)
	if err != nil {
		a.log.Error("command failed", zap.String("command", name), zap.Error(err))
	}
	if !keepOn {
		a.powerDown()
	}
	if err != nil {
		return 1
	}
	return 0
}

// exec runs the command, converting any panic into an error.
func (a *app) exec(ctx context.Context, cmd command, args []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return cmd.run(ctx, a, args)
}

// powerDown disconnects MQTT, detaches from the network and powers off the
// modem.
func (a *app) powerDown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := a.modem.PowerDown(ctx); err != nil {
		a.log.Error("power down failed", zap.Error(err))
	}
}
