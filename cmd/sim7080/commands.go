// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var errNoArgs = errors.New("missing arguments")

// clockSetter sets the host clock.
var clockSetter = setClock

func writeFiles(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.Wrap(errNoArgs, "write_file")
	}
	for _, f := range args {
		if err := a.modem.WriteFile(ctx, f); err != nil {
			return err
		}
		a.log.Info("wrote file", zap.String("file", f))
	}
	return nil
}

func deleteFiles(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.Wrap(errNoArgs, "delete_file")
	}
	for _, f := range args {
		if err := a.modem.DeleteFile(ctx, f); err != nil {
			return err
		}
		a.log.Info("deleted file", zap.String("file", f))
	}
	return nil
}

func downloadFiles(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("download_file", flag.ContinueOnError)
	dir := fs.String("dir", ".", "directory to write downloads to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.Wrap(errNoArgs, "download_file")
	}
	for _, rawurl := range fs.Args() {
		name, err := downloadName(rawurl)
		if err != nil {
			return err
		}
		if err := downloadFile(ctx, a, rawurl, filepath.Join(*dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func downloadFile(ctx context.Context, a *app, rawurl, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "create download")
	}
	n, err := a.modem.DownloadFile(ctx, rawurl, f)
	cerr := f.Close()
	if err != nil {
		os.Remove(dst)
		return err
	}
	if cerr != nil {
		return errors.Wrap(cerr, "close download")
	}
	a.log.Info("downloaded file",
		zap.String("url", rawurl),
		zap.String("file", dst),
		zap.Int64("size", n))
	return nil
}

// downloadName returns the local file name for the download.
func downloadName(rawurl string) (string, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "", errors.Wrap(err, "parse url")
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return "", errors.Errorf("no file name in %q", rawurl)
	}
	return name, nil
}

func sendMessage(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("send_msg", flag.ContinueOnError)
	msg := fs.String("message", "", "message to publish")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *msg == "" {
		return errors.Wrap(errNoArgs, "send_msg requires a message")
	}
	if err := a.modem.ConnectMQTT(ctx, a.cfg.MQTT.Session()); err != nil {
		return err
	}
	return a.publish(ctx, []byte(*msg))
}

func sendStatus(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("send_status", flag.ContinueOnError)
	msg := fs.String("message", "", "message to include in the status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.modem.ConnectMQTT(ctx, a.cfg.MQTT.Session()); err != nil {
		return err
	}
	st := newStatus(a.modem, a.cfg.MQTT.ClientID, *msg, time.Now())
	payload, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "encode status")
	}
	return a.publish(ctx, payload)
}

// publish publishes the payload to the configured topic.
//
// The MQTT session must already be established.
func (a *app) publish(ctx context.Context, payload []byte) error {
	err := a.modem.Publish(ctx, a.cfg.MQTT.Topic, payload)
	a.metrics.ObservePublish(err, a.testMode)
	if err != nil {
		return err
	}
	a.log.Info("published",
		zap.String("topic", a.cfg.MQTT.Topic),
		zap.Int("size", len(payload)))
	return nil
}

func syncTime(ctx context.Context, a *app, args []string) error {
	t, err := a.modem.NTPTime(ctx, a.cfg.NTP.Server)
	if err != nil {
		return err
	}
	if a.testMode {
		a.log.Info("test mode, not setting clock", zap.Time("time", t))
		return nil
	}
	if err := clockSetter(t); err != nil {
		return err
	}
	a.log.Info("set clock", zap.Time("time", t))
	return nil
}

func modemInfo(ctx context.Context, a *app, args []string) error {
	results, err := a.modem.Info(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Fprintln(a.out, "AT"+r.Command)
		if r.Response.IsError() {
			fmt.Fprintf(a.out, " %s\n", r.Response.Status)
			continue
		}
		for _, l := range r.Response.Message {
			fmt.Fprintf(a.out, " %s\n", l)
		}
	}
	return nil
}

func networkInfo(ctx context.Context, a *app, args []string) error {
	si, err := a.modem.NetworkInfo(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(si)
}

func ping(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.Wrap(errNoArgs, "ping requires a host")
	}
	lines, err := a.modem.Ping(ctx, args[0])
	for _, l := range lines {
		fmt.Fprintln(a.out, l)
	}
	return err
}
