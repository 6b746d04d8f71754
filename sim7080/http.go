// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package sim7080

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/warthog618/sim7080/at"
	"github.com/warthog618/sim7080/info"
)

// DownloadChunkSize is the size of the blocks read from the modem during a
// download.
const DownloadChunkSize = 1024

const httpConnectAttempts = 3

// connectHTTP opens an HTTP session to the origin.
func (m *Modem) connectHTTP(ctx context.Context, origin string) error {
	m.log.Info("connecting http", zap.String("origin", origin))
	m.Write("+SHCONF", fmt.Sprintf(`"URL","%s"`, origin))
	m.Write("+SHCONF", `"BODYLEN",1024`)
	m.Write("+SHCONF", `"HEADERLEN",350`)
	for i := 1; i <= httpConnectAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.log.Info("trying to connect to http server",
			zap.Int("attempt", i),
			zap.Int("of", httpConnectAttempts))
		if m.Execute("+SHCONN", at.WithCmdTimeout(m.long)).IsError() {
			continue
		}
		if rsp := m.Read("+SHSTATE"); rsp.IsSuccess() && rsp.Line(0) == "1" {
			m.log.Info("connected to http server")
			return nil
		}
	}
	m.log.Warn("http connect failed")
	return ErrHTTPConnectFailed
}

// DownloadFile fetches the URL and writes the body to w, returning the number
// of bytes written.
//
// The body is read from the modem in blocks of DownloadChunkSize. Any failure
// aborts the download, and there is no retry of individual blocks.
func (m *Modem) DownloadFile(ctx context.Context, rawurl string, w io.Writer) (int64, error) {
	m.log.Info("downloading file", zap.String("url", rawurl))
	u, err := url.Parse(rawurl)
	if err != nil {
		return 0, errors.Wrap(err, "parse url")
	}
	if u.Scheme == "" || u.Host == "" {
		return 0, errors.Errorf("url %q is not absolute", rawurl)
	}
	if err := m.EnsureNetwork(ctx); err != nil {
		return 0, err
	}
	if err := m.connectHTTP(ctx, u.Scheme+"://"+u.Host); err != nil {
		return 0, err
	}
	defer m.Execute("+SHDISC")
	m.Execute("+SHCHEAD")
	m.Write("+SHAHEAD", `"User-Agent","IOE Client"`)
	m.Write("+SHAHEAD", `"Connection","keep-alive"`)
	m.Write("+SHAHEAD", `"Cache-control","no-cache"`)
	m.Write("+SHREQ", fmt.Sprintf(`"%s",1`, rawurl))
	rsp := m.WaitFor("+SHREQ", at.WithCmdTimeout(m.long))
	if rsp.IsError() {
		m.log.Warn("download request failed", zap.Stringer("status", rsp.Status))
		return 0, errors.Wrapf(ErrDownloadFailed, "request: %s", rsp.Status)
	}
	status, length, err := parseRequestResult(rsp.Payload())
	if err != nil {
		return 0, err
	}
	m.log.Debug("request result", zap.Int("status", status), zap.Int("length", length))
	if status != 200 {
		m.log.Warn("download request failed", zap.Int("status", status))
		return 0, errors.Wrapf(ErrDownloadFailed, "http status %d", status)
	}
	var written int64
	for offset := 0; offset < length; {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n := min(DownloadChunkSize, length-offset)
		rsp := m.Write("+SHREAD", fmt.Sprintf("%d,%d", offset, n))
		if rsp.IsError() {
			return written, errors.Wrapf(ErrDownloadFailed, "read at %d: %s", offset, rsp.Status)
		}
		if rsp := m.WaitFor("+SHREAD", at.WithCmdTimeout(m.long)); rsp.IsError() {
			return written, errors.Wrapf(ErrDownloadFailed, "block at %d: %s", offset, rsp.Status)
		}
		data, err := m.ReadRaw(n, at.WithCmdTimeout(m.long))
		if err != nil {
			return written, errors.Wrapf(ErrDownloadFailed, "block at %d: %s", offset, err)
		}
		wn, err := w.Write(data)
		written += int64(wn)
		if err != nil {
			return written, errors.Wrap(err, "write block")
		}
		offset += n
	}
	m.log.Info("download complete", zap.Int64("size", written))
	return written, nil
}

// parseRequestResult parses the "method,status,length" request result.
func parseRequestResult(payload string) (status, length int, err error) {
	f := info.Fields(payload)
	if len(f) != 3 {
		return 0, 0, errors.Wrapf(ErrMalformedResponse, "request result %q", payload)
	}
	if status, err = strconv.Atoi(f[1]); err != nil {
		return 0, 0, errors.Wrapf(ErrMalformedResponse, "request status %q", f[1])
	}
	if length, err = strconv.Atoi(f[2]); err != nil {
		return 0, 0, errors.Wrapf(ErrMalformedResponse, "request length %q", f[2])
	}
	return status, length, nil
}
