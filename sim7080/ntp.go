// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package sim7080

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/warthog618/sim7080/at"
	"github.com/warthog618/sim7080/info"
)

// layout of the module clock, ignoring the trailing quarter hour zone
const clockLayout = "06/01/02,15:04:05"

// NTPTime syncs the module clock with the NTP server and returns the synced
// time, in UTC.
func (m *Modem) NTPTime(ctx context.Context, server string) (time.Time, error) {
	m.log.Info("syncing time", zap.String("server", server))
	if err := m.EnsureNetwork(ctx); err != nil {
		return time.Time{}, err
	}
	m.Write("+CNTP", fmt.Sprintf(`"%s",0,0,2`, server))
	m.Execute("+CNTP")
	rsp := m.WaitFor("+CNTP", at.WithCmdTimeout(m.long))
	payload := rsp.Payload()
	if rsp.IsError() || !(payload == "1" || strings.HasPrefix(payload, "1,")) {
		m.log.Error("time sync failed",
			zap.Stringer("status", rsp.Status),
			zap.String("payload", payload))
		return time.Time{}, errors.Wrapf(ErrNTPSyncFailed, "result %q", payload)
	}
	return m.Clock()
}

// Clock returns the module clock, in UTC.
func (m *Modem) Clock() (time.Time, error) {
	rsp := m.Read("+CCLK")
	if err := rspError(rsp, "read clock"); err != nil {
		return time.Time{}, err
	}
	t, err := parseClock(rsp.Line(0))
	if err != nil {
		return time.Time{}, err
	}
	m.log.Info("module time", zap.Time("time", t))
	return t, nil
}

// parseClock parses a clock value of the form "yy/MM/dd,hh:mm:ss±zz".
func parseClock(line string) (time.Time, error) {
	s := info.Unquote(line)
	if len(s) < len(clockLayout) {
		return time.Time{}, errors.Wrapf(ErrMalformedResponse, "clock %q", line)
	}
	t, err := time.ParseInLocation(clockLayout, s[:len(clockLayout)], time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrMalformedResponse, "clock %q", line)
	}
	return t, nil
}
