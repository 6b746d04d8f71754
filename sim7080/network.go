// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package sim7080

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/warthog618/sim7080/at"
	"github.com/warthog618/sim7080/info"
)

// AttachNetwork makes a single attempt to activate the PDP context.
//
// If the apn is empty then the APN provided by the network is used.
func (m *Modem) AttachNetwork(ctx context.Context, apn string) error {
	if err := m.EnsurePower(ctx); err != nil {
		return err
	}
	m.log.Info("attaching to network")
	// prefer CAT-M over NB-IoT
	m.Write("+CMNB", "1")
	if apn == "" {
		apn = m.networkAPN()
	}
	m.log.Debug("configuring pdp context", zap.String("apn", apn))
	m.Write("+CNCFG", fmt.Sprintf(`0,1,"%s"`, apn))
	rsp := m.Write("+CNACT", "0,1")
	payload, ok := pdpState(rsp.Raw)
	if !ok {
		rsp = m.WaitFor("+APP PDP", at.WithCmdTimeout(m.long))
		payload = rsp.Payload()
		ok = rsp.IsSuccess()
	}
	if !ok || payload != "0,ACTIVE" {
		m.log.Warn("network attach failed", zap.String("pdp", payload))
		return errors.Wrapf(ErrAttachFailed, "pdp %q", payload)
	}
	m.raise(NetworkAttached)
	m.log.Info("attached to network")
	return nil
}

// networkAPN returns the APN provided by the network, or an empty string if
// none is provided.
func (m *Modem) networkAPN() string {
	rsp := m.Execute("+CGNAPN")
	line := rsp.Line(0)
	if rsp.IsError() || !strings.HasPrefix(line, "1,") {
		return ""
	}
	q := strings.TrimSpace(line[2:])
	if len(q) < 3 || q[0] != '"' || q[len(q)-1] != '"' {
		m.log.Warn("ignoring malformed network apn", zap.String("apn", line))
		return ""
	}
	return info.Unquote(q)
}

// pdpState returns the payload of a PDP state notification that arrived
// within a command response.
func pdpState(lines []string) (string, bool) {
	for _, l := range lines {
		if info.HasPrefix(l, "+APP PDP") {
			return info.TrimPrefix(l, "+APP PDP"), true
		}
	}
	return "", false
}

// DetachNetwork deactivates the PDP context.
func (m *Modem) DetachNetwork() error {
	m.log.Info("detaching from network")
	if err := rspError(m.Write("+CNACT", "0,0"), "deactivate pdp context"); err != nil {
		return err
	}
	m.lower(PoweredOn)
	return nil
}

// IPAddr returns the address assigned to the PDP context, which is 0.0.0.0
// if not attached.
func (m *Modem) IPAddr() (string, error) {
	return m.ipAddr()
}
