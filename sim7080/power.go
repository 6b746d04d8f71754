// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package sim7080

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/warthog618/sim7080/at"
	"github.com/warthog618/sim7080/power"
)

// PowerDown closes any MQTT session and PDP context then switches the modem
// off.
//
// If the modem does not acknowledge the power down command then the power key
// is toggled instead.
func (m *Modem) PowerDown(ctx context.Context) error {
	if m.SyncStatus() == PoweredOff {
		m.log.Info("modem already powered off")
		return nil
	}
	m.log.Info("powering down")
	if m.level >= MQTTConnected {
		if err := m.DisconnectMQTT(); err != nil {
			m.log.Warn("mqtt disconnect failed", zap.Error(err))
		}
	}
	if m.level >= NetworkAttached {
		if err := m.DetachNetwork(); err != nil {
			m.log.Warn("network detach failed", zap.Error(err))
		}
	}
	rsp := m.Write("+CPOWD", "1",
		at.WithTerminal("NORMAL POWER DOWN"),
		at.WithCmdTimeout(m.long))
	if rsp.IsError() {
		m.log.Warn("power down not acknowledged, toggling power key",
			zap.Stringer("status", rsp.Status))
		if err := m.power.Toggle(ctx); err != nil {
			if errors.Is(err, power.ErrUnsupported) {
				return ErrPowerControlUnsupported
			}
			return errors.Wrap(err, "power down")
		}
	}
	m.setLevel(PoweredOff)
	m.log.Info("modem powered down")
	return nil
}
