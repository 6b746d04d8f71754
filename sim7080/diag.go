// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package sim7080

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/warthog618/sim7080/at"
	"github.com/warthog618/sim7080/info"
)

// SystemInfo is the UE system information reported by +CPSI.
//
// When the module has no service only the SystemMode and OperationMode are
// populated.
type SystemInfo struct {
	SystemMode    string `json:"system_mode"`
	OperationMode string `json:"operation_mode"`
	MCCMNC        string `json:"mcc_mnc,omitempty"`
	TAC           string `json:"tac,omitempty"`
	SCellID       string `json:"scell_id,omitempty"`
	PCellID       string `json:"pcell_id,omitempty"`
	FrequencyBand string `json:"frequency_band,omitempty"`
	EARFCN        string `json:"earfcn,omitempty"`
	DLBW          string `json:"dlbw,omitempty"`
	ULBW          string `json:"ulbw,omitempty"`
	RSRQ          string `json:"rsrq,omitempty"`
	RSRP          string `json:"rsrp,omitempty"`
	RSSI          string `json:"rssi,omitempty"`
	RSSNR         string `json:"rssnr,omitempty"`

	// IP is the address of the PDP context.
	IP string `json:"ip,omitempty"`
}

// ParseSystemInfo parses the payload of a +CPSI line.
func ParseSystemInfo(line string) (SystemInfo, error) {
	f := strings.Split(line, ",")
	for i := range f {
		f[i] = strings.TrimSpace(f[i])
	}
	switch len(f) {
	case 2:
		return SystemInfo{SystemMode: f[0], OperationMode: f[1]}, nil
	case 14:
		return SystemInfo{
			SystemMode:    f[0],
			OperationMode: f[1],
			MCCMNC:        f[2],
			TAC:           f[3],
			SCellID:       f[4],
			PCellID:       f[5],
			FrequencyBand: f[6],
			EARFCN:        f[7],
			DLBW:          f[8],
			ULBW:          f[9],
			RSRQ:          f[10],
			RSRP:          f[11],
			RSSI:          f[12],
			RSSNR:         f[13],
		}, nil
	default:
		return SystemInfo{}, errors.Wrapf(ErrMalformedResponse,
			"system info has %d fields: %q", len(f), line)
	}
}

// NetworkInfo returns the serving cell information and the IP address.
func (m *Modem) NetworkInfo(ctx context.Context) (SystemInfo, error) {
	if err := m.EnsureNetwork(ctx); err != nil {
		return SystemInfo{}, err
	}
	rsp := m.Read("+CPSI")
	if err := rspError(rsp, "read system info"); err != nil {
		return SystemInfo{}, err
	}
	si, err := ParseSystemInfo(rsp.Line(0))
	if err != nil {
		return SystemInfo{}, err
	}
	if si.IP, err = m.ipAddr(); err != nil {
		return SystemInfo{}, err
	}
	return si, nil
}

// Signal is the signal quality reported by +CSQ.
type Signal struct {
	// RSSI is 0-31, or 99 if unknown.
	RSSI int `json:"rssi"`
	// BER is 0-7, or 99 if unknown.
	BER int `json:"ber"`
}

// DBm returns the RSSI in dBm, and false if unknown.
func (s Signal) DBm() (int, bool) {
	if s.RSSI < 0 || s.RSSI > 31 {
		return 0, false
	}
	return -113 + 2*s.RSSI, true
}

// SignalQuality returns the current signal quality.
func (m *Modem) SignalQuality() (Signal, error) {
	rsp := m.Execute("+CSQ")
	if err := rspError(rsp, "read signal quality"); err != nil {
		return Signal{}, err
	}
	f := info.Fields(rsp.Line(0))
	if len(f) != 2 {
		return Signal{}, errors.Wrapf(ErrMalformedResponse, "signal quality %q", rsp.Line(0))
	}
	rssi, err1 := strconv.Atoi(f[0])
	ber, err2 := strconv.Atoi(f[1])
	if err1 != nil || err2 != nil {
		return Signal{}, errors.Wrapf(ErrMalformedResponse, "signal quality %q", rsp.Line(0))
	}
	return Signal{RSSI: rssi, BER: ber}, nil
}

// Ping has the modem ping the host and returns the replies.
func (m *Modem) Ping(ctx context.Context, host string) ([]string, error) {
	m.log.Info("ping", zap.String("host", host))
	if err := m.EnsureNetwork(ctx); err != nil {
		return nil, err
	}
	m.Write("+CNACT", "0,1")
	m.Write("+SNPDPID", "0")
	rsp := m.Write("+SNPING4", fmt.Sprintf(`"%s",3,16,1000`, host), at.WithCmdTimeout(m.long))
	if err := rspError(rsp, "ping"); err != nil {
		return rsp.Lines(), err
	}
	return rsp.Lines(), nil
}

// InfoCommands are the commands issued by Info.
var InfoCommands = []string{
	"I",
	"+CLTS?",
	"+CCLK?",
	"+CMEE=2",
	"+CSQ",
	"+CPSI?",
	"+CGREG?",
	"+CSIMLOCK?",
	"+CPIN?",
	"+CNACT?",
}

// CommandResult is the response to one of the InfoCommands.
type CommandResult struct {
	Command  string
	Response *at.Response
}

// Info issues the InfoCommands and returns the responses.
//
// The responses are not interpreted, and failed commands do not stop the
// sequence.
func (m *Modem) Info(ctx context.Context) ([]CommandResult, error) {
	if err := m.EnsurePower(ctx); err != nil {
		return nil, err
	}
	results := make([]CommandResult, 0, len(InfoCommands))
	for _, cmd := range InfoCommands {
		rsp := m.Execute(cmd)
		m.log.Info("info", zap.String("cmd", "AT"+cmd), zap.Stringer("response", rsp))
		results = append(results, CommandResult{Command: cmd, Response: rsp})
	}
	return results, nil
}
