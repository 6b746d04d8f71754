// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package sim7080

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/warthog618/sim7080/at"
)

// Session identifies an MQTT broker and the credentials used to connect to
// it.
//
// Certificates are local file paths. They are mirrored onto the module
// filesystem under their base names when not already present.
type Session struct {
	Host     string
	Port     int
	ClientID string
	Username string
	Password string
	QoS      int

	// CACert enables TLS if set.
	CACert string

	// ClientCert and ClientKey enable client authentication if both set.
	ClientCert string
	ClientKey  string
}

// connect attempts before giving up
const mqttConnectAttempts = 3

// ConnectMQTT establishes an MQTT session, attaching to the network first if
// necessary.
//
// If a session is already established then it is reused.
func (m *Modem) ConnectMQTT(ctx context.Context, s Session) error {
	m.log.Info("connecting mqtt",
		zap.String("host", s.Host),
		zap.Int("port", s.Port),
		zap.String("client_id", s.ClientID))
	if err := m.EnsureNetwork(ctx); err != nil {
		return err
	}
	if m.isMQTTConnected() {
		m.raise(MQTTConnected)
		m.log.Info("already connected to mqtt")
		return nil
	}
	m.Write("+CMEE", "2")
	m.Write("+SMCONF", fmt.Sprintf(`"URL","%s",%d`, s.Host, s.Port))
	m.Write("+SMCONF", `"KEEPTIME",60`)
	m.Write("+SMCONF", `"CLEANSS",1`)
	m.Write("+SMCONF", fmt.Sprintf(`"QOS",%d`, s.QoS))
	m.Write("+SMCONF", fmt.Sprintf(`"CLIENTID","%s"`, s.ClientID))
	if s.Username != "" {
		m.Write("+SMCONF", fmt.Sprintf(`"USERNAME","%s"`, s.Username))
		m.Write("+SMCONF", fmt.Sprintf(`"PASSWORD","%s"`, s.Password))
	}
	if s.CACert != "" {
		if err := m.configureTLS(ctx, s); err != nil {
			return err
		}
	}
	for i := 1; i <= mqttConnectAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.log.Info("trying to connect to mqtt",
			zap.Int("attempt", i),
			zap.Int("of", mqttConnectAttempts))
		if m.Execute("+SMCONN", at.WithCmdTimeout(m.long)).IsSuccess() {
			m.setLevel(MQTTConnected)
			m.log.Info("connected to mqtt")
			return nil
		}
	}
	m.log.Warn("mqtt connect failed")
	m.setLevel(NetworkAttached)
	return ErrMQTTConnectFailed
}

func (m *Modem) configureTLS(ctx context.Context, s Session) error {
	ca := filepath.Base(s.CACert)
	if err := m.convertCert(ctx, fmt.Sprintf(`"convert",2,"%s"`, ca), s.CACert); err != nil {
		return err
	}
	cc := ""
	if s.ClientCert != "" && s.ClientKey != "" {
		cc = filepath.Base(s.ClientCert)
		ck := filepath.Base(s.ClientKey)
		params := fmt.Sprintf(`"convert",1,"%s","%s"`, cc, ck)
		if err := m.convertCert(ctx, params, s.ClientCert, s.ClientKey); err != nil {
			return err
		}
	}
	m.Write("+CSSLCFG", `"sslversion",0,3`)
	m.Read("+CSSLCFG")
	m.Write("+SMSSL", fmt.Sprintf(`1,"%s","%s"`, ca, cc))
	m.Read("+SMSSL")
	return nil
}

// convertCert registers certificates with the SSL stack, uploading them and
// retrying once if they are not yet present on the module.
//
// Only a failure to read a local certificate is returned as an error. Other
// failures are left to be reported by the connect.
func (m *Modem) convertCert(ctx context.Context, params string, paths ...string) error {
	if m.Write("+CSSLCFG", params).IsSuccess() {
		return nil
	}
	m.log.Info("certificate not on module, uploading", zap.Strings("files", paths))
	for _, p := range paths {
		if err := m.WriteFile(ctx, p); err != nil {
			return errors.WithMessage(err, "upload certificate")
		}
	}
	if err := rspError(m.Write("+CSSLCFG", params), "convert certificate"); err != nil {
		m.log.Warn("certificate convert failed", zap.Error(err))
	}
	return nil
}

// DisconnectMQTT closes the MQTT session.
func (m *Modem) DisconnectMQTT() error {
	m.log.Info("disconnecting mqtt")
	if err := rspError(m.Execute("+SMDISC"), "disconnect mqtt"); err != nil {
		return err
	}
	m.lower(NetworkAttached)
	return nil
}

// Publish publishes the payload to the topic with QoS 1.
//
// The MQTT session must already be established. In test mode nothing is
// sent to the modem.
func (m *Modem) Publish(ctx context.Context, topic string, payload []byte) error {
	if m.testMode {
		m.log.Info("test mode, not publishing",
			zap.String("topic", topic),
			zap.ByteString("payload", payload))
		return nil
	}
	if err := m.EnsureNetwork(ctx); err != nil {
		return err
	}
	m.log.Debug("publishing",
		zap.String("topic", topic),
		zap.ByteString("payload", payload))
	rsp := m.Write("+SMPUB", fmt.Sprintf(`"%s",%d,1,0`, topic, len(payload)),
		at.WithTerminal(">"))
	if rsp.IsError() {
		return errors.Wrapf(ErrPublishFailed, "no prompt: %s", rsp.Status)
	}
	rsp = m.Send(payload, at.WithCmdTimeout(m.long))
	if rsp.IsError() {
		return errors.Wrapf(ErrPublishFailed, "payload: %s", rsp.Status)
	}
	return nil
}
