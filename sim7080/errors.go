// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package sim7080

import (
	"github.com/pkg/errors"

	"github.com/warthog618/sim7080/at"
)

var (
	// ErrAttachFailed indicates the PDP context could not be activated.
	ErrAttachFailed = errors.New("network attach failed")

	// ErrMQTTConnectFailed indicates the MQTT session could not be
	// established.
	ErrMQTTConnectFailed = errors.New("mqtt connect failed")

	// ErrPublishFailed indicates the modem did not accept a publish.
	ErrPublishFailed = errors.New("mqtt publish failed")

	// ErrHTTPConnectFailed indicates the HTTP session could not be
	// established.
	ErrHTTPConnectFailed = errors.New("http connect failed")

	// ErrDownloadFailed indicates a download request or transfer failed.
	ErrDownloadFailed = errors.New("download failed")

	// ErrNTPSyncFailed indicates the modem could not sync its clock.
	ErrNTPSyncFailed = errors.New("ntp sync failed")

	// ErrMalformedResponse indicates the modem returned a response that
	// does not have the expected layout.
	ErrMalformedResponse = errors.New("modem returned malformed response")

	// ErrPowerControlUnsupported indicates the modem is not responding and
	// cannot be powered on as there is no power control.
	ErrPowerControlUnsupported = errors.New("modem not responding and power control unsupported")
)

// rspError returns nil for a successful response, else the response error
// wrapped with the message.
func rspError(rsp *at.Response, msg string) error {
	if rsp.IsSuccess() {
		return nil
	}
	err := rsp.Err
	if err == nil {
		err = at.ErrError
	}
	return errors.Wrap(err, msg)
}
