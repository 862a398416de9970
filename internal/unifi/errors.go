// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package unifi

import (
	"errors"
	"fmt"
)

// ErrAuthFailed indicates login or bootstrap failure. Fatal to the
// supervisor run: the process cannot make progress without a session.
var ErrAuthFailed = errors.New("unifi: authentication failed")

// ErrInvalidResponse indicates an unusable REST response.
var ErrInvalidResponse = errors.New("unifi: invalid response")

// ProtocolError marks a malformed websocket message (bad frame, wrong
// packet type, inflate failure, unparseable JSON). It is local to a
// single message: the adapter drops the message and keeps the
// connection open.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError reports whether err is (or wraps) a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

func protocolErr(reason string, err error) *ProtocolError {
	return &ProtocolError{Reason: reason, Err: err}
}
