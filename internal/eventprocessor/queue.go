// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package eventprocessor

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/gatewatch/internal/logging"
)

// TopicNotifications is the notify-queue topic between the classifier
// and the dispatcher.
const TopicNotifications = "notifications"

// NewNotifyQueue builds the bounded in-process notify queue. When the
// dispatcher lags, messages back up in the output buffer while events
// keep being stored (persistence precedes enqueue), so a slow chat
// channel delays notifications without losing them: anything in flight
// at crash time is reloaded from the store's pending rows.
func NewNotifyQueue(buffer int64) *gochannel.GoChannel {
	if buffer <= 0 {
		buffer = 100
	}
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: buffer,
	}, watermillLogger{})
}

// watermillLogger adapts watermill's LoggerAdapter onto zerolog.
type watermillLogger struct {
	fields watermill.LogFields
}

func (l watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	logging.Error().Err(err).Fields(l.merged(fields)).Msg(msg)
}

func (l watermillLogger) Info(msg string, fields watermill.LogFields) {
	// Watermill's lifecycle chatter is debug-grade here.
	logging.Debug().Fields(l.merged(fields)).Msg(msg)
}

func (l watermillLogger) Debug(msg string, fields watermill.LogFields) {
	logging.Debug().Fields(l.merged(fields)).Msg(msg)
}

func (l watermillLogger) Trace(msg string, fields watermill.LogFields) {
	logging.Trace().Fields(l.merged(fields)).Msg(msg)
}

func (l watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillLogger{fields: l.merged(fields)}
}

func (l watermillLogger) merged(fields watermill.LogFields) map[string]any {
	out := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}
