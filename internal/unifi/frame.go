// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

/*
frame.go - Protect Binary Frame Codec

Each Protect websocket message carries two framed sections back to
back: an action frame followed by a data frame.

Header layout (8 bytes):

	byte 0:   packet type (1=action, 2=payload)
	byte 1:   format (1=JSON, 2=UTF8, 3=opaque buffer)
	byte 2:   compression (0=raw, 1=zlib deflate)
	byte 3:   reserved
	bytes 4-7: payload length (big-endian u32)

Every malformation is a ProtocolError scoped to the single message;
the codec is stateless across messages.
*/

package unifi

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zlib"
)

const (
	packetTypeAction  byte = 1
	packetTypePayload byte = 2

	frameFormatJSON   byte = 1
	frameFormatUTF8   byte = 2
	frameFormatBuffer byte = 3

	frameHeaderSize = 8
)

// frameHeader is one decoded 8-byte frame header.
type frameHeader struct {
	packetType  byte
	format      byte
	compressed  bool
	payloadSize uint32
}

// parseFrameHeader decodes a header from the first 8 bytes of data.
func parseFrameHeader(data []byte) (frameHeader, error) {
	if len(data) < frameHeaderSize {
		return frameHeader{}, protocolErr("packet too short for header", nil)
	}
	return frameHeader{
		packetType:  data[0],
		format:      data[1],
		compressed:  data[2] == 1,
		payloadSize: binary.BigEndian.Uint32(data[4:8]),
	}, nil
}

func (h frameHeader) encode() []byte {
	out := make([]byte, frameHeaderSize)
	out[0] = h.packetType
	out[1] = h.format
	if h.compressed {
		out[2] = 1
	}
	binary.BigEndian.PutUint32(out[4:8], h.payloadSize)
	return out
}

// ActionFrame is the decoded action section of a Protect message.
type ActionFrame struct {
	// Action is the operation type: "add" or "update".
	Action string `json:"action"`

	// ID of the device or entity being updated.
	ID string `json:"id"`

	// ModelKey is the entity category: camera, nvr, event, sensor, etc.
	ModelKey string `json:"modelKey"`

	// NewUpdateID is the per-update resume cursor, when present.
	NewUpdateID string `json:"newUpdateId,omitempty"`
}

// ProtectMessage is one fully decoded action+data frame pair.
type ProtectMessage struct {
	Action ActionFrame

	// Data is the decoded data frame when its format is JSON; nil
	// otherwise.
	Data map[string]any

	// DataRaw holds the decompressed data frame bytes. For JSON frames
	// this is the exact state body used by the heartbeat filter.
	DataRaw []byte
}

// DecodeProtectMessage decodes a binary websocket message into its
// action and data frames, inflating each frame as flagged.
func DecodeProtectMessage(data []byte) (*ProtectMessage, error) {
	actionHeader, err := parseFrameHeader(data)
	if err != nil {
		return nil, err
	}
	if actionHeader.packetType != packetTypeAction {
		return nil, protocolErr(fmt.Sprintf("expected action frame, got type %d", actionHeader.packetType), nil)
	}

	actionEnd := frameHeaderSize + int(actionHeader.payloadSize)
	if len(data) < actionEnd {
		return nil, protocolErr("packet too short for action payload", nil)
	}

	actionPayload, err := inflateIfNeeded(data[frameHeaderSize:actionEnd], actionHeader.compressed)
	if err != nil {
		return nil, err
	}

	var action ActionFrame
	if err := json.Unmarshal(actionPayload, &action); err != nil {
		return nil, protocolErr("action frame parse failed", err)
	}

	if len(data) < actionEnd+frameHeaderSize {
		return nil, protocolErr("packet too short for data header", nil)
	}
	dataHeader, err := parseFrameHeader(data[actionEnd:])
	if err != nil {
		return nil, err
	}
	if dataHeader.packetType != packetTypePayload {
		return nil, protocolErr(fmt.Sprintf("expected payload frame, got type %d", dataHeader.packetType), nil)
	}

	dataStart := actionEnd + frameHeaderSize
	dataEnd := dataStart + int(dataHeader.payloadSize)
	if len(data) < dataEnd {
		return nil, protocolErr("packet too short for data payload", nil)
	}

	dataPayload, err := inflateIfNeeded(data[dataStart:dataEnd], dataHeader.compressed)
	if err != nil {
		return nil, err
	}

	msg := &ProtectMessage{
		Action:  action,
		DataRaw: dataPayload,
	}

	if dataHeader.format == frameFormatJSON {
		if err := json.Unmarshal(dataPayload, &msg.Data); err != nil {
			return nil, protocolErr("data frame parse failed", err)
		}
	}

	return msg, nil
}

// EncodeProtectMessage builds the wire form of an action+data pair.
// Used by the codec round-trip tests and the event replay tooling.
func EncodeProtectMessage(action ActionFrame, data any, compress bool) ([]byte, error) {
	actionPayload, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal action frame: %w", err)
	}

	dataPayload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data frame: %w", err)
	}

	if compress {
		if actionPayload, err = deflate(actionPayload); err != nil {
			return nil, err
		}
		if dataPayload, err = deflate(dataPayload); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	buf.Write(frameHeader{
		packetType:  packetTypeAction,
		format:      frameFormatJSON,
		compressed:  compress,
		payloadSize: uint32(len(actionPayload)),
	}.encode())
	buf.Write(actionPayload)
	buf.Write(frameHeader{
		packetType:  packetTypePayload,
		format:      frameFormatJSON,
		compressed:  compress,
		payloadSize: uint32(len(dataPayload)),
	}.encode())
	buf.Write(dataPayload)

	return buf.Bytes(), nil
}

// inflateIfNeeded returns the payload, zlib-inflated when flagged.
func inflateIfNeeded(data []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return data, nil
	}

	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, protocolErr("decompression failed", err)
	}
	defer func() { _ = r.Close() }()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, protocolErr("decompression failed", err)
	}
	return out, nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("deflate failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("deflate failed: %w", err)
	}
	return buf.Bytes(), nil
}
