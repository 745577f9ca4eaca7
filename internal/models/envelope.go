package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type MessageType string

const (
	MsgDiscovery         MessageType = "DISCOVERY"
	MsgDiscoveryResponse MessageType = "DISCOVERY_RESPONSE"
	MsgTransferRequest   MessageType = "TRANSFER_REQUEST"
	MsgSmsData           MessageType = "SMS_DATA"
	MsgTransferComplete  MessageType = "TRANSFER_COMPLETE"
	MsgError             MessageType = "ERROR"
)

var ErrUnknownMessageType = errors.New("unknown message type")

// Envelope is the wire-level unit exchanged between peers. Data holds the
// raw payload bytes; DecodePayload parses them into the typed payload
// matching Type.
type Envelope struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Payload is implemented by every envelope payload variant.
type Payload interface {
	messageType() MessageType
}

type DiscoveryPayload struct {
	Device DeviceInfo `json:"device_info"`
}

type DiscoveryResponsePayload struct {
	Device DeviceInfo `json:"device_info"`
}

type TransferRequestPayload struct {
	TotalRecords int `json:"total_records"`
	TotalBatches int `json:"total_batches"`
}

type TransferCompletePayload struct {
	TotalSent int `json:"total_sent"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func (DiscoveryPayload) messageType() MessageType         { return MsgDiscovery }
func (DiscoveryResponsePayload) messageType() MessageType { return MsgDiscoveryResponse }
func (TransferRequestPayload) messageType() MessageType   { return MsgTransferRequest }
func (RecordBatch) messageType() MessageType              { return MsgSmsData }
func (TransferCompletePayload) messageType() MessageType  { return MsgTransferComplete }
func (ErrorPayload) messageType() MessageType             { return MsgError }

// NewEnvelope seals a typed payload into an envelope stamped with now.
func NewEnvelope(sessionID string, payload Payload) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode payload: %w", err)
	}

	return Envelope{
		Type:      payload.messageType(),
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data:      data,
	}, nil
}

// DecodePayload parses the envelope data into the payload variant selected
// by the envelope type. Unknown types and undecodable data yield an error,
// never a partially filled payload.
func (e Envelope) DecodePayload() (Payload, error) {
	switch e.Type {
	case MsgDiscovery:
		var p DiscoveryPayload
		return p, e.unmarshal(&p)
	case MsgDiscoveryResponse:
		var p DiscoveryResponsePayload
		return p, e.unmarshal(&p)
	case MsgTransferRequest:
		var p TransferRequestPayload
		return p, e.unmarshal(&p)
	case MsgSmsData:
		var p RecordBatch
		return p, e.unmarshal(&p)
	case MsgTransferComplete:
		var p TransferCompletePayload
		return p, e.unmarshal(&p)
	case MsgError:
		var p ErrorPayload
		return p, e.unmarshal(&p)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, e.Type)
	}
}

func (e Envelope) unmarshal(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("envelope %s: missing data", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("envelope %s: %w", e.Type, err)
	}
	return nil
}

// Ack is the small acknowledgment returned by the transfer endpoint.
type Ack struct {
	Status    string    `json:"status"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewAck(status string, sessionID string) Ack {
	return Ack{
		Status:    status,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}
