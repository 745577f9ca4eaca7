// Package pairing implements the token exchanged out-of-band (via a scanned
// code) to bootstrap a transfer session: the sender's identity, the minted
// session id and an issue timestamp, JSON-encoded and valid for one hour.
package pairing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erhanakin/sms-transfer-migration/internal/models"
)

const (
	PayloadTag      = "sms_transfer_pairing"
	ProtocolVersion = "1.0"

	// MaxAge is how long a payload stays accepted after issue.
	MaxAge = time.Hour
)

var (
	ErrMalformed = errors.New("malformed pairing payload")
	ErrExpired   = errors.New("pairing payload expired")
)

type Payload struct {
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	SessionID string            `json:"session_id"`
	Device    models.DeviceInfo `json:"device_info"`
	Timestamp time.Time         `json:"timestamp"`
}

// Encode produces the pairing token for the given identity and session.
// Deterministic given its inputs except for the issue timestamp.
func Encode(device models.DeviceInfo, sessionID string) (string, error) {
	p := Payload{
		Type:      PayloadTag,
		Version:   ProtocolVersion,
		SessionID: sessionID,
		Device:    device,
		Timestamp: time.Now(),
	}

	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode pairing payload: %w", err)
	}
	return string(b), nil
}

// Decode parses and validates a pairing token. It rejects a mismatched tag
// and missing required fields but does not check expiry; callers must also
// consult IsExpired before trusting the payload.
func Decode(raw string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if !p.IsValid() {
		return Payload{}, fmt.Errorf("%w: missing or mismatched fields", ErrMalformed)
	}

	return p, nil
}

// IsValid reports whether the payload carries the expected tag and every
// field a receiver needs to bootstrap a session.
func (p Payload) IsValid() bool {
	if p.Type != PayloadTag {
		return false
	}
	if p.Version == "" || p.SessionID == "" || p.Timestamp.IsZero() {
		return false
	}
	if p.Device.DeviceID == "" || p.Device.IPAddress == "" || p.Device.Port <= 0 {
		return false
	}
	return true
}

// IsExpired reports whether the payload is older than MaxAge. Expiry is a
// distinct rejection reason from malformed input.
func (p Payload) IsExpired() bool {
	return time.Since(p.Timestamp) > MaxAge
}
