// Package wire defines the peer sync messages, their payloads and the reply
// envelope. The set of message variants is closed; Decode maps anything
// unrecognized to Unknown so that the receiver can answer unknown_type.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// MessageType tags the envelope.
type MessageType string

// Recognized message types.
const (
	TypeWorkoutSession  MessageType = "workoutSession"
	TypeSyncRequest     MessageType = "syncRequest"
	TypeHealthKitStatus MessageType = "healthKitStatus"
)

// Message is the envelope exchanged between peers.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Status is the outcome carried by a Reply.
type Status string

// Reply statuses.
const (
	StatusSuccess     Status = "success"
	StatusReceived    Status = "received"
	StatusUnknownType Status = "unknown_type"
	StatusError       Status = "error"
)

// Reply answers one Message.
type Reply struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// OK reports whether the peer accepted the message.
func (r Reply) OK() bool {
	return r.Status == StatusSuccess || r.Status == StatusReceived
}

// ErrorReply builds a reply carrying err.
func ErrorReply(err error) Reply {
	return Reply{Status: StatusError, Error: err.Error()}
}

// HealthStatusPayload is the data of a healthKitStatus message.
type HealthStatusPayload struct {
	Enabled bool `json:"enabled"`
}

// Variant is one decoded message. The implementations below are the
// complete set.
type Variant interface {
	messageType() MessageType
}

// WorkoutSession carries one session with its sets.
type WorkoutSession struct {
	Session SessionPayload
}

// SyncRequest asks the receiver to run a sync cycle.
type SyncRequest struct{}

// HealthKitStatus reports the sender's health export setting.
type HealthKitStatus struct {
	Enabled bool
}

// Unknown is any message whose type is not recognized.
type Unknown struct {
	Type MessageType
}

func (WorkoutSession) messageType() MessageType  { return TypeWorkoutSession }
func (SyncRequest) messageType() MessageType     { return TypeSyncRequest }
func (HealthKitStatus) messageType() MessageType { return TypeHealthKitStatus }
func (u Unknown) messageType() MessageType       { return u.Type }

// NewWorkoutSession wraps p in an envelope.
func NewWorkoutSession(p SessionPayload) (Message, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return Message{}, fmt.Errorf("encoding session %s: %w", p.SessionID, err)
	}
	return Message{Type: TypeWorkoutSession, Data: data}, nil
}

// NewSyncRequest returns a syncRequest envelope.
func NewSyncRequest() Message {
	return Message{Type: TypeSyncRequest}
}

// NewHealthKitStatus returns a healthKitStatus envelope.
func NewHealthKitStatus(enabled bool) Message {
	data, _ := json.Marshal(HealthStatusPayload{Enabled: enabled})
	return Message{Type: TypeHealthKitStatus, Data: data}
}

// Decode validates m and returns its variant. An unrecognized type is not
// an error. A recognized type with malformed data returns an error wrapping
// types.ErrInvalidData.
func Decode(m Message) (Variant, error) {
	switch m.Type {
	case TypeWorkoutSession:
		if len(m.Data) == 0 {
			return nil, fmt.Errorf("workoutSession without data: %w", types.ErrInvalidData)
		}
		var p SessionPayload
		if err := json.Unmarshal(m.Data, &p); err != nil {
			return nil, fmt.Errorf("decoding workoutSession: %w: %v", types.ErrInvalidData, err)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return WorkoutSession{Session: p}, nil
	case TypeSyncRequest:
		return SyncRequest{}, nil
	case TypeHealthKitStatus:
		var p HealthStatusPayload
		if len(m.Data) > 0 {
			if err := json.Unmarshal(m.Data, &p); err != nil {
				return nil, fmt.Errorf("decoding healthKitStatus: %w: %v", types.ErrInvalidData, err)
			}
		}
		return HealthKitStatus{Enabled: p.Enabled}, nil
	default:
		return Unknown{Type: m.Type}, nil
	}
}
