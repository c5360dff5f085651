package types

// Participant <-> Participant (one data channel message per event)
//
// CHAT:
//   id: string
//   sender: string
//   text: string
//   timestamp: number (unix ms)
//   isSystem: boolean (optional)
//
// STATE_UPDATE:
//   stage: GameStage
//   version: { counter: number, origin: string }
//
// SEQUENCE_UPDATE:
//   steps: string[] // completed step ids, in order
//   version: { counter: number, origin: string }
//
// SYNC_REQUEST: null
//
// SYNC_RESPONSE:
//   stage: GameStage
//   sequenceSteps: string[]
//   stageVersion: { counter: number, origin: string }
//   stepsVersion: { counter: number, origin: string }

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DoyleJ11/naval-sim/internal/engine"
)

var ErrUnknownEvent = errors.New("unknown event type")
var ErrMalformedEvent = errors.New("malformed event")

type EventType string

const (
	TypeChat           EventType = "CHAT"
	TypeStateUpdate    EventType = "STATE_UPDATE"
	TypeSequenceUpdate EventType = "SEQUENCE_UPDATE"
	TypeSyncRequest    EventType = "SYNC_REQUEST"
	TypeSyncResponse   EventType = "SYNC_RESPONSE"
)

// Event is one of Chat, StateUpdate, SequenceUpdate, SyncRequest or SyncResponse.
type Event interface {
	Type() EventType
	isEvent()
}

type Chat struct {
	ID        string `json:"id" validate:"required"`
	Sender    string `json:"sender" validate:"required"`
	Text      string `json:"text" validate:"required"`
	Timestamp int64  `json:"timestamp" validate:"gte=0"`
	IsSystem  bool   `json:"isSystem,omitempty"`
}

type StateUpdate struct {
	Stage   engine.Stage   `json:"stage" validate:"stage"`
	Version engine.Version `json:"version"`
}

type SequenceUpdate struct {
	Steps   []string       `json:"steps" validate:"steps"`
	Version engine.Version `json:"version"`
}

type SyncRequest struct{}

type SyncResponse struct {
	Stage         engine.Stage   `json:"stage" validate:"stage"`
	SequenceSteps []string       `json:"sequenceSteps" validate:"steps"`
	StageVersion  engine.Version `json:"stageVersion"`
	StepsVersion  engine.Version `json:"stepsVersion"`
}

func (Chat) Type() EventType           { return TypeChat }
func (StateUpdate) Type() EventType    { return TypeStateUpdate }
func (SequenceUpdate) Type() EventType { return TypeSequenceUpdate }
func (SyncRequest) Type() EventType    { return TypeSyncRequest }
func (SyncResponse) Type() EventType   { return TypeSyncResponse }

func (Chat) isEvent()           {}
func (StateUpdate) isEvent()    {}
func (SequenceUpdate) isEvent() {}
func (SyncRequest) isEvent()    {}
func (SyncResponse) isEvent()   {}

type envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func Encode(e Event) ([]byte, error) {
	var payload any = e
	if _, ok := e.(SyncRequest); ok {
		payload = nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", e.Type(), err)
	}
	return json.Marshal(envelope{Type: e.Type(), Payload: raw})
}

// Decode parses one wire event and validates its payload against its tag.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch env.Type {
	case TypeChat:
		return asEvent(decodePayload[Chat](env))
	case TypeStateUpdate:
		return asEvent(decodePayload[StateUpdate](env))
	case TypeSequenceUpdate:
		ev, err := decodePayload[SequenceUpdate](env)
		if err != nil {
			return nil, err
		}
		if ev.Steps == nil {
			ev.Steps = []string{}
		}
		return ev, nil
	case TypeSyncRequest:
		return SyncRequest{}, nil
	case TypeSyncResponse:
		ev, err := decodePayload[SyncResponse](env)
		if err != nil {
			return nil, err
		}
		if ev.SequenceSteps == nil {
			ev.SequenceSteps = []string{}
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

func asEvent[T Event](ev T, err error) (Event, error) {
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func decodePayload[T Event](env envelope) (T, error) {
	var payload T
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return payload, fmt.Errorf("%w: %s without payload", ErrMalformedEvent, env.Type)
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return payload, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Type, err)
	}
	if err := validate.Struct(payload); err != nil {
		return payload, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Type, err)
	}
	return payload, nil
}
