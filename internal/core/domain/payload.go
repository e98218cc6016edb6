package domain

import (
	"encoding/json"
	"fmt"
)

// Payload is the typed data carried by an Event.
type Payload interface {
	EventType() EventType
}

// ChatMessageReceived carries one raw chat message from the front door.
type ChatMessageReceived struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

// ClientDataCollected carries the full approved questionnaire.
type ClientDataCollected struct {
	ClientData
}

// BriefGenerated carries the brief produced from collected client data.
type BriefGenerated struct {
	ConversationID string `json:"conversationId"`
	Brief          string `json:"brief"`
}

// CanvassGenerated carries the canvass produced from a brief.
type CanvassGenerated struct {
	ConversationID string `json:"conversationId"`
	Canvass        string `json:"canvass"`
}

// EmailProvided carries the delivery address for a finished canvass.
type EmailProvided struct {
	ConversationID string `json:"conversationId"`
	Email          string `json:"email"`
	Canvass        string `json:"canvass"`
}

// UnknownPayload keeps the raw data of event types this build does not know.
type UnknownPayload struct {
	Type EventType
	Raw  json.RawMessage
}

func (ChatMessageReceived) EventType() EventType { return EventChatMessageReceived }
func (ClientDataCollected) EventType() EventType { return EventClientDataCollected }
func (BriefGenerated) EventType() EventType      { return EventBriefGenerated }
func (CanvassGenerated) EventType() EventType    { return EventCanvassGenerated }
func (EmailProvided) EventType() EventType       { return EventEmailProvided }
func (p UnknownPayload) EventType() EventType    { return p.Type }

// MarshalJSON writes the raw data back unchanged.
func (p UnknownPayload) MarshalJSON() ([]byte, error) {
	if len(p.Raw) == 0 {
		return []byte("null"), nil
	}
	return p.Raw, nil
}

// DecodePayload decodes raw event data according to the event type.
// Types without a known shape decode to UnknownPayload.
func DecodePayload(t EventType, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch t {
	case EventChatMessageReceived:
		p = &ChatMessageReceived{}
	case EventClientDataCollected:
		p = &ClientDataCollected{}
	case EventBriefGenerated:
		p = &BriefGenerated{}
	case EventCanvassGenerated:
		p = &CanvassGenerated{}
	case EventEmailProvided:
		p = &EmailProvided{}
	default:
		return UnknownPayload{Type: t, Raw: raw}, nil
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("decode %s payload: empty data", t)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return p, nil
}
