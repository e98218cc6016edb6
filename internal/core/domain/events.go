package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a pipeline event. Matching is exact and case-sensitive.
type EventType string

const (
	EventChatMessageReceived EventType = "ChatMessageReceived"
	EventClientDataCollected EventType = "ClientDataCollected"
	EventBriefGenerated      EventType = "BriefGenerated"
	EventCanvassGenerated    EventType = "CanvassGenerated"
	EventEmailProvided       EventType = "EmailProvided"
)

// DataVersion is the schema version stamped on every published event.
const DataVersion = "1.0"

// Event is the envelope moved between stages. Events are immutable once published.
type Event struct {
	ID          string          `json:"id"`
	Type        EventType       `json:"eventType"`
	Subject     string          `json:"subject"`
	Time        time.Time       `json:"eventTime"`
	Data        json.RawMessage `json:"data"`
	DataVersion string          `json:"dataVersion"`
}

// NewEvent builds an envelope for a conversation. The id is derived from the
// conversation id and the event time in unix milliseconds.
func NewEvent(conversationID string, payload Payload, now time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", payload.EventType(), err)
	}

	now = now.UTC()
	return Event{
		ID:          fmt.Sprintf("%s_%d", conversationID, now.UnixMilli()),
		Type:        payload.EventType(),
		Subject:     Subject(conversationID),
		Time:        now,
		Data:        data,
		DataVersion: DataVersion,
	}, nil
}

// Subject returns the event subject for a conversation.
func Subject(conversationID string) string {
	return "chatbot/" + conversationID
}

// Payload decodes the event data into the variant matching its type.
func (e Event) Payload() (Payload, error) {
	return DecodePayload(e.Type, e.Data)
}
