// Package events holds the wire codec shared by the event transports.
package events

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tjfontaine/canvass-pipeline/internal/core/domain"
)

// Encode serializes an event envelope for the wire.
func Encode(event domain.Event) ([]byte, error) {
	b, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	return b, nil
}

// Decode parses a wire envelope. The event type is mandatory; the data is
// validated later by the stage that owns the type.
func Decode(b []byte) (domain.Event, error) {
	var event domain.Event
	if err := json.Unmarshal(b, &event); err != nil {
		return domain.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if event.Type == "" {
		return domain.Event{}, fmt.Errorf("decode event %q: missing eventType", event.ID)
	}
	return event, nil
}

// DecodeBatch accepts a single envelope or a JSON array of envelopes.
func DecodeBatch(b []byte) ([]domain.Event, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		ev, err := Decode(trimmed)
		if err != nil {
			return nil, err
		}
		return []domain.Event{ev}, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, fmt.Errorf("decode event batch: %w", err)
	}
	if len(raws) == 0 {
		return nil, fmt.Errorf("decode event batch: empty")
	}

	out := make([]domain.Event, 0, len(raws))
	for _, raw := range raws {
		ev, err := Decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}
