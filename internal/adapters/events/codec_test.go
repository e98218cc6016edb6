package events

import (
	"testing"
	"time"

	"github.com/tjfontaine/canvass-pipeline/internal/core/domain"
)

func TestEncodeDecode(t *testing.T) {
	ev, err := domain.NewEvent("conv_1", &domain.ChatMessageReceived{ConversationID: "conv_1", Message: "hi"}, time.UnixMilli(1709323200000))
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}

	b, err := Encode(ev)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.ID != ev.ID || got.Type != ev.Type || !got.Time.Equal(ev.Time) {
		t.Errorf("Decode() = %+v, want %+v", got, ev)
	}
	p, err := got.Payload()
	if err != nil {
		t.Fatalf("Payload() error = %v", err)
	}
	if msg := p.(*domain.ChatMessageReceived); msg.Message != "hi" {
		t.Errorf("Message = %q", msg.Message)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `nope`},
		{"missing type", `{"id":"a","data":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.input)); err == nil {
				t.Error("Decode() expected error")
			}
		})
	}
}

func TestDecodeBatch(t *testing.T) {
	single := `{"id":"c_1","eventType":"BriefGenerated","subject":"chatbot/c","data":{"conversationId":"c","brief":"b"},"dataVersion":"1.0"}`

	evs, err := DecodeBatch([]byte(single))
	if err != nil || len(evs) != 1 {
		t.Fatalf("DecodeBatch(single) = %v, %v", evs, err)
	}

	evs, err = DecodeBatch([]byte("\n [" + single + "," + single + "]"))
	if err != nil || len(evs) != 2 {
		t.Fatalf("DecodeBatch(array) = %v, %v", evs, err)
	}

	for _, bad := range []string{`[]`, `[{"id":"x"}]`, `[`, ``} {
		if _, err := DecodeBatch([]byte(bad)); err == nil {
			t.Errorf("DecodeBatch(%q) expected error", bad)
		}
	}
}
