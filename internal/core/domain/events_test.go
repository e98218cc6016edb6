package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewEvent(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("PST", -8*3600))

	ev, err := NewEvent("conv_1", BriefGenerated{ConversationID: "conv_1", Brief: "b"}, now)
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}

	if want := "conv_1_" + "1709323200000"; ev.ID != want {
		t.Errorf("ID = %q, want %q", ev.ID, want)
	}
	if ev.Type != EventBriefGenerated {
		t.Errorf("Type = %q, want %q", ev.Type, EventBriefGenerated)
	}
	if ev.Subject != "chatbot/conv_1" {
		t.Errorf("Subject = %q", ev.Subject)
	}
	if ev.Time.Location() != time.UTC {
		t.Errorf("Time location = %v, want UTC", ev.Time.Location())
	}
	if ev.DataVersion != "1.0" {
		t.Errorf("DataVersion = %q", ev.DataVersion)
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, key := range []string{`"eventType":"BriefGenerated"`, `"eventTime":"2024-03-01T20:00:00Z"`, `"brief":"b"`} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("envelope %s missing %s", raw, key)
		}
	}
}

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name    string
		typ     EventType
		raw     string
		check   func(t *testing.T, p Payload)
		wantErr bool
	}{
		{
			name: "chat message",
			typ:  EventChatMessageReceived,
			raw:  `{"conversationId":"c1","message":"hi"}`,
			check: func(t *testing.T, p Payload) {
				m, ok := p.(*ChatMessageReceived)
				if !ok || m.ConversationID != "c1" || m.Message != "hi" {
					t.Errorf("got %#v", p)
				}
			},
		},
		{
			name: "client data keeps id key",
			typ:  EventClientDataCollected,
			raw:  `{"id":"c2","company":"Acme","role":null,"messages":[{"role":"user","content":"Acme"}]}`,
			check: func(t *testing.T, p Payload) {
				c, ok := p.(*ClientDataCollected)
				if !ok {
					t.Fatalf("got %T", p)
				}
				if c.ConversationID != "c2" || c.Company == nil || *c.Company != "Acme" || c.Role != nil {
					t.Errorf("got %#v", c.ClientData)
				}
				if len(c.Messages) != 1 || c.Messages[0].Role != RoleUser {
					t.Errorf("messages = %#v", c.Messages)
				}
			},
		},
		{
			name: "email",
			typ:  EventEmailProvided,
			raw:  `{"conversationId":"c3","email":"a@b.c","canvass":"x"}`,
			check: func(t *testing.T, p Payload) {
				e, ok := p.(*EmailProvided)
				if !ok || e.Email != "a@b.c" || e.Canvass != "x" {
					t.Errorf("got %#v", p)
				}
			},
		},
		{
			name: "unknown type keeps raw data",
			typ:  "UnknownType",
			raw:  `{"anything":1}`,
			check: func(t *testing.T, p Payload) {
				u, ok := p.(UnknownPayload)
				if !ok || u.Type != "UnknownType" || string(u.Raw) != `{"anything":1}` {
					t.Errorf("got %#v", p)
				}
			},
		},
		{
			name:    "malformed",
			typ:     EventBriefGenerated,
			raw:     `{"brief":`,
			wantErr: true,
		},
		{
			name:    "empty data for known type",
			typ:     EventCanvassGenerated,
			raw:     ``,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodePayload(tt.typ, json.RawMessage(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodePayload() error = %v", err)
			}
			tt.check(t, p)
		})
	}
}

func TestClientDataClone(t *testing.T) {
	company := "Acme"
	orig := NewClientData("c1")
	orig.Company = &company
	orig.Append(RoleUser, "Acme")

	cp := orig.Clone()
	*cp.Company = "Other"
	cp.Append(RoleAssistant, "ok")

	if *orig.Company != "Acme" {
		t.Errorf("clone shares field storage: %q", *orig.Company)
	}
	if len(orig.Messages) != 1 {
		t.Errorf("clone shares transcript: %d messages", len(orig.Messages))
	}
}

func TestFieldsOrder(t *testing.T) {
	want := []string{"company", "role", "audience", "uncertainties", "themes", "certainty", "documents"}
	for i, f := range Fields {
		if f.Name != want[i] {
			t.Errorf("Fields[%d] = %q, want %q", i, f.Name, want[i])
		}
	}

	c := NewClientData("c1")
	for i := range Fields {
		v := "v"
		Fields[i].Set(c, &v)
		if c.Answered() != i+1 {
			t.Fatalf("Answered() = %d after setting %d fields", c.Answered(), i+1)
		}
	}
}
