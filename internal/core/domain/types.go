package domain

import "time"

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
)

// Message is a single transcript entry. Messages are never edited once appended.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ClientData is the per-conversation aggregate. It is checked out from the
// conversation store at the start of a turn and written back at the end.
type ClientData struct {
	ConversationID string `json:"id"`

	Company       *string `json:"company"`
	Role          *string `json:"role"`
	Audience      *string `json:"audience"`
	Uncertainties *string `json:"uncertainties"`
	Themes        *string `json:"themes"`
	Certainty     *string `json:"certainty"`
	Documents     *string `json:"documents"`

	Messages []Message `json:"messages"`

	// Approved is set once the user approves the recap. The questionnaire is
	// terminal from then on.
	Approved bool `json:"approved,omitempty"`

	// Version is the optimistic concurrency token. Zero means the document
	// has never been stored.
	Version   int64     `json:"_version"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// NewClientData returns a fresh aggregate with every field unset.
func NewClientData(conversationID string) *ClientData {
	return &ClientData{
		ConversationID: conversationID,
		Messages:       []Message{},
	}
}

// Append adds a message to the end of the transcript.
func (c *ClientData) Append(role Role, content string) {
	c.Messages = append(c.Messages, Message{Role: role, Content: content})
}

// Answered counts the fields that hold a value.
func (c *ClientData) Answered() int {
	n := 0
	for _, f := range Fields {
		if f.Get(c) != nil {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so callers can mutate it without touching the original.
func (c *ClientData) Clone() *ClientData {
	if c == nil {
		return nil
	}
	out := *c
	for _, f := range Fields {
		if v := f.Get(c); v != nil {
			s := *v
			f.Set(&out, &s)
		}
	}
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return &out
}
