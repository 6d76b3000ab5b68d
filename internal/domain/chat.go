package domain

import (
	"encoding/json"
	"fmt"
)

// Role identifies who a chat message belongs to.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
	// RolePending marks the transient "assistant is composing" placeholder.
	RolePending Role = "pending"
)

// PendingText is shown while a reply is outstanding.
const PendingText = "EarthMate is typing..."

// ChatMessage is one transcript entry.
type ChatMessage struct {
	Role Role   `json:"role"`
	Text string `json:"text"`

	// Raw holds a stored entry that did not have the message shape. It is
	// written back unchanged; Role and Text carry a best-effort reading.
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON never fails on valid JSON. It also accepts transcripts
// written by the browser client, which stored the role under "type" and
// used "typing" for the placeholder.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	*m = ChatMessage{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		m.Text = looseText(data)
		m.Raw = append(json.RawMessage(nil), data...)
		return nil
	}

	role, roleOK := stringField(fields, "role")
	if !roleOK {
		role, roleOK = stringField(fields, "type")
	}
	text, textOK := stringField(fields, "text")
	if !textOK {
		text = looseText(fields["text"])
	}
	if role == "typing" {
		role = string(RolePending)
	}
	m.Role = Role(role)
	m.Text = text
	if !roleOK || !textOK {
		m.Raw = append(json.RawMessage(nil), data...)
	}
	return nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, bool) {
	raw, ok := fields[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// looseText renders a JSON value for display: strings unquoted, null empty,
// anything else as written.
func looseText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	return string(raw)
}

// Transcript is the ordered chat history.
type Transcript []ChatMessage

// Clone returns a copy that shares nothing with t.
func (t Transcript) Clone() Transcript {
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

// HasPending reports whether a placeholder is present.
func (t Transcript) HasPending() bool {
	for _, m := range t {
		if m.Role == RolePending {
			return true
		}
	}
	return false
}

// WithoutPending returns t with every placeholder removed.
func (t Transcript) WithoutPending() Transcript {
	out := make(Transcript, 0, len(t))
	for _, m := range t {
		if m.Role != RolePending {
			out = append(out, m)
		}
	}
	return out
}

// Encode serializes t as a JSON array. Placeholders are never written and
// entries decoded from an unknown shape are written as they were read.
func (t Transcript) Encode() ([]byte, error) {
	kept := t.WithoutPending()
	out := make([]json.RawMessage, 0, len(kept))
	for _, m := range kept {
		if len(m.Raw) > 0 {
			out = append(out, m.Raw)
			continue
		}
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encode transcript: %w", err)
		}
		out = append(out, data)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode transcript: %w", err)
	}
	return data, nil
}

// DecodeTranscript parses a stored transcript. Only invalid JSON or a value
// that is not an array is an error. Entries are accepted as they are, except
// placeholders left behind by an interrupted request.
func DecodeTranscript(data []byte) (Transcript, error) {
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return t.WithoutPending(), nil
}

// ChatReply is the chat endpoint's answer: a reply or an error text.
type ChatReply struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}
