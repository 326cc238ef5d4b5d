// Package protocol defines the JSON frames exchanged over the chat
// WebSocket. Every frame carries a "type" discriminator; payload fields vary
// per type.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeMessage = "message"
	TypeTyping  = "typing"
	TypeDelete  = "delete"
	TypeReport  = "report"
	TypePing    = "ping"
)

// Server -> Client message types.
const (
	TypeServerMessage  = "message"
	TypeMessageDeleted = "message_deleted"
	TypeTypingUsers    = "typing_users"
	TypeHistory        = "history"
	TypeRateLimited    = "rate_limited"
	TypeMuted          = "muted"
	TypeError          = "error"
	TypePong           = "pong"
)

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope carries the type discriminator plus the untouched raw bytes so
// the payload can be decoded into its concrete struct in a second pass.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps a copy of the raw frame and pulls out only the type
// field.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// ChatMsg is a text message sent by the client to the shared room.
type ChatMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TypingMsg signals that the client's compose buffer is non-empty. There is
// no explicit stop signal; absence of further typing messages means stopped.
type TypingMsg struct {
	Type string `json:"type"`
}

// DeleteMsg asks the server to remove a previously sent message.
type DeleteMsg struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
}

// ReportMsg flags a message for moderator review.
type ReportMsg struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Reason    string `json:"reason"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// ServerChatMsg is a chat message relayed to the client with its author
// block resolved.
type ServerChatMsg struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Text        string `json:"text"`
	AuthorID    string `json:"author_id"`
	AuthorEmail string `json:"author_email"`
	AuthorRole  string `json:"author_role"`
	Ts          int64  `json:"ts"`
}

// MessageDeletedMsg tells clients to drop a message from their view.
type MessageDeletedMsg struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
}

// TypingUsersMsg carries the full set of users currently typing. Clients
// replace their typing indicator state with this list.
type TypingUsersMsg struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// HistoryMsg carries the recent message window sent once after connect,
// oldest first.
type HistoryMsg struct {
	Type     string          `json:"type"`
	Messages []ServerChatMsg `json:"messages"`
}

// RateLimitedMsg is sent by the server when the client has been rate-limited.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"`
}

// MutedMsg is sent by the server when the client's send was refused because
// of an active mute.
type MutedMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage decodes a raw frame into its concrete client struct.
// Unknown and server-only types are errors.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeMessage:
		var m ChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeDelete:
		var m DeleteMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReport:
		var m ReportMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage encodes a server payload with the "type" key set to
// msgType, regardless of what the struct's Type field held.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
