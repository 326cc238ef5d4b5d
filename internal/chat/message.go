// Package chat implements the shared room's message log: a Postgres-backed
// append-only store, and the relay that mirrors it into local state by
// consuming insert-events from the change feed and enriching each one with
// the author's denormalized fields.
package chat

import (
	"errors"
	"time"
)

// Placeholder author fields used when enrichment fails. A message is never
// dropped because the author lookup failed; it is delivered promptly with
// these values instead.
const (
	PlaceholderEmail = "Desconocido"
	PlaceholderRole  = "usuario"
)

var (
	// ErrEmptyContent is returned when a message is blank after trimming.
	ErrEmptyContent = errors.New("chat: empty message content")

	// ErrUnauthenticated is returned when an authenticated action is
	// attempted without an active session.
	ErrUnauthenticated = errors.New("chat: no active session")

	// ErrMuted is returned when a muted user attempts to send.
	ErrMuted = errors.New("chat: user is muted")

	// ErrBlockedContent is returned when a message is refused by the
	// moderation filter.
	ErrBlockedContent = errors.New("chat: content blocked by moderation")

	// ErrRateLimited is returned when a user exceeds the send rate limit.
	ErrRateLimited = errors.New("chat: rate limited")

	// ErrForbidden is returned when a user tries to delete a message they
	// do not own (and is not an admin).
	ErrForbidden = errors.New("chat: not the message author")

	// ErrNotFound is returned when a message id does not exist.
	ErrNotFound = errors.New("chat: message not found")

	// ErrAlreadySubscribed is returned when Subscribe is called on a relay
	// that already has an active subscription.
	ErrAlreadySubscribed = errors.New("chat: relay already subscribed")
)

// Author is the denormalized author block attached to an enriched message.
type Author struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Message is a single entry in the room's append-only log. The server
// assigns ID and CreatedAt on insert; a message is immutable afterwards
// except for hard deletion.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
	Author    Author    `json:"author"`
}
