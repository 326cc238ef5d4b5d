package feed

// Insert-event payloads carry the raw fields of the newly appended row only.
// Denormalized author fields (email, role) are never included and must be
// re-fetched by id by the consumer.

// MessageInsert is the payload published on SubjectMessageInsert.
type MessageInsert struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	AuthorID  string `json:"author_id"`
	CreatedAt int64  `json:"created_at"` // unix milliseconds, server-assigned
}

// TypingInsert is the payload published on SubjectTypingInsert. There is no
// body beyond the author reference and creation timestamp; "stopped typing"
// has no event of its own and is inferred from silence by the receiver.
type TypingInsert struct {
	AuthorID  string `json:"author_id"`
	CreatedAt int64  `json:"created_at"` // unix milliseconds
}
