package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Store persists chat messages in PostgreSQL. Enrichment (the author
// email/role join) happens at read time; the messages table itself holds
// only the raw row.
type Store struct {
	db *sql.DB
}

// NewStore creates a message store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert appends a message to the log. The database assigns id and
// created_at; the returned Message carries the raw fields only — callers
// needing the author block should go through GetByID.
func (s *Store) Insert(ctx context.Context, authorID, content string) (Message, error) {
	var m Message
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO chat_messages (author_id, content)
		VALUES ($1, $2)
		RETURNING id, content, author_id, created_at`,
		authorID, content,
	).Scan(&m.ID, &m.Content, &m.AuthorID, &m.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("chat: insert message: %w", err)
	}
	return m, nil
}

// GetByID fetches a message joined with its author's email and role.
func (s *Store) GetByID(ctx context.Context, id string) (Message, error) {
	var m Message
	err := s.db.QueryRowContext(ctx, `
		SELECT m.id, m.content, m.author_id, m.created_at, u.email, u.role
		FROM chat_messages m
		JOIN users u ON u.id = m.author_id
		WHERE m.id = $1`,
		id,
	).Scan(&m.ID, &m.Content, &m.AuthorID, &m.CreatedAt, &m.Author.Email, &m.Author.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("chat: get message %s: %w", id, err)
	}
	return m, nil
}

// ListRecent returns up to limit enriched messages, newest first. The
// relay reverses the order before handing them to callers.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.content, m.author_id, m.created_at, u.email, u.role
		FROM chat_messages m
		JOIN users u ON u.id = m.author_id
		ORDER BY m.created_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("chat: list messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Content, &m.AuthorID, &m.CreatedAt,
			&m.Author.Email, &m.Author.Role); err != nil {
			return nil, fmt.Errorf("chat: scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chat: list messages: %w", err)
	}
	return msgs, nil
}

// Delete hard-deletes a message by id. There is no tombstone.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("chat: delete message %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("chat: delete message %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AuthorOf returns the author id of a message, for ownership checks before
// deletion.
func (s *Store) AuthorOf(ctx context.Context, id string) (string, error) {
	var authorID string
	err := s.db.QueryRowContext(ctx,
		`SELECT author_id FROM chat_messages WHERE id = $1`, id,
	).Scan(&authorID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("chat: author of %s: %w", id, err)
	}
	return authorID, nil
}
