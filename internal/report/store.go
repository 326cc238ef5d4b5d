// Package report provides PostgreSQL-backed storage for message reports.
// Each report captures who reported which chat message, the reason, and a
// snapshot of the recent room messages for moderator review.
package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// validReasons is the set of allowed reason values, matching the CHECK
// constraint on the message_reports table.
var validReasons = map[string]bool{
	"harassment": true,
	"spam":       true,
	"explicit":   true,
	"other":      true,
}

// Store manages message reports in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Report represents a single message report to be persisted.
type Report struct {
	ID         string
	ReporterID string
	MessageID  string
	Reason     string
	Snapshot   []SnapshotEntry // recent room messages at report time
	CreatedAt  time.Time
}

// SnapshotEntry is one message in the room snapshot attached to a report.
type SnapshotEntry struct {
	AuthorID string `json:"author_id"`
	Content  string `json:"content"`
	Ts       int64  `json:"ts"`
}

// NewStore creates a new report store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ValidReason reports whether the reason value is accepted.
func ValidReason(reason string) bool {
	return validReasons[reason]
}

// Create inserts a message report into PostgreSQL. The snapshot is
// marshalled to JSONB. The reason is validated against the allowed set
// before insertion.
func (s *Store) Create(ctx context.Context, report *Report) error {
	if !validReasons[report.Reason] {
		return fmt.Errorf("report: invalid reason %q", report.Reason)
	}

	var snapshotJSON []byte
	if len(report.Snapshot) > 0 {
		var err error
		snapshotJSON, err = json.Marshal(report.Snapshot)
		if err != nil {
			return fmt.Errorf("report: marshal snapshot: %w", err)
		}
	}

	const query = `
		INSERT INTO message_reports (reporter_id, message_id, reason, snapshot)
		VALUES ($1, $2, $3, $4)`

	_, err := s.db.ExecContext(ctx, query,
		report.ReporterID,
		report.MessageID,
		report.Reason,
		snapshotJSON,
	)
	if err != nil {
		return fmt.Errorf("report: insert: %w", err)
	}
	return nil
}

// ListRecent returns the most recent reports for the admin review screen,
// newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Report, error) {
	const query = `
		SELECT id, reporter_id, message_id, reason, COALESCE(snapshot, 'null'), created_at
		FROM message_reports
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("report: list recent: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var r Report
		var snapshotJSON []byte
		if err := rows.Scan(&r.ID, &r.ReporterID, &r.MessageID, &r.Reason, &snapshotJSON, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("report: scan: %w", err)
		}
		if len(snapshotJSON) > 0 {
			if err := json.Unmarshal(snapshotJSON, &r.Snapshot); err != nil {
				return nil, fmt.Errorf("report: unmarshal snapshot: %w", err)
			}
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("report: list recent: %w", err)
	}
	return reports, nil
}

// CountRecent returns the number of reports filed against a message's
// author within the given time window, for escalation decisions.
func (s *Store) CountRecent(ctx context.Context, authorID string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM message_reports r
		JOIN chat_messages m ON m.id = r.message_id
		WHERE m.author_id = $1
		  AND r.created_at >= NOW() - $2::interval`

	var count int
	err := s.db.QueryRowContext(ctx, query, authorID, window.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("report: count recent: %w", err)
	}
	return count, nil
}
