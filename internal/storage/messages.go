package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
)

// ErrConflict is returned by SaveMessages when the stored version no longer
// matches the version the caller loaded. The caller re-reads and retries.
var ErrConflict = errors.New("tracked messages modified concurrently")

type MessageRecord struct {
	Timestamp int64  `json:"timestamp"`
	ChannelID string `json:"channel_id"`
	MessageTS string `json:"message_ts"`
	Text      string `json:"message_text"`
}

// LoadMessages returns the tracked records for a user along with the version
// to pass back to SaveMessages. A missing or unreadable row yields an empty
// set and version 0, never an error.
func (s *Store) LoadMessages(ctx context.Context, userID string) ([]MessageRecord, int64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT messages, version FROM tracked_messages WHERE user_id = ?
	`, userID)

	var raw string
	var version int64
	if err := row.Scan(&raw, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, nil
		}
		return nil, 0, err
	}

	var records []MessageRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, version, nil
	}
	return records, version, nil
}

// SaveMessages replaces the user's record set, guarded by the version read at
// load time. Version 0 means the caller expects no existing row.
func (s *Store) SaveMessages(ctx context.Context, userID string, records []MessageRecord, lastUpdated int64, version int64) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}

	if version == 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO tracked_messages (user_id, messages, last_updated, version)
			VALUES (?, ?, ?, 1)
		`, userID, string(raw), lastUpdated)
		if err != nil && isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tracked_messages
		SET messages = ?, last_updated = ?, version = version + 1
		WHERE user_id = ? AND version = ?
	`, string(raw), lastUpdated, userID, version)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

// DeleteMessages removes the user's record wholesale. Deleting a missing key
// is not an error.
func (s *Store) DeleteMessages(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tracked_messages WHERE user_id = ?`, userID)
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
