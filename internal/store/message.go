package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

const messageColumns = `id, sender_id, text, timestamp, status, is_mine`

// Insert stores a new message and returns its id. A second message with the
// same sender and timestamp is rejected with ErrDuplicate.
func (db *DB) Insert(m *Message) (int64, error) {
	if !m.Status.Valid() {
		return 0, fmt.Errorf("insert message: unknown status %q", m.Status)
	}
	res, err := db.Exec(`
		INSERT INTO messages (sender_id, text, timestamp, status, is_mine, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.SenderID, m.Text, m.Timestamp, m.Status, m.IsMine, time.Now().UnixMilli())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	m.ID = id
	return id, nil
}

// InsertIfAbsent stores m unless a message with the same sender and timestamp
// exists. inserted is false when the row was already there.
func (db *DB) InsertIfAbsent(m *Message) (inserted bool, err error) {
	if !m.Status.Valid() {
		return false, fmt.Errorf("insert message: unknown status %q", m.Status)
	}
	res, err := db.Exec(`
		INSERT INTO messages (sender_id, text, timestamp, status, is_mine, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(sender_id, timestamp) DO NOTHING`,
		m.SenderID, m.Text, m.Timestamp, m.Status, m.IsMine, time.Now().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateStatus sets the status of message id. A SENT message is final and a
// message never goes back to PENDING; both yield ErrInvalidTransition.
// Setting the status a message already has is a no-op.
func (db *DB) UpdateStatus(id int64, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("update status: unknown status %q", status)
	}
	res, err := db.Exec(`
		UPDATE messages SET status = ?
		WHERE id = ? AND status <> 'SENT' AND (? <> 'PENDING' OR status = 'PENDING')`,
		status, id, status)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	current, err := db.Get(id)
	if err != nil {
		return err
	}
	switch {
	case current == nil:
		return ErrNotFound
	case current.Status == status:
		return nil
	default:
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, status)
	}
}

// Get returns a single message by id, or nil if it does not exist.
func (db *DB) Get(id int64) (*Message, error) {
	var m Message
	err := db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id).
		Scan(&m.ID, &m.SenderID, &m.Text, &m.Timestamp, &m.Status, &m.IsMine)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListByStatus returns the messages in the given status in insertion order.
func (db *DB) ListByStatus(status Status) ([]Message, error) {
	return db.queryMessages(`SELECT `+messageColumns+` FROM messages WHERE status = ? ORDER BY id ASC`, status)
}

// ListAll returns every message ordered for display: timestamp, then insertion order.
func (db *DB) ListAll() ([]Message, error) {
	return db.queryMessages(`SELECT ` + messageColumns + ` FROM messages ORDER BY timestamp ASC, id ASC`)
}

// Exists reports whether a message with this sender and timestamp is stored.
func (db *DB) Exists(senderID string, timestamp int64) (bool, error) {
	var exists bool
	err := db.QueryRow(`SELECT EXISTS(SELECT 1 FROM messages WHERE sender_id = ? AND timestamp = ?)`,
		senderID, timestamp).Scan(&exists)
	return exists, err
}

// Delete removes message id. Deleting a missing id returns ErrNotFound.
func (db *DB) Delete(id int64) error {
	res, err := db.Exec(`DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

func (db *DB) queryMessages(query string, args ...any) ([]Message, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.Text, &m.Timestamp, &m.Status, &m.IsMine); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
