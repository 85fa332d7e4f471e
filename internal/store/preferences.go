package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const sessionIDKey = "session_id"

// Preference returns the stored value for key. ok is false when unset.
func (db *DB) Preference(key string) (value string, ok bool, err error) {
	err = db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetPreference stores value under key, replacing any previous value.
func (db *DB) SetPreference(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO preferences (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// PreferenceOrCreate returns the value under key, storing create() first if
// the key is unset. Concurrent callers all observe the first stored value.
func (db *DB) PreferenceOrCreate(key string, create func() string) (string, error) {
	now := time.Now().UnixMilli()
	if _, err := db.Exec(`
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO NOTHING`, key, create(), now); err != nil {
		return "", err
	}
	value, _, err := db.Preference(key)
	return value, err
}

// SessionID returns this install's sender identity, generating it on first use.
func (db *DB) SessionID() (string, error) {
	return db.PreferenceOrCreate(sessionIDKey, NewSessionID)
}

// NewSessionID returns a short readable id: "u" followed by 7 hex characters.
func NewSessionID() string {
	return "u" + strings.ReplaceAll(uuid.NewString(), "-", "")[:7]
}
