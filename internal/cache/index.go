package cache

import (
	"database/sql"
	"time"

	"github.com/caiofmp/tgram/internal/store"
)

// UpsertEntry inserts or updates an index row for a file.
func (db *DB) UpsertEntry(a *store.Attachment) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO cache_entries (file_id, chat_id, path, size, status, last_access, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			chat_id = excluded.chat_id,
			path = excluded.path,
			size = excluded.size,
			status = excluded.status,
			last_access = excluded.last_access`,
		a.FileID, a.ChatID, a.LocalPath, a.Size, string(a.Status), a.LastAccess.UnixMilli(), now)
	return err
}

// GetEntry returns the index row for a file, or nil when unknown.
func (db *DB) GetEntry(fileID int64) (*store.Attachment, error) {
	var a store.Attachment
	var status string
	var lastAccess int64
	err := db.QueryRow(`
		SELECT file_id, chat_id, path, size, status, last_access
		FROM cache_entries WHERE file_id = ?`, fileID).
		Scan(&a.FileID, &a.ChatID, &a.LocalPath, &a.Size, &status, &lastAccess)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Status = store.FileStatus(status)
	a.LastAccess = time.UnixMilli(lastAccess)
	return &a, nil
}

// TouchEntry refreshes a file's last-access timestamp.
func (db *DB) TouchEntry(fileID int64, at time.Time) error {
	_, err := db.Exec(`UPDATE cache_entries SET last_access = ? WHERE file_id = ?`,
		at.UnixMilli(), fileID)
	return err
}

// SetEntryStatus updates only the transfer status of a file.
func (db *DB) SetEntryStatus(fileID int64, status store.FileStatus) error {
	_, err := db.Exec(`UPDATE cache_entries SET status = ? WHERE file_id = ?`,
		string(status), fileID)
	return err
}

// DeleteEntry removes a file's index row.
func (db *DB) DeleteEntry(fileID int64) error {
	_, err := db.Exec(`DELETE FROM cache_entries WHERE file_id = ?`, fileID)
	return err
}

// ListAccessedBefore returns ready entries whose last access is older than
// the cutoff. Entries mid-transfer are never returned.
func (db *DB) ListAccessedBefore(cutoff time.Time) ([]store.Attachment, error) {
	rows, err := db.Query(`
		SELECT file_id, chat_id, path, size, status, last_access
		FROM cache_entries
		WHERE last_access < ? AND status != 'fetching'
		ORDER BY last_access ASC`, cutoff.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []store.Attachment
	for rows.Next() {
		var a store.Attachment
		var status string
		var lastAccess int64
		if err := rows.Scan(&a.FileID, &a.ChatID, &a.LocalPath, &a.Size, &status, &lastAccess); err != nil {
			return nil, err
		}
		a.Status = store.FileStatus(status)
		a.LastAccess = time.UnixMilli(lastAccess)
		out = append(out, a)
	}
	return out, rows.Err()
}
