package importer

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// StateDB tracks which export files have been imported, per user, so a file
// is never imported twice even when it is renamed.
type StateDB struct {
	db *sql.DB
}

// OpenStateDB opens (or creates) the SQLite state database at path.
func OpenStateDB(path string) (*StateDB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS imported_files (
		user_id     INTEGER NOT NULL,
		hash        TEXT NOT NULL,
		path        TEXT NOT NULL,
		size        INTEGER NOT NULL,
		sessions    INTEGER NOT NULL DEFAULT 0,
		imported_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, hash)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating state table: %w", err)
	}

	return &StateDB{db: db}, nil
}

// IsImported checks if a file with the same content was already imported for the user.
func (s *StateDB) IsImported(userID int, hash string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM imported_files WHERE user_id = ? AND hash = ?`,
		userID, hash,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking import state: %w", err)
	}
	return count > 0, nil
}

// MarkImported records that a file was successfully imported.
func (s *StateDB) MarkImported(userID int, relPath string, size int64, hash string, sessions int) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO imported_files (user_id, hash, path, size, sessions) VALUES (?, ?, ?, ?, ?)`,
		userID, hash, relPath, size, sessions,
	)
	if err != nil {
		return fmt.Errorf("recording import of %s: %w", relPath, err)
	}
	return nil
}

// Close closes the state database.
func (s *StateDB) Close() error {
	return s.db.Close()
}

// HashFile computes the SHA-256 hash of a file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
