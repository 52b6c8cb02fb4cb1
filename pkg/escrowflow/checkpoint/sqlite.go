package checkpoint

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists checkpoints to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens or creates a journal database.
// The path should be a file path (e.g., "./escrows.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS escrow_checkpoints (
			escrow_id TEXT NOT NULL,
			tx_hash TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			timestamp TEXT NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (escrow_id, tx_hash)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_escrow_checkpoints_sequence
		ON escrow_checkpoints(escrow_id, sequence)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(escrowID, txHash string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if data == nil {
		data = []byte{}
	}
	_, err := s.db.Exec(`
		INSERT INTO escrow_checkpoints (escrow_id, tx_hash, sequence, timestamp, data)
		VALUES (
			?, ?,
			COALESCE((SELECT MAX(sequence) FROM escrow_checkpoints WHERE escrow_id = ?), 0) + 1,
			?, ?
		)
		ON CONFLICT(escrow_id, tx_hash) DO UPDATE SET
			sequence = (SELECT MAX(sequence) FROM escrow_checkpoints WHERE escrow_id = excluded.escrow_id) + 1,
			timestamp = excluded.timestamp,
			data = excluded.data
	`, escrowID, txHash, escrowID, time.Now().UTC().Format(time.RFC3339Nano), data)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(escrowID, txHash string) ([]byte, error) {
	return s.queryData(`
		SELECT data FROM escrow_checkpoints
		WHERE escrow_id = ? AND tx_hash = ?
	`, escrowID, txHash)
}

// Latest implements Store.
func (s *SQLiteStore) Latest(escrowID string) ([]byte, error) {
	return s.queryData(`
		SELECT data FROM escrow_checkpoints
		WHERE escrow_id = ?
		ORDER BY sequence DESC
		LIMIT 1
	`, escrowID)
}

func (s *SQLiteStore) queryData(query string, args ...any) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var data []byte
	err := s.db.QueryRow(query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return data, nil
}

// List implements Store.
func (s *SQLiteStore) List(escrowID string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT tx_hash, sequence, timestamp, LENGTH(data)
		FROM escrow_checkpoints
		WHERE escrow_id = ?
		ORDER BY sequence
	`, escrowID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var info Info
		var timestamp string
		if err := rows.Scan(&info.TxHash, &info.Sequence, &timestamp, &info.Size); err != nil {
			return nil, fmt.Errorf("scan checkpoint info: %w", err)
		}
		info.EscrowID = escrowID
		info.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return infos, nil
}

// Escrows implements Store.
func (s *SQLiteStore) Escrows() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`SELECT DISTINCT escrow_id FROM escrow_checkpoints ORDER BY escrow_id`)
	if err != nil {
		return nil, fmt.Errorf("list escrows: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan escrow id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate escrows: %w", err)
	}
	return ids, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(escrowID, txHash string) error {
	return s.exec("delete checkpoint", `
		DELETE FROM escrow_checkpoints
		WHERE escrow_id = ? AND tx_hash = ?
	`, escrowID, txHash)
}

// DeleteEscrow implements Store.
func (s *SQLiteStore) DeleteEscrow(escrowID string) error {
	return s.exec("delete escrow checkpoints", `
		DELETE FROM escrow_checkpoints WHERE escrow_id = ?
	`, escrowID)
}

func (s *SQLiteStore) exec(op, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
