package infra

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/relaunchd/internal/domain"
)

const (
	stateDBName = "state.db"
)

// StateStore implements domain.StateStore using a SQLCipher encrypted
// SQLite database. Both the daemon and the CLI open it.
type StateStore struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewStateStore opens (or creates) the encrypted state database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewStateStore(dataDir string, key []byte) (*StateStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, stateDBName)
	keyHex := hex.EncodeToString(key)

	// Open with SQLCipher key as DSN parameter
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096&_busy_timeout=5000", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// Verify encryption works by running a query
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &StateStore{
		db:     db,
		dbPath: dbPath,
		now:    time.Now,
	}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// OpenStateStore loads or generates the key in dataDir and opens the store.
func OpenStateStore(dataDir string) (*StateStore, error) {
	key, err := EnsureKey(NewFileKeyProvider(dataDir), filepath.Join(dataDir, stateDBName))
	if err != nil {
		return nil, fmt.Errorf("failed to load encryption key: %w", err)
	}
	return NewStateStore(dataDir, key)
}

func (s *StateStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		pid INTEGER NOT NULL,
		target TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL DEFAULT 0,
		end_reason TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS stopped_targets (
		target TEXT PRIMARY KEY,
		stopped_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS relaunches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL DEFAULT '',
		target TEXT NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- sessions ---

// RegisterSession records a newly started daemon session.
func (s *StateStore) RegisterSession(rec domain.SessionRecord) error {
	started := rec.StartedAt
	if started.IsZero() {
		started = s.now()
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sessions (id, pid, target, started_at, ended_at, end_reason)
		VALUES (?, ?, ?, ?, 0, '')`,
		rec.ID, rec.PID, string(rec.Target), started.UnixNano(),
	)
	return err
}

// EndSession closes a session with a reason.
func (s *StateStore) EndSession(id, reason string) error {
	result, err := s.db.Exec(`UPDATE sessions SET ended_at = ?, end_reason = ? WHERE id = ?`,
		s.now().UnixNano(), reason, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("session %s not registered", id)
	}
	return nil
}

// ActiveSession returns the most recently started open session, or nil.
func (s *StateStore) ActiveSession() (*domain.SessionRecord, error) {
	var (
		rec     domain.SessionRecord
		target  string
		started int64
	)
	err := s.db.QueryRow(`
		SELECT id, pid, target, started_at FROM sessions
		WHERE ended_at = 0 ORDER BY started_at DESC LIMIT 1`).
		Scan(&rec.ID, &rec.PID, &target, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Target = domain.TargetIdentity(target)
	rec.StartedAt = time.Unix(0, started)
	return &rec, nil
}

// --- stopped flags ---

// MarkStopped sets the "explicitly stopped" flag for identity.
func (s *StateStore) MarkStopped(identity domain.TargetIdentity) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO stopped_targets (target, stopped_at) VALUES (?, ?)`,
		string(identity), s.now().UnixNano())
	return err
}

// ClearStopped removes the flag. Clearing an absent flag is not an error.
func (s *StateStore) ClearStopped(identity domain.TargetIdentity) error {
	_, err := s.db.Exec(`DELETE FROM stopped_targets WHERE target = ?`, string(identity))
	return err
}

// IsStopped reads the flag.
func (s *StateStore) IsStopped(identity domain.TargetIdentity) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM stopped_targets WHERE target = ?`, string(identity)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// --- relaunch history ---

// RecordRelaunch appends a relaunch attempt.
func (s *StateStore) RecordRelaunch(rec domain.RelaunchRecord) error {
	at := rec.At
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.Exec(`
		INSERT INTO relaunches (session_id, target, outcome, detail, at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.SessionID, string(rec.Target), string(rec.Outcome), rec.Detail, at.UnixNano(),
	)
	return err
}

// RecentRelaunches returns up to limit records, newest first.
func (s *StateStore) RecentRelaunches(limit int) ([]domain.RelaunchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT session_id, target, outcome, detail, at FROM relaunches
		ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.RelaunchRecord
	for rows.Next() {
		var (
			rec             domain.RelaunchRecord
			target, outcome string
			at              int64
		)
		if err := rows.Scan(&rec.SessionID, &target, &outcome, &rec.Detail, &at); err != nil {
			return nil, err
		}
		rec.Target = domain.TargetIdentity(target)
		rec.Outcome = domain.RelaunchOutcome(outcome)
		rec.At = time.Unix(0, at)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Path returns the database file path.
func (s *StateStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *StateStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure StateStore implements domain.StateStore.
var _ domain.StateStore = (*StateStore)(nil)
