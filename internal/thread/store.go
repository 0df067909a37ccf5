package thread

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS threads (
	id TEXT PRIMARY KEY,
	parent_id TEXT DEFAULT '',
	created_at DATETIME NOT NULL,
	last_activity DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_threads_activity ON threads(last_activity DESC);

CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	state_gz BLOB NOT NULL,
	committed BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (thread_id, seq)
);

CREATE TABLE IF NOT EXISTS decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	call_id TEXT NOT NULL,
	tool TEXT NOT NULL,
	effect TEXT NOT NULL,
	reason TEXT DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_decisions_call ON decisions(call_id);
`

// Store persists threads and checkpoints in sqlite. Checkpoint commits
// are transactional: a crash mid-append leaves the prior latest
// checkpoint as the visible state, never a torn write. Writes for one
// thread are serialized by the append transaction; readers only ever see
// committed rows.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the thread database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open thread db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateThread inserts a new thread and returns its id. parentID is
// empty for fresh threads and set for branch/compress products.
func (s *Store) CreateThread(parentID string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO threads (id, parent_id, created_at, last_activity)
		VALUES (?, ?, ?, ?)
	`, id, parentID, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return id, nil
}

// AppendCheckpoint commits cp as the next checkpoint of its thread.
// Returns ErrConflict unless cp.Seq is exactly the last committed
// sequence plus one, and ErrNotFound for an unknown thread. The row is
// inserted uncommitted and flipped inside the same transaction so
// readers can never observe a partial write.
func (s *Store) AppendCheckpoint(cp *Checkpoint) error {
	blob, err := encodeState(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM threads WHERE id = ?`, cp.ThreadID).Scan(&exists); err != nil {
		return fmt.Errorf("check thread: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("thread %s: %w", cp.ThreadID, ErrNotFound)
	}

	var last int64
	if err := tx.QueryRow(`
		SELECT COALESCE(MAX(seq), 0) FROM checkpoints
		WHERE thread_id = ? AND committed = 1
	`, cp.ThreadID).Scan(&last); err != nil {
		return fmt.Errorf("read last sequence: %w", err)
	}
	if cp.Seq != last+1 {
		return fmt.Errorf("append seq %d after %d: %w", cp.Seq, last, ErrConflict)
	}

	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	if _, err := tx.Exec(`
		INSERT INTO checkpoints (thread_id, seq, state_gz, committed, created_at)
		VALUES (?, ?, ?, 0, ?)
	`, cp.ThreadID, cp.Seq, blob, cp.CreatedAt.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE checkpoints SET committed = 1 WHERE thread_id = ? AND seq = ?
	`, cp.ThreadID, cp.Seq); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE threads SET last_activity = ? WHERE id = ?
	`, now.Format(time.RFC3339Nano), cp.ThreadID); err != nil {
		return fmt.Errorf("touch thread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// LoadCheckpoint returns the checkpoint at seq, or the latest committed
// one when seq <= 0. Uncommitted rows are never visible.
func (s *Store) LoadCheckpoint(threadID string, seq int64) (*Checkpoint, error) {
	var row *sql.Row
	if seq <= 0 {
		row = s.db.QueryRow(`
			SELECT state_gz, created_at FROM checkpoints
			WHERE thread_id = ? AND committed = 1
			ORDER BY seq DESC LIMIT 1
		`, threadID)
	} else {
		row = s.db.QueryRow(`
			SELECT state_gz, created_at FROM checkpoints
			WHERE thread_id = ? AND seq = ? AND committed = 1
		`, threadID, seq)
	}

	var blob []byte
	var createdStr string
	if err := row.Scan(&blob, &createdStr); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("checkpoint %s/%d: %w", threadID, seq, ErrNotFound)
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	cp, err := decodeState(blob)
	if err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	cp.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return cp, nil
}

// LatestSeq returns the last committed sequence of a thread, 0 when the
// thread has no checkpoints yet.
func (s *Store) LatestSeq(threadID string) (int64, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM threads WHERE id = ?`, threadID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check thread: %w", err)
	}
	if exists == 0 {
		return 0, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	var last int64
	err := s.db.QueryRow(`
		SELECT COALESCE(MAX(seq), 0) FROM checkpoints
		WHERE thread_id = ? AND committed = 1
	`, threadID).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("read last sequence: %w", err)
	}
	return last, nil
}

// ListThreads returns all threads ordered by most recent activity.
func (s *Store) ListThreads() ([]Thread, error) {
	rows, err := s.db.Query(`
		SELECT id, parent_id, created_at, last_activity FROM threads
		ORDER BY last_activity DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var threads []Thread
	for rows.Next() {
		var th Thread
		var createdStr, activityStr string
		if err := rows.Scan(&th.ID, &th.ParentID, &createdStr, &activityStr); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		th.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		th.LastActivity, _ = time.Parse(time.RFC3339Nano, activityStr)
		threads = append(threads, th)
	}
	return threads, rows.Err()
}

// GetThread returns one thread's metadata.
func (s *Store) GetThread(threadID string) (*Thread, error) {
	var th Thread
	var createdStr, activityStr string
	err := s.db.QueryRow(`
		SELECT id, parent_id, created_at, last_activity FROM threads WHERE id = ?
	`, threadID).Scan(&th.ID, &th.ParentID, &createdStr, &activityStr)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	th.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	th.LastActivity, _ = time.Parse(time.RFC3339Nano, activityStr)
	return &th, nil
}

// Fork creates a new thread whose history is a copy of threadID's
// committed checkpoints up to and including upToSeq. The source thread
// is never modified (copy-on-fork). upToSeq <= 0 copies the whole
// history. The copied state blobs keep their original sequence numbers,
// so the fork is resumable exactly like its source was at that point.
func (s *Store) Fork(threadID string, upToSeq int64) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin fork: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM threads WHERE id = ?`, threadID).Scan(&exists); err != nil {
		return "", fmt.Errorf("check thread: %w", err)
	}
	if exists == 0 {
		return "", fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}

	if upToSeq <= 0 {
		if err := tx.QueryRow(`
			SELECT COALESCE(MAX(seq), 0) FROM checkpoints
			WHERE thread_id = ? AND committed = 1
		`, threadID).Scan(&upToSeq); err != nil {
			return "", fmt.Errorf("read last sequence: %w", err)
		}
	}

	newID := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.Exec(`
		INSERT INTO threads (id, parent_id, created_at, last_activity)
		VALUES (?, ?, ?, ?)
	`, newID, threadID, now, now); err != nil {
		return "", fmt.Errorf("create fork thread: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO checkpoints (thread_id, seq, state_gz, committed, created_at)
		SELECT ?, seq, state_gz, 1, created_at FROM checkpoints
		WHERE thread_id = ? AND seq <= ? AND committed = 1
	`, newID, threadID, upToSeq); err != nil {
		return "", fmt.Errorf("copy checkpoints: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit fork: %w", err)
	}
	return newID, nil
}

// DeleteThread removes a thread and its checkpoints.
func (s *Store) DeleteThread(threadID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM threads WHERE id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	if _, err := tx.Exec(`DELETE FROM checkpoints WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("delete checkpoints: %w", err)
	}
	return tx.Commit()
}

// RecordDecision appends one approval decision to the audit log.
func (s *Store) RecordDecision(callID, tool, effect, reason string) error {
	_, err := s.db.Exec(`
		INSERT INTO decisions (call_id, tool, effect, reason) VALUES (?, ?, ?, ?)
	`, callID, tool, effect, reason)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

func encodeState(cp *Checkpoint) ([]byte, error) {
	stateJSON, err := json.Marshal(cp)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(stateJSON); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeState(blob []byte) (*Checkpoint, error) {
	gr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	stateJSON, err := io.ReadAll(gr)
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(stateJSON, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}
