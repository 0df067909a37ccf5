package thread

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/midodimori/langrepl/internal/tools"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "threads.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func checkpoint(threadID string, seq int64, content string) *Checkpoint {
	return &Checkpoint{
		ThreadID: threadID,
		Seq:      seq,
		Messages: []Message{{Role: "user", Content: content}},
	}
}

func TestAppendAndLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	id, err := store.CreateThread("")
	if err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}

	cp := checkpoint(id, 1, "hello")
	cp.PendingCalls = []tools.Call{
		tools.NewCall("c1", tools.Ident{Category: tools.CategoryImpl, Module: "terminal", Function: "run_command"},
			map[string]any{"command": "ls"}),
	}
	cp.Todos = []Todo{{Content: "write tests", Status: "in_progress"}}
	cp.Files = map[string]string{"/tmp/a.go": "read"}
	cp.Usage = Usage{InputTokens: 12, OutputTokens: 34, Cost: 0.005}
	if err := store.AppendCheckpoint(cp); err != nil {
		t.Fatalf("AppendCheckpoint failed: %v", err)
	}

	got, err := store.LoadCheckpoint(id, 0)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if got.Seq != 1 || len(got.Messages) != 1 || got.Messages[0].Content != "hello" {
		t.Errorf("unexpected checkpoint: %+v", got)
	}
	if len(got.PendingCalls) != 1 || got.PendingCalls[0].ID != "c1" {
		t.Errorf("pending calls not preserved: %+v", got.PendingCalls)
	}
	if got.Usage.OutputTokens != 34 {
		t.Errorf("usage not preserved: %+v", got.Usage)
	}
	if got.Files["/tmp/a.go"] != "read" {
		t.Errorf("files not preserved: %+v", got.Files)
	}
}

func TestAppendEnforcesContiguity(t *testing.T) {
	store := newTestStore(t)
	id, _ := store.CreateThread("")

	if err := store.AppendCheckpoint(checkpoint(id, 2, "skip")); !errors.Is(err, ErrConflict) {
		t.Errorf("seq 2 before 1 should conflict, got %v", err)
	}
	if err := store.AppendCheckpoint(checkpoint(id, 1, "a")); err != nil {
		t.Fatalf("seq 1 should succeed: %v", err)
	}
	if err := store.AppendCheckpoint(checkpoint(id, 1, "dup")); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate seq 1 should conflict, got %v", err)
	}
	if err := store.AppendCheckpoint(checkpoint(id, 3, "skip")); !errors.Is(err, ErrConflict) {
		t.Errorf("seq 3 after 1 should conflict, got %v", err)
	}
	if err := store.AppendCheckpoint(checkpoint(id, 2, "b")); err != nil {
		t.Fatalf("seq 2 after 1 should succeed: %v", err)
	}

	last, err := store.LatestSeq(id)
	if err != nil || last != 2 {
		t.Errorf("LatestSeq = %d, %v; want 2", last, err)
	}
}

func TestAppendUnknownThread(t *testing.T) {
	store := newTestStore(t)
	if err := store.AppendCheckpoint(checkpoint("no-such-thread", 1, "x")); !errors.Is(err, ErrNotFound) {
		t.Errorf("append to unknown thread should be ErrNotFound, got %v", err)
	}
}

func TestUncommittedCheckpointInvisible(t *testing.T) {
	store := newTestStore(t)
	id, _ := store.CreateThread("")
	if err := store.AppendCheckpoint(checkpoint(id, 1, "committed")); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	// Simulate a torn write: a row that made it to disk but whose commit
	// flag never flipped.
	blob, err := encodeState(checkpoint(id, 2, "torn"))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, err := store.db.Exec(`
		INSERT INTO checkpoints (thread_id, seq, state_gz, committed, created_at)
		VALUES (?, 2, ?, 0, ?)
	`, id, blob, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		t.Fatalf("raw insert failed: %v", err)
	}

	got, err := store.LoadCheckpoint(id, 0)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if got.Seq != 1 || got.Messages[0].Content != "committed" {
		t.Errorf("torn write became visible: %+v", got)
	}
	if _, err := store.LoadCheckpoint(id, 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("uncommitted checkpoint should not load, got %v", err)
	}
	if last, _ := store.LatestSeq(id); last != 1 {
		t.Errorf("LatestSeq should ignore uncommitted rows, got %d", last)
	}

	// The slot is reusable once the torn row is cleaned up; a fresh append
	// at the same sequence supersedes it.
	if _, err := store.db.Exec(`DELETE FROM checkpoints WHERE thread_id = ? AND committed = 0`, id); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if err := store.AppendCheckpoint(checkpoint(id, 2, "retry")); err != nil {
		t.Fatalf("retry append failed: %v", err)
	}
}

func TestForkCopiesPrefixAndIsolates(t *testing.T) {
	store := newTestStore(t)
	src, _ := store.CreateThread("")
	for i, content := range []string{"one", "two", "three"} {
		if err := store.AppendCheckpoint(checkpoint(src, int64(i+1), content)); err != nil {
			t.Fatalf("append %d failed: %v", i+1, err)
		}
	}

	fork, err := store.Fork(src, 2)
	if err != nil {
		t.Fatalf("Fork failed: %v", err)
	}

	th, err := store.GetThread(fork)
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if th.ParentID != src {
		t.Errorf("fork parent = %q, want %q", th.ParentID, src)
	}

	if last, _ := store.LatestSeq(fork); last != 2 {
		t.Errorf("fork latest = %d, want 2", last)
	}
	got, err := store.LoadCheckpoint(fork, 0)
	if err != nil || got.Messages[0].Content != "two" {
		t.Errorf("fork latest checkpoint = %+v, %v", got, err)
	}

	// Diverge the fork; the source must be untouched.
	if err := store.AppendCheckpoint(checkpoint(fork, 3, "fork-three")); err != nil {
		t.Fatalf("fork append failed: %v", err)
	}
	srcLatest, err := store.LoadCheckpoint(src, 3)
	if err != nil || srcLatest.Messages[0].Content != "three" {
		t.Errorf("source mutated after fork divergence: %+v, %v", srcLatest, err)
	}
}

func TestForkWholeHistory(t *testing.T) {
	store := newTestStore(t)
	src, _ := store.CreateThread("")
	store.AppendCheckpoint(checkpoint(src, 1, "a"))
	store.AppendCheckpoint(checkpoint(src, 2, "b"))

	fork, err := store.Fork(src, 0)
	if err != nil {
		t.Fatalf("Fork failed: %v", err)
	}
	if last, _ := store.LatestSeq(fork); last != 2 {
		t.Errorf("whole-history fork latest = %d, want 2", last)
	}
}

func TestListThreadsByRecency(t *testing.T) {
	store := newTestStore(t)
	first, _ := store.CreateThread("")
	time.Sleep(5 * time.Millisecond)
	second, _ := store.CreateThread("")
	time.Sleep(5 * time.Millisecond)

	// Touching the older thread promotes it.
	if err := store.AppendCheckpoint(checkpoint(first, 1, "touch")); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	threads, err := store.ListThreads()
	if err != nil {
		t.Fatalf("ListThreads failed: %v", err)
	}
	if len(threads) != 2 {
		t.Fatalf("got %d threads, want 2", len(threads))
	}
	if threads[0].ID != first || threads[1].ID != second {
		t.Errorf("unexpected order: %s, %s", threads[0].ID, threads[1].ID)
	}
}

func TestDeleteThread(t *testing.T) {
	store := newTestStore(t)
	id, _ := store.CreateThread("")
	store.AppendCheckpoint(checkpoint(id, 1, "a"))

	if err := store.DeleteThread(id); err != nil {
		t.Fatalf("DeleteThread failed: %v", err)
	}
	if _, err := store.GetThread(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted thread should be gone, got %v", err)
	}
	if _, err := store.LoadCheckpoint(id, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted thread checkpoints should be gone, got %v", err)
	}
	if err := store.DeleteThread(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete should be ErrNotFound, got %v", err)
	}
}

func TestRecordDecision(t *testing.T) {
	store := newTestStore(t)
	if err := store.RecordDecision("c1", "impl:terminal:run_command", "deny", "rule: no rm"); err != nil {
		t.Fatalf("RecordDecision failed: %v", err)
	}

	var count int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM decisions WHERE call_id = 'c1'`).Scan(&count); err != nil && err != sql.ErrNoRows {
		t.Fatalf("query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("decision count = %d, want 1", count)
	}
}
