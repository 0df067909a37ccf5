package thread

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

type stubSummarizer struct {
	calls int
}

func (s *stubSummarizer) Summarize(_ context.Context, messages []Message) ([]Message, error) {
	s.calls++
	return []Message{{Role: "user", Content: "summary of " + messages[0].Content}}, nil
}

func newTestManager(t *testing.T) (*Manager, *Store) {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "threads.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewManager(store, &stubSummarizer{}), store
}

func appendTurn(t *testing.T, m *Manager, messages ...Message) {
	t.Helper()
	cp := m.Current()
	if cp == nil {
		t.Fatal("no live thread")
	}
	cp.Seq++
	cp.Messages = append(cp.Messages, messages...)
	if err := m.Append(cp); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
}

func TestResumeRestoresLatestState(t *testing.T) {
	m, _ := newTestManager(t)
	id, err := m.NewThread()
	if err != nil {
		t.Fatalf("NewThread failed: %v", err)
	}
	appendTurn(t, m, Message{Role: "user", Content: "hi"})
	appendTurn(t, m, Message{Role: "assistant", Content: "hello"})

	// Simulate a restart: fresh manager over the same store.
	cp, err := m.Resume(id)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if cp.Seq != 2 || len(cp.Messages) != 2 {
		t.Errorf("resumed state = seq %d, %d messages", cp.Seq, len(cp.Messages))
	}
}

func TestResumeEmptyThread(t *testing.T) {
	m, store := newTestManager(t)
	id, _ := store.CreateThread("")
	cp, err := m.Resume(id)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if cp.Seq != 0 || len(cp.Messages) != 0 {
		t.Errorf("empty thread should resume at seq 0, got %+v", cp)
	}
	if _, err := m.Resume("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("resume of unknown thread should be ErrNotFound, got %v", err)
	}
}

func TestResumeLastPicksMostRecent(t *testing.T) {
	m, _ := newTestManager(t)

	// No threads yet: a fresh one is created.
	cp, err := m.ResumeLast()
	if err != nil {
		t.Fatalf("ResumeLast failed: %v", err)
	}
	first := cp.ThreadID
	appendTurn(t, m, Message{Role: "user", Content: "in first"})

	cp, err = m.ResumeLast()
	if err != nil {
		t.Fatalf("ResumeLast failed: %v", err)
	}
	if cp.ThreadID != first {
		t.Errorf("ResumeLast picked %s, want %s", cp.ThreadID, first)
	}
	if len(cp.Messages) != 1 {
		t.Errorf("resumed history has %d messages, want 1", len(cp.Messages))
	}
}

func TestAppendConflictLeavesLiveView(t *testing.T) {
	m, store := newTestManager(t)
	id, _ := m.NewThread()
	appendTurn(t, m, Message{Role: "user", Content: "a"})

	// A second writer advances the thread behind this manager's back.
	stale := m.Current()
	other := &Checkpoint{ThreadID: id, Seq: 2, Messages: append(stale.Messages, Message{Role: "assistant", Content: "b"})}
	if err := store.AppendCheckpoint(other); err != nil {
		t.Fatalf("concurrent append failed: %v", err)
	}

	stale.Seq = 2
	stale.Messages = append(stale.Messages, Message{Role: "assistant", Content: "mine"})
	if err := m.Append(stale); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale append should conflict, got %v", err)
	}

	cp, err := m.Reload()
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if cp.Seq != 2 || cp.Messages[1].Content != "b" {
		t.Errorf("reload should see the winning write, got %+v", cp)
	}
}

func TestClearStartsFreshAndKeepsOld(t *testing.T) {
	m, store := newTestManager(t)
	old, _ := m.NewThread()
	appendTurn(t, m, Message{Role: "user", Content: "history"})

	fresh, err := m.Clear()
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if fresh == old {
		t.Error("clear must produce a new thread id")
	}
	if cp := m.Current(); cp.ThreadID != fresh || len(cp.Messages) != 0 {
		t.Errorf("live view after clear = %+v", cp)
	}
	if last, _ := store.LatestSeq(old); last != 1 {
		t.Errorf("old thread history should survive clear, latest = %d", last)
	}
}

func TestHumanTurnsAndBranch(t *testing.T) {
	m, store := newTestManager(t)
	id, _ := m.NewThread()
	appendTurn(t, m,
		Message{Role: "user", Content: "first question"},
		Message{Role: "assistant", Content: "first answer"})
	appendTurn(t, m,
		Message{Role: "user", Content: "second question"},
		Message{Role: "assistant", Content: "second answer"})

	turns, err := m.HumanTurns(id)
	if err != nil {
		t.Fatalf("HumanTurns failed: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d human turns, want 2", len(turns))
	}
	if turns[0].Seq != 0 || turns[0].Content != "first question" {
		t.Errorf("first turn = %+v", turns[0])
	}
	if turns[1].Seq != 1 || turns[1].Content != "second question" {
		t.Errorf("second turn = %+v", turns[1])
	}

	// Branch at the second turn: the fork sees only the first exchange.
	fork, err := m.Branch(id, turns[1])
	if err != nil {
		t.Fatalf("Branch failed: %v", err)
	}
	cp := m.Current()
	if cp.ThreadID != fork || cp.Seq != 1 || len(cp.Messages) != 2 {
		t.Errorf("fork live view = %+v", cp)
	}
	if cp.Messages[1].Content != "first answer" {
		t.Errorf("fork history wrong: %+v", cp.Messages)
	}

	// Branch at the very first turn: empty fork.
	empty, err := m.Branch(id, turns[0])
	if err != nil {
		t.Fatalf("Branch at first turn failed: %v", err)
	}
	if cp := m.Current(); cp.ThreadID != empty || cp.Seq != 0 || len(cp.Messages) != 0 {
		t.Errorf("empty fork live view = %+v", cp)
	}

	// Source untouched throughout.
	if last, _ := store.LatestSeq(id); last != 2 {
		t.Errorf("source thread mutated, latest = %d", last)
	}
}

func TestCompressResetsCountersAndCarriesState(t *testing.T) {
	m, store := newTestManager(t)
	old, _ := m.NewThread()

	cp := m.Current()
	cp.Seq = 1
	cp.Messages = []Message{
		{Role: "user", Content: "long history"},
		{Role: "assistant", Content: "lots of output"},
	}
	cp.Todos = []Todo{{Content: "finish feature", Status: "in_progress"}}
	cp.Files = map[string]string{"/src/main.go": "edited"}
	cp.Usage = Usage{InputTokens: 9000, OutputTokens: 4000, Cost: 1.25}
	if err := m.Append(cp); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	id, err := m.Compress(context.Background())
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if id == old {
		t.Error("compress must produce a new thread id")
	}

	got := m.Current()
	if got.ThreadID != id || got.Seq != 1 {
		t.Errorf("live view after compress = %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "summary of long history" {
		t.Errorf("compressed history = %+v", got.Messages)
	}
	if got.Usage != (Usage{}) {
		t.Errorf("counters should reset, got %+v", got.Usage)
	}
	if len(got.Todos) != 1 || got.Files["/src/main.go"] != "edited" {
		t.Errorf("todos/files should carry over, got %+v / %+v", got.Todos, got.Files)
	}

	th, err := store.GetThread(id)
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if th.ParentID != old {
		t.Errorf("compressed thread parent = %q, want %q", th.ParentID, old)
	}
	if last, _ := store.LatestSeq(old); last != 1 {
		t.Errorf("original thread should stay intact, latest = %d", last)
	}
}
