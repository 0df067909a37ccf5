package thread

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Summarizer condenses a message history into a shorter one. The
// reasoning side supplies the implementation; the manager only cares
// that the result is a valid replacement history.
type Summarizer interface {
	Summarize(ctx context.Context, messages []Message) ([]Message, error)
}

// HumanTurn locates one human-authored message in a thread's history
// together with the checkpoint that precedes it, which is the state a
// branch from that turn resumes from.
type HumanTurn struct {
	Seq       int64  // checkpoint committed just before this turn
	Index     int    // index of the message within that history
	Content   string
	Timestamp time.Time
}

// Manager layers the thread lifecycle operations over a Store: resume,
// branch, compress, clear. It keeps a live in-memory view of the
// current thread; the view is a cache and the store stays the source of
// truth.
type Manager struct {
	store      *Store
	summarizer Summarizer

	mu   sync.Mutex
	live *Checkpoint
}

// NewManager creates a manager over store. summarizer may be nil, in
// which case Compress returns an error.
func NewManager(store *Store, summarizer Summarizer) *Manager {
	return &Manager{store: store, summarizer: summarizer}
}

// Current returns a copy of the live checkpoint, or nil when no thread
// is active.
func (m *Manager) Current() *Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live.Clone()
}

// NewThread creates a fresh thread and makes it the live one, with an
// empty state at sequence 0 (the first append commits sequence 1).
func (m *Manager) NewThread() (string, error) {
	id, err := m.store.CreateThread("")
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.live = &Checkpoint{ThreadID: id, Seq: 0}
	m.mu.Unlock()
	return id, nil
}

// Resume loads a thread's latest checkpoint into the live view. A
// thread that exists but has no checkpoints yet resumes empty at
// sequence 0.
func (m *Manager) Resume(threadID string) (*Checkpoint, error) {
	if _, err := m.store.GetThread(threadID); err != nil {
		return nil, err
	}
	cp, err := m.store.LoadCheckpoint(threadID, 0)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		cp = &Checkpoint{ThreadID: threadID, Seq: 0}
	}
	m.mu.Lock()
	m.live = cp
	m.mu.Unlock()
	return cp.Clone(), nil
}

// ResumeLast resumes the most recently active thread, or starts a new
// one when none exist.
func (m *Manager) ResumeLast() (*Checkpoint, error) {
	threads, err := m.store.ListThreads()
	if err != nil {
		return nil, err
	}
	if len(threads) == 0 {
		id, err := m.NewThread()
		if err != nil {
			return nil, err
		}
		return &Checkpoint{ThreadID: id, Seq: 0}, nil
	}
	return m.Resume(threads[0].ID)
}

// Reload discards the live view and fetches the latest committed
// checkpoint from the store.
func (m *Manager) Reload() (*Checkpoint, error) {
	m.mu.Lock()
	live := m.live
	m.mu.Unlock()
	if live == nil {
		return nil, fmt.Errorf("no active thread: %w", ErrNotFound)
	}
	return m.Resume(live.ThreadID)
}

// Append commits cp as the next checkpoint of the live thread and
// updates the live view. On ErrConflict the live view is left alone;
// the caller should Reload and retry.
func (m *Manager) Append(cp *Checkpoint) error {
	if err := m.store.AppendCheckpoint(cp); err != nil {
		return err
	}
	m.mu.Lock()
	m.live = cp.Clone()
	m.mu.Unlock()
	return nil
}

// Clear starts a fresh thread, leaving the old one and its full history
// in the store.
func (m *Manager) Clear() (string, error) {
	return m.NewThread()
}

// HumanTurns enumerates the human-authored turns of a thread's latest
// history, each with the checkpoint sequence committed before it. The
// list drives replay selection: branching at a turn resumes from the
// state the agent saw when that turn was made.
func (m *Manager) HumanTurns(threadID string) ([]HumanTurn, error) {
	last, err := m.store.LatestSeq(threadID)
	if err != nil {
		return nil, err
	}

	// Walk checkpoints in order and note, for each human message index,
	// the highest sequence whose history does not yet include it.
	var turns []HumanTurn
	seen := 0
	for seq := int64(1); seq <= last; seq++ {
		cp, err := m.store.LoadCheckpoint(threadID, seq)
		if err != nil {
			return nil, err
		}
		for i := seen; i < len(cp.Messages); i++ {
			msg := cp.Messages[i]
			if msg.Role == "user" {
				turns = append(turns, HumanTurn{
					Seq:       seq - 1,
					Index:     i,
					Content:   msg.Content,
					Timestamp: msg.Timestamp,
				})
			}
		}
		seen = len(cp.Messages)
	}
	return turns, nil
}

// Branch forks threadID at the checkpoint preceding the chosen human
// turn and makes the fork the live thread. The source thread keeps its
// full history. Branching at the first turn (Seq 0) yields an empty
// fork ready for a different opening message.
func (m *Manager) Branch(threadID string, turn HumanTurn) (string, error) {
	var id string
	var err error
	if turn.Seq <= 0 {
		id, err = m.store.CreateThread(threadID)
	} else {
		id, err = m.store.Fork(threadID, turn.Seq)
	}
	if err != nil {
		return "", err
	}
	if _, err := m.Resume(id); err != nil {
		return "", err
	}
	return id, nil
}

// Compress summarizes the live thread's history into a new thread. The
// first checkpoint of the new thread carries the condensed messages and
// the live todos and file records; token and cost counters reset to
// zero. The original thread stays intact.
func (m *Manager) Compress(ctx context.Context) (string, error) {
	if m.summarizer == nil {
		return "", fmt.Errorf("compress: no summarizer configured")
	}
	m.mu.Lock()
	live := m.live.Clone()
	m.mu.Unlock()
	if live == nil {
		return "", fmt.Errorf("no active thread: %w", ErrNotFound)
	}

	condensed, err := m.summarizer.Summarize(ctx, live.Messages)
	if err != nil {
		return "", fmt.Errorf("summarize history: %w", err)
	}

	id, err := m.store.CreateThread(live.ThreadID)
	if err != nil {
		return "", err
	}
	first := &Checkpoint{
		ThreadID: id,
		Seq:      1,
		Messages: condensed,
		Todos:    live.Todos,
		Files:    live.Files,
	}
	if err := m.store.AppendCheckpoint(first); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.live = first.Clone()
	m.mu.Unlock()
	return id, nil
}
