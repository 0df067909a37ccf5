package approval

import (
	"context"
	"testing"
	"time"

	"github.com/midodimori/langrepl/internal/tools"
)

func terminalCall(id, command string) tools.Call {
	return tools.NewCall(id,
		tools.Ident{Category: tools.CategoryImpl, Module: "terminal", Function: "run_command"},
		map[string]any{"command": command})
}

func TestAskAllowed(t *testing.T) {
	m := NewManager(nil)
	call := terminalCall("c1", "ls")

	go func() {
		time.Sleep(10 * time.Millisecond)
		if err := m.Respond("c1", ResponseAllow); err != nil {
			t.Errorf("respond failed: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := m.Ask(ctx, call)
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if !resp.Allowed() {
		t.Fatalf("expected allowed verdict, got %s", resp)
	}
}

func TestAskDenied(t *testing.T) {
	m := NewManager(nil)
	call := terminalCall("c1", "rm -rf /")

	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Respond("c1", ResponseAlwaysDeny)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := m.Ask(ctx, call)
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if resp.Allowed() {
		t.Fatal("expected denial")
	}
	if !resp.Persistent() {
		t.Fatal("always_deny should be persistent")
	}
}

func TestAskContextExpiry(t *testing.T) {
	m := NewManager(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	resp, err := m.Ask(ctx, terminalCall("c1", "ls"))
	if err == nil {
		t.Fatal("expected context error")
	}
	if resp.Allowed() {
		t.Fatal("expiry must not allow the call")
	}
	if len(m.Pending()) != 0 {
		t.Error("expired request should be removed from pending")
	}
}

func TestIndependentSuspendedCalls(t *testing.T) {
	m := NewManager(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	type result struct {
		id   string
		resp Response
	}
	results := make(chan result, 2)
	for _, id := range []string{"a", "b"} {
		go func(id string) {
			resp, err := m.Ask(ctx, terminalCall(id, "cmd-"+id))
			if err != nil {
				t.Errorf("ask %s failed: %v", id, err)
			}
			results <- result{id, resp}
		}(id)
	}

	// Wait until both are suspended, then answer out of order.
	deadline := time.Now().Add(time.Second)
	for len(m.Pending()) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("calls never suspended")
		}
		time.Sleep(time.Millisecond)
	}
	if err := m.Respond("b", ResponseDeny); err != nil {
		t.Fatalf("respond b: %v", err)
	}
	if err := m.Respond("a", ResponseAllow); err != nil {
		t.Fatalf("respond a: %v", err)
	}

	got := map[string]Response{}
	for i := 0; i < 2; i++ {
		r := <-results
		got[r.id] = r.resp
	}
	if got["a"] != ResponseAllow || got["b"] != ResponseDeny {
		t.Errorf("verdicts crossed: %v", got)
	}
}

func TestCloseDeniesSuspendedCalls(t *testing.T) {
	m := NewManager(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan Response, 1)
	go func() {
		resp, _ := m.Ask(ctx, terminalCall("c1", "ls"))
		done <- resp
	}()

	deadline := time.Now().Add(time.Second)
	for len(m.Pending()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("call never suspended")
		}
		time.Sleep(time.Millisecond)
	}
	m.Close()

	if resp := <-done; resp.Allowed() {
		t.Errorf("shutdown must not allow suspended calls, got %s", resp)
	}
}

func TestRespondNonexistent(t *testing.T) {
	m := NewManager(nil)
	if err := m.Respond("missing", ResponseAllow); err == nil {
		t.Fatal("expected error for unknown call")
	}
}
