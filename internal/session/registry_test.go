package session

import (
	"errors"
	"testing"
)

// fakeProcess implements Process for registry tests.
type fakeProcess struct {
	exited     bool
	terminated int
}

func (p *fakeProcess) Terminate() { p.terminated++ }
func (p *fakeProcess) Exited() bool {
	return p.exited
}

func TestRegister_ConflictWhileLive(t *testing.T) {
	reg := NewRegistry()

	if _, err := reg.Register("s1"); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	// Still starting (no handle attached) counts as live.
	if _, err := reg.Register("s1"); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive got %v", err)
	}

	reg.Attach("s1", &fakeProcess{})
	if _, err := reg.Register("s1"); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive with running process, got %v", err)
	}
}

func TestRegister_ReplacesFinishedEntry(t *testing.T) {
	reg := NewRegistry()

	s1, err := reg.Register("s1")
	if err != nil {
		t.Fatal(err)
	}
	proc := &fakeProcess{}
	reg.Attach("s1", proc)
	proc.exited = true

	// A finished-but-not-yet-unregistered entry does not block admission.
	s2, err := reg.Register("s1")
	if err != nil {
		t.Fatalf("expected admission after exit, got %v", err)
	}
	if s1 == s2 {
		t.Fatal("expected a fresh session")
	}

	// The stale run's teardown must not remove the new session.
	reg.Unregister("s1", s1)
	if _, err := reg.Register("s1"); !errors.Is(err, ErrSessionActive) {
		t.Fatal("stale unregister removed the newer session")
	}

	reg.Unregister("s1", s2)
	if _, err := reg.Register("s1"); err != nil {
		t.Fatalf("expected id free after real unregister, got %v", err)
	}
}

func TestLookupActive(t *testing.T) {
	reg := NewRegistry()

	if _, ok := reg.LookupActive("missing"); ok {
		t.Fatal("expected no active session")
	}

	reg.Register("s1")
	if _, ok := reg.LookupActive("s1"); ok {
		t.Fatal("session without a handle must not be returned")
	}

	proc := &fakeProcess{}
	reg.Attach("s1", proc)
	if got, ok := reg.LookupActive("s1"); !ok || got != Process(proc) {
		t.Fatal("expected attached live process")
	}

	proc.exited = true
	if _, ok := reg.LookupActive("s1"); ok {
		t.Fatal("finished entry must be treated as absent")
	}
}

func TestRequestStop(t *testing.T) {
	reg := NewRegistry()

	if _, ok := reg.RequestStop("missing"); ok {
		t.Fatal("expected not-found for unknown id")
	}
	if reg.StopRequested("missing") {
		t.Fatal("expected no state mutation for unknown id")
	}

	reg.Register("s1")
	proc := &fakeProcess{}
	reg.Attach("s1", proc)

	got, ok := reg.RequestStop("s1")
	if !ok || got != Process(proc) {
		t.Fatal("expected the live process back")
	}
	if !reg.StopRequested("s1") {
		t.Fatal("expected stop flag set")
	}
}

func TestUnregister_ClearsStopFlag(t *testing.T) {
	reg := NewRegistry()

	s, _ := reg.Register("s1")
	reg.Attach("s1", &fakeProcess{})
	reg.RequestStop("s1")
	reg.Unregister("s1", s)

	if reg.StopRequested("s1") {
		t.Fatal("expected flag gone with the entry")
	}

	// A new run under the same id starts with a clean flag.
	reg.Register("s1")
	if reg.StopRequested("s1") {
		t.Fatal("expected fresh session without stop flag")
	}
}

func TestActiveAndTerminateAll(t *testing.T) {
	reg := NewRegistry()

	reg.Register("a")
	pa := &fakeProcess{}
	reg.Attach("a", pa)

	reg.Register("b")
	pb := &fakeProcess{exited: true}
	reg.Attach("b", pb)

	if got := reg.Active(); got != 1 {
		t.Fatalf("expected 1 active got %d", got)
	}

	reg.TerminateAll()
	if pa.terminated != 1 {
		t.Fatalf("expected live process terminated once, got %d", pa.terminated)
	}
	if pb.terminated != 0 {
		t.Fatalf("expected exited process untouched, got %d", pb.terminated)
	}
}
