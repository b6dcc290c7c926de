// Package session tracks the active runs of the server so that an
// independent request can stop one by id.
package session

import (
	"errors"
	"sync"
)

// ErrSessionActive is returned when a run is admitted for an id that
// already has a live session.
var ErrSessionActive = errors.New("session already running")

// Process is the handle the registry keeps per session. Implemented by
// runner.Process.
type Process interface {
	Terminate()
	Exited() bool
}

// Session is one registered run. Fields are guarded by the owning
// registry's lock.
type Session struct {
	ID            string
	proc          Process
	stopRequested bool
}

// Registry is a process-wide map from session id to the active run. One
// mutex covers every operation so that register, stop and unregister from
// concurrent requests never race; the lock is never held across I/O.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register admits a run: the check for a live entry and the insert happen
// in one critical section. A finished-but-not-yet-unregistered entry does
// not block admission; it is replaced. The process handle is attached
// after the spawn succeeds.
func (r *Registry) Register(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[id]; ok && existing.live() {
		return nil, ErrSessionActive
	}

	s := &Session{ID: id}
	r.sessions[id] = s
	return s, nil
}

// live reports whether a session still counts as running for admission. A
// session without a handle is still starting up and counts as live.
func (s *Session) live() bool {
	return s.proc == nil || !s.proc.Exited()
}

// Attach records the process handle once the child has been spawned.
func (r *Registry) Attach(id string, p Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.proc = p
	}
}

// LookupActive returns the process for id only if the session exists and
// its process is attached and has not exited.
func (r *Registry) LookupActive(id string) (Process, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.proc == nil || s.proc.Exited() {
		return nil, false
	}
	return s.proc, true
}

// RequestStop marks the session's stop flag and returns its process so
// the caller can run the termination escalation. The returned process is
// nil when the session is still starting; the flag alone then makes the
// run report the stopped outcome. ok is false when no session matches.
func (r *Registry) RequestStop(id string) (Process, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || !s.live() {
		return nil, false
	}
	s.stopRequested = true
	return s.proc, true
}

// StopRequested reports whether a stop was requested for id during its
// current run. The run's completion path consults this after the exit
// wait, regardless of when the stop arrived.
func (r *Registry) StopRequested(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return ok && s.stopRequested
}

// Unregister removes the entry for id only while it still refers to the
// same session, so a newer run that reused the id is never torn down by a
// stale teardown path.
func (r *Registry) Unregister(id string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[id]; ok && current == s {
		delete(r.sessions, id)
	}
}

// TerminateAll runs the termination escalation on every live process.
// Used at server shutdown. The lock is released before terminating so the
// runs' own teardown paths can unregister themselves.
func (r *Registry) TerminateAll() {
	r.mu.Lock()
	procs := make([]Process, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.proc != nil && !s.proc.Exited() {
			procs = append(procs, s.proc)
		}
	}
	r.mu.Unlock()

	for _, p := range procs {
		p.Terminate()
	}
}

// Active returns the number of live sessions.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.live() {
			n++
		}
	}
	return n
}
