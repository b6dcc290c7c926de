package runner

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sevir/agentrelay/internal/metrics"
	"github.com/sevir/agentrelay/internal/session"
	"github.com/sevir/agentrelay/pkg/models"
)

// Terminal exit codes for the non-completion outcomes. A stopped run
// reports success regardless of how the child actually exited; a timed-out
// run uses the conventional timeout code so callers can tell it apart from
// any child exit.
const (
	stoppedExitCode = 0
	timeoutExitCode = 124
	failureExitCode = 1
)

// Options configures a Runner.
type Options struct {
	// ResponseTimeout bounds a whole run; zero means unbounded.
	ResponseTimeout time.Duration
	// Grace is the interval between SIGTERM and SIGKILL during
	// termination. Defaults to DefaultGrace.
	Grace time.Duration
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// Runner executes sessions against a shared registry. The registry is
// injected so tests can instantiate independent ones.
type Runner struct {
	registry *session.Registry
	timeout  time.Duration
	grace    time.Duration
	metrics  *metrics.Metrics
}

// New creates a Runner.
func New(registry *session.Registry, opts Options) *Runner {
	grace := opts.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Runner{
		registry: registry,
		timeout:  opts.ResponseTimeout,
		grace:    grace,
		metrics:  opts.Metrics,
	}
}

// EmitFunc receives each framed event of a run, in order.
type EmitFunc func(models.Event)

// ResolveSessionID trims a caller-supplied id and generates one when blank.
func ResolveSessionID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" {
		id = uuid.New().String()
	}
	return id
}

// Run executes one session: spawn the command, write stdin, stream both
// pipes as ordered events, and emit exactly one terminal event. An
// admission conflict is returned before any event is emitted; every other
// failure is reported in-stream. On return the child is reaped, both
// readers have been joined, and the session is unregistered, whichever
// path was taken.
func (r *Runner) Run(ctx context.Context, id string, command Command, stdin string, emit EmitFunc) error {
	sess, err := r.registry.Register(id)
	if err != nil {
		return err
	}
	r.metrics.SessionStarted()

	gate := newDeadlineGate(r.timeout)
	runCtx, cancel := gate.Bind(ctx)

	var (
		proc         *Process
		fan          *fanIn
		outcome      = metrics.OutcomeInternalError
		terminalSent bool
	)

	send := func(ev models.Event) {
		emit(ev)
		r.metrics.EventEmitted(string(ev.Type))
	}
	terminal := func(code int, o string) {
		if terminalSent {
			return
		}
		terminalSent = true
		outcome = o
		send(models.ExitEvent(code))
	}

	// Unconditional teardown. Runs on every exit path, including spawn
	// failure and the panic recovery below: readers are cancelled and
	// joined, a still-live child is terminated, and the session entry is
	// removed.
	defer func() {
		cancel()
		if proc != nil && !proc.Exited() {
			proc.Terminate()
		}
		if fan != nil {
			fan.Join()
		}
		if proc != nil {
			proc.closePipes()
		}
		r.registry.Unregister(id, sess)
		r.metrics.SessionFinished(outcome)
	}()

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("session_event=panic session_id=%s err=%v", id, rec)
			send(models.OutputEvent(models.EventStderr, fmt.Sprintf("Internal Server Error: %v", rec)))
			terminal(failureExitCode, metrics.OutcomeInternalError)
		}
	}()

	send(models.SessionEvent(id))

	proc, err = StartProcess(command, r.grace)
	if err != nil {
		log.Printf("session_event=spawn_failed session_id=%s program=%s err=%v", id, command.Program, err)
		send(models.OutputEvent(models.EventStderr, "Internal Server Error: "+err.Error()))
		terminal(failureExitCode, metrics.OutcomeSpawnError)
		return nil
	}
	r.registry.Attach(id, proc)

	log.Printf("session_event=started session_id=%s pid=%d program=%s", id, proc.PID(), command.Program)

	go proc.WriteInput(stdin)

	fan = newFanIn()
	fan.Add(runCtx, proc.Stdout(), models.EventStdout)
	fan.Add(runCtx, proc.Stderr(), models.EventStderr)

	for {
		ev, ok, err := fan.Next(runCtx)
		if err != nil {
			r.finishEarly(id, err, gate, proc, send, terminal)
			return nil
		}
		if !ok {
			break
		}
		send(ev)
	}

	if err := gate.WaitExit(runCtx, proc.Done()); err != nil {
		r.finishEarly(id, err, gate, proc, send, terminal)
		return nil
	}

	// The stop flag is checked after the exit wait regardless of when the
	// stop arrived, so a stop racing the child's own exit still reports
	// the stopped outcome.
	if r.registry.StopRequested(id) {
		log.Printf("session_event=stopped session_id=%s exit_code=%d", id, proc.ExitCode())
		terminal(stoppedExitCode, metrics.OutcomeStopped)
		return nil
	}

	log.Printf("session_event=completed session_id=%s exit_code=%d", id, proc.ExitCode())
	terminal(proc.ExitCode(), metrics.OutcomeCompleted)
	return nil
}

// finishEarly handles a wait interrupted before natural completion: either
// the response deadline expired or the caller went away. Both converge on
// the same termination escalation.
func (r *Runner) finishEarly(id string, waitErr error, gate deadlineGate, proc *Process, send EmitFunc, terminal func(int, string)) {
	proc.Terminate()

	if gate.Expired(waitErr) {
		log.Printf("session_event=timeout session_id=%s", id)
		send(models.OutputEvent(models.EventStderr, "Response timeout exceeded\n"))
		terminal(timeoutExitCode, metrics.OutcomeTimeout)
		return
	}

	// Caller disconnected; the terminal event is emitted for the record
	// even though nothing may be listening.
	log.Printf("session_event=disconnected session_id=%s err=%v", id, waitErr)
	terminal(failureExitCode, metrics.OutcomeDisconnected)
}
