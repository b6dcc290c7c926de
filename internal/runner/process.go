package runner

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// DefaultGrace is how long Terminate waits between the graceful signal and
// the forceful kill.
const DefaultGrace = 2 * time.Second

// Command is a fully resolved child invocation. Env holds extra variables
// merged over the server's own environment; a containerized command carries
// its env as -e flags inside Args instead.
type Command struct {
	Program string
	Args    []string
	Env     map[string]string
}

// Process owns one running child: its pipes, its exit state, and the
// escalating termination sequence. The parent keeps its own os.Pipe ends
// for all three streams so that Wait never races output drainage.
type Process struct {
	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File
	stderr *os.File
	grace  time.Duration

	done     chan struct{}
	exitCode int

	termOnce sync.Once
}

// StartProcess spawns the command. A failure to launch (missing executable,
// fork error) is returned before any session resource is held.
func StartProcess(command Command, grace time.Duration) (*Process, error) {
	if grace <= 0 {
		grace = DefaultGrace
	}

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	cmd := exec.Command(command.Program, command.Args...)
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.Env = os.Environ()
	for k, v := range command.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return nil, fmt.Errorf("failed to start %s: %w", command.Program, err)
	}

	// The child holds its own copies now.
	stdinR.Close()
	stdoutW.Close()
	stderrW.Close()

	p := &Process{
		cmd:    cmd,
		stdin:  stdinW,
		stdout: stdoutR,
		stderr: stderrR,
		grace:  grace,
		done:   make(chan struct{}),
	}

	go func() {
		err := cmd.Wait()
		code := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}
		p.exitCode = code
		close(p.done)
	}()

	return p, nil
}

// WriteInput writes the initial payload to the child's stdin and closes
// the pipe. A write failure is swallowed: the child may already have
// exited, and output drainage must continue regardless.
func (p *Process) WriteInput(text string) {
	if text != "" {
		p.stdin.Write([]byte(text))
	}
	p.stdin.Close()
}

// Stdout returns the parent's read end of the child's stdout.
func (p *Process) Stdout() *os.File { return p.stdout }

// Stderr returns the parent's read end of the child's stderr.
func (p *Process) Stderr() *os.File { return p.stderr }

// PID returns the child's process id.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Done is closed once the child has been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Exited reports whether the child has exited.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the child's exit code. Only valid after Done.
func (p *Process) ExitCode() int { return p.exitCode }

// Terminate applies the escalation policy: SIGTERM, a bounded grace wait,
// then SIGKILL, blocking until the process is reaped. It is idempotent and
// a no-op on an already-exited child. Both explicit stops and deadline
// expiry converge here.
func (p *Process) Terminate() {
	p.termOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		p.cmd.Process.Signal(syscall.SIGTERM)

		select {
		case <-p.done:
		case <-time.After(p.grace):
			p.cmd.Process.Kill()
			<-p.done
		}
	})
}

// closePipes releases the parent's read ends. Called once the readers have
// been joined.
func (p *Process) closePipes() {
	p.stdout.Close()
	p.stderr.Close()
}
