// Package calc bridges chat commands to an out-of-process computation
// worker. The worker is a separate binary inheriting one end of a local
// socketpair; requests and responses are exchanged with the calcproto
// framing. A worker that stalls or dies is killed and respawned; the
// caller of Invoke only ever sees a failure result, never a hang.
package calc

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sotecware/hubbot"
	"github.com/sotecware/hubbot/pkg/calcproto"
)

const defaultInvokeTimeout = 3 * time.Second

var (
	// ErrNoWorker reports an Invoke attempt before a worker could be
	// spawned at all.
	ErrNoWorker = errors.New("calc: no worker process available")
)

// worker is the single live child process plus its communication socket.
type worker struct {
	conn net.Conn
	kill func() error
}

type spawnFunc func() (*worker, error)

// Supervisor owns at most one worker process and makes its computations
// look like bounded-latency synchronous calls. It holds no request
// queue: concurrent callers must serialise their Invoke calls.
type Supervisor struct {
	timeout time.Duration
	spawn   spawnFunc
	logger  *slog.Logger

	current *worker
}

type Option func(*Supervisor)

// WithTimeout bounds how long one request may take before the worker is
// declared dead.
func WithTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLog(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// NewSupervisor builds a supervisor that spawns executable for its
// worker. The worker binary receives the file descriptor number of its
// socket end as its only argument.
func NewSupervisor(executable string, opts ...Option) *Supervisor {
	s := &Supervisor{
		timeout: defaultInvokeTimeout,
	}
	s.spawn = func() (*worker, error) {
		return spawnProcess(executable)
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// newTestableSupervisor injects the spawn function; tests use in-process
// stub workers instead of real child processes.
func newTestableSupervisor(spawn spawnFunc, opts ...Option) *Supervisor {
	s := &Supervisor{
		timeout: defaultInvokeTimeout,
		spawn:   spawn,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Invoke sends one (unit, expr) request and waits for the response.
//
// ok and text mirror the worker's response frame. A request that times
// out or hits a transport error does not surface as an error: the worker
// is killed and respawned and the failure is reported in text, so a
// chat command can always produce a reply. err is reserved for not being
// able to run a worker at all.
func (s *Supervisor) Invoke(unit, expr []byte) (ok bool, text []byte, err error) {
	defer metricsLatency(time.Now())

	if s.current == nil {
		if err := s.respawn(); err != nil {
			return false, nil, err
		}
	}

	if err := calcproto.WriteRequest(s.current.conn, unit, expr); err != nil {
		s.logger.Warn("worker request failed", hubbot.LabelError.L(err))
		return s.failAndRespawn(err)
	}

	deadline := time.Now().Add(s.timeout)
	if err := s.current.conn.SetReadDeadline(deadline); err != nil {
		return s.failAndRespawn(err)
	}
	ok, text, err = calcproto.ReadResponse(s.current.conn)
	if err != nil {
		s.logger.Warn("worker response failed", hubbot.LabelError.L(err))
		return s.failAndRespawn(err)
	}
	return ok, text, nil
}

// failAndRespawn converts a transport failure or timeout into a reported
// failure result. The framing protocol cannot abort a single in-flight
// request, so the only recovery is killing the whole worker.
func (s *Supervisor) failAndRespawn(cause error) (bool, []byte, error) {
	s.killCurrent()
	if err := s.respawn(); err != nil {
		s.logger.Error("could not respawn worker", hubbot.LabelError.L(err))
	}

	var netErr net.Error
	if errors.As(cause, &netErr) && netErr.Timeout() {
		return false, []byte("server side error: computation timed out"), nil
	}
	return false, []byte(fmt.Sprintf("server side error: %v", cause)), nil
}

func (s *Supervisor) respawn() error {
	w, err := s.spawn()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoWorker, err)
	}
	s.current = w
	metricsRespawn()
	s.logger.Info("worker spawned")
	return nil
}

func (s *Supervisor) killCurrent() {
	if s.current == nil {
		return
	}
	if err := s.current.kill(); err != nil {
		s.logger.Warn("killing worker", hubbot.LabelError.L(err))
	}
	s.current = nil
}

// ClientChanged ties the worker's lifetime to the connection: detach
// kills it, attach spawns a fresh one eagerly so the first command does
// not pay the startup cost.
func (s *Supervisor) ClientChanged(next hubbot.Client) {
	s.killCurrent()
	if next == nil {
		return
	}
	if err := s.respawn(); err != nil {
		s.logger.Error("could not spawn worker", hubbot.LabelError.L(err))
	}
}

// Close kills any live worker.
func (s *Supervisor) Close() {
	s.killCurrent()
}

// spawnProcess forks the worker binary with one end of a fresh socketpair
// as fd 3 and keeps the other end.
func spawnProcess(executable string) (*worker, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("calc: socketpair: %w", err)
	}
	parentFile := os.NewFile(uintptr(fds[0]), "calc-supervisor")
	childFile := os.NewFile(uintptr(fds[1]), "calc-worker")

	conn, err := net.FileConn(parentFile)
	parentFile.Close()
	if err != nil {
		childFile.Close()
		return nil, fmt.Errorf("calc: wrap socket: %w", err)
	}

	// The child sees its socket as fd 3, the first entry after stdio.
	cmd := exec.Command(executable, "3")
	cmd.ExtraFiles = []*os.File{childFile}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		childFile.Close()
		conn.Close()
		return nil, fmt.Errorf("calc: start %s: %w", executable, err)
	}
	childFile.Close()

	return &worker{
		conn: conn,
		kill: func() error {
			conn.Close()
			if err := cmd.Process.Kill(); err != nil {
				return err
			}
			// Reap the child so it does not linger as a zombie.
			_, err := cmd.Process.Wait()
			return err
		},
	}, nil
}
