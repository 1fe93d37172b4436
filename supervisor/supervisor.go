package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Supervisor starts and tracks child processes by Identity and by PID.
//
// Operations on one identity are serialized. Operations on different identities run concurrently.
// A terminated process stays tracked until it is reaped by Wait, WaitPid, Clean or Shutdown.
type Supervisor struct {
	log          *zap.SugaredLogger
	killSignal   syscall.Signal
	killGrace    time.Duration
	selfCommand  []string
	uriOpener    func(uri string) []string
	pipeCapacity int

	mut     sync.Mutex
	closed  bool
	byID    map[Identity]*entry
	byPID   map[int]*entry
	idLocks map[Identity]*idLock
}

type entry struct {
	id        Identity
	args      []string
	pid       int
	cmd       *exec.Cmd
	pipe      *pipeBuffer
	startedAt time.Time

	// done is closed once the process itself has exited, even if its output is still being drained.
	// exitCode and exitedAt are set before.
	done     chan struct{}
	exitCode int
	exitedAt time.Time

	// guarded by Supervisor.mut
	killed bool
	reaped bool
}

func (e *entry) terminated() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

type idLock struct {
	m    sync.Mutex
	refs int
}

type Option func(s *Supervisor)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Supervisor) {
		s.log = l.Named("supervisor")
	}
}

// WithKillGrace sets how long Kill waits after the kill signal before sending SIGKILL.
func WithKillGrace(d time.Duration) Option {
	return func(s *Supervisor) {
		s.killGrace = d
	}
}

func WithKillSignal(sig syscall.Signal) Option {
	return func(s *Supervisor) {
		s.killSignal = sig
	}
}

// WithSelfCommand sets the command line used to clone the host for Duplicate and OpenWindow.
func WithSelfCommand(argv ...string) Option {
	return func(s *Supervisor) {
		s.selfCommand = argv
	}
}

// WithURIOpener sets the function that builds the command line used by OpenURI.
func WithURIOpener(f func(uri string) []string) Option {
	return func(s *Supervisor) {
		s.uriOpener = f
	}
}

// WithPipeCapacity bounds how many bytes of unread output are kept per process. Values below 1 keep the default.
func WithPipeCapacity(n int) Option {
	return func(s *Supervisor) {
		s.pipeCapacity = n
	}
}

func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		log:          zap.NewNop().Sugar(),
		killSignal:   syscall.SIGTERM,
		killGrace:    5 * time.Second,
		uriOpener:    defaultURIOpener,
		pipeCapacity: defaultPipeCapacity,
		byID:         map[Identity]*entry{},
		byPID:        map[int]*entry{},
		idLocks:      map[Identity]*idLock{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.selfCommand == nil {
		s.selfCommand = defaultSelfCommand()
	}
	if s.pipeCapacity < 1 {
		s.pipeCapacity = defaultPipeCapacity
	}
	return s
}

func defaultSelfCommand() []string {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	return append([]string{exe}, os.Args[1:]...)
}

// lockID serializes operations on a single identity. The returned func releases the lock.
func (s *Supervisor) lockID(id Identity) func() {
	s.mut.Lock()
	l, ok := s.idLocks[id]
	if !ok {
		l = &idLock{}
		s.idLocks[id] = l
	}
	l.refs++
	s.mut.Unlock()

	l.m.Lock()
	return func() {
		l.m.Unlock()
		s.mut.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.idLocks, id)
		}
		s.mut.Unlock()
	}
}

func (s *Supervisor) lookup(id Identity) *entry {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.byID[id]
}

func (s *Supervisor) lookupPID(pid int) *entry {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.byPID[pid]
}

// Start launches argv under id and returns its PID. argv[0] is the executable.
// It fails with ErrAlreadyTracked while a process with the same identity is tracked, including one that has exited but was not reaped.
func (s *Supervisor) Start(ctx context.Context, id Identity, argv []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	unlock := s.lockID(id)
	defer unlock()
	e, err := s.startLocked(id, argv)
	if err != nil {
		return 0, err
	}
	return e.pid, nil
}

// startLocked must be called with the identity lock held.
func (s *Supervisor) startLocked(id Identity, argv []string) (*entry, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, fmt.Errorf("starting %s: %w", id, ErrEmptyCommand)
	}

	s.mut.Lock()
	closed := s.closed
	_, exists := s.byID[id]
	s.mut.Unlock()
	if closed {
		return nil, fmt.Errorf("starting %s: %w", id, ErrClosed)
	}
	if exists {
		return nil, fmt.Errorf("starting %s: %w", id, ErrAlreadyTracked)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	prepare(cmd)

	// Output goes through an OS pipe drained apart from cmd.Wait, so the exit of the
	// process is seen right away even while something it spawned still holds the pipe.
	var pipe *pipeBuffer
	var outR, outW *os.File
	if id.Type == DaemonType {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		var err error
		outR, outW, err = os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("creating output pipe for %s: %w", id, err)
		}
		pipe = newPipeBuffer(s.log.Named("pipe").With("Identity", id.String()), s.pipeCapacity)
		cmd.Stdout = outW
		cmd.Stderr = outW
	}

	if err := cmd.Start(); err != nil {
		if outR != nil {
			outR.Close()
			outW.Close()
		}
		return nil, fmt.Errorf("starting %s: %w", id, err)
	}
	if outW != nil {
		outW.Close()
		go s.drain(id, outR, pipe)
	}

	e := &entry{
		id:        id,
		args:      append([]string(nil), argv...),
		pid:       cmd.Process.Pid,
		cmd:       cmd,
		pipe:      pipe,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	go s.waitProcess(e)

	s.mut.Lock()
	s.byID[id] = e
	s.byPID[e.pid] = e
	s.mut.Unlock()

	s.log.Debugw("started process", "Identity", id.String(), "PID", e.pid, "Args", argv)
	return e, nil
}

func (s *Supervisor) waitProcess(e *entry) {
	err := e.cmd.Wait()
	exitCode := -1
	if e.cmd.ProcessState != nil {
		exitCode = e.cmd.ProcessState.ExitCode()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			s.log.Debugf("unexpected wait error for %s: %s", e.id, err)
		}
	}
	e.exitCode = exitCode
	e.exitedAt = time.Now()
	close(e.done)
	s.log.Debugw("process exited", "Identity", e.id.String(), "PID", e.pid, "ExitCode", exitCode)
}

// drain copies a process's output into its pipe buffer until every holder of the write end has closed it.
func (s *Supervisor) drain(id Identity, r *os.File, pipe *pipeBuffer) {
	defer pipe.closeWrite()
	defer r.Close()
	if _, err := io.Copy(pipe, r); err != nil {
		s.log.Debugf("error reading output of %s: %s", id, err)
	}
}

// reapWhenDone removes e from the tables as soon as it terminates. Used for fire-and-forget launches.
func (s *Supervisor) reapWhenDone(e *entry) {
	go func() {
		<-e.done
		unlock := s.lockID(e.id)
		defer unlock()
		s.reap(e)
	}()
}

// reap removes e from both tables. It returns false if e was already reaped.
func (s *Supervisor) reap(e *entry) bool {
	s.mut.Lock()
	defer s.mut.Unlock()
	if e.reaped {
		return false
	}
	e.reaped = true
	if s.byID[e.id] == e {
		delete(s.byID, e.id)
	}
	if s.byPID[e.pid] == e {
		delete(s.byPID, e.pid)
	}
	return true
}

// Kill terminates the process tracked under id and waits for it to exit. The entry stays tracked until it is reaped.
// It returns false if nothing is tracked under id or the process already exited.
func (s *Supervisor) Kill(id Identity) bool {
	unlock := s.lockID(id)
	defer unlock()
	e := s.lookup(id)
	if e == nil {
		s.log.Debugw("kill of untracked identity", "Identity", id.String())
		return false
	}
	return s.terminate(e)
}

func (s *Supervisor) terminate(e *entry) bool {
	if e.terminated() {
		return false
	}
	err := signalProcess(e.cmd.Process, s.killSignal)
	if errors.Is(err, os.ErrProcessDone) {
		<-e.done
		return false
	}
	if err != nil {
		s.log.Warnw("error signaling process, escalating", "Identity", e.id.String(), "PID", e.pid, "Error", err)
	}

	timer := time.NewTimer(s.killGrace)
	defer timer.Stop()
	select {
	case <-e.done:
	case <-timer.C:
		s.log.Warnw("process did not exit after kill signal, sending SIGKILL", "Identity", e.id.String(), "PID", e.pid)
		if err := signalProcess(e.cmd.Process, syscall.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.log.Errorw("error sending SIGKILL", "Identity", e.id.String(), "PID", e.pid, "Error", err)
		}
		<-e.done
	}

	s.mut.Lock()
	e.killed = true
	s.mut.Unlock()
	s.log.Debugw("killed process", "Identity", e.id.String(), "PID", e.pid)
	return true
}

// Has reports whether id is tracked, whether or not the process is still alive.
func (s *Supervisor) Has(id Identity) bool {
	return s.lookup(id) != nil
}

// HasPid reports whether pid is tracked under the given process type.
func (s *Supervisor) HasPid(processType string, pid int) bool {
	e := s.lookupPID(pid)
	return e != nil && e.id.Type == processType
}

// HasRunning reports whether id is tracked and its process has not terminated.
func (s *Supervisor) HasRunning(id Identity) bool {
	e := s.lookup(id)
	return e != nil && !e.terminated()
}

// Wait blocks until the process tracked under id terminates, reaps it and returns its exit code.
func (s *Supervisor) Wait(ctx context.Context, id Identity) (int, error) {
	w, err := s.Watch(id)
	if err != nil {
		return -1, err
	}
	return w.Wait(ctx)
}

// WaitPid is Wait addressed by PID.
func (s *Supervisor) WaitPid(ctx context.Context, pid int) (int, error) {
	w, err := s.WatchPid(pid)
	if err != nil {
		return -1, err
	}
	return w.Wait(ctx)
}

// Waiter is a pending wait on one tracked process.
type Waiter struct {
	s *Supervisor
	e *entry
}

// Watch resolves id now and returns a Waiter for it, so the identity is fixed at submission time even though the wait itself happens later.
func (s *Supervisor) Watch(id Identity) (*Waiter, error) {
	unlock := s.lockID(id)
	defer unlock()
	e := s.lookup(id)
	if e == nil {
		return nil, fmt.Errorf("waiting on %s: %w", id, ErrNotTracked)
	}
	return &Waiter{s: s, e: e}, nil
}

func (s *Supervisor) WatchPid(pid int) (*Waiter, error) {
	e := s.lookupPID(pid)
	if e == nil {
		return nil, fmt.Errorf("waiting on PID %d: %w", pid, ErrNotTracked)
	}
	unlock := s.lockID(e.id)
	defer unlock()
	if s.lookupPID(pid) != e {
		return nil, fmt.Errorf("waiting on PID %d: %w", pid, ErrNotTracked)
	}
	return &Waiter{s: s, e: e}, nil
}

func (w *Waiter) PID() int { return w.e.pid }

// Wait blocks until the process terminates, then reaps it.
// If ctx is done first the process stays tracked. If another waiter reaped it first, Wait fails with ErrNotTracked.
func (w *Waiter) Wait(ctx context.Context) (int, error) {
	select {
	case <-w.e.done:
	case <-ctx.Done():
		return -1, ctx.Err()
	}
	unlock := w.s.lockID(w.e.id)
	defer unlock()
	if !w.s.reap(w.e) {
		return -1, fmt.Errorf("waiting on %s: %w", w.e.id, ErrNotTracked)
	}
	w.s.log.Debugw("reaped process", "Identity", w.e.id.String(), "PID", w.e.pid, "ExitCode", w.e.exitCode)
	return w.e.exitCode, nil
}

// PipeRead reads buffered output of the process tracked as Identity{PipeType, key}.
// It returns (nil, false) when there is no such pipe or its output is closed and drained.
func (s *Supervisor) PipeRead(key string, limit int) ([]byte, bool) {
	e := s.lookup(Identity{Type: PipeType, Key: key})
	if e == nil || e.pipe == nil {
		return nil, false
	}
	return e.pipe.read(limit)
}

// PipeReadPid reads buffered output of any tracked process with a pipe.
func (s *Supervisor) PipeReadPid(pid int, limit int) ([]byte, bool) {
	e := s.lookupPID(pid)
	if e == nil || e.pipe == nil {
		return nil, false
	}
	return e.pipe.read(limit)
}

// Clean reaps every terminated process and returns how many were removed.
func (s *Supervisor) Clean() int {
	s.mut.Lock()
	var dead []*entry
	for _, e := range s.byID {
		if e.terminated() {
			dead = append(dead, e)
		}
	}
	s.mut.Unlock()

	n := 0
	for _, e := range dead {
		unlock := s.lockID(e.id)
		if s.reap(e) {
			n++
		}
		unlock()
	}
	if n > 0 {
		s.log.Debugf("cleaned %d terminated processes", n)
	}
	return n
}

// List returns a snapshot of every tracked process, ordered by identity.
func (s *Supervisor) List() []Info {
	s.mut.Lock()
	defer s.mut.Unlock()
	infos := make([]Info, 0, len(s.byID))
	for _, e := range s.byID {
		info := Info{
			Identity:  e.id,
			PID:       e.pid,
			Args:      e.args,
			State:     Running,
			StartedAt: e.startedAt,
		}
		if e.terminated() {
			info.State = Exited
			if e.killed {
				info.State = Killed
			}
			info.ExitCode = e.exitCode
			info.ExitedAt = e.exitedAt
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Identity.Type != infos[j].Identity.Type {
			return infos[i].Identity.Type < infos[j].Identity.Type
		}
		return infos[i].Identity.Key < infos[j].Identity.Key
	})
	return infos
}

// Shutdown kills every running process except daemons, then forgets all tracked processes.
// Starts after Shutdown fail with ErrClosed.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mut.Lock()
	s.closed = true
	var entries []*entry
	for _, e := range s.byID {
		entries = append(entries, e)
	}
	s.mut.Unlock()

	group := &errgroup.Group{}
	for _, e := range entries {
		e := e
		if e.id.Type == DaemonType {
			continue
		}
		group.Go(func() error {
			unlock := s.lockID(e.id)
			defer unlock()
			s.terminate(e)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return fmt.Errorf("shutting down supervisor: %w", ctx.Err())
	}

	for _, e := range entries {
		s.reap(e)
	}
	s.log.Debugf("supervisor shut down, %d processes released", len(entries))
	return nil
}
