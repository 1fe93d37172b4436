//go:build !windows

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

func newTestSupervisor(t *testing.T, opts ...Option) *Supervisor {
	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t).Sugar()),
		WithKillGrace(time.Second),
	}, opts...)
	s := New(opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		assert.NoError(t, s.Shutdown(ctx))
	})
	return s
}

func sh(script string) []string {
	return []string{"sh", "-c", script}
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t)
	id := Identity{Type: "svc", Key: "a"}

	pid, err := s.Start(ctx, id, sh("sleep 0.3; exit 3"))
	require.NoError(t, err)
	assert.Greater(t, pid, 0)
	assert.True(t, s.HasRunning(id))
	assert.True(t, s.Has(id))
	assert.True(t, s.HasPid("svc", pid))

	require.Eventually(t, func() bool { return !s.HasRunning(id) }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, s.Has(id), "an exited but unreaped process is still tracked")

	code, err := s.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.False(t, s.Has(id))
	assert.False(t, s.HasPid("svc", pid))
}

func TestStartRejectsTrackedIdentity(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t)
	id := Identity{Type: "worker", Key: "a"}

	_, err := s.Start(ctx, id, sh("sleep 5"))
	require.NoError(t, err)

	_, err = s.Start(ctx, id, sh("sleep 5"))
	require.ErrorIs(t, err, ErrAlreadyTracked)

	// a different type with the same key is a different identity
	_, err = s.Start(ctx, Identity{Type: "other", Key: "a"}, sh("sleep 5"))
	require.NoError(t, err)
}

func TestStartRejectsUnreapedIdentity(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t)
	id := Identity{Type: "worker", Key: "a"}

	_, err := s.Start(ctx, id, sh("exit 0"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !s.HasRunning(id) }, 5*time.Second, 10*time.Millisecond)

	_, err = s.Start(ctx, id, sh("exit 0"))
	require.ErrorIs(t, err, ErrAlreadyTracked)

	_, err = s.Wait(ctx, id)
	require.NoError(t, err)

	_, err = s.Start(ctx, id, sh("exit 0"))
	require.NoError(t, err)
}

func TestStartErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t)

	_, err := s.Start(ctx, Identity{Type: "worker", Key: "a"}, nil)
	require.ErrorIs(t, err, ErrEmptyCommand)

	_, err = s.Start(ctx, Identity{Type: "worker", Key: "b"}, []string{"/nonexistent/binary"})
	require.Error(t, err)
	assert.False(t, s.Has(Identity{Type: "worker", Key: "b"}))
}

func TestKillAbsent(t *testing.T) {
	s := newTestSupervisor(t)
	assert.False(t, s.Kill(Identity{Type: "worker", Key: "missing"}))
}

func TestKill(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t)
	id := Identity{Type: "worker", Key: "a"}

	_, err := s.Start(ctx, id, sh("sleep 30"))
	require.NoError(t, err)

	assert.True(t, s.Kill(id))
	assert.False(t, s.HasRunning(id))
	assert.True(t, s.Has(id))
	assert.False(t, s.Kill(id), "killing an exited process does nothing")

	info := s.List()
	require.Len(t, info, 1)
	assert.Equal(t, Killed, info[0].State)

	code, err := s.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, -1, code)
}

func TestKillEscalates(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t, WithKillGrace(200*time.Millisecond))
	id := Identity{Type: "worker", Key: "stubborn"}

	_, err := s.Start(ctx, id, sh("trap '' TERM; while true; do sleep 0.05; done"))
	require.NoError(t, err)
	// give the shell time to install the trap
	time.Sleep(200 * time.Millisecond)

	assert.True(t, s.Kill(id))
	assert.False(t, s.HasRunning(id))
}

func TestKillAfterNaturalExit(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t)
	id := Identity{Type: "worker", Key: "a"}

	_, err := s.Start(ctx, id, sh("exit 0"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !s.HasRunning(id) }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, s.Kill(id))
}

func TestWaitOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t)
	id := Identity{Type: "worker", Key: "a"}

	_, err := s.Start(ctx, id, sh("exit 7"))
	require.NoError(t, err)

	code, err := s.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 7, code)

	_, err = s.Wait(ctx, id)
	require.ErrorIs(t, err, ErrNotTracked)
}

func TestWaitPid(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t)

	pid, err := s.Start(ctx, Identity{Type: "worker", Key: "a"}, sh("exit 4"))
	require.NoError(t, err)

	code, err := s.WaitPid(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, 4, code)

	_, err = s.WaitPid(ctx, pid)
	require.ErrorIs(t, err, ErrNotTracked)
	assert.False(t, s.Has(Identity{Type: "worker", Key: "a"}))
}

func TestWaitCanceledKeepsTracking(t *testing.T) {
	s := newTestSupervisor(t)
	id := Identity{Type: "worker", Key: "a"}

	_, err := s.Start(context.Background(), id, sh("sleep 30"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.Wait(ctx, id)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, s.HasRunning(id))
}

func TestKillResolvesPendingWait(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t)
	id := Identity{Type: "worker", Key: "a"}

	_, err := s.Start(ctx, id, sh("sleep 30"))
	require.NoError(t, err)

	w, err := s.Watch(id)
	require.NoError(t, err)

	type result struct {
		code int
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		code, err := w.Wait(ctx)
		resCh <- result{code: code, err: err}
	}()

	assert.True(t, s.Kill(id))
	select {
	case res := <-resCh:
		require.NoError(t, res.err)
		assert.Equal(t, -1, res.code)
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not resolve after kill")
	}
	assert.False(t, s.Has(id))
}

func TestConcurrentStartSameIdentity(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t)
	id := Identity{Type: "worker", Key: "race"}

	var started, rejected atomic.Int32
	group := &errgroup.Group{}
	for i := 0; i < 8; i++ {
		group.Go(func() error {
			_, err := s.Start(ctx, id, sh("sleep 5"))
			switch {
			case err == nil:
				started.Add(1)
			case errors.Is(err, ErrAlreadyTracked):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())
	assert.EqualValues(t, 1, started.Load())
	assert.EqualValues(t, 7, rejected.Load())
}

func TestConcurrentWaiters(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t)
	id := Identity{Type: "worker", Key: "a"}

	_, err := s.Start(ctx, id, sh("sleep 0.2; exit 2"))
	require.NoError(t, err)

	var reaped, notTracked atomic.Int32
	group := &errgroup.Group{}
	for i := 0; i < 4; i++ {
		group.Go(func() error {
			code, err := s.Wait(ctx, id)
			switch {
			case err == nil:
				if code != 2 {
					return errors.New("unexpected exit code")
				}
				reaped.Add(1)
			case errors.Is(err, ErrNotTracked):
				notTracked.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())
	assert.EqualValues(t, 1, reaped.Load())
	assert.EqualValues(t, 3, notTracked.Load())
}

func TestConcurrentDistinctIdentities(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t)

	group, groupCtx := errgroup.WithContext(ctx)
	for _, key := range []string{"a", "b", "c", "d", "e"} {
		id := Identity{Type: "worker", Key: key}
		group.Go(func() error {
			if _, err := s.Start(groupCtx, id, sh("exit 0")); err != nil {
				return err
			}
			_, err := s.Wait(groupCtx, id)
			return err
		})
	}
	require.NoError(t, group.Wait())
	assert.Empty(t, s.List())
}

func TestPipeRead(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t)
	id := Identity{Type: PipeType, Key: "out"}

	pid, err := s.Start(ctx, id, sh("printf hello; printf ' world' 1>&2"))
	require.NoError(t, err)

	var got []byte
	require.Eventually(t, func() bool {
		b, ok := s.PipeRead("out", 3)
		if !ok {
			return true
		}
		got = append(got, b...)
		return false
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "hello world", string(got))

	b, ok := s.PipeRead("out", 0)
	assert.False(t, ok)
	assert.Nil(t, b)

	b, ok = s.PipeReadPid(pid, 0)
	assert.False(t, ok)
	assert.Nil(t, b)
}

func TestExitSeenWhileOutputHeld(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t)
	id := Identity{Type: PipeType, Key: "spawner"}

	// the background sleep inherits the output pipe and outlives its parent
	pid, err := s.Start(ctx, id, sh("sleep 30 & printf started; exit 4"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = syscall.Kill(-pid, syscall.SIGKILL) })

	require.Eventually(t, func() bool { return !s.HasRunning(id) }, time.Second, 10*time.Millisecond)
	assert.False(t, s.Kill(id), "the process already exited")

	var got []byte
	require.Eventually(t, func() bool {
		b, ok := s.PipeRead("spawner", 0)
		if !ok {
			return false
		}
		got = append(got, b...)
		return string(got) == "started"
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, syscall.Kill(-pid, syscall.SIGKILL))
	require.Eventually(t, func() bool {
		_, ok := s.PipeRead("spawner", 0)
		return !ok
	}, 5*time.Second, 10*time.Millisecond)

	code, err := s.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 4, code)
}

func TestPipeCapacityBelowOne(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t, WithPipeCapacity(-1))

	_, err := s.Start(ctx, Identity{Type: PipeType, Key: "out"}, sh("printf hello"))
	require.NoError(t, err)

	var got []byte
	require.Eventually(t, func() bool {
		b, ok := s.PipeRead("out", 0)
		got = append(got, b...)
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "hello", string(got))
}

func TestPipeReadNothingYet(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t)

	pid, err := s.Start(ctx, Identity{Type: PipeType, Key: "quiet"}, sh("sleep 5"))
	require.NoError(t, err)

	b, ok := s.PipeRead("quiet", 0)
	require.True(t, ok)
	assert.NotNil(t, b)
	assert.Empty(t, b)

	b, ok = s.PipeReadPid(pid, 0)
	require.True(t, ok)
	assert.Empty(t, b)
}

func TestPipeReadMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t)

	b, ok := s.PipeRead("missing", 0)
	assert.False(t, ok)
	assert.Nil(t, b)

	// only the pipe namespace is addressed by key
	_, err := s.Start(ctx, Identity{Type: "worker", Key: "w"}, sh("sleep 5"))
	require.NoError(t, err)
	_, ok = s.PipeRead("w", 0)
	assert.False(t, ok)
}

func TestDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t, WithSelfCommand("sh", "-c", "sleep 0.2"))

	pid, err := s.Duplicate(ctx)
	require.NoError(t, err)
	assert.True(t, s.HasPid(DuplicateType, pid))

	require.Eventually(t, func() bool { return !s.HasPid(DuplicateType, pid) }, 5*time.Second, 10*time.Millisecond)
}

func TestOpenURI(t *testing.T) {
	ctx := context.Background()
	var opened atomic.Value
	s := newTestSupervisor(t, WithURIOpener(func(uri string) []string {
		opened.Store(uri)
		return sh("exit 0")
	}))

	require.NoError(t, s.OpenURI(ctx, "https://example.com"))
	assert.Equal(t, "https://example.com", opened.Load())
	require.Eventually(t, func() bool { return len(s.List()) == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestOpenWindowSingle(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t, WithSelfCommand("sh", "-c", "sleep 5", "host"))

	require.NoError(t, s.OpenWindow(ctx, "main", true))
	require.NoError(t, s.OpenWindow(ctx, "main", true))
	infos := s.List()
	require.Len(t, infos, 1)
	assert.Equal(t, Identity{Type: WindowType, Key: "main"}, infos[0].Identity)
	assert.Equal(t, []string{"sh", "-c", "sleep 5", "host", "--page", "main"}, infos[0].Args)

	require.True(t, s.Kill(Identity{Type: WindowType, Key: "main"}))
	// a dead predecessor is replaced
	require.NoError(t, s.OpenWindow(ctx, "main", true))
	assert.True(t, s.HasRunning(Identity{Type: WindowType, Key: "main"}))

	require.NoError(t, s.OpenWindow(ctx, "main", false))
	assert.Len(t, s.List(), 2)
}

func TestClean(t *testing.T) {
	ctx := context.Background()
	s := newTestSupervisor(t)

	for _, key := range []string{"a", "b"} {
		_, err := s.Start(ctx, Identity{Type: "worker", Key: key}, sh("exit 0"))
		require.NoError(t, err)
	}
	_, err := s.Start(ctx, Identity{Type: "worker", Key: "c"}, sh("sleep 5"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !s.HasRunning(Identity{Type: "worker", Key: "a"}) && !s.HasRunning(Identity{Type: "worker", Key: "b"})
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, s.Clean())
	assert.Equal(t, 0, s.Clean())
	assert.True(t, s.Has(Identity{Type: "worker", Key: "c"}))
}

func TestShutdown(t *testing.T) {
	ctx := context.Background()
	s := New(WithLogger(zaptest.NewLogger(t).Sugar()), WithKillGrace(time.Second))

	id := Identity{Type: "worker", Key: "a"}
	_, err := s.Start(ctx, id, sh("sleep 30"))
	require.NoError(t, err)

	require.NoError(t, s.Shutdown(ctx))
	assert.False(t, s.Has(id))

	_, err = s.Start(ctx, id, sh("exit 0"))
	require.ErrorIs(t, err, ErrClosed)
}
