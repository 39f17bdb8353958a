package queue

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/transport/v3/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingScanner struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingScanner) PauseScan()  { s.record("pause") }
func (s *recordingScanner) ResumeScan() { s.record("resume") }

func (s *recordingScanner) record(e string) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordingScanner) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func TestFIFOWithRandomDurations(t *testing.T) {
	defer test.CheckRoutines(t)()

	q := New(Config{})
	defer q.Close()

	rng := rand.New(rand.NewSource(1))
	var (
		mu    sync.Mutex
		order []string
	)
	names := []string{"A", "B", "C", "D", "E"}
	futures := make([]*Future[string], len(names))
	for i, name := range names {
		d := time.Duration(rng.Intn(20)) * time.Millisecond
		futures[i] = Submit(q, func(ctx context.Context) (string, error) {
			mu.Lock()
			order = append(order, name+"-start")
			mu.Unlock()
			time.Sleep(d)
			mu.Lock()
			order = append(order, name+"-end")
			mu.Unlock()
			return name, nil
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i, f := range futures {
		v, err := f.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, names[i], v)
	}

	// Strictly serialized: each operation ends before the next starts.
	want := []string{}
	for _, n := range names {
		want = append(want, n+"-start", n+"-end")
	}
	assert.Equal(t, want, order)
}

func TestFailureDoesNotCancelSuccessors(t *testing.T) {
	q := New(Config{})
	defer q.Close()

	boom := errors.New("boom")
	a := Submit(q, func(ctx context.Context) (int, error) { return 1, nil })
	b := Submit(q, func(ctx context.Context) (int, error) { return 0, boom })
	c := Submit(q, func(ctx context.Context) (int, error) { return 3, nil })

	ctx := context.Background()
	v, err := a.Wait(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = b.Wait(ctx)
	assert.ErrorIs(t, err, boom)

	v, err = c.Wait(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestScannerPausedWhileBusy(t *testing.T) {
	sc := &recordingScanner{}
	idle := make(chan struct{}, 4)
	q := New(Config{Scanner: sc, OnIdle: func() { idle <- struct{}{} }})
	defer q.Close()

	release := make(chan struct{})
	f1 := Submit(q, func(ctx context.Context) (struct{}, error) {
		<-release
		return struct{}{}, nil
	})
	f2 := Submit(q, func(ctx context.Context) (struct{}, error) { return struct{}{}, nil })

	require.Eventually(t, func() bool { return len(sc.snapshot()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"pause"}, sc.snapshot())

	close(release)
	_, _ = f1.Wait(context.Background())
	_, _ = f2.Wait(context.Background())

	select {
	case <-idle:
	case <-time.After(time.Second):
		t.Fatal("OnIdle not called")
	}
	// One pause and one resume for the whole burst.
	assert.Equal(t, []string{"pause", "resume"}, sc.snapshot())
}

func TestCloseFailsPending(t *testing.T) {
	defer test.CheckRoutines(t)()

	q := New(Config{})
	started := make(chan struct{})
	running := Submit(q, func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	<-started
	pending := Submit(q, func(ctx context.Context) (int, error) { return 1, nil })

	require.NoError(t, q.Close())

	_, err := running.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	_, err = pending.Wait(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	late := Submit(q, func(ctx context.Context) (int, error) { return 2, nil })
	select {
	case <-late.Done():
	default:
		t.Fatal("future on closed queue not completed")
	}
	_, err = late.Wait(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	assert.NoError(t, q.Close(), "second close")
}

func TestWaitHonorsContext(t *testing.T) {
	q := New(Config{})
	defer q.Close()

	release := make(chan struct{})
	defer close(release)
	f := Submit(q, func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo(t *testing.T) {
	q := New(Config{})
	defer q.Close()

	v, err := Do(context.Background(), q, func(ctx context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

type fakeLink struct {
	name   string
	record func(string)
}

func (l *fakeLink) Release() { l.record("release " + l.name) }

func TestHeldLinkIsExclusive(t *testing.T) {
	defer test.CheckRoutines(t)()
	defer test.TimeOut(5 * time.Second).Stop()

	mock := clock.NewMock()
	sc := &recordingScanner{}
	q := New(Config{Scanner: sc, Linger: time.Second, Clock: mock})
	defer q.Close()
	ctx := context.Background()

	a := &fakeLink{name: "a", record: sc.record}
	b := &fakeLink{name: "b", record: sc.record}
	hold := func(l Link) func(context.Context) (int, error) {
		return func(context.Context) (int, error) {
			q.Hold(l)
			return 0, nil
		}
	}

	fa := Submit(q, hold(a))
	fa2 := Submit(q, hold(a))
	fb := Submit(q, hold(b))
	for _, f := range []*Future[int]{fa, fa2, fb} {
		_, err := f.Wait(ctx)
		require.NoError(t, err)
	}

	// The drained queue keeps b open until the linger expires, then
	// releases it before scanning resumes.
	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		return len(sc.snapshot()) == 4
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"pause", "release a", "release b", "resume"}, sc.snapshot())
	assert.False(t, q.Holding())
}

func TestDroppedLinkIsNotReleased(t *testing.T) {
	defer test.CheckRoutines(t)()

	sc := &recordingScanner{}
	q := New(Config{Scanner: sc, Linger: -1})
	a := &fakeLink{name: "a", record: sc.record}

	_, err := Do(context.Background(), q, func(context.Context) (int, error) {
		q.Hold(a)
		q.Drop(a)
		return 0, nil
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(sc.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"pause", "resume"}, sc.snapshot())

	b := &fakeLink{name: "b", record: sc.record}
	q.Hold(b)
	require.NoError(t, q.Close())
	assert.Equal(t, "release b", sc.snapshot()[len(sc.snapshot())-1], "Close releases the held link")
}
