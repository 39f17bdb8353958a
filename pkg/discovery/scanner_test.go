package discovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/backkem/hap/pkg/hap"
	"github.com/backkem/hap/pkg/queue"
	"github.com/pion/transport/v3/test"
	"github.com/rigado/ble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRadio delivers advertisements pushed by the test to whichever scan
// is currently running.
type fakeRadio struct {
	mu     sync.Mutex
	scans  int
	active chan ble.Advertisement
	runs   chan bool
}

func newFakeRadio() *fakeRadio {
	return &fakeRadio{runs: make(chan bool, 16)}
}

func (r *fakeRadio) scan(ctx context.Context, _ bool, h ble.AdvHandler, f ble.AdvFilter) error {
	advs := make(chan ble.Advertisement)
	r.mu.Lock()
	r.scans++
	r.active = advs
	r.mu.Unlock()
	r.runs <- true
	defer func() {
		r.mu.Lock()
		r.active = nil
		r.mu.Unlock()
		r.runs <- false
	}()

	for {
		select {
		case a := <-advs:
			if f(a) {
				h(a)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *fakeRadio) push(t *testing.T, a ble.Advertisement) {
	t.Helper()
	r.mu.Lock()
	ch := r.active
	r.mu.Unlock()
	require.NotNil(t, ch, "no scan running")
	ch <- a
}

func TestScanner_Dedupe(t *testing.T) {
	lim := test.TimeOut(5 * time.Second)
	defer lim.Stop()

	radio := newFakeRadio()
	got := make(chan *hap.AccessoryDescriptor, 8)
	s := NewScanner(ScannerConfig{
		Scan:    radio.scan,
		Handler: func(d *hap.AccessoryDescriptor) { got <- d },
	})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
	require.True(t, <-radio.runs)

	addr := ble.NewAddr("aa:bb:cc:00:11:22")
	radio.push(t, &fakeAdv{mfg: hapMfg(0, 1, 1, false), addr: addr})
	radio.push(t, &fakeAdv{mfg: hapMfg(0, 1, 1, false), addr: addr})
	radio.push(t, &fakeAdv{mfg: []byte{0x4C, 0x00, 0x02, 0x15}, addr: addr})
	radio.push(t, &fakeAdv{mfg: hapMfg(0, 2, 1, false), addr: addr})
	radio.push(t, &fakeAdv{mfg: hapMfg(1, 2, 1, false), addr: addr})

	assert.Equal(t, uint16(1), (<-got).GlobalStateNumber)
	assert.Equal(t, uint16(2), (<-got).GlobalStateNumber)
	last := <-got
	assert.False(t, last.Paired())
	assert.Empty(t, got)
}

func TestScanner_PausedByQueue(t *testing.T) {
	lim := test.TimeOut(5 * time.Second)
	defer lim.Stop()

	radio := newFakeRadio()
	s := NewScanner(ScannerConfig{
		Scan:    radio.scan,
		Handler: func(*hap.AccessoryDescriptor) {},
	})
	require.NoError(t, s.Start(context.Background()))
	require.True(t, <-radio.runs)

	q := queue.New(queue.Config{Scanner: s})
	defer q.Close()

	paused, err := queue.Do(context.Background(), q, func(context.Context) (bool, error) {
		radio.mu.Lock()
		defer radio.mu.Unlock()
		return radio.active == nil, nil
	})
	require.NoError(t, err)
	assert.True(t, paused)

	assert.False(t, <-radio.runs, "paused before the operation ran")
	assert.True(t, <-radio.runs, "resumed when the queue drained")

	s.Stop()
	assert.False(t, <-radio.runs)
	radio.mu.Lock()
	assert.Equal(t, 2, radio.scans)
	radio.mu.Unlock()
}

func TestScanner_ResumeWhileStopped(t *testing.T) {
	radio := newFakeRadio()
	s := NewScanner(ScannerConfig{Scan: radio.scan, Handler: func(*hap.AccessoryDescriptor) {}})
	s.PauseScan()
	s.ResumeScan()
	s.Stop()
	assert.Empty(t, radio.runs)
}
