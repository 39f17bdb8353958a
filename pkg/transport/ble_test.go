package transport_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/backkem/hap/internal/hapsim"
	"github.com/backkem/hap/pkg/accessory"
	"github.com/backkem/hap/pkg/hap"
	"github.com/backkem/hap/pkg/pairing"
	"github.com/backkem/hap/pkg/queue"
	"github.com/backkem/hap/pkg/transport"
	"github.com/benbjohnson/clock"
	"github.com/pion/transport/v3/test"
	"github.com/rigado/ble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var peripheralAddr = ble.NewAddr("aa:bb:cc:dd:ee:ff")

type bleFixture struct {
	acc   *hapsim.Accessory
	per   *hapsim.Peripheral
	clock *clock.Mock
	sess  *transport.BLESession
}

func newBLEFixture(t *testing.T) *bleFixture {
	t.Helper()
	acc := newAccessory(t, "")
	per, err := hapsim.NewPeripheral(hapsim.PeripheralConfig{Accessory: acc})
	require.NoError(t, err)

	cfg := transport.BLEConfig{Peripheral: peripheralAddr, Dialer: per}
	ex, err := transport.NewBLEPairingExchanger(cfg)
	require.NoError(t, err)
	data := pair(t, ex)
	require.NoError(t, ex.Close())

	mock := clock.NewMock()
	cfg.Data = data
	cfg.Clock = mock
	sess, err := transport.OpenBLE(context.Background(), cfg)
	require.NoError(t, err)
	return &bleFixture{acc: acc, per: per, clock: mock, sess: sess}
}

func TestBLEConfig_Validate(t *testing.T) {
	cfg := transport.BLEConfig{}
	assert.ErrorIs(t, cfg.Validate(), transport.ErrNoAddress)

	cfg.Peripheral = peripheralAddr
	assert.ErrorIs(t, cfg.Validate(), transport.ErrNoDialer)
}

func TestBLESession_ReadWrite(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()
	defer test.CheckRoutines(t)()

	f := newBLEFixture(t)
	defer func() { _ = f.sess.Close() }()
	ctx := context.Background()

	db, err := f.sess.Accessories(ctx)
	require.NoError(t, err)
	require.Len(t, db.Accessories, 1)
	acc := db.Accessory(1)
	require.NotNil(t, acc)
	require.Len(t, acc.Services, 2, "pairing service is not part of the database")

	bri, err := db.Find(idBrightness)
	require.NoError(t, err)
	assert.Equal(t, accessory.FormatInt, bri.Format)
	require.NotNil(t, bri.MaxValue)
	assert.Equal(t, 100.0, *bri.MaxValue)
	assert.True(t, bri.Notifies())

	values, err := f.sess.GetCharacteristics(ctx, []accessory.ID{idBrightness, idTemperature, idIdentify, {AID: 1, IID: 99}})
	require.NoError(t, err)
	assert.Equal(t, int64(50), values[0].Value)
	assert.InDelta(t, 21.5, values[1].Value, 1e-6)
	assert.Equal(t, accessory.StatusWriteOnly, values[2].Status)
	assert.Equal(t, accessory.StatusResourceDoesNotExist, values[3].Status)

	require.NoError(t, f.sess.SetCharacteristics(ctx, map[accessory.ID]any{idBrightness: 75, idOn: true}))
	v, _ := f.acc.Value(idBrightness)
	assert.Equal(t, int64(75), v)
	v, _ = f.acc.Value(idOn)
	assert.Equal(t, true, v)

	err = f.sess.SetCharacteristics(ctx, map[accessory.ID]any{idTemperature: 30})
	assert.ErrorIs(t, err, accessory.ErrNotWritable)
}

func TestBLESession_ReconnectsAfterDrop(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()
	defer test.CheckRoutines(t)()

	f := newBLEFixture(t)
	defer func() { _ = f.sess.Close() }()
	ctx := context.Background()

	_, err := f.sess.Accessories(ctx)
	require.NoError(t, err)
	dials := f.per.Dials()

	f.per.Disconnect()
	_, err = f.sess.GetCharacteristics(ctx, []accessory.ID{idOn})
	assert.ErrorIs(t, err, transport.ErrConnectionLost, "the procedure on the dead link fails")

	values, err := f.sess.GetCharacteristics(ctx, []accessory.ID{idOn})
	require.NoError(t, err)
	assert.Equal(t, accessory.StatusSuccess, values[0].Status)
	assert.Equal(t, dials+1, f.per.Dials())

	f.per.SetDialError(errors.New("out of range"))
	f.per.Disconnect()
	_, _ = f.sess.GetCharacteristics(ctx, []accessory.ID{idOn})
	_, err = f.sess.GetCharacteristics(ctx, []accessory.ID{idOn})
	assert.ErrorIs(t, err, hap.ErrTransport)
}

func TestBLESession_PollEmitsChanges(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()
	defer test.CheckRoutines(t)()

	f := newBLEFixture(t)
	defer func() { _ = f.sess.Close() }()
	ctx := context.Background()

	_, err := f.sess.Subscribe(ctx, []accessory.ID{idName})
	assert.ErrorIs(t, err, accessory.ErrNoNotify)

	sub, err := f.sess.Subscribe(ctx, []accessory.ID{idOn})
	require.NoError(t, err)

	assert.False(t, f.sess.NotifyGSN(f.acc.GSN()), "first GSN only sets the baseline")
	require.NoError(t, f.acc.SetValue(idOn, true))
	assert.True(t, f.sess.NotifyGSN(f.acc.GSN()))

	ev := <-sub.Events()
	assert.Equal(t, transport.Event{ID: idOn, Value: true}, ev)

	require.NoError(t, f.acc.SetValue(idOn, false))
	f.clock.Add(transport.DefaultPollInterval)

	ev = <-sub.Events()
	assert.Equal(t, transport.Event{ID: idOn, Value: false}, ev)

	require.NoError(t, f.sess.Unsubscribe(ctx, []accessory.ID{idOn}))
	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestBLESession_PollFailureFailsSubscription(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()
	defer test.CheckRoutines(t)()

	f := newBLEFixture(t)
	defer func() { _ = f.sess.Close() }()
	ctx := context.Background()

	sub, err := f.sess.Subscribe(ctx, []accessory.ID{idOn})
	require.NoError(t, err)
	assert.False(t, f.sess.NotifyGSN(f.acc.GSN()))

	f.per.SetDialError(errors.New("out of range"))
	f.per.Disconnect()
	require.NoError(t, f.acc.SetValue(idOn, true))
	assert.True(t, f.sess.NotifyGSN(f.acc.GSN()))

	var got error
	require.Eventually(t, func() bool {
		select {
		case got = <-sub.Errors():
			return true
		default:
			f.clock.Add(time.Second)
			return false
		}
	}, 10*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, got, transport.ErrPollFailed)
	assert.ErrorIs(t, got, transport.ErrConnectionLost)
	assert.True(t, hap.IsRetryable(got))
	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestBLESession_Pairings(t *testing.T) {
	f := newBLEFixture(t)
	defer func() { _ = f.sess.Close() }()

	list, err := pairing.ListPairings(context.Background(), f.sess.Pairings())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Admin)
}

func TestBLESession_SharedQueue(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()
	defer test.CheckRoutines(t)()

	var busy int
	q := queue.New(queue.Config{OnBusy: func() { busy++ }})
	defer func() { _ = q.Close() }()

	acc := newAccessory(t, "")
	per, err := hapsim.NewPeripheral(hapsim.PeripheralConfig{Accessory: acc, MTU: 512})
	require.NoError(t, err)
	cfg := transport.BLEConfig{Peripheral: peripheralAddr, Dialer: per, Queue: q}

	ex, err := transport.NewBLEPairingExchanger(cfg)
	require.NoError(t, err)
	cfg.Data = pair(t, ex)
	require.NoError(t, ex.Close())

	sess, err := transport.OpenBLE(context.Background(), cfg)
	require.NoError(t, err)
	_, err = sess.Accessories(context.Background())
	require.NoError(t, err)
	require.NoError(t, sess.Close())

	assert.Positive(t, busy)
	_, err = queue.Do(context.Background(), q, func(context.Context) (int, error) { return 1, nil })
	assert.NoError(t, err, "closing the session leaves a shared queue open")
}

// linkCounter tracks how many GATT links are open at once.
type linkCounter struct {
	open atomic.Int32
	peak atomic.Int32
}

func (c *linkCounter) dialer(d transport.GATTDialer) transport.GATTDialer {
	return transport.GATTDialerFunc(func(ctx context.Context, addr ble.Addr) (transport.GATTLink, error) {
		l, err := d.Dial(ctx, addr)
		if err != nil {
			return nil, err
		}
		n := c.open.Add(1)
		for {
			p := c.peak.Load()
			if n <= p || c.peak.CompareAndSwap(p, n) {
				break
			}
		}
		return &countedLink{GATTLink: l, c: c}, nil
	})
}

type countedLink struct {
	transport.GATTLink
	c    *linkCounter
	once sync.Once
}

func (l *countedLink) Close() error {
	l.once.Do(func() { l.c.open.Add(-1) })
	return l.GATTLink.Close()
}

func TestBLESession_OneLinkAcrossAccessories(t *testing.T) {
	lim := test.TimeOut(30 * time.Second)
	defer lim.Stop()
	defer test.CheckRoutines(t)()

	q := queue.New(queue.Config{Linger: 50 * time.Millisecond})
	defer func() { _ = q.Close() }()
	var links linkCounter
	ctx := context.Background()

	var sessions []*transport.BLESession
	for _, id := range []string{"11:11:11:11:11:11", "22:22:22:22:22:22"} {
		per, err := hapsim.NewPeripheral(hapsim.PeripheralConfig{Accessory: newAccessory(t, id)})
		require.NoError(t, err)
		cfg := transport.BLEConfig{Peripheral: ble.NewAddr(id), Dialer: links.dialer(per), Queue: q}

		ex, err := transport.NewBLEPairingExchanger(cfg)
		require.NoError(t, err)
		cfg.Data = pair(t, ex)
		require.NoError(t, ex.Close())

		sess, err := transport.OpenBLE(ctx, cfg)
		require.NoError(t, err)
		defer func() { _ = sess.Close() }()
		sessions = append(sessions, sess)
	}

	for i := 0; i < 2; i++ {
		for _, sess := range sessions {
			values, err := sess.GetCharacteristics(ctx, []accessory.ID{idOn, idBrightness})
			require.NoError(t, err)
			assert.Equal(t, int64(50), values[1].Value)
		}
	}
	assert.Equal(t, int32(1), links.peak.Load(), "never more than one open link")

	require.Eventually(t, func() bool {
		return links.open.Load() == 0
	}, 5*time.Second, 10*time.Millisecond, "the drained queue closes the held link")
	assert.False(t, q.Holding())
}
