package transport

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/backkem/hap/pkg/hap"
	"github.com/benbjohnson/clock"
	"github.com/pion/transport/v3/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoller_NilPoll(t *testing.T) {
	_, err := NewPoller(PollerConfig{})
	assert.ErrorIs(t, err, ErrNilPoll)
}

func TestPoller_IntervalAndGSN(t *testing.T) {
	lim := test.TimeOut(5 * time.Second)
	defer lim.Stop()
	defer test.CheckRoutines(t)()

	mock := clock.NewMock()
	polls := make(chan struct{}, 8)
	var count atomic.Int32
	p, err := NewPoller(PollerConfig{
		Poll: func(context.Context) error {
			count.Add(1)
			polls <- struct{}{}
			return nil
		},
		Interval: time.Minute,
		Clock:    mock,
	})
	require.NoError(t, err)

	assert.False(t, p.NotifyGSN(10), "baseline")
	assert.False(t, p.NotifyGSN(10))

	p.Start()
	p.Start()
	assert.True(t, p.Running())

	mock.Add(time.Minute)
	<-polls

	assert.True(t, p.NotifyGSN(11))
	<-polls

	mock.Add(30 * time.Second)
	select {
	case <-polls:
		t.Fatal("polled before the interval elapsed")
	case <-time.After(20 * time.Millisecond):
	}

	p.Stop()
	assert.False(t, p.Running())
	assert.Equal(t, int32(2), count.Load())

	p.Trigger()
	mock.Add(time.Hour)
	assert.Equal(t, int32(2), count.Load(), "no polls after Stop")
}

func TestPoller_FailureAfterRetries(t *testing.T) {
	lim := test.TimeOut(5 * time.Second)
	defer lim.Stop()
	defer test.CheckRoutines(t)()

	errLost := fmt.Errorf("link lost: %w", hap.ErrTransport)
	errDenied := fmt.Errorf("denied: %w", hap.ErrAuthentication)

	tests := []struct {
		name    string
		cause   error
		polls   int32
		wrapped bool
	}{
		{name: "transport", cause: errLost, polls: 3, wrapped: true},
		{name: "authentication", cause: errDenied, polls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := clock.NewMock()
			var count atomic.Int32
			failures := make(chan error, 4)
			p, err := NewPoller(PollerConfig{
				Poll: func(context.Context) error {
					count.Add(1)
					return tt.cause
				},
				Interval:      time.Hour,
				RetryDelay:    time.Minute,
				RetryAttempts: 3,
				OnFailure:     func(err error) { failures <- err },
				Clock:         mock,
			})
			require.NoError(t, err)
			p.Start()
			defer p.Stop()
			p.Trigger()

			var got error
			require.Eventually(t, func() bool {
				select {
				case got = <-failures:
					return true
				default:
					mock.Add(time.Minute)
					return false
				}
			}, time.Second, 5*time.Millisecond)

			assert.Equal(t, tt.polls, count.Load())
			assert.ErrorIs(t, got, tt.cause)
			assert.Equal(t, tt.wrapped, errors.Is(got, ErrPollFailed))
		})
	}
}

func TestPoller_RecoversWithinBudget(t *testing.T) {
	lim := test.TimeOut(5 * time.Second)
	defer lim.Stop()
	defer test.CheckRoutines(t)()

	mock := clock.NewMock()
	var count atomic.Int32
	polls := make(chan struct{}, 8)
	failures := make(chan error, 4)
	p, err := NewPoller(PollerConfig{
		Poll: func(context.Context) error {
			defer func() { polls <- struct{}{} }()
			if count.Add(1) == 1 {
				return fmt.Errorf("link lost: %w", hap.ErrTransport)
			}
			return nil
		},
		Interval:      time.Hour,
		RetryDelay:    time.Minute,
		RetryAttempts: 2,
		OnFailure:     func(err error) { failures <- err },
		Clock:         mock,
	})
	require.NoError(t, err)
	p.Start()
	defer p.Stop()

	p.Trigger()
	<-polls
	require.Eventually(t, func() bool {
		select {
		case <-polls:
			return true
		default:
			mock.Add(time.Minute)
			return false
		}
	}, time.Second, 5*time.Millisecond)

	select {
	case err := <-failures:
		t.Fatalf("unexpected failure: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, int32(2), count.Load())
}
