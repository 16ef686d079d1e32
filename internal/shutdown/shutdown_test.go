package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// slowStopper finishes its final close+rename some time after Stop.
type slowStopper struct {
	mu        sync.Mutex
	stops     int
	finalized bool
	delay     time.Duration
	done      chan struct{}
	once      sync.Once
}

func newSlowStopper(delay time.Duration) *slowStopper {
	return &slowStopper{delay: delay, done: make(chan struct{})}
}

func (s *slowStopper) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	s.once.Do(func() {
		go func() {
			time.Sleep(s.delay)
			s.mu.Lock()
			s.finalized = true
			s.mu.Unlock()
			close(s.done)
		}()
	})
}

func (s *slowStopper) Done() <-chan struct{} { return s.done }

func (s *slowStopper) state() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops, s.finalized
}

func runCoordinator(c *Coordinator, ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	return errCh
}

func TestCoordinator_SignalWaitsForFinalization(t *testing.T) {
	defer goleak.VerifyNone(t)

	stopper := newSlowStopper(50 * time.Millisecond)
	c := New(stopper)
	c.sigCh = make(chan os.Signal, 1)
	errCh := runCoordinator(c, context.Background())

	c.sigCh <- syscall.SIGTERM

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not return")
	}
	stops, finalized := stopper.state()
	assert.Equal(t, 1, stops)
	assert.True(t, finalized, "Run must not return before the recorder is done")
}

func TestCoordinator_ContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	stopper := newSlowStopper(0)
	c := New(stopper)
	c.sigCh = make(chan os.Signal, 1)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := runCoordinator(c, ctx)

	cancel()
	require.NoError(t, <-errCh)
	stops, finalized := stopper.state()
	assert.Equal(t, 1, stops)
	assert.True(t, finalized)
}

func TestCoordinator_RecorderExitsOnItsOwn(t *testing.T) {
	defer goleak.VerifyNone(t)

	stopper := newSlowStopper(0)
	close(stopper.done)
	c := New(stopper)
	c.sigCh = make(chan os.Signal, 1)

	require.NoError(t, c.Run(context.Background()))
	stops, _ := stopper.state()
	assert.Zero(t, stops)
}

func TestNew_DefaultSignals(t *testing.T) {
	c := New(newSlowStopper(0))
	assert.Equal(t, DefaultSignals, c.signals)

	c = New(newSlowStopper(0), os.Interrupt)
	assert.Equal(t, []os.Signal{os.Interrupt}, c.signals)
}

func TestStart_Idempotent(t *testing.T) {
	c := New(newSlowStopper(0), os.Interrupt)
	c.Start()
	ch := c.sigCh
	require.NotNil(t, ch)
	assert.True(t, c.subscribed)

	c.Start()
	assert.Equal(t, ch, c.sigCh)
	signal.Stop(c.sigCh)
}
