// Package capture joins the multicast group and drives the
// receive / rotate / write cycle of the recorder.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"Kakofonix/astrec/internal/logger"
	"Kakofonix/astrec/internal/metrics"
	"Kakofonix/astrec/internal/recording"
	"Kakofonix/astrec/internal/rotation"
)

// Config holds everything the recorder needs. Zero hooks get defaults.
type Config struct {
	Interface        string
	Group            string
	Port             int
	Prefix           string
	Period           time.Duration
	Verbosity        int
	MaxDatagramBytes int
	ReadBufferBytes  int
	Manifest         bool
	Session          string

	Logger      *logger.Logger
	Listen      ListenFunc       // defaults to JoinMulticast
	Now         func() time.Time // defaults to time.Now
	Diagnostics io.Writer        // defaults to os.Stdout
	// OnSegment receives every recording that reached its final name. It is
	// called on the capture goroutine and must not block.
	OnSegment func(recording.Segment)
	// OnStateChange observes every transition, on the goroutine making it.
	OnStateChange func(State)
}

// Recorder records one multicast group to rotating files. Run drives it on a
// single goroutine; Stop and State may be called from any goroutine.
type Recorder struct {
	cfg Config
	log *logger.Logger

	state atomic.Int32

	mu         sync.Mutex
	conn       PacketSource
	connClosed bool
	stopped    bool
	stopCh     chan struct{}
	done       chan struct{}

	// owned by the Run goroutine
	window rotation.Window
	file   *recording.File
}

// New creates a recorder. Run must be called exactly once.
func New(cfg Config) *Recorder {
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	if cfg.Listen == nil {
		cfg.Listen = JoinMulticast
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Diagnostics == nil {
		cfg.Diagnostics = os.Stdout
	}
	if cfg.MaxDatagramBytes <= 0 {
		cfg.MaxDatagramBytes = 8192
	}
	return &Recorder{
		cfg:    cfg,
		log:    cfg.Logger,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	return State(r.state.Load())
}

// Done is closed once Run has finalized the last recording and returned.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

// Stop requests termination and unblocks the pending receive by closing the
// socket. It does not wait; use Done for that.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.stopCh)
	}
	r.mu.Unlock()
	r.closeConn()
}

// Run joins the group and records until Stop is called, ctx is cancelled or
// a fatal error occurs. A graceful stop returns nil.
func (r *Recorder) Run(ctx context.Context) error {
	defer close(r.done)
	defer r.setState(Stopped)

	r.setState(Joining)
	req := JoinRequest{
		Interface:       r.cfg.Interface,
		Group:           r.cfg.Group,
		Port:            r.cfg.Port,
		ReadBufferBytes: r.cfg.ReadBufferBytes,
	}
	r.log.Info("[capture] Joining multicast group: %s", req)
	conn, err := r.cfg.Listen(ctx, req)
	if err != nil {
		return fmt.Errorf("%w %s: %v", ErrJoin, req, err)
	}
	if !r.attach(conn) {
		_ = conn.Close()
		r.log.Info("[capture] Stop requested before capture started")
		return nil
	}
	defer r.closeConn()

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			r.Stop()
		case <-watchDone:
		}
	}()

	if err := r.openWindow(r.cfg.Now()); err != nil {
		return err
	}
	r.setState(Active)

	return r.receive()
}

// receive is the steady-state loop. The blocking ReadFrom is its only
// suspension point.
func (r *Recorder) receive() error {
	buf := make([]byte, r.cfg.MaxDatagramBytes)
	for {
		n, src, err := r.conn.ReadFrom(buf)
		arrival := r.cfg.Now()
		if err != nil {
			r.setState(Stopping)
			if r.stopRequested() {
				r.log.Info("[capture] Stopping ASTERIX recording ...")
				return r.finalize(arrival)
			}
			r.log.Error("[capture] Receive failed on %s:%d: %v", r.cfg.Group, r.cfg.Port, err)
			recvErr := fmt.Errorf("%w %s:%d: %v", ErrReceive, r.cfg.Group, r.cfg.Port, err)
			if ferr := r.finalize(arrival); ferr != nil {
				return errors.Join(recvErr, ferr)
			}
			return recvErr
		}

		if !r.window.Contains(arrival) {
			if err := r.rotate(arrival); err != nil {
				r.setState(Stopping)
				return err
			}
		}

		if err := r.file.Write(buf[:n]); err != nil {
			r.setState(Stopping)
			r.log.Error("[capture] %v", err)
			r.file.Abort()
			r.file = nil
			return err
		}
		metrics.ObserveDatagram(n, arrival)
		r.diagnose(arrival, src, buf[:n])
	}
}

// rotate closes the elapsed window's file before creating the next one so
// that two files never share the active path.
func (r *Recorder) rotate(arrival time.Time) error {
	if err := r.finalize(arrival); err != nil {
		return err
	}
	return r.openWindow(arrival)
}

func (r *Recorder) openWindow(at time.Time) error {
	w := rotation.CurrentWindow(at, r.cfg.Period)
	f, err := recording.Open(r.cfg.Prefix, w)
	if err != nil {
		r.log.Error("[capture] %v", err)
		return err
	}
	r.window = w
	r.file = f
	r.log.Debug("[capture] Recording to %s until %s", recording.ActivePath(r.cfg.Prefix), w.End.Format(time.RFC3339))
	return nil
}

// finalize closes and renames the current file. Only a close failure is
// returned; rename problems are logged and capture continues.
func (r *Recorder) finalize(at time.Time) error {
	if r.file == nil {
		return nil
	}
	f := r.file
	r.file = nil

	seg, err := f.CloseAndFinalize(at)
	switch {
	case errors.Is(err, recording.ErrFileClose):
		r.log.Error("[capture] %v", err)
		return err
	case errors.Is(err, recording.ErrRenameCollision):
		metrics.ObserveSegment(metrics.OutcomeCollision)
		r.log.Error("[capture] Error: asterix recording file already exists: %s (data left in %s)", seg.FinalPath, seg.ActivePath)
		return nil
	case err != nil:
		metrics.ObserveSegment(metrics.OutcomeFailed)
		r.log.Error("[capture] Error: unable to rename %s to %s: %v", seg.ActivePath, seg.FinalPath, err)
		return nil
	}

	metrics.ObserveSegment(metrics.OutcomeRenamed)
	if r.cfg.Verbosity > 0 {
		fmt.Fprintf(r.cfg.Diagnostics, "Saving Asterix data to: %s\n", seg.FinalPath)
	}
	r.log.Info("[capture] Saved %d datagrams (%d bytes) to %s", seg.Datagrams, seg.Bytes, seg.FinalPath)

	if r.cfg.Manifest {
		m := recording.NewManifest(r.cfg.Session, r.cfg.Group, r.cfg.Port, seg)
		if path, err := recording.WriteManifest(m); err != nil {
			r.log.Warn("[capture] %v", err)
		} else {
			r.log.Debug("[capture] Wrote manifest %s", path)
		}
	}
	if r.cfg.OnSegment != nil {
		r.cfg.OnSegment(seg)
	}
	return nil
}

func (r *Recorder) diagnose(arrival time.Time, src net.Addr, payload []byte) {
	if r.cfg.Verbosity < 1 {
		return
	}
	fmt.Fprintln(r.cfg.Diagnostics, FormatDatagram(arrival, r.cfg.Group, r.cfg.Port, payload, r.cfg.Verbosity))
	if src != nil {
		r.log.Debug("[capture] %d bytes from %s", len(payload), src)
	}
}

func (r *Recorder) setState(s State) {
	if State(r.state.Swap(int32(s))) == s {
		return
	}
	metrics.SetState(int(s))
	if r.cfg.OnStateChange != nil {
		r.cfg.OnStateChange(s)
	}
}

// attach publishes the socket so Stop can close it. It reports false when a
// stop was requested first.
func (r *Recorder) attach(conn PacketSource) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.conn = conn
	return true
}

func (r *Recorder) closeConn() {
	r.mu.Lock()
	conn := r.conn
	already := r.connClosed
	if conn != nil {
		r.connClosed = true
	}
	r.mu.Unlock()
	if conn != nil && !already {
		_ = conn.Close()
	}
}

func (r *Recorder) stopRequested() bool {
	select {
	case <-r.stopCh:
		return true
	default:
		return false
	}
}
