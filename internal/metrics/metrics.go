// Package metrics exposes capture counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	datagramsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "astrec_datagrams_received_total",
		Help: "Datagrams received from the multicast group and written to disk",
	})
	bytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "astrec_bytes_written_total",
		Help: "Payload bytes written to recording files",
	})
	segmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astrec_segments_finalized_total",
		Help: "Recording files closed, by rename outcome",
	}, []string{"outcome"})
	archiveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astrec_archive_operations_total",
		Help: "Archive uploads and notifications by stage and result",
	}, []string{"stage", "result"})
	captureState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "astrec_capture_state",
		Help: "Capture loop state (0 idle, 1 joining, 2 active, 3 stopping, 4 stopped)",
	})
	lastDatagram = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "astrec_last_datagram_timestamp_seconds",
		Help: "Unix time of the most recent datagram",
	})
)

// Segment outcomes.
const (
	OutcomeRenamed   = "renamed"
	OutcomeCollision = "collision"
	OutcomeFailed    = "rename_failed"
)

// ObserveDatagram records one received datagram of n bytes.
func ObserveDatagram(n int, at time.Time) {
	datagramsTotal.Inc()
	bytesTotal.Add(float64(n))
	lastDatagram.Set(float64(at.UnixNano()) / 1e9)
}

// ObserveSegment records a finalized recording.
func ObserveSegment(outcome string) {
	switch outcome {
	case OutcomeRenamed, OutcomeCollision, OutcomeFailed:
	default:
		outcome = OutcomeFailed
	}
	segmentsTotal.WithLabelValues(outcome).Inc()
}

// ObserveArchive records an archive stage result. stage is "upload" or "notify".
func ObserveArchive(stage string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	archiveTotal.WithLabelValues(stage, result).Inc()
}

// SetState publishes the numeric capture state.
func SetState(state int) {
	captureState.Set(float64(state))
}

func newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})
	return r
}

// Serve exposes /metrics and a /healthz liveness probe on ln until ctx is
// cancelled.
func Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           newRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
