// Package archive ships finalized recordings off the host. A single worker
// uploads each segment to object storage and then announces it, in the
// order the recorder finalized them.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"Kakofonix/astrec/internal/logger"
	"Kakofonix/astrec/internal/metadata"
	"Kakofonix/astrec/internal/metrics"
	"Kakofonix/astrec/internal/recording"
)

// Stage labels for the archive metrics.
const (
	StageUpload = "upload"
	StageNotify = "notify"
)

const defaultOpTimeout = 2 * time.Minute

// Uploader stores a local file under an object key.
type Uploader interface {
	Upload(ctx context.Context, key, localPath string) error
}

// Notifier announces an archived segment.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
	Close() error
}

// Event describes one finalized recording.
type Event struct {
	Session   string    `json:"session"`
	Group     string    `json:"group"`
	Port      int       `json:"port"`
	File      string    `json:"file"`
	Object    string    `json:"object,omitempty"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Finalized time.Time `json:"finalized"`
	Bytes     int64     `json:"bytes"`
	Datagrams int64     `json:"datagrams"`

	Host *metadata.Host `json:"host,omitempty"`
}

// Config configures an Archiver. Either Uploader or Notifier may be nil.
type Config struct {
	Session           string
	Host              *metadata.Host
	Group             string
	Port              int
	QueueSize         int
	RemoveAfterUpload bool
	OpTimeout         time.Duration
	Uploader          Uploader
	Notifier          Notifier
	Logger            *logger.Logger
}

// Archiver queues finalized segments for a background worker.
type Archiver struct {
	cfg   Config
	log   *logger.Logger
	queue chan recording.Segment

	mu     sync.Mutex
	closed bool
}

// New creates an archiver. Run must be started for queued segments to be
// processed.
func New(cfg Config) *Archiver {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultOpTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	return &Archiver{
		cfg:   cfg,
		log:   cfg.Logger,
		queue: make(chan recording.Segment, cfg.QueueSize),
	}
}

// Enqueue hands seg to the worker without blocking. It reports false when
// the queue is full or the archiver is closed; the segment stays on disk.
func (a *Archiver) Enqueue(seg recording.Segment) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		a.log.Warn("[archive] Archiver closed, not archiving %s", seg.Path())
		return false
	}
	select {
	case a.queue <- seg:
		a.log.Debug("[archive] Enqueued %s", seg.Path())
		return true
	default:
		a.log.Warn("[archive] Queue full, dropping %s", seg.Path())
		return false
	}
}

// Close stops accepting segments. Run returns once the queue is drained.
func (a *Archiver) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
}

// Run processes queued segments until Close is called and the queue is
// empty. Cancelling ctx aborts in-flight operations but the queue is still
// drained, so callers that want a full drain on shutdown should pass a
// context that outlives the recorder.
func (a *Archiver) Run(ctx context.Context) error {
	for seg := range a.queue {
		a.process(ctx, seg)
	}
	if a.cfg.Notifier != nil {
		if err := a.cfg.Notifier.Close(); err != nil {
			a.log.Warn("[archive] Failed to close notifier: %v", err)
		}
	}
	a.log.Info("[archive] Archiver stopped")
	return nil
}

func (a *Archiver) process(ctx context.Context, seg recording.Segment) {
	ev := Event{
		Session:   a.cfg.Session,
		Group:     a.cfg.Group,
		Port:      a.cfg.Port,
		File:      filepath.Base(seg.Path()),
		Start:     seg.Window.Start.UTC(),
		End:       seg.Window.End.UTC(),
		Finalized: seg.FinalizedAt.UTC(),
		Bytes:     seg.Bytes,
		Datagrams: seg.Datagrams,
		Host:      a.cfg.Host,
	}

	if a.cfg.Uploader != nil {
		key := ObjectKey(seg)
		if err := a.upload(ctx, key, seg.Path()); err != nil {
			a.log.Error("[archive] Upload of %s failed: %v", seg.Path(), err)
			return
		}
		ev.Object = key
		a.log.Info("[archive] Uploaded %s to %s", seg.Path(), key)

		manifest := recording.ManifestPath(seg.Path())
		manifestUploaded := false
		if _, err := os.Stat(manifest); err == nil {
			if err := a.upload(ctx, ManifestKey(key), manifest); err != nil {
				a.log.Warn("[archive] Upload of %s failed: %v", manifest, err)
			} else {
				manifestUploaded = true
			}
		}

		if a.cfg.RemoveAfterUpload {
			a.remove(seg.Path())
			if manifestUploaded {
				a.remove(manifest)
			}
		}
	}

	if a.cfg.Notifier != nil {
		opCtx, cancel := context.WithTimeout(ctx, a.cfg.OpTimeout)
		err := a.cfg.Notifier.Notify(opCtx, ev)
		cancel()
		metrics.ObserveArchive(StageNotify, err)
		if err != nil {
			a.log.Error("[archive] Notification for %s failed: %v", ev.File, err)
			return
		}
		a.log.Debug("[archive] Announced %s", ev.File)
	}
}

func (a *Archiver) upload(ctx context.Context, key, localPath string) error {
	opCtx, cancel := context.WithTimeout(ctx, a.cfg.OpTimeout)
	defer cancel()
	err := a.cfg.Uploader.Upload(opCtx, key, localPath)
	metrics.ObserveArchive(StageUpload, err)
	return err
}

func (a *Archiver) remove(p string) {
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		a.log.Warn("[archive] Failed to remove %s: %v", p, err)
	}
}

// ObjectKey places a recording under <prefix base>/<YYYY>/<MM>/<DD>/<file>,
// dated by the start of its window in UTC.
func ObjectKey(seg recording.Segment) string {
	name := filepath.Base(seg.Path())
	base := strings.TrimSuffix(filepath.Base(seg.ActivePath), recording.Extension)
	start := seg.Window.Start.UTC()
	return path.Join(base, fmt.Sprintf("%04d/%02d/%02d", start.Year(), start.Month(), start.Day()), name)
}

// ManifestKey is the object key of a recording's sidecar.
func ManifestKey(recordingKey string) string {
	return recording.ManifestPath(recordingKey)
}
