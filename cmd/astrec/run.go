package main

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"Kakofonix/astrec/config"
	"Kakofonix/astrec/internal/archive"
	"Kakofonix/astrec/internal/capture"
	"Kakofonix/astrec/internal/health"
	"Kakofonix/astrec/internal/logger"
	"Kakofonix/astrec/internal/metadata"
	"Kakofonix/astrec/internal/metrics"
	"Kakofonix/astrec/internal/recording"
	"Kakofonix/astrec/internal/shutdown"
)

// run records until a termination signal or a fatal error. Auxiliary
// services live exactly as long as the recorder; the archiver additionally
// drains whatever the recorder handed it before run returns.
func run(ctx context.Context, cfg *config.Config, log *logger.Logger, stdout io.Writer) error {
	session := uuid.NewString()
	host := metadata.Collect(cfg.Capture.Interface)
	log.Info("[main] Capture session %s on %s (%s %s, machine %s)", session, host.Hostname, host.OSVersion, host.Arch, host.MachineID[:12])

	metricsLn, healthLn, err := bindListeners(cfg)
	if err != nil {
		return err
	}

	var hs *health.Server
	if healthLn != nil {
		hs = health.NewServer(log)
	}
	arch := newArchiver(ctx, cfg, session, &host, log)

	rec := capture.New(capture.Config{
		Interface:        cfg.Capture.Interface,
		Group:            cfg.Capture.Group,
		Port:             cfg.Capture.Port,
		Prefix:           cfg.Capture.Prefix,
		Period:           cfg.BlockPeriod(),
		Verbosity:        cfg.Capture.Verbosity,
		MaxDatagramBytes: cfg.Capture.MaxDatagramBytes,
		ReadBufferBytes:  cfg.Capture.ReadBufferBytes,
		Manifest:         cfg.Capture.Manifest,
		Session:          session,
		Logger:           log,
		Diagnostics:      stdout,
		OnSegment: func(seg recording.Segment) {
			if arch != nil {
				arch.Enqueue(seg)
			}
		},
		OnStateChange: func(s capture.State) {
			if hs != nil {
				hs.SetState(s)
			}
		},
	})

	// Subscribe before the group is joined so an early signal still
	// finalizes the active file.
	coordinator := shutdown.New(rec)
	coordinator.Logger = log
	coordinator.Start()

	g, gctx := errgroup.WithContext(ctx)
	auxCtx, cancelAux := context.WithCancel(context.Background())
	defer cancelAux()

	g.Go(func() error {
		defer cancelAux()
		if arch != nil {
			defer arch.Close()
		}
		return rec.Run(gctx)
	})
	g.Go(func() error {
		return coordinator.Run(gctx)
	})


	if metricsLn != nil {
		log.Info("[main] Serving metrics on %s", metricsLn.Addr())
		g.Go(auxService(log, "metrics", func() error {
			return metrics.Serve(auxCtx, metricsLn)
		}))
	}
	if hs != nil {
		g.Go(auxService(log, "health", func() error {
			return hs.Serve(auxCtx, healthLn)
		}))
	}
	if arch != nil {
		// Not tied to the signal context so queued recordings are still
		// shipped after a stop request.
		g.Go(func() error {
			return arch.Run(context.WithoutCancel(ctx))
		})
	}

	return g.Wait()
}

// auxService wraps a metrics or health server for the errgroup. A failing
// server is logged and never ends the capture.
func auxService(log *logger.Logger, name string, serve func() error) func() error {
	return func() error {
		if err := serve(); err != nil {
			log.Error("[main] %s server stopped: %v", name, err)
		}
		return nil
	}
}

// bindListeners opens the optional service ports before the group is
// joined, so a taken port is reported as a configuration problem.
func bindListeners(cfg *config.Config) (metricsLn, healthLn net.Listener, err error) {
	if cfg.Metrics.Listen != "" {
		metricsLn, err = net.Listen("tcp", cfg.Metrics.Listen)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: metrics listener: %v", config.ErrConfiguration, err)
		}
	}
	if cfg.Health.Listen != "" {
		healthLn, err = net.Listen("tcp", cfg.Health.Listen)
		if err != nil {
			if metricsLn != nil {
				metricsLn.Close()
			}
			return nil, nil, fmt.Errorf("%w: health listener: %v", config.ErrConfiguration, err)
		}
	}
	return metricsLn, healthLn, nil
}

// newArchiver returns nil when neither upload nor notification is
// configured. An unreachable object store only disables uploads.
func newArchiver(ctx context.Context, cfg *config.Config, session string, host *metadata.Host, log *logger.Logger) *archive.Archiver {
	if !cfg.ArchiveEnabled() && !cfg.NotifyEnabled() {
		return nil
	}

	acfg := archive.Config{
		Session:           session,
		Host:              host,
		Group:             cfg.Capture.Group,
		Port:              cfg.Capture.Port,
		QueueSize:         cfg.Archive.QueueSize,
		RemoveAfterUpload: cfg.Archive.RemoveAfterUpload,
		Logger:            log,
	}
	if cfg.ArchiveEnabled() {
		u, err := archive.NewS3Uploader(ctx, archive.S3Config{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			UseTLS:    cfg.Archive.UseTLS,
		}, log)
		if err != nil {
			log.Error("[main] Object storage unavailable, recordings stay local: %v", err)
		} else {
			acfg.Uploader = u
		}
	}
	if cfg.NotifyEnabled() {
		log.Info("[main] Publishing segment events to %v, topic %s", cfg.Notify.Brokers, cfg.Notify.Topic)
		acfg.Notifier = archive.NewKafkaNotifier(cfg.Notify.Brokers, cfg.Notify.Topic)
	}
	if acfg.Uploader == nil && acfg.Notifier == nil {
		return nil
	}
	return archive.New(acfg)
}
