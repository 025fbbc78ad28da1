package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/okian/crease/internal/adapters/http/api"
	"github.com/okian/crease/internal/adapters/http/upload"
	"github.com/okian/crease/internal/adapters/mq/queue"
	"github.com/okian/crease/internal/adapters/video/gocvsource"
	"github.com/okian/crease/internal/adapters/ws/channel"
	app "github.com/okian/crease/internal/app"
	"github.com/okian/crease/internal/config"
	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/internal/domain/skeleton"
	"github.com/okian/crease/internal/domain/validation"
	"github.com/okian/crease/pkg/logger"
	"github.com/okian/crease/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 10 * time.Second
	drainTimeout              = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
	progressStep              = 10
)

// Run modes.
const (
	modeLive   = "live"
	modeRefine = "refine"
	modeSingle = "single"
)

var errUsage = errors.New("usage")

type options struct {
	video      string
	videoID    string
	detections string
	mode       string
	upload     bool
	follow     bool
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("crease", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&o.video, "video", "", "local video file")
	fs.StringVar(&o.videoID, "video-id", "", "server-assigned video identifier to follow")
	fs.StringVar(&o.detections, "detections", "", "detection sequence file (YAML or JSON) for -mode refine")
	fs.StringVar(&o.mode, "mode", modeLive, "live | refine | single")
	fs.BoolVar(&o.upload, "upload", false, "upload -video first and follow the id the server assigns")
	fs.BoolVar(&o.follow, "follow", false, "also follow the live channel during refine or single runs")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	switch o.mode {
	case modeLive:
		if o.videoID == "" && !(o.upload && o.video != "") {
			return o, fmt.Errorf("%w: live mode needs -video-id or -upload with -video", errUsage)
		}
	case modeRefine:
		if o.video == "" || o.detections == "" {
			return o, fmt.Errorf("%w: refine mode needs -video and -detections", errUsage)
		}
	case modeSingle:
		if o.video == "" {
			return o, fmt.Errorf("%w: single mode needs -video", errUsage)
		}
	default:
		return o, fmt.Errorf("%w: unknown mode %q", errUsage, o.mode)
	}
	if o.upload && o.video == "" {
		return o, fmt.Errorf("%w: -upload needs -video", errUsage)
	}
	return o, nil
}

func limitsFromConfig(cfg *config.Config) validation.Limits {
	return validation.Limits{
		MaxBytes:    cfg.MaxUploadBytes(),
		MinDuration: time.Duration(cfg.MinDurationS * float64(time.Second)),
		MaxDuration: time.Duration(cfg.MaxDurationS * float64(time.Second)),
	}
}

// localVideoID names a session that has no server-assigned id.
func localVideoID(path string) string {
	base := filepath.Base(path)
	return "local-" + strings.TrimSuffix(base, filepath.Ext(base))
}

func main() {
	if err := logger.Init(); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	o, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetFormat(cfg.LogFormat); err != nil {
		_, _ = os.Stderr.WriteString("invalid log_format, using text: " + err.Error() + "\n")
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	go startSystemMetricsUpdater(ctx)

	if err := run(ctx, cfg, o, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error(ctx, "run failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, o options, log logger.Logger) error {
	videoID := o.videoID
	var src *gocvsource.Source

	if o.video != "" {
		meta, err := gocvsource.Probe(o.video)
		if err != nil {
			return err
		}
		if err := limitsFromConfig(cfg).Validate(meta); err != nil {
			return err
		}
		log.Info(ctx, "video accepted",
			logger.String("video", o.video),
			logger.String("type", meta.MIMEType),
			logger.Duration("duration", meta.Duration))

		if o.upload {
			id, err := upload.New(cfg.UploadBase,
				upload.WithLimits(limitsFromConfig(cfg)),
				upload.WithLogger(log.Named("upload")),
			).Upload(ctx, o.video, meta)
			if err != nil {
				return err
			}
			videoID = id
		}

		src, err = gocvsource.Open(o.video)
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()
		if err := src.Ready(ctx); err != nil {
			return err
		}
	}
	if videoID == "" {
		videoID = localVideoID(o.video)
	}

	provider, err := app.ProviderFromConfig(cfg, log)
	if err != nil {
		return err
	}
	sink, err := app.SinkFromConfig(ctx, cfg, videoID, log)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}

	sessionOpts := append(app.OptionsFromConfig(cfg),
		app.WithLogger(log.Named("session")),
		app.WithProvider(provider),
		app.WithSink(sink),
		app.WithLive(o.mode == modeLive || o.follow),
		app.WithCallbacks(callbacks(ctx, log, finish)),
	)
	if src != nil {
		fs := src.FrameSize()
		sessionOpts = append(sessionOpts, app.WithSourceSize(skeleton.Size{W: float64(fs.X), H: float64(fs.Y)}))
	} else {
		sessionOpts = append(sessionOpts, app.WithSourceSize(skeleton.Size{W: float64(cfg.DisplayWidth), H: float64(cfg.DisplayHeight)}))
	}

	sess, err := app.New(videoID, sessionOpts...)
	if err != nil {
		_ = sink.Close()
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			log.Warn(closeCtx, "session close", logger.Error(err))
		}
	}()

	srv := statusServer(ctx, cfg, sess)
	go func() {
		log.Info(ctx, "status surface listening", logger.String("addr", cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "status server failed", logger.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(shutdownCtx, "status server shutdown failed", logger.Error(err))
		}
	}()

	if err := sess.Start(ctx); err != nil {
		return err
	}

	switch o.mode {
	case modeRefine:
		dets, err := model.LoadDetectionsFile(o.detections)
		if err != nil {
			return err
		}
		if _, err := sess.Refine(ctx, src, dets); err != nil {
			return err
		}
	case modeSingle:
		if _, err := sess.Extract(ctx, src); err != nil {
			return err
		}
	}

	if o.mode == modeLive || o.follow {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			if err != nil {
				return err
			}
		}
	}

	drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	if err := sess.Drain(drainCtx); err != nil {
		log.Warn(ctx, "frames still queued at exit", logger.Error(err))
	}

	st := sess.Stats()
	log.Info(ctx, "run finished",
		logger.String("video_id", videoID),
		logger.Int("published", int(st.Render.Published)),
		logger.Int("duplicates", int(st.Render.Duplicates)),
		logger.Int("sink_errors", int(st.Render.SinkErrors)))
	return nil
}

func callbacks(ctx context.Context, log logger.Logger, finish func(error)) app.Callbacks {
	var (
		mu   sync.Mutex
		last = map[queue.Stream]int{}
	)
	return app.Callbacks{
		OnAnalysis: func(data json.RawMessage) {
			log.Info(ctx, "analysis received", logger.Int("bytes", len(data)))
		},
		OnComplete: func(json.RawMessage) { finish(nil) },
		OnError: func(message string) {
			log.Error(ctx, "analysis failed on the server", logger.String("message", message))
			finish(fmt.Errorf("server error: %s", message))
		},
		OnFailed: func(err error) { finish(err) },
		OnState: func(s channel.Status) {
			log.Debug(ctx, "channel state",
				logger.String("state", s.State.String()),
				logger.Int("attempts", s.Attempts))
		},
		OnProgress: func(stream queue.Stream, percent, frame, total int) {
			step := percent / progressStep
			mu.Lock()
			report := step > last[stream] || frame == total-1
			last[stream] = step
			mu.Unlock()
			if report {
				log.Info(ctx, "extraction progress",
					logger.String("stream", string(stream)),
					logger.Int("percent", percent),
					logger.Int("frame", frame),
					logger.Int("total", total))
			}
		},
	}
}

func statusServer(ctx context.Context, cfg *config.Config, sess *app.Session) *http.Server {
	mux := http.NewServeMux()
	api.NewServer(api.StatsProviderFunc(func() any { return sess.Stats() })).Register(ctx, mux)
	return &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// startSystemMetricsUpdater refreshes process gauges until ctx ends.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		metrics.RecordSystemGCPauseTime(float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond)
	}
}
