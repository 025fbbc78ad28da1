package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/crease/internal/testfeed"
	"github.com/okian/crease/pkg/logger"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

func main() {
	def := testfeed.DefaultConfig()
	var (
		addr     = flag.String("addr", def.Addr, "listen address")
		frames   = flag.Int("frames", def.Frames, "keypoints frames per video")
		fps      = flag.Float64("fps", def.FPS, "frame cadence")
		persons  = flag.Int("persons", def.Persons, "people per frame")
		analysis = flag.Bool("analysis", def.Analysis, "send a bedrock_analysis message before complete")
		dropAt   = flag.Int("drop-at", 0, "drop the socket abnormally after this many frames")
		drops    = flag.Int("drops", 1, "how many connections per video are dropped")
		logFile  = flag.String("log", "", "also log to this file")
		verbose  = flag.Bool("verbose", false, "debug logging")
		help     = flag.Bool("help", false, "show help")
	)
	flag.Parse()

	if *help {
		testfeed.ShowHelp()
		return
	}

	if err := testfeed.SetupLogging(*logFile, *verbose); err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	cfg := def
	cfg.Addr, cfg.Frames, cfg.FPS, cfg.Persons, cfg.Analysis = *addr, *frames, *fps, *persons, *analysis
	cfg.DropAt, cfg.Drops = *dropAt, *drops

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.Get().Named("feed")
	mux := http.NewServeMux()
	testfeed.NewServer(cfg, log).Register(mux)
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	go func() {
		log.Info(ctx, "feed listening",
			logger.String("addr", cfg.Addr),
			logger.Int("frames", cfg.Frames),
			logger.Float64("fps", cfg.FPS))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(ctx, "feed server failed", logger.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "feed shutdown failed", logger.Error(err))
	}
}
