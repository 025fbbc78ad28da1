package testfeed

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/crease/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging logs to stdout and, when logFile is set, to that file as well.
func SetupLogging(logFile string, verbose bool) error {
	var w io.Writer = os.Stdout
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, file)
	}
	if err := logger.InitWithWriter(w, logger.FormatText); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		return logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the feed server.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`crease feed
===========

A local websocket feed that streams synthetic keypoints for any video id.

Usage:
  go run ./cmd/feed [options]

Options:
  -addr string      listen address (default ":8000")
  -frames int       keypoints frames per video (default 250)
  -fps float        frame cadence (default 25)
  -persons int      people per frame (default 2)
  -analysis         send a bedrock_analysis message before complete (default true)
  -drop-at int      drop the socket abnormally after this many frames (default 0, never)
  -drops int        how many connections per video are dropped (default 1 when -drop-at is set)
  -log string       also log to this file
  -verbose          debug logging
  -help             show this message

Examples:
  go run ./cmd/feed -frames 100 -fps 50
  go run ./cmd/feed -drop-at 40 -drops 2
`)
}
