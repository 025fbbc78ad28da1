// Package procpose runs pose estimation in a child process. Crops travel over
// the child's stdin as length-prefixed msgpack and landmarks come back on stdout.
package procpose

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/crease/internal/domain/extraction"
	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/pkg/logger"
)

const (
	defaultWriteTimeout = 2 * time.Second
	defaultReadTimeout  = 30 * time.Second
	defaultStopTimeout  = 3 * time.Second
)

// Provider starts one worker process per Acquire.
type Provider struct {
	command      string
	writeTimeout time.Duration
	readTimeout  time.Duration
	stopTimeout  time.Duration
	logger       logger.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithWriteTimeout bounds how long a request may block on the worker's stdin.
func WithWriteTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.writeTimeout = d
		}
	}
}

// WithReadTimeout bounds how long a request may wait for the worker's answer.
func WithReadTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.readTimeout = d
		}
	}
}

// WithStopTimeout bounds how long Close waits before killing the worker.
func WithStopTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.stopTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Provider) {
		p.logger = l
	}
}

// NewProvider creates a provider for a shell-style command line.
func NewProvider(command string, opts ...Option) *Provider {
	p := &Provider{
		command:      command,
		writeTimeout: defaultWriteTimeout,
		readTimeout:  defaultReadTimeout,
		stopTimeout:  defaultStopTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("procpose")
	}
	return p
}

// Acquire spawns the worker. The process lives until the estimator is closed.
func (p *Provider) Acquire(ctx context.Context) (extraction.Estimator, error) {
	args := strings.Fields(p.command)
	if len(args) == 0 {
		return nil, ErrNoCommand
	}

	// The worker outlives the Acquire context; Close owns its lifetime.
	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(procCtx, args[0], args[1:]...) //nolint:gosec // operator-supplied command

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", args[0], err)
	}

	p.logger.Info(ctx, "pose worker started",
		logger.String("command", args[0]),
		logger.Int("pid", cmd.Process.Pid))

	go p.logStderr(ctx, stderr)

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	stop := func() error {
		_ = stdin.Close()
		select {
		case err := <-waitDone:
			cancel()
			return exitErr(err)
		case <-time.After(p.stopTimeout):
			p.logger.Warn(ctx, "pose worker did not exit, killing")
			cancel()
			return exitErr(<-waitDone)
		}
	}

	return newEstimator(stdin, bufio.NewReader(stdout), stop, p.writeTimeout, p.readTimeout), nil
}

func (p *Provider) logStderr(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.logger.Debug(ctx, "pose worker", logger.String("stderr", scanner.Text()))
	}
}

func exitErr(err error) error {
	var ee *exec.ExitError
	if errors.As(err, &ee) && !ee.Exited() {
		// killed by signal after stdin closed
		return nil
	}
	return err
}

// Estimator speaks the framed protocol with one worker. Calls are serialized.
type Estimator struct {
	mu           sync.Mutex
	w            io.Writer
	r            io.Reader
	stop         func() error
	writeTimeout time.Duration
	readTimeout  time.Duration
	broken       error // set once the stream may be out of sync

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

func newEstimator(w io.Writer, r io.Reader, stop func() error, writeTimeout, readTimeout time.Duration) *Estimator {
	return &Estimator{w: w, r: r, stop: stop, writeTimeout: writeTimeout, readTimeout: readTimeout}
}

type readResult struct {
	resp response
	err  error
}

// Estimate sends img to the worker and waits for its landmarks.
func (e *Estimator) Estimate(ctx context.Context, img image.Image) ([]model.Landmark, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return nil, ErrClosed
	}
	if e.broken != nil {
		return nil, e.broken
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := newRequest(img)
	written := make(chan error, 1)
	go func() { written <- writeFrame(e.w, req) }()

	select {
	case err := <-written:
		if err != nil {
			return nil, fmt.Errorf("send crop: %w", err)
		}
	case <-time.After(e.writeTimeout):
		e.broken = fmt.Errorf("send crop: timed out after %s", e.writeTimeout)
		return nil, e.broken
	case <-ctx.Done():
		e.broken = fmt.Errorf("send crop: %w", ctx.Err())
		return nil, e.broken
	}

	// An abandoned read leaves the stream mid-frame, so any exit other than a
	// complete answer marks the estimator broken.
	answered := make(chan readResult, 1)
	go func() {
		var res readResult
		res.err = readFrame(e.r, &res.resp)
		answered <- res
	}()

	var resp response
	select {
	case res := <-answered:
		if res.err != nil {
			e.broken = fmt.Errorf("read landmarks: %w", res.err)
			return nil, e.broken
		}
		resp = res.resp
	case <-time.After(e.readTimeout):
		e.broken = fmt.Errorf("read landmarks: timed out after %s", e.readTimeout)
		return nil, e.broken
	case <-ctx.Done():
		e.broken = fmt.Errorf("read landmarks: %w", ctx.Err())
		return nil, e.broken
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrWorker, resp.Error)
	}

	lms := make([]model.Landmark, len(resp.Landmarks))
	for i, l := range resp.Landmarks {
		lms[i] = model.Landmark{X: l.X, Y: l.Y, Z: l.Z, Visibility: l.Visibility}
	}
	return lms, nil
}

// Close stops the worker. Safe to call more than once.
func (e *Estimator) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if e.stop != nil {
			e.closeErr = e.stop()
		}
	})
	return e.closeErr
}
