// Package upload submits a validated video to the processing service.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/crease/internal/domain/validation"
	"github.com/okian/crease/pkg/logger"
)

const (
	uploadPath     = "/videos/upload"
	defaultTimeout = 5 * time.Minute
	maxErrorBody   = 512
)

// Client uploads videos to <base>/videos/upload.
type Client struct {
	base   string
	http   *http.Client
	limits validation.Limits
	logger logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithLimits replaces the default validation limits.
func WithLimits(l validation.Limits) Option {
	return func(cl *Client) {
		cl.limits = l
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// New creates an upload client for the service at base.
func New(base string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(base, "/"),
		http:   &http.Client{Timeout: defaultTimeout},
		limits: validation.DefaultLimits(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("upload")
	}
	return c
}

type uploadResponse struct {
	VideoID string `json:"video_id"`
}

// Upload validates meta and, if it passes, streams the file at path and returns the assigned video id.
// Validation failures are returned unwrapped so callers can match the validation sentinels.
func (c *Client) Upload(ctx context.Context, path string, meta validation.Meta) (string, error) {
	if err := c.limits.Validate(meta); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrUploadFailed, path, err)
	}
	defer func() { _ = f.Close() }()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeVideo(writer, filepath.Base(path), meta.MIMEType, f))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+uploadPath, pr)
	if err != nil {
		_ = pr.Close()
		return "", fmt.Errorf("%w: create request: %v", ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("%w: status %d: %s", ErrUploadFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUploadFailed, err)
	}
	if out.VideoID == "" {
		return "", fmt.Errorf("%w: response carried no video_id", ErrUploadFailed)
	}

	c.logger.Info(ctx, "video uploaded",
		logger.String("video_id", out.VideoID),
		logger.Duration("took", time.Since(start)),
		logger.Int("bytes", int(meta.Size)))
	return out.VideoID, nil
}

func writeVideo(w *multipart.Writer, name, mimeType string, r io.Reader) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename=%q`, name))
	if mimeType != "" {
		h.Set("Content-Type", mimeType)
	}
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("copy video: %w", err)
	}
	return w.Close()
}
