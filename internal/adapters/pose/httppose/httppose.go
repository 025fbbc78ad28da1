// Package httppose calls a pose-estimation service over HTTP. Each crop is sent
// as a JPEG multipart upload and the service answers with normalized landmarks.
package httppose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/okian/crease/internal/domain/extraction"
	"github.com/okian/crease/internal/domain/model"
)

const (
	defaultTimeout = 10 * time.Second
	jpegQuality    = 90
	maxErrorBody   = 512
)

// Provider hands out estimators bound to one service URL.
type Provider struct {
	url     string
	timeout time.Duration
}

// Option configures a Provider.
type Option func(*Provider)

// WithTimeout bounds each inference request.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewProvider creates a provider for the service at url.
func NewProvider(url string, opts ...Option) *Provider {
	p := &Provider{url: url, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire returns an estimator with its own HTTP client.
func (p *Provider) Acquire(_ context.Context) (extraction.Estimator, error) {
	return &Estimator{
		url:    p.url,
		client: &http.Client{Timeout: p.timeout},
	}, nil
}

// Estimator is one client session against the service.
type Estimator struct {
	url    string
	client *http.Client
}

type response struct {
	Landmarks []model.Landmark `json:"landmarks"`
}

// Estimate uploads img and returns the landmarks found in it.
func (e *Estimator) Estimate(ctx context.Context, img image.Image) ([]model.Landmark, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "crop.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := jpeg.Encode(part, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Landmarks, nil
}

// Close drops idle connections.
func (e *Estimator) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
