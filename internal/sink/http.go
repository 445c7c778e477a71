package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrURLRequired = errors.New("sink: http url required")
	ErrRejected    = errors.New("sink: collector rejected message")
)

type HTTPConfig struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string
}

// HTTP POSTs envelopes to a collector endpoint.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
}

var _ Publisher = (*HTTP)(nil)

func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, ErrURLRequired
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &HTTP{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (h *HTTP) Name() string {
	return "http"
}

func (h *HTTP) Publish(ctx context.Context, msg []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, bytes.NewReader(msg))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h.cfg.Headers {
		req.Header.Set(k, v)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", h.cfg.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	return nil
}

func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
