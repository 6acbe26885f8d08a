package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/additionsec/as-gateway/probe/internal/config"
)

// ContentType is the media type of every delivered payload.
const ContentType = "application/octet-stream"

// Client delivers payloads to a collector, one connection per Send.
type Client struct {
	http *http.Client
}

// New builds a Client for the target's TLS, timeout, and header settings.
// The URI itself is passed to Send.
func New(cfg config.TargetConfig) (*Client, error) {
	hc, err := buildHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("delivery: build http client: %w", err)
	}
	if cfg.InsecureSkipVerify {
		slog.Warn("delivery: TLS certificate verification disabled for target",
			"uri", cfg.URI)
	}
	return &Client{http: hc}, nil
}

// Send POSTs payload to uri and returns the response status code once the
// full response has been read. It never retries.
func (c *Client) Send(ctx context.Context, uri string, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("delivery: build request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, classify(uri, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return resp.StatusCode, &ProtocolError{URI: uri, Err: fmt.Errorf("read body: %w", err)}
	}

	slog.Debug("delivery: response received",
		"uri", uri, "status", resp.StatusCode, "bytes", len(payload))
	return resp.StatusCode, nil
}
