// Package ipfs fetches files and blocks for the ipfs.* host imports.
package ipfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultGateway is used when no gateway is configured.
const DefaultGateway = "http://127.0.0.1:8080"

// MaxFileSize caps the size of a fetched file.
const MaxFileSize = 256 << 20

// Client is the IPFS access the host imports need. ok is false when the
// content could not be found.
type Client interface {
	Cat(ctx context.Context, hash string) (data []byte, ok bool, err error)
	GetBlock(ctx context.Context, hash string) (data []byte, ok bool, err error)
}

// StatusError reports an unexpected gateway response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ipfs gateway returned %d for %s", e.Status, e.URL)
}

// Gateway is a Client over an HTTP path gateway.
type Gateway struct {
	base       string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGateway returns a client for the gateway at base.
func NewGateway(base string, timeout time.Duration, logger *zap.Logger) *Gateway {
	if base == "" {
		base = DefaultGateway
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(zap.String("component", "ipfs")),
	}
}

// Cat fetches the file at hash, which may carry a path ("Qm.../a.json").
func (g *Gateway) Cat(ctx context.Context, hash string) ([]byte, bool, error) {
	return g.fetch(ctx, g.base+"/ipfs/"+strings.TrimPrefix(hash, "/ipfs/"), "")
}

// GetBlock fetches the raw block for hash.
func (g *Gateway) GetBlock(ctx context.Context, hash string) ([]byte, bool, error) {
	u := g.base + "/ipfs/" + url.PathEscape(strings.TrimPrefix(hash, "/ipfs/")) + "?format=raw"
	return g.fetch(ctx, u, "application/vnd.ipld.raw")
}

func (g *Gateway) fetch(ctx context.Context, u, accept string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		g.logger.Debug("IPFS content not found", zap.String("url", u))
		return nil, false, nil
	case resp.StatusCode != http.StatusOK:
		return nil, false, &StatusError{URL: u, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFileSize+1))
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", u, err)
	}
	if len(data) > MaxFileSize {
		return nil, false, fmt.Errorf("file at %s exceeds %d bytes", u, MaxFileSize)
	}
	return data, true, nil
}

// Static is a Client over a fixed set of files, used by fixtures.
type Static map[string][]byte

func (s Static) Cat(_ context.Context, hash string) ([]byte, bool, error) {
	b, ok := s[strings.TrimPrefix(hash, "/ipfs/")]
	return b, ok, nil
}

func (s Static) GetBlock(ctx context.Context, hash string) ([]byte, bool, error) {
	return s.Cat(ctx, hash)
}
