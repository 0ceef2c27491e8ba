package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTPObserver reads snapshots from a cluster API that serves
// /api/v1/observer/{system,services,nodes} as JSON.
type HTTPObserver struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPObserver creates an observer for baseURL.
func NewHTTPObserver(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPObserver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPObserver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.Named("observer.http"),
	}
}

func (o *HTTPObserver) System(ctx context.Context) (SystemSnapshot, error) {
	var snap SystemSnapshot
	err := o.get(ctx, "/api/v1/observer/system", &snap)
	return snap, err
}

func (o *HTTPObserver) Services(ctx context.Context) ([]ServiceDescriptor, error) {
	var out []ServiceDescriptor
	if err := o.get(ctx, "/api/v1/observer/services", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *HTTPObserver) Nodes(ctx context.Context) ([]NodeDescriptor, error) {
	var out []NodeDescriptor
	if err := o.get(ctx, "/api/v1/observer/nodes", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *HTTPObserver) get(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	o.logger.Debug("observer snapshot fetched", zap.String("path", path))
	return nil
}
