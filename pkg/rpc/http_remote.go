// Package rpc speaks the shard backend protocol: form-encoded POST /api/put, GET /api/get
// and DELETE /api/delete, each keyed by the "key" parameter.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"shardroute/pkg/topology"
)

const defaultClientTimeout = 5 * time.Second

// HTTPRemote is a client of one shard backend.
type HTTPRemote struct {
	baseURL string
	client  *http.Client
}

type RemoteOption func(*HTTPRemote)

func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *HTTPRemote) { r.client = c }
}

func NewHTTPRemote(baseURL string, opts ...RemoteOption) *HTTPRemote {
	r := &HTTPRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultClientTimeout},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// BaseURL turns a shard location into the backend's base URL. Addresses without a scheme
// are assumed to be plain HTTP.
func BaseURL(loc topology.Location) string {
	if strings.Contains(loc.Addr, "://") {
		return loc.Addr
	}
	return "http://" + loc.Addr
}

type getResp struct {
	Value string `json:"value"`
}

// call performs one backend request and returns the status and body. Any status other
// than 200 or an allowed one is an error carrying the backend's message.
func (s *HTTPRemote) call(ctx context.Context, method, endpoint string, params url.Values, allow ...int) (int, []byte, error) {
	var (
		body   io.Reader
		target = s.baseURL + endpoint
	)
	if method == http.MethodPost {
		body = strings.NewReader(params.Encode())
	} else {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create %s request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s body: %w", method, err)
	}
	if resp.StatusCode == http.StatusOK || slices.Contains(allow, resp.StatusCode) {
		return resp.StatusCode, b, nil
	}
	return resp.StatusCode, nil, fmt.Errorf("%s %s failed: %d: %s", method, endpoint, resp.StatusCode, strings.TrimSpace(string(b)))
}

func (s *HTTPRemote) Put(ctx context.Context, key, value string) error {
	_, _, err := s.call(ctx, http.MethodPost, "/api/put", url.Values{"key": {key}, "value": {value}})
	return err
}

func (s *HTTPRemote) Get(ctx context.Context, key string) (string, bool, error) {
	status, b, err := s.call(ctx, http.MethodGet, "/api/get", url.Values{"key": {key}}, http.StatusNotFound)
	if err != nil || status == http.StatusNotFound {
		return "", false, err
	}

	var gr getResp
	if err := json.Unmarshal(b, &gr); err != nil {
		return "", false, fmt.Errorf("decode GET body: %w", err)
	}
	return gr.Value, true, nil
}

func (s *HTTPRemote) Delete(ctx context.Context, key string) error {
	_, _, err := s.call(ctx, http.MethodDelete, "/api/delete", url.Values{"key": {key}})
	return err
}
