//nolint:hugeParam // test only
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"shardroute/pkg/routing"
	"shardroute/pkg/shadow"
	"shardroute/pkg/shardkey"
	"shardroute/pkg/strategy"
	"shardroute/pkg/topology"
)

// simple in-memory fake store implementing iKV
type fakeKV struct {
	mu   sync.RWMutex
	m    map[string]string
	fail error
}

func newFakeKV() *fakeKV {
	return &fakeKV{m: make(map[string]string)}
}

func (f *fakeKV) Put(_ context.Context, key shardkey.CompoundKey, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.m[key.Encode()] = value
	return nil
}

func (f *fakeKV) Get(_ context.Context, key shardkey.CompoundKey) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.fail != nil {
		return "", false, f.fail
	}
	v, ok := f.m[key.Encode()]
	return v, ok, nil
}

func (f *fakeKV) Delete(_ context.Context, key shardkey.CompoundKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.m, key.Encode())
	return nil
}

// regionRouter routes (region, customer) onto us-a, us-b, eu-a, eu-b.
func regionRouter(t *testing.T) *routing.CompoundRouter {
	t.Helper()
	topo, err := topology.New(
		topology.ShardInfo{ID: "us-a", Location: topology.Location{Addr: "10.0.0.1:8081", DC: "us"}},
		topology.ShardInfo{ID: "us-b", Location: topology.Location{Addr: "10.0.0.2:8081", DC: "us"}},
		topology.ShardInfo{ID: "eu-a", Location: topology.Location{Addr: "10.1.0.1:8081", DC: "eu"}},
		topology.ShardInfo{ID: "eu-b", Location: topology.Location{Addr: "10.1.0.2:8081", DC: "eu"}},
	)
	if err != nil {
		t.Fatalf("topology: %v", err)
	}
	region, err := strategy.NewDirectory(map[string]string{"us": "us", "eu": "eu"})
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	customer, err := strategy.NewHash(0, "a", "b")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	r, err := routing.NewBuilder(topo).Bind(0, region).Bind(1, customer).Build()
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	return r
}

func decodeResp(t *testing.T, rr *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response JSON: %v, body=%s", err, rr.Body.String())
	}
	return resp
}

func serve(h http.Handler, method, target string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthHandler(t *testing.T) {
	s := NewServer(regionRouter(t), "")
	rr := serve(s.createRouter(), http.MethodGet, "/health", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	resp := decodeResp(t, rr)
	if resp.Status != StatusOK {
		t.Fatalf("expected status %s, got %s", StatusOK, resp.Status)
	}
}

func TestRouteHandler(t *testing.T) {
	router := regionRouter(t)
	h := NewServer(router, "").createRouter()

	rr := serve(h, http.MethodGet, "/api/route?c=eu&c=cust-42", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("route: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	resp := decodeResp(t, rr)

	key, _ := shardkey.NewCompoundKey("eu", "cust-42")
	want, err := router.Route(key)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if resp.ShardID != want {
		t.Fatalf("route: expected %s, got %s", want, resp.ShardID)
	}
	if resp.Location == nil || resp.Location.DC != "eu" {
		t.Fatalf("route: expected eu location, got %+v", resp.Location)
	}

	for target, code := range map[string]int{
		"/api/route":                 http.StatusBadRequest,
		"/api/route?c=eu&c=":         http.StatusBadRequest,
		"/api/route?c=eu":            http.StatusBadRequest,
		"/api/route?c=apac&c=cust-1": http.StatusUnprocessableEntity,
	} {
		rr := serve(h, http.MethodGet, target, nil)
		if rr.Code != code {
			t.Fatalf("%s: expected %d, got %d body=%s", target, code, rr.Code, rr.Body.String())
		}
		if resp := decodeResp(t, rr); resp.Status != StatusError {
			t.Fatalf("%s: expected status %s, got %s", target, StatusError, resp.Status)
		}
	}
}

func TestRouteAllHandler(t *testing.T) {
	h := NewServer(regionRouter(t), "").createRouter()

	cases := map[string][]string{
		"/api/route/all?c=eu&c=":        {"eu-a", "eu-b"},
		"/api/route/all?c=&c=":          {"eu-a", "eu-b", "us-a", "us-b"},
		"/api/route/all?c=us&c=cust-42": nil,
	}
	for target, want := range cases {
		rr := serve(h, http.MethodGet, target, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d body=%s", target, rr.Code, rr.Body.String())
		}
		got := decodeResp(t, rr).ShardIDs
		if want == nil {
			if len(got) != 1 || !strings.HasPrefix(got[0], "us-") {
				t.Fatalf("%s: expected one us shard, got %v", target, got)
			}
			continue
		}
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Fatalf("%s: expected %v, got %v", target, want, got)
		}
	}

	if rr := serve(h, http.MethodGet, "/api/route/all", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("route-all-missing: expected 400, got %d", rr.Code)
	}
}

func TestCompareHandler(t *testing.T) {
	prod := regionRouter(t)
	d := shadow.New(prod, regionRouter(t))
	defer d.Close()

	h := NewServer(prod, "", WithComparer(d)).createRouter()
	rr := serve(h, http.MethodGet, "/api/shadow/compare?c=us&c=cust-9", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("compare: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	c := decodeResp(t, rr).Comparison
	if c == nil || !c.RoutingMatch || c.ProductionShardID != c.ShadowShardID {
		t.Fatalf("compare: expected matching routes, got %+v", c)
	}

	rr = serve(h, http.MethodGet, "/api/shadow/compare?c=apac&c=cust-9", nil)
	c = decodeResp(t, rr).Comparison
	if c == nil || c.RoutingMatch || c.ProductionError == "" {
		t.Fatalf("compare: expected production error, got %+v", c)
	}

	// without a comparer the endpoint is absent
	h = NewServer(prod, "").createRouter()
	if rr := serve(h, http.MethodGet, "/api/shadow/compare?c=us&c=x", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("compare-disabled: expected 404, got %d", rr.Code)
	}
}

func TestPutGetDeleteFlow(t *testing.T) {
	kv := newFakeKV()
	h := NewServer(regionRouter(t), "", WithKV(kv)).createRouter()

	// PUT
	form := url.Values{"c": {"eu", "cust-1"}, "value": {"bar"}}
	rr := serve(h, http.MethodPut, "/api/kv", form)
	if rr.Code != http.StatusOK {
		t.Fatalf("put: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if resp := decodeResp(t, rr); resp.Status != StatusSuccess {
		t.Fatalf("put: expected status %s, got %s", StatusSuccess, resp.Status)
	}

	// GET
	rr = serve(h, http.MethodGet, "/api/kv?c=eu&c=cust-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if resp := decodeResp(t, rr); resp.Value != "bar" {
		t.Fatalf("get: expected value 'bar', got '%s'", resp.Value)
	}

	// DELETE
	rr = serve(h, http.MethodDelete, "/api/kv?c=eu&c=cust-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	// GET after delete -> 404
	rr = serve(h, http.MethodGet, "/api/kv?c=eu&c=cust-1", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get-after-delete: expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}

	// backend failure -> 502
	kv.fail = errors.New("connection refused")
	rr = serve(h, http.MethodGet, "/api/kv?c=eu&c=cust-1", nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("get-failing: expected 502, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestMissingParamsAndMethodNotAllowed(t *testing.T) {
	h := NewServer(regionRouter(t), "", WithKV(newFakeKV())).createRouter()

	// PUT missing value
	rr := serve(h, http.MethodPut, "/api/kv", url.Values{"c": {"eu", "x"}})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("put-missing: expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}

	// GET missing key
	if rr = serve(h, http.MethodGet, "/api/kv", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("get-missing: expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}

	// DELETE missing key
	if rr = serve(h, http.MethodDelete, "/api/kv", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("delete-missing: expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}

	// Method not allowed: POST to /health
	if rr = serve(h, http.MethodPost, "/health", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("method-not-allowed: expected 405, got %d body=%s", rr.Code, rr.Body.String())
	}

	// kv routes are absent without a store
	h = NewServer(regionRouter(t), "").createRouter()
	if rr = serve(h, http.MethodGet, "/api/kv?c=eu&c=x", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("kv-disabled: expected 404, got %d", rr.Code)
	}
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "shardroute_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	h := NewServer(regionRouter(t), "", WithGatherer(reg)).createRouter()
	rr := serve(h, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "shardroute_test_total 1") {
		t.Fatalf("metrics: counter missing from body=%s", rr.Body.String())
	}
}
