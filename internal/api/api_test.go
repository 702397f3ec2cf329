package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/bcnelson/simulation-deployer/internal/api"
	"github.com/bcnelson/simulation-deployer/internal/auth"
	"github.com/bcnelson/simulation-deployer/internal/config"
	"github.com/bcnelson/simulation-deployer/internal/domain"
	"github.com/bcnelson/simulation-deployer/internal/engine"
	"github.com/bcnelson/simulation-deployer/internal/images"
	"github.com/bcnelson/simulation-deployer/internal/manifest"
	"github.com/bcnelson/simulation-deployer/internal/service"
	"github.com/bcnelson/simulation-deployer/internal/storage/memory"
)

const (
	testModule = "1LjViNIEB14XNArQtwaP"
	testImage  = "us-central1-docker.pkg.dev/steameducation-b1b03/simulations/bouncing-ball@sha256:3b1f5c5e0d9a4a1f8e2c7d6b5a4938271605f4e3d2c1b0a9f8e7d6c5b4a39281"
)

// countingEngine wraps another engine and counts calls.
type countingEngine struct {
	next         engine.Engine
	upErr        error
	destroyErr   error
	upCalls      atomic.Int32
	destroyCalls atomic.Int32
}

func (c *countingEngine) Up(ctx context.Context, stackName string, m *manifest.Manifest) (*engine.Result, error) {
	c.upCalls.Add(1)
	if c.upErr != nil {
		return nil, c.upErr
	}
	return c.next.Up(ctx, stackName, m)
}

func (c *countingEngine) Destroy(ctx context.Context, stackName string) (*engine.Result, error) {
	c.destroyCalls.Add(1)
	if c.destroyErr != nil {
		return nil, c.destroyErr
	}
	return c.next.Destroy(ctx, stackName)
}

// testServer creates a test server backed by the file shim engine
type testServer struct {
	handler http.Handler
	store   *memory.Store
	engine  *countingEngine
	shim    *engine.FileShim
}

type serverOptions struct {
	verifier auth.Verifier
	limits   config.RateLimitConfig
}

func newTestServer(t *testing.T, opts ...func(*serverOptions)) *testServer {
	t.Helper()

	o := &serverOptions{}
	for _, opt := range opts {
		opt(o)
	}

	store := memory.New()
	shim := engine.NewFileShim(t.TempDir(), nil)
	eng := &countingEngine{next: shim}
	catalogue := images.New(map[string]string{testModule: testImage})

	builder, err := manifest.NewBuilder(manifest.Config{
		Namespace:         "simulations",
		GatewayName:       "simulation-gateway",
		PoliciesEnabled:   true,
		BackendTimeoutSec: 3600,
	}, catalogue)
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}

	stacks := service.NewStackService(store, builder, eng, 0, nil)

	return &testServer{
		handler: api.NewRouter(store, stacks, catalogue, o.verifier, o.limits, nil),
		store:   store,
		engine:  eng,
		shim:    shim,
	}
}

func (ts *testServer) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	}
	return ts.raw(method, path, reqBody, token)
}

func (ts *testServer) raw(method, path string, body io.Reader, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) domain.ErrorResponse {
	t.Helper()
	var resp domain.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error response: %v (%s)", err, rr.Body.String())
	}
	return resp
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request("GET", "/status", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var resp domain.StatusResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Status != "ok" {
		t.Errorf("Expected status ok, got %s", resp.Status)
	}
	if resp.Message == "" {
		t.Error("Expected a status message")
	}
	if ts.engine.upCalls.Load() != 0 || ts.engine.destroyCalls.Load() != 0 {
		t.Error("GET /status must not touch the engine")
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request("GET", "/health", nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ts.request("GET", "/status", nil, "")
	rr := ts.request("GET", "/metrics", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "simulation_http_requests_total") {
		t.Error("Expected request counter in metrics output")
	}
}

func TestMetricsUnmatchedRoutesShareOneLabel(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 20; i++ {
		rr := ts.request("GET", fmt.Sprintf("/no-such-route-%d", i), nil, "")
		if rr.Code != http.StatusNotFound {
			t.Fatalf("Expected status 404, got %d", rr.Code)
		}
	}

	body := ts.request("GET", "/metrics", nil, "").Body.String()
	if !strings.Contains(body, `route="unmatched"`) {
		t.Error("Expected unmatched requests to be counted under route=\"unmatched\"")
	}
	if strings.Contains(body, "/no-such-route-") {
		t.Error("Raw request paths must not become metric labels")
	}
}

func TestDeploySuccess(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request("POST", "/deploy", domain.DeployRequest{UserID: "u1", ModuleID: testModule}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Status    string         `json:"status"`
		StackName string         `json:"stackName"`
		Outputs   map[string]any `json:"outputs"`
		Summary   domain.Summary `json:"summary"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Status != "success" {
		t.Errorf("Expected status success, got %s", resp.Status)
	}
	if resp.StackName != "stack-u1" {
		t.Errorf("Expected stackName stack-u1, got %s", resp.StackName)
	}
	if resp.Outputs["image"] != testImage {
		t.Errorf("Expected image output %s, got %v", testImage, resp.Outputs["image"])
	}
	if resp.Summary.Result != "succeeded" {
		t.Errorf("Expected summary result succeeded, got %s", resp.Summary.Result)
	}

	data, err := os.ReadFile(ts.shim.Path("stack-u1"))
	if err != nil {
		t.Fatalf("Expected stack file: %v", err)
	}
	for _, want := range []string{
		"/u1/" + testModule + "/simulation",
		"/u1/" + testModule + "/command",
		"image: " + testImage,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Expected stack file to contain %q", want)
		}
	}
}

func TestDeployIgnoresStackName(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request("POST", "/deploy", domain.DeployRequest{UserID: "u1", ModuleID: testModule, StackName: "custom"}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"stackName":"stack-u1"`) {
		t.Errorf("Expected derived stack name, got %s", rr.Body.String())
	}
}

func TestDeployValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name      string
		body      string
		wantCode  string
		wantField string
	}{
		{"missing user", `{"module_id":"` + testModule + `"}`, domain.ErrCodeValidationError, "user_id"},
		{"missing module", `{"user_id":"u1"}`, domain.ErrCodeValidationError, "module_id"},
		{"wrong type", `{"user_id":1,"module_id":"m"}`, domain.ErrCodeValidationError, "user_id"},
		{"bad characters", `{"user_id":"../etc","module_id":"` + testModule + `"}`, domain.ErrCodeValidationError, "user_id"},
		{"not json", `user_id=u1`, domain.ErrCodeInvalidInput, ""},
		{"unknown module", `{"user_id":"u1","module_id":"nope"}`, domain.ErrCodeUnknownModule, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.raw("POST", "/deploy", strings.NewReader(tt.body), "")
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d: %s", rr.Code, rr.Body.String())
			}
			resp := decodeError(t, rr)
			if resp.Status != "error" {
				t.Errorf("Expected status error, got %s", resp.Status)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, resp.Code)
			}
			if tt.wantField != "" && resp.Field != tt.wantField {
				t.Errorf("Expected field %s, got %s", tt.wantField, resp.Field)
			}
		})
	}

	if n := ts.engine.upCalls.Load(); n != 0 {
		t.Errorf("Expected no engine calls for invalid requests, got %d", n)
	}
}

func TestDeployFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.upErr = errors.New("Deployment simulation-u1 failed: ImagePullBackOff")

	rr := ts.request("POST", "/deploy", domain.DeployRequest{UserID: "u1", ModuleID: testModule}, "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", rr.Code)
	}

	resp := decodeError(t, rr)
	if resp.Status != "error" || resp.Code != domain.ErrCodeDeployFailed {
		t.Errorf("Unexpected envelope: %+v", resp)
	}
	if !strings.Contains(resp.Error, "ImagePullBackOff") {
		t.Errorf("Expected engine message to be preserved, got %q", resp.Error)
	}
}

func TestDeployBusy(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.upErr = domain.ErrStackBusy

	rr := ts.request("POST", "/deploy", domain.DeployRequest{UserID: "u1", ModuleID: testModule}, "")
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", rr.Code)
	}
}

func TestDestroyMissingUserID(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request("POST", "/destroy", map[string]string{}, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rr.Code)
	}
	resp := decodeError(t, rr)
	if resp.Field != "user_id" {
		t.Errorf("Expected field user_id, got %s", resp.Field)
	}
	if n := ts.engine.destroyCalls.Load(); n != 0 {
		t.Errorf("Expected engine not to be called, got %d calls", n)
	}
}

func TestDestroyUnknownStack(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request("POST", "/destroy", domain.DestroyRequest{UserID: "ghost"}, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d: %s", rr.Code, rr.Body.String())
	}
	if resp := decodeError(t, rr); resp.Code != domain.ErrCodeStackNotFound {
		t.Errorf("Expected code %s, got %s", domain.ErrCodeStackNotFound, resp.Code)
	}
}

func TestDeployDestroyLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request("POST", "/deploy", domain.DeployRequest{UserID: "u1", ModuleID: testModule}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("deploy: expected 200, got %d", rr.Code)
	}

	rr = ts.request("POST", "/destroy", domain.DestroyRequest{UserID: "u1"}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("destroy: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Status    string         `json:"status"`
		StackName string         `json:"stackName"`
		Summary   domain.Summary `json:"summary"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Status != "success" || resp.StackName != "stack-u1" {
		t.Errorf("Unexpected destroy response: %s", rr.Body.String())
	}

	if _, err := os.Stat(ts.shim.Path("stack-u1")); !os.IsNotExist(err) {
		t.Error("Expected stack file to be removed")
	}

	// A second destroy finds nothing to tear down
	rr = ts.request("POST", "/destroy", domain.DestroyRequest{UserID: "u1"}, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("second destroy: expected 404, got %d", rr.Code)
	}

	rr = ts.request("GET", "/deployments/u1", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", rr.Code)
	}
	var ops []*domain.Operation
	_ = json.Unmarshal(rr.Body.Bytes(), &ops)
	if len(ops) != 3 {
		t.Fatalf("Expected 3 operations, got %d", len(ops))
	}
	if ops[0].Status != domain.OperationFailed || ops[1].Kind != domain.OperationDestroy || ops[2].Kind != domain.OperationDeploy {
		t.Errorf("Unexpected history order: %+v %+v %+v", ops[0], ops[1], ops[2])
	}
}

func TestHistoryEmpty(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request("GET", "/deployments/nobody", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("Expected empty list, got %s", rr.Body.String())
	}
}

func TestManifestEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request("GET", "/manifest?user_id=u1&module_id="+testModule, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("Expected application/yaml, got %s", ct)
	}
	if !strings.Contains(rr.Body.String(), "kind: HTTPRoute") {
		t.Error("Expected rendered HTTPRoute")
	}
	if ts.engine.upCalls.Load() != 0 {
		t.Error("Rendering must not touch the engine")
	}

	etag := rr.Header().Get("ETag")
	if etag == "" {
		t.Fatal("Expected ETag header")
	}

	req := httptest.NewRequest("GET", "/manifest?user_id=u1&module_id="+testModule, nil)
	req.Header.Set("If-None-Match", etag)
	rr = httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotModified {
		t.Errorf("Expected status 304, got %d", rr.Code)
	}

	rr = ts.request("GET", "/manifest?user_id=u1&module_id=nope", nil, "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown module, got %d", rr.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, func(o *serverOptions) {
		o.verifier = auth.NewStaticToken("test-token")
	})
	body := domain.DeployRequest{UserID: "u1", ModuleID: testModule}

	// Request without auth header
	rr := ts.request("POST", "/deploy", body, "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}

	// Request with invalid auth header format
	req := httptest.NewRequest("POST", "/deploy", nil)
	req.Header.Set("Authorization", "Basic invalid")
	rr = httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}

	// Request with wrong token
	rr = ts.request("POST", "/deploy", body, "wrong-token")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}

	if n := ts.engine.upCalls.Load(); n != 0 {
		t.Errorf("Expected no engine calls without credentials, got %d", n)
	}

	rr = ts.request("POST", "/deploy", body, "test-token")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 with token, got %d", rr.Code)
	}

	// Read-only routes stay open
	rr = ts.request("GET", "/status", nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 for /status, got %d", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(o *serverOptions) {
		o.limits = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	})

	rr := ts.request("POST", "/destroy", domain.DestroyRequest{UserID: "u1"}, "")
	if rr.Code == http.StatusTooManyRequests {
		t.Fatalf("First request should not be limited")
	}

	rr = ts.request("POST", "/destroy", domain.DestroyRequest{UserID: "u1"}, "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
}

func TestModulesEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request("GET", "/modules", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var resp domain.ModulesResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Modules) != 1 || resp.Modules[0] != testModule {
		t.Errorf("Expected [%s], got %v", testModule, resp.Modules)
	}
}

func TestLatestAndOperationEndpoints(t *testing.T) {
	ts := newTestServer(t, func(o *serverOptions) {
		o.verifier = auth.NewStaticToken("test-token")
	})

	rr := ts.request("GET", "/deployments/u1/latest", nil, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404 before any operation, got %d", rr.Code)
	}
	if resp := decodeError(t, rr); resp.Code != domain.ErrCodeNotFound {
		t.Errorf("Expected code %s, got %s", domain.ErrCodeNotFound, resp.Code)
	}

	rr = ts.request("POST", "/deploy", domain.DeployRequest{UserID: "u1", ModuleID: testModule}, "test-token")
	if rr.Code != http.StatusOK {
		t.Fatalf("deploy: expected 200, got %d", rr.Code)
	}

	rr = ts.request("GET", "/deployments/u1/latest", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("latest: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var latest domain.Operation
	_ = json.Unmarshal(rr.Body.Bytes(), &latest)
	if latest.Kind != domain.OperationDeploy || latest.Status != domain.OperationSuccess {
		t.Errorf("Unexpected latest operation: %+v", latest)
	}
	if latest.RequestedBy != "api-token" {
		t.Errorf("Expected requested_by api-token, got %q", latest.RequestedBy)
	}

	rr = ts.request("GET", "/operations/"+latest.ID, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("operation: expected 200, got %d", rr.Code)
	}
	var op domain.Operation
	_ = json.Unmarshal(rr.Body.Bytes(), &op)
	if op.ID != latest.ID || op.Image != testImage {
		t.Errorf("Unexpected operation: %+v", op)
	}

	for _, id := range []string{"00000000-0000-0000-0000-000000000000", "not-a-uuid"} {
		rr = ts.request("GET", "/operations/"+id, nil, "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("GET /operations/%s: expected 404, got %d", id, rr.Code)
		}
	}

	rr = ts.request("GET", "/deployments/..bad/latest", nil, "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid user_id, got %d", rr.Code)
	}
}
