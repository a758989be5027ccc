package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/svckit/errors"
	"github.com/kbukum/svckit/logger"
	"github.com/kbukum/svckit/module"
	"github.com/kbukum/svckit/observability"
	"github.com/kbukum/svckit/properties"
	"github.com/kbukum/svckit/registry"
	"github.com/kbukum/svckit/version"
)

const testSecret = "0123456789abcdef-console"

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	reg     *registry.Registry
	modules *module.Manager
	console *Console
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	reg := registry.New(registry.WithLogger(logger.Nop()))
	mgr := module.NewManager(reg, module.WithLogger(logger.Nop()))
	c := New(cfg, reg, WithModules(mgr), WithLogger(logger.Nop()))
	return &fixture{reg: reg, modules: mgr, console: c}
}

func (f *fixture) get(t *testing.T, path string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	f.console.Handler().ServeHTTP(w, req)
	return w
}

type servicesBody struct {
	Data  []ServiceView `json:"data"`
	Total int           `json:"total"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, Config{})

	w := f.get(t, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	h := decode[observability.ServiceHealth](t, w)
	if h.Status != observability.HealthStatusUp || len(h.Components) != 1 || h.Components[0].Name != "registry" {
		t.Errorf("unexpected health %+v", h)
	}

	f.reg.Close()
	if w := f.get(t, "/healthz"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("closed registry status = %d, want 503", w.Code)
	}
}

func TestServicesListing(t *testing.T) {
	f := newFixture(t, Config{})
	f.reg.Register([]string{"greeter"}, "low", properties.Of(properties.ServiceRanking, 1, "lang", "en"))
	f.reg.Register([]string{"greeter", "named"}, "high", properties.Of(properties.ServiceRanking, 9, "lang", "fr"))
	f.reg.Register([]string{"other"}, "x", nil)

	tests := []struct {
		name    string
		query   string
		wantIDs []int64
	}{
		{"all", "", []int64{2, 1, 3}},
		{"by interface", "?interface=greeter", []int64{2, 1}},
		{"by filter", "?filter=(lang=en)", []int64{1}},
		{"both", "?interface=named&filter=(lang=fr)", []int64{2}},
		{"no match", "?interface=missing", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := f.get(t, "/services"+tc.query)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
			}
			body := decode[servicesBody](t, w)
			var ids []int64
			for _, v := range body.Data {
				ids = append(ids, v.ID)
			}
			if fmt.Sprint(ids) != fmt.Sprint(tc.wantIDs) {
				t.Errorf("ids = %v, want %v", ids, tc.wantIDs)
			}
		})
	}
}

func TestServicesInvalidFilter(t *testing.T) {
	f := newFixture(t, Config{})
	w := f.get(t, "/services?filter=(lang=en")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	body := decode[apperrors.ErrorResponse](t, w)
	if body.Error.Code != apperrors.ErrCodeInvalidFilter {
		t.Errorf("code = %s, want INVALID_FILTER", body.Error.Code)
	}
}

type opaque struct{}

func TestServiceByID(t *testing.T) {
	f := newFixture(t, Config{})
	ref, _ := f.reg.Register([]string{"greeter"}, "x", properties.Of("handler", opaque{}, "tags", []string{"a", "b"}))

	w := f.get(t, fmt.Sprintf("/services/%d", ref.ID()))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	body := decode[struct {
		Data ServiceView `json:"data"`
	}](t, w)
	if body.Data.ID != ref.ID() || body.Data.Interfaces[0] != "greeter" {
		t.Errorf("unexpected view %+v", body.Data)
	}
	if body.Data.Properties["handler"] != "{}" {
		t.Errorf("opaque property rendered as %v", body.Data.Properties["handler"])
	}

	tests := []struct {
		path string
		code int
	}{
		{"/services/999", http.StatusNotFound},
		{"/services/abc", http.StatusBadRequest},
		{"/services/0", http.StatusBadRequest},
	}
	for _, tc := range tests {
		if w := f.get(t, tc.path); w.Code != tc.code {
			t.Errorf("%s status = %d, want %d", tc.path, w.Code, tc.code)
		}
	}

	f.reg.Unregister(ref)
	if w := f.get(t, fmt.Sprintf("/services/%d", ref.ID())); w.Code != http.StatusNotFound {
		t.Errorf("unregistered service status = %d, want 404", w.Code)
	}
}

func TestModules(t *testing.T) {
	f := newFixture(t, Config{})
	f.modules.Install("greeters", module.ActivatorFuncs{StartFunc: func(_ context.Context, rc *registry.Context) error {
		_, err := rc.Register([]string{"greeter"}, "hi", nil)
		return err
	}})
	f.modules.Install("idle", module.ActivatorFuncs{})
	f.modules.Load(context.Background(), "greeters")

	w := f.get(t, "/modules")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode[struct {
		Data []struct {
			Name     string `json:"name"`
			State    string `json:"state"`
			Services int    `json:"services"`
		} `json:"data"`
	}](t, w)
	if len(body.Data) != 2 {
		t.Fatalf("expected 2 modules, got %d", len(body.Data))
	}
	if body.Data[0].Name != "greeters" || body.Data[0].State != "active" || body.Data[0].Services != 1 {
		t.Errorf("unexpected first module %+v", body.Data[0])
	}
	if body.Data[1].State != "installed" {
		t.Errorf("unexpected second module %+v", body.Data[1])
	}
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, Config{})
	f.reg.Register([]string{"greeter"}, "x", nil)
	f.get(t, "/services")

	w := f.get(t, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	text := w.Body.String()
	for _, want := range []string{
		"svckit_registry_services 1",
		`svckit_registry_interface_services{interface="greeter"} 1`,
		`svckit_console_requests_total{route="/services",status="200"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestBearerAuth(t *testing.T) {
	f := newFixture(t, Config{AuthSecret: testSecret, AuthIssuer: "ops"})
	valid, err := IssueToken(testSecret, "ops", "alice", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	expired, _ := IssueToken(testSecret, "ops", "alice", -time.Minute)
	wrongIssuer, _ := IssueToken(testSecret, "someone", "alice", time.Minute)
	wrongKey, _ := IssueToken("another-secret-of-length", "ops", "alice", time.Minute)

	tests := []struct {
		name   string
		path   string
		header string
		code   int
	}{
		{"healthz is open", "/healthz", "", http.StatusOK},
		{"missing token", "/services", "", http.StatusUnauthorized},
		{"wrong scheme", "/services", "Basic " + valid, http.StatusUnauthorized},
		{"valid token", "/services", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", "/modules", "bearer " + valid, http.StatusOK},
		{"expired", "/services", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong issuer", "/services", "Bearer " + wrongIssuer, http.StatusUnauthorized},
		{"wrong key", "/metrics", "Bearer " + wrongKey, http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var w *httptest.ResponseRecorder
			if tc.header == "" {
				w = f.get(t, tc.path)
			} else {
				w = f.get(t, tc.path, "Authorization", tc.header)
			}
			if w.Code != tc.code {
				t.Errorf("status = %d, want %d", w.Code, tc.code)
			}
			if tc.code == http.StatusUnauthorized {
				body := decode[apperrors.ErrorResponse](t, w)
				if body.Error.Code != apperrors.ErrCodeUnauthorized {
					t.Errorf("code = %s", body.Error.Code)
				}
			}
		})
	}
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, Config{Addr: "127.0.0.1:0"})
	if err := f.console.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer f.console.Stop(context.Background())

	resp, err := http.Get("http://" + f.console.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := f.console.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := f.console.Stop(context.Background()); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestVersion(t *testing.T) {
	f := newFixture(t, Config{})
	w := f.get(t, "/version")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode[struct {
		Data version.Info `json:"data"`
	}](t, w)
	if body.Data.Version != version.Version {
		t.Errorf("version = %q, want %q", body.Data.Version, version.Version)
	}
}
