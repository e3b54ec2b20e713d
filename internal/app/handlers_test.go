package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/PFlorov/k3s-url-shortener-app/internal/cache"
	"github.com/PFlorov/k3s-url-shortener-app/internal/config"
	"github.com/PFlorov/k3s-url-shortener-app/internal/db"
	"github.com/PFlorov/k3s-url-shortener-app/internal/metrics"
)

var shortURLRe = regexp.MustCompile(`http://example\.com/([A-Za-z0-9]{6})`)

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: time.Second,
		},
		Features: config.FeaturesConfig{QRCode: true, QRSize: 256},
	}
}

func newTestApp(t *testing.T, cfg config.Config) (*App, *gorm.DB) {
	t.Helper()
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "urls.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	if err := db.InitSchema(context.Background(), gdb); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	return New(cfg, gdb, cache.Nop{}, metrics.New()), gdb
}

func postForm(h http.Handler, longURL string) *httptest.ResponseRecorder {
	form := url.Values{"long_url": {longURL}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestIndex(t *testing.T) {
	a, _ := newTestApp(t, testConfig())

	rec := get(a.Router(), "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `name="long_url"`) || !strings.Contains(body, `method="POST"`) {
		t.Errorf("GET / body missing form:\n%s", body)
	}
	if strings.Contains(body, "Short URL:") {
		t.Errorf("GET / should not show a result:\n%s", body)
	}
}

func TestShortenThenRedirect(t *testing.T) {
	a, _ := newTestApp(t, testConfig())
	h := a.Router()

	rec := postForm(h, "http://test.org")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST / status = %d, want 200; body = %s", rec.Code, rec.Body)
	}
	body := rec.Body.String()

	m := shortURLRe.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("POST / body has no short URL:\n%s", body)
	}
	code := m[1]

	if !strings.Contains(body, "Original URL: http://test.org") {
		t.Errorf("POST / body missing original URL:\n%s", body)
	}
	if !strings.Contains(body, `href="/`+code+`"`) {
		t.Errorf("POST / body missing link to /%s", code)
	}
	if !strings.Contains(body, `name="long_url"`) {
		t.Errorf("POST / body should re-render the form")
	}
	if !strings.Contains(body, "data:image/png;base64,") {
		t.Errorf("POST / body missing QR code")
	}

	redirect := get(h, "/"+code)
	if redirect.Code != http.StatusFound {
		t.Fatalf("GET /%s status = %d, want 302", code, redirect.Code)
	}
	if loc := redirect.Header().Get("Location"); loc != "http://test.org" {
		t.Errorf("Location = %q, want http://test.org", loc)
	}

	again := postForm(h, "http://test.org")
	if !strings.Contains(again.Body.String(), "http://example.com/"+code) {
		t.Errorf("second POST did not reuse code %s:\n%s", code, again.Body)
	}
}

func TestShorten_NormalizesScheme(t *testing.T) {
	a, _ := newTestApp(t, testConfig())
	h := a.Router()

	rec := postForm(h, "example.com")
	m := shortURLRe.FindStringSubmatch(rec.Body.String())
	if m == nil {
		t.Fatalf("POST / body has no short URL:\n%s", rec.Body)
	}

	redirect := get(h, "/"+m[1])
	if loc := redirect.Header().Get("Location"); loc != "http://example.com" {
		t.Errorf("Location = %q, want http://example.com", loc)
	}
}

func TestShorten_EmptyURL(t *testing.T) {
	a, _ := newTestApp(t, testConfig())

	for _, in := range []string{"", "   "} {
		rec := postForm(a.Router(), in)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("POST long_url=%q status = %d, want 400", in, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Please enter a URL") {
			t.Errorf("POST long_url=%q body = %q", in, rec.Body)
		}
	}
}

func TestShorten_BaseURLAndNoQR(t *testing.T) {
	cfg := testConfig()
	cfg.Server.BaseURL = "https://sho.rt"
	cfg.Features.QRCode = false
	a, _ := newTestApp(t, cfg)

	body := postForm(a.Router(), "http://test.org").Body.String()
	if !regexp.MustCompile(`https://sho\.rt/[A-Za-z0-9]{6}`).MatchString(body) {
		t.Errorf("body does not use configured base URL:\n%s", body)
	}
	if strings.Contains(body, "<img") {
		t.Errorf("QR code rendered while disabled")
	}
}

func TestRedirect_NotFound(t *testing.T) {
	a, _ := newTestApp(t, testConfig())

	rec := get(a.Router(), "/zzzzzz")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Short URL not found") {
		t.Errorf("body = %q", rec.Body)
	}
}

func TestStorageFailure(t *testing.T) {
	a, gdb := newTestApp(t, testConfig())
	h := a.Router()
	if err := db.Close(gdb); err != nil {
		t.Fatal(err)
	}

	if rec := postForm(h, "http://test.org"); rec.Code != http.StatusInternalServerError ||
		!strings.Contains(rec.Body.String(), "Internal Server Error") {
		t.Errorf("POST / = %d %q, want 500 Internal Server Error", rec.Code, rec.Body)
	}
	if rec := get(h, "/Ab3dE9"); rec.Code != http.StatusInternalServerError {
		t.Errorf("GET /Ab3dE9 status = %d, want 500", rec.Code)
	}
	if rec := get(h, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /healthz status = %d, want 503", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	a, _ := newTestApp(t, testConfig())
	h := a.Router()

	rec := get(h, "/healthz")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("GET /healthz = %d %q, want 200 ok", rec.Code, rec.Body)
	}

	_ = get(h, "/zzzzzz")
	rec = get(h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `urlshrt_http_requests_total{code="404",method="GET",route="/{code}"} 1`) {
		t.Errorf("metrics missing redirect series:\n%s", rec.Body)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	a, _ := newTestApp(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestShorten_ForwardedHeaders(t *testing.T) {
	post := func(h http.Handler) string {
		form := url.Values{"long_url": {"http://test.org"}}
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Forwarded-Proto", "https")
		req.Header.Set("X-Forwarded-Host", "evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Body.String()
	}

	a, _ := newTestApp(t, testConfig())
	body := post(a.Router())
	if strings.Contains(body, "evil.example") || !shortURLRe.MatchString(body) {
		t.Errorf("untrusted forwarded headers changed the short URL:\n%s", body)
	}

	cfg := testConfig()
	cfg.Server.TrustProxyHeaders = true
	trusted, _ := newTestApp(t, cfg)
	if body := post(trusted.Router()); !strings.Contains(body, "https://evil.example/") {
		t.Errorf("trusted forwarded headers ignored:\n%s", body)
	}
}
