package fetch

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTML_Success(t *testing.T) {
	t.Setenv("PAGEFOLD_TEST_ALLOW_LOCAL", "1")
	expected := "<html><body>Hello</body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(expected))
	}))
	defer srv.Close()

	body, u, err := HTML(srv.URL, 5*time.Second, DefaultUserAgent)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != expected {
		t.Errorf("got %q, want %q", string(body), expected)
	}
	if u.Host == "" {
		t.Error("expected parsed URL with host")
	}
}

func TestHTML_NotFound(t *testing.T) {
	t.Setenv("PAGEFOLD_TEST_ALLOW_LOCAL", "1")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
	}))
	defer srv.Close()

	_, _, err := HTML(srv.URL, 5*time.Second, DefaultUserAgent)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("expected 404 in error, got: %v", err)
	}
}

func TestHTML_UserAgent(t *testing.T) {
	t.Setenv("PAGEFOLD_TEST_ALLOW_LOCAL", "1")
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	if _, _, err := HTML(srv.URL, 5*time.Second, "my-custom-agent/2.0"); err != nil {
		t.Fatal(err)
	}
	if gotUA != "my-custom-agent/2.0" {
		t.Errorf("User-Agent = %q, want %q", gotUA, "my-custom-agent/2.0")
	}
}

func TestHTML_EmptyUserAgentDefaults(t *testing.T) {
	t.Setenv("PAGEFOLD_TEST_ALLOW_LOCAL", "1")
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	if _, _, err := HTML(srv.URL, 5*time.Second, ""); err != nil {
		t.Fatal(err)
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want default", gotUA)
	}
}

func TestHTML_BrowserHeaders(t *testing.T) {
	t.Setenv("PAGEFOLD_TEST_ALLOW_LOCAL", "1")
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	if _, _, err := HTML(srv.URL, 5*time.Second, DefaultUserAgent); err != nil {
		t.Fatal(err)
	}

	required := map[string]string{
		"Sec-Fetch-Dest": "document",
		"Sec-Fetch-Mode": "navigate",
		"Sec-Fetch-Site": "none",
		"Accept":         "text/html",
	}
	for header, wantSubstr := range required {
		got := headers.Get(header)
		if got == "" {
			t.Errorf("missing header %s", header)
		} else if !strings.Contains(got, wantSubstr) {
			t.Errorf("%s = %q, want substring %q", header, got, wantSubstr)
		}
	}
}

func TestHTML_InvalidURL(t *testing.T) {
	if _, _, err := HTML("://bad-url", 5*time.Second, ""); err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestHTML_ExceedsSizeLimit(t *testing.T) {
	t.Setenv("PAGEFOLD_TEST_ALLOW_LOCAL", "1")
	saved := MaxResponseBytes
	defer func() { MaxResponseBytes = saved }()
	MaxResponseBytes = 100

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 200))
	}))
	defer srv.Close()

	_, _, err := HTML(srv.URL, 5*time.Second, "")
	if err == nil {
		t.Fatal("expected error when response exceeds size limit")
	}
	if !strings.Contains(err.Error(), "exceeds maximum allowed size") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestHTML_RoutesThroughProxy(t *testing.T) {
	t.Setenv("PAGEFOLD_TEST_ALLOW_LOCAL", "1")
	var gotHost string
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		w.Write([]byte("via proxy"))
	}))
	defer proxy.Close()

	saved := ProxyURL
	defer func() { ProxyURL = saved }()
	ProxyURL = proxy.URL

	body, _, err := HTML("http://origin.invalid/page", 5*time.Second, "")
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "via proxy" {
		t.Errorf("got %q, want proxy response", string(body))
	}
	if gotHost != "origin.invalid" {
		t.Errorf("proxied Host = %q, want origin.invalid", gotHost)
	}
}

func TestNewImageClient_BrowserByDefault(t *testing.T) {
	client := NewImageClient(5 * time.Second)
	if _, ok := client.Transport.(*browserTransport); !ok {
		t.Errorf("transport = %T, want *browserTransport", client.Transport)
	}
}

func TestNewImageClient_ProxyConfigured(t *testing.T) {
	saved := ProxyURL
	defer func() { ProxyURL = saved }()
	ProxyURL = "http://proxy.invalid:3128"

	client := NewImageClient(5 * time.Second)
	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("transport = %T, want *http.Transport", client.Transport)
	}
	if transport.Proxy == nil {
		t.Error("proxy not configured on transport")
	}
}

func TestHasPort(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"example.com:443", true},
		{"example.com:80", true},
		{"[::1]:8080", true},
		{"example.com", false},
		{"localhost", false},
	}
	for _, tt := range tests {
		if got := hasPort(tt.host); got != tt.want {
			t.Errorf("hasPort(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestReadLimited_UnderLimit(t *testing.T) {
	got, err := readLimited(bytes.NewReader(bytes.Repeat([]byte("a"), 100)), 200)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 100 {
		t.Errorf("got %d bytes, want 100", len(got))
	}
}

func TestReadLimited_ExactlyAtLimit(t *testing.T) {
	got, err := readLimited(bytes.NewReader(bytes.Repeat([]byte("b"), 200)), 200)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 200 {
		t.Errorf("got %d bytes, want 200", len(got))
	}
}

func TestReadLimited_ExceedsLimit(t *testing.T) {
	_, err := readLimited(bytes.NewReader(bytes.Repeat([]byte("c"), 201)), 200)
	if err == nil {
		t.Fatal("expected error when exceeding limit")
	}
	if !strings.Contains(err.Error(), "exceeds maximum allowed size") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestReadLimited_ZeroMeansUnlimited(t *testing.T) {
	got, err := readLimited(bytes.NewReader(bytes.Repeat([]byte("d"), 10000)), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 10000 {
		t.Errorf("got %d bytes, want 10000", len(got))
	}
}
