package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func newProxyServer(t *testing.T, allowHosts ...string) *Server {
	t.Helper()
	s := &Server{
		client:     &http.Client{},
		allowHosts: make(map[string]struct{}),
	}
	for _, h := range allowHosts {
		s.allowHosts[h] = struct{}{}
	}
	return s
}

func TestProxyStreamsAllowedHost(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Range"); got != "bytes=0-1023" {
			t.Errorf("range header %q not forwarded", got)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Connection", "keep-alive")
		_, _ = w.Write([]byte("mp3 bytes"))
	}))
	defer upstream.Close()

	u, _ := url.Parse(upstream.URL)
	s := newProxyServer(t, u.Hostname())

	req := httptest.NewRequest(http.MethodGet, "/proxy?url="+url.QueryEscape(upstream.URL), nil)
	req.Header.Set("Range", "bytes=0-1023")
	rec := httptest.NewRecorder()
	s.handleProxy(rec, req)

	resp := rec.Result()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "mp3 bytes" {
		t.Fatalf("status %d body %q, want the upstream payload", resp.StatusCode, body)
	}
	if resp.Header.Get("Content-Type") != "audio/mpeg" {
		t.Fatal("payload headers must pass through")
	}
	if resp.Header.Get("Connection") != "" {
		t.Fatal("hop-by-hop headers must be stripped")
	}
}

func TestProxyRefusesUnlistedHost(t *testing.T) {
	s := newProxyServer(t, "m.kuwo.cn")

	req := httptest.NewRequest(http.MethodGet, "/proxy?url="+url.QueryEscape("http://evil.example/x.mp3"), nil)
	rec := httptest.NewRecorder()
	s.handleProxy(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d, want forbidden for a host no provider registered", rec.Code)
	}
}

func TestProxyAllowsSubdomains(t *testing.T) {
	s := newProxyServer(t, "kuwo.cn")
	if !s.hostAllowed("antiserver.kuwo.cn") {
		t.Fatal("subdomain of an allowed host refused")
	}
	if s.hostAllowed("notkuwo.cn") {
		t.Fatal("lookalike domain accepted")
	}
}

func TestProxyRejectsBadInput(t *testing.T) {
	s := newProxyServer(t)

	for _, target := range []string{"", "ftp://host/file", "::bad::"} {
		req := httptest.NewRequest(http.MethodGet, "/proxy?url="+url.QueryEscape(target), nil)
		rec := httptest.NewRecorder()
		s.handleProxy(rec, req)
		if rec.Code != http.StatusBadRequest && rec.Code != http.StatusForbidden {
			t.Fatalf("url %q: status %d, want a client error", target, rec.Code)
		}
	}
}
