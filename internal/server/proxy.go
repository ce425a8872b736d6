package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/meloplay/meloplay/internal/utils"
)

// hopHeaders are stripped in both directions; they describe the
// connection, not the payload.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// passHeaders are forwarded from the client so the browser can issue
// range requests against the upstream CDN.
var passHeaders = []string{"Range", "Accept", "Accept-Encoding", "If-Range"}

// refererByHost carries the per-provider referer some CDNs require.
var refererByHost = map[string]string{
	"music.163.com": "http://music.163.com/",
	"m.kuwo.cn":     "http://www.kuwo.cn/",
	"www.kuwo.cn":   "http://www.kuwo.cn/",
}

// handleProxy streams an upstream media asset to the browser. Only
// hosts registered by a provider are reachable; everything else is
// refused so the server cannot be used as an open relay.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}
	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		http.Error(w, "invalid url", http.StatusBadRequest)
		return
	}
	if !s.hostAllowed(target.Hostname()) {
		slog.Warn("proxy refused host", "host", target.Hostname())
		http.Error(w, "host not allowed", http.StatusForbidden)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	req.Header.Set("User-Agent", utils.RandomUserAgent())
	for _, h := range passHeaders {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	if ref, ok := refererByHost[target.Hostname()]; ok {
		req.Header.Set("Referer", ref)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		if isHopHeader(k) {
			continue
		}
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		slog.Debug("proxy stream interrupted", "host", target.Hostname(), "err", err)
	}
}

// hostAllowed accepts exact allowlist matches and their subdomains.
func (s *Server) hostAllowed(host string) bool {
	host = strings.ToLower(host)
	if _, ok := s.allowHosts[host]; ok {
		return true
	}
	for allowed := range s.allowHosts {
		if strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func isHopHeader(name string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}
