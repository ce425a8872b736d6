package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
)

func RandomUserAgent() string {
	// Target Chrome major versions roughly within last ~6 months
	const minMajor = 132
	const maxMajor = 138

	major := rand.IntN(maxMajor-minMajor+1) + minMajor
	return fmt.Sprintf(
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36",
		major,
	)
}

type RequestOption func(*http.Request)

func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		if value != "" {
			r.Header.Set(key, value)
		}
	}
}

// GetJSON fetches rawURL and decodes the body into out. A non-200
// status or an unparsable body is an error; callers treat either as a
// failure of that provider only.
func GetJSON(ctx context.Context, client *http.Client, rawURL string, out any, opts ...RequestOption) error {
	body, err := get(ctx, client, rawURL, opts...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response body: %w", err)
	}
	return nil
}

// GetText fetches rawURL and returns the raw body as a string.
func GetText(ctx context.Context, client *http.Client, rawURL string, opts ...RequestOption) (string, error) {
	body, err := get(ctx, client, rawURL, opts...)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func get(ctx context.Context, client *http.Client, rawURL string, opts ...RequestOption) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", RandomUserAgent())
	for _, opt := range opts {
		opt(req)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ResolveRedirect issues a GET but stops at the first redirect and
// returns its Location. Some providers hand out the real CDN URL only
// as a 302.
func ResolveRedirect(ctx context.Context, rawURL string, opts ...RequestOption) (string, error) {
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", RandomUserAgent())
	for _, opt := range opts {
		opt(req)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc := resp.Header.Get("Location")
		if loc == "" {
			return "", fmt.Errorf("redirect without location")
		}
		return loc, nil
	}
	if resp.StatusCode == http.StatusOK {
		// Some mirrors serve the bytes directly; the request URL is final.
		return rawURL, nil
	}
	return "", fmt.Errorf("http %d", resp.StatusCode)
}
