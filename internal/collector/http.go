package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

const defaultTimeout = 10 * time.Second

// HTTPOptions configures the transport shared by every venue client.
type HTTPOptions struct {
	Timeout time.Duration
	// Limiter, when set, is consulted before every outbound request using
	// the key "venue:<name>".
	Limiter domain.RateLimiter
}

type requester struct {
	venue   string
	baseURL string
	client  *http.Client
	limiter domain.RateLimiter
}

func newRequester(venue, baseURL string, opts HTTPOptions) requester {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return requester{
		venue:   venue,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: opts.Limiter,
	}
}

func (r requester) getJSON(ctx context.Context, path string, out any) error {
	return r.do(ctx, http.MethodGet, path, nil, out)
}

func (r requester) postJSON(ctx context.Context, path string, body, out any) error {
	return r.do(ctx, http.MethodPost, path, body, out)
}

func (r requester) do(ctx context.Context, method, path string, reqBody, out any) error {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, "venue:"+r.venue); err != nil {
			return fmt.Errorf("%s: wait for rate limit: %w", r.venue, err)
		}
	}

	var bodyReader io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("%s: marshal request body: %w", r.venue, err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", r.venue, err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: http request: %w", r.venue, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", r.venue, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", r.venue, domain.ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%s: %w %d: %s", r.venue, domain.ErrUnexpectedCode, resp.StatusCode, truncate(respBody, 256))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", r.venue, err)
	}
	return nil
}

// parseFloat reads a venue's decimal string; malformed or empty is zero.
func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

func upperSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			set[v] = true
		}
	}
	return set
}
