package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds each provider request.
const DefaultTimeout = 15 * time.Second

const maxBodyBytes = 16 << 20

// fetch issues one GET with its own deadline. There are no retries: a
// failure is returned as a NetworkFault and the caller serves what it has.
func fetch(ctx context.Context, hc *http.Client, timeout time.Duration, scope, url string) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkFault{Scope: scope, Err: err}
	}
	req.Header.Set("User-Agent", "enroute-tracker")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, &NetworkFault{Scope: scope, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkFault{Scope: scope, Err: fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &NetworkFault{Scope: scope, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}
