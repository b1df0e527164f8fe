package pool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Prober checks whether a freshly spawned sandbox is accepting requests
// on its port.
type Prober func(ctx context.Context, port int) error

// readinessProbe polls the sandbox with a JSON-RPC handshake until it
// responds or the attempts are exhausted. Any HTTP response counts as
// alive: the sandbox owns its RPC semantics, the probe only proves the
// socket is served.
func readinessProbe(attempts int, delay time.Duration) Prober {
	return func(ctx context.Context, port int) error {
		client := &http.Client{Timeout: 2 * time.Second}
		url := fmt.Sprintf("http://127.0.0.1:%d/rpc", port)
		payload := []byte(`{"jsonrpc":"2.0","id":"probe","method":"ping"}`)

		var lastErr error
		for i := 0; i < attempts; i++ {
			if i > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
			if err != nil {
				return fmt.Errorf("failed to build probe request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := client.Do(req)
			if err != nil {
				lastErr = err
				continue
			}
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil
		}

		return fmt.Errorf("%w after %d attempts: %v", ErrProbeTimeout, attempts, lastErr)
	}
}
