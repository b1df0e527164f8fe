package pool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// fetchSource reads a plugin's logic artifact. Local artifacts use the
// file scheme; anything else is fetched over the network.
func fetchSource(ctx context.Context, logicPath string) (string, error) {
	if strings.HasPrefix(logicPath, "file://") {
		data, err := os.ReadFile(strings.TrimPrefix(logicPath, "file://"))
		if err != nil {
			return "", fmt.Errorf("failed to read plugin source %s: %w", logicPath, err)
		}
		return string(data), nil
	}

	client := &http.Client{Timeout: 60 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, logicPath, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build source request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch plugin source %s: %w", logicPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching plugin source %s returned status %d", logicPath, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read plugin source body: %w", err)
	}

	return string(body), nil
}
