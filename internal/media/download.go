package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DownloadTimeout is the maximum time to wait for a file download
const DownloadTimeout = 60 * time.Second

// Download fetches url and returns at most maxBytes of its body. A nil
// client uses a client with DownloadTimeout.
func Download(ctx context.Context, client *http.Client, url string, maxBytes int64) ([]byte, error) {
	if client == nil {
		client = &http.Client{Timeout: DownloadTimeout}
	}
	if maxBytes <= 0 {
		maxBytes = MaxMediaBytes
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid download url: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file content: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("download exceeds %d bytes", maxBytes)
	}
	return data, nil
}
