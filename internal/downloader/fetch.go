package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// chunkSize is the streaming copy buffer for WARC downloads.
const chunkSize = 8192

var httpClient = &http.Client{
	// WARC files run to a gigabyte; no overall timeout, the transport's
	// connect timeout and the request context bound us instead.
	Transport: &http.Transport{
		ResponseHeaderTimeout: 60 * time.Second,
		IdleConnTimeout:       90 * time.Second,
	},
}

// fetchWarc streams the archive URL into localFile in 8 KiB chunks. Anything
// but a 200 is a download failure; a partially written file is removed so a
// requeued job starts clean.
func fetchWarc(ctx context.Context, url, localFile string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", url, err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	f, err := os.Create(localFile)
	if err != nil {
		return fmt.Errorf("creating %s: %w", localFile, err)
	}

	buf := make([]byte, chunkSize)
	_, err = io.CopyBuffer(f, resp.Body, buf)
	closeErr := f.Close()

	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(localFile)
		return fmt.Errorf("writing %s: %w", localFile, err)
	}

	return nil
}
