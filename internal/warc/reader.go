package warc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	gowarc "github.com/internetarchive/gowarc"
	"golang.org/x/sync/errgroup"

	"github.com/cocosjn/warcvec/internal/domain"
	"github.com/cocosjn/warcvec/internal/logger"
)

// rawPage is one response record lifted off the archive before the CPU-bound
// extraction chain runs on it.
type rawPage struct {
	uri  string
	html string
}

// maxRecordBytes caps how much of a single response body is read. Pages past
// this size are truncated, not skipped; the extractor works on what it gets.
const maxRecordBytes = 4 << 20

// ExtractPages iterates every response record of a (gzipped) WARC file and
// returns the French PageRecords it contains. Record parsing fans out over a
// worker pool of the given size; emission order is not guaranteed. Per-record
// failures are logged and skipped, only file-level failures are returned.
func ExtractPages(ctx context.Context, path string, workers int, log *logger.Logger) ([]domain.PageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	reader, err := gowarc.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("reading WARC %s: %w", path, err)
	}

	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan rawPage, workers*2)

	var mu sync.Mutex
	var pages []domain.PageRecord

	g, gctx := errgroup.WithContext(ctx)

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case raw, ok := <-jobs:
					if !ok {
						return nil
					}
					page, ok := PageFromHTML(raw.uri, raw.html)
					if !ok {
						continue
					}
					mu.Lock()
					pages = append(pages, page)
					mu.Unlock()
				}
			}
		})
	}

	// The reader goroutine is the only one touching the file; gowarc readers
	// are not safe for concurrent use.
	g.Go(func() error {
		defer close(jobs)

		for {
			record, eol, err := reader.ReadRecord()
			if eol {
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading record from %s: %w", path, err)
			}

			raw, ok := responseRecord(record, log)
			if !ok {
				continue
			}

			select {
			case <-gctx.Done():
				return gctx.Err()
			case jobs <- raw:
			}
		}
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return pages, nil
}

// responseRecord pulls the target URI and HTML body out of a WARC record,
// returning false for anything that is not an HTTP response we can parse.
func responseRecord(record *gowarc.Record, log *logger.Logger) (rawPage, bool) {
	if record.Header.Get("WARC-Type") != "response" {
		return rawPage{}, false
	}

	uri := record.Header.Get("WARC-Target-URI")
	if uri == "" {
		return rawPage{}, false
	}

	// Record content is the raw HTTP response, headers included.
	resp, err := http.ReadResponse(bufio.NewReader(record.Content), nil)
	if err != nil {
		log.Debug("Skipping record %s: %v", uri, err)
		return rawPage{}, false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordBytes))
	if err != nil {
		log.Debug("Skipping record %s: %v", uri, err)
		return rawPage{}, false
	}

	// Decode as UTF-8 with replacement; crawls carry every encoding there is.
	html := strings.ToValidUTF8(string(body), "�")
	if html == "" {
		return rawPage{}, false
	}

	return rawPage{uri: uri, html: html}, true
}
