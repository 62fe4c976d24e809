package seeder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cocosjn/warcvec/internal/domain"
	"github.com/cocosjn/warcvec/internal/logger"
)

// Publisher is the slice of the broker connection the seeder needs.
type Publisher interface {
	PublishJSON(ctx context.Context, queue string, v any) error
}

// Seeder turns a seed file of WARC paths into one durable WarcJob per line
// on the download queue. Re-running it re-publishes the same jobs; the
// pipeline is at-least-once end to end, so duplicates are tolerated
// downstream.
type Seeder struct {
	pub   Publisher
	queue string
	log   *logger.Logger
}

func New(pub Publisher, queue string, log *logger.Logger) *Seeder {
	return &Seeder{pub: pub, queue: queue, log: log}
}

// SeedFile reads the seed file and publishes every non-empty line.
func (s *Seeder) SeedFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrSeedUnreadable, err)
	}
	defer f.Close()

	return s.Seed(ctx, f)
}

// Seed publishes one WarcJob per non-empty line of r and returns the number
// of jobs published.
func (s *Seeder) Seed(ctx context.Context, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	count := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		job := domain.WarcJob{WarcURL: line}
		if err := s.pub.PublishJSON(ctx, s.queue, job); err != nil {
			return count, fmt.Errorf("publishing job for %s: %w", line, err)
		}

		s.log.Info("Queued WARC path: %s", line)
		count++
	}

	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("%w: %v", domain.ErrSeedUnreadable, err)
	}

	return count, nil
}
