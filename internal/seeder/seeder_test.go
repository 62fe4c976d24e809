package seeder

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cocosjn/warcvec/internal/domain"
	"github.com/cocosjn/warcvec/internal/logger"
)

type fakePublisher struct {
	queue string
	jobs  []domain.WarcJob
	err   error
}

func (p *fakePublisher) PublishJSON(_ context.Context, queue string, v any) error {
	if p.err != nil {
		return p.err
	}
	p.queue = queue
	p.jobs = append(p.jobs, v.(domain.WarcJob))
	return nil
}

func testSeeder(pub Publisher) *Seeder {
	log := logger.NewWithWriter(io.Discard, "seeder", "test-host", "error")
	return New(pub, "downloads", log)
}

func TestSeedPublishesEachLine(t *testing.T) {
	pub := &fakePublisher{}
	s := testSeeder(pub)

	input := "crawl-data/seg-1/warc/a.warc.gz\ncrawl-data/seg-1/warc/b.warc.gz\n"
	count, err := s.Seed(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 2, count)
	assert.Equal(t, "downloads", pub.queue)
	require.Len(t, pub.jobs, 2)
	assert.Equal(t, "crawl-data/seg-1/warc/a.warc.gz", pub.jobs[0].WarcURL)
}

func TestSeedSkipsBlankLines(t *testing.T) {
	pub := &fakePublisher{}
	s := testSeeder(pub)

	input := "\n  \na.warc.gz\n\n\tb.warc.gz  \n\n"
	count, err := s.Seed(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 2, count)
	assert.Equal(t, "a.warc.gz", pub.jobs[0].WarcURL)
	assert.Equal(t, "b.warc.gz", pub.jobs[1].WarcURL)
}

func TestSeedPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker gone")}
	s := testSeeder(pub)

	count, err := s.Seed(context.Background(), strings.NewReader("a.warc.gz\n"))
	require.Error(t, err)
	assert.Equal(t, 0, count)
	assert.Contains(t, err.Error(), "a.warc.gz")
}

func TestSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.txt")
	require.NoError(t, os.WriteFile(path, []byte("a.warc.gz\nb.warc.gz\n"), 0o644))

	pub := &fakePublisher{}
	count, err := testSeeder(pub).SeedFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSeedFileMissing(t *testing.T) {
	pub := &fakePublisher{}
	_, err := testSeeder(pub).SeedFile(context.Background(), "/does/not/exist.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSeedUnreadable)
}
