// Package download implements the read-side reassembly of a logical
// file from its ordered backend message parts (spec.md §4.6).
package download

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/inconshreveable/log15"
	"golang.org/x/sync/errgroup"

	"a4.io/dcfs/internal/discord"
	"a4.io/dcfs/internal/logging"
	"a4.io/dcfs/internal/metrics"
	"a4.io/dcfs/internal/namespace"
)

// ErrIO is returned when any part fetch fails; the partially filled
// buffer is discarded (spec.md §4.6 "Errors").
var ErrIO = errors.New("download: part fetch failed")

// maxConcurrentFetches bounds the part-fetch worker pool, the same
// small-pool shape restic-restic's repository code uses around
// errgroup for concurrent pack/chunk downloads.
const maxConcurrentFetches = 8

// Pipeline fetches a resident file's parts and reassembles its content
// buffer.
type Pipeline struct {
	client  *discord.Client
	log     log.Logger
	metrics metrics.Recorder
}

// New constructs a download Pipeline. rec may be nil to disable metrics
// collection.
func New(client *discord.Client, rec metrics.Recorder) *Pipeline {
	return &Pipeline{client: client, log: logging.New("download"), metrics: rec}
}

// Run fetches every part of f in slot order and concatenates them into
// f.Content. Run takes dir's write lock itself for its entire duration
// (spec.md §5); callers must not hold it already, since it is not
// reentrant. Run must only be called when f.Content is empty (spec.md
// §4.6 "on first read of a file whose content buffer is empty").
//
// Parts are fetched concurrently - bounded by a small worker pool via
// golang.org/x/sync/errgroup - but installed into the content buffer
// strictly in slot order, so concurrency never changes the observable
// result (spec.md §5, SPEC_FULL.md §4.6).
func (p *Pipeline) Run(ctx context.Context, dir *namespace.Dir, f *namespace.File) error {
	dir.Lock()
	defer dir.Unlock()

	if !f.IsResident() {
		return fmt.Errorf("download: file %q has no parts to fetch", f.Name)
	}

	start := time.Now()
	buffers := make([][]byte, len(f.Parts))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, maxConcurrentFetches)

	for i, part := range f.Parts {
		i, part := i, part
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			data, err := p.client.FetchURL(gctx, part.URL)
			if err != nil {
				return fmt.Errorf("%w: part %d of %q: %v", ErrIO, i, f.Name, err)
			}
			buffers[i] = data
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		metrics.RecordTransfer(p.metrics, "download", len(f.Parts), 0, time.Since(start), false)
		return err
	}

	total := 0
	for _, b := range buffers {
		total += len(b)
	}
	content := make([]byte, 0, total)
	for _, b := range buffers {
		content = append(content, b...)
	}

	f.Content = content
	p.log.Debug("downloaded file", "file", f.Name, "size", humanize.Bytes(uint64(total)), "parts", len(f.Parts))
	metrics.RecordTransfer(p.metrics, "download", len(f.Parts), int64(total), time.Since(start), true)
	return nil
}
