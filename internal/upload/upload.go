// Package upload implements the write-buffer chunking and multipart
// install algorithm that turns a pending file entry's in-memory content
// buffer into a sequence of backend messages (spec.md §4.5).
package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/inconshreveable/log15"

	"a4.io/dcfs/internal/codec"
	"a4.io/dcfs/internal/discord"
	"a4.io/dcfs/internal/logging"
	"a4.io/dcfs/internal/metrics"
	"a4.io/dcfs/internal/namespace"
)

// DefaultPartSize, BatchSize and MaxParts are the algorithm's build-time
// constants (spec.md §4.5, §6); the part size may be overridden at startup
// (e.g. the cmd/dcfs --part-size flag) for smaller test fixtures.
const (
	DefaultPartSize = 10 * 1024 * 1024
	BatchSize       = 10
	MaxParts        = namespace.MaxParts
)

// ErrTooLarge is returned when the content buffer would need more than
// MaxParts parts (spec.md §4.5 step 1, §7 `too-large`/EFBIG).
var ErrTooLarge = errors.New("upload: file exceeds the maximum part count")

// ErrBatchFailed is returned when a create-attachments call for one
// batch fails; earlier successful batches remain installed on the
// backend as orphaned messages (spec.md §4.5 step 5, §7 `try-again`/EAGAIN).
var ErrBatchFailed = errors.New("upload: a batch failed, file removed")

// Pipeline uploads pending file entries to a channel.
type Pipeline struct {
	client   *discord.Client
	partSize int64
	log      log.Logger
	metrics  metrics.Recorder
}

// New constructs a Pipeline. partSize <= 0 selects DefaultPartSize. rec
// may be nil to disable metrics collection.
func New(client *discord.Client, partSize int64, rec metrics.Recorder) *Pipeline {
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	return &Pipeline{client: client, partSize: partSize, log: logging.New("upload"), metrics: rec}
}

// Run executes the upload algorithm for a pending file entry in dir. Run
// takes dir's write lock itself for its entire duration (spec.md §5):
// callers must not hold it already, since it is not reentrant and Run
// both reads f.Content and mutates dir's file collection on failure.
//
// On success f.Content is cleared and f.Parts holds every installed part
// in slot order. On failure the file entry is removed from dir.
func (p *Pipeline) Run(ctx context.Context, dir *namespace.Dir, f *namespace.File) error {
	dir.Lock()
	defer dir.Unlock()

	start := time.Now()
	size := int64(len(f.Content))
	n := numParts(size, p.partSize)
	if n > MaxParts {
		dir.RemoveFileLocked(f.Name)
		p.log.Warn("upload refused: too many parts", "file", f.Name, "size", humanize.Bytes(uint64(size)), "parts", n)
		metrics.RecordTransfer(p.metrics, "upload", n, size, time.Since(start), false)
		return ErrTooLarge
	}
	if n == 0 {
		n = 1 // spec.md S1: an empty file still uploads one zero-size head part.
	}

	parts := make([]namespace.Part, n)
	installed := 0

	for batchStart := 0; batchStart < n; batchStart += BatchSize {
		batchEnd := batchStart + BatchSize
		if batchEnd > n {
			batchEnd = n
		}

		attachments := make([]discord.AttachmentPart, 0, batchEnd-batchStart)
		for k := batchStart; k < batchEnd; k++ {
			decoded := namespace.PartSuffixName(f.Name, k)
			lo, hi := sliceBounds(k, p.partSize, size)
			attachments = append(attachments, discord.AttachmentPart{
				Name: codec.Encode(decoded),
				Data: f.Content[lo:hi],
			})
		}

		msg, err := p.client.CreateAttachments(ctx, dir.Channel.ID, attachments)
		if err != nil {
			dir.RemoveFileLocked(f.Name)
			f.Content = nil
			p.log.Warn("upload batch failed", "file", f.Name, "batch_start", batchStart,
				"orphaned_messages", installed/BatchSize+boolToInt(installed%BatchSize != 0), "err", err)
			metrics.RecordTransfer(p.metrics, "upload", n, size, time.Since(start), false)
			return fmt.Errorf("%w: %v", ErrBatchFailed, err)
		}

		if err := installBatch(parts, msg, f.Name); err != nil {
			dir.RemoveFileLocked(f.Name)
			f.Content = nil
			metrics.RecordTransfer(p.metrics, "upload", n, size, time.Since(start), false)
			return err
		}
		installed = batchEnd
	}

	f.Parts = parts
	f.Content = nil
	p.log.Info("uploaded file", "file", f.Name, "size", humanize.Bytes(uint64(size)), "parts", n)
	metrics.RecordTransfer(p.metrics, "upload", n, size, time.Since(start), true)
	return nil
}

func numParts(size, partSize int64) int {
	if size == 0 {
		return 0
	}
	n := size / partSize
	if size%partSize != 0 {
		n++
	}
	return int(n)
}

func sliceBounds(k int, partSize, totalSize int64) (lo, hi int64) {
	lo = int64(k) * partSize
	hi = lo + partSize
	if hi > totalSize {
		hi = totalSize
	}
	return lo, hi
}

// installBatch matches each attachment the backend echoed back to its
// part slot by decoding the filename and parsing any ".PARTk" suffix
// (spec.md §4.5 step 4).
func installBatch(parts []namespace.Part, msg discord.Message, head string) error {
	for _, att := range msg.Attachments {
		decoded, err := codec.Decode(att.Filename)
		if err != nil {
			return fmt.Errorf("upload: decode installed attachment name: %w", err)
		}

		k := 0
		if decoded != head {
			_, idx, ok := namespace.SplitPartSuffix(decoded)
			if !ok {
				return fmt.Errorf("upload: installed attachment %q does not match head %q or a part suffix", decoded, head)
			}
			k = idx
		}
		if k < 0 || k >= len(parts) {
			return fmt.Errorf("upload: installed part index %d out of range", k)
		}

		parts[k] = namespace.Part{
			Snowflake:   msg.ID,
			EncodedName: att.Filename,
			DecodedName: decoded,
			Size:        att.Size,
			URL:         att.URL,
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
