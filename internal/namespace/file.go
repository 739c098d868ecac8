package namespace

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"
)

// MaxParts is the hard cap on the number of message parts a single file
// entry may hold (spec.md §4.5, build-time constant MAX_PARTS).
const MaxParts = 256

// partSuffix matches "<head>.PART<k>" on a decoded filename, the same
// pattern original_source/src/fs.c compiles once as part_regex.
var partSuffix = regexp.MustCompile(`^(.+)\.PART([0-9]+)$`)

// PartSuffixName returns the decoded filename used for part k of head,
// k=0 is the head's own name unsuffixed (spec.md §3 invariant 4).
func PartSuffixName(head string, k int) string {
	if k == 0 {
		return head
	}
	return fmt.Sprintf("%s.PART%d", head, k)
}

// SplitPartSuffix reports whether name carries a ".PARTk" suffix, and if
// so the head name it belongs to and the part index k.
func SplitPartSuffix(name string) (head string, k int, ok bool) {
	m := partSuffix.FindStringSubmatch(name)
	if m == nil {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], n, true
}

// Part is one message-backed slice of a logical file (spec.md §3 "Message
// part").
type Part struct {
	Snowflake   string
	EncodedName string
	DecodedName string
	Size        int64
	URL         string
}

// File is one logical filesystem entry: a decoded name, an ordered,
// dense 0..N-1 array of message parts, and - while pending or just
// downloaded - an in-memory content buffer (spec.md §3 "File entry").
type File struct {
	Name      string
	Mode      os.FileMode
	UID, GID  uint32
	CreatedAt time.Time

	Parts   []Part
	Content []byte
}

// NewPendingFile builds the empty file entry create(2) installs: no
// parts, an empty (but non-nil) content buffer, no network I/O (spec.md
// §4.7 create()).
func NewPendingFile(name string, mode os.FileMode, uid, gid uint32) *File {
	return &File{
		Name:      name,
		Mode:      mode,
		UID:       uid,
		GID:       gid,
		CreatedAt: time.Now(),
		Content:   []byte{},
	}
}

// IsResident reports whether slot 0 is populated (spec.md §3 invariant 2).
func (f *File) IsResident() bool {
	return len(f.Parts) > 0
}

// IsPending reports whether the file has a content buffer and no parts
// yet - the state between create and a successful release (spec.md §3
// invariant 2).
func (f *File) IsPending() bool {
	return !f.IsResident() && f.Content != nil
}

// AggregateSize returns the file's size: the sum of its parts if
// resident, otherwise the length of its content buffer (spec.md §3
// invariant 1).
func (f *File) AggregateSize() int64 {
	if f.IsResident() {
		var total int64
		for _, p := range f.Parts {
			total += p.Size
		}
		return total
	}
	return int64(len(f.Content))
}

// WriteAt grows the content buffer so offset+len(p) fits and copies p in,
// matching spec.md §4.7 write()'s append-or-splice semantics: writes past
// the current aggregate size extend it, never leaving holes beyond what
// growth fills with zero bytes.
func (f *File) WriteAt(p []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("namespace: negative write offset %d", offset)
	}
	end := offset + int64(len(p))
	if end > int64(len(f.Content)) {
		grown := make([]byte, end)
		copy(grown, f.Content)
		f.Content = grown
	}
	copy(f.Content[offset:end], p)
	return len(p), nil
}

// ReadAt copies min(len(p), size-offset) bytes from the resident content
// buffer starting at offset, matching spec.md §4.7 read()'s
// offset-past-end-returns-zero rule.
func (f *File) ReadAt(p []byte, offset int64) int {
	size := int64(len(f.Content))
	if offset < 0 || offset >= size {
		return 0
	}
	n := copy(p, f.Content[offset:])
	return n
}
