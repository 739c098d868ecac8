package namespace

import (
	"os"
	"sync"
	"time"

	"a4.io/dcfs/internal/discord"
)

// Dir is a channel surfaced as a depth-1 directory (spec.md §3 "Directory
// entry"). Its file collection is loaded lazily, the same shape
// cih-y2k-blobstash's ngfs.go dir type uses for its children index, and
// guarded by an embedded lock exactly where that type embeds one
// (ngfs.go:300).
type Dir struct {
	mu sync.RWMutex

	Channel   discord.Channel
	Mode      os.FileMode
	UID, GID  uint32
	CreatedAt time.Time

	loaded bool
	files  map[string]*File
}

// NewDir wraps a channel record as a not-yet-loaded directory entry.
func NewDir(ch discord.Channel, uid, gid uint32) *Dir {
	ts, _ := discord.Timestamp(ch.ID)
	return &Dir{
		Channel:   ch,
		Mode:      os.ModeDir | 0755,
		UID:       uid,
		GID:       gid,
		CreatedAt: ts,
	}
}

// Listable reports whether the channel is surfaced as a directory at all
// (spec.md §3 invariant 6): guild-text type, no parent.
func (d *Dir) Listable() bool {
	return d.Channel.Type == discord.GuildText && !d.Channel.HasParent()
}

// Loaded reports whether the file collection has been populated at least
// once (spec.md §3 "populated lazily on first listing or first getattr").
func (d *Dir) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

// SetFiles installs the directory's file collection after a (lazy) load
// and marks it loaded. It takes the write lock itself, so the caller
// that just finished the backend round trip must not hold it.
func (d *Dir) SetFiles(files map[string]*File) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded = true
	d.files = files
}

// EnsureEmpty marks the directory loaded with an empty (non-nil) file
// collection - mkdir's postcondition (spec.md §4.7 mkdir()).
func (d *Dir) EnsureEmpty() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded = true
	d.files = map[string]*File{}
}

// File looks up a file entry by decoded name under a shared lock.
func (d *Dir) File(name string) (*File, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.files[name]
	return f, ok
}

// Files returns every head file entry (part index 0), for readdir
// (spec.md §4.7 readdir(), §8 property 5 "part hiding").
func (d *Dir) Files() []*File {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*File, 0, len(d.files))
	for _, f := range d.files {
		out = append(out, f)
	}
	return out
}

// PutFile inserts or replaces a file entry under the write lock.
func (d *Dir) PutFile(f *File) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.files == nil {
		d.files = map[string]*File{}
	}
	d.files[f.Name] = f
}

// RemoveFile deletes a file entry by name under the write lock.
func (d *Dir) RemoveFile(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.files, name)
}

// PutFileLocked and RemoveFileLocked are the lock-free twins of PutFile
// and RemoveFile: they assume the caller already holds the write lock
// (via Lock) across a multi-step operation - e.g. the upload pipeline
// reading a file's content buffer, calling the backend, and then
// installing or discarding the entry based on the result, all under one
// held lock. Calling these without already holding the write lock races.
func (d *Dir) PutFileLocked(f *File) {
	if d.files == nil {
		d.files = map[string]*File{}
	}
	d.files[f.Name] = f
}

func (d *Dir) RemoveFileLocked(name string) {
	delete(d.files, name)
}

// Lock/Unlock/RLock/RUnlock expose the directory's lock directly to
// callers (the dispatcher and the upload/download pipelines) that must
// hold it across a multi-step mutation, per spec.md §5's "per-directory
// lock during any mutation of that directory's file collection or during
// any operation that rewrites a file entry's parts or content buffer".
// The lock is not reentrant: a goroutine that already holds it must use
// the *Locked variants above instead of calling back into a self-locking
// method such as RemoveFile or PutFile.
func (d *Dir) Lock()    { d.mu.Lock() }
func (d *Dir) Unlock()  { d.mu.Unlock() }
func (d *Dir) RLock()   { d.mu.RLock() }
func (d *Dir) RUnlock() { d.mu.RUnlock() }
