// Package namespace holds DCFS's in-memory projection of one guild's
// channels and their attachment messages onto a two-level directory
// tree (spec.md §3). Nothing here is persisted: every authoritative fact
// is re-derived from the backend at mount time and mutated in place
// while mounted (spec.md §1).
package namespace

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/inconshreveable/log15"

	"a4.io/dcfs/internal/codec"
	"a4.io/dcfs/internal/discord"
	"a4.io/dcfs/internal/logging"
)

// Namespace is the process-wide mutable structure the dispatcher owns
// and releases at unmount (spec.md §5 "the namespace is the only
// process-wide mutable structure").
type Namespace struct {
	mu sync.RWMutex

	GuildID  string
	RootTime time.Time
	dirs     map[string]*Dir

	client *discord.Client
	log    log.Logger
}

// New constructs an empty Namespace bound to client and guildID. Call
// Prime to populate it from the backend's channel listing.
func New(client *discord.Client, guildID string) *Namespace {
	rootTime, _ := discord.Timestamp(guildID)
	return &Namespace{
		GuildID:  guildID,
		RootTime: rootTime,
		dirs:     map[string]*Dir{},
		client:   client,
		log:      logging.New("namespace"),
	}
}

// Prime loads every channel in the guild and installs the listable ones
// as directory entries (spec.md §3 "Namespace entries are created at
// mount time from the channel listing").
func (ns *Namespace) Prime(ctx context.Context) error {
	channels, err := ns.client.ListChannels(ctx, ns.GuildID)
	if err != nil {
		return fmt.Errorf("namespace: prime: %w", err)
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()
	uid, gid := uint32(os.Getuid()), uint32(os.Getgid())
	for _, ch := range channels {
		d := NewDir(ch, uid, gid)
		if d.Listable() {
			ns.dirs[ch.Name] = d
		}
		// Non-listable channels are not kept: the namespace holds only
		// listable directories, indexed by name, and has no lookup by
		// snowflake.
	}
	ns.log.Info("primed namespace", "channels", len(channels), "directories", len(ns.dirs))
	return nil
}

// Dir returns the named directory entry, if any.
func (ns *Namespace) Dir(name string) (*Dir, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	d, ok := ns.dirs[name]
	return d, ok
}

// Dirs returns every directory entry, for root readdir.
func (ns *Namespace) Dirs() []*Dir {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	out := make([]*Dir, 0, len(ns.dirs))
	for _, d := range ns.dirs {
		out = append(out, d)
	}
	return out
}

// PutDir installs a freshly created directory entry (spec.md §4.7
// mkdir()).
func (ns *Namespace) PutDir(d *Dir) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.dirs[d.Channel.Name] = d
}

// RemoveDir deletes a directory entry by name (spec.md §4.7 rmdir()).
func (ns *Namespace) RemoveDir(name string) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	delete(ns.dirs, name)
}

// RenameDir moves a directory entry from oldName to the channel's
// already-updated name (spec.md §4.7 rename() case 1).
func (ns *Namespace) RenameDir(oldName string, d *Dir) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	delete(ns.dirs, oldName)
	ns.dirs[d.Channel.Name] = d
}

// EnsureLoaded performs the lazy per-directory message listing the first
// time d is resolved by getattr or readdir (spec.md §3 "Lifecycles"),
// classifying messages into head/part files with a two-pass scan so the
// iteration and its mutation target stay disjoint (spec.md §9 "Mutation
// during iteration", grounded on original_source/src/fs.c's
// dcfs_get_files: one pass builds head files, a second attaches parts).
func (ns *Namespace) EnsureLoaded(ctx context.Context, d *Dir) error {
	if d.Loaded() {
		return nil
	}

	messages, err := ns.client.ListMessages(ctx, d.Channel.ID)
	if err != nil {
		return fmt.Errorf("namespace: load channel %s: %w", d.Channel.ID, err)
	}

	files := classifyMessages(messages, d.UID, d.GID)
	d.SetFiles(files)
	return nil
}

// classifyMessages performs the two-pass head/part scan: pass one builds
// one *File per message whose decoded filename carries no ".PARTk"
// suffix; pass two attaches every suffixed message to its head's part
// slot.
func classifyMessages(messages []discord.Message, uid, gid uint32) map[string]*File {
	files := map[string]*File{}

	for _, msg := range messages {
		for _, att := range msg.Attachments {
			decoded, err := codec.Decode(att.Filename)
			if err != nil {
				continue
			}
			if _, _, ok := SplitPartSuffix(decoded); ok {
				continue
			}
			ts, _ := discord.Timestamp(msg.ID)
			files[decoded] = &File{
				Name:      decoded,
				Mode:      0644,
				UID:       uid,
				GID:       gid,
				CreatedAt: ts,
				Parts: []Part{{
					Snowflake:   msg.ID,
					EncodedName: att.Filename,
					DecodedName: decoded,
					Size:        att.Size,
					URL:         att.URL,
				}},
			}
		}
	}

	for _, msg := range messages {
		for _, att := range msg.Attachments {
			decoded, err := codec.Decode(att.Filename)
			if err != nil {
				continue
			}
			head, k, ok := SplitPartSuffix(decoded)
			if !ok || k >= MaxParts {
				continue
			}
			f, ok := files[head]
			if !ok {
				continue
			}
			for len(f.Parts) <= k {
				f.Parts = append(f.Parts, Part{})
			}
			f.Parts[k] = Part{
				Snowflake:   msg.ID,
				EncodedName: att.Filename,
				DecodedName: decoded,
				Size:        att.Size,
				URL:         att.URL,
			}
		}
	}

	return files
}
