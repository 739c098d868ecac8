// Package dcfsfs adapts DCFS's namespace, upload and download components
// to the kernel userspace-filesystem protocol via bazil.org/fuse
// (spec.md §4.7), the same FS/Dir/File shape
// cih-y2k-blobstash/pkg/filetree/fs/ngfs/ngfs.go uses against a
// different backend.
package dcfsfs

import (
	"context"
	"os"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	log "github.com/inconshreveable/log15"

	"a4.io/dcfs/internal/discord"
	"a4.io/dcfs/internal/download"
	"a4.io/dcfs/internal/logging"
	"a4.io/dcfs/internal/metrics"
	"a4.io/dcfs/internal/namespace"
	"a4.io/dcfs/internal/upload"
)

// FS is the root of the mounted filesystem and the shared handle to
// every component the dispatcher delegates to.
type FS struct {
	ns         *namespace.Namespace
	client     *discord.Client
	uploader   *upload.Pipeline
	downloader *download.Pipeline
	log        log.Logger
	metrics    metrics.Recorder

	root *Root
}

// New constructs the dispatcher's root FS value. ns must already be
// primed (namespace.Namespace.Prime) before Serve is called. rec may be
// nil to disable metrics collection (SPEC_FULL.md §10).
func New(ns *namespace.Namespace, client *discord.Client, partSize int64, rec metrics.Recorder) *FS {
	f := &FS{
		ns:         ns,
		client:     client,
		uploader:   upload.New(client, partSize, rec),
		downloader: download.New(client, rec),
		log:        logging.New("dcfsfs"),
		metrics:    rec,
	}
	f.root = &Root{fs: f}
	metrics.SetMountedChannels(rec, len(ns.Dirs()))
	return f
}

// Root implements the fs.FS interface: the kernel always resolves "/"
// through this one entry point.
func (f *FS) Root() (fs.Node, error) {
	return f.root, nil
}

var _ fs.FS = (*FS)(nil)

// GuildID and MountedChannels implement healthserver.StatusProvider.
func (f *FS) GuildID() string { return f.ns.GuildID }

func (f *FS) MountedChannels() int { return len(f.ns.Dirs()) }

// Root is the filesystem root: the guild itself, whose children are
// listable channel directories (spec.md §3 "Namespace", §4.7 readdir()
// on "/").
type Root struct {
	fs *FS
}

var _ fs.Node = (*Root)(nil)
var _ fs.NodeMkdirer = (*Root)(nil)
var _ fs.NodeRemover = (*Root)(nil)
var _ fs.NodeStringLookuper = (*Root)(nil)
var _ fs.HandleReadDirAller = (*Root)(nil)
var _ fs.NodeRenamer = (*Root)(nil)

// Attr implements fs.Node (spec.md §4.7 getattr(), root case).
func (r *Root) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Inode = 1
	a.Mode = os.ModeDir | 0755
	a.Uid = uint32(os.Getuid())
	a.Gid = uint32(os.Getgid())
	a.Mtime = r.fs.ns.RootTime
	a.Ctime = r.fs.ns.RootTime
	a.Valid = 0 * time.Second
	return nil
}

// Lookup implements fs.NodeStringLookuper for a depth-1 path.
func (r *Root) Lookup(ctx context.Context, name string) (fs.Node, error) {
	d, ok := r.fs.ns.Dir(name)
	if !ok {
		return nil, errNoEntry
	}
	return &ChannelDir{fs: r.fs, dir: d}, nil
}

// ReadDirAll implements fs.HandleReadDirAller for "/" (spec.md §4.7
// readdir(), root case: "emit names of every visible channel directory").
func (r *Root) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	out := []fuse.Dirent{}
	for _, d := range r.fs.ns.Dirs() {
		out = append(out, fuse.Dirent{Name: d.Channel.Name, Type: fuse.DT_Dir})
	}
	r.fs.log.Debug("op", "readdir", "dir", "/")
	return out, nil
}

// Mkdir implements fs.NodeMkdirer (spec.md §4.7 mkdir()): creates a
// channel and installs a fresh, empty-loaded directory entry.
func (r *Root) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	start := time.Now()
	r.fs.log.Debug("op", "mkdir", "dir", req.Name)
	ch, err := r.fs.client.CreateChannel(ctx, r.fs.ns.GuildID, req.Name)
	if err != nil {
		r.fs.log.Warn("mkdir failed", "dir", req.Name, "err", err)
		metrics.RecordOp(r.fs.metrics, "mkdir", req.Name, time.Since(start), "try-again")
		return nil, errTryAgain
	}
	d := namespace.NewDir(ch, uint32(os.Getuid()), uint32(os.Getgid()))
	d.EnsureEmpty()
	r.fs.ns.PutDir(d)
	metrics.RecordOp(r.fs.metrics, "mkdir", req.Name, time.Since(start), "")
	metrics.SetMountedChannels(r.fs.metrics, len(r.fs.ns.Dirs()))
	return &ChannelDir{fs: r.fs, dir: d}, nil
}

// Remove implements fs.NodeRemover for a depth-1 path (spec.md §4.7
// rmdir()): tears down the channel and everything in it server-side;
// DCFS never requires the directory to be empty first.
func (r *Root) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	if !req.Dir {
		return errNotPermitted
	}
	start := time.Now()
	r.fs.log.Debug("op", "rmdir", "dir", req.Name)
	d, ok := r.fs.ns.Dir(req.Name)
	if !ok {
		return errNoEntry
	}
	if err := r.fs.client.DeleteChannel(ctx, d.Channel.ID); err != nil {
		r.fs.log.Warn("rmdir failed", "dir", req.Name, "err", err)
		metrics.RecordOp(r.fs.metrics, "rmdir", req.Name, time.Since(start), "try-again")
		return errTryAgain
	}
	r.fs.ns.RemoveDir(req.Name)
	metrics.RecordOp(r.fs.metrics, "rmdir", req.Name, time.Since(start), "")
	metrics.SetMountedChannels(r.fs.metrics, len(r.fs.ns.Dirs()))
	return nil
}

// Rename implements fs.NodeRenamer for the dir->dir case (spec.md §4.7
// rename() case 1: both depth-1). bazil.org/fuse's RenameRequest carries
// no rename(2) flags field (it speaks the classic FUSE RENAME op, not
// RENAME2) so spec.md §4.7's "if flags is non-zero, fail with invalid"
// has nothing to check here; every request this layer receives is
// flags-less by construction.
func (r *Root) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	if _, ok := newDir.(*Root); !ok {
		// The only other directory a depth-1 entry could move "into" is
		// another channel directory, which spec.md §4.7 does not define;
		// treat it as the catch-all "any other shape" case.
		return errNotSupported
	}
	start := time.Now()
	d, ok := r.fs.ns.Dir(req.OldName)
	if !ok {
		return errNoEntry
	}
	if err := r.fs.client.RenameChannel(ctx, d.Channel.ID, req.NewName); err != nil {
		r.fs.log.Warn("rename failed", "dir", req.OldName, "err", err)
		metrics.RecordOp(r.fs.metrics, "rename", req.OldName, time.Since(start), "try-again")
		return errTryAgain
	}
	d.Channel.Name = req.NewName
	r.fs.ns.RenameDir(req.OldName, d)
	metrics.RecordOp(r.fs.metrics, "rename", req.OldName, time.Since(start), "")
	return nil
}
