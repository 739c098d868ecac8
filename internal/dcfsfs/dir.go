package dcfsfs

import (
	"context"
	"os"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"a4.io/dcfs/internal/metrics"
	"a4.io/dcfs/internal/namespace"
)

// ChannelDir is a listable channel surfaced as a depth-1 directory
// (spec.md §4.7, directory operations).
type ChannelDir struct {
	fs  *FS
	dir *namespace.Dir
}

var _ fs.Node = (*ChannelDir)(nil)
var _ fs.NodeStringLookuper = (*ChannelDir)(nil)
var _ fs.HandleReadDirAller = (*ChannelDir)(nil)
var _ fs.NodeCreater = (*ChannelDir)(nil)
var _ fs.NodeRemover = (*ChannelDir)(nil)
var _ fs.NodeRenamer = (*ChannelDir)(nil)

// Attr implements fs.Node (spec.md §4.7 getattr(), directory case):
// triggers the lazy message listing on first resolution.
func (d *ChannelDir) Attr(ctx context.Context, a *fuse.Attr) error {
	if err := d.fs.ns.EnsureLoaded(ctx, d.dir); err != nil {
		d.fs.log.Warn("getattr: load channel failed", "dir", d.dir.Channel.Name, "err", err)
		return errTryAgain
	}
	a.Mode = os.ModeDir | 0755
	a.Uid = d.dir.UID
	a.Gid = d.dir.GID
	a.Mtime = d.dir.CreatedAt
	a.Ctime = d.dir.CreatedAt
	a.Valid = 0 * time.Second
	return nil
}

// Lookup implements fs.NodeStringLookuper for a depth-2 path.
func (d *ChannelDir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	if err := d.fs.ns.EnsureLoaded(ctx, d.dir); err != nil {
		return nil, errTryAgain
	}
	f, ok := d.dir.File(name)
	if !ok {
		return nil, errNoEntry
	}
	return &FileNode{fs: d.fs, dir: d.dir, file: f}, nil
}

// ReadDirAll implements fs.HandleReadDirAller (spec.md §4.7 readdir(),
// directory case: "every file entry's decoded filename whose part index
// is 0"; since File only ever holds head entries, every entry qualifies;
// §8 property 5 "part hiding").
func (d *ChannelDir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	if err := d.fs.ns.EnsureLoaded(ctx, d.dir); err != nil {
		return nil, errTryAgain
	}
	out := []fuse.Dirent{}
	for _, f := range d.dir.Files() {
		out = append(out, fuse.Dirent{Name: f.Name, Type: fuse.DT_File})
	}
	d.fs.log.Debug("op", "readdir", "dir", d.dir.Channel.Name)
	return out, nil
}

// Create implements fs.NodeCreater (spec.md §4.7 create()): inserts a
// pending file entry with no network I/O.
func (d *ChannelDir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	start := time.Now()
	d.fs.log.Debug("op", "create", "dir", d.dir.Channel.Name, "file", req.Name)
	f := namespace.NewPendingFile(req.Name, req.Mode, uint32(req.Uid), uint32(req.Gid))
	d.dir.PutFile(f)
	node := &FileNode{fs: d.fs, dir: d.dir, file: f}
	metrics.RecordOp(d.fs.metrics, "create", d.dir.Channel.Name, time.Since(start), "")
	return node, node, nil
}

// Remove implements fs.NodeRemover for a depth-2 path (spec.md §4.7
// unlink()): deletes every distinct backend message the file's parts
// reference, de-duplicating consecutive parts that share a message id
// (original_source/src/dcfs.c:delete_file), then removes the entry.
func (d *ChannelDir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	if req.Dir {
		return errNotPermitted
	}
	start := time.Now()
	d.fs.log.Debug("op", "unlink", "dir", d.dir.Channel.Name, "file", req.Name)
	f, ok := d.dir.File(req.Name)
	if !ok {
		return errNoEntry
	}

	var lastDeleted string
	var failed bool
	for _, part := range f.Parts {
		if part.Snowflake == lastDeleted {
			continue
		}
		lastDeleted = part.Snowflake
		if err := d.fs.client.DeleteMessage(ctx, d.dir.Channel.ID, part.Snowflake); err != nil {
			d.fs.log.Warn("unlink: delete-message failed", "file", req.Name, "message", part.Snowflake, "err", err)
			failed = true
			continue
		}
	}

	d.dir.RemoveFile(req.Name)
	if failed {
		metrics.RecordOp(d.fs.metrics, "unlink", d.dir.Channel.Name, time.Since(start), "try-again")
		return errTryAgain
	}
	metrics.RecordOp(d.fs.metrics, "unlink", d.dir.Channel.Name, time.Since(start), "")
	return nil
}

// Rename implements fs.NodeRenamer for the file cases (spec.md §4.7
// rename() cases 2-4).
func (d *ChannelDir) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	destDir, ok := newDir.(*ChannelDir)
	if !ok {
		return errNotSupported
	}

	if err := d.fs.ns.EnsureLoaded(ctx, d.dir); err != nil {
		return errTryAgain
	}
	f, ok := d.dir.File(req.OldName)
	if !ok {
		return errNoEntry
	}

	if destDir == d {
		// Case 2: same directory - backend attachment filenames are
		// immutable post-upload (spec.md §9 Open Questions keeps the
		// source's refusal).
		return errNotImplemented
	}

	// Case 3: different directory - copy semantics: ensure downloaded,
	// clone into a pending entry in the target, unlink the source, then
	// upload the target. downloader.Run and uploader.Run each take the
	// relevant directory's write lock for their own duration, so none of
	// this call site holds either dir's lock itself.
	if !f.IsResident() {
		return errNotPermitted
	}
	if len(f.Content) == 0 {
		if err := d.fs.downloader.Run(ctx, d.dir, f); err != nil {
			d.fs.log.Warn("rename: download before copy failed", "file", req.OldName, "err", err)
			return errIO
		}
	}

	clone := namespace.NewPendingFile(req.NewName, f.Mode, f.UID, f.GID)
	clone.Content = append([]byte(nil), f.Content...)
	destDir.dir.PutFile(clone)

	if err := d.Remove(ctx, &fuse.RemoveRequest{Name: req.OldName}); err != nil {
		return errTryAgain
	}

	if err := d.fs.uploader.Run(ctx, destDir.dir, clone); err != nil {
		d.fs.log.Warn("rename: upload of copy failed", "file", req.NewName, "err", err)
		return toFuseErr(err)
	}
	return nil
}
