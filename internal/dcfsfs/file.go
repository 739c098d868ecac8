package dcfsfs

import (
	"context"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"a4.io/dcfs/internal/metrics"
	"a4.io/dcfs/internal/namespace"
)

// FileNode is both the fs.Node and the fs.Handle for a file entry: since
// its content always lives in an in-memory buffer (never a temp file on
// disk, unlike cih-y2k-blobstash's rwFileHandle), there is no separate
// handle type to open into.
type FileNode struct {
	fs   *FS
	dir  *namespace.Dir
	file *namespace.File
}

var _ fs.Node = (*FileNode)(nil)
var _ fs.NodeSetattrer = (*FileNode)(nil)
var _ fs.NodeGetxattrer = (*FileNode)(nil)
var _ fs.NodeSetxattrer = (*FileNode)(nil)
var _ fs.HandleReader = (*FileNode)(nil)
var _ fs.HandleWriter = (*FileNode)(nil)
var _ fs.HandleReleaser = (*FileNode)(nil)

// Attr implements fs.Node (spec.md §4.7 getattr(), file case).
func (f *FileNode) Attr(ctx context.Context, a *fuse.Attr) error {
	f.dir.RLock()
	defer f.dir.RUnlock()
	a.Mode = f.file.Mode
	a.Uid = f.file.UID
	a.Gid = f.file.GID
	a.Size = uint64(f.file.AggregateSize())
	a.Mtime = f.file.CreatedAt
	a.Ctime = f.file.CreatedAt
	a.Valid = 0 * time.Second
	return nil
}

// Setattr implements fs.NodeSetattrer (spec.md §4.7 chmod/chown: local
// only, no backend call).
func (f *FileNode) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	f.dir.Lock()
	if req.Valid&fuse.SetattrMode != 0 {
		f.file.Mode = req.Mode
	}
	if req.Valid&fuse.SetattrUid != 0 {
		f.file.UID = req.Uid
	}
	if req.Valid&fuse.SetattrGid != 0 {
		f.file.GID = req.Gid
	}
	f.dir.Unlock()
	return f.Attr(ctx, &resp.Attr)
}

// Getxattr implements fs.NodeGetxattrer: accept and return success with
// no effect (spec.md §4.7 getxattr/setxattr, §1 Non-goals).
func (f *FileNode) Getxattr(ctx context.Context, req *fuse.GetxattrRequest, resp *fuse.GetxattrResponse) error {
	return nil
}

// Setxattr implements fs.NodeSetxattrer: accept and return success with
// no effect.
func (f *FileNode) Setxattr(ctx context.Context, req *fuse.SetxattrRequest) error {
	return nil
}

// Read implements fs.HandleReader (spec.md §4.7 read()): ensures the
// download pipeline has run, then serves from the content buffer.
//
// Run (like uploader.Run in Release) takes f.dir's lock itself, so it is
// never called while this handler already holds it.
func (f *FileNode) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	f.dir.RLock()
	needsDownload := f.file.IsResident() && f.file.Content == nil
	f.dir.RUnlock()

	if needsDownload {
		if err := f.fs.downloader.Run(ctx, f.dir, f.file); err != nil {
			f.fs.log.Warn("read: download failed", "file", f.file.Name, "err", err)
			return errIO
		}
	}

	f.dir.RLock()
	defer f.dir.RUnlock()
	buf := make([]byte, req.Size)
	n := f.file.ReadAt(buf, req.Offset)
	resp.Data = buf[:n]
	metrics.RecordBytes(f.fs.metrics, "read", "in", uint64(n))
	return nil
}

// Write implements fs.HandleWriter (spec.md §4.7 write()).
func (f *FileNode) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	f.dir.Lock()
	defer f.dir.Unlock()

	if int64(req.Offset) > f.file.AggregateSize() {
		resp.Size = 0
		return nil
	}
	n, err := f.file.WriteAt(req.Data, req.Offset)
	if err != nil {
		return errNoBuffers
	}
	resp.Size = n
	metrics.RecordBytes(f.fs.metrics, "write", "out", uint64(n))
	return nil
}

// Release implements fs.HandleReleaser (spec.md §4.7 release()):
// triggers the upload pipeline if the file entry is still pending.
//
// uploader.Run takes f.dir's write lock itself for the whole upload, so
// this handler must not hold it going in - f.dir's mutex is not
// reentrant, and Run's own failure paths mutate dir's file collection
// under that same lock.
func (f *FileNode) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	f.dir.RLock()
	pending := f.file.IsPending()
	f.dir.RUnlock()

	if !pending {
		return nil
	}
	f.fs.log.Debug("op", "release", "dir", f.dir.Channel.Name, "file", f.file.Name)
	if err := f.fs.uploader.Run(ctx, f.dir, f.file); err != nil {
		f.fs.log.Warn("release: upload failed", "file", f.file.Name, "err", err)
		return toFuseErr(err)
	}
	return nil
}
