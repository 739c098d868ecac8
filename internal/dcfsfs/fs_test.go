package dcfsfs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"bazil.org/fuse"

	"a4.io/dcfs/internal/discord"
	"a4.io/dcfs/internal/namespace"
)

// fakeBackend is a minimal in-memory stand-in for the chat service,
// enough to drive the dispatcher through full mkdir/create/write/release
// and rmdir/unlink/rename lifecycles without a real network.
type fakeBackend struct {
	mu       sync.Mutex
	nextID   int
	channels map[string]*discord.Channel
	messages map[string][]discord.Message // channel id -> messages
	deleted  map[string]bool              // channel id -> deleted
	blobs    map[string][]byte            // attachment key -> uploaded bytes
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		channels: map[string]*discord.Channel{},
		messages: map[string][]discord.Message{},
		deleted:  map[string]bool{},
		blobs:    map[string][]byte{},
	}
}

func (b *fakeBackend) id() string {
	b.nextID++
	return fmt.Sprintf("%d", 1000+b.nextID)
}

func (b *fakeBackend) server(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/channels") && strings.HasPrefix(r.URL.Path, "/guilds/"):
			var out []discord.Channel
			for _, ch := range b.channels {
				out = append(out, *ch)
			}
			json.NewEncoder(w).Encode(out)

		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/channels") && strings.HasPrefix(r.URL.Path, "/guilds/"):
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			id := b.id()
			ch := &discord.Channel{ID: id, Name: body["name"].(string), Type: discord.GuildText}
			b.channels[id] = ch
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(ch)

		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/channels/") && !strings.Contains(r.URL.Path, "/messages"):
			id := strings.TrimPrefix(r.URL.Path, "/channels/")
			if _, ok := b.channels[id]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(b.channels, id)
			b.deleted[id] = true
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/channels/"):
			id := strings.TrimPrefix(r.URL.Path, "/channels/")
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if ch, ok := b.channels[id]; ok {
				ch.Name = body["name"]
			}
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/messages"):
			id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/channels/"), "/messages")
			json.NewEncoder(w).Encode(b.messages[id])

		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/messages"):
			id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/channels/"), "/messages")
			if err := r.ParseMultipartForm(64 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			var atts []discord.Attachment
			for _, headers := range r.MultipartForm.File {
				for _, h := range headers {
					f, _ := h.Open()
					buf := make([]byte, h.Size)
					n, _ := f.Read(buf)
					f.Close()
					key := b.id()
					b.blobs[key] = buf[:n]
					atts = append(atts, discord.Attachment{Filename: h.Filename, Size: int64(n), URL: "http://" + r.Host + "/cdn/" + key})
				}
			}
			msg := discord.Message{ID: b.id(), Attachments: atts}
			b.messages[id] = append(b.messages[id], msg)
			json.NewEncoder(w).Encode(msg)

		case r.Method == http.MethodDelete && strings.Contains(r.URL.Path, "/messages/"):
			w.WriteHeader(http.StatusNoContent)

		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/cdn/"):
			w.Write(b.blobs[strings.TrimPrefix(r.URL.Path, "/cdn/")])

		default:
			t.Fatalf("fakeBackend: unhandled request %s %s", r.Method, r.URL.Path)
		}
	}))
}

func newTestFS(t *testing.T) (*FS, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	srv := backend.server(t)
	t.Cleanup(srv.Close)

	client := discord.New("tok", srv.Client())
	client.SetBaseURL(srv.URL)

	ns := namespace.New(client, "1")
	if err := ns.Prime(context.Background()); err != nil {
		t.Fatal(err)
	}
	return New(ns, client, 1024, nil), backend
}

func TestS1EmptyFileLifecycle(t *testing.T) {
	f, _ := newTestFS(t)
	ctx := context.Background()
	root := f.root

	dirNode, err := root.Mkdir(ctx, &fuse.MkdirRequest{Name: "alpha"})
	if err != nil {
		t.Fatal(err)
	}
	cd := dirNode.(*ChannelDir)

	entries, err := root.ReadDirAll(ctx)
	if err != nil || len(entries) != 1 || entries[0].Name != "alpha" {
		t.Fatalf("ReadDirAll(/) = %v, %v", entries, err)
	}

	node, handle, err := cd.Create(ctx, &fuse.CreateRequest{Name: "x"}, &fuse.CreateResponse{})
	if err != nil {
		t.Fatal(err)
	}
	fileNode := node.(*FileNode)
	if handle != node {
		t.Fatal("expected FileNode to double as its own handle")
	}

	if err := fileNode.Release(ctx, &fuse.ReleaseRequest{}); err != nil {
		t.Fatal(err)
	}

	dentries, err := cd.ReadDirAll(ctx)
	if err != nil || len(dentries) != 1 || dentries[0].Name != "x" {
		t.Fatalf("ReadDirAll(/alpha) = %v, %v", dentries, err)
	}

	var attr fuse.Attr
	if err := fileNode.Attr(ctx, &attr); err != nil {
		t.Fatal(err)
	}
	if attr.Size != 0 {
		t.Fatalf("Attr.Size = %d, want 0", attr.Size)
	}
	if len(fileNode.file.Parts) != 1 || fileNode.file.Parts[0].Size != 0 {
		t.Fatalf("expected one zero-size head part, got %+v", fileNode.file.Parts)
	}
}

func TestS5RmdirCascade(t *testing.T) {
	f, backend := newTestFS(t)
	ctx := context.Background()
	root := f.root

	dirNode, err := root.Mkdir(ctx, &fuse.MkdirRequest{Name: "gone"})
	if err != nil {
		t.Fatal(err)
	}
	cd := dirNode.(*ChannelDir)
	node, _, err := cd.Create(ctx, &fuse.CreateRequest{Name: "a"}, &fuse.CreateResponse{})
	if err != nil {
		t.Fatal(err)
	}
	if err := node.(*FileNode).Release(ctx, &fuse.ReleaseRequest{}); err != nil {
		t.Fatal(err)
	}

	if err := root.Remove(ctx, &fuse.RemoveRequest{Name: "gone", Dir: true}); err != nil {
		t.Fatal(err)
	}

	entries, err := root.ReadDirAll(ctx)
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected empty root after rmdir, got %v, %v", entries, err)
	}
	if !backend.deleted[cd.dir.Channel.ID] {
		t.Fatal("expected delete-channel to have been called")
	}
}

func TestRenameSameDirectoryRefused(t *testing.T) {
	f, _ := newTestFS(t)
	ctx := context.Background()
	dirNode, _ := f.root.Mkdir(ctx, &fuse.MkdirRequest{Name: "alpha"})
	cd := dirNode.(*ChannelDir)
	node, _, _ := cd.Create(ctx, &fuse.CreateRequest{Name: "a"}, &fuse.CreateResponse{})
	node.(*FileNode).Release(ctx, &fuse.ReleaseRequest{})

	err := cd.Rename(ctx, &fuse.RenameRequest{OldName: "a", NewName: "b"}, cd)
	if err != errNotImplemented {
		t.Fatalf("expected errNotImplemented, got %v", err)
	}
}

func TestRenameCrossDirectoryCopiesAndUploads(t *testing.T) {
	f, _ := newTestFS(t)
	ctx := context.Background()

	srcNode, _ := f.root.Mkdir(ctx, &fuse.MkdirRequest{Name: "src"})
	dstNode, _ := f.root.Mkdir(ctx, &fuse.MkdirRequest{Name: "dst"})
	src := srcNode.(*ChannelDir)
	dst := dstNode.(*ChannelDir)

	node, _, err := src.Create(ctx, &fuse.CreateRequest{Name: "a"}, &fuse.CreateResponse{})
	if err != nil {
		t.Fatal(err)
	}
	fn := node.(*FileNode)
	fn.Write(ctx, &fuse.WriteRequest{Data: []byte("payload")}, &fuse.WriteResponse{})
	if err := fn.Release(ctx, &fuse.ReleaseRequest{}); err != nil {
		t.Fatal(err)
	}

	if err := src.Rename(ctx, &fuse.RenameRequest{OldName: "a", NewName: "b"}, dst); err != nil {
		t.Fatal(err)
	}

	if _, ok := src.dir.File("a"); ok {
		t.Fatal("expected source file entry to be gone")
	}
	moved, ok := dst.dir.File("b")
	if !ok {
		t.Fatal("expected destination file entry to exist")
	}
	if moved.AggregateSize() != int64(len("payload")) {
		t.Fatalf("moved file size = %d, want %d", moved.AggregateSize(), len("payload"))
	}
}
