package upload

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"a4.io/dcfs/internal/codec"
	"a4.io/dcfs/internal/discord"
	"a4.io/dcfs/internal/namespace"
)

func newFakePipeline(t *testing.T, partSize int64, handler http.HandlerFunc) (*Pipeline, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	client := discord.New("tok", srv.Client())
	client.SetBaseURL(srv.URL)
	return New(client, partSize, nil), &calls
}

func echoAttachmentsHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var atts []discord.Attachment
	for key, headers := range r.MultipartForm.File {
		_ = key
		for _, h := range headers {
			f, err := h.Open()
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			buf := make([]byte, h.Size)
			n, _ := f.Read(buf)
			f.Close()
			atts = append(atts, discord.Attachment{Filename: h.Filename, Size: int64(n)})
		}
	}
	json.NewEncoder(w).Encode(discord.Message{ID: "msg1", Attachments: atts})
}

func TestUploadEmptyFile(t *testing.T) {
	p, calls := newFakePipeline(t, 10, echoAttachmentsHandler)
	dir := namespace.NewDir(discord.Channel{ID: "1", Name: "alpha", Type: discord.GuildText}, 0, 0)
	dir.EnsureEmpty()
	f := namespace.NewPendingFile("x", 0644, 0, 0)
	dir.PutFile(f)

	if err := p.Run(context.Background(), dir, f); err != nil {
		t.Fatal(err)
	}
	if *calls != 1 {
		t.Fatalf("expected 1 create-attachments call, got %d", *calls)
	}
	if len(f.Parts) != 1 || f.Parts[0].Size != 0 {
		t.Fatalf("expected one zero-size head part, got %+v", f.Parts)
	}
	if f.AggregateSize() != 0 {
		t.Fatalf("AggregateSize = %d, want 0", f.AggregateSize())
	}
}

func TestUploadSinglePart(t *testing.T) {
	p, calls := newFakePipeline(t, 1024, echoAttachmentsHandler)
	dir := namespace.NewDir(discord.Channel{ID: "1", Name: "alpha", Type: discord.GuildText}, 0, 0)
	dir.EnsureEmpty()
	f := namespace.NewPendingFile("hello.txt", 0644, 0, 0)
	f.WriteAt([]byte("hello, world!"), 0)
	dir.PutFile(f)

	if err := p.Run(context.Background(), dir, f); err != nil {
		t.Fatal(err)
	}
	if *calls != 1 {
		t.Fatalf("expected 1 call, got %d", *calls)
	}
	if len(f.Parts) != 1 || f.Parts[0].Size != 13 {
		t.Fatalf("unexpected parts: %+v", f.Parts)
	}
	if f.Content != nil {
		t.Fatal("expected content buffer to be cleared")
	}
}

func TestUploadMultiPartSplit(t *testing.T) {
	p, calls := newFakePipeline(t, 4, echoAttachmentsHandler)
	dir := namespace.NewDir(discord.Channel{ID: "1", Name: "alpha", Type: discord.GuildText}, 0, 0)
	dir.EnsureEmpty()
	f := namespace.NewPendingFile("file", 0644, 0, 0)
	f.WriteAt([]byte("ABCDEFGHIJ"), 0)
	dir.PutFile(f)

	if err := p.Run(context.Background(), dir, f); err != nil {
		t.Fatal(err)
	}
	if *calls != 1 {
		t.Fatalf("expected 1 batch call (3 parts fit in one BatchSize=10 batch), got %d", *calls)
	}
	if len(f.Parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(f.Parts))
	}
	wantSizes := []int64{4, 4, 2}
	for k, want := range wantSizes {
		if f.Parts[k].Size != want {
			t.Errorf("part %d size = %d, want %d", k, f.Parts[k].Size, want)
		}
	}
	wantNames := []string{"file", "file.PART1", "file.PART2"}
	for k, want := range wantNames {
		got, err := codec.Decode(f.Parts[k].EncodedName)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("part %d name = %q, want %q", k, got, want)
		}
	}
}

func TestUploadTooLargeRefused(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()
	client := discord.New("tok", srv.Client())
	client.SetBaseURL(srv.URL)

	p := New(client, 1, nil)
	dir := namespace.NewDir(discord.Channel{ID: "1", Name: "alpha", Type: discord.GuildText}, 0, 0)
	dir.EnsureEmpty()
	f := namespace.NewPendingFile("big", 0644, 0, 0)
	big := make([]byte, MaxParts+1)
	f.WriteAt(big, 0)
	dir.PutFile(f)

	err := p.Run(context.Background(), dir, f)
	if err != ErrTooLarge {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no create-attachments call, got %d", calls)
	}
	if _, ok := dir.File("big"); ok {
		t.Fatal("expected file entry to be removed")
	}
}

func TestUploadBatchFailureRemovesFile(t *testing.T) {
	p, _ := newFakePipeline(t, 1024, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	dir := namespace.NewDir(discord.Channel{ID: "1", Name: "alpha", Type: discord.GuildText}, 0, 0)
	dir.EnsureEmpty()
	f := namespace.NewPendingFile("x", 0644, 0, 0)
	f.WriteAt([]byte("data"), 0)
	dir.PutFile(f)

	err := p.Run(context.Background(), dir, f)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := dir.File("x"); ok {
		t.Fatal("expected file entry to be removed on batch failure")
	}
}
