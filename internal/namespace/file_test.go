package namespace

import "testing"

func TestPartSuffixNameAndSplit(t *testing.T) {
	if got := PartSuffixName("file", 0); got != "file" {
		t.Fatalf("PartSuffixName(file,0) = %q, want %q", got, "file")
	}
	if got := PartSuffixName("file", 2); got != "file.PART2" {
		t.Fatalf("PartSuffixName(file,2) = %q, want file.PART2", got)
	}

	head, k, ok := SplitPartSuffix("file.PART2")
	if !ok || head != "file" || k != 2 {
		t.Fatalf("SplitPartSuffix(file.PART2) = (%q, %d, %v)", head, k, ok)
	}

	if _, _, ok := SplitPartSuffix("file"); ok {
		t.Fatal("expected no suffix match on head name")
	}
}

func TestFileWriteAtGrowsAndSplices(t *testing.T) {
	f := NewPendingFile("x", 0644, 0, 0)

	if n, err := f.WriteAt([]byte("hello"), 0); err != nil || n != 5 {
		t.Fatalf("WriteAt = %d, %v", n, err)
	}
	if f.AggregateSize() != 5 {
		t.Fatalf("AggregateSize = %d, want 5", f.AggregateSize())
	}

	if _, err := f.WriteAt([]byte("!"), 5); err != nil {
		t.Fatal(err)
	}
	if string(f.Content) != "hello!" {
		t.Fatalf("Content = %q, want %q", f.Content, "hello!")
	}

	if _, err := f.WriteAt([]byte("X"), 2); err != nil {
		t.Fatal(err)
	}
	if string(f.Content) != "heXlo!" {
		t.Fatalf("Content = %q, want %q", f.Content, "heXlo!")
	}
}

func TestFileReadAt(t *testing.T) {
	f := NewPendingFile("x", 0644, 0, 0)
	f.WriteAt([]byte("hello, world!"), 0)

	buf := make([]byte, 5)
	if n := f.ReadAt(buf, 0); n != 5 || string(buf) != "hello" {
		t.Fatalf("ReadAt(0) = %d %q", n, buf)
	}

	buf = make([]byte, 1)
	if n := f.ReadAt(buf, int64(len(f.Content))); n != 0 {
		t.Fatalf("ReadAt(at end) = %d, want 0", n)
	}
}

func TestIsResidentAndPending(t *testing.T) {
	f := NewPendingFile("x", 0644, 0, 0)
	if !f.IsPending() || f.IsResident() {
		t.Fatalf("expected pending file, got pending=%v resident=%v", f.IsPending(), f.IsResident())
	}

	f.Parts = []Part{{Snowflake: "1", Size: 0}}
	f.Content = nil
	if f.IsPending() || !f.IsResident() {
		t.Fatalf("expected resident file, got pending=%v resident=%v", f.IsPending(), f.IsResident())
	}
}
