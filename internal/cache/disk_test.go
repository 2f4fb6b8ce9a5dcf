package cache

import (
	"bytes"
	"os"
	"testing"
	"time"
)

func TestDiskCache_PutGetCompressed(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, 1<<20, 3)
	if err != nil {
		t.Fatalf("NewDiskCache: %v", err)
	}

	value := bytes.Repeat([]byte("pcm "), 1000)
	if err := dc.Put("k", value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if dc.Size() >= int64(len(value)) {
		t.Errorf("expected compressed size, got %d for %d bytes", dc.Size(), len(value))
	}

	got, ok := dc.Get("k")
	if !ok || !bytes.Equal(got, value) {
		t.Fatal("round trip through disk failed")
	}
}

func TestDiskCache_PersistsIndex(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, 1<<20, 0)
	if err != nil {
		t.Fatal(err)
	}
	_ = dc.Put("k", []byte("summary"))
	if err := dc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewDiskCache(dir, 1<<20, 0)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := reopened.Get("k")
	if !ok || string(got) != "summary" {
		t.Errorf("expected entry after reopen, got %q (%v)", got, ok)
	}
	if reopened.Size() != int64(len("summary")) {
		t.Errorf("size not restored, got %d", reopened.Size())
	}
}

func TestDiskCache_MissingFileIsMiss(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 1<<20, 0)
	if err != nil {
		t.Fatal(err)
	}
	_ = dc.Put("k", []byte("v"))
	_ = os.Remove(dc.index["k"].FilePath)

	if _, ok := dc.Get("k"); ok {
		t.Error("expected a miss for a missing file")
	}
	if dc.Size() != 0 {
		t.Errorf("entry should be dropped, size %d", dc.Size())
	}
}

func TestDiskCache_EvictsOldest(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	_ = dc.Put("a", []byte("12345"))
	time.Sleep(time.Millisecond)
	_ = dc.Put("b", []byte("67890"))
	_ = dc.Put("c", []byte("abc"))

	if _, ok := dc.Get("a"); ok {
		t.Error("a should have been evicted")
	}
	if dc.Stats().Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", dc.Stats().Evictions)
	}
	if err := dc.Put("huge", make([]byte, 11)); err != ErrItemTooLarge {
		t.Errorf("expected ErrItemTooLarge, got %v", err)
	}
}

func TestDiskCache_RemoveOlderThan(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 1<<20, 0)
	if err != nil {
		t.Fatal(err)
	}
	_ = dc.Put("old", []byte("1"))
	dc.index["old"].Timestamp = time.Now().Add(-48 * time.Hour)
	_ = dc.Put("new", []byte("2"))

	if n := dc.RemoveOlderThan(time.Now().Add(-24 * time.Hour)); n != 1 {
		t.Errorf("expected 1 removed, got %d", n)
	}
	if _, ok := dc.Get("new"); !ok {
		t.Error("new entry should remain")
	}
}
