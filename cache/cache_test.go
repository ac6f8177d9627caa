package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"dbx/dbxerr"

	"github.com/cockroachdb/errors"
)

const testPageSize = 128

func createCache(t *testing.T, capacity int) (*Cache, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.xid")
	c, err := Open(Options{Path: path, Mode: ReadWrite, PageSize: testPageSize, CacheSize: capacity, Create: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return c, path
}

func fillPages(t *testing.T, c *Cache, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		p, err := c.NewPage()
		if err != nil {
			t.Fatalf("NewPage %d failed: %v", i, err)
		}
		p.Data[0] = byte(i + 1)
		if err := c.MarkDirty(p); err != nil {
			t.Fatalf("MarkDirty %d failed: %v", i, err)
		}
	}
}

func TestNewPageFlushReopen(t *testing.T) {
	c, path := createCache(t, 2)
	fillPages(t, c, 5)

	if got := c.PageCount(); got != 5 {
		t.Fatalf("expected 5 pages, got %d", got)
	}
	if got := c.Resident(); got > 2 {
		t.Fatalf("cache holds %d pages, capacity is 2", got)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 5*testPageSize {
		t.Fatalf("file length %d, want %d", info.Size(), 5*testPageSize)
	}

	c, err = Open(Options{Path: path, Mode: ReadOnly, PageSize: testPageSize, CacheSize: 3})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer c.Close()
	for i := uint64(0); i < 5; i++ {
		p, err := c.FetchPage(i)
		if err != nil {
			t.Fatalf("FetchPage %d failed: %v", i, err)
		}
		if p.Data[0] != byte(i+1) {
			t.Errorf("page %d: got marker %d", i, p.Data[0])
		}
	}
}

func TestEvictionWritesBackDirtyPages(t *testing.T) {
	c, path := createCache(t, 1)
	fillPages(t, c, 3)

	// pages 0 and 1 were pushed out by later allocations
	if st := c.State(0); st != OnDisk {
		t.Errorf("page 0 state %v, want on-disk", st)
	}
	if st := c.State(2); st != Dirty {
		t.Errorf("page 2 state %v, want dirty", st)
	}
	if c.Stats().Evictions != 2 {
		t.Errorf("expected 2 evictions, got %d", c.Stats().Evictions)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(raw) < 2*testPageSize || raw[testPageSize] != 2 {
		t.Fatalf("evicted dirty page 1 was not written back")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestStateTransitions(t *testing.T) {
	c, _ := createCache(t, 4)
	fillPages(t, c, 2)
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if st := c.State(1); st != Clean {
		t.Fatalf("after flush page 1 is %v, want clean", st)
	}

	p, err := c.FetchPage(1)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if c.Stats().Hits != 1 {
		t.Errorf("expected a cache hit, stats %+v", c.Stats())
	}
	p.Data[1] = 9
	if err := c.MarkDirty(p); err != nil {
		t.Fatalf("MarkDirty failed: %v", err)
	}
	if st := c.State(1); st != Dirty {
		t.Fatalf("page 1 is %v, want dirty", st)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestMarkDirtyEvictedPage(t *testing.T) {
	c, _ := createCache(t, 1)
	defer c.Close()

	first, err := c.NewPage()
	if err != nil {
		t.Fatalf("NewPage failed: %v", err)
	}
	if _, err := c.NewPage(); err != nil {
		t.Fatalf("NewPage failed: %v", err)
	}
	if err := c.MarkDirty(first); err == nil {
		t.Fatal("expected error marking an evicted page dirty")
	}
}

func TestReadOnly(t *testing.T) {
	c, path := createCache(t, 2)
	fillPages(t, c, 1)
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	before, _ := os.ReadFile(path)

	ro, err := Open(Options{Path: path, Mode: ReadOnly, PageSize: testPageSize, CacheSize: 2})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := ro.NewPage(); !errors.Is(err, dbxerr.ErrReadOnly) {
		t.Errorf("NewPage on read-only cache: %v", err)
	}
	p, err := ro.FetchPage(0)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if err := ro.MarkDirty(p); !errors.Is(err, dbxerr.ErrReadOnly) {
		t.Errorf("MarkDirty on read-only cache: %v", err)
	}
	if err := ro.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	after, _ := os.ReadFile(path)
	if !bytes.Equal(before, after) {
		t.Error("read-only session changed the file")
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(Options{Path: filepath.Join(dir, "missing"), Mode: ReadOnly, PageSize: testPageSize, CacheSize: 1})
	if !errors.Is(err, dbxerr.ErrNotFound) {
		t.Errorf("missing file: expected ErrNotFound, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "missing")); !os.IsNotExist(statErr) {
		t.Error("opening a missing file created it")
	}

	odd := filepath.Join(dir, "odd")
	if err := os.WriteFile(odd, make([]byte, testPageSize+3), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	_, err = Open(Options{Path: odd, Mode: ReadOnly, PageSize: testPageSize, CacheSize: 1})
	if !errors.Is(err, dbxerr.ErrFormat) {
		t.Errorf("ragged file: expected ErrFormat, got %v", err)
	}

	if _, err := Open(Options{Path: odd, Mode: ReadOnly, PageSize: testPageSize, CacheSize: 0}); err == nil {
		t.Error("zero capacity accepted")
	}
}

func TestFetchBeyondEnd(t *testing.T) {
	c, _ := createCache(t, 1)
	defer c.Close()
	fillPages(t, c, 1)
	if _, err := c.FetchPage(1); !errors.Is(err, dbxerr.ErrFormat) {
		t.Errorf("expected ErrFormat past end of file, got %v", err)
	}
}
