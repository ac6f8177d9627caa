// Package cache binds one index file to a bounded working set of pages.
//
// Pages are kept in an LRU list; a dirty page is written back before it is
// evicted, and Flush writes every dirty page in page order.
package cache

import (
	"container/list"
	"os"
	"sync"

	"dbx/dbxerr"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Mode selects how the file is opened.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "read-write"
	}
	return "read-only"
}

// State is the residency of a page.
type State int

const (
	OnDisk State = iota
	Clean
	Dirty
)

func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	default:
		return "on-disk"
	}
}

// Options configure Open.
type Options struct {
	Path      string
	Mode      Mode
	PageSize  int
	CacheSize int
	// Create truncates or creates the file. Requires ReadWrite.
	Create bool
	Logger *zap.Logger
}

// Page is a resident page buffer. Data is owned by the cache and is only
// valid until the next call that may evict it.
type Page struct {
	Num   uint64
	Data  []byte
	dirty bool
}

// Stats counts cache activity since Open.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Reads     uint64
	Writes    uint64
	Evictions uint64
}

// Cache is an LRU page cache over a single file.
type Cache struct {
	sync.Mutex
	file      *os.File
	path      string
	mode      Mode
	pageSize  int
	capacity  int
	pageCount uint64
	pages     map[uint64]*list.Element
	lru       *list.List
	stats     Stats
	logger    *zap.Logger
	closed    bool
}

// Open opens opts.Path and checks that its length is a whole number of pages.
func Open(opts Options) (*Cache, error) {
	if opts.PageSize <= 0 {
		return nil, dbxerr.Format("page size must be positive, got %d", opts.PageSize)
	}
	if opts.CacheSize < 1 {
		return nil, dbxerr.Format("cache size must be at least 1, got %d", opts.CacheSize)
	}
	if opts.Create && opts.Mode != ReadWrite {
		return nil, dbxerr.ReadOnly("cannot create %s read-only", opts.Path)
	}

	flag := os.O_RDONLY
	if opts.Mode == ReadWrite {
		flag = os.O_RDWR
	}
	if opts.Create {
		flag |= os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(opts.Path, flag, 0644)
	if err != nil {
		return nil, dbxerr.FromOpen(err, opts.Path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, dbxerr.IO(err, "stat %s", opts.Path)
	}
	if info.Size()%int64(opts.PageSize) != 0 {
		f.Close()
		return nil, dbxerr.Format("%s: length %d is not a multiple of page size %d", opts.Path, info.Size(), opts.PageSize)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Cache{
		file:      f,
		path:      opts.Path,
		mode:      opts.Mode,
		pageSize:  opts.PageSize,
		capacity:  opts.CacheSize,
		pageCount: uint64(info.Size()) / uint64(opts.PageSize),
		pages:     make(map[uint64]*list.Element, opts.CacheSize),
		lru:       list.New(),
		logger:    logger.With(zap.String("file", opts.Path)),
	}
	c.logger.Debug("cache opened",
		zap.Stringer("mode", opts.Mode),
		zap.Uint64("pages", c.pageCount),
		zap.Int("capacity", c.capacity))
	return c, nil
}

// Close flushes a read-write cache and closes the file. Calling Close more
// than once is a no-op.
func (c *Cache) Close() error {
	c.Lock()
	defer c.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var flushErr error
	if c.mode == ReadWrite {
		flushErr = c.flushLocked()
	}
	closeErr := c.file.Close()
	c.pages = nil
	c.lru.Init()

	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return dbxerr.IO(closeErr, "close %s", c.path)
	}
	c.logger.Debug("cache closed",
		zap.Uint64("hits", c.stats.Hits),
		zap.Uint64("misses", c.stats.Misses),
		zap.Uint64("evictions", c.stats.Evictions))
	return nil
}

func (c *Cache) checkOpen() error {
	if c.closed {
		return errors.Newf("cache for %s is closed", c.path)
	}
	return nil
}
