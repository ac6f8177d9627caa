package database

import (
	"os"
	"path/filepath"
	"strconv"

	"dbx/btree"
	"dbx/cache"
	"dbx/dbxerr"
	"dbx/internal/sys"
	"dbx/logger"
	"dbx/params"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// PrimaryPath is the primary file of db/field at generation gen:
// <db>.x<field>, then <db>.x<field>.<gen> once the index has been rebuilt.
func PrimaryPath(dir, db, field string, gen uint64) string {
	return generationPath(filepath.Join(dir, db+".x"+field), gen)
}

// SecondaryPath is the secondary file of db/field at generation gen:
// <db>.y<field>, then <db>.y<field>.<gen>.
func SecondaryPath(dir, db, field string, gen uint64) string {
	return generationPath(filepath.Join(dir, db+".y"+field), gen)
}

func generationPath(base string, gen uint64) string {
	if gen == 0 {
		return base
	}
	return base + "." + strconv.FormatUint(gen, 10)
}

type options struct {
	logger    *zap.Logger
	cacheSize int
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCacheSize overrides the cache capacity recorded in the parameter
// block for this session only.
func WithCacheSize(pages int) Option {
	return func(o *options) { o.cacheSize = pages }
}

func buildOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	o.logger = logger.OrNop(o.logger)
	return o
}

// Index is an open primary/secondary file pair with its parameter block.
// An Index is owned by one goroutine at a time.
type Index struct {
	dir      string
	db       string
	field    string
	mode     cache.Mode
	p        *params.Params
	pri      *cache.Cache
	sec      *cache.Cache
	tree     *btree.Tree
	compress bool
	closed   bool
	logger   *zap.Logger
}

func (o options) caches(p *params.Params) (int, int) {
	if o.cacheSize > 0 {
		return o.cacheSize, o.cacheSize
	}
	return p.PriCacheSize, p.SecCacheSize
}

// OpenIndex opens the index of db/field in dir. Nothing is created: a
// missing parameter block or index file is an ErrNotFound.
func OpenIndex(dir, db, field string, mode cache.Mode, opts ...Option) (*Index, error) {
	o := buildOptions(opts)
	p, err := params.ReadParams(db, field, dir)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	priCache, secCache := o.caches(p)
	pri, err := cache.Open(cache.Options{Path: PrimaryPath(dir, db, field, p.Generation), Mode: mode, PageSize: p.PriPageSize, CacheSize: priCache, Logger: o.logger})
	if err != nil {
		return nil, err
	}
	sec, err := cache.Open(cache.Options{Path: SecondaryPath(dir, db, field, p.Generation), Mode: mode, PageSize: p.SecPageSize, CacheSize: secCache, Logger: o.logger})
	if err != nil {
		pri.Close()
		return nil, err
	}
	if pri.PageCount() != p.PriPageCount || sec.PageCount() != p.SecPageCount {
		pri.Close()
		sec.Close()
		return nil, dbxerr.Format("page counts %d/%d disagree with parameter block %d/%d",
			pri.PageCount(), sec.PageCount(), p.PriPageCount, p.SecPageCount)
	}

	tree, err := btree.Open(pri, sec, p, o.logger)
	if err != nil {
		pri.Close()
		sec.Close()
		return nil, err
	}
	return &Index{dir: dir, db: db, field: field, mode: mode, p: p, pri: pri, sec: sec, tree: tree, logger: o.logger}, nil
}

// CreateIndex creates a fresh, empty index of db/field in dir, replacing any
// previous one. The parameter block is written on Close.
func CreateIndex(dir, db, field string, p *params.Params, opts ...Option) (*Index, error) {
	o := buildOptions(opts)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, dbxerr.IO(err, "create index directory %s", dir)
	}
	priCache, secCache := o.caches(p)
	pri, err := cache.Open(cache.Options{Path: PrimaryPath(dir, db, field, p.Generation), Mode: cache.ReadWrite, PageSize: p.PriPageSize, CacheSize: priCache, Create: true, Logger: o.logger})
	if err != nil {
		return nil, err
	}
	sec, err := cache.Open(cache.Options{Path: SecondaryPath(dir, db, field, p.Generation), Mode: cache.ReadWrite, PageSize: p.SecPageSize, CacheSize: secCache, Create: true, Logger: o.logger})
	if err != nil {
		pri.Close()
		return nil, err
	}
	tree, err := btree.Create(pri, sec, p, o.logger)
	if err != nil {
		pri.Close()
		sec.Close()
		return nil, err
	}
	return &Index{dir: dir, db: db, field: field, mode: cache.ReadWrite, p: p, pri: pri, sec: sec, tree: tree, logger: o.logger}, nil
}

func (ix *Index) Tree() *btree.Tree {
	return ix.tree
}

func (ix *Index) Params() *params.Params {
	return ix.p
}

func (ix *Index) Name() string {
	return ix.db + "/" + ix.field
}

func (ix *Index) Search(key string) ([]btree.Ref, error) {
	return ix.tree.Search(key)
}

func (ix *Index) Insert(key string, ref btree.Ref) error {
	if ix.mode != cache.ReadWrite {
		return dbxerr.ReadOnly("cannot insert into %s", ix.Name())
	}
	return ix.tree.Insert(key, ref)
}

// MarkCompress requests that the index be rebuilt compressed on Close.
func (ix *Index) MarkCompress() error {
	if ix.p.Compressed {
		return errors.Mark(errors.Newf("%s is already compressed", ix.Name()), dbxerr.ErrAlreadyCompressed)
	}
	if ix.mode != cache.ReadWrite {
		return dbxerr.ReadOnly("cannot compress %s", ix.Name())
	}
	ix.compress = true
	return nil
}

// Close flushes the index. A compression requested with MarkCompress is
// carried out here; if it fails the original files are left as they were.
// The parameter block is rewritten only when the index changed.
func (ix *Index) Close() error {
	if ix.closed {
		return nil
	}
	ix.closed = true

	if ix.mode != cache.ReadWrite {
		return closeBoth(ix.pri, ix.sec)
	}
	if err := ix.pri.Flush(); err != nil {
		closeBoth(ix.pri, ix.sec)
		return err
	}
	if err := ix.sec.Flush(); err != nil {
		closeBoth(ix.pri, ix.sec)
		return err
	}
	if ix.compress {
		return ix.rebuildCompressed()
	}

	ix.p.PriPageCount = ix.pri.PageCount()
	ix.p.SecPageCount = ix.sec.PageCount()
	if err := closeBoth(ix.pri, ix.sec); err != nil {
		return err
	}
	if !ix.tree.Modified() {
		return nil
	}
	return params.WriteParams(ix.p, ix.db, ix.field, ix.dir)
}

func closeBoth(a, b *cache.Cache) error {
	errA := a.Close()
	errB := b.Close()
	if errA != nil {
		return errA
	}
	return errB
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// commitParams publishes a parameter block. Renaming the new block into
// place is the only step that switches readers to a rebuilt generation.
var commitParams = params.WriteParams

// rebuildCompressed bulk-loads the index into the files of the next
// generation and then commits the parameter block naming them. Until that
// commit the current generation is untouched; afterwards its files are
// removed.
func (ix *Index) rebuildCompressed() error {
	priPath := PrimaryPath(ix.dir, ix.db, ix.field, ix.p.Generation)
	secPath := SecondaryPath(ix.dir, ix.db, ix.field, ix.p.Generation)

	need := uint64(fileSize(priPath) + fileSize(secPath))
	free, err := sys.FreeSpace(ix.dir)
	if err != nil {
		closeBoth(ix.pri, ix.sec)
		return dbxerr.IO(err, "check free space in %s", ix.dir)
	}
	if free < need {
		closeBoth(ix.pri, ix.sec)
		return dbxerr.IO(errors.Newf("%d bytes free, compression may need %d", free, need), "compress %s", ix.Name())
	}

	np := *ix.p
	np.Compressed = true
	np.Generation = ix.p.Generation + 1
	newPri := PrimaryPath(ix.dir, ix.db, ix.field, np.Generation)
	newSec := SecondaryPath(ix.dir, ix.db, ix.field, np.Generation)
	discard := func() {
		os.Remove(newPri)
		os.Remove(newSec)
	}

	// files of an uncommitted generation are leftovers and get truncated
	dstPri, err := cache.Open(cache.Options{Path: newPri, Mode: cache.ReadWrite, PageSize: np.PriPageSize, CacheSize: np.PriCacheSize, Create: true, Logger: ix.logger})
	if err != nil {
		closeBoth(ix.pri, ix.sec)
		return err
	}
	dstSec, err := cache.Open(cache.Options{Path: newSec, Mode: cache.ReadWrite, PageSize: np.SecPageSize, CacheSize: np.SecCacheSize, Create: true, Logger: ix.logger})
	if err != nil {
		dstPri.Close()
		closeBoth(ix.pri, ix.sec)
		discard()
		return err
	}

	fail := func(err error) error {
		closeBoth(dstPri, dstSec)
		closeBoth(ix.pri, ix.sec)
		discard()
		return err
	}
	dst, err := btree.Create(dstPri, dstSec, &np, ix.logger)
	if err != nil {
		return fail(err)
	}
	if err := ix.tree.Compress(dst); err != nil {
		return fail(errors.Wrapf(err, "compress %s", ix.Name()))
	}
	np.PriPageCount = dstPri.PageCount()
	np.SecPageCount = dstSec.PageCount()
	if err := closeBoth(dstPri, dstSec); err != nil {
		closeBoth(ix.pri, ix.sec)
		discard()
		return err
	}
	if err := closeBoth(ix.pri, ix.sec); err != nil {
		discard()
		return err
	}
	if err := sys.SyncDir(ix.dir); err != nil {
		discard()
		return dbxerr.IO(err, "sync %s", ix.dir)
	}

	if err := commitParams(&np, ix.db, ix.field, ix.dir); err != nil {
		// the rename may have landed before a later step failed
		if cur, rerr := params.ReadParams(ix.db, ix.field, ix.dir); rerr == nil && cur.Generation == np.Generation {
			*ix.p = np
		} else {
			discard()
		}
		return errors.Wrapf(err, "commit %s", ix.Name())
	}
	*ix.p = np

	for _, old := range []string{priPath, secPath} {
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			ix.logger.Warn("remove superseded index file", zap.String("file", old), zap.Error(err))
		}
	}
	if err := sys.SyncDir(ix.dir); err != nil {
		ix.logger.Warn("sync index directory", zap.String("dir", ix.dir), zap.Error(err))
	}

	ix.logger.Info("index compressed",
		zap.String("index", ix.Name()),
		zap.Uint64("generation", np.Generation),
		zap.Int64("bytes_before", int64(need)),
		zap.Int64("bytes_after", fileSize(newPri)+fileSize(newSec)))
	return nil
}
