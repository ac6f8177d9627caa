// Package btree implements the disk-paged B+tree behind every index.
//
// The primary file holds a meta page (0), the root (always page 1) and the
// remaining internal nodes and leaf buckets. Leaf buckets are chained in key
// order. References that do not fit inline in a bucket entry spill into
// overflow chains in the secondary file.
package btree

import (
	"bytes"

	"dbx/cache"
	"dbx/dbxerr"
	"dbx/params"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type Tree struct {
	pri      *cache.Cache
	sec      *cache.Cache
	p        *params.Params
	codec    codec
	logger   *zap.Logger
	modified bool
}

func newTree(pri, sec *cache.Cache, p *params.Params, logger *zap.Logger) *Tree {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tree{
		pri:    pri,
		sec:    sec,
		p:      p,
		codec:  codec{compressed: p.Compressed, refcount: p.Refcount},
		logger: logger,
	}
}

// Create initialises an empty index in two empty files: the meta pages and
// an empty root leaf.
func Create(pri, sec *cache.Cache, p *params.Params, logger *zap.Logger) (*Tree, error) {
	if err := CheckLayout(p); err != nil {
		return nil, err
	}
	if pri.PageCount() != 0 || sec.PageCount() != 0 {
		return nil, errors.Newf("cannot create an index over non-empty files %s, %s", pri.Path(), sec.Path())
	}

	t := newTree(pri, sec, p, logger)
	p.Level = 0
	p.Count = 0
	p.Fullcount = 0

	for _, c := range []*cache.Cache{pri, sec} {
		if _, err := c.NewPage(); err != nil {
			return nil, errors.Wrap(err, "failed to allocate meta page")
		}
		if err := t.writeMeta(c); err != nil {
			return nil, err
		}
	}
	root, err := t.allocateNode()
	if err != nil {
		return nil, err
	}
	if root != rootPage {
		return nil, errors.AssertionFailedf("root allocated at page %d", root)
	}
	if err := t.saveNode(&node{num: rootPage, leaf: true}); err != nil {
		return nil, err
	}
	return t, nil
}

// Open attaches to an existing index and checks its meta pages against p.
func Open(pri, sec *cache.Cache, p *params.Params, logger *zap.Logger) (*Tree, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if pri.PageCount() < 2 {
		return nil, dbxerr.Format("%s: %d pages, an index needs at least 2", pri.Path(), pri.PageCount())
	}
	if sec.PageCount() < 1 {
		return nil, dbxerr.Format("%s: missing meta page", sec.Path())
	}
	t := newTree(pri, sec, p, logger)
	if err := t.checkMeta(pri, primaryMagic, p.PriPageSize); err != nil {
		return nil, err
	}
	if err := t.checkMeta(sec, secondaryMagic, p.SecPageSize); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) writeMeta(c *cache.Cache) error {
	m := meta{
		magic:     primaryMagic,
		pageSize:  c.PageSize(),
		refcount:  t.p.Refcount,
		keyLimit:  t.p.KeyLimit(),
		secondary: t.p.Secondary,
	}
	if c == t.sec {
		m.magic = secondaryMagic
	}
	page, err := c.FetchPage(metaPage)
	if err != nil {
		return err
	}
	h := pageHeader{typ: typeMeta, flags: t.codec.flags()}
	if err := sealPage(page.Data, h, encodeMeta(m)); err != nil {
		return err
	}
	return c.MarkDirty(page)
}

func (t *Tree) checkMeta(c *cache.Cache, magic [8]byte, pageSize int) error {
	page, err := c.FetchPage(metaPage)
	if err != nil {
		return err
	}
	h, body, err := openPage(page.Data, metaPage)
	if err != nil {
		return errors.Wrapf(err, "%s", c.Path())
	}
	if h.typ != typeMeta {
		return dbxerr.Format("%s: page 0 is not a meta page", c.Path())
	}
	m, err := decodeMeta(body)
	if err != nil {
		return dbxerr.Format("%s: %v", c.Path(), err)
	}
	switch {
	case !bytes.Equal(m.magic[:], magic[:]):
		return dbxerr.Format("%s: bad magic %q", c.Path(), m.magic[:])
	case m.pageSize != pageSize:
		return dbxerr.Format("%s: page size %d, parameter block says %d", c.Path(), m.pageSize, pageSize)
	case m.refcount != t.p.Refcount:
		return dbxerr.Format("%s: refcount %d, parameter block says %d", c.Path(), m.refcount, t.p.Refcount)
	case m.secondary != t.p.Secondary:
		return dbxerr.Format("%s: index kind disagrees with parameter block", c.Path())
	case h.compressed() != t.p.Compressed:
		return dbxerr.Format("%s: compression flag disagrees with parameter block", c.Path())
	}
	return nil
}

// Params returns the parameter block the tree keeps current.
func (t *Tree) Params() *params.Params {
	return t.p
}

// Modified reports whether any page was written since the tree was opened.
func (t *Tree) Modified() bool {
	return t.modified
}

// Worst-case encoded sizes, the larger of the plain and compressed forms.
func worstRef(refcount int) int {
	plain := 8 + 4 + 8 + 8*refcount
	packed := 10 + 5 + 10 + 10*refcount
	return max(plain, packed)
}

func worstKey(limit int) int {
	return max(2+limit, 10+10+limit)
}

func worstEntry(p *params.Params) int {
	return worstKey(p.KeyLimit()) + 10 + 10 + p.Sorder*worstRef(p.Refcount) + 20
}

func worstChild(p *params.Params) int {
	return worstKey(p.KeyLimit()) + 10
}

// CheckLayout verifies that a full bucket, a full internal node and a full
// overflow page all fit their pages.
func CheckLayout(p *params.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.KeyLimit() > 0xffff {
		return dbxerr.Format("key limit %d exceeds 65535", p.KeyLimit())
	}
	if need := headerSize + p.Fill*worstEntry(p); need > p.PriPageSize {
		return dbxerr.Format("fill %d needs %d bytes, primary page size is %d", p.Fill, need, p.PriPageSize)
	}
	if need := headerSize + 10 + (p.Order-1)*worstChild(p); need > p.PriPageSize {
		return dbxerr.Format("order %d needs %d bytes, primary page size is %d", p.Order, need, p.PriPageSize)
	}
	if need := headerSize + p.Sfill*worstRef(p.Refcount); need > p.SecPageSize {
		return dbxerr.Format("sfill %d needs %d bytes, secondary page size is %d", p.Sfill, need, p.SecPageSize)
	}
	return nil
}

// Layout describes a new index before Order, Fill and Sfill are derived.
type Layout struct {
	Secondary   bool
	KeyLimit    int
	Refcount    int
	PageSize    int
	SecPageSize int
	CacheSize   int
	Sorder      int
	Compressed  bool
}

// DefaultParams derives the largest Order, Fill and Sfill that fit the page
// sizes of l.
func DefaultParams(l Layout) (*params.Params, error) {
	if l.SecPageSize == 0 {
		l.SecPageSize = l.PageSize
	}
	if l.Sorder == 0 {
		l.Sorder = 1
	}
	p := &params.Params{
		Secondary:    l.Secondary,
		Compressed:   l.Compressed,
		Kwlimit:      l.KeyLimit,
		Idlimit:      l.KeyLimit,
		Refcount:     l.Refcount,
		PriPageSize:  l.PageSize,
		SecPageSize:  l.SecPageSize,
		PriCacheSize: l.CacheSize,
		SecCacheSize: l.CacheSize,
		Sorder:       l.Sorder,
	}
	p.Fill = (l.PageSize - headerSize) / worstEntry(p)
	p.Order = (l.PageSize-headerSize-10)/worstChild(p) + 1
	p.Sfill = (l.SecPageSize - headerSize) / worstRef(l.Refcount)
	if err := CheckLayout(p); err != nil {
		return nil, errors.Wrapf(err, "page size %d too small for key limit %d", l.PageSize, l.KeyLimit)
	}
	return p, nil
}
