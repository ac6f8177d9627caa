package btree

import (
	"dbx/dbxerr"

	"github.com/cockroachdb/errors"
)

func (t *Tree) loadNode(num uint64) (*node, error) {
	page, err := t.pri.FetchPage(num)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load node %d", num)
	}
	h, body, err := openPage(page.Data, num)
	if err != nil {
		return nil, err
	}
	c := codec{compressed: h.compressed(), refcount: t.p.Refcount}

	n := &node{num: num, prev: h.prev, next: h.next}
	switch h.typ {
	case typeLeaf:
		n.leaf = true
		n.entries, err = c.decodeLeaf(body, h.count)
	case typeInternal:
		n.keys, n.children, err = c.decodeInternal(body, h.count)
	default:
		return nil, dbxerr.Format("page %d: expected a tree node, found type %d", num, h.typ)
	}
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to decode node %d", num), dbxerr.ErrFormat)
	}
	return n, nil
}

func (t *Tree) encodeNode(n *node) (pageHeader, []byte) {
	h := pageHeader{flags: t.codec.flags(), count: n.count(), prev: n.prev, next: n.next}
	if n.leaf {
		h.typ = typeLeaf
		return h, t.codec.encodeLeaf(n.entries)
	}
	h.typ = typeInternal
	return h, t.codec.encodeInternal(n.keys, n.children)
}

// fits reports whether n encodes into one primary page.
func (t *Tree) fits(n *node) bool {
	_, body := t.encodeNode(n)
	return headerSize+len(body) <= t.pri.PageSize()
}

func (t *Tree) saveNode(n *node) error {
	h, body := t.encodeNode(n)
	page, err := t.pri.FetchPage(n.num)
	if err != nil {
		return errors.Wrapf(err, "failed to save node %d", n.num)
	}
	if err := sealPage(page.Data, h, body); err != nil {
		return errors.Wrapf(err, "node %d", n.num)
	}
	t.modified = true
	return t.pri.MarkDirty(page)
}

func (t *Tree) allocateNode() (uint64, error) {
	page, err := t.pri.NewPage()
	if err != nil {
		return 0, errors.Wrap(err, "failed to allocate node")
	}
	return page.Num, nil
}

func (t *Tree) loadOverflow(num uint64) (*overflowPage, error) {
	page, err := t.sec.FetchPage(num)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load overflow page %d", num)
	}
	h, body, err := openPage(page.Data, num)
	if err != nil {
		return nil, err
	}
	if h.typ != typeOverflow {
		return nil, dbxerr.Format("secondary page %d: expected an overflow page, found type %d", num, h.typ)
	}
	c := codec{compressed: h.compressed(), refcount: t.p.Refcount}
	r := &reader{buf: body}
	refs := c.readRefs(r, h.count)
	if r.err != nil {
		return nil, errors.Mark(errors.Wrapf(r.err, "failed to decode overflow page %d", num), dbxerr.ErrFormat)
	}
	return &overflowPage{num: num, refs: refs, next: h.next}, nil
}

func (t *Tree) overflowFits(refs []Ref) bool {
	return headerSize+len(t.codec.appendRefs(nil, refs)) <= t.sec.PageSize()
}

func (t *Tree) saveOverflow(o *overflowPage) error {
	page, err := t.sec.FetchPage(o.num)
	if err != nil {
		return errors.Wrapf(err, "failed to save overflow page %d", o.num)
	}
	h := pageHeader{typ: typeOverflow, flags: t.codec.flags(), count: len(o.refs), next: o.next}
	if err := sealPage(page.Data, h, t.codec.appendRefs(nil, o.refs)); err != nil {
		return errors.Wrapf(err, "overflow page %d", o.num)
	}
	t.modified = true
	return t.sec.MarkDirty(page)
}

func (t *Tree) allocateOverflow() (uint64, error) {
	page, err := t.sec.NewPage()
	if err != nil {
		return 0, errors.Wrap(err, "failed to allocate overflow page")
	}
	return page.Num, nil
}
