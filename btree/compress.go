package btree

import (
	"dbx/dbxerr"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// shortestSeparator returns the shortest prefix of hi that sorts after lo.
// Requires lo < hi.
func shortestSeparator(lo, hi string) string {
	i := commonPrefix(lo, hi)
	if i >= len(hi) {
		return hi
	}
	return hi[:i+1]
}

// levelItem is a finished node waiting for a parent.
type levelItem struct {
	num   uint64
	first string
	last  string
}

// loader bulk-loads sorted entries into an empty tree.
type loader struct {
	t       *Tree
	pending *node // finished leaf not yet written
	current []Entry
	size    int
	prevKey string
	items   []levelItem
}

func (l *loader) add(e Entry) error {
	c := l.t.codec
	esize := c.entrySize(l.prevKey, &e)
	if len(l.current) > 0 && (len(l.current) >= l.t.p.Fill || headerSize+l.size+esize > l.t.pri.PageSize()) {
		if err := l.finishLeaf(); err != nil {
			return err
		}
		esize = c.entrySize("", &e)
	}
	l.current = append(l.current, e)
	l.size += esize
	l.prevKey = e.Key
	return nil
}

func (l *loader) finishLeaf() error {
	leaf := &node{leaf: true, entries: l.current}
	l.current, l.size, l.prevKey = nil, 0, ""

	if l.pending != nil {
		if l.pending.num == 0 {
			num, err := l.t.allocateNode()
			if err != nil {
				return err
			}
			l.pending.num = num
		}
		num, err := l.t.allocateNode()
		if err != nil {
			return err
		}
		leaf.num = num
		leaf.prev = l.pending.num
		l.pending.next = num
		if err := l.flushPending(); err != nil {
			return err
		}
	}
	l.pending = leaf
	return nil
}

func (l *loader) flushPending() error {
	n := l.pending
	if err := l.t.saveNode(n); err != nil {
		return err
	}
	l.items = append(l.items, levelItem{num: n.num, first: n.entries[0].Key, last: n.entries[len(n.entries)-1].Key})
	return nil
}

// finish writes the last leaf and builds the internal levels above the
// leaves, placing the topmost node on the root page.
func (l *loader) finish() error {
	if len(l.current) > 0 {
		if err := l.finishLeaf(); err != nil {
			return err
		}
	}
	if l.pending == nil {
		return l.t.saveNode(&node{num: rootPage, leaf: true})
	}
	if l.pending.num == 0 {
		l.pending.num = rootPage
		return l.t.saveNode(l.pending)
	}
	if err := l.flushPending(); err != nil {
		return err
	}

	level := 0
	items := l.items
	for len(items) > 1 {
		groups := l.group(items)
		level++
		var next []levelItem
		for _, g := range groups {
			n := &node{children: make([]uint64, 0, len(g))}
			for i, it := range g {
				if i > 0 {
					n.keys = append(n.keys, shortestSeparator(g[i-1].last, it.first))
				}
				n.children = append(n.children, it.num)
			}
			if len(groups) == 1 {
				n.num = rootPage
			} else {
				num, err := l.t.allocateNode()
				if err != nil {
					return err
				}
				n.num = num
			}
			if err := l.t.saveNode(n); err != nil {
				return err
			}
			next = append(next, levelItem{num: n.num, first: g[0].first, last: g[len(g)-1].last})
		}
		items = next
	}
	l.t.p.Level = level
	return nil
}

// group packs items into internal nodes of at most Order children that fit
// a page. A trailing group of one borrows from its neighbour.
func (l *loader) group(items []levelItem) [][]levelItem {
	var groups [][]levelItem
	var cur []levelItem
	size := 0
	for i, it := range items {
		var add int
		if len(cur) == 0 {
			add = len(l.t.codec.appendUint(nil, it.num, 8))
		} else {
			sep := shortestSeparator(items[i-1].last, it.first)
			add = len(l.t.codec.appendKey(nil, "", sep)) + len(l.t.codec.appendUint(nil, it.num, 8))
		}
		if len(cur) > 0 && (len(cur) >= l.t.p.Order || headerSize+size+add > l.t.pri.PageSize()) {
			groups = append(groups, cur)
			cur, size = nil, 0
			add = len(l.t.codec.appendUint(nil, it.num, 8))
		}
		cur = append(cur, it)
		size += add
	}
	if len(cur) == 1 && len(groups) > 0 {
		prev := groups[len(groups)-1]
		cur = append([]levelItem{prev[len(prev)-1]}, cur...)
		groups[len(groups)-1] = prev[:len(prev)-1]
	}
	return append(groups, cur)
}

// Compress bulk-loads every entry of t into dst, an empty tree created with
// the compressed encoding. Buckets and overflow pages are packed as full as
// the page size allows and internal separators are shortened.
func (t *Tree) Compress(dst *Tree) error {
	if !dst.p.Compressed {
		return errors.New("compression target does not use the compressed encoding")
	}
	if dst.p.Count != 0 {
		return errors.New("compression target is not empty")
	}
	if t.p.Compressed {
		return errors.Mark(errors.Newf("index is already compressed"), dbxerr.ErrAlreadyCompressed)
	}

	l := &loader{t: dst}
	var keys, refs uint64
	err := t.Walk(func(e *Entry) error {
		all, err := t.Refs(e)
		if err != nil {
			return err
		}
		if uint64(len(all)) != e.Count {
			return dbxerr.Format("key %q counts %d references, found %d", e.Key, e.Count, len(all))
		}
		inline := min(len(all), dst.p.Sorder)
		out := Entry{Key: e.Key, Count: e.Count, Refs: all[:inline]}
		out.Overflow, out.Tail, err = dst.writeChain(all[inline:])
		if err != nil {
			return err
		}
		keys++
		refs += e.Count
		return l.add(out)
	})
	if err != nil {
		return err
	}
	if err := l.finish(); err != nil {
		return err
	}
	dst.p.Count = keys
	dst.p.Fullcount = refs

	t.logger.Info("index compressed",
		zap.Uint64("keys", keys),
		zap.Uint64("refs", refs),
		zap.Int("level", dst.p.Level),
		zap.Uint64("pages_before", t.pri.PageCount()+t.sec.PageCount()),
		zap.Uint64("pages_after", dst.pri.PageCount()+dst.sec.PageCount()))
	return nil
}
