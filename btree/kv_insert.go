package btree

import (
	"dbx/dbxerr"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Insert records ref under key. Keys longer than the index key limit are
// truncated. A new key is placed in sorted position; an existing key gets
// the reference appended to its list.
func (t *Tree) Insert(key string, ref Ref) error {
	key, err := t.normalizeKey(key)
	if err != nil {
		return err
	}
	if len(ref.Extra) != t.p.Refcount {
		return errors.Newf("reference carries %d extra offsets, index expects %d", len(ref.Extra), t.p.Refcount)
	}

	leaf, path, err := t.findLeaf(key)
	if err != nil {
		return err
	}

	i, found := entryIndex(leaf.entries, key)
	if found {
		if err := t.appendRef(&leaf.entries[i], ref); err != nil {
			return err
		}
		t.p.Fullcount++
		return t.saveNode(leaf)
	}

	leaf.entries = append(leaf.entries, Entry{})
	copy(leaf.entries[i+1:], leaf.entries[i:])
	leaf.entries[i] = Entry{Key: key, Count: 1, Refs: []Ref{ref}}
	t.p.Count++
	t.p.Fullcount++

	if !t.overfull(leaf) {
		return t.saveNode(leaf)
	}
	return t.split(leaf, path)
}

func (t *Tree) overfull(n *node) bool {
	if n.leaf {
		if len(n.entries) > t.p.Fill {
			return true
		}
	} else if len(n.children) > t.p.Order {
		return true
	}
	return !t.fits(n)
}

// halve splits n into a left half, which keeps n's page, and a new right
// half. Leaves promote the first key of the right half; internal nodes
// promote their median key.
func halve(n *node) (*node, string, *node) {
	if n.leaf {
		mid := len(n.entries) / 2
		right := &node{leaf: true, entries: append([]Entry(nil), n.entries[mid:]...)}
		left := &node{num: n.num, leaf: true, entries: n.entries[:mid], prev: n.prev, next: n.next}
		return left, right.entries[0].Key, right
	}
	mid := len(n.keys) / 2
	sep := n.keys[mid]
	right := &node{
		keys:     append([]string(nil), n.keys[mid+1:]...),
		children: append([]uint64(nil), n.children[mid+1:]...),
	}
	left := &node{num: n.num, keys: n.keys[:mid], children: n.children[:mid+1]}
	return left, sep, right
}

// split resolves an overfull node, propagating up the recorded path. The
// root never moves: when it splits, both halves go to new pages and the
// root becomes an internal node over them.
func (t *Tree) split(n *node, path []step) error {
	for {
		if (n.leaf && len(n.entries) < 2) || (!n.leaf && len(n.keys) < 3) {
			return dbxerr.Format("node %d cannot be split", n.num)
		}
		left, sep, right := halve(n)

		if n.num == rootPage {
			return t.splitRoot(left, sep, right)
		}

		rnum, err := t.allocateNode()
		if err != nil {
			return err
		}
		right.num = rnum
		if n.leaf {
			if err := t.linkLeaves(left, right); err != nil {
				return err
			}
		}
		if err := t.saveNode(left); err != nil {
			return err
		}
		if err := t.saveNode(right); err != nil {
			return err
		}
		t.logger.Debug("node split",
			zap.Uint64("left", left.num),
			zap.Uint64("right", right.num),
			zap.Bool("leaf", n.leaf))

		parent := path[len(path)-1]
		path = path[:len(path)-1]
		p := parent.n
		at := parent.child
		p.keys = append(p.keys, "")
		copy(p.keys[at+1:], p.keys[at:])
		p.keys[at] = sep
		p.children = append(p.children, 0)
		copy(p.children[at+2:], p.children[at+1:])
		p.children[at+1] = right.num

		if !t.overfull(p) {
			return t.saveNode(p)
		}
		n = p
	}
}

// linkLeaves threads a new right leaf into the chain after left.
func (t *Tree) linkLeaves(left, right *node) error {
	right.prev = left.num
	right.next = left.next
	if left.next != 0 {
		after, err := t.loadNode(left.next)
		if err != nil {
			return err
		}
		after.prev = right.num
		if err := t.saveNode(after); err != nil {
			return err
		}
	}
	left.next = right.num
	return nil
}

func (t *Tree) splitRoot(left *node, sep string, right *node) error {
	lnum, err := t.allocateNode()
	if err != nil {
		return err
	}
	rnum, err := t.allocateNode()
	if err != nil {
		return err
	}
	left.num, right.num = lnum, rnum
	if left.leaf {
		left.prev, left.next = 0, rnum
		right.prev, right.next = lnum, 0
	}
	if err := t.saveNode(left); err != nil {
		return err
	}
	if err := t.saveNode(right); err != nil {
		return err
	}
	root := &node{num: rootPage, keys: []string{sep}, children: []uint64{lnum, rnum}}
	if err := t.saveNode(root); err != nil {
		return err
	}
	t.p.Level++
	t.logger.Debug("root split", zap.Int("level", t.p.Level))
	return nil
}
