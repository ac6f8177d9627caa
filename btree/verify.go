package btree

import (
	"dbx/dbxerr"
)

// Verify checks the structural invariants of the whole index: key order
// within and across nodes, bucket and node capacity, a uniform leaf depth
// matching Level, the leaf chain and the key and reference counts recorded
// in the parameter block.
func (t *Tree) Verify() error {
	var leaves []uint64
	if err := t.verifyNode(rootPage, 0, nil, nil, &leaves); err != nil {
		return err
	}

	var keys, refs uint64
	var prevKey string
	var prevNum uint64
	for i, num := range leaves {
		n, err := t.loadNode(num)
		if err != nil {
			return err
		}
		if n.prev != prevNum {
			return dbxerr.Format("leaf %d: prev link %d, expected %d", num, n.prev, prevNum)
		}
		var want uint64
		if i+1 < len(leaves) {
			want = leaves[i+1]
		}
		if n.next != want {
			return dbxerr.Format("leaf %d: next link %d, expected %d", num, n.next, want)
		}
		for j := range n.entries {
			e := &n.entries[j]
			if keys > 0 && e.Key <= prevKey {
				return dbxerr.Format("leaf chain out of order at %q after %q", e.Key, prevKey)
			}
			all, err := t.Refs(e)
			if err != nil {
				return err
			}
			if uint64(len(all)) != e.Count {
				return dbxerr.Format("key %q counts %d references, found %d", e.Key, e.Count, len(all))
			}
			if len(e.Refs) > t.p.Sorder {
				return dbxerr.Format("key %q holds %d inline references, sorder is %d", e.Key, len(e.Refs), t.p.Sorder)
			}
			keys++
			refs += e.Count
			prevKey = e.Key
		}
		prevNum = num
	}

	if keys != t.p.Count {
		return dbxerr.Format("index holds %d keys, parameter block says %d", keys, t.p.Count)
	}
	if refs != t.p.Fullcount {
		return dbxerr.Format("index holds %d references, parameter block says %d", refs, t.p.Fullcount)
	}
	return nil
}

// verifyNode checks the subtree at num against the bounds lo <= key < hi
// and collects its leaves in order.
func (t *Tree) verifyNode(num uint64, depth int, lo, hi *string, leaves *[]uint64) error {
	n, err := t.loadNode(num)
	if err != nil {
		return err
	}
	inBounds := func(k string) bool {
		return (lo == nil || k >= *lo) && (hi == nil || k < *hi)
	}

	if n.leaf {
		if depth != t.p.Level {
			return dbxerr.Format("leaf %d at depth %d, level is %d", num, depth, t.p.Level)
		}
		if len(n.entries) > t.p.Fill {
			return dbxerr.Format("leaf %d holds %d entries, fill is %d", num, len(n.entries), t.p.Fill)
		}
		for i, e := range n.entries {
			if i > 0 && e.Key <= n.entries[i-1].Key {
				return dbxerr.Format("leaf %d: key %q not above %q", num, e.Key, n.entries[i-1].Key)
			}
			if !inBounds(e.Key) {
				return dbxerr.Format("leaf %d: key %q outside its parent's range", num, e.Key)
			}
		}
		*leaves = append(*leaves, num)
		return nil
	}

	if depth >= t.p.Level {
		return dbxerr.Format("internal node %d at depth %d, level is %d", num, depth, t.p.Level)
	}
	if len(n.children) > t.p.Order {
		return dbxerr.Format("node %d has %d children, order is %d", num, len(n.children), t.p.Order)
	}
	if len(n.children) != len(n.keys)+1 || len(n.keys) == 0 {
		return dbxerr.Format("node %d: %d keys for %d children", num, len(n.keys), len(n.children))
	}
	for i, k := range n.keys {
		if i > 0 && k <= n.keys[i-1] {
			return dbxerr.Format("node %d: separator %q not above %q", num, k, n.keys[i-1])
		}
		if !inBounds(k) {
			return dbxerr.Format("node %d: separator %q outside its parent's range", num, k)
		}
	}
	for i, child := range n.children {
		clo, chi := lo, hi
		if i > 0 {
			clo = &n.keys[i-1]
		}
		if i < len(n.keys) {
			chi = &n.keys[i]
		}
		if err := t.verifyNode(child, depth+1, clo, chi, leaves); err != nil {
			return err
		}
	}
	return nil
}
