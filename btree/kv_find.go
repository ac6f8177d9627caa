package btree

import (
	"sort"

	"dbx/dbxerr"

	"github.com/cockroachdb/errors"
)

// normalizeKey truncates key to the index key limit.
func (t *Tree) normalizeKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("empty key")
	}
	if limit := t.p.KeyLimit(); len(key) > limit {
		key = key[:limit]
	}
	return key, nil
}

// childIndex picks the child of an internal node that may hold key: child
// i holds keys < keys[i], child i+1 keys >= keys[i].
func childIndex(keys []string, key string) int {
	return sort.Search(len(keys), func(i int) bool { return keys[i] > key })
}

// entryIndex returns the position of key in a bucket, or where it would go.
func entryIndex(entries []Entry, key string) (int, bool) {
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Key >= key })
	return i, i < len(entries) && entries[i].Key == key
}

type step struct {
	n     *node
	child int
}

// findLeaf descends from the root to the bucket that holds key, recording
// the internal nodes visited.
func (t *Tree) findLeaf(key string) (*node, []step, error) {
	n, err := t.loadNode(rootPage)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load root node")
	}
	var path []step
	for !n.leaf {
		i := childIndex(n.keys, key)
		path = append(path, step{n: n, child: i})
		if len(path) > t.p.Level+1 {
			return nil, nil, dbxerr.Format("descent deeper than level %d", t.p.Level)
		}
		child, err := t.loadNode(n.children[i])
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to load child node")
		}
		n = child
	}
	return n, path, nil
}

// Search returns every reference recorded for key, inline references first
// followed by the overflow chain. An absent key yields no references.
func (t *Tree) Search(key string) ([]Ref, error) {
	key, err := t.normalizeKey(key)
	if err != nil {
		return nil, err
	}
	leaf, _, err := t.findLeaf(key)
	if err != nil {
		return nil, err
	}
	i, found := entryIndex(leaf.entries, key)
	if !found {
		return nil, nil
	}
	return t.Refs(&leaf.entries[i])
}

// Refs expands an entry into its full reference list.
func (t *Tree) Refs(e *Entry) ([]Ref, error) {
	refs := make([]Ref, 0, len(e.Refs))
	refs = append(refs, e.Refs...)
	for num := e.Overflow; num != 0; {
		o, err := t.loadOverflow(num)
		if err != nil {
			return nil, err
		}
		refs = append(refs, o.refs...)
		if uint64(len(refs)) > e.Count {
			return nil, dbxerr.Format("key %q: overflow chain holds more than %d references", e.Key, e.Count)
		}
		num = o.next
	}
	return refs, nil
}
