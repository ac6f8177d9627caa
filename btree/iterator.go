package btree

import (
	"strings"

	"github.com/tidwall/match"
)

// Iterator is a forward scan along the leaf chain.
type Iterator struct {
	tree  *Tree
	leaf  *node
	index int
	err   error
}

// Seek positions an iterator at the first key >= key. An empty key starts
// at the smallest key in the index.
func (t *Tree) Seek(key string) *Iterator {
	it := &Iterator{tree: t}
	if key != "" {
		if limit := t.p.KeyLimit(); len(key) > limit {
			key = key[:limit]
		}
	}
	leaf, _, err := t.findLeaf(key)
	if err != nil {
		it.err = err
		return it
	}
	it.leaf = leaf
	it.index, _ = entryIndex(leaf.entries, key)
	it.settle()
	return it
}

// settle moves past exhausted buckets.
func (it *Iterator) settle() {
	for it.leaf != nil && it.index >= len(it.leaf.entries) {
		if it.leaf.next == 0 {
			it.leaf = nil
			return
		}
		next, err := it.tree.loadNode(it.leaf.next)
		if err != nil {
			it.err = err
			it.leaf = nil
			return
		}
		it.leaf = next
		it.index = 0
	}
}

// Valid reports whether the iterator is positioned on an entry.
func (it *Iterator) Valid() bool {
	return it.err == nil && it.leaf != nil
}

// Entry returns the current entry. Only meaningful while Valid.
func (it *Iterator) Entry() *Entry {
	return &it.leaf.entries[it.index]
}

// Next advances the iterator and reports whether it is still valid.
func (it *Iterator) Next() bool {
	if !it.Valid() {
		return false
	}
	it.index++
	it.settle()
	return it.Valid()
}

// Err returns the first error met while scanning.
func (it *Iterator) Err() error {
	return it.err
}

// Walk calls fn for every entry in ascending key order.
func (t *Tree) Walk(fn func(e *Entry) error) error {
	it := t.Seek("")
	for ; it.Valid(); it.Next() {
		if err := fn(it.Entry()); err != nil {
			return err
		}
	}
	return it.Err()
}

// literalPrefix is the part of a wildcard pattern before the first
// wildcard or escape.
func literalPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, `*?\`); i >= 0 {
		return pattern[:i]
	}
	return pattern
}

// Match calls fn for every key matching pattern, where '*' matches any run
// of characters and '?' any single character. Keys are stored cut to the
// key limit, so a pattern whose literal prefix reaches the limit matches
// the one key that prefix was cut to, as Search would.
func (t *Tree) Match(pattern string, fn func(e *Entry) error) error {
	prefix := literalPrefix(pattern)
	if limit := t.p.KeyLimit(); len(prefix) >= limit {
		prefix = prefix[:limit]
		pattern = prefix
	}
	it := t.Seek(prefix)
	for ; it.Valid(); it.Next() {
		e := it.Entry()
		if !strings.HasPrefix(e.Key, prefix) {
			break
		}
		if match.Match(e.Key, pattern) {
			if err := fn(e); err != nil {
				return err
			}
		}
	}
	return it.Err()
}
