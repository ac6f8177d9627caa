package btree

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	tbtree "github.com/tidwall/btree"
)

func hitLess(a, b Hit) bool {
	if a.Ref.Record != b.Ref.Record {
		return a.Ref.Record < b.Ref.Record
	}
	if a.Key != b.Key {
		return a.Key < b.Key
	}
	if a.Ref.File != b.Ref.File {
		return a.Ref.File < b.Ref.File
	}
	return a.Ref.Offset < b.Ref.Offset
}

// Range returns every (key, reference) whose record number lies in
// [min, max], ordered by record number then key, without duplicates.
func (t *Tree) Range(min, max uint64) ([]Hit, error) {
	if min > max {
		return nil, errors.Newf("empty record range %d..%d", min, max)
	}
	set := tbtree.NewBTreeG[Hit](hitLess)
	err := t.Walk(func(e *Entry) error {
		refs, err := t.Refs(e)
		if err != nil {
			return err
		}
		for _, r := range refs {
			if r.Record >= min && r.Record <= max {
				set.Set(Hit{Key: e.Key, Ref: r})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, set.Len())
	set.Scan(func(h Hit) bool {
		hits = append(hits, h)
		return true
	})
	return hits, nil
}

// FormatHit renders one range dump line: key, record, file and offset
// separated by tabs, then any extra offsets.
func FormatHit(h Hit) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\t%d\t%d\t%d", h.Key, h.Ref.Record, h.Ref.File, h.Ref.Offset)
	for _, x := range h.Ref.Extra {
		fmt.Fprintf(&sb, "\t%d", x)
	}
	return sb.String()
}

// RangeDump writes the hits of Range to w, one per line, and returns how
// many were written.
func (t *Tree) RangeDump(min, max uint64, w io.Writer) (int, error) {
	hits, err := t.Range(min, max)
	if err != nil {
		return 0, err
	}
	bw := bufio.NewWriter(w)
	for _, h := range hits {
		if _, err := fmt.Fprintln(bw, FormatHit(h)); err != nil {
			return 0, errors.Wrap(err, "failed to write range dump")
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, errors.Wrap(err, "failed to write range dump")
	}
	return len(hits), nil
}
