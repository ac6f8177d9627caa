package btree

import (
	"bufio"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
)

// Dump writes a breadth-first listing of the tree structure to w. Pages
// that fail to load are reported inline; write failures end the dump.
func (t *Tree) Dump(w io.Writer) error {
	bw := bufio.NewWriter(w)
	p := func(format string, args ...interface{}) { fmt.Fprintf(bw, format, args...) }

	p("primary %s: %d pages of %d bytes\n", t.pri.Path(), t.pri.PageCount(), t.pri.PageSize())
	p("secondary %s: %d pages of %d bytes\n", t.sec.Path(), t.sec.PageCount(), t.sec.PageSize())
	p("level %d, order %d, fill %d, sorder %d, sfill %d, compressed %v\n",
		t.p.Level, t.p.Order, t.p.Fill, t.p.Sorder, t.p.Sfill, t.p.Compressed)
	p("keys %d, references %d\n", t.p.Count, t.p.Fullcount)

	queue := []uint64{rootPage}
	for level := 0; len(queue) > 0; level++ {
		p("level %d:\n", level)
		var next []uint64
		for _, num := range queue {
			n, err := t.loadNode(num)
			if err != nil {
				p("  [page %d] error: %v\n", num, err)
				continue
			}
			if !n.leaf {
				p("  [page %d] internal keys=%q children=%v\n", num, n.keys, n.children)
				next = append(next, n.children...)
				continue
			}
			p("  [page %d] leaf entries=%d prev=%d next=%d", num, len(n.entries), n.prev, n.next)
			if len(n.entries) > 0 {
				p(" range=%q..%q", n.entries[0].Key, n.entries[len(n.entries)-1].Key)
			}
			p("\n")
			for _, e := range n.entries {
				p("    %q count=%d inline=%d", e.Key, e.Count, len(e.Refs))
				if e.Overflow != 0 {
					p(" overflow=%d..%d", e.Overflow, e.Tail)
				}
				p("\n")
			}
		}
		queue = next
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "failed to write tree dump")
	}
	return nil
}
