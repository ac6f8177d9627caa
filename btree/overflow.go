package btree

// appendRef adds ref to e, inline while there is room and to the tail of
// the overflow chain after that.
func (t *Tree) appendRef(e *Entry, ref Ref) error {
	e.Count++
	if len(e.Refs) < t.p.Sorder {
		e.Refs = append(e.Refs, ref)
		return nil
	}

	if e.Tail != 0 {
		tail, err := t.loadOverflow(e.Tail)
		if err != nil {
			return err
		}
		grown := append(tail.refs, ref)
		if len(grown) <= t.p.Sfill && t.overflowFits(grown) {
			tail.refs = grown
			return t.saveOverflow(tail)
		}
		num, err := t.allocateOverflow()
		if err != nil {
			return err
		}
		tail.next = num
		if err := t.saveOverflow(tail); err != nil {
			return err
		}
		e.Tail = num
		return t.saveOverflow(&overflowPage{num: num, refs: []Ref{ref}})
	}

	num, err := t.allocateOverflow()
	if err != nil {
		return err
	}
	e.Overflow, e.Tail = num, num
	return t.saveOverflow(&overflowPage{num: num, refs: []Ref{ref}})
}

// writeChain stores refs as a packed overflow chain and returns its first
// and last page.
func (t *Tree) writeChain(refs []Ref) (uint64, uint64, error) {
	if len(refs) == 0 {
		return 0, 0, nil
	}
	var head uint64
	var prev *overflowPage
	for len(refs) > 0 {
		n := 1
		for n < len(refs) && n < t.p.Sfill && t.overflowFits(refs[:n+1]) {
			n++
		}
		num, err := t.allocateOverflow()
		if err != nil {
			return 0, 0, err
		}
		if prev == nil {
			head = num
		} else {
			prev.next = num
			if err := t.saveOverflow(prev); err != nil {
				return 0, 0, err
			}
		}
		prev = &overflowPage{num: num, refs: refs[:n]}
		refs = refs[n:]
	}
	if err := t.saveOverflow(prev); err != nil {
		return 0, 0, err
	}
	return head, prev.num, nil
}
