package cache

import (
	"sort"

	"dbx/dbxerr"

	"github.com/cockroachdb/errors"
)

// MarkDirty records that p was modified. p must still be resident.
func (c *Cache) MarkDirty(p *Page) error {
	c.Lock()
	defer c.Unlock()

	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.mode != ReadWrite {
		return dbxerr.ReadOnly("cannot modify page %d of %s", p.Num, c.path)
	}
	elem, ok := c.pages[p.Num]
	if !ok || elem.Value.(*Page) != p {
		return errors.Newf("page %d of %s is no longer resident", p.Num, c.path)
	}
	p.dirty = true
	c.lru.MoveToFront(elem)
	return nil
}

// Flush writes every dirty page in ascending page order and syncs the file.
func (c *Cache) Flush() error {
	c.Lock()
	defer c.Unlock()

	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.mode != ReadWrite {
		return nil
	}
	return c.flushLocked()
}

func (c *Cache) flushLocked() error {
	var dirty []*Page
	for _, elem := range c.pages {
		if p := elem.Value.(*Page); p.dirty {
			dirty = append(dirty, p)
		}
	}
	sort.Slice(dirty, func(i, j int) bool { return dirty[i].Num < dirty[j].Num })

	for _, p := range dirty {
		if err := c.writeBack(p); err != nil {
			return err
		}
	}

	// pages allocated but never written still have to exist on disk
	want := int64(c.pageCount) * int64(c.pageSize)
	info, err := c.file.Stat()
	if err != nil {
		return dbxerr.IO(err, "stat %s", c.path)
	}
	if info.Size() < want {
		if err := c.file.Truncate(want); err != nil {
			return dbxerr.IO(err, "extend %s", c.path)
		}
	}

	if err := c.file.Sync(); err != nil {
		return dbxerr.IO(err, "sync %s", c.path)
	}
	return nil
}

func (c *Cache) writeBack(p *Page) error {
	if _, err := c.file.WriteAt(p.Data, int64(p.Num)*int64(c.pageSize)); err != nil {
		return dbxerr.IO(err, "write page %d of %s", p.Num, c.path)
	}
	p.dirty = false
	c.stats.Writes++
	return nil
}
