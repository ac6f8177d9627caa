package cache

func (c *Cache) Path() string {
	return c.path
}

func (c *Cache) Mode() Mode {
	return c.mode
}

func (c *Cache) PageSize() int {
	return c.pageSize
}

func (c *Cache) Capacity() int {
	return c.capacity
}

// PageCount is the number of pages in the file, including pages allocated
// but not yet written back.
func (c *Cache) PageCount() uint64 {
	c.Lock()
	defer c.Unlock()
	return c.pageCount
}

// Resident returns how many pages are currently held in memory.
func (c *Cache) Resident() int {
	c.Lock()
	defer c.Unlock()
	return c.lru.Len()
}

// State reports the residency of page n.
func (c *Cache) State(n uint64) State {
	c.Lock()
	defer c.Unlock()

	elem, ok := c.pages[n]
	if !ok {
		return OnDisk
	}
	if elem.Value.(*Page).dirty {
		return Dirty
	}
	return Clean
}

func (c *Cache) Stats() Stats {
	c.Lock()
	defer c.Unlock()
	return c.stats
}
