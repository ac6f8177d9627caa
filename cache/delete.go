package cache

import (
	"go.uber.org/zap"
)

// makeRoom evicts least-recently-used pages until one slot is free.
func (c *Cache) makeRoom() error {
	for c.lru.Len() >= c.capacity {
		if err := c.evictLRU(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) evictLRU() error {
	elem := c.lru.Back()
	if elem == nil {
		return nil
	}
	page := elem.Value.(*Page)
	if page.dirty {
		if err := c.writeBack(page); err != nil {
			return err
		}
	}
	c.lru.Remove(elem)
	delete(c.pages, page.Num)
	c.stats.Evictions++
	c.logger.Debug("page evicted", zap.Uint64("page", page.Num))
	return nil
}
