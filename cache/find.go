package cache

import (
	"dbx/dbxerr"

	"go.uber.org/zap"
)

// FetchPage returns page n, reading it from disk on a miss.
func (c *Cache) FetchPage(n uint64) (*Page, error) {
	c.Lock()
	defer c.Unlock()

	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if n >= c.pageCount {
		return nil, dbxerr.Format("%s: page %d beyond end of file (%d pages)", c.path, n, c.pageCount)
	}

	if elem, ok := c.pages[n]; ok {
		c.lru.MoveToFront(elem)
		c.stats.Hits++
		return elem.Value.(*Page), nil
	}

	c.stats.Misses++
	if err := c.makeRoom(); err != nil {
		return nil, err
	}

	data := make([]byte, c.pageSize)
	if _, err := c.file.ReadAt(data, int64(n)*int64(c.pageSize)); err != nil {
		return nil, dbxerr.IO(err, "read page %d of %s", n, c.path)
	}
	c.stats.Reads++
	c.logger.Debug("page miss", zap.Uint64("page", n))

	page := &Page{Num: n, Data: data}
	c.pages[n] = c.lru.PushFront(page)
	return page, nil
}
