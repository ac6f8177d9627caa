package cache

import (
	"dbx/dbxerr"

	"go.uber.org/zap"
)

// NewPage appends a zeroed page to the file and returns it dirty. The file
// grows on disk when the page is written back.
func (c *Cache) NewPage() (*Page, error) {
	c.Lock()
	defer c.Unlock()

	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if c.mode != ReadWrite {
		return nil, dbxerr.ReadOnly("cannot allocate a page in %s", c.path)
	}
	if err := c.makeRoom(); err != nil {
		return nil, err
	}

	page := &Page{Num: c.pageCount, Data: make([]byte, c.pageSize), dirty: true}
	c.pageCount++
	c.pages[page.Num] = c.lru.PushFront(page)
	c.logger.Debug("page allocated", zap.Uint64("page", page.Num))
	return page, nil
}
