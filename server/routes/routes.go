package routes

import (
	"sort"
	"strconv"
	"sync"

	"dbx/btree"
	"dbx/cache"
	"dbx/config"
	"dbx/database"
	"dbx/dbxerr"
	"dbx/flatfile"
	"dbx/logger"
	"dbx/registry"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// openIndex is a read-only index shared by requests; mu serialises use of
// its page caches.
type openIndex struct {
	mu sync.Mutex
	ix *database.Index
}

// Handler holds the state the routes share: the configuration, the open
// indexes and the search result cache.
type Handler struct {
	cfg     *config.Config
	formats *registry.Registry[flatfile.Format]
	logger  *zap.Logger

	mu      sync.Mutex
	indexes map[string]*openIndex

	results *ristretto.Cache[string, []btree.Ref]
}

func NewHandler(cfg *config.Config, formats *registry.Registry[flatfile.Format], log *zap.Logger) (*Handler, error) {
	entries := cfg.Server.CacheEntries
	if entries <= 0 {
		entries = 10000
	}
	results, err := ristretto.NewCache(&ristretto.Config[string, []btree.Ref]{
		NumCounters: entries * 10,
		MaxCost:     entries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create result cache")
	}
	return &Handler{
		cfg:     cfg,
		formats: formats,
		logger:  logger.OrNop(log),
		indexes: map[string]*openIndex{},
		results: results,
	}, nil
}

// Close closes every open index and the result cache.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, oi := range h.indexes {
		oi.mu.Lock()
		if err := oi.ix.Close(); err != nil {
			h.logger.Warn("close index", zap.String("index", name), zap.Error(err))
		}
		oi.mu.Unlock()
	}
	h.indexes = map[string]*openIndex{}
	h.results.Close()
}

func (h *Handler) index(db, field string) (*openIndex, error) {
	name := db + "/" + field
	h.mu.Lock()
	defer h.mu.Unlock()
	if oi, ok := h.indexes[name]; ok {
		return oi, nil
	}
	dir, err := h.cfg.IndexDirFor(db, "")
	if err != nil {
		return nil, err
	}
	ix, err := database.OpenIndex(dir, db, field, cache.ReadOnly, database.WithLogger(h.logger))
	if err != nil {
		return nil, err
	}
	oi := &openIndex{ix: ix}
	h.indexes[name] = oi
	h.logger.Debug("index opened", zap.String("index", name))
	return oi, nil
}

// lookup resolves a query through the result cache.
func (h *Handler) lookup(db, field, query string) ([]btree.Ref, error) {
	key := db + "\x00" + field + "\x00" + database.Key(query)
	if refs, ok := h.results.Get(key); ok {
		return refs, nil
	}
	oi, err := h.index(db, field)
	if err != nil {
		return nil, err
	}
	oi.mu.Lock()
	refs, err := database.Lookup(oi.ix, query)
	oi.mu.Unlock()
	if err != nil {
		return nil, err
	}
	h.results.Set(key, refs, 1)
	return refs, nil
}

func (h *Handler) databases() ([]string, error) {
	seen := map[string]bool{}
	var names []string
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	dirs := []string{}
	if h.cfg.IndexDir != "" {
		dirs = append(dirs, h.cfg.IndexDir)
	}
	for name, d := range h.cfg.Databases {
		add(name)
		if d.IndexDir != "" {
			dirs = append(dirs, d.IndexDir)
		}
	}
	for _, dir := range dirs {
		found, err := database.ListDatabases(dir)
		if err != nil {
			return nil, err
		}
		for _, n := range found {
			add(n)
		}
	}
	sort.Strings(names)
	return names, nil
}

// fail maps an error onto a status code and a JSON body.
func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, dbxerr.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, errBadQuery):
		status = fiber.StatusBadRequest
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

var errBadQuery = errors.New("bad query")

func badQuery(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), errBadQuery)
}

func parseRecord(c *fiber.Ctx, name string, def uint64) (uint64, error) {
	s := c.Query(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, badQuery("%s: %q is not a record number", name, s)
	}
	return v, nil
}

func SetupRoutes(router fiber.Router, h *Handler) {
	router.Get("/databases", func(c *fiber.Ctx) error {
		names, err := h.databases()
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"databases": names})
	})

	// registered before the :field routes so "entry" is never taken for a field
	router.Get("/databases/:db/entry/:id", func(c *fiber.Ctx) error {
		db := c.Params("db")
		dir, err := h.cfg.IndexDirFor(db, "")
		if err != nil {
			return fail(c, err)
		}
		m, err := database.LoadManifest(dir, db)
		if err != nil {
			return fail(c, err)
		}
		format, err := h.formats.Lookup(m.Format)
		if err != nil {
			return fail(c, err)
		}
		refs, err := h.lookup(db, "id", c.Params("id"))
		if err != nil {
			return fail(c, err)
		}
		if len(refs) == 0 {
			return fail(c, dbxerr.NotFound(errors.New("no such entry"), "%s:%s", db, c.Params("id")))
		}
		entries, err := database.ReadEntries(m, format, refs[:1])
		if err != nil {
			return fail(c, err)
		}
		e := entries[0]
		return c.JSON(fiber.Map{
			"id":          e.ID,
			"accessions":  e.Accessions,
			"version":     e.Version,
			"description": e.Description,
			"text":        e.Text,
		})
	})

	router.Get("/databases/:db/:field/stats", func(c *fiber.Ctx) error {
		oi, err := h.index(c.Params("db"), c.Params("field"))
		if err != nil {
			return fail(c, err)
		}
		p := oi.ix.Params()
		return c.JSON(fiber.Map{
			"secondary":  p.Secondary,
			"compressed": p.Compressed,
			"keys":       p.Count,
			"references": p.Fullcount,
			"level":      p.Level,
			"order":      p.Order,
			"fill":       p.Fill,
			"sorder":     p.Sorder,
			"sfill":      p.Sfill,
			"pagesize":   p.PriPageSize,
			"pages":      p.PriPageCount,
		})
	})

	router.Get("/databases/:db/:field/search", func(c *fiber.Ctx) error {
		key := c.Query("key")
		if key == "" {
			return fail(c, badQuery("key is required"))
		}
		if database.IsPattern(key) {
			return fail(c, badQuery("search takes an exact key, use match for patterns"))
		}
		refs, err := h.lookup(c.Params("db"), c.Params("field"), key)
		if err != nil {
			return fail(c, err)
		}
		if refs == nil {
			refs = []btree.Ref{}
		}
		return c.JSON(fiber.Map{"key": database.Key(key), "refs": refs})
	})

	router.Get("/databases/:db/:field/range", func(c *fiber.Ctx) error {
		lo, err := parseRecord(c, "min", 1)
		if err != nil {
			return fail(c, err)
		}
		hi, err := parseRecord(c, "max", lo)
		if err != nil {
			return fail(c, err)
		}
		if lo > hi {
			return fail(c, badQuery("min %d exceeds max %d", lo, hi))
		}
		oi, err := h.index(c.Params("db"), c.Params("field"))
		if err != nil {
			return fail(c, err)
		}
		oi.mu.Lock()
		hits, err := oi.ix.Tree().Range(lo, hi)
		oi.mu.Unlock()
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"hits": hits})
	})

	router.Get("/databases/:db/:field/match", func(c *fiber.Ctx) error {
		pattern := c.Query("pattern")
		if pattern == "" {
			return fail(c, badQuery("pattern is required"))
		}
		oi, err := h.index(c.Params("db"), c.Params("field"))
		if err != nil {
			return fail(c, err)
		}
		keys := []string{}
		oi.mu.Lock()
		err = oi.ix.Tree().Match(database.Key(pattern), func(e *btree.Entry) error {
			keys = append(keys, e.Key)
			return nil
		})
		oi.mu.Unlock()
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"keys": keys})
	})
}
