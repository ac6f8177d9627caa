package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"dbx/btree"
	"dbx/dbxerr"
	"dbx/flatfile"
	"dbx/logger"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Key limits and inline reference counts for new indexes.
const (
	IDLimit       = 15
	KeywordLimit  = 15
	idSorder      = 1
	keywordSorder = 4
)

// Key normalises an indexed value or a query: keys are case-insensitive.
func Key(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

type BuildOptions struct {
	Dir        string
	Name       string
	Format     flatfile.Format
	Files      []string
	Fields     []string
	PageSize   int
	CacheSize  int
	Compressed bool
	Logger     *zap.Logger
}

// Build parses every data file and creates one index per field plus the
// manifest. Cancelling ctx stops between entries; the partial indexes are
// left for the caller to remove.
func Build(ctx context.Context, o BuildOptions) (*Manifest, error) {
	log := logger.OrNop(o.Logger)
	if o.Name == "" {
		return nil, errors.New("database name is required")
	}
	if o.Format == nil {
		return nil, errors.New("database format is required")
	}
	if len(o.Files) == 0 {
		return nil, errors.Newf("no data files given for %s", o.Name)
	}
	if len(o.Fields) == 0 {
		return nil, errors.Newf("no fields given for %s", o.Name)
	}

	files := make([]string, len(o.Files))
	for i, f := range o.Files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve %s", f)
		}
		files[i] = abs
	}

	indexes := make(map[string]*Index, len(o.Fields))
	closeAll := func() {
		for _, ix := range indexes {
			ix.Close()
		}
	}
	for _, field := range o.Fields {
		if !flatfile.IsField(field) {
			closeAll()
			return nil, errors.Newf("unknown field %q (known: %s)", field, strings.Join(flatfile.Fields, ", "))
		}
		if _, dup := indexes[field]; dup {
			continue
		}
		layout := btree.Layout{KeyLimit: IDLimit, PageSize: o.PageSize, CacheSize: o.CacheSize, Sorder: idSorder}
		if flatfile.IsKeywordField(field) {
			layout.Secondary = true
			layout.KeyLimit = KeywordLimit
			layout.Sorder = keywordSorder
		}
		p, err := btree.DefaultParams(layout)
		if err != nil {
			closeAll()
			return nil, err
		}
		ix, err := CreateIndex(o.Dir, o.Name, field, p, WithLogger(log))
		if err != nil {
			closeAll()
			return nil, err
		}
		indexes[field] = ix
	}

	var record uint64
	for i, path := range files {
		f, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, dbxerr.FromOpen(err, path)
		}
		err = o.Format.Parse(f, func(e *flatfile.Entry) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			record++
			ref := btree.Ref{Record: record, File: uint32(i + 1), Offset: uint64(e.Offset)}
			for field, ix := range indexes {
				seen := map[string]bool{}
				for _, v := range e.Field(field) {
					key := Key(v)
					if key == "" || seen[key] {
						continue
					}
					seen[key] = true
					if err := ix.Insert(key, ref); err != nil {
						return errors.Wrapf(err, "entry %d field %s", record, field)
					}
				}
			}
			return nil
		})
		f.Close()
		if err != nil {
			closeAll()
			return nil, errors.Wrapf(err, "index %s", path)
		}
		log.Info("data file indexed", zap.String("file", path), zap.Uint64("entries", record))
	}

	var closeErr error
	for _, field := range o.Fields {
		ix, ok := indexes[field]
		if !ok {
			continue
		}
		delete(indexes, field)
		if o.Compressed {
			if err := ix.MarkCompress(); err != nil && closeErr == nil {
				closeErr = err
			}
		}
		if err := ix.Close(); err != nil && closeErr == nil {
			closeErr = errors.Wrapf(err, "field %s", field)
		}
	}
	if closeErr != nil {
		return nil, closeErr
	}

	m := &Manifest{Name: o.Name, Format: o.Format.Name(), Files: files, Fields: o.Fields, Entries: record}
	if err := m.Save(o.Dir); err != nil {
		return nil, err
	}
	log.Info("database built",
		zap.String("database", o.Name),
		zap.Uint64("entries", record),
		zap.Strings("fields", o.Fields))
	return m, nil
}
