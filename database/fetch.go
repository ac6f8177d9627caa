package database

import (
	"os"
	"sort"
	"strings"

	"dbx/btree"
	"dbx/cache"
	"dbx/dbxerr"
	"dbx/flatfile"
	"dbx/registry"

	"github.com/cockroachdb/errors"
)

// IsPattern reports whether a query uses wildcards.
func IsPattern(q string) bool {
	return strings.ContainsAny(q, "*?")
}

// Lookup resolves a query against an open index: an exact key, or a
// wildcard pattern over every key. References are returned in record order
// without duplicates.
func Lookup(ix *Index, query string) ([]btree.Ref, error) {
	key := Key(query)
	if key == "" {
		return nil, errors.New("empty query")
	}

	var refs []btree.Ref
	if IsPattern(key) {
		err := ix.Tree().Match(key, func(e *btree.Entry) error {
			all, err := ix.Tree().Refs(e)
			if err != nil {
				return err
			}
			refs = append(refs, all...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		if refs, err = ix.Search(key); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Record < refs[j].Record })
	out := refs[:0]
	for i, r := range refs {
		if i > 0 && r.Record == refs[i-1].Record && r.File == refs[i-1].File && r.Offset == refs[i-1].Offset {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Fetch returns the entries of db that query matches in the field index.
func Fetch(formats *registry.Registry[flatfile.Format], dir, db, field, query string, opts ...Option) ([]*flatfile.Entry, error) {
	m, err := LoadManifest(dir, db)
	if err != nil {
		return nil, err
	}
	if !m.HasField(field) {
		return nil, errors.Mark(errors.Newf("database %q has no %s index", db, field), dbxerr.ErrNotFound)
	}
	format, err := formats.Lookup(m.Format)
	if err != nil {
		return nil, err
	}

	ix, err := OpenIndex(dir, db, field, cache.ReadOnly, opts...)
	if err != nil {
		return nil, err
	}
	defer ix.Close()

	refs, err := Lookup(ix, query)
	if err != nil {
		return nil, err
	}
	return ReadEntries(m, format, refs)
}

// ReadEntries loads the entries refs point at from the manifest's data files.
func ReadEntries(m *Manifest, format flatfile.Format, refs []btree.Ref) ([]*flatfile.Entry, error) {
	open := map[uint32]*os.File{}
	defer func() {
		for _, f := range open {
			f.Close()
		}
	}()

	entries := make([]*flatfile.Entry, 0, len(refs))
	for _, r := range refs {
		if r.File == 0 || int(r.File) > len(m.Files) {
			return nil, dbxerr.Format("reference to data file %d, database has %d", r.File, len(m.Files))
		}
		f, ok := open[r.File]
		if !ok {
			path := m.Files[r.File-1]
			var err error
			if f, err = os.Open(path); err != nil {
				return nil, dbxerr.FromOpen(err, path)
			}
			open[r.File] = f
		}
		e, err := flatfile.ReadAt(format, f, int64(r.Offset))
		if err != nil {
			return nil, errors.Wrapf(err, "record %d", r.Record)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
