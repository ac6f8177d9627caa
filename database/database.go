// Package database ties a flat-file database to its indexes: the manifest
// describing the data files, the index handles, index building and entry
// retrieval.
package database

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dbx/dbxerr"

	"github.com/cockroachdb/errors"
)

// Manifest records what a set of indexes was built from.
type Manifest struct {
	Name    string   `json:"name"`
	Format  string   `json:"format"`
	Files   []string `json:"files"`
	Fields  []string `json:"fields"`
	Entries uint64   `json:"entries"`
}

// ManifestPath is the manifest of db in dir: <db>.ent.
func ManifestPath(dir, db string) string {
	return filepath.Join(dir, db+".ent")
}

// HasField reports whether field was indexed.
func (m *Manifest) HasField(field string) bool {
	for _, f := range m.Fields {
		if f == field {
			return true
		}
	}
	return false
}

func (m *Manifest) Save(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal manifest")
	}
	path := ManifestPath(dir, m.Name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return dbxerr.IO(err, "write manifest %s", path)
	}
	return nil
}

func LoadManifest(dir, db string) (*Manifest, error) {
	path := ManifestPath(dir, db)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dbxerr.NotFound(err, "database %q has no manifest in %s", db, dir)
		}
		return nil, dbxerr.IO(err, "read manifest %s", path)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to parse manifest %s", path), dbxerr.ErrFormat)
	}
	return &m, nil
}

// ListDatabases returns the databases that have a manifest in dir.
func ListDatabases(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, dbxerr.IO(err, "list %s", dir)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".ent") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".ent"))
	}
	sort.Strings(names)
	return names, nil
}
