// Package params reads and writes the parameter block kept next to every
// index file pair.
//
// The block is a small text file, one "Name value" pair per line, named
// <db>.px<field> inside the index directory.
package params

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dbx/dbxerr"
	"dbx/internal/sys"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Params is the persisted per-index metadata.
type Params struct {
	Secondary    bool   // keyword index rather than identifier index
	Compressed   bool   // pages use the packed encoding
	Kwlimit      int    // max keyword length
	Idlimit      int    // max identifier length
	Refcount     int    // extra reference-file offsets per record reference
	PriPageSize  int    // primary page size in bytes
	SecPageSize  int    // secondary page size in bytes
	PriCacheSize int    // primary cache capacity in pages
	SecCacheSize int    // secondary cache capacity in pages
	PriPageCount uint64 // pages in the primary file
	SecPageCount uint64 // pages in the secondary file
	Order        int    // max children of an internal node
	Fill         int    // max entries per leaf bucket
	Level        int    // tree height above the leaves
	Sorder       int    // references held inline per entry
	Sfill        int    // references per secondary page
	Count        uint64 // distinct keys
	Fullcount    uint64 // references including duplicates
	Generation   uint64 // suffix of the live primary/secondary files
}

// field binds a parameter name to its slot in Params.
type field struct {
	name string
	get  func(p *Params) uint64
	set  func(p *Params, v uint64)
}

func boolField(name string, ptr func(p *Params) *bool) field {
	return field{
		name: name,
		get: func(p *Params) uint64 {
			if *ptr(p) {
				return 1
			}
			return 0
		},
		set: func(p *Params, v uint64) { *ptr(p) = v != 0 },
	}
}

func intField(name string, ptr func(p *Params) *int) field {
	return field{
		name: name,
		get:  func(p *Params) uint64 { return uint64(*ptr(p)) },
		set:  func(p *Params, v uint64) { *ptr(p) = int(v) },
	}
}

func countField(name string, ptr func(p *Params) *uint64) field {
	return field{
		name: name,
		get:  func(p *Params) uint64 { return *ptr(p) },
		set:  func(p *Params, v uint64) { *ptr(p) = v },
	}
}

// fields is the on-disk order.
var fields = []field{
	boolField("Secondary", func(p *Params) *bool { return &p.Secondary }),
	boolField("Compressed", func(p *Params) *bool { return &p.Compressed }),
	intField("Kwlimit", func(p *Params) *int { return &p.Kwlimit }),
	intField("Idlimit", func(p *Params) *int { return &p.Idlimit }),
	intField("Refcount", func(p *Params) *int { return &p.Refcount }),
	intField("Pripagesize", func(p *Params) *int { return &p.PriPageSize }),
	intField("Secpagesize", func(p *Params) *int { return &p.SecPageSize }),
	intField("Pricachesize", func(p *Params) *int { return &p.PriCacheSize }),
	intField("Seccachesize", func(p *Params) *int { return &p.SecCacheSize }),
	countField("Pripagecount", func(p *Params) *uint64 { return &p.PriPageCount }),
	countField("Secpagecount", func(p *Params) *uint64 { return &p.SecPageCount }),
	intField("Order", func(p *Params) *int { return &p.Order }),
	intField("Fill", func(p *Params) *int { return &p.Fill }),
	intField("Level", func(p *Params) *int { return &p.Level }),
	intField("Sorder", func(p *Params) *int { return &p.Sorder }),
	intField("Sfill", func(p *Params) *int { return &p.Sfill }),
	countField("Count", func(p *Params) *uint64 { return &p.Count }),
	countField("Fullcount", func(p *Params) *uint64 { return &p.Fullcount }),
	countField("Generation", func(p *Params) *uint64 { return &p.Generation }),
}

// Path returns the parameter block path for dbName/field under dir.
func Path(dbName, field, dir string) string {
	return filepath.Join(dir, dbName+".px"+field)
}

// KeyLimit is the key length bound that applies to this index.
func (p *Params) KeyLimit() int {
	if p.Secondary {
		return p.Kwlimit
	}
	return p.Idlimit
}

// Validate checks the structural constraints every open index relies on.
func (p *Params) Validate() error {
	switch {
	case p.PriPageSize <= 0 || p.SecPageSize <= 0:
		return dbxerr.Format("page size must be positive (primary %d, secondary %d)", p.PriPageSize, p.SecPageSize)
	case p.PriCacheSize < 1 || p.SecCacheSize < 1:
		return dbxerr.Format("cache size must be at least one page (primary %d, secondary %d)", p.PriCacheSize, p.SecCacheSize)
	case p.Order < 3:
		return dbxerr.Format("order %d is below 3", p.Order)
	case p.Fill < 2:
		return dbxerr.Format("fill %d is below 2", p.Fill)
	case p.Sorder < 1:
		return dbxerr.Format("sorder %d is below 1", p.Sorder)
	case p.Sfill < 1:
		return dbxerr.Format("sfill %d is below 1", p.Sfill)
	case p.KeyLimit() < 1:
		return dbxerr.Format("key limit %d is below 1", p.KeyLimit())
	case p.Refcount < 0:
		return dbxerr.Format("refcount %d is negative", p.Refcount)
	}
	return nil
}

// Marshal renders the block in its on-disk text form.
func (p *Params) Marshal() []byte {
	var buf bytes.Buffer
	for _, f := range fields {
		fmt.Fprintf(&buf, "%-13s%d\n", f.name, f.get(p))
	}
	return buf.Bytes()
}

// Unmarshal parses the text form. Every known name must be present.
func Unmarshal(data []byte) (*Params, error) {
	values := make(map[string]string, len(fields))
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		parts := strings.Fields(text)
		if len(parts) != 2 {
			return nil, dbxerr.Format("line %d: expected \"Name value\", got %q", line, text)
		}
		values[parts[0]] = parts[1]
	}
	if err := sc.Err(); err != nil {
		return nil, dbxerr.Format("scan parameter block: %v", err)
	}

	p := &Params{}
	for _, f := range fields {
		raw, ok := values[f.name]
		if !ok {
			return nil, dbxerr.Format("missing parameter %s", f.name)
		}
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, dbxerr.Format("parameter %s: non-numeric value %q", f.name, raw)
		}
		f.set(p, v)
	}
	return p, nil
}

// ReadParams loads the parameter block of dbName/field from dir.
func ReadParams(dbName, field, dir string) (*Params, error) {
	path := Path(dbName, field, dir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Mark(dbxerr.NotFound(err, "parameter block for %s field %s", dbName, field), dbxerr.ErrFormat)
		}
		return nil, dbxerr.IO(err, "read %s", path)
	}
	p, err := Unmarshal(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return p, nil
}

// WriteParams replaces the parameter block of dbName/field in dir. The new
// content is written to a temporary file first and renamed into place; the
// rename is durable once WriteParams returns.
func WriteParams(p *Params, dbName, field, dir string) error {
	path := Path(dbName, field, dir)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return dbxerr.IO(err, "create %s", tmp)
	}
	if _, err := f.Write(p.Marshal()); err != nil {
		f.Close()
		os.Remove(tmp)
		return dbxerr.IO(err, "write %s", tmp)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return dbxerr.IO(err, "sync %s", tmp)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return dbxerr.IO(err, "close %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return dbxerr.IO(err, "rename %s", tmp)
	}
	if err := sys.SyncDir(dir); err != nil {
		return dbxerr.IO(err, "sync %s", dir)
	}
	return nil
}
