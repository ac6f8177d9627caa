// Package flatfile parses the entry-oriented text databases that the
// indexes point into.
package flatfile

import (
	"bufio"
	"io"
	"strings"
	"unicode"

	"dbx/registry"

	"github.com/cockroachdb/errors"
)

// Entry is one database entry together with the fields that can be indexed.
type Entry struct {
	Offset      int64 // byte offset of the first line in its file
	ID          string
	Accessions  []string
	Version     string
	Keywords    []string
	Description string
	Organisms   []string
	Text        string
}

// Fields lists the index field names an Entry can supply.
var Fields = []string{"id", "ac", "sv", "kw", "des", "org"}

// Field returns the values of the named index field.
func (e *Entry) Field(name string) []string {
	switch name {
	case "id":
		if e.ID == "" {
			return nil
		}
		return []string{e.ID}
	case "ac":
		return e.Accessions
	case "sv":
		if e.Version == "" {
			return nil
		}
		return []string{e.Version}
	case "kw":
		return e.Keywords
	case "des":
		return words(e.Description)
	case "org":
		return e.Organisms
	}
	return nil
}

// IsField reports whether name is a known index field.
func IsField(name string) bool {
	for _, f := range Fields {
		if f == name {
			return true
		}
	}
	return false
}

// IsKeywordField reports whether the field is indexed as keywords rather
// than identifiers.
func IsKeywordField(name string) bool {
	switch name {
	case "kw", "des", "org":
		return true
	}
	return false
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Format parses one flat-file layout.
type Format interface {
	Name() string
	// Parse calls fn for every entry of r in order. Returning ErrStop from
	// fn ends the scan without error.
	Parse(r io.Reader, fn func(e *Entry) error) error
}

// ErrStop ends a Parse early.
var ErrStop = errors.New("stop parsing")

// lineReader yields lines with the byte offset of their start.
type lineReader struct {
	r      *bufio.Reader
	offset int64
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// next returns the next line including its terminator, and its offset.
func (lr *lineReader) next() (string, int64, error) {
	line, err := lr.r.ReadString('\n')
	start := lr.offset
	lr.offset += int64(len(line))
	if err == io.EOF && line != "" {
		return line, start, nil
	}
	return line, start, err
}

// ReadAt parses the single entry that starts at offset in r.
func ReadAt(f Format, r io.ReaderAt, offset int64) (*Entry, error) {
	var found *Entry
	sr := io.NewSectionReader(r, offset, 1<<62)
	err := f.Parse(sr, func(e *Entry) error {
		found = e
		return ErrStop
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errors.Newf("no %s entry at offset %d", f.Name(), offset)
	}
	found.Offset += offset
	return found, nil
}

// NewRegistry returns a registry holding every built-in format.
func NewRegistry() (*registry.Registry[Format], error) {
	r := registry.New[Format]()
	for _, f := range []Format{Swiss{}, EMBL{}, Fasta{}} {
		if err := r.Register(f.Name(), f); err != nil {
			return nil, err
		}
	}
	return r, nil
}
