package dbxerr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestFromOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing")
	_, err := os.Open(path)
	err = FromOpen(err, path)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing file: got %v, want ErrNotFound", err)
	}
	if errors.Is(err, ErrIO) {
		t.Fatalf("missing file also marked ErrIO")
	}
	if !os.IsNotExist(errors.UnwrapAll(err)) {
		t.Fatalf("cause lost: %v", err)
	}
}

func TestMarksSurviveWrapping(t *testing.T) {
	err := errors.Wrap(Format("bad header on page %d", 3), "open index")
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("got %v, want ErrFormat", err)
	}
	err = errors.Wrapf(ReadOnly("cannot insert"), "database '%s'", "db")
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("got %v, want ErrReadOnly", err)
	}
	err = IO(errors.New("disk full"), "flush %s", "x")
	if !errors.Is(err, ErrIO) || errors.Is(err, ErrFormat) {
		t.Fatalf("wrong class for %v", err)
	}
}
