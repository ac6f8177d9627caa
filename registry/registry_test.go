package registry

import (
	"reflect"
	"testing"

	"dbx/dbxerr"

	"github.com/cockroachdb/errors"
)

func TestRegisterLookup(t *testing.T) {
	r := New[int]()
	if err := r.Register("b", 2); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register("a", 1); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register("a", 3); err == nil {
		t.Fatal("duplicate name accepted")
	}
	if err := r.Register("", 3); err == nil {
		t.Fatal("empty name accepted")
	}

	v, err := r.Lookup("a")
	if err != nil || v != 1 {
		t.Fatalf("Lookup(a) = %d, %v", v, err)
	}
	if _, err := r.Lookup("zzz"); !errors.Is(err, dbxerr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Names = %v", got)
	}
}

func TestShutdown(t *testing.T) {
	r := New[string]()
	if err := r.Register("x", "y"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	r.Shutdown()
	if _, err := r.Lookup("x"); err == nil {
		t.Error("lookup succeeded after shutdown")
	}
	if err := r.Register("x", "y"); err == nil {
		t.Error("register succeeded after shutdown")
	}
	if len(r.Names()) != 0 {
		t.Error("names survived shutdown")
	}
}
