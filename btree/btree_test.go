package btree

import (
	"bytes"
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"dbx/cache"
	"dbx/dbxerr"
	"dbx/params"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dir string
	pri *cache.Cache
	sec *cache.Cache
	t   *Tree
}

func smallParams(compressed bool) *params.Params {
	p, err := DefaultParams(Layout{KeyLimit: 12, Refcount: 1, PageSize: 512, SecPageSize: 256, CacheSize: 4, Sorder: 2, Compressed: compressed})
	if err != nil {
		panic(err)
	}
	return p
}

func newFixture(t *testing.T, name string, p *params.Params) *fixture {
	t.Helper()
	dir := t.TempDir()
	pri, err := cache.Open(cache.Options{Path: filepath.Join(dir, name+".xid"), Mode: cache.ReadWrite, PageSize: p.PriPageSize, CacheSize: p.PriCacheSize, Create: true})
	require.NoError(t, err)
	sec, err := cache.Open(cache.Options{Path: filepath.Join(dir, name+".yid"), Mode: cache.ReadWrite, PageSize: p.SecPageSize, CacheSize: p.SecCacheSize, Create: true})
	require.NoError(t, err)
	tree, err := Create(pri, sec, p, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		pri.Close()
		sec.Close()
	})
	return &fixture{dir: dir, pri: pri, sec: sec, t: tree}
}

func ref(record uint64) Ref {
	return Ref{Record: record, File: 1, Offset: record * 100, Extra: []uint64{record * 7}}
}

func keyFor(i int) string {
	return fmt.Sprintf("K%05d", i)
}

func TestDefaultParamsFitLayout(t *testing.T) {
	p := smallParams(false)
	require.GreaterOrEqual(t, p.Fill, 2)
	require.GreaterOrEqual(t, p.Order, 3)
	require.GreaterOrEqual(t, p.Sfill, 1)
	require.NoError(t, CheckLayout(p))

	p.Fill *= 4
	require.True(t, errors.Is(CheckLayout(p), dbxerr.ErrFormat))

	_, err := DefaultParams(Layout{KeyLimit: 400, PageSize: 256, CacheSize: 1})
	require.Error(t, err)
}

func TestInsertSearchRoundTrip(t *testing.T) {
	f := newFixture(t, "rt", smallParams(false))
	want := map[string][]Ref{}

	rng := rand.New(rand.NewSource(1))
	for _, i := range rng.Perm(500) {
		k := keyFor(i)
		r := ref(uint64(i + 1))
		require.NoError(t, f.t.Insert(k, r))
		want[k] = append(want[k], r)
	}
	// duplicates spill past Sorder into the overflow chain
	for i := 0; i < 40; i++ {
		r := ref(uint64(1000 + i))
		require.NoError(t, f.t.Insert(keyFor(7), r))
		want[keyFor(7)] = append(want[keyFor(7)], r)
	}

	for k, refs := range want {
		got, err := f.t.Search(k)
		require.NoError(t, err)
		require.Equal(t, refs, got, "key %s", k)
	}

	got, err := f.t.Search("NOPE")
	require.NoError(t, err)
	require.Empty(t, got)

	require.EqualValues(t, 500, f.t.Params().Count)
	require.EqualValues(t, 540, f.t.Params().Fullcount)
	require.Greater(t, f.t.Params().Level, 0)
	require.NoError(t, f.t.Verify())
}

func TestInsertSurvivesReopen(t *testing.T) {
	p := smallParams(false)
	f := newFixture(t, "reopen", p)
	for i := 0; i < 200; i++ {
		require.NoError(t, f.t.Insert(keyFor(i), ref(uint64(i+1))))
	}
	require.NoError(t, f.pri.Close())
	require.NoError(t, f.sec.Close())

	pri, err := cache.Open(cache.Options{Path: filepath.Join(f.dir, "reopen.xid"), Mode: cache.ReadOnly, PageSize: p.PriPageSize, CacheSize: 2})
	require.NoError(t, err)
	defer pri.Close()
	sec, err := cache.Open(cache.Options{Path: filepath.Join(f.dir, "reopen.yid"), Mode: cache.ReadOnly, PageSize: p.SecPageSize, CacheSize: 2})
	require.NoError(t, err)
	defer sec.Close()

	tree, err := Open(pri, sec, p, nil)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		got, err := tree.Search(keyFor(i))
		require.NoError(t, err)
		require.Equal(t, []Ref{ref(uint64(i + 1))}, got)
	}
	require.NoError(t, tree.Verify())
}

func TestOpenRejectsMismatchedParams(t *testing.T) {
	p := smallParams(false)
	f := newFixture(t, "meta", p)
	require.NoError(t, f.pri.Flush())
	require.NoError(t, f.sec.Flush())

	q := *p
	q.Refcount = 3
	_, err := Open(f.pri, f.sec, &q, nil)
	require.True(t, errors.Is(err, dbxerr.ErrFormat), "got %v", err)

	q = *p
	q.Compressed = true
	_, err = Open(f.pri, f.sec, &q, nil)
	require.True(t, errors.Is(err, dbxerr.ErrFormat), "got %v", err)
}

func TestKeyTruncationAndEmptyKey(t *testing.T) {
	f := newFixture(t, "trunc", smallParams(false))
	long := strings.Repeat("A", 30)
	require.NoError(t, f.t.Insert(long, ref(1)))

	got, err := f.t.Search(long[:12])
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = f.t.Search(long + "ZZZ")
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.Error(t, f.t.Insert("", ref(2)))
	require.Error(t, f.t.Insert("B", Ref{Record: 1}))
}

func TestOrderingAndCapacity(t *testing.T) {
	p := smallParams(false)
	f := newFixture(t, "order", p)
	rng := rand.New(rand.NewSource(42))
	var keys []string
	for _, i := range rng.Perm(800) {
		k := keyFor(i)
		keys = append(keys, k)
		require.NoError(t, f.t.Insert(k, ref(uint64(i+1))))
	}
	sort.Strings(keys)

	var walked []string
	require.NoError(t, f.t.Walk(func(e *Entry) error {
		walked = append(walked, e.Key)
		return nil
	}))
	require.Equal(t, keys, walked)
	require.NoError(t, f.t.Verify())

	var buf bytes.Buffer
	require.NoError(t, f.t.Dump(&buf))
	require.Contains(t, buf.String(), "internal")
}

func TestSeekAndMatch(t *testing.T) {
	f := newFixture(t, "match", smallParams(false))
	for i, k := range []string{"ABC1", "ABC2", "ABD1", "B", "XABC", "ABCDEF"} {
		require.NoError(t, f.t.Insert(k, ref(uint64(i+1))))
	}

	it := f.t.Seek("ABD")
	require.True(t, it.Valid())
	require.Equal(t, "ABD1", it.Entry().Key)
	require.True(t, it.Next())
	require.Equal(t, "B", it.Entry().Key)

	var matched []string
	require.NoError(t, f.t.Match("ABC?", func(e *Entry) error {
		matched = append(matched, e.Key)
		return nil
	}))
	require.Equal(t, []string{"ABC1", "ABC2"}, matched)

	matched = nil
	require.NoError(t, f.t.Match("*ABC*", func(e *Entry) error {
		matched = append(matched, e.Key)
		return nil
	}))
	require.Equal(t, []string{"ABC1", "ABC2", "ABCDEF", "XABC"}, matched)
}

type brokenWriter struct{}

func (brokenWriter) Write(p []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestDumpReportsWriteFailure(t *testing.T) {
	f := newFixture(t, "dump", smallParams(false))
	for i := 0; i < 50; i++ {
		require.NoError(t, f.t.Insert(keyFor(i), ref(uint64(i+1))))
	}
	err := f.t.Dump(brokenWriter{})
	require.ErrorContains(t, err, "broken pipe")
}

func TestMatchBeyondKeyLimit(t *testing.T) {
	f := newFixture(t, "longmatch", smallParams(false))
	require.NoError(t, f.t.Insert("ABCDEFGHIJKLMNOPQ", ref(1)))
	require.NoError(t, f.t.Insert("ABCDEFGHIJKX", ref(2)))

	collect := func(pattern string) []string {
		var keys []string
		require.NoError(t, f.t.Match(pattern, func(e *Entry) error {
			keys = append(keys, e.Key)
			return nil
		}))
		return keys
	}
	require.Equal(t, []string{"ABCDEFGHIJKL"}, collect("ABCDEFGHIJKLMNOPQ*"))
	require.Equal(t, []string{"ABCDEFGHIJKL"}, collect("ABCDEFGHIJKLMNOP?"))
	require.Equal(t, []string{"ABCDEFGHIJKL"}, collect("ABCDEFGHIJKL"))
	require.Equal(t, []string{"ABCDEFGHIJKL", "ABCDEFGHIJKX"}, collect("ABCDEFGHIJK*"))

	got, err := f.t.Search("ABCDEFGHIJKLMNOPQ")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestRangeDump(t *testing.T) {
	f := newFixture(t, "range", smallParams(false))
	for i := 1; i <= 100; i++ {
		require.NoError(t, f.t.Insert(keyFor(i), ref(uint64(i))))
	}
	// the same reference twice is reported once
	require.NoError(t, f.t.Insert(keyFor(15), ref(15)))

	var buf bytes.Buffer
	n, err := f.t.RangeDump(10, 20, &buf)
	require.NoError(t, err)
	require.Equal(t, 11, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 11)
	for i, line := range lines {
		rec := 10 + i
		require.Equal(t, fmt.Sprintf("%s\t%d\t1\t%d\t%d", keyFor(rec), rec, rec*100, rec*7), line)
	}

	_, err = f.t.Range(20, 10)
	require.Error(t, err)
}

func TestCompressPreservesContent(t *testing.T) {
	src := newFixture(t, "src", smallParams(false))
	rng := rand.New(rand.NewSource(7))
	for _, i := range rng.Perm(600) {
		require.NoError(t, src.t.Insert(keyFor(i), ref(uint64(i+1))))
	}
	for i := 0; i < 60; i++ {
		require.NoError(t, src.t.Insert(keyFor(3), ref(uint64(5000-i))))
	}

	dst := newFixture(t, "dst", smallParams(true))
	require.NoError(t, src.t.Compress(dst.t))
	require.NoError(t, dst.t.Verify())
	require.Equal(t, src.t.Params().Count, dst.t.Params().Count)
	require.Equal(t, src.t.Params().Fullcount, dst.t.Params().Fullcount)

	require.NoError(t, src.t.Walk(func(e *Entry) error {
		want, err := src.t.Refs(e)
		require.NoError(t, err)
		got, err := dst.t.Search(e.Key)
		require.NoError(t, err)
		require.Equal(t, want, got, "key %s", e.Key)
		return nil
	}))
	require.Less(t, dst.pri.PageCount(), src.pri.PageCount())

	// compressed trees still accept inserts
	require.NoError(t, dst.t.Insert("ZZZ", ref(9999)))
	require.NoError(t, dst.t.Verify())

	again := newFixture(t, "again", smallParams(true))
	err := dst.t.Compress(again.t)
	require.True(t, errors.Is(err, dbxerr.ErrAlreadyCompressed), "got %v", err)
}

func TestCompressEmptyAndSingleLeaf(t *testing.T) {
	for _, n := range []int{0, 3} {
		src := newFixture(t, "small", smallParams(false))
		for i := 0; i < n; i++ {
			require.NoError(t, src.t.Insert(keyFor(i), ref(uint64(i+1))))
		}
		dst := newFixture(t, "smallc", smallParams(true))
		require.NoError(t, src.t.Compress(dst.t))
		require.Equal(t, 0, dst.t.Params().Level)
		require.EqualValues(t, 2, dst.pri.PageCount())
		require.NoError(t, dst.t.Verify())
	}
}

func TestShortestSeparator(t *testing.T) {
	require.Equal(t, "B", shortestSeparator("AZZ", "BCD"))
	require.Equal(t, "ABD", shortestSeparator("ABC", "ABDE"))
	require.Equal(t, "ABC1", shortestSeparator("ABC", "ABC1"))
}

func TestChecksumDetectsCorruption(t *testing.T) {
	f := newFixture(t, "corrupt", smallParams(false))
	require.NoError(t, f.t.Insert("KEY", ref(1)))
	page, err := f.pri.FetchPage(rootPage)
	require.NoError(t, err)
	page.Data[headerSize+3] ^= 0xff

	_, err = f.t.Search("KEY")
	require.True(t, errors.Is(err, dbxerr.ErrFormat), "got %v", err)
}
