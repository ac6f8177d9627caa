package dbcli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dbx/dbxerr"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

const sample = `ID   CYC_HUMAN               Reviewed;         105 AA.
AC   P99999; P00001;
DT   23-JAN-2007, sequence version 2.
DE   Cytochrome c.
OS   Homo sapiens (Human).
KW   Apoptosis; Heme.
//
ID   CYC_MOUSE               Reviewed;         105 AA.
AC   P62897;
DT   01-JAN-1990, sequence version 1.
DE   Cytochrome c, somatic.
OS   Mus musculus (Mouse).
KW   Heme.
//
`

type workspace struct {
	config   string
	indexDir string
	data     string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	ws := &workspace{
		config:   filepath.Join(dir, "dbx.yaml"),
		indexDir: filepath.Join(dir, "index"),
		data:     filepath.Join(dir, "sprot.dat"),
	}
	require.NoError(t, os.WriteFile(ws.data, []byte(sample), 0644))
	cfg := "indexdir: " + ws.indexDir + "\npagesize: 1024\ncachesize: 8\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(ws.config, []byte(cfg), 0644))
	return ws
}

func (ws *workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", ws.config}, args...))
	err := root.Execute()
	return out.String(), err
}

func (ws *workspace) build(t *testing.T) {
	t.Helper()
	out, err := ws.run(t, "dbxflat", "sprot", "--format", "swiss", "--fields", "id,ac,kw", ws.data)
	require.NoError(t, err)
	require.Contains(t, out, "Indexed 2 entries")
}

func TestFlatAndFetch(t *testing.T) {
	ws := newWorkspace(t)
	ws.build(t)

	out, err := ws.run(t, "dbxfetch", "sprot:cyc_mouse")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "ID   CYC_MOUSE"), out)

	out, err = ws.run(t, "dbxfetch", "--field", "kw", "sprot:heme")
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(out, "//\n"))

	_, err = ws.run(t, "dbxfetch", "sprot:NOSUCH")
	require.Error(t, err)
	require.Contains(t, err.Error(), "database 'sprot' field 'id'")
}

func TestStat(t *testing.T) {
	ws := newWorkspace(t)
	ws.build(t)

	out, err := ws.run(t, "dbxstat", "sprot", "--idtype", "kw", "--minimum", "2", "--maximum", "2", "--verify")
	require.NoError(t, err)
	require.Contains(t, out, "Index:        kw (keyword)")
	require.Contains(t, out, "HEME\t2\t1\t")
	require.NotContains(t, out, "APOPTOSIS")

	report := filepath.Join(t.TempDir(), "stat.txt")
	out, err = ws.run(t, "dbxstat", "sprot", "--outfile", report)
	require.NoError(t, err)
	require.Empty(t, out)
	data, err := os.ReadFile(report)
	require.NoError(t, err)
	require.Contains(t, string(data), "CYC_HUMAN\t1\t1\t0")
	require.Contains(t, string(data), "CYC_MOUSE\t2\t1\t")
}

func TestCompressOnce(t *testing.T) {
	ws := newWorkspace(t)
	ws.build(t)

	out, err := ws.run(t, "dbxcompress", "sprot", "--field", "kw")
	require.NoError(t, err)
	require.Contains(t, out, "Compressed sprot field kw")

	report := filepath.Join(t.TempDir(), "compress.txt")
	_, err = ws.run(t, "dbxcompress", "sprot", "--field", "kw", "--outfile", report)
	require.True(t, errors.Is(err, dbxerr.ErrAlreadyCompressed), "got %v", err)
	_, err = os.Stat(report)
	require.True(t, os.IsNotExist(err), "report written for a failed compression")

	out, err = ws.run(t, "dbxfetch", "--field", "kw", "sprot:apoptosis")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "ID   CYC_HUMAN"), out)
}

func TestMissingIndex(t *testing.T) {
	ws := newWorkspace(t)
	report := filepath.Join(t.TempDir(), "compress.txt")
	_, err := ws.run(t, "dbxcompress", "nosuch", "--field", "id", "--outfile", report)
	require.True(t, errors.Is(err, dbxerr.ErrNotFound), "got %v", err)
	require.Contains(t, err.Error(), "database 'nosuch' field 'id'")
	_, err = os.Stat(report)
	require.True(t, os.IsNotExist(err), "report written for a missing index")

	_, err = os.Stat(ws.indexDir)
	require.True(t, os.IsNotExist(err))
}

func TestInspect(t *testing.T) {
	ws := newWorkspace(t)
	ws.build(t)

	out, err := ws.run(t, "dbxinspect", "sprot", "--field", "ac")
	require.NoError(t, err)
	require.Contains(t, out, "P00001")
}

func TestSplitQuery(t *testing.T) {
	db, key, err := splitQuery("sprot:P12345")
	require.NoError(t, err)
	require.Equal(t, "sprot", db)
	require.Equal(t, "P12345", key)

	for _, bad := range []string{"sprot", ":key", "sprot:"} {
		_, _, err := splitQuery(bad)
		require.Error(t, err, bad)
	}
}

func TestUtilityArgs(t *testing.T) {
	root := NewRootCmd()
	require.Equal(t, []string{"dbxstat", "db"}, utilityArgs(root, []string{"/usr/local/bin/dbxstat", "db"}))
	require.Equal(t, []string{"dbxstat", "db"}, utilityArgs(root, []string{"dbx", "dbxstat", "db"}))
}
