package flatfile

import (
	"reflect"
	"strings"
	"testing"
)

const swissData = `ID   CYC_HUMAN               Reviewed;         105 AA.
AC   P99999; P00001; Q6NUR2;
DT   21-JUL-1986, integrated into UniProtKB/Swiss-Prot.
DT   23-JAN-2007, sequence version 2.
DE   RecName: Full=Cytochrome c;
OS   Homo sapiens (Human).
OC   Eukaryota; Metazoa; Chordata.
KW   Apoptosis; Electron transport; Heme.
SQ   SEQUENCE   105 AA;  11749 MW;  0E3EC0D5A7A2CE2B CRC64;
     MGDVEKGKKI FVQKCAQCHT VEKGGKHKTG PNLHGLFGRK TGQAPGYSYT AANKNKGIIW
//
ID   CYC_MOUSE               Reviewed;         105 AA.
AC   P62897;
DT   01-JAN-1990, sequence version 1.
DE   Cytochrome c, somatic.
OS   Mus musculus (Mouse).
//
`

const emblData = `ID   X56734; SV 1; linear; mRNA; STD; PLN; 1859 BP.
AC   X56734; S46826;
DE   Trifolium repens mRNA for non-cyanogenic beta-glucosidase
KW   beta-glucosidase.
OS   Trifolium repens (white clover)
//
`

const fastaData = `>sp|P99999|CYC_HUMAN Cytochrome c
MGDVEKGKKIFVQKCAQCHT
VEKGGKHKTG
>plain-id some description
ACGT
`

func collect(t *testing.T, f Format, data string) []*Entry {
	t.Helper()
	var out []*Entry
	err := f.Parse(strings.NewReader(data), func(e *Entry) error {
		out = append(out, e)
		return nil
	})
	if err != nil {
		t.Fatalf("%s parse failed: %v", f.Name(), err)
	}
	return out
}

func TestSwiss(t *testing.T) {
	entries := collect(t, Swiss{}, swissData)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	e := entries[0]
	if e.ID != "CYC_HUMAN" || e.Offset != 0 {
		t.Errorf("first entry: id %q offset %d", e.ID, e.Offset)
	}
	if !reflect.DeepEqual(e.Accessions, []string{"P99999", "P00001", "Q6NUR2"}) {
		t.Errorf("accessions %v", e.Accessions)
	}
	if e.Version != "P99999.2" {
		t.Errorf("version %q", e.Version)
	}
	if !reflect.DeepEqual(e.Field("kw"), []string{"Apoptosis", "Electron transport", "Heme"}) {
		t.Errorf("keywords %v", e.Field("kw"))
	}
	if !reflect.DeepEqual(e.Field("des"), []string{"RecName", "Full", "Cytochrome", "c"}) {
		t.Errorf("description words %v", e.Field("des"))
	}
	if !reflect.DeepEqual(e.Field("org"), []string{"Homo sapiens (Human)", "Eukaryota", "Metazoa", "Chordata"}) {
		t.Errorf("organisms %v", e.Field("org"))
	}
	if !strings.HasSuffix(e.Text, "//\n") {
		t.Errorf("entry text does not end with terminator: %q", e.Text)
	}

	second := entries[1]
	if second.ID != "CYC_MOUSE" || second.Offset != int64(len(e.Text)) {
		t.Errorf("second entry: id %q offset %d, want offset %d", second.ID, second.Offset, len(e.Text))
	}
	if !strings.HasPrefix(swissData[second.Offset:], "ID   CYC_MOUSE") {
		t.Error("offset does not point at the entry start")
	}
}

func TestEMBL(t *testing.T) {
	entries := collect(t, EMBL{}, emblData)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ID != "X56734" || e.Version != "X56734.1" {
		t.Errorf("id %q version %q", e.ID, e.Version)
	}
	if !reflect.DeepEqual(e.Field("ac"), []string{"X56734", "S46826"}) {
		t.Errorf("accessions %v", e.Field("ac"))
	}
	if !reflect.DeepEqual(e.Field("kw"), []string{"beta-glucosidase"}) {
		t.Errorf("keywords %v", e.Field("kw"))
	}
}

func TestFasta(t *testing.T) {
	entries := collect(t, Fasta{}, fastaData)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "CYC_HUMAN" || !reflect.DeepEqual(entries[0].Accessions, []string{"P99999"}) {
		t.Errorf("first header parsed as %+v", entries[0])
	}
	if entries[0].Description != "Cytochrome c" {
		t.Errorf("description %q", entries[0].Description)
	}
	if entries[1].ID != "plain-id" || entries[1].Field("ac") != nil {
		t.Errorf("second header parsed as %+v", entries[1])
	}
	if !strings.HasPrefix(fastaData[entries[1].Offset:], ">plain-id") {
		t.Error("offset does not point at the header")
	}
}

func TestReadAt(t *testing.T) {
	entries := collect(t, Swiss{}, swissData)
	e, err := ReadAt(Swiss{}, strings.NewReader(swissData), entries[1].Offset)
	if err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if e.ID != "CYC_MOUSE" || e.Offset != entries[1].Offset || e.Text != entries[1].Text {
		t.Errorf("ReadAt returned %+v", e)
	}
	if _, err := ReadAt(Swiss{}, strings.NewReader(swissData), int64(len(swissData))); err == nil {
		t.Error("expected error reading past the last entry")
	}
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"embl", "fasta", "swiss"}) {
		t.Errorf("formats %v", got)
	}
	f, err := r.Lookup("fasta")
	if err != nil || f.Name() != "fasta" {
		t.Errorf("Lookup(fasta) = %v, %v", f, err)
	}
}
