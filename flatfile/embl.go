package flatfile

import (
	"io"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

var seqVersion = regexp.MustCompile(`sequence version (\d+)`)

// Swiss parses UniProtKB/Swiss-Prot text entries.
type Swiss struct{}

func (Swiss) Name() string { return "swiss" }

func (Swiss) Parse(r io.Reader, fn func(e *Entry) error) error {
	return parseTagged(r, fn, func(e *Entry, tag, value string) {
		switch tag {
		case "ID":
			if f := strings.Fields(value); len(f) > 0 {
				e.ID = f[0]
			}
		case "DT":
			if m := seqVersion.FindStringSubmatch(value); m != nil && len(e.Accessions) > 0 {
				e.Version = e.Accessions[0] + "." + m[1]
			}
		}
	})
}

// EMBL parses EMBL nucleotide entries.
type EMBL struct{}

func (EMBL) Name() string { return "embl" }

func (EMBL) Parse(r io.Reader, fn func(e *Entry) error) error {
	return parseTagged(r, fn, func(e *Entry, tag, value string) {
		switch tag {
		case "ID":
			// ID   X56734; SV 1; linear; mRNA; STD; PLN; 1859 BP.
			parts := strings.Split(value, ";")
			e.ID = strings.TrimSpace(parts[0])
			if len(parts) > 1 {
				if sv := strings.Fields(parts[1]); len(sv) == 2 && sv[0] == "SV" {
					e.Version = e.ID + "." + sv[1]
				}
			}
		case "SV":
			e.Version = strings.TrimSpace(value)
		}
	})
}

// parseTagged drives the two-letter line code layout shared by Swiss-Prot
// and EMBL. Entries end with a "//" line.
func parseTagged(r io.Reader, fn func(e *Entry) error, special func(e *Entry, tag, value string)) error {
	lr := newLineReader(r)
	var cur *Entry
	var text strings.Builder

	emit := func() error {
		if cur == nil {
			return nil
		}
		cur.Text = text.String()
		cur.Description = strings.TrimSpace(cur.Description)
		e := cur
		cur = nil
		text.Reset()
		return fn(e)
	}

	for {
		line, offset, err := lr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "failed to read entry")
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" && cur == nil {
			continue
		}
		if cur == nil {
			cur = &Entry{Offset: offset}
		}
		text.WriteString(line)

		if strings.HasPrefix(trimmed, "//") {
			if err := emit(); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
			continue
		}
		if len(trimmed) < 2 {
			continue
		}
		tag := trimmed[:2]
		value := ""
		if len(trimmed) > 5 {
			value = strings.TrimSpace(trimmed[5:])
		}
		switch tag {
		case "AC":
			cur.Accessions = append(cur.Accessions, splitList(value)...)
		case "DE":
			if cur.Description != "" {
				cur.Description += " "
			}
			cur.Description += value
		case "KW":
			cur.Keywords = append(cur.Keywords, splitList(value)...)
		case "OS", "OC":
			cur.Organisms = append(cur.Organisms, splitList(value)...)
		default:
			special(cur, tag, value)
		}
	}

	if err := emit(); err != nil && !errors.Is(err, ErrStop) {
		return err
	}
	return nil
}

// splitList splits a "a; b; c." line into its items.
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ";") {
		item = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(item), "."))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
