package flatfile

import (
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// Fasta parses FASTA files. The first word of the header is the
// identifier; "db|accession|name" headers yield both name and accession.
type Fasta struct{}

func (Fasta) Name() string { return "fasta" }

func (Fasta) Parse(r io.Reader, fn func(e *Entry) error) error {
	lr := newLineReader(r)
	var cur *Entry
	var text strings.Builder

	emit := func() error {
		if cur == nil {
			return nil
		}
		cur.Text = text.String()
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
		if strings.HasPrefix(line, ">") {
			if err := emit(); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
			cur = parseHeader(strings.TrimRight(line[1:], "\r\n"))
			cur.Offset = offset
		}
		if cur != nil {
			text.WriteString(line)
		}
	}

	if err := emit(); err != nil && !errors.Is(err, ErrStop) {
		return err
	}
	return nil
}

func parseHeader(header string) *Entry {
	e := &Entry{}
	name, desc, _ := strings.Cut(header, " ")
	e.Description = strings.TrimSpace(desc)

	parts := strings.Split(name, "|")
	switch {
	case len(parts) >= 3:
		e.Accessions = []string{parts[1]}
		e.ID = parts[2]
	case len(parts) == 2:
		e.ID = parts[1]
	default:
		e.ID = name
	}
	if e.ID == "" && len(e.Accessions) > 0 {
		e.ID = e.Accessions[0]
	}
	return e
}
