package btree

import (
	"encoding/binary"

	"dbx/dbxerr"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

// Page layout:
//
//	type(1) flags(1) count(2) reserved(4) checksum(8) prev(8) next(8) body...
//
// The checksum is xxhash64 over the whole page with the checksum field
// zeroed. Plain bodies use fixed-width little-endian integers and
// length-prefixed keys. Compressed bodies front-code each key against the
// previous one in the page, write every integer as a uvarint and
// delta-code record numbers within a reference list.

type pageHeader struct {
	typ   byte
	flags byte
	count int
	prev  uint64
	next  uint64
}

func (h pageHeader) compressed() bool {
	return h.flags&flagCompressed != 0
}

var errTruncated = errors.New("truncated page body")

var zeroSum [8]byte

func checksum(data []byte) uint64 {
	d := xxhash.New()
	d.Write(data[:8])
	d.Write(zeroSum[:])
	d.Write(data[16:])
	return d.Sum64()
}

// sealPage lays out header and body into data, which must be exactly one
// page long, and stamps the checksum.
func sealPage(data []byte, h pageHeader, body []byte) error {
	if headerSize+len(body) > len(data) {
		return dbxerr.Format("encoded page needs %d bytes, page size is %d", headerSize+len(body), len(data))
	}
	if h.count > 0xffff {
		return dbxerr.Format("page holds %d items, limit is 65535", h.count)
	}
	clear(data)
	data[0] = h.typ
	data[1] = h.flags
	binary.LittleEndian.PutUint16(data[2:], uint16(h.count))
	binary.LittleEndian.PutUint64(data[16:], h.prev)
	binary.LittleEndian.PutUint64(data[24:], h.next)
	copy(data[headerSize:], body)
	binary.LittleEndian.PutUint64(data[8:], checksum(data))
	return nil
}

// openPage verifies the checksum of a page and splits it into header and body.
func openPage(data []byte, num uint64) (pageHeader, []byte, error) {
	if len(data) < headerSize {
		return pageHeader{}, nil, dbxerr.Format("page %d shorter than its header", num)
	}
	if want := binary.LittleEndian.Uint64(data[8:]); want != checksum(data) {
		return pageHeader{}, nil, dbxerr.Format("page %d: checksum mismatch", num)
	}
	h := pageHeader{
		typ:   data[0],
		flags: data[1],
		count: int(binary.LittleEndian.Uint16(data[2:])),
		prev:  binary.LittleEndian.Uint64(data[16:]),
		next:  binary.LittleEndian.Uint64(data[24:]),
	}
	switch h.typ {
	case typeMeta, typeInternal, typeLeaf, typeOverflow:
	default:
		return pageHeader{}, nil, dbxerr.Format("page %d: unknown page type %d", num, h.typ)
	}
	return h, data[headerSize:], nil
}

type codec struct {
	compressed bool
	refcount   int
}

func (c codec) flags() byte {
	if c.compressed {
		return flagCompressed
	}
	return 0
}

func (c codec) appendUint(buf []byte, v uint64, width int) []byte {
	if c.compressed {
		return binary.AppendUvarint(buf, v)
	}
	switch width {
	case 2:
		return binary.LittleEndian.AppendUint16(buf, uint16(v))
	case 4:
		return binary.LittleEndian.AppendUint32(buf, uint32(v))
	default:
		return binary.LittleEndian.AppendUint64(buf, v)
	}
}

func commonPrefix(a, b string) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func (c codec) appendKey(buf []byte, prev, key string) []byte {
	if !c.compressed {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(key)))
		return append(buf, key...)
	}
	shared := commonPrefix(prev, key)
	buf = binary.AppendUvarint(buf, uint64(shared))
	buf = binary.AppendUvarint(buf, uint64(len(key)-shared))
	return append(buf, key[shared:]...)
}

func (c codec) appendRef(buf []byte, prevRecord uint64, r Ref) []byte {
	if c.compressed {
		buf = binary.AppendVarint(buf, int64(r.Record-prevRecord))
	} else {
		buf = binary.LittleEndian.AppendUint64(buf, r.Record)
	}
	buf = c.appendUint(buf, uint64(r.File), 4)
	buf = c.appendUint(buf, r.Offset, 8)
	for i := 0; i < c.refcount; i++ {
		var v uint64
		if i < len(r.Extra) {
			v = r.Extra[i]
		}
		buf = c.appendUint(buf, v, 8)
	}
	return buf
}

func (c codec) appendRefs(buf []byte, refs []Ref) []byte {
	var prev uint64
	for _, r := range refs {
		buf = c.appendRef(buf, prev, r)
		prev = r.Record
	}
	return buf
}

func (c codec) appendEntry(buf []byte, prevKey string, e *Entry) []byte {
	buf = c.appendKey(buf, prevKey, e.Key)
	buf = c.appendUint(buf, e.Count, 8)
	buf = c.appendUint(buf, uint64(len(e.Refs)), 2)
	buf = c.appendRefs(buf, e.Refs)
	buf = c.appendUint(buf, e.Overflow, 8)
	return c.appendUint(buf, e.Tail, 8)
}

func (c codec) entrySize(prevKey string, e *Entry) int {
	return len(c.appendEntry(nil, prevKey, e))
}

func (c codec) encodeLeaf(entries []Entry) []byte {
	var buf []byte
	prev := ""
	for i := range entries {
		buf = c.appendEntry(buf, prev, &entries[i])
		prev = entries[i].Key
	}
	return buf
}

func (c codec) encodeInternal(keys []string, children []uint64) []byte {
	buf := c.appendUint(nil, children[0], 8)
	prev := ""
	for i, k := range keys {
		buf = c.appendKey(buf, prev, k)
		buf = c.appendUint(buf, children[i+1], 8)
		prev = k
	}
	return buf
}

// reader decodes a page body. The first failure sticks.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = errTruncated
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		r.err = errTruncated
		return 0
	}
	r.off += n
	return v
}

func (r *reader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf[r.off:])
	if n <= 0 {
		r.err = errTruncated
		return 0
	}
	r.off += n
	return v
}

func (c codec) readUint(r *reader, width int) uint64 {
	if c.compressed {
		return r.uvarint()
	}
	b := r.take(width)
	if b == nil {
		return 0
	}
	switch width {
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func (c codec) readKey(r *reader, prev string) string {
	if !c.compressed {
		n := c.readUint(r, 2)
		return string(r.take(int(n)))
	}
	shared := r.uvarint()
	suffix := r.uvarint()
	if r.err == nil && shared > uint64(len(prev)) {
		r.err = errors.Newf("shared prefix %d longer than previous key", shared)
		return ""
	}
	tail := r.take(int(suffix))
	if r.err != nil {
		return ""
	}
	return prev[:shared] + string(tail)
}

func (c codec) readRef(r *reader, prevRecord uint64) Ref {
	var ref Ref
	if c.compressed {
		ref.Record = prevRecord + uint64(r.varint())
	} else {
		ref.Record = c.readUint(r, 8)
	}
	ref.File = uint32(c.readUint(r, 4))
	ref.Offset = c.readUint(r, 8)
	if c.refcount > 0 {
		ref.Extra = make([]uint64, c.refcount)
		for i := range ref.Extra {
			ref.Extra[i] = c.readUint(r, 8)
		}
	}
	return ref
}

func (c codec) readRefs(r *reader, n int) []Ref {
	refs := make([]Ref, 0, n)
	var prev uint64
	for i := 0; i < n && r.err == nil; i++ {
		ref := c.readRef(r, prev)
		refs = append(refs, ref)
		prev = ref.Record
	}
	return refs
}

func (c codec) decodeLeaf(body []byte, count int) ([]Entry, error) {
	r := &reader{buf: body}
	entries := make([]Entry, 0, count)
	prev := ""
	for i := 0; i < count && r.err == nil; i++ {
		var e Entry
		e.Key = c.readKey(r, prev)
		e.Count = c.readUint(r, 8)
		inline := int(c.readUint(r, 2))
		if r.err == nil && uint64(inline) > e.Count {
			return nil, errors.Newf("entry %q holds %d inline references but counts %d", e.Key, inline, e.Count)
		}
		e.Refs = c.readRefs(r, inline)
		e.Overflow = c.readUint(r, 8)
		e.Tail = c.readUint(r, 8)
		entries = append(entries, e)
		prev = e.Key
	}
	return entries, r.err
}

func (c codec) decodeInternal(body []byte, count int) ([]string, []uint64, error) {
	r := &reader{buf: body}
	keys := make([]string, 0, count)
	children := make([]uint64, 0, count+1)
	children = append(children, c.readUint(r, 8))
	prev := ""
	for i := 0; i < count && r.err == nil; i++ {
		k := c.readKey(r, prev)
		keys = append(keys, k)
		children = append(children, c.readUint(r, 8))
		prev = k
	}
	return keys, children, r.err
}

// meta page body: magic(8) pagesize(4) refcount(4) keylimit(4) secondary(1)
type meta struct {
	magic     [8]byte
	pageSize  int
	refcount  int
	keyLimit  int
	secondary bool
}

func encodeMeta(m meta) []byte {
	buf := append([]byte(nil), m.magic[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.pageSize))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.refcount))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.keyLimit))
	var sec byte
	if m.secondary {
		sec = 1
	}
	return append(buf, sec)
}

func decodeMeta(body []byte) (meta, error) {
	var m meta
	if len(body) < 21 {
		return m, errTruncated
	}
	copy(m.magic[:], body[:8])
	m.pageSize = int(binary.LittleEndian.Uint32(body[8:]))
	m.refcount = int(binary.LittleEndian.Uint32(body[12:]))
	m.keyLimit = int(binary.LittleEndian.Uint32(body[16:]))
	m.secondary = body[20] == 1
	return m, nil
}
