package btree

// Ref locates one occurrence of a key in the flat-file database.
type Ref struct {
	Record uint64   `json:"record"`          // 1-based entry number in the database
	File   uint32   `json:"file"`            // data file number
	Offset uint64   `json:"offset"`          // byte offset of the entry in the data file
	Extra  []uint64 `json:"extra,omitempty"` // reference file offsets, len == Refcount
}

// Entry is one key of a leaf bucket. Refs holds the inline references;
// the rest live in the overflow chain Overflow..Tail of the secondary file.
type Entry struct {
	Key      string
	Count    uint64
	Refs     []Ref
	Overflow uint64
	Tail     uint64
}

// Hit is one (key, reference) pair reported by a range dump.
type Hit struct {
	Key string `json:"key"`
	Ref Ref    `json:"ref"`
}

const (
	headerSize = 32
	rootPage   = 1
	metaPage   = 0
)

// page types
const (
	typeMeta     byte = 1
	typeInternal byte = 2
	typeLeaf     byte = 3
	typeOverflow byte = 4
)

const flagCompressed byte = 1

var (
	primaryMagic   = [8]byte{'D', 'B', 'X', 'I', 'D', 'X', '0', '1'}
	secondaryMagic = [8]byte{'D', 'B', 'X', 'R', 'E', 'F', '0', '1'}
)

// node is the decoded form of an internal node or a leaf bucket.
type node struct {
	num      uint64
	leaf     bool
	keys     []string // internal only
	children []uint64 // internal only, len(keys)+1
	entries  []Entry  // leaf only
	prev     uint64   // leaf chain
	next     uint64
}

func (n *node) count() int {
	if n.leaf {
		return len(n.entries)
	}
	return len(n.keys)
}

// overflowPage is a decoded page of a reference chain.
type overflowPage struct {
	num  uint64
	refs []Ref
	next uint64
}
