package mmdbtest

import "fmt"

// DB describes a database image. Node records are raw values: use Empty and
// Leaf to compute them.
type DB struct {
	RecordSize int // defaults to 24
	IPVersion  int // defaults to 4
	Nodes      [][2]uint
	Data       []byte

	// Metadata replaces the generated metadata map when non-nil.
	Metadata []byte
	// ExtraMetadata is appended to the generated metadata map as
	// alternating keys and values.
	ExtraMetadata [][]byte
}

// Empty is the record value for an empty branch.
func (db *DB) Empty() uint {
	return uint(len(db.Nodes))
}

// Leaf is the record value pointing at offset off of the data section.
func (db *DB) Leaf(off uint) uint {
	return uint(len(db.Nodes)) + 16 + off
}

func (db *DB) recordSize() int {
	if db.RecordSize == 0 {
		return 24
	}
	return db.RecordSize
}

func (db *DB) ipVersion() int {
	if db.IPVersion == 0 {
		return 4
	}
	return db.IPVersion
}

// Tree encodes the search tree.
func (db *DB) Tree() []byte {
	var out []byte
	for _, n := range db.Nodes {
		out = AppendNode(out, db.recordSize(), n[0], n[1])
	}
	return out
}

// Build returns the complete file: search tree, separator, data section,
// marker and metadata.
func (db *DB) Build() []byte {
	out := db.Tree()
	out = append(out, make([]byte, 16)...)
	out = append(out, db.Data...)
	out = append(out, MetadataMarker...)
	if db.Metadata != nil {
		return append(out, db.Metadata...)
	}
	return append(out, db.DefaultMetadata()...)
}

func (db *DB) DefaultMetadata() []byte {
	kvs := [][]byte{
		String("binary_format_major_version"), Uint16(2),
		String("binary_format_minor_version"), Uint16(0),
		String("build_epoch"), Uint64(1700000000),
		String("database_type"), String("Test-DB"),
		String("description"), Map(String("en"), String("Test database")),
		String("ip_version"), Uint16(uint16(db.ipVersion())),
		String("languages"), Slice(String("en")),
		String("node_count"), Uint32(uint32(len(db.Nodes))),
		String("record_size"), Uint16(uint16(db.recordSize())),
	}
	kvs = append(kvs, db.ExtraMetadata...)
	return Map(kvs...)
}

// AppendNode encodes one node record of the given record size.
func AppendNode(out []byte, recordSize int, left, right uint) []byte {
	switch recordSize {
	case 24:
		return append(out,
			byte(left>>16), byte(left>>8), byte(left),
			byte(right>>16), byte(right>>8), byte(right))
	case 28:
		return append(out,
			byte(left>>16), byte(left>>8), byte(left),
			byte(left>>24)<<4|byte(right>>24)&0x0F,
			byte(right>>16), byte(right>>8), byte(right))
	case 32:
		return append(out,
			byte(left>>24), byte(left>>16), byte(left>>8), byte(left),
			byte(right>>24), byte(right>>16), byte(right>>8), byte(right))
	default:
		panic(fmt.Sprintf("mmdbtest: unsupported record size %d", recordSize))
	}
}
