package mmdb

import (
	"errors"
	"fmt"
	"iter"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/andreyvit/mmdb/mmap"
)

// Database is an opened MaxMind DB file.
//
// The file is read once and never modified, and every walk owns its address
// accumulator, so concurrent Dump calls on the same Database are safe.
// Close must not run concurrently with other calls; afterwards Dump and
// Decode return ErrClosed.
type Database struct {
	buf  []byte
	md   Metadata
	trie *trie
	dec  *decoder

	ipv4Start   uint
	skipAliases bool

	unmap func() error
}

// ErrClosed is returned by Dump and Decode after Close.
var ErrClosed = errors.New("mmdb: database closed")

type Options struct {
	// Mmap maps the file into memory instead of reading it. Records and
	// values stay valid after Close either way, since values never alias
	// the file buffer.
	Mmap        bool
	MmapOptions mmap.Options

	// CacheSize is the number of decoded values to keep, keyed by data
	// offset. Most databases share a small set of records between many
	// networks. Zero disables the cache.
	CacheSize int

	// SkipAliasedNetworks skips the IPv4 subtree when it is reached through
	// one of the IPv6 aliases (::ffff:0:0/96, 2001::/32, 2002::/16), so that
	// IPv4 data is only emitted once, under ::/96.
	SkipAliasedNetworks bool
}

func Open(path string, opt Options) (*Database, error) {
	if !opt.Mmap {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("mmdb: %w", err)
		}
		return FromBytes(buf, opt)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmdb: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("mmdb: %w", err)
	}
	size := fi.Size()
	if size == 0 {
		return nil, formatErrf(MarkerNotFound, noOffset, nil, "empty file %s", path)
	}
	if size > mmap.MaxSize {
		return nil, fmt.Errorf("mmdb: %s is too large to map (%d bytes)", path, size)
	}

	buf, err := mmap.Mmap(f, int(size), opt.MmapOptions)
	if err != nil {
		return nil, fmt.Errorf("mmdb: mmap %s: %w", path, err)
	}
	db, err := FromBytes(buf, opt)
	if err != nil {
		_ = mmap.Munmap(buf)
		return nil, err
	}
	db.unmap = func() error { return mmap.Munmap(buf) }
	return db, nil
}

// FromBytes opens a database held in memory. buf must not be modified while
// the Database is in use.
func FromBytes(buf []byte, opt Options) (*Database, error) {
	md, _, err := parseMetadata(buf)
	if err != nil {
		return nil, err
	}
	dec, err := newDecoder(buf, md.DataSectionStart(), opt.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("mmdb: %w", err)
	}
	db := &Database{
		buf:         buf,
		md:          md,
		trie:        newTrie(buf, &md),
		dec:         dec,
		skipAliases: opt.SkipAliasedNetworks,
	}
	db.ipv4Start = md.NodeCount
	if opt.SkipAliasedNetworks {
		db.ipv4Start, err = findIPv4Start(db.trie, &md)
		if err != nil {
			return nil, err
		}
	}
	return db, nil
}

func (db *Database) Metadata() Metadata {
	return db.md
}

// Dump walks the entire search tree and hands every network with data to
// sink. The walk is depth-first, visiting the 0 branch before the 1 branch.
// A format error aborts the dump; records already emitted stay emitted.
func (db *Database) Dump(sink Sink) error {
	if db.trie == nil {
		return ErrClosed
	}
	w := &walker{
		trie:           db.trie,
		dec:            db.dec,
		sink:           sink,
		bufLen:         uint(len(db.buf)),
		nodeCount:      db.md.NodeCount,
		searchTreeSize: db.md.SearchTreeSize(),
		maxDepth:       db.md.MaxDepth(),
		ipv4Start:      db.ipv4Start,
		skipAliases:    db.skipAliases,
	}
	return w.walk()
}

// All returns an iterator over the records Dump would emit. Iteration stops
// after yielding the first error.
func (db *Database) All() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		err := db.Dump(SinkFunc(func(rec Record) error {
			if !yield(rec, nil) {
				return ErrStop
			}
			return nil
		}))
		if err != nil {
			yield(Record{}, err)
		}
	}
}

// Checksum is the xxhash64 of the whole file. It identifies the database
// version a dump was made from. It is 0 after Close.
func (db *Database) Checksum() uint64 {
	if db.buf == nil {
		return 0
	}
	return xxhash.Sum64(db.buf)
}

// Decode decodes the value at the given absolute offset. Pointers inside the
// value are resolved relative to the data section.
func (db *Database) Decode(off uint) (Value, uint, error) {
	if db.dec == nil {
		return Value{}, 0, ErrClosed
	}
	return db.dec.decode(off)
}

// Close releases the mapping of a memory-mapped database. Values already
// decoded stay valid. Closing twice is a no-op.
func (db *Database) Close() error {
	db.buf, db.trie, db.dec = nil, nil, nil
	if db.unmap == nil {
		return nil
	}
	unmap := db.unmap
	db.unmap = nil
	return unmap()
}
