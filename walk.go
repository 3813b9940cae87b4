package mmdb

import (
	"errors"
	"fmt"
	"net/netip"
)

// Record is a single network found in the search tree together with the data
// it maps to. Network.Bits() is the depth at which the leaf was found.
type Record struct {
	Network netip.Prefix
	Value   Value
}

// IPVersion returns 4 for records of IPv4 databases and 6 otherwise.
// IPv4 networks embedded in IPv6 databases are reported in IPv6 form.
func (r Record) IPVersion() int {
	if r.Network.Addr().Is4() {
		return 4
	}
	return 6
}

// Sink consumes records emitted by Database.Dump, one at a time, in the
// order they are found. Returning ErrStop ends the dump early without an
// error; any other error aborts it.
type Sink interface {
	Emit(rec Record) error
}

type SinkFunc func(rec Record) error

func (f SinkFunc) Emit(rec Record) error {
	return f(rec)
}

var ErrStop = errors.New("stop")

type walker struct {
	trie           *trie
	dec            *decoder
	sink           Sink
	bufLen         uint
	nodeCount      uint
	searchTreeSize uint
	maxDepth       int

	// ipv4Start is the node at ::/96 of an IPv6 tree, or nodeCount when there
	// is none. Only used with skipAliases.
	ipv4Start   uint
	skipAliases bool
}

func (w *walker) walk() error {
	err := w.recurse(0, [16]byte{}, 1)
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

// recurse visits node, whose children are networks of depth bits. ip holds
// the bits of the path so far; every call gets its own copy.
func (w *walker) recurse(node uint, ip [16]byte, depth int) error {
	if depth > w.maxDepth {
		return formatErrf(CorruptSearchTree, node*w.trie.nodeByteSize, nil, "node %d is deeper than %d bits", node, w.maxDepth)
	}
	left, right, err := w.trie.readNode(node)
	if err != nil {
		return err
	}

	byteIdx, mask := (depth-1)/8, byte(0x80)>>((depth-1)%8)
	for bit, child := range [2]uint{left, right} {
		if child == w.nodeCount {
			continue
		}
		if bit == 1 {
			ip[byteIdx] |= mask
		} else {
			ip[byteIdx] &^= mask
		}

		if child < w.nodeCount {
			if w.skipAliases && child == w.ipv4Start && !isIPv4Subtree(ip) {
				continue
			}
			err = w.recurse(child, ip, depth+1)
		} else {
			err = w.emit(child, ip, depth)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) emit(ptr uint, ip [16]byte, depth int) error {
	off := ptr - w.nodeCount + w.searchTreeSize
	if off >= w.bufLen {
		return formatErrf(CorruptSearchTree, noOffset, nil, "data pointer %d resolves to offset %d past end of file (%d bytes)", ptr, off, w.bufLen)
	}
	v, err := w.dec.resolve(off, 0)
	if err != nil {
		return err
	}

	var addr netip.Addr
	if w.maxDepth == 32 {
		addr = netip.AddrFrom4([4]byte(ip[:4]))
	} else {
		addr = netip.AddrFrom16(ip)
	}
	err = w.sink.Emit(Record{netip.PrefixFrom(addr, depth), v})
	if err != nil && !errors.Is(err, ErrStop) {
		return fmt.Errorf("mmdb: sink: %w", err)
	}
	return err
}

// findIPv4Start follows 96 zero bits from the root of an IPv6 tree.
func findIPv4Start(t *trie, md *Metadata) (uint, error) {
	if md.IPVersion != 6 {
		return md.NodeCount, nil
	}
	var node uint
	for i := 0; i < 96 && node < md.NodeCount; i++ {
		var err error
		node, err = t.readChild(node, 0)
		if err != nil {
			return 0, err
		}
	}
	return node, nil
}

func isIPv4Subtree(ip [16]byte) bool {
	for _, b := range ip[:12] {
		if b != 0 {
			return false
		}
	}
	return true
}
