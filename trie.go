package mmdb

// trie reads search tree node records straight out of the file buffer. Nodes
// are never materialized: a node is its index, and its children are computed
// on demand.
type trie struct {
	buf          []byte
	recordSize   uint
	nodeByteSize uint
	nodeCount    uint
}

func newTrie(buf []byte, md *Metadata) *trie {
	return &trie{
		buf:          buf,
		recordSize:   md.RecordSize,
		nodeByteSize: md.NodeByteSize(),
		nodeCount:    md.NodeCount,
	}
}

// readChild returns the record of the given node for the given bit (0 = left,
// 1 = right). The result is a node index if < nodeCount, the empty marker if
// == nodeCount, and a data pointer otherwise.
func (t *trie) readChild(node, bit uint) (uint, error) {
	base := node * t.nodeByteSize
	switch t.recordSize {
	case 24:
		b, err := span(t.buf, base+bit*3, 3)
		if err != nil {
			return 0, err
		}
		return uint(b[0])<<16 | uint(b[1])<<8 | uint(b[2]), nil
	case 28:
		b, err := span(t.buf, base, 7)
		if err != nil {
			return 0, err
		}
		var hi uint
		if bit == 0 {
			hi = uint(b[3]) >> 4
		} else {
			hi = uint(b[3]) & 0x0F
		}
		b = b[bit*4:]
		return hi<<24 | uint(b[0])<<16 | uint(b[1])<<8 | uint(b[2]), nil
	case 32:
		b, err := span(t.buf, base+bit*4, 4)
		if err != nil {
			return 0, err
		}
		return uint(b[0])<<24 | uint(b[1])<<16 | uint(b[2])<<8 | uint(b[3]), nil
	default:
		return 0, formatErrf(MetadataMalformed, noOffset, nil, "unsupported record_size %d", t.recordSize)
	}
}

func (t *trie) readNode(node uint) (left, right uint, err error) {
	left, err = t.readChild(node, 0)
	if err != nil {
		return 0, 0, err
	}
	right, err = t.readChild(node, 1)
	if err != nil {
		return 0, 0, err
	}
	return left, right, nil
}
