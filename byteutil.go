package mmdb

import "math/big"

// span returns buf[off:off+n] or a TruncatedRead error.
func span(buf []byte, off, n uint) ([]byte, error) {
	end := off + n
	if end < off || end > uint(len(buf)) {
		return nil, formatErrf(TruncatedRead, off, nil, "need %d bytes, %d available", n, remaining(buf, off))
	}
	return buf[off:end], nil
}

func remaining(buf []byte, off uint) uint {
	if off >= uint(len(buf)) {
		return 0
	}
	return uint(len(buf)) - off
}

// uintFromBytes interprets b as a big-endian unsigned integer. The caller
// guarantees len(b) <= 8.
func uintFromBytes(prefix uint64, b []byte) uint64 {
	v := prefix
	for _, c := range b {
		v = (v << 8) | uint64(c)
	}
	return v
}

func bigFromBytes(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}
