// Package mmap maps database files into memory, read-only.
package mmap

import (
	"errors"
	"os"
)

type Options uint

const (
	// SequentialAccess is a hint requesting aggressive read-ahead.
	// Incompatible with RandomAccess. Maps to MADV_SEQUENTIAL on Unix.
	SequentialAccess Options = 1 << 1

	// RandomAccess is a hint that read ahead is less useful than normally.
	// Incompatible with SequentialAccess. Maps to MADV_RANDOM on Unix.
	RandomAccess Options = 1 << 2

	// Prefault is a hint requesting the entire file to be loaded in memory
	// for fastest access. Maps to MAP_POPULATE on Linux.
	Prefault Options = 1 << 3
)

var ErrEmpty = errors.New("cannot map an empty file")

func (o Options) Has(v Options) bool {
	return o&v != 0
}

// Mmap maps the first size bytes of f for reading.
func Mmap(f *os.File, size int, opt Options) ([]byte, error) {
	if size <= 0 {
		return nil, ErrEmpty
	}
	return mmap(f, size, opt)
}

// Munmap unmaps the given slice from memory. The slice must have been returned
// by Mmap.
func Munmap(b []byte) error {
	return munmap(b)
}
