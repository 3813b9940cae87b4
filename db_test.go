package mmdb

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"

	"github.com/andreyvit/mmdb/mmap"
	mt "github.com/andreyvit/mmdb/mmdbtest"
)

func twoRecordFixture() *mt.DB {
	fixture := &mt.DB{Data: usData}
	fixture.Nodes = make([][2]uint, 2)
	fixture.Nodes[0] = [2]uint{fixture.Leaf(0), 1}
	fixture.Nodes[1] = [2]uint{fixture.Empty(), fixture.Leaf(0)}
	return fixture
}

func writeFixture(t testing.TB, fixture *mt.DB) string {
	path := filepath.Join(t.TempDir(), "test.mmdb")
	ensure(os.WriteFile(path, fixture.Build(), 0o644))
	return path
}

func TestOpen(t *testing.T) {
	path := writeFixture(t, twoRecordFixture())
	expected := []Record{
		rec("0.0.0.0/1", usValue),
		rec("192.0.0.0/2", usValue),
	}

	for _, opt := range []Options{
		{},
		{Mmap: true},
		{Mmap: true, MmapOptions: mmap.SequentialAccess | mmap.Prefault, CacheSize: 16},
	} {
		db, err := Open(path, opt)
		if err != nil {
			t.Fatalf("** Open(%+v) failed: %v", opt, err)
		}
		recs, err := dump(db)
		ensure(err)
		ensure(db.Close())
		recordsEqual(t, recs, expected)

		// values are copied out of the buffer and outlive the mapping
		valueEqual(t, recs[0].Value, usValue)
		ensure(db.Close())
	}
}

func TestOpen_Errors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.mmdb")
	for _, opt := range []Options{{}, {Mmap: true}} {
		_, err := Open(missing, opt)
		if !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("** Open(missing, %+v) = %v, wanted ErrNotExist", opt, err)
		}
	}

	empty := filepath.Join(t.TempDir(), "empty.mmdb")
	ensure(os.WriteFile(empty, nil, 0o644))
	for _, opt := range []Options{{}, {Mmap: true}} {
		_, err := Open(empty, opt)
		isCause(t, err, MarkerNotFound)
	}
}

func TestDatabase_All(t *testing.T) {
	db := open(t, twoRecordFixture(), Options{})

	var recs []Record
	for r, err := range db.All() {
		ensure(err)
		recs = append(recs, r)
	}
	deepEqual(t, len(recs), 2)

	var n int
	for _, err := range db.All() {
		ensure(err)
		n++
		break
	}
	deepEqual(t, n, 1)

	fixture := twoRecordFixture()
	fixture.Nodes[1][1] = fixture.Leaf(1 << 20)
	db = open(t, fixture, Options{})
	var errs []error
	n = 0
	for _, err := range db.All() {
		if err != nil {
			errs = append(errs, err)
		} else {
			n++
		}
	}
	deepEqual(t, n, 1)
	deepEqual(t, len(errs), 1)
	isCause(t, errs[0], CorruptSearchTree)
}

func TestDatabase_Decode(t *testing.T) {
	db := open(t, twoRecordFixture(), Options{})
	v, next, err := db.Decode(db.Metadata().DataSectionStart())
	ensure(err)
	valueEqual(t, v, usValue)
	deepEqual(t, next, db.Metadata().DataSectionStart()+uint(len(usData)))

	_, _, err = db.Decode(uint(len(db.buf)) + 5)
	isCause(t, err, TruncatedRead)
}

func TestDatabase_ConcurrentDumps(t *testing.T) {
	db := open(t, aliasFixture(), Options{CacheSize: 4})
	errs := make(chan error, 8)
	for range 8 {
		go func() {
			recs, err := dump(db)
			if err == nil && len(recs) != 2 {
				err = errors.New("wrong record count")
			}
			errs <- err
		}()
	}
	for range 8 {
		ensure(<-errs)
	}
}

func TestDatabase_Checksum(t *testing.T) {
	fixture := twoRecordFixture()
	db := open(t, fixture, Options{})
	deepEqual(t, db.Checksum(), xxhash.Sum64(fixture.Build()))

	other := twoRecordFixture()
	other.Nodes[0][0] = other.Empty()
	if open(t, other, Options{}).Checksum() == db.Checksum() {
		t.Errorf("** different files have the same checksum")
	}
}

func TestDatabase_UseAfterClose(t *testing.T) {
	path := writeFixture(t, twoRecordFixture())
	for _, opt := range []Options{{}, {Mmap: true}} {
		db := must(Open(path, opt))
		ensure(db.Close())

		_, err := dump(db)
		if !errors.Is(err, ErrClosed) {
			t.Errorf("** Dump after Close (%+v) = %v, wanted ErrClosed", opt, err)
		}
		_, _, err = db.Decode(0)
		if !errors.Is(err, ErrClosed) {
			t.Errorf("** Decode after Close (%+v) = %v, wanted ErrClosed", opt, err)
		}
		for _, err := range db.All() {
			if !errors.Is(err, ErrClosed) {
				t.Errorf("** All after Close (%+v) yielded %v, wanted ErrClosed", opt, err)
			}
		}
		deepEqual(t, db.Checksum(), uint64(0))
		ensure(db.Close())
	}
}

func TestDatabase_MetadataDerivedSizes(t *testing.T) {
	db := open(t, twoRecordFixture(), Options{})
	deepEqual(t, db.Metadata().NodeByteSize(), uint(6))
	deepEqual(t, db.Metadata().SearchTreeSize(), uint(12))
	deepEqual(t, db.Metadata().DataSectionStart(), uint(28))
	deepEqual(t, db.Metadata().MaxDepth(), 32)
	deepEqual(t, db.Metadata().BuildTime().Unix(), int64(1700000000))
}
