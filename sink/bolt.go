package sink

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/andreyvit/mmdb"
)

var (
	NetworksBucket = []byte("networks")
	MetadataBucket = []byte("metadata")
	ChecksumKey    = []byte("checksum")
)

const DefaultBoltBatchSize = 10000

// Bolt stores records in a bbolt database: bucket "networks" maps
// NetworkKey(rec.Network) to the msgpack-encoded data, and bucket "metadata"
// holds the source database's metadata under the key "metadata" and its
// big-endian Checksum under the key "checksum".
type Bolt struct {
	bdb       *bbolt.DB
	tx        *bbolt.Tx
	bucket    *bbolt.Bucket
	pending   int
	count     int
	batchSize int
}

func OpenBolt(path string, src *mmdb.Database, batchSize int) (*Bolt, error) {
	if batchSize <= 0 {
		batchSize = DefaultBoltBatchSize
	}
	bdb, err := bbolt.Open(path, 0666, &bbolt.Options{
		Timeout:      10 * time.Second,
		NoSync:       true,
		FreelistType: bbolt.FreelistMapType,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: %w", err)
	}

	md := src.Metadata()
	rawMD, err := msgpack.Marshal(&md)
	if err == nil {
		err = bdb.Update(func(tx *bbolt.Tx) error {
			b, err := tx.CreateBucketIfNotExists(MetadataBucket)
			if err != nil {
				return err
			}
			if err := b.Put(ChecksumKey, binary.BigEndian.AppendUint64(nil, src.Checksum())); err != nil {
				return err
			}
			return b.Put(MetadataBucket, rawMD)
		})
	}
	if err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("bolt: storing metadata: %w", err)
	}
	return &Bolt{bdb: bdb, batchSize: batchSize}, nil
}

// NetworkKey is the 16-byte address (IPv4-mapped for IPv4 networks) followed
// by the prefix length. Keys sort in address order.
func NetworkKey(p netip.Prefix) []byte {
	a := p.Addr().As16()
	return append(a[:], byte(p.Bits()))
}

func (b *Bolt) Emit(rec mmdb.Record) error {
	if b.tx == nil {
		tx, err := b.bdb.Begin(true)
		if err != nil {
			return fmt.Errorf("bolt: %w", err)
		}
		bucket, err := tx.CreateBucketIfNotExists(NetworksBucket)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("bolt: %w", err)
		}
		b.tx, b.bucket = tx, bucket
	}

	raw, err := MarshalMsgPack(rec.Value)
	if err != nil {
		return err
	}
	err = b.bucket.Put(NetworkKey(rec.Network), raw)
	if err != nil {
		return fmt.Errorf("bolt: %w", err)
	}
	b.count++
	b.pending++
	if b.pending >= b.batchSize {
		return b.commit()
	}
	return nil
}

func (b *Bolt) commit() error {
	if b.tx == nil {
		return nil
	}
	tx := b.tx
	b.tx, b.bucket, b.pending = nil, nil, 0
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("bolt: commit: %w", err)
	}
	return nil
}

func (b *Bolt) Count() int {
	return b.count
}

type BoltStats struct {
	Keys      int
	DataSize  int
	DataAlloc int
}

// Stats reports the size of the networks bucket. Only committed records are
// counted, so call it after the dump, before Close.
func (b *Bolt) Stats() (BoltStats, error) {
	if err := b.commit(); err != nil {
		return BoltStats{}, err
	}
	var result BoltStats
	err := b.bdb.View(func(tx *bbolt.Tx) error {
		buck := tx.Bucket(NetworksBucket)
		if buck == nil {
			return nil
		}
		bs := buck.Stats()
		result = BoltStats{
			Keys:      bs.KeyN,
			DataSize:  bs.LeafInuse,
			DataAlloc: bs.BranchAlloc + bs.LeafAlloc,
		}
		return nil
	})
	return result, err
}

// Close commits outstanding records, syncs and closes the database.
func (b *Bolt) Close() error {
	err := b.commit()
	if err == nil {
		err = b.bdb.Sync()
	}
	if cerr := b.bdb.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("bolt: %w", cerr)
	}
	return err
}

// Abort rolls back uncommitted records and closes the database.
func (b *Bolt) Abort() error {
	if b.tx != nil {
		_ = b.tx.Rollback()
		b.tx, b.bucket = nil, nil
	}
	return b.bdb.Close()
}
