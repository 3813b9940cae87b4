package mmdb

import (
	"math/big"
	"testing"
	"time"

	mt "github.com/andreyvit/mmdb/mmdbtest"
)

func oneLeafFixture(data []byte) *mt.DB {
	db := &mt.DB{Data: data}
	db.Nodes = make([][2]uint, 1)
	db.Nodes[0] = [2]uint{db.Leaf(0), db.Empty()}
	return db
}

func TestParseMetadata(t *testing.T) {
	fixture := oneLeafFixture(mt.String("x"))
	buf := fixture.Build()

	md, start, err := parseMetadata(buf)
	ensure(err)
	deepEqual(t, start, uint(len(buf)-len(fixture.DefaultMetadata())))
	deepEqual(t, md.NodeCount, uint(1))
	deepEqual(t, md.RecordSize, uint(24))
	deepEqual(t, md.IPVersion, uint(4))
	deepEqual(t, md.DatabaseType, "Test-DB")
	deepEqual(t, md.Languages, []string{"en"})
	deepEqual(t, md.Description, map[string]string{"en": "Test database"})
	deepEqual(t, md.BinaryFormatMajorVersion, uint(2))
	deepEqual(t, md.BuildTime(), time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC))
	deepEqual(t, md.ExplicitSearchTreeSize, (*uint)(nil))

	deepEqual(t, md.NodeByteSize(), uint(6))
	deepEqual(t, md.SearchTreeSize(), uint(6))
	deepEqual(t, md.DataSectionStart(), uint(22))
	deepEqual(t, md.MaxDepth(), 32)
}

func TestParseMetadata_DerivedSizes(t *testing.T) {
	tests := []struct {
		recordSize, ipVersion int
		nodeByteSize          uint
		maxDepth              int
	}{
		{24, 4, 6, 32},
		{28, 6, 7, 128},
		{32, 6, 8, 128},
	}
	for _, test := range tests {
		fixture := oneLeafFixture(mt.String("x"))
		fixture.RecordSize, fixture.IPVersion = test.recordSize, test.ipVersion
		md, _, err := parseMetadata(fixture.Build())
		if err != nil {
			t.Errorf("** parseMetadata(record_size %d) failed: %v", test.recordSize, err)
			continue
		}
		deepEqual(t, md.NodeByteSize(), test.nodeByteSize)
		deepEqual(t, md.DataSectionStart(), test.nodeByteSize+16)
		deepEqual(t, md.MaxDepth(), test.maxDepth)
	}
}

func TestParseMetadata_LastMarkerWins(t *testing.T) {
	decoy := mt.Map(
		mt.String("node_count"), mt.Uint32(1),
		mt.String("record_size"), mt.Uint16(32),
		mt.String("ip_version"), mt.Uint16(6),
	)
	fixture := oneLeafFixture(mt.String(string(mt.MetadataMarker) + string(decoy)))

	md, _, err := parseMetadata(fixture.Build())
	ensure(err)
	deepEqual(t, md.RecordSize, uint(24))
	deepEqual(t, md.IPVersion, uint(4))
}

func TestParseMetadata_PointersRelativeToMetadata(t *testing.T) {
	build := func(target uint) []byte {
		return mt.Map(
			mt.String("node_count"), mt.Uint32(1),
			mt.String("record_size"), mt.Uint16(24),
			mt.String("ip_version"), mt.Uint16(4),
			mt.String("database_type"), mt.Pointer(target),
		)
	}
	m := build(0)
	fixture := oneLeafFixture(mt.String("x"))
	fixture.Metadata = mt.Cat(build(uint(len(m))), mt.String("Pointed-DB"))

	md, _, err := parseMetadata(fixture.Build())
	ensure(err)
	deepEqual(t, md.DatabaseType, "Pointed-DB")
}

func TestParseMetadata_ExplicitSearchTreeSize(t *testing.T) {
	fixture := oneLeafFixture(mt.String("x"))
	fixture.ExtraMetadata = [][]byte{mt.String("search_tree_size"), mt.Uint32(6)}
	md, _, err := parseMetadata(fixture.Build())
	ensure(err)
	if md.ExplicitSearchTreeSize == nil || *md.ExplicitSearchTreeSize != 6 {
		t.Errorf("** ExplicitSearchTreeSize = %v, wanted 6", md.ExplicitSearchTreeSize)
	}

	fixture.ExtraMetadata = [][]byte{mt.String("search_tree_size"), mt.Uint32(7)}
	_, _, err = parseMetadata(fixture.Build())
	isCause(t, err, MetadataMalformed)
}

func TestParseMetadata_Errors(t *testing.T) {
	meta := func(kvs ...[]byte) []byte {
		return mt.Map(kvs...)
	}
	nc, rs, ipv := mt.String("node_count"), mt.String("record_size"), mt.String("ip_version")

	tests := []struct {
		name     string
		metadata []byte
		cause    Cause
	}{
		{"not a map", mt.String("nope"), MetadataMalformed},
		{"missing node_count", meta(rs, mt.Uint16(24), ipv, mt.Uint16(4)), MetadataMalformed},
		{"missing record_size", meta(nc, mt.Uint32(1), ipv, mt.Uint16(4)), MetadataMalformed},
		{"missing ip_version", meta(nc, mt.Uint32(1), rs, mt.Uint16(24)), MetadataMalformed},
		{"uint128 node_count", meta(nc, mt.Uint128(big.NewInt(1)), rs, mt.Uint16(24), ipv, mt.Uint16(4)), MetadataMalformed},
		{"string node_count", meta(nc, mt.String("1"), rs, mt.Uint16(24), ipv, mt.Uint16(4)), MetadataMalformed},
		{"record_size 30", meta(nc, mt.Uint32(1), rs, mt.Uint16(30), ipv, mt.Uint16(4)), MetadataMalformed},
		{"ip_version 5", meta(nc, mt.Uint32(1), rs, mt.Uint16(24), ipv, mt.Uint16(5)), MetadataMalformed},
		{"zero nodes", meta(nc, mt.Uint32(0), rs, mt.Uint16(24), ipv, mt.Uint16(4)), MetadataMalformed},
		{"tree larger than file", meta(nc, mt.Uint32(1000), rs, mt.Uint16(24), ipv, mt.Uint16(4)), MetadataMalformed},
		{"wrong languages type", meta(nc, mt.Uint32(1), rs, mt.Uint16(24), ipv, mt.Uint16(4), mt.String("languages"), mt.Uint16(1)), MetadataMalformed},
		{"truncated", mt.Ctrl(mt.TypeMap, 3), TruncatedRead},
		{"bad tag", []byte{0x00, 0x09}, UnknownValueTag},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fixture := oneLeafFixture(mt.String("x"))
			fixture.Metadata = test.metadata
			_, _, err := parseMetadata(fixture.Build())
			isCause(t, err, test.cause)
		})
	}
}

func TestParseMetadata_MarkerNotFound(t *testing.T) {
	for _, buf := range [][]byte{
		nil,
		[]byte("just some bytes"),
		mt.MetadataMarker[:len(mt.MetadataMarker)-1],
	} {
		_, _, err := parseMetadata(buf)
		isCause(t, err, MarkerNotFound)
	}
}

func TestParseMetadata_RejectsWideRequiredKeys(t *testing.T) {
	fixture := oneLeafFixture(mt.String("x"))
	fixture.Metadata = mt.Map(
		mt.String("node_count"), mt.Uint128(big.NewInt(1)),
		mt.String("record_size"), mt.Uint16(24),
		mt.String("ip_version"), mt.Uint16(4),
	)
	_, _, err := parseMetadata(fixture.Build())
	isCause(t, err, MetadataMalformed)
	deepEqual(t, err.(*FormatError).Msg, "node_count is uint128, wanted unsigned integer")
}
