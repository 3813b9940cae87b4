package mmdb

import (
	"bytes"
	"time"

	"github.com/mitchellh/mapstructure"
)

// dataSectionSeparatorSize is the number of zero bytes between the search
// tree and the data section.
const dataSectionSeparatorSize = 16

var metadataStartMarker = []byte("\xAB\xCD\xEFMaxMind.com")

var requiredMetadataKeys = []string{"node_count", "record_size", "ip_version"}

// Metadata holds the database-level parameters from the metadata block.
type Metadata struct {
	NodeCount  uint `mapstructure:"node_count"`
	RecordSize uint `mapstructure:"record_size"`
	IPVersion  uint `mapstructure:"ip_version"`

	DatabaseType             string            `mapstructure:"database_type"`
	Languages                []string          `mapstructure:"languages"`
	Description              map[string]string `mapstructure:"description"`
	BuildEpoch               uint64            `mapstructure:"build_epoch"`
	BinaryFormatMajorVersion uint              `mapstructure:"binary_format_major_version"`
	BinaryFormatMinorVersion uint              `mapstructure:"binary_format_minor_version"`

	// ExplicitSearchTreeSize is only set by databases that carry the
	// (non-standard) search_tree_size key.
	ExplicitSearchTreeSize *uint `mapstructure:"search_tree_size"`
}

// NodeByteSize is the size of one search tree node, i.e. two records.
func (md Metadata) NodeByteSize() uint {
	return md.RecordSize * 2 / 8
}

func (md Metadata) SearchTreeSize() uint {
	return md.NodeCount * md.NodeByteSize()
}

// DataSectionStart is the absolute offset data pointers are relative to.
func (md Metadata) DataSectionStart() uint {
	return md.SearchTreeSize() + dataSectionSeparatorSize
}

// MaxDepth is the address width in bits.
func (md Metadata) MaxDepth() int {
	if md.IPVersion == 4 {
		return 32
	}
	return 128
}

func (md Metadata) BuildTime() time.Time {
	return time.Unix(int64(md.BuildEpoch), 0).UTC()
}

// findMetadata returns the offset just past the last metadata marker in buf.
// The marker may legitimately occur earlier, e.g. inside a string in the data
// section, so only the last occurrence counts.
func findMetadata(buf []byte) (uint, error) {
	pos := bytes.LastIndex(buf, metadataStartMarker)
	if pos < 0 {
		return 0, formatErrf(MarkerNotFound, noOffset, nil, "")
	}
	return uint(pos + len(metadataStartMarker)), nil
}

func parseMetadata(buf []byte) (Metadata, uint, error) {
	start, err := findMetadata(buf)
	if err != nil {
		return Metadata{}, 0, err
	}

	d, err := newDecoder(buf, start, 0)
	if err != nil {
		return Metadata{}, 0, err
	}
	v, _, err := d.decode(start)
	if err != nil {
		return Metadata{}, 0, err
	}
	if v.Kind() != KindMap {
		return Metadata{}, 0, formatErrf(MetadataMalformed, start, nil, "metadata is %v, wanted map", v.Kind())
	}

	for _, key := range requiredMetadataKeys {
		f := v.Get(key)
		if !f.IsValid() {
			return Metadata{}, 0, formatErrf(MetadataMalformed, start, nil, "missing %s", key)
		}
		switch f.Kind() {
		case KindUint16, KindUint32, KindUint64:
		default:
			return Metadata{}, 0, formatErrf(MetadataMalformed, start, nil, "%s is %v, wanted unsigned integer", key, f.Kind())
		}
	}

	var md Metadata
	err = mapstructure.Decode(v.Interface(), &md)
	if err != nil {
		return Metadata{}, 0, formatErrf(MetadataMalformed, start, err, "")
	}

	if err := md.validate(uint(len(buf))); err != nil {
		return Metadata{}, 0, err
	}
	return md, start, nil
}

func (md *Metadata) validate(fileSize uint) error {
	switch md.RecordSize {
	case 24, 28, 32:
	default:
		return formatErrf(MetadataMalformed, noOffset, nil, "unsupported record_size %d", md.RecordSize)
	}
	if md.IPVersion != 4 && md.IPVersion != 6 {
		return formatErrf(MetadataMalformed, noOffset, nil, "unsupported ip_version %d", md.IPVersion)
	}
	if md.NodeCount == 0 {
		return formatErrf(MetadataMalformed, noOffset, nil, "node_count is zero")
	}
	if md.ExplicitSearchTreeSize != nil && *md.ExplicitSearchTreeSize != md.SearchTreeSize() {
		return formatErrf(MetadataMalformed, noOffset, nil, "search_tree_size %d, wanted node_count * node_byte_size = %d", *md.ExplicitSearchTreeSize, md.SearchTreeSize())
	}
	if md.NodeCount > fileSize/md.NodeByteSize() || md.DataSectionStart() > fileSize {
		return formatErrf(MetadataMalformed, noOffset, nil, "search tree of %d nodes does not fit into %d bytes", md.NodeCount, fileSize)
	}
	return nil
}
