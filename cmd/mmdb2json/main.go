// Command mmdb2json dumps every network of a MaxMind DB file along with its
// data.
//
//	mmdb2json GeoLite2-Country.mmdb countries.json
//
// The output format follows the output file extension: .msgpack or .mpk for a
// stream of msgpack maps, .db or .bolt for a bbolt database keyed by network,
// and JSON otherwise.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/google/renameio/v2"

	"github.com/andreyvit/mmdb"
	"github.com/andreyvit/mmdb/mmap"
	"github.com/andreyvit/mmdb/sink"
)

const decodeCacheSize = 8192

type fileSink interface {
	mmdb.Sink
	Count() int
	Close() error
}

func main() {
	app := kingpin.New("mmdb2json", "Dumps all networks of a MaxMind DB file.")
	input := app.Arg("input", "MaxMind DB file to read.").Required().String()
	output := app.Arg("output", "File to write (.json, .msgpack/.mpk or .db/.bolt).").Required().String()
	if _, err := app.Parse(os.Args[1:]); err != nil {
		app.FatalUsage("%v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger, *input, *output); err != nil {
		logger.Error("dump failed", "input", *input, "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, input, output string) error {
	start := time.Now()
	db, err := mmdb.Open(input, mmdb.Options{
		Mmap:        true,
		MmapOptions: mmap.Prefault,
		CacheSize:   decodeCacheSize,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	md := db.Metadata()
	logger.Info("dumping database",
		"type", md.DatabaseType,
		"ip_version", md.IPVersion,
		"nodes", md.NodeCount,
		"record_size", md.RecordSize,
		"built", md.BuildTime().Format(time.DateOnly),
		"size", humanize.Bytes(fileSize(input)),
		"checksum", fmt.Sprintf("%016x", db.Checksum()))

	var count int
	switch strings.ToLower(filepath.Ext(output)) {
	case ".db", ".bolt":
		count, err = dumpBolt(logger, db, output)
	case ".msgpack", ".mpk":
		count, err = dumpFile(db, output, func(w io.Writer) fileSink { return sink.NewMsgPack(w) })
	default:
		count, err = dumpFile(db, output, func(w io.Writer) fileSink { return sink.NewJSON(w) })
	}
	if err != nil {
		return err
	}

	logger.Info("done",
		"records", humanize.Comma(int64(count)),
		"output", output,
		"written", humanize.Bytes(fileSize(output)),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// dumpFile writes into a pending file that only replaces output once the
// whole dump succeeded.
func dumpFile(db *mmdb.Database, output string, newSink func(w io.Writer) fileSink) (int, error) {
	pf, err := renameio.NewPendingFile(output, renameio.WithPermissions(0o644))
	if err != nil {
		return 0, err
	}
	defer pf.Cleanup()

	bw := bufio.NewWriterSize(pf, 1024*1024)
	s := newSink(bw)
	if err := db.Dump(s); err != nil {
		return s.Count(), err
	}
	if err := s.Close(); err != nil {
		return s.Count(), err
	}
	if err := bw.Flush(); err != nil {
		return s.Count(), err
	}
	return s.Count(), pf.CloseAtomicallyReplace()
}

func dumpBolt(logger *slog.Logger, db *mmdb.Database, output string) (int, error) {
	tmp := output + ".tmp"
	_ = os.Remove(tmp)
	s, err := sink.OpenBolt(tmp, db, 0)
	if err != nil {
		return 0, err
	}
	if err := db.Dump(s); err != nil {
		_ = s.Abort()
		_ = os.Remove(tmp)
		return s.Count(), err
	}
	stats, err := s.Stats()
	if err != nil {
		_ = s.Abort()
		_ = os.Remove(tmp)
		return s.Count(), err
	}
	logger.Info("bolt networks bucket",
		"keys", humanize.Comma(int64(stats.Keys)),
		"in_use", humanize.Bytes(uint64(stats.DataSize)),
		"allocated", humanize.Bytes(uint64(stats.DataAlloc)))
	if err := s.Close(); err != nil {
		_ = os.Remove(tmp)
		return s.Count(), err
	}
	if err := os.Rename(tmp, output); err != nil {
		return s.Count(), fmt.Errorf("rename %s: %w", tmp, err)
	}
	return s.Count(), nil
}

func fileSize(path string) uint64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return uint64(fi.Size())
}
