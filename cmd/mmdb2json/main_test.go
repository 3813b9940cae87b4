package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"

	"github.com/andreyvit/mmdb/mmdbtest"
	"github.com/andreyvit/mmdb/sink"
)

func writeFixture(t *testing.T) string {
	fixture := &mmdbtest.DB{Data: mmdbtest.Map(mmdbtest.String("country"), mmdbtest.String("US"))}
	fixture.Nodes = make([][2]uint, 1)
	fixture.Nodes[0] = [2]uint{fixture.Leaf(0), fixture.Leaf(0)}

	path := filepath.Join(t.TempDir(), "in.mmdb")
	if err := os.WriteFile(path, fixture.Build(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_JSON(t *testing.T) {
	input := writeFixture(t)
	output := filepath.Join(t.TempDir(), "out.json")

	if err := run(discardLogger(), input, output); err != nil {
		t.Fatalf("** run failed: %v", err)
	}

	raw, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	var records []struct {
		Net  string            `json:"net"`
		Bits int               `json:"bits"`
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		t.Fatalf("** output is not JSON: %v\n%s", err, raw)
	}
	if len(records) != 2 || records[1].Net != "128.0.0.0" || records[1].Bits != 1 || records[1].Data["country"] != "US" {
		t.Errorf("** got %+v", records)
	}
}

func TestRun_MsgPack(t *testing.T) {
	input := writeFixture(t)
	output := filepath.Join(t.TempDir(), "out.msgpack")
	if err := run(discardLogger(), input, output); err != nil {
		t.Fatalf("** run failed: %v", err)
	}
	if fi, err := os.Stat(output); err != nil || fi.Size() == 0 {
		t.Errorf("** output missing or empty: %v", err)
	}
}

func TestRun_Bolt(t *testing.T) {
	input := writeFixture(t)
	output := filepath.Join(t.TempDir(), "out.db")
	if err := run(discardLogger(), input, output); err != nil {
		t.Fatalf("** run failed: %v", err)
	}
	if _, err := os.Stat(output + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("** temporary file left behind: %v", err)
	}

	bdb, err := bbolt.Open(output, 0o644, &bbolt.Options{ReadOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	defer bdb.Close()
	err = bdb.View(func(tx *bbolt.Tx) error {
		if n := tx.Bucket(sink.NetworksBucket).Stats().KeyN; n != 2 {
			t.Errorf("** got %d networks, wanted 2", n)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRun_FailureLeavesNoOutput(t *testing.T) {
	input := filepath.Join(t.TempDir(), "garbage.mmdb")
	if err := os.WriteFile(input, []byte("not a database"), 0o644); err != nil {
		t.Fatal(err)
	}
	output := filepath.Join(t.TempDir(), "out.json")
	if err := run(discardLogger(), input, output); err == nil {
		t.Fatalf("** run succeeded on garbage input")
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Errorf("** output exists after failure: %v", err)
	}
}
