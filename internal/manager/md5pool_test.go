package manager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dccbot/dccagent/internal/config"
	"github.com/dccbot/dccagent/internal/dcc"
)

func TestContentFingerprintStableForIdenticalContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")
	os.WriteFile(a, []byte("identical payload"), 0644)
	os.WriteFile(b, []byte("identical payload"), 0644)

	fpA, err := contentFingerprint(a)
	if err != nil {
		t.Fatalf("fingerprint a: %v", err)
	}
	fpB, err := contentFingerprint(b)
	if err != nil {
		t.Fatalf("fingerprint b: %v", err)
	}
	if fpA != fpB {
		t.Fatalf("expected identical content to fingerprint identically: %q != %q", fpA, fpB)
	}
}

func TestContentFingerprintDiffersForDifferentContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")
	os.WriteFile(a, []byte("payload one"), 0644)
	os.WriteFile(b, []byte("payload two"), 0644)

	fpA, _ := contentFingerprint(a)
	fpB, _ := contentFingerprint(b)
	if fpA == fpB {
		t.Fatal("expected different content to fingerprint differently")
	}
}

func TestManagerDigestSetsFileMD5(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{DefaultDownloadPath: dir}
	m := New(cfg, testLogger())

	path := filepath.Join(dir, "payload.bin")
	os.WriteFile(path, []byte("hello world"), 0644)

	rec := &dcc.Record{ID: "1", Filename: "payload.bin", FilePath: path}
	m.digest(rec)

	if rec.FileMD5 == "" {
		t.Fatal("expected FileMD5 to be populated")
	}
	// md5("hello world")
	const want = "5eb63bbbe01eeed093cb22bb8f5acdc3"
	if rec.FileMD5 != want {
		t.Fatalf("FileMD5 = %q, want %q", rec.FileMD5, want)
	}
}

func TestManagerDigestLogsAnnouncedMismatch(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{DefaultDownloadPath: dir}
	m := New(cfg, testLogger())

	path := filepath.Join(dir, "payload.bin")
	os.WriteFile(path, []byte("hello world"), 0644)

	rec := &dcc.Record{ID: "1", Filename: "payload.bin", FilePath: path, AnnouncedMD5: "deadbeef"}
	m.digest(rec) // should not panic, just warn-log the mismatch
	if rec.FileMD5 == "" {
		t.Fatal("expected digest to still populate FileMD5 on mismatch")
	}
}
