package manager

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/dccbot/dccagent/internal/dcc"
)

// startMD5Workers launches a bounded pool draining md5Queue, keeping MD5
// digesting (blocking file I/O) off the network event path.
func (m *Manager) startMD5Workers(n int) {
	for i := 0; i < n; i++ {
		m.md5Wg.Add(1)
		go m.md5Worker()
	}
}

func (m *Manager) md5Worker() {
	defer m.md5Wg.Done()
	for record := range m.md5Queue {
		m.digest(record)
	}
}

func (m *Manager) digest(record *dcc.Record) {
	sum, err := md5File(record.FilePath)
	if err != nil {
		m.logger.Warn("md5 digest failed", "filename", record.Filename, "error", err)
		return
	}
	record.FileMD5 = sum

	if record.AnnouncedMD5 != "" && record.AnnouncedMD5 != record.FileMD5 {
		m.logger.Warn("completed transfer md5 does not match announced md5",
			"filename", record.Filename, "announced", record.AnnouncedMD5, "computed", record.FileMD5)
	}

	m.checkDuplicateContent(record)

	if m.archiver != nil {
		if err := m.archiver.Upload(context.Background(), record.FilePath, record.Filename); err != nil {
			m.logger.Warn("archival upload failed", "filename", record.Filename, "error", err)
		}
	}
}

// md5File streams path through crypto/md5 in 8KiB blocks.
func md5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, 8*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// contentFingerprint feeds a file's bytes through a dictionary-free zstd
// encoder and hashes the compressed stream, producing a same-session
// de-dup fingerprint independent of the container file's name or mtime.
// This never gates transfer acceptance, only the diagnostic log below.
func contentFingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	enc, err := zstd.NewWriter(h)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(enc, f); err != nil {
		enc.Close()
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// checkDuplicateContent logs (without rejecting) when a completed transfer's
// content matches another completed transfer from this process's lifetime.
func (m *Manager) checkDuplicateContent(record *dcc.Record) {
	fp, err := contentFingerprint(record.FilePath)
	if err != nil {
		m.logger.Debug("duplicate-content fingerprint failed", "filename", record.Filename, "error", err)
		return
	}

	m.dupMu.Lock()
	existing, dup := m.seenFingerprints[fp]
	if !dup {
		m.seenFingerprints[fp] = record.Filename
	}
	m.dupMu.Unlock()

	if dup && existing != record.Filename {
		m.logger.Info("duplicate transfer content detected", "filename", record.Filename, "duplicate_of", existing)
	}
}
