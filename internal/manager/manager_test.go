package manager

import (
	"testing"

	"github.com/dccbot/dccagent/internal/config"
	"github.com/dccbot/dccagent/internal/dcc"
	"github.com/dccbot/dccagent/internal/irc"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DefaultDownloadPath: t.TempDir(),
		MaxFileSize:         10 << 20,
		IncompleteSuffix:    ".part",
		DefaultServerConfig: &config.ServerConfig{
			Nick: "dccbot",
		},
	}
}

func TestGetOrCreateSessionReturnsSameInstance(t *testing.T) {
	cfg := testConfig(t)
	m := New(cfg, testLogger())
	defer m.Shutdown()

	s1, err := m.GetOrCreateSession("127.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s2, err := m.GetOrCreateSession("127.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s1 != s2 {
		t.Fatal("expected the same session instance on a second call")
	}
}

func TestGetOrCreateSessionErrorsWithoutDefault(t *testing.T) {
	cfg := &config.Config{DefaultDownloadPath: t.TempDir()}
	m := New(cfg, testLogger())
	defer m.Shutdown()

	if _, err := m.GetOrCreateSession("unknown.example.org"); err == nil {
		t.Fatal("expected an error when no server config and no default exist")
	}
}

func TestManagerEnqueueCreatesSessionAndSnapshotListsIt(t *testing.T) {
	cfg := testConfig(t)
	m := New(cfg, testLogger())
	defer m.Shutdown()

	if err := m.Enqueue("127.0.0.1", irc.Command{Kind: "join", Channels: []string{"#warez"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := m.Snapshot()
	if len(snap.Networks) != 1 || snap.Networks[0] != "127.0.0.1" {
		t.Fatalf("expected snapshot to list the created network, got %+v", snap.Networks)
	}
}

func TestManagerCancelUnknownServerReturnsFalse(t *testing.T) {
	cfg := testConfig(t)
	m := New(cfg, testLogger())
	defer m.Shutdown()

	if m.Cancel("never-connected.example.org", "nick", "file.bin") {
		t.Fatal("expected Cancel against an unknown server to report false")
	}
}

func TestManagerReconcileAnnouncementAppliesToLaterRegisterTransfer(t *testing.T) {
	cfg := testConfig(t)
	m := New(cfg, testLogger())
	defer m.Shutdown()

	placeholder := m.ReconcileAnnouncement("net1", "alice", "movie.mkv", "abc123")
	if placeholder == nil {
		t.Fatal("expected ReconcileAnnouncement to pre-register a placeholder record")
	}

	snapBefore := m.Snapshot()
	if len(snapBefore.Transfers) != 1 {
		t.Fatalf("expected the placeholder to be visible in Snapshot before the matching DCC SEND, got %d transfers", len(snapBefore.Transfers))
	}

	rec := &dcc.Record{ID: "1", Server: "net1", Nick: "alice", Filename: "movie.mkv"}
	returned := m.RegisterTransfer("net1", rec)

	if returned != placeholder {
		t.Fatal("expected RegisterTransfer to reconcile onto the announcement placeholder in place, not create a second record")
	}
	if returned.AnnouncedMD5 != "abc123" {
		t.Fatalf("AnnouncedMD5 = %q, want applied from the earlier announcement", returned.AnnouncedMD5)
	}
	if !m.HasActiveTransfer("net1", "alice", "movie.mkv") {
		t.Fatal("expected the freshly registered non-terminal record to read as active")
	}

	snapAfter := m.Snapshot()
	if len(snapAfter.Transfers) != 1 {
		t.Fatalf("expected reconciliation to collapse onto a single history entry, got %d transfers", len(snapAfter.Transfers))
	}
}
