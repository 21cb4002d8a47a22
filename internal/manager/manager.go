// Package manager owns every IRC session, the shared transfer history, and
// the background sweeps (idle sessions, resume-queue expiry, transfer-history
// eviction). It implements irc.Registry so sessions can reconcile XDCC
// announcements and register transfers without importing this package back.
package manager

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dccbot/dccagent/internal/archive"
	"github.com/dccbot/dccagent/internal/config"
	"github.com/dccbot/dccagent/internal/dcc"
	"github.com/dccbot/dccagent/internal/irc"
	"github.com/dccbot/dccagent/internal/logging"
)

// announcementReconcileWindow is the spec.md §4.4 "within 30s" window in
// which a DCC SEND/SSEND offer is reconciled onto a pre-registered
// announcement placeholder record instead of creating a second, duplicate
// record for the same (server, nick, filename).
const announcementReconcileWindow = 30 * time.Second

// pendingAnnouncement is a placeholder transfer record created from an XDCC
// "Sending you pack" announcement, awaiting either a matching DCC SEND
// within announcementReconcileWindow (reconciled in place) or expiry (marked
// failed and dropped from the pending set by the cleanup sweep).
type pendingAnnouncement struct {
	record *dcc.Record
	at     time.Time
}

// Manager is the session registry and transfer-history owner for the whole
// agent process, one instance per running agent.
type Manager struct {
	cfg    *config.Config
	logger *slog.Logger

	mu         sync.Mutex
	sessions   map[string]*irc.Session
	logClosers map[string]io.Closer

	history *transferHistory

	pendingMu            sync.Mutex
	pendingAnnouncements map[string]*pendingAnnouncement // "server\x00nick\x00filename" -> placeholder

	md5Queue chan *dcc.Record
	md5Wg    sync.WaitGroup

	archiver archive.Uploader

	dupMu            sync.Mutex
	seenFingerprints map[string]string // content fingerprint -> filename, this process's lifetime

	cron  *cron.Cron
	stats *StatsReporter
}

// New constructs a Manager. Call Start to launch the cleanup cron and MD5
// worker pool; call Shutdown to tear everything down.
func New(cfg *config.Config, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:                  cfg,
		logger:               logger.With("component", "manager"),
		sessions:             make(map[string]*irc.Session),
		logClosers:           make(map[string]io.Closer),
		history:              newTransferHistory(logger),
		pendingAnnouncements: make(map[string]*pendingAnnouncement),
		md5Queue:             make(chan *dcc.Record, 256),
		seenFingerprints:     make(map[string]string),
	}
	if err := m.history.EnablePersistence(filepath.Join(cfg.DefaultDownloadPath, "transfer_history.jsonl")); err != nil {
		m.logger.Warn("transfer history persistence disabled", "error", err)
	}
	return m
}

// SetArchiver wires an optional S3 uploader invoked after MD5 verification.
func (m *Manager) SetArchiver(u archive.Uploader) {
	m.archiver = u
}

// Start launches the MD5 worker pool, the cron-driven cleanup loop, and the
// periodic stats reporter.
func (m *Manager) Start() {
	m.startMD5Workers(4)
	m.startCleanupCron()
	m.stats = NewStatsReporter(m)
	m.stats.Start()
}

// Shutdown disconnects every session and stops background workers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*irc.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop("Shutting down")
	}

	m.mu.Lock()
	for name, closer := range m.logClosers {
		closer.Close()
		delete(m.logClosers, name)
	}
	m.mu.Unlock()

	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
	if m.stats != nil {
		m.stats.Stop()
	}
	close(m.md5Queue)
	m.md5Wg.Wait()
}

// GetOrCreateSession returns the session for server, lazily creating and
// starting one, resolved through config.ResolveServer's
// default-server-config fallback.
func (m *Manager) GetOrCreateSession(server string) (*irc.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[server]; ok {
		return s, nil
	}

	sc, err := m.cfg.ResolveServer(server)
	if err != nil {
		return nil, err
	}

	sessionLogger, closer, _, err := logging.NewSessionLogger(m.logger, m.cfg.SessionLogDir, server, server)
	if err != nil {
		m.logger.Warn("per-server session log disabled", "server", server, "error", err)
		sessionLogger, closer = m.logger, io.NopCloser(nil)
	}

	s := irc.NewSession(server, sc, m.cfg, m, sessionLogger)
	m.sessions[server] = s
	m.logClosers[server] = closer
	s.Start()
	return s, nil
}

// Enqueue queues a control command on the named server's session, creating
// the session first if needed.
func (m *Manager) Enqueue(server string, cmd irc.Command) error {
	s, err := m.GetOrCreateSession(server)
	if err != nil {
		return fmt.Errorf("enqueue on %s: %w", server, err)
	}
	s.Enqueue(cmd)
	return nil
}

// Cancel cancels an in-progress transfer on the named server.
func (m *Manager) Cancel(server, nick, filename string) bool {
	m.mu.Lock()
	s, ok := m.sessions[server]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return s.Cancel(nick, filename)
}

// Snapshot is the read-only view returned to the control-adapter boundary.
type Snapshot struct {
	Networks  []string
	Transfers []dcc.Record
}

// Snapshot returns the current server list and transfer history.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	networks := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		networks = append(networks, name)
	}
	m.mu.Unlock()

	return Snapshot{
		Networks:  networks,
		Transfers: m.history.all(),
	}
}

// --- irc.Registry ---

// ReconcileAnnouncement pre-registers a placeholder transfer record for an
// XDCC "Sending you pack" announcement, per spec.md §3's lifecycle rule
// ("Transfer record created either (a) on an announcement PRIVMSG ... with
// start_time=now and completed=false"). The placeholder is visible in
// Snapshot immediately; a matching DCC SEND/SSEND within
// announcementReconcileWindow reconciles onto it in place (RegisterTransfer)
// rather than creating a second record. Unmatched placeholders are expired
// by the cleanup sweep (sweepPendingAnnouncements).
func (m *Manager) ReconcileAnnouncement(server, nick, filename, md5 string) *dcc.Record {
	if md5 == "" {
		return nil
	}

	record := &dcc.Record{
		ID:           m.nextID(server, nick, filename),
		Server:       server,
		Nick:         nick,
		Filename:     filename,
		AnnouncedMD5: md5,
		StartTime:    time.Now(),
		Status:       dcc.StatusStarted,
		Completed:    false,
	}
	m.history.register(record)

	m.pendingMu.Lock()
	m.pendingAnnouncements[announcementKey(server, nick, filename)] = &pendingAnnouncement{record: record, at: time.Now()}
	m.pendingMu.Unlock()

	return record
}

// ReconcileCompletion handles a peer's own "Transfer Completed ... md5sum:"
// announcement: it looks up a record from (server, nick) whose announced or
// computed MD5 equals md5, and logs a warning if that record already has a
// computed digest that differs. It does not attach md5 to a record that
// lacks one, does not enqueue an MD5 job, and does not re-check a record
// whose digest is computed later.
func (m *Manager) ReconcileCompletion(server, nick, md5 string) {
	rec := m.history.findByAnnouncedOrFileMD5(server, nick, md5)
	if rec == nil {
		return
	}
	if rec.FileMD5 != "" && rec.FileMD5 != md5 {
		m.logger.Warn("peer-announced completion md5 does not match computed md5",
			"server", server, "nick", nick, "filename", rec.Filename, "peer_md5", md5, "computed_md5", rec.FileMD5)
	}
}

// RegisterTransfer adopts a freshly-started transfer record into the history
// registry. If an unexpired announcement placeholder is pending for the same
// (server, nick, filename), record is merged onto that placeholder in place
// (same ID, same history entry) and the placeholder object is returned
// instead of record, per spec.md §3's "reconciled ... single record" rule.
// Otherwise record is registered as a new history entry and returned as-is.
func (m *Manager) RegisterTransfer(server string, record *dcc.Record) *dcc.Record {
	key := announcementKey(server, record.Nick, record.Filename)

	m.pendingMu.Lock()
	pending, ok := m.pendingAnnouncements[key]
	if ok {
		delete(m.pendingAnnouncements, key)
	}
	m.pendingMu.Unlock()

	if ok && time.Since(pending.at) <= announcementReconcileWindow {
		m.history.mergeInto(pending.record, record)
		return pending.record
	}

	m.history.register(record)
	return record
}

// sweepPendingAnnouncements expires announcement placeholders that went
// unmatched by a DCC SEND for longer than announcementReconcileWindow: the
// placeholder record is marked failed so the regular history-eviction sweep
// can reclaim it, and it is dropped from the pending set so a later,
// unrelated transfer for the same (server, nick, filename) does not pick up
// a stale announcement's MD5.
func (m *Manager) sweepPendingAnnouncements() {
	now := time.Now()

	m.pendingMu.Lock()
	var expired []*pendingAnnouncement
	for key, pending := range m.pendingAnnouncements {
		if now.Sub(pending.at) > announcementReconcileWindow {
			expired = append(expired, pending)
			delete(m.pendingAnnouncements, key)
		}
	}
	m.pendingMu.Unlock()

	for _, pending := range expired {
		m.history.markFailed(pending.record, "announcement not matched by a DCC SEND within the reconcile window")
	}
}

// nextID generates a stable-enough-to-be-unique transfer record ID.
func (m *Manager) nextID(server, nick, filename string) string {
	return fmt.Sprintf("%s-%s-%s-%d", server, nick, filename, time.Now().UnixNano())
}

// EnqueueMD5 hands a completed record to the MD5 worker pool.
func (m *Manager) EnqueueMD5(record *dcc.Record) {
	select {
	case m.md5Queue <- record:
	default:
		m.logger.Warn("md5 queue full, dropping digest job", "filename", record.Filename)
	}
}

// HasActiveTransfer reports whether a non-terminal transfer already exists
// for (server, nick, filename). A pending announcement placeholder for the
// same key is not counted, so the DCC SEND that follows the announcement is
// accepted and reconciled onto it by RegisterTransfer.
func (m *Manager) HasActiveTransfer(server, nick, filename string) bool {
	m.pendingMu.Lock()
	pending, ok := m.pendingAnnouncements[announcementKey(server, nick, filename)]
	m.pendingMu.Unlock()
	if !ok {
		return m.history.hasActive(server, nick, filename)
	}
	for _, rec := range m.history.all() {
		if rec.ID != pending.record.ID && rec.Server == server && rec.Nick == nick &&
			rec.Filename == filename && !rec.Status.IsTerminal() {
			return true
		}
	}
	return false
}

// HasFreeSpace reports whether the download volume has enough free space for
// a transfer of the given size.
func (m *Manager) HasFreeSpace(size int64) bool {
	return diskHasFreeSpace(m.cfg.DefaultDownloadPath, size, m.cfg.DiskFreeGuard)
}

func announcementKey(server, nick, filename string) string {
	return server + "\x00" + nick + "\x00" + filename
}
