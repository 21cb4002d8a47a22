package manager

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// startCleanupCron registers the periodic sweep (idle sessions, idle
// channels, resume-queue expiry, transfer-history eviction) driven by
// robfig/cron/v3, on an "@every 1s" schedule since this sweep has no
// user-facing schedule of its own.
func (m *Manager) startCleanupCron() {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(m.logger.Handler(), slog.LevelDebug))))

	if _, err := c.AddFunc("@every 1s", m.sweep); err != nil {
		m.logger.Error("registering cleanup cron job failed", "error", err)
		return
	}

	m.cron = c
	c.Start()
}

func (m *Manager) sweep() {
	m.sweepSessions()
	m.sweepPendingAnnouncements()
	m.history.evictOlderThan(m.cfg.TransferListTimeout)
}

func (m *Manager) sweepSessions() {
	m.mu.Lock()
	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	m.mu.Unlock()

	for _, name := range names {
		m.mu.Lock()
		s, ok := m.sessions[name]
		m.mu.Unlock()
		if !ok {
			continue
		}

		s.PartIdleChannels(m.cfg.ChannelIdleTimeout)
		s.SweepResumeQueue(m.cfg.ResumeTimeout)

		if s.IsIdle(m.cfg.ServerIdleTimeout) {
			s.Stop("idle timeout")
			m.mu.Lock()
			delete(m.sessions, name)
			if closer, ok := m.logClosers[name]; ok {
				closer.Close()
				delete(m.logClosers, name)
			}
			m.mu.Unlock()
			m.logger.Info("removed idle session", "server", name)
		}
	}
}
