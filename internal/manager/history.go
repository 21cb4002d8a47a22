package manager

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/klauspost/pgzip"

	"github.com/dccbot/dccagent/internal/dcc"
)

// historyMaxEntries bounds in-memory history before a rotation compresses the
// oldest half to a .jsonl.gz file.
const historyMaxEntries = 5000

// transferHistory is the in-memory + optionally-persisted registry of every
// transfer this agent has seen, keyed by record ID.
type transferHistory struct {
	logger *slog.Logger

	mu      sync.Mutex
	records map[string]*dcc.Record
	order   []string // insertion order, oldest first, for eviction/rotation

	persistPath string
	persistFile *os.File
}

func newTransferHistory(logger *slog.Logger) *transferHistory {
	return &transferHistory{
		logger:  logger.With("component", "transfer_history"),
		records: make(map[string]*dcc.Record),
	}
}

// EnablePersistence opens (or creates) a JSONL file that every register()
// call appends a line to, for crash-recovery/audit purposes.
func (h *transferHistory) EnablePersistence(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.persistPath = path
	h.persistFile = f
	h.mu.Unlock()
	return nil
}

func (h *transferHistory) register(record *dcc.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records[record.ID] = record
	h.order = append(h.order, record.ID)

	h.appendLineLocked(record)

	if len(h.order) > historyMaxEntries {
		h.rotateLocked()
	}
}

func (h *transferHistory) appendLineLocked(record *dcc.Record) {
	if h.persistFile == nil {
		return
	}
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	h.persistFile.Write(append(data, '\n'))
}

// mergeInto copies every field of src onto the already-registered dst,
// preserving dst's identity (ID, StartTime, AnnouncedMD5) so a later DCC
// SEND/SSEND offer updates the announcement placeholder in place instead of
// creating a second history entry for the same transfer.
func (h *transferHistory) mergeInto(dst, src *dcc.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id, startTime, md5 := dst.ID, dst.StartTime, dst.AnnouncedMD5
	*dst = *src
	dst.ID, dst.StartTime, dst.AnnouncedMD5 = id, startTime, md5

	h.appendLineLocked(dst)
}

// markFailed transitions record to StatusFailed with reason, for records
// (such as unmatched announcement placeholders) that never reach the normal
// Transfer FSM finalization path.
func (h *transferHistory) markFailed(record *dcc.Record, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	record.Status = dcc.StatusFailed
	record.Error = reason
	h.appendLineLocked(record)
}

// rotateLocked compresses the oldest half of the in-memory history into a
// timestamped .jsonl.gz file via pgzip (parallel gzip, suited to the large
// history files a busy bouncer accumulates) and drops them from memory.
func (h *transferHistory) rotateLocked() {
	keep := historyMaxEntries / 2
	drop := h.order[:len(h.order)-keep]
	h.order = h.order[len(h.order)-keep:]

	if h.persistPath == "" {
		for _, id := range drop {
			delete(h.records, id)
		}
		return
	}

	archivePath := h.persistPath + "." + time.Now().UTC().Format("20060102T150405") + ".jsonl.gz"
	f, err := os.Create(archivePath)
	if err != nil {
		h.logger.Warn("opening history rotation archive failed", "error", err)
		for _, id := range drop {
			delete(h.records, id)
		}
		return
	}
	defer f.Close()

	gz := pgzip.NewWriter(f)
	w := bufio.NewWriter(gz)
	for _, id := range drop {
		rec, ok := h.records[id]
		if !ok {
			continue
		}
		data, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		w.Write(data)
		w.WriteByte('\n')
		delete(h.records, id)
	}
	w.Flush()
	gz.Close()
}

func (h *transferHistory) all() []dcc.Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]dcc.Record, 0, len(h.order))
	for _, id := range h.order {
		if rec, ok := h.records[id]; ok {
			out = append(out, *rec)
		}
	}
	return out
}

func (h *transferHistory) hasActive(server, nick, filename string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, rec := range h.records {
		if rec.Server == server && rec.Nick == nick && rec.Filename == filename && !rec.Status.IsTerminal() {
			return true
		}
	}
	return false
}

func (h *transferHistory) findByAnnouncedOrFileMD5(server, nick, md5 string) *dcc.Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, rec := range h.records {
		if rec.Server != server || rec.Nick != nick {
			continue
		}
		if rec.AnnouncedMD5 == md5 || rec.FileMD5 == md5 {
			return rec
		}
	}
	return nil
}

// evictOlderThan drops terminal records whose StartTime is more than timeout
// ago.
func (h *transferHistory) evictOlderThan(timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	kept := h.order[:0]
	for _, id := range h.order {
		rec, ok := h.records[id]
		if !ok {
			continue
		}
		if rec.Status.IsTerminal() && now.Sub(rec.StartTime) > timeout {
			delete(h.records, id)
			continue
		}
		kept = append(kept, id)
	}
	h.order = kept
}
