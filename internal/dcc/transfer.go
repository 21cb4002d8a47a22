package dcc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Status is the terminal-or-transient disposition of a Transfer.
type Status string

const (
	StatusStarted    Status = "started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether s is one of the four terminal states.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusError, StatusCancelled:
		return true
	}
	return false
}

// Record is the shared transfer record referenced by the session and the
// manager's transfer registry.
type Record struct {
	ID                       string
	Server                   string
	Nick                     string
	PeerAddress              string
	PeerPort                 int
	Filename                 string
	FilePath                 string
	Size                     int64
	Offset                   int64
	BytesReceived            int64
	StartTime                time.Time
	LastProgressUpdate       time.Time
	LastProgressBytesReceived int64
	Percent                  float64
	SSL                      bool
	Completed                bool
	Status                   Status
	Error                    string
	AnnouncedMD5             string
	FileMD5                  string
	Connected                bool
}

// progressInterval and progressPercentStep gate how often Transfer reports
// progress: at least every 5 seconds, or whenever percent advances by >= 10.
const (
	progressInterval    = 5 * time.Second
	progressPercentStep = 10.0
)

// Transfer is the per-file DCC Transfer FSM: it owns the Transport, the
// local file handle, and the shared Record.
type Transfer struct {
	Record *Record

	transport        *Transport
	file             *os.File
	downloadDir      string
	incompleteSuffix string
	allowedMimetypes []string
	rateLimitKBs     int64
	rateLimitedOut   io.Writer
	logger           *slog.Logger

	mu             sync.Mutex
	tickle         bool // completed-file resume tickle: count bytes, discard them
	onMD5Enqueue   func(record *Record)
}

// Options configures a new Transfer.
type Options struct {
	DownloadDir      string
	IncompleteSuffix string
	AllowedMimetypes []string
	RateLimitKBs     int64 // optional per-transfer throughput cap, 0 = unlimited
	Logger           *slog.Logger
	OnMD5Enqueue     func(record *Record)
}

// NewTransfer constructs a Transfer for a freshly-validated SendOffer. The
// caller is responsible for assigning Record.ID and registering it with the
// manager's transfer registry.
func NewTransfer(record *Record, transport *Transport, opts Options) *Transfer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Transfer{
		Record:           record,
		transport:        transport,
		downloadDir:      opts.DownloadDir,
		incompleteSuffix: opts.IncompleteSuffix,
		allowedMimetypes: opts.AllowedMimetypes,
		rateLimitKBs:     opts.RateLimitKBs,
		logger:           logger.With("transfer", record.ID, "filename", record.Filename),
		onMD5Enqueue:     opts.OnMD5Enqueue,
	}
}

// workingPath returns the path the file is written to while incomplete.
func (t *Transfer) workingPath() string {
	base := filepath.Join(t.downloadDir, t.Record.Filename)
	if t.incompleteSuffix != "" {
		return base + t.incompleteSuffix
	}
	return base
}

// finalPath returns the path the file is renamed to on completion.
func (t *Transfer) finalPath() string {
	return filepath.Join(t.downloadDir, t.Record.Filename)
}

// openLocalFile opens the working file in binary-append mode at the given
// starting offset (for resumes, the file must already contain `offset`
// bytes; for fresh transfers, offset is 0 and the file is created).
func (t *Transfer) openLocalFile() error {
	f, err := os.OpenFile(t.workingPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening local file: %w", err)
	}
	t.file = f
	t.Record.FilePath = t.workingPath()
	t.rateLimitedOut = NewThrottledWriter(context.Background(), f, t.rateLimitKBs)
	return nil
}

// Tickle marks this transfer as the "completed-file resume tickle" case: the
// local file already matches the remote size, but the sender still needs to
// see a short resume handshake to mark its own state done. Bytes received
// under tickle mode are counted but not written.
func (t *Transfer) Tickle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tickle = true
	t.Record.Completed = true
}

// Run drives the in-progress rules until the peer closes the connection, an
// error occurs, or cancellation via Cancel. It does not return until the
// transfer reaches a terminal status.
func (t *Transfer) Run() {
	t.Record.Status = StatusInProgress
	t.Record.Connected = true
	t.Record.StartTime = time.Now()
	t.Record.LastProgressUpdate = t.Record.StartTime

	if !t.tickle {
		if err := t.openLocalFile(); err != nil {
			t.Record.Status = StatusError
			t.Record.Error = err.Error()
			t.Record.Connected = false
			return
		}
		defer t.file.Close()
	}

	buf := make([]byte, 64*1024)
	mimeChecked := t.Record.Offset != 0 || len(t.allowedMimetypes) == 0

	for {
		n, readErr := t.transport.Read(buf)
		if n > 0 {
			chunk := buf[:n]

			if !mimeChecked {
				mimeChecked = true
				if err := t.checkMIME(chunk); err != nil {
					t.finalizeError(err.Error())
					return
				}
			}

			if !t.tickle {
				if _, err := t.writeLocal(chunk); err != nil {
					t.finalizeError(fmt.Sprintf("disk write error: %v", err))
					return
				}
			}

			t.Record.BytesReceived += int64(n)
			t.updateProgress()

			cumulative := uint64(t.Record.BytesReceived + t.Record.Offset)
			if err := t.transport.SendAck(cumulative, uint64(t.Record.Size)); err != nil {
				t.logger.Warn("failed to send ack", "error", err)
				t.finalizeDisconnect()
				return
			}
		}

		if readErr != nil {
			t.finalizeDisconnect()
			return
		}

		if t.Record.BytesReceived+t.Record.Offset >= t.Record.Size && !t.tickle {
			t.finalizeDisconnect()
			return
		}
	}
}

func (t *Transfer) writeLocal(chunk []byte) (int, error) {
	var w io.Writer = t.file
	if t.rateLimitedOut != nil {
		w = t.rateLimitedOut
	}
	return w.Write(chunk)
}

func (t *Transfer) checkMIME(chunk []byte) error {
	if len(t.allowedMimetypes) == 0 {
		return nil
	}
	detected := http.DetectContentType(chunk)
	for _, allowed := range t.allowedMimetypes {
		if detected == allowed {
			return nil
		}
	}
	return fmt.Errorf("Invalid MIME type (%s)", detected)
}

func (t *Transfer) updateProgress() {
	now := time.Now()
	percent := 0.0
	if t.Record.Size > 0 {
		percent = 100 * float64(t.Record.BytesReceived+t.Record.Offset) / float64(t.Record.Size)
	}

	advanced := percent-t.Record.Percent >= progressPercentStep
	elapsed := now.Sub(t.Record.LastProgressUpdate)
	if elapsed < progressInterval && !advanced {
		return
	}

	t.Record.Percent = percent
	t.Record.LastProgressUpdate = now
	t.Record.LastProgressBytesReceived = t.Record.BytesReceived
}

// finalizeError marks the transfer errored mid-transfer (MIME mismatch or
// disk write failure), disconnects, and drops Connected.
func (t *Transfer) finalizeError(reason string) {
	t.Record.Status = StatusError
	t.Record.Error = reason
	t.Record.Connected = false
	t.transport.Disconnect(reason)
	t.logger.Warn("transfer errored", "reason", reason)
}

// finalizeDisconnect implements the DCC-disconnect finalization rules:
// missing file => error; size mismatch => failed; size match => completed
// (and MD5-enqueued if announced), renaming off the incomplete suffix.
func (t *Transfer) finalizeDisconnect() {
	t.Record.Connected = false

	// Cancel() already committed a terminal status synchronously; don't let
	// the Read() error it provoked re-finalize the record.
	if t.Record.Status == StatusCancelled {
		return
	}

	if t.tickle {
		t.Record.Status = StatusCompleted
		t.logger.Info("completed-file resume tickle finished", "bytes_discarded", t.Record.BytesReceived)
		return
	}

	info, err := os.Stat(t.workingPath())
	if err != nil {
		t.Record.Status = StatusError
		t.Record.Error = "local file missing at finalize"
		return
	}

	total := t.Record.Offset + t.Record.BytesReceived
	if info.Size() != total || total != t.Record.Size {
		t.Record.Status = StatusFailed
		t.Record.Error = fmt.Sprintf("size mismatch %d != %d", info.Size(), t.Record.Size)
		return
	}

	t.Record.Status = StatusCompleted
	t.Record.Completed = true

	if t.incompleteSuffix != "" {
		if err := os.Rename(t.workingPath(), t.finalPath()); err != nil {
			t.logger.Warn("renaming completed file", "error", err)
		} else {
			t.Record.FilePath = t.finalPath()
		}
	}

	if t.Record.AnnouncedMD5 != "" && t.onMD5Enqueue != nil {
		t.onMD5Enqueue(t.Record)
	}
}

// Cancel closes the DCC socket with reason "Cancelled by user" and
// transitions the record.
func (t *Transfer) Cancel() {
	t.Record.Status = StatusCancelled
	t.Record.Error = "Cancelled by user"
	t.Record.Connected = false
	t.transport.Disconnect("Cancelled by user")
}
