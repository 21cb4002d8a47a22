package irc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dccbot/dccagent/internal/dcc"
)

// handleCTCP dispatches an extracted CTCP payload — "DCC SEND ...",
// "DCC SSEND ...", or "DCC ACCEPT ...". Anything else
// (DCC CHAT, DCC RESUME echoed back at us, unknown verbs) is ignored.
func (s *Session) handleCTCP(nick, payload string) {
	fields := strings.SplitN(payload, " ", 3)
	if len(fields) < 2 || fields[0] != "DCC" {
		return
	}
	verb := strings.ToUpper(fields[1])
	var rest string
	if len(fields) == 3 {
		rest = fields[2]
	}

	switch verb {
	case "SEND":
		s.handleSendOffer(nick, rest, false)
	case "SSEND":
		s.handleSendOffer(nick, rest, true)
	case "ACCEPT":
		s.handleAccept(nick, rest)
	default:
		s.logger.Debug("ignoring unsupported DCC verb", "verb", verb, "nick", nick)
	}
}

func (s *Session) handleSendOffer(nick, args string, ssl bool) {
	useSSL := ""
	if ssl {
		useSSL = "ssend"
	}
	limits := dcc.PolicyLimits{
		DownloadDir:     s.global.DefaultDownloadPath,
		AllowPrivateIPs: s.global.AllowPrivateIPs,
		MaxFileSize:     s.global.MaxFileSize,
	}

	offer, err := dcc.ParseSendOffer(args, useSSL, limits)
	if err != nil {
		s.logger.Warn("dcc send offer rejected", "nick", nick, "error", err)
		return
	}

	if s.registry.HasActiveTransfer(s.Server, nick, offer.Filename) {
		s.logger.Warn("duplicate dcc offer ignored, transfer already in flight", "nick", nick, "filename", offer.Filename)
		return
	}

	if !s.registry.HasFreeSpace(offer.Size) {
		s.logger.Warn("dcc offer rejected, download volume low on free space", "nick", nick, "filename", offer.Filename, "size", offer.Size)
		return
	}

	localPath := filepath.Join(s.global.DefaultDownloadPath, offer.Filename)
	info, statErr := os.Stat(localPath)
	switch {
	case statErr == nil && info.Size() == offer.Size:
		// Completed-file resume tickle: the file already matches; ask to
		// resume over the last 4 KiB, then re-receive and discard those
		// bytes rather than rewrite them.
		offset := info.Size() - 4096
		if offset < 0 {
			offset = 0
		}
		s.requestResume(nick, offer, offset, localPath, true)
	case statErr == nil && info.Size() < offer.Size:
		s.requestResume(nick, offer, info.Size(), localPath, false)
	default:
		s.beginTransfer(nick, offer, 0, false)
	}
}

func (s *Session) requestResume(nick string, offer *dcc.SendOffer, localSize int64, localPath string, completed bool) {
	s.resumeQueue.Add(&dcc.ResumeOffer{
		PeerNick:   nick,
		PeerAddr:   offer.Addr.String(),
		PeerPort:   offer.Port,
		Filename:   offer.Filename,
		LocalPath:  localPath,
		RemoteSize: offer.Size,
		Offset:     localSize,
		UseSSL:     offer.UseSSL,
		Completed:  completed,
		OfferedAt:  time.Now(),
	})

	resume := dcc.WrapCTCP(fmt.Sprintf("DCC RESUME %s %d %d", dcc.QuoteFilename(offer.Filename), offer.Port, localSize))
	s.writeLine(fmt.Sprintf("PRIVMSG %s :%s", nick, resume))
}

func (s *Session) handleAccept(nick, args string) {
	tokens := dcc.TokenizeShellStyle(args)
	if len(tokens) < 3 {
		s.logger.Warn("malformed dcc accept", "nick", nick, "args", args)
		return
	}

	port, err := strconv.Atoi(tokens[1])
	if err != nil {
		return
	}
	position, err := strconv.ParseInt(tokens[2], 10, 64)
	if err != nil {
		return
	}

	offer, ok := s.resumeQueue.MatchAccept(nick, port, position)
	if !ok {
		s.logger.Warn("dcc accept did not match a pending resume offer, ignoring", "nick", nick, "port", port, "position", position)
		return
	}

	ip := net.ParseIP(offer.PeerAddr)
	if ip == nil {
		s.logger.Warn("resume offer has unparseable peer address", "addr", offer.PeerAddr)
		return
	}

	record := &dcc.Record{
		ID:          s.nextTransferID(nick, offer.Filename),
		Server:      s.Server,
		Nick:        nick,
		PeerAddress: offer.PeerAddr,
		PeerPort:    offer.PeerPort,
		Filename:    offer.Filename,
		Size:        offer.RemoteSize,
		Offset:      offer.Offset,
		SSL:         offer.UseSSL,
		Status:      dcc.StatusStarted,
		StartTime:   time.Now(),
	}

	transport, err := dcc.Dial(ip, offer.PeerPort, offer.UseSSL)
	if err != nil {
		s.logger.Warn("dialing dcc resume peer failed", "nick", nick, "error", err)
		return
	}

	s.runTransfer(nick, offer.Filename, record, transport, offer.Completed)
}

func (s *Session) beginTransfer(nick string, offer *dcc.SendOffer, localSize int64, tickle bool) {
	record := &dcc.Record{
		ID:          s.nextTransferID(nick, offer.Filename),
		Server:      s.Server,
		Nick:        nick,
		PeerAddress: offer.Addr.String(),
		PeerPort:    offer.Port,
		Filename:    offer.Filename,
		Size:        offer.Size,
		Offset:      localSize,
		SSL:         offer.UseSSL,
		Status:      dcc.StatusStarted,
		StartTime:   time.Now(),
	}

	transport, err := dcc.Dial(offer.Addr, offer.Port, offer.UseSSL)
	if err != nil {
		s.logger.Warn("dialing dcc peer failed", "nick", nick, "error", err)
		return
	}

	s.runTransfer(nick, offer.Filename, record, transport, tickle)
}

func (s *Session) runTransfer(nick, filename string, record *dcc.Record, transport *dcc.Transport, tickle bool) {
	// RegisterTransfer may return a different *dcc.Record than the one passed
	// in: if an XDCC announcement placeholder is still pending for this
	// (server, nick, filename), record is reconciled onto it in place and the
	// placeholder is what the Transfer FSM must operate on, so the announced
	// MD5 and the placeholder's history entry stay attached to this transfer.
	record = s.registry.RegisterTransfer(s.Server, record)

	xfer := dcc.NewTransfer(record, transport, dcc.Options{
		DownloadDir:      s.global.DefaultDownloadPath,
		IncompleteSuffix: s.global.IncompleteSuffix,
		AllowedMimetypes: s.global.AllowedMimetypes,
		RateLimitKBs:     s.global.DownloadRateLimitKBs,
		Logger:           s.logger,
		OnMD5Enqueue:     s.registry.EnqueueMD5,
	})
	if tickle {
		xfer.Tickle()
	}

	key := transferKey(nick, filename)
	s.xferMu.Lock()
	s.currentTransfers[key] = xfer
	s.xferMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		xfer.Run()
		s.xferMu.Lock()
		delete(s.currentTransfers, key)
		s.xferMu.Unlock()
	}()
}

// Cancel finds
// the in-progress transfer for (nick, filename) and cancels it, reporting
// whether a matching transfer was found.
func (s *Session) Cancel(nick, filename string) bool {
	s.xferMu.Lock()
	xfer, ok := s.currentTransfers[transferKey(nick, filename)]
	s.xferMu.Unlock()
	if !ok {
		return false
	}
	if xfer.Record.Status.IsTerminal() {
		return false
	}
	xfer.Cancel()
	return true
}

func transferKey(nick, filename string) string {
	return nick + "\x00" + filename
}

func (s *Session) nextTransferID(nick, filename string) string {
	return fmt.Sprintf("%s-%s-%s-%d", s.Server, nick, filename, time.Now().UnixNano())
}
