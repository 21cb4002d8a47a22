package irc

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dccbot/dccagent/internal/config"
	"github.com/dccbot/dccagent/internal/dcc"
	"github.com/dccbot/dccagent/internal/pki"
)

// Session connection state values, held in Session.state.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateDegraded     = "degraded"
)

const authGateTimeout = 10 * time.Second
const channelJoinPolls = 10
const channelJoinPollInterval = time.Second

// Command is one queued control-plane operation (join/part/send).
type Command struct {
	Kind     string // "join", "part", "send"
	Channels []string
	Also     bool
	User     string
	Message  string
	Reason   string
}

// Registry is the Session's view of the Session Manager's shared transfer
// registry: reconciling XDCC announcements with inbound DCC SEND requests,
// registering newly-created transfers, and handing off completed transfers
// for MD5 verification. Kept as an interface here so internal/irc never
// imports internal/manager.
type Registry interface {
	ReconcileAnnouncement(server, nick, filename, md5 string) *dcc.Record
	ReconcileCompletion(server, nick, md5 string)
	RegisterTransfer(server string, record *dcc.Record) *dcc.Record
	EnqueueMD5(record *dcc.Record)
	HasActiveTransfer(server, nick, filename string) bool
	HasFreeSpace(size int64) bool
}

// Session owns one IRC server connection: the socket, the command queue,
// the resume queue, joined/banned channel bookkeeping, and the live map of
// inbound DCC transports.
type Session struct {
	Server string
	cfg    config.ServerConfig
	global *config.Config
	logger *slog.Logger
	registry Registry

	conn   net.Conn
	connMu sync.Mutex
	writeMu sync.Mutex

	state atomic.Value // string

	chMu            sync.Mutex
	joinedChannels  map[string]time.Time
	bannedChannels  map[string]bool
	botChannelMap   map[string]map[string]bool

	commandQueue chan Command

	authenticated atomic.Bool
	authCh        chan struct{}
	authOnce      sync.Once

	consumerOnce sync.Once // ensures exactly one commandConsumer for the Session's lifetime, across reconnects

	resumeQueue *dcc.ResumeQueue

	xferMu          sync.Mutex
	currentTransfers map[string]*dcc.Transfer

	lastActive atomic.Value // time.Time
	currentNick atomic.Value // string, the nick actually sent on the wire this connection

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSession constructs a Session for one configured server. The session
// does nothing until Start is called.
func NewSession(server string, cfg config.ServerConfig, global *config.Config, registry Registry, logger *slog.Logger) *Session {
	s := &Session{
		Server:           server,
		cfg:              cfg,
		global:           global,
		logger:           logger.With("server", server),
		registry:         registry,
		joinedChannels:   make(map[string]time.Time),
		bannedChannels:   make(map[string]bool),
		botChannelMap:    make(map[string]map[string]bool),
		commandQueue:     make(chan Command, 64),
		authCh:           make(chan struct{}),
		resumeQueue:      dcc.NewResumeQueue(),
		currentTransfers: make(map[string]*dcc.Transfer),
		stopCh:           make(chan struct{}),
	}
	s.state.Store(StateDisconnected)
	s.lastActive.Store(time.Now())
	return s
}

// Start launches the reconnect-with-backoff event loop goroutine.
func (s *Session) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop disconnects and terminates the session's goroutines.
func (s *Session) Stop(reason string) {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.connMu.Lock()
	if s.conn != nil {
		fmt.Fprintf(s.conn, "QUIT :%s\r\n", reason)
		s.conn.Close()
	}
	s.connMu.Unlock()
	s.wg.Wait()
}

// Enqueue adds a control command to this session's queue.
func (s *Session) Enqueue(cmd Command) {
	select {
	case s.commandQueue <- cmd:
	case <-s.stopCh:
	}
}

// IsIdle reports whether this session has nothing left to do: no joined
// channels, no active transfers, no queued commands, and has been idle
// longer than idleTimeout — the predicate the manager's cleanup sweep uses
// to decide whether to tear the session down.
func (s *Session) IsIdle(idleTimeout time.Duration) bool {
	s.chMu.Lock()
	noChannels := len(s.joinedChannels) == 0
	s.chMu.Unlock()

	s.xferMu.Lock()
	noTransfers := len(s.currentTransfers) == 0
	s.xferMu.Unlock()

	queueEmpty := len(s.commandQueue) == 0
	last := s.lastActive.Load().(time.Time)

	return noChannels && noTransfers && queueEmpty && time.Since(last) > idleTimeout
}

// PartIdleChannels parts channels whose last-active timestamp is older than
// idleTimeout.
func (s *Session) PartIdleChannels(idleTimeout time.Duration) {
	var stale []string
	s.chMu.Lock()
	for ch, last := range s.joinedChannels {
		if time.Since(last) > idleTimeout {
			stale = append(stale, ch)
		}
	}
	s.chMu.Unlock()

	for _, ch := range stale {
		s.writeLine(fmt.Sprintf("PART %s :idle timeout", ch))
		s.chMu.Lock()
		delete(s.joinedChannels, ch)
		s.chMu.Unlock()
	}
}

// SweepResumeQueue expires resume offers older than timeout.
func (s *Session) SweepResumeQueue(timeout time.Duration) {
	s.resumeQueue.Sweep(time.Now(), timeout)
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now())
}

func (s *Session) run() {
	defer s.wg.Done()

	delay := time.Second
	const maxDelay = 60 * time.Second

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		s.state.Store(StateConnecting)
		conn, err := s.connect()
		if err != nil {
			s.logger.Warn("irc connect failed", "error", err, "retry_in", delay)
			s.state.Store(StateDisconnected)
			select {
			case <-s.stopCh:
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
			continue
		}
		delay = time.Second

		s.connMu.Lock()
		s.conn = conn
		s.connMu.Unlock()
		s.state.Store(StateConnected)
		s.logger.Info("irc connected")

		s.readLoop(conn)

		s.connMu.Lock()
		s.conn.Close()
		s.conn = nil
		s.connMu.Unlock()
		s.state.Store(StateDisconnected)

		select {
		case <-s.stopCh:
			return
		default:
			s.logger.Info("irc disconnected, will reconnect")
		}
	}
}

func (s *Session) nick() string {
	n := s.cfg.Nick
	if s.cfg.RandomNick {
		n = fmt.Sprintf("%s%03d", n, time.Now().UnixNano()%1000)
	}
	return n
}

func (s *Session) connect() (net.Conn, error) {
	address := net.JoinHostPort(s.cfg.Address, fmt.Sprintf("%d", s.cfg.Port))
	dialer := &net.Dialer{Timeout: 15 * time.Second}

	rawConn, err := dialer.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", address, err)
	}

	conn := net.Conn(rawConn)
	if s.cfg.TLS {
		tlsCfg := pki.NewClientTLSConfig(s.cfg.Address, s.cfg.VerifyTLS)
		conn = tls.Client(rawConn, tlsCfg)
	}

	nick := s.nick()
	s.currentNick.Store(nick)
	if _, err := fmt.Fprintf(conn, "NICK %s\r\n", nick); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := fmt.Fprintf(conn, "USER %s 0 * :%s\r\n", nick, nick); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

// selfNick returns the nick sent on the wire for the current connection, or
// the configured base nick before any connection has been established.
func (s *Session) selfNick() string {
	if v := s.currentNick.Load(); v != nil {
		return v.(string)
	}
	return s.cfg.Nick
}

func (s *Session) readLoop(conn net.Conn) {
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		s.touch()
		s.dispatch(ParseLine(line))
	}
}

func (s *Session) writeLine(line string) error {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("irc session %s: not connected", s.Server)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := fmt.Fprintf(conn, "%s\r\n", line)
	return err
}

func (s *Session) dispatch(e Event) {
	switch e.Kind {
	case EventWelcome:
		if s.cfg.NickservPassword != "" {
			s.writeLine(fmt.Sprintf("PRIVMSG NickServ :IDENTIFY %s", s.cfg.NickservPassword))
		}
		// Reconnects re-fire 001/EventWelcome, but the command queue consumer
		// must exist exactly once for the Session's whole lifetime — spawning
		// one per reconnect would leak goroutines and break the "strictly
		// serial per session" command-queue guarantee.
		s.consumerOnce.Do(func() {
			s.wg.Add(1)
			go s.commandConsumer()
		})

	case EventNickservSuccess:
		s.authenticated.Store(true)
		s.authOnce.Do(func() { close(s.authCh) })

	case EventJoin:
		if e.Channel == "" || !strings.EqualFold(e.From, s.selfNick()) {
			return
		}
		ch := strings.ToLower(e.Channel)
		s.chMu.Lock()
		s.joinedChannels[ch] = time.Now()
		delete(s.bannedChannels, ch)
		s.chMu.Unlock()

	case EventPart:
		if !strings.EqualFold(e.From, s.selfNick()) {
			return
		}
		ch := strings.ToLower(e.Channel)
		s.chMu.Lock()
		delete(s.joinedChannels, ch)
		s.chMu.Unlock()

	case EventKick:
		if !strings.EqualFold(e.Target, s.selfNick()) {
			return
		}
		ch := strings.ToLower(e.Channel)
		s.chMu.Lock()
		delete(s.joinedChannels, ch)
		s.chMu.Unlock()

	case EventBannedFromChan:
		ch := strings.ToLower(e.Channel)
		s.chMu.Lock()
		s.bannedChannels[ch] = true
		s.chMu.Unlock()

	case EventNoChanModes:
		ch := strings.ToLower(e.Channel)
		s.chMu.Lock()
		delete(s.joinedChannels, ch)
		s.chMu.Unlock()

	case EventPrivMsg, EventNotice:
		s.handleMessage(e)
	}
}

func (s *Session) handleMessage(e Event) {
	if payload, ok := ExtractCTCPEvent(e.Text); ok {
		s.handleCTCP(e.From, payload)
		return
	}

	ann := ParseAnnouncement(e.Text)
	switch ann.Kind {
	case AnnounceSendingPack:
		s.registry.ReconcileAnnouncement(s.Server, e.From, ann.Filename, ann.MD5)
	case AnnounceTransferCompleted:
		s.registry.ReconcileCompletion(s.Server, e.From, ann.MD5)
	case AnnounceSendDenied:
		s.logger.Warn("xdcc send denied", "nick", e.From, "reason", ann.Reason)
	}
}

// ExtractCTCPEvent is a thin wrapper kept in this package so the dispatcher
// does not need to import dcc just for CTCP extraction semantics beyond
// what ParseLine already used to populate Event.Text.
func ExtractCTCPEvent(text string) (string, bool) {
	return dcc.ExtractCTCP(text)
}
