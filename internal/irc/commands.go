package irc

import (
	"fmt"
	"strings"
	"time"
)

// commandConsumer is the strictly-serial per-session command processor: it
// blocks on the auth gate (bounded to 10s) at startup, then processes
// queued join/part/send commands forever.
func (s *Session) commandConsumer() {
	defer s.wg.Done()

	select {
	case <-s.authCh:
	case <-time.After(authGateTimeout):
		s.logger.Warn("nickserv authentication timed out, proceeding anyway")
	case <-s.stopCh:
		return
	}

	for {
		select {
		case <-s.stopCh:
			return
		case cmd := <-s.commandQueue:
			s.runCommand(cmd)
		}
	}
}

func (s *Session) runCommand(cmd Command) {
	switch cmd.Kind {
	case "join":
		s.doJoin(cmd.Channels)
	case "part":
		s.doPart(cmd.Channels, cmd.Reason)
	case "send":
		s.doSend(cmd)
	default:
		s.logger.Warn("unknown queued command", "kind", cmd.Kind)
	}
}

func (s *Session) doJoin(channels []string) {
	var all []string
	for _, ch := range channels {
		ch = normalizeChannel(ch)
		all = append(all, ch)
		s.writeLine("JOIN " + ch)
		for _, companion := range s.cfg.AlsoJoin[ch] {
			companion = normalizeChannel(companion)
			all = append(all, companion)
			s.writeLine("JOIN " + companion)
		}
	}
	s.awaitJoins(all)
}

// awaitJoins polls joinedChannels up to channelJoinPolls times, logging
// failures as non-fatal: channels not present after the window are logged
// as failed but do not error the queue.
func (s *Session) awaitJoins(channels []string) {
	for i := 0; i < channelJoinPolls; i++ {
		if s.allJoined(channels) {
			return
		}
		time.Sleep(channelJoinPollInterval)
	}
	for _, ch := range channels {
		s.chMu.Lock()
		_, ok := s.joinedChannels[ch]
		s.chMu.Unlock()
		if !ok {
			s.logger.Warn("channel join did not complete within wait window", "channel", ch)
		}
	}
}

func (s *Session) allJoined(channels []string) bool {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	for _, ch := range channels {
		if _, ok := s.joinedChannels[ch]; !ok {
			return false
		}
	}
	return true
}

func (s *Session) doPart(channels []string, reason string) {
	for _, ch := range channels {
		ch = normalizeChannel(ch)
		s.chMu.Lock()
		_, joined := s.joinedChannels[ch]
		s.chMu.Unlock()
		if !joined {
			continue
		}
		line := "PART " + ch
		if reason != "" {
			line += " :" + reason
		}
		s.writeLine(line)
	}
}

func (s *Session) doSend(cmd Command) {
	if len(cmd.Channels) > 0 {
		s.doJoin(cmd.Channels)
	}

	message := cmd.Message
	rewrite := s.shouldRewriteToSSend(cmd.User, cmd.Channels)
	message = RewriteToSSend(message, rewrite)

	s.writeLine(fmt.Sprintf("PRIVMSG %s :%s", cmd.User, message))

	s.chMu.Lock()
	if s.botChannelMap[cmd.User] == nil {
		s.botChannelMap[cmd.User] = make(map[string]bool)
	}
	now := time.Now()
	for _, ch := range cmd.Channels {
		ch = normalizeChannel(ch)
		s.botChannelMap[cmd.User][ch] = true
		s.joinedChannels[ch] = now
	}
	s.chMu.Unlock()
}

func (s *Session) shouldRewriteToSSend(user string, channels []string) bool {
	if s.global.IsSSendNick(user) {
		return true
	}
	for _, ch := range channels {
		ch = normalizeChannel(ch)
		for _, rw := range s.cfg.RewriteToSSend {
			if normalizeChannel(rw) == ch {
				return true
			}
		}
	}
	return false
}

func normalizeChannel(ch string) string {
	ch = strings.ToLower(ch)
	if !strings.HasPrefix(ch, "#") {
		ch = "#" + ch
	}
	return ch
}
