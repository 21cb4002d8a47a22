package irc

import "strings"

// ParseLine turns one raw IRC protocol line (without trailing CRLF) into an
// Event. Lines that don't correspond to a handled command/numeric are
// returned as EventUnknown rather than erroring: unrecognized input is
// ignored, never treated as a parse failure.
func ParseLine(line string) Event {
	if line == "" {
		return Event{Kind: EventUnknown, Raw: line}
	}

	prefix := ""
	rest := line
	if strings.HasPrefix(line, ":") {
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			return Event{Kind: EventUnknown, Raw: line}
		}
		prefix = line[1:sp]
		rest = line[sp+1:]
	}

	parts := strings.SplitN(rest, " :", 2)
	head := strings.Fields(parts[0])
	trailing := ""
	if len(parts) == 2 {
		trailing = parts[1]
	}
	if len(head) == 0 {
		return Event{Kind: EventUnknown, Raw: line}
	}

	command := strings.ToUpper(head[0])
	args := head[1:]
	nick := nickFromPrefix(prefix)

	switch command {
	case "001":
		return Event{Kind: EventWelcome, From: nick, Raw: line}
	case "474":
		return Event{Kind: EventBannedFromChan, Channel: argAt(args, 1), Raw: line}
	case "477":
		return Event{Kind: EventNoChanModes, Channel: argAt(args, 1), Raw: line}
	case "JOIN":
		ch := argAt(args, 0)
		if ch == "" {
			ch = trailing
		}
		return Event{Kind: EventJoin, From: nick, Channel: ch, Raw: line}
	case "PART":
		return Event{Kind: EventPart, From: nick, Channel: argAt(args, 0), Raw: line}
	case "KICK":
		return Event{Kind: EventKick, From: nick, Channel: argAt(args, 0), Target: argAt(args, 1), Raw: line}
	case "PRIVMSG":
		return Event{Kind: EventPrivMsg, From: nick, Target: argAt(args, 0), Text: trailing, Raw: line}
	case "NOTICE":
		return classifyNotice(nick, argAt(args, 0), trailing, line)
	default:
		return Event{Kind: EventUnknown, From: nick, Raw: line}
	}
}

// classifyNotice detects the NickServ login-success notice among generic
// NOTICE traffic; other notices fall through to EventNotice for the
// announcement/XDCC parsing pass.
func classifyNotice(from, target, text, raw string) Event {
	lower := strings.ToLower(text)
	if strings.EqualFold(from, "nickserv") &&
		(strings.Contains(lower, "you are now identified") || strings.Contains(lower, "password accepted")) {
		return Event{Kind: EventNickservSuccess, From: from, Raw: raw}
	}
	return Event{Kind: EventNotice, From: from, Target: target, Text: text, Raw: raw}
}

func nickFromPrefix(prefix string) string {
	if i := strings.IndexByte(prefix, '!'); i >= 0 {
		return prefix[:i]
	}
	return prefix
}

func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
