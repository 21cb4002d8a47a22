package irc

import "testing"

func TestParseLineWelcome(t *testing.T) {
	e := ParseLine(":irc.example.org 001 mybot :Welcome to the network")
	if e.Kind != EventWelcome {
		t.Fatalf("kind = %v", e.Kind)
	}
}

func TestParseLineJoin(t *testing.T) {
	e := ParseLine(":alice!a@host JOIN #warez")
	if e.Kind != EventJoin || e.From != "alice" || e.Channel != "#warez" {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestParseLineBannedFromChan(t *testing.T) {
	e := ParseLine(":irc.example.org 474 mybot #banned :Cannot join channel (+b)")
	if e.Kind != EventBannedFromChan || e.Channel != "#banned" {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestParseLinePrivMsgWithCTCP(t *testing.T) {
	e := ParseLine(":bot!b@host PRIVMSG mybot :\x01DCC SEND \"f.bin\" 123 456 789\x01")
	if e.Kind != EventPrivMsg || e.From != "bot" {
		t.Fatalf("unexpected event: %+v", e)
	}
	if e.Text == "" {
		t.Error("expected CTCP payload in Text")
	}
}

func TestParseLineNickservSuccess(t *testing.T) {
	e := ParseLine(":NickServ!service@services NOTICE mybot :You are now identified for mybot.")
	if e.Kind != EventNickservSuccess {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestParseLineEmpty(t *testing.T) {
	e := ParseLine("")
	if e.Kind != EventUnknown {
		t.Fatalf("expected EventUnknown for empty line")
	}
}
