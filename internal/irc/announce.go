package irc

import "regexp"

// Best-effort XDCC announcement patterns. Matching is deliberately loose:
// non-matching notices are ignored, never errored.
var (
	sendingPackRe = regexp.MustCompile(`(?i)sending you pack #\d+\s*\("([^"]+)"\)(?:.*MD5:([0-9a-fA-F]{32}))?`)
	transferDoneRe = regexp.MustCompile(`(?i)transfer completed.*md5sum:\s*([0-9a-fA-F]{32})`)
	sendDeniedRe   = regexp.MustCompile(`(?i)xdcc send denied,\s*(.+)`)
)

// AnnouncementKind tags what an announce-parsed PRIVMSG/NOTICE represents.
type AnnouncementKind int

const (
	AnnounceNone AnnouncementKind = iota
	AnnounceSendingPack
	AnnounceTransferCompleted
	AnnounceSendDenied
)

// Announcement is the result of matching one XDCC bot announcement dialect
// against a PRIVMSG/NOTICE body.
type Announcement struct {
	Kind     AnnouncementKind
	Filename string
	MD5      string
	Reason   string
}

// ParseAnnouncement applies the announcement patterns above. A message
// matching none of them returns AnnounceNone.
func ParseAnnouncement(text string) Announcement {
	if m := sendingPackRe.FindStringSubmatch(text); m != nil {
		return Announcement{Kind: AnnounceSendingPack, Filename: m[1], MD5: m[2]}
	}
	if m := transferDoneRe.FindStringSubmatch(text); m != nil {
		return Announcement{Kind: AnnounceTransferCompleted, MD5: m[1]}
	}
	if m := sendDeniedRe.FindStringSubmatch(text); m != nil {
		return Announcement{Kind: AnnounceSendDenied, Reason: m[1]}
	}
	return Announcement{Kind: AnnounceNone}
}
