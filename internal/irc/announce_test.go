package irc

import "testing"

func TestParseAnnouncementSendingPack(t *testing.T) {
	a := ParseAnnouncement(`** Sending you pack #12 ("movie.mkv") [700M, MD5:0123456789abcdef0123456789abcdef]`)
	if a.Kind != AnnounceSendingPack {
		t.Fatalf("kind = %v", a.Kind)
	}
	if a.Filename != "movie.mkv" {
		t.Errorf("filename = %q", a.Filename)
	}
	if a.MD5 != "0123456789abcdef0123456789abcdef" {
		t.Errorf("md5 = %q", a.MD5)
	}
}

func TestParseAnnouncementTransferCompleted(t *testing.T) {
	a := ParseAnnouncement("** Transfer Completed for movie.mkv md5sum: abcdefabcdefabcdefabcdefabcdefab")
	if a.Kind != AnnounceTransferCompleted {
		t.Fatalf("kind = %v", a.Kind)
	}
	if a.MD5 != "abcdefabcdefabcdefabcdefabcdefab" {
		t.Errorf("md5 = %q", a.MD5)
	}
}

func TestParseAnnouncementSendDenied(t *testing.T) {
	a := ParseAnnouncement("XDCC SEND denied, you already requested that pack")
	if a.Kind != AnnounceSendDenied {
		t.Fatalf("kind = %v", a.Kind)
	}
	if a.Reason != "you already requested that pack" {
		t.Errorf("reason = %q", a.Reason)
	}
}

func TestParseAnnouncementNoMatch(t *testing.T) {
	a := ParseAnnouncement("just chatting about the weather")
	if a.Kind != AnnounceNone {
		t.Fatalf("kind = %v, want AnnounceNone", a.Kind)
	}
}
