package irc

import "regexp"

var xdccSendRe = regexp.MustCompile(`(?i)^xdcc (send|batch) `)

// RewriteToSSend implements the outbound rewrite rule: a message starting
// with "xdcc send " or "xdcc batch " (any case) is rewritten to
// "xdcc ssend "/"xdcc sbatch " when the target nick is in ssend_map or any
// destination channel is in the session's rewrite_to_ssend set. Messages
// that don't match the pattern, or for which the rule doesn't apply, are
// returned unchanged.
func RewriteToSSend(message string, shouldRewrite bool) string {
	if !shouldRewrite {
		return message
	}
	loc := xdccSendRe.FindStringSubmatchIndex(message)
	if loc == nil {
		return message
	}
	verb := message[loc[2]:loc[3]]
	return "xdcc s" + verb + " " + message[loc[1]:]
}
