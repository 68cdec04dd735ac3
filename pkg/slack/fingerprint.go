package slack

import (
	"regexp"
	"strings"

	goslack "github.com/slack-go/slack"
)

// Fingerprint returns the thread anchor embedded in every alert posted for
// a session. Follow-up alerts locate the parent message by this tag, so it
// must survive Slack's text rendering verbatim.
func Fingerprint(sessionID string) string {
	return "trapline:" + sessionID
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func normalizeText(s string) string {
	s = strings.ToLower(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func collectMessageText(msg goslack.Message) string {
	var parts []string
	if msg.Text != "" {
		parts = append(parts, msg.Text)
	}
	for _, att := range msg.Attachments {
		if att.Text != "" {
			parts = append(parts, att.Text)
		}
		if att.Fallback != "" {
			parts = append(parts, att.Fallback)
		}
	}
	return strings.Join(parts, " ")
}
