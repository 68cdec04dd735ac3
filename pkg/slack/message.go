package slack

import (
	"fmt"

	goslack "github.com/slack-go/slack"
)

// Alert carries what the escalation messages show about a session.
type Alert struct {
	SessionID        string
	Level            int
	InteractionCount int
}

func sessionURL(sessionID, dashboardURL string) string {
	return fmt.Sprintf("%s/sessions/%s", dashboardURL, sessionID)
}

// BuildEscalationAlert creates the parent alert posted when a session first
// crosses the alert threshold. The fallback text carries the session
// fingerprint so later alerts can find this message in channel history.
func BuildEscalationAlert(a Alert, dashboardURL string) (string, []goslack.Block) {
	text := fmt.Sprintf(":rotating_light: Honeypot session escalated to level %d [%s]",
		a.Level, Fingerprint(a.SessionID))

	header := fmt.Sprintf(":rotating_light: *Honeypot session escalated to level %d*", a.Level)
	detail := fmt.Sprintf("*Session:* `%s`\n*Escalation level:* %d\n*Interactions:* %d",
		a.SessionID, a.Level, a.InteractionCount)

	btn := goslack.NewButtonBlockElement("", "",
		goslack.NewTextBlockObject(goslack.PlainTextType, "View Session", false, false))
	btn.URL = sessionURL(a.SessionID, dashboardURL)

	return text, []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, detail, false, false),
			nil, nil,
		),
		goslack.NewActionBlock("", btn),
	}
}

// BuildEscalationUpdate creates the threaded follow-up for a session whose
// escalation rose again after the parent alert.
func BuildEscalationUpdate(a Alert) (string, []goslack.Block) {
	text := fmt.Sprintf("Escalation rose to level %d [%s]", a.Level, Fingerprint(a.SessionID))
	body := fmt.Sprintf(":chart_with_upwards_trend: Escalation rose to *level %d* after %d interactions.",
		a.Level, a.InteractionCount)

	return text, []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, body, false, false),
			nil, nil,
		),
	}
}
