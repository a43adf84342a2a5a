package email

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"fixitnow/chatdesk/internal/models"
)

// KindHeader names the notification type inside a raw message.
const KindHeader = "X-FixItNow-Kind"

// Notification kinds.
const (
	KindDisputeEscalated = "dispute_escalated"
	KindDisputeResolved  = "dispute_resolved"
)

// Message is a plain-text email before it is rendered to RFC 5322 form.
type Message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	Kind    string   `json:"kind"`
}

// Raw renders m with the headers every sender expects.
func (m Message) Raw(from string, now time.Time) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "To: %s\r\n", strings.Join(m.To, ", "))
	fmt.Fprintf(&sb, "From: %s\r\n", from)
	fmt.Fprintf(&sb, "Subject: %s\r\n", m.Subject)
	fmt.Fprintf(&sb, "Date: %s\r\n", now.Format(time.RFC1123Z))
	if m.Kind != "" {
		fmt.Fprintf(&sb, "%s: %s\r\n", KindHeader, m.Kind)
	}
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(strings.TrimRight(m.Body, "\n"), "\n", "\r\n"))
	sb.WriteString("\r\n")
	return []byte(sb.String())
}

var escalatedTmpl = template.Must(template.New("escalated").Parse(`Dispute {{.D.DisputeID}} was escalated.

Title:      {{.D.Title}}
Category:   {{.D.Category}}
Priority:   {{.D.Priority}}
Booking:    {{.D.BookingID}}
Opened:     {{.D.CreatedAt.Format "2006-01-02 15:04 MST"}}
Reason:     {{.Reason}}

-- {{.App}}
`))

var resolvedTmpl = template.Must(template.New("resolved").Funcs(template.FuncMap{
	"amount": func(f *float64) string { return fmt.Sprintf("%.2f", *f) },
}).Parse(`Dispute {{.D.DisputeID}} was resolved.

Title:      {{.D.Title}}
Decision:   {{.D.Resolution.Decision}}
{{- if .D.Resolution.RefundAmount}}
Refund:     {{amount .D.Resolution.RefundAmount}}
{{- end}}
{{- if .D.Resolution.Compensation}}
Compensation: {{amount .D.Resolution.Compensation}}
{{- end}}

{{.D.Resolution.Explanation}}

-- {{.App}}
`))

// DisputeEscalatedMessage is the dispute-desk notice sent on escalation.
func DisputeEscalatedMessage(appName, to string, d *models.Dispute, reason string) (Message, error) {
	var buf bytes.Buffer
	err := escalatedTmpl.Execute(&buf, struct {
		App    string
		D      *models.Dispute
		Reason string
	}{appName, d, reason})
	if err != nil {
		return Message{}, fmt.Errorf("render escalation email: %w", err)
	}
	return Message{
		To:      []string{to},
		Subject: fmt.Sprintf("[%s] Dispute %s escalated", appName, d.DisputeID),
		Body:    buf.String(),
		Kind:    KindDisputeEscalated,
	}, nil
}

// DisputeResolvedMessage is the dispute-desk notice sent on resolution.
func DisputeResolvedMessage(appName, to string, d *models.Dispute) (Message, error) {
	if d.Resolution == nil {
		return Message{}, fmt.Errorf("dispute %s has no resolution", d.DisputeID)
	}
	var buf bytes.Buffer
	err := resolvedTmpl.Execute(&buf, struct {
		App string
		D   *models.Dispute
	}{appName, d})
	if err != nil {
		return Message{}, fmt.Errorf("render resolution email: %w", err)
	}
	return Message{
		To:      []string{to},
		Subject: fmt.Sprintf("[%s] Dispute %s resolved", appName, d.DisputeID),
		Body:    buf.String(),
		Kind:    KindDisputeResolved,
	}, nil
}
