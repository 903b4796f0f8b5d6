package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/google/uuid"
	"github.com/resend/resend-go/v2"

	"github.com/HammerMeetNail/chessticulate/internal/config"
	"github.com/HammerMeetNail/chessticulate/internal/logging"
	"github.com/HammerMeetNail/chessticulate/internal/models"
)

// Email represents an email to be sent
type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// EmailProvider is the interface for sending emails
type EmailProvider interface {
	Send(ctx context.Context, email *Email) error
}

// NewEmailProvider picks a provider from configuration.
func NewEmailProvider(cfg *config.EmailConfig) EmailProvider {
	from := fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromAddress)
	switch cfg.Provider {
	case "resend":
		return NewResendProvider(cfg.ResendAPIKey, from)
	case "smtp":
		return NewSMTPProvider(cfg.SMTPHost, cfg.SMTPPort, cfg.FromAddress, from)
	default:
		return NewConsoleProvider()
	}
}

type recipient struct {
	ID    uuid.UUID
	Name  string
	Email string
}

// EmailSink emails players about invitations they receive and games that end.
type EmailSink struct {
	provider EmailProvider
	db       DB
	baseURL  string
}

func NewEmailSink(provider EmailProvider, db DB, baseURL string) *EmailSink {
	return &EmailSink{
		provider: provider,
		db:       db,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

func (s *EmailSink) Deliver(ctx context.Context, event models.Event) error {
	switch event.Type {
	case models.EventInvitationCreated:
		if event.Invitation == nil {
			return nil
		}
		return s.sendInvitation(ctx, event.Invitation)
	case models.EventGameEnded:
		if event.Game == nil {
			return nil
		}
		return s.sendGameEnded(ctx, event.Game)
	}
	return nil
}

func (s *EmailSink) sendInvitation(ctx context.Context, inv *models.Invitation) error {
	people, err := s.lookup(ctx, inv.InviterID, inv.InviteeID)
	if err != nil {
		return err
	}
	inviter, okInviter := people[inv.InviterID]
	invitee, okInvitee := people[inv.InviteeID]
	if !okInviter || !okInvitee {
		return nil
	}

	link := fmt.Sprintf("%s/invitations/%s", s.baseURL, inv.ID)
	html, text, err := renderEmail(invitationTemplate, map[string]string{
		"Name":    invitee.Name,
		"Inviter": inviter.Name,
		"Link":    link,
		"Expires": inv.ExpiresAt.UTC().Format("Jan 2 15:04 MST"),
	})
	if err != nil {
		return err
	}
	return s.provider.Send(ctx, &Email{
		To:      invitee.Email,
		Subject: fmt.Sprintf("%s challenged you to a game", inviter.Name),
		HTML:    html,
		Text:    text,
	})
}

func (s *EmailSink) sendGameEnded(ctx context.Context, g *models.Game) error {
	people, err := s.lookup(ctx, g.WhiteID, g.BlackID)
	if err != nil {
		return err
	}

	var errs []string
	for _, id := range []uuid.UUID{g.WhiteID, g.BlackID} {
		player, ok := people[id]
		if !ok {
			continue
		}
		opponent := people[g.Opponent(id)]
		html, text, err := renderEmail(gameEndedTemplate, map[string]string{
			"Name":     player.Name,
			"Opponent": opponent.Name,
			"Outcome":  outcomeFor(g, id),
			"Link":     fmt.Sprintf("%s/games/%s", s.baseURL, g.ID),
		})
		if err != nil {
			return err
		}
		if err := s.provider.Send(ctx, &Email{
			To:      player.Email,
			Subject: "Your game has ended",
			HTML:    html,
			Text:    text,
		}); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("send game ended email: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s *EmailSink) lookup(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]recipient, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, email FROM users WHERE id = ANY($1) AND deleted = FALSE`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("load email recipients: %w", err)
	}
	defer rows.Close()

	people := make(map[uuid.UUID]recipient, len(ids))
	for rows.Next() {
		var r recipient
		if err := rows.Scan(&r.ID, &r.Name, &r.Email); err != nil {
			return nil, fmt.Errorf("scan email recipient: %w", err)
		}
		people[r.ID] = r
	}
	return people, rows.Err()
}

func outcomeFor(g *models.Game, playerID uuid.UUID) string {
	switch g.Status {
	case models.GameDraw:
		return "The game was drawn."
	case models.GameExpired:
		return "The game expired after the move timeout."
	case models.GameAborted:
		return "The game was aborted."
	}
	if g.WinnerID == nil {
		return "The game is over."
	}
	if *g.WinnerID == playerID {
		if g.Status == models.GameResigned {
			return "You won. Your opponent resigned."
		}
		return "You won!"
	}
	if g.Status == models.GameResigned {
		return "You resigned."
	}
	return "You lost."
}

type emailTemplate struct {
	html *template.Template
	text string
}

var invitationTemplate = emailTemplate{
	html: template.Must(template.New("invitation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1 style="color: #333; font-size: 24px;">Hi {{.Name}},</h1>
  <p>{{.Inviter}} has challenged you to a game of chess.</p>
  <a href="{{.Link}}"
     style="display: inline-block; background: #4F46E5; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; margin: 20px 0;">
    View Invitation
  </a>
  <p style="color: #666; font-size: 14px;">The invitation expires {{.Expires}}.</p>
  <hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">
  <p style="color: #999; font-size: 12px;">Chessticulate</p>
</body>
</html>`)),
	text: "Hi {{.Name}},\n\n{{.Inviter}} has challenged you to a game of chess.\n\n{{.Link}}\n\nThe invitation expires {{.Expires}}.\n\n--\nChessticulate",
}

var gameEndedTemplate = emailTemplate{
	html: template.Must(template.New("game_ended").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1 style="color: #333; font-size: 24px;">Hi {{.Name}},</h1>
  <p>Your game against {{.Opponent}} is over. {{.Outcome}}</p>
  <a href="{{.Link}}"
     style="display: inline-block; background: #4F46E5; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; margin: 20px 0;">
    Review Game
  </a>
  <hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">
  <p style="color: #999; font-size: 12px;">Chessticulate</p>
</body>
</html>`)),
	text: "Hi {{.Name}},\n\nYour game against {{.Opponent}} is over. {{.Outcome}}\n\n{{.Link}}\n\n--\nChessticulate",
}

func renderEmail(t emailTemplate, data map[string]string) (html, text string, err error) {
	var buf bytes.Buffer
	if err := t.html.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render email html: %w", err)
	}
	html = buf.String()

	text = t.text
	for k, v := range data {
		text = strings.ReplaceAll(text, "{{."+k+"}}", v)
	}
	return html, text, nil
}

// ResendProvider sends emails using the Resend API
type ResendProvider struct {
	client *resend.Client
	from   string
}

func NewResendProvider(apiKey, from string) *ResendProvider {
	return &ResendProvider{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

func (p *ResendProvider) Send(ctx context.Context, email *Email) error {
	params := &resend.SendEmailRequest{
		From:    p.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
	}

	_, err := p.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("sending email via Resend: %w", err)
	}

	logging.Info("Email sent via Resend", map[string]interface{}{"to": email.To, "subject": email.Subject})
	return nil
}

// SMTPProvider sends emails via SMTP (for Mailpit in local dev)
type SMTPProvider struct {
	host     string
	port     int
	envelope string
	from     string
}

func NewSMTPProvider(host string, port int, envelope, from string) *SMTPProvider {
	return &SMTPProvider{host: host, port: port, envelope: envelope, from: from}
}

func (p *SMTPProvider) Send(ctx context.Context, email *Email) error {
	addr := fmt.Sprintf("%s:%d", p.host, p.port)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", p.from)
	fmt.Fprintf(&buf, "To: %s\r\n", email.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", email.Subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(email.HTML)

	if err := smtp.SendMail(addr, nil, p.envelope, []string{email.To}, buf.Bytes()); err != nil {
		return fmt.Errorf("sending email via SMTP: %w", err)
	}

	logging.Info("Email sent via SMTP", map[string]interface{}{"to": email.To, "subject": email.Subject})
	return nil
}

// ConsoleProvider logs emails (for development)
type ConsoleProvider struct{}

func NewConsoleProvider() *ConsoleProvider {
	return &ConsoleProvider{}
}

func (p *ConsoleProvider) Send(ctx context.Context, email *Email) error {
	logging.Info("Email (console provider)", map[string]interface{}{
		"to":      email.To,
		"subject": email.Subject,
		"body":    email.Text,
	})
	return nil
}
