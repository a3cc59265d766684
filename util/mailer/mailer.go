// Package mailer sends club invitation emails.
package mailer

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/resend/resend-go/v3"
)

type Invite struct {
	To        string
	ClubTitle string
	InvitedBy string
	Code      string
}

type Sender interface {
	SendInvitation(ctx context.Context, in Invite) error
}

type resendSender struct {
	client *resend.Client
	from   string
	appURL string
}

func NewResend(apiKey, from, appURL string) Sender {
	return &resendSender{client: resend.NewClient(apiKey), from: from, appURL: appURL}
}

func (s *resendSender) SendInvitation(ctx context.Context, in Invite) error {
	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    fmt.Sprintf("Book Club <%s>", s.from),
		To:      []string{in.To},
		Subject: fmt.Sprintf("You're invited to %s", in.ClubTitle),
		Html:    invitationHTML(s.appURL, in),
	})
	if err != nil {
		return fmt.Errorf("send invitation email: %w", err)
	}
	return nil
}

func invitationHTML(appURL string, in Invite) string {
	link := fmt.Sprintf("%s/invitations/%s", appURL, in.Code)
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family:Arial,Helvetica,sans-serif;">
  <h2>%s invited you to join %s</h2>
  <p>Your invitation code is <strong>%s</strong>.</p>
  <p><a href="%s">Open the invitation</a></p>
</body>
</html>`, html.EscapeString(in.InvitedBy), html.EscapeString(in.ClubTitle), in.Code, link)
}

// logSender is used when no mail provider is configured.
type logSender struct{ log *slog.Logger }

func NewLog(log *slog.Logger) Sender { return &logSender{log: log} }

func (s *logSender) SendInvitation(_ context.Context, in Invite) error {
	s.log.Info("invitation email skipped, no provider configured", "to", in.To, "club", in.ClubTitle, "code", in.Code)
	return nil
}
