// Package notification sends transactional email over SMTP.
package notification

import (
	"context"
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"github.com/tendant/workspace-authz/internal/config"
)

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailService delivers invitation emails.
type EmailService struct {
	config config.SMTPConfig
	send   sendFunc
}

// NewEmailService creates an SMTP email service.
func NewEmailService(cfg config.SMTPConfig) *EmailService {
	return &EmailService{config: cfg, send: smtp.SendMail}
}

// SendInvitationEmail tells to that they were invited to workspaceName.
func (s *EmailService) SendInvitationEmail(ctx context.Context, to, workspaceName, acceptURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := html.EscapeString(workspaceName)
	link := html.EscapeString(acceptURL)

	subject := fmt.Sprintf("You've been invited to join %s", headerSafe(workspaceName))
	body := fmt.Sprintf(`<html><body>
		<h2>Join %s</h2>
		<p>You have been invited to join the workspace <strong>%s</strong>.</p>
		<p><a href="%s">Click here to accept the invitation</a></p>
		<p>Or copy this link to your browser: %s</p>
		<p>Sign in with this email address to accept. The link expires in 7 days.</p>
	</body></html>`, name, name, link, link)
	return s.sendEmail(to, subject, body)
}

func (s *EmailService) sendEmail(to, subject, body string) error {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", headerSafe(s.config.FromName), s.config.From)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		from, headerSafe(to), subject, body)

	var auth smtp.Auth
	if s.config.User != "" {
		auth = smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	}
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	if err := s.send(addr, auth, s.config.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// headerSafe strips line breaks so user-supplied text cannot inject headers.
func headerSafe(v string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(v)
}
