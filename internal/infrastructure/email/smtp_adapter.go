// Package email delivers notifications over SMTP.
package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"notification-backend/internal/config"
	"notification-backend/internal/domains/notification/model"
)

// maxContentBytes caps the rendered body accepted for email.
const maxContentBytes = 10000

// mimeBoundary separates the plain-text and HTML parts of a
// multipart/alternative message. Neither part may contain this string.
const mimeBoundary = "=_notification_alt_boundary_="

type smtpAdapter struct {
	cfg  config.SMTPConfig
	send func(ctx context.Context, addr string, from string, to []string, msg []byte) error
}

// NewAdapter returns the EMAIL channel adapter backed by net/smtp.
func NewAdapter(cfg config.SMTPConfig) *smtpAdapter {
	return &smtpAdapter{cfg: cfg, send: sendMail}
}

func (a *smtpAdapter) Channel() model.Channel {
	return model.ChannelEmail
}

func (a *smtpAdapter) Send(ctx context.Context, req *model.DispatchRequest) (string, error) {
	if a.cfg.Host == "" {
		return "", model.ErrMissingConfig
	}

	to := req.Address()
	if !validAddress(to) {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidRecipient, to)
	}
	if len(req.Content) > maxContentBytes {
		return "", fmt.Errorf("%w: %d bytes", model.ErrContentTooLarge, len(req.Content))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	message := a.buildMessage(to, req.Subject, req.Content, req.HTMLContent)
	addr := a.cfg.Host + ":" + a.cfg.Port

	if err := a.send(ctx, addr, a.cfg.From, []string{to}, message); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}

	log.Debug().
		Str("to", to).
		Str("correlationID", req.CorrelationID).
		Msg("[EmailAdapter] Message accepted by SMTP server")

	// SMTP gives no provider message id; the notification id stands in.
	return "smtp-" + req.NotificationID.String(), nil
}

// sendMail speaks the SMTP transaction over a context-bound connection. The
// context deadline becomes the socket deadline, so a slow server fails the
// attempt instead of hanging the worker past its timeout.
func sendMail(ctx context.Context, addr, from string, to []string, msg []byte) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// buildMessage assembles an RFC 5322 message with CRLF line endings. When an
// HTML body is present the message is multipart/alternative with the plain
// part first, so clients without HTML support fall back cleanly.
func (a *smtpAdapter) buildMessage(to, subject, body string, htmlBody *string) []byte {
	var b strings.Builder
	b.WriteString("From: " + a.cfg.From + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")

	if htmlBody == nil || *htmlBody == "" {
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		b.WriteString("\r\n")
		b.WriteString(body)
		return []byte(b.String())
	}

	b.WriteString(`Content-Type: multipart/alternative; boundary="` + mimeBoundary + `"` + "\r\n")
	b.WriteString("\r\n")
	b.WriteString("--" + mimeBoundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n--" + mimeBoundary + "\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(*htmlBody)
	b.WriteString("\r\n--" + mimeBoundary + "--\r\n")
	return []byte(b.String())
}

func validAddress(addr string) bool {
	at := strings.Index(addr, "@")
	if at < 1 || at == len(addr)-1 {
		return false
	}
	domain := addr[at+1:]
	return strings.Contains(domain, ".") && !strings.ContainsAny(addr, " \r\n")
}
