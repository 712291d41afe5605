package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// SMTPConfig holds the mail relay settings.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
	// InsecureSkipVerify skips certificate checks (local MailHog and similar).
	InsecureSkipVerify bool
}

// SMTPMailer sends rendered HTML mail through an SMTP relay, upgrading to
// TLS with STARTTLS when the server offers it.
type SMTPMailer struct {
	cfg      SMTPConfig
	renderer *Renderer
	deliver  func(ctx context.Context, to string, msg []byte) error
}

func NewSMTPMailer(cfg SMTPConfig, renderer *Renderer) *SMTPMailer {
	m := &SMTPMailer{cfg: cfg, renderer: renderer}
	m.deliver = m.dial
	return m
}

func (m *SMTPMailer) Send(ctx context.Context, to string, kind Kind, payload Payload) error {
	subject, body, err := m.renderer.Render(kind, payload)
	if err != nil {
		return err
	}
	return m.deliver(ctx, to, buildMessage(m.cfg.From, to, subject, body))
}

// buildMessage assembles the MIME message. Header order is fixed.
func buildMessage(from, to, subject, htmlBody string) []byte {
	var sb strings.Builder
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + mime.QEncoding.Encode("UTF-8", subject) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(htmlBody)
	return []byte(sb.String())
}

func (m *SMTPMailer) dial(ctx context.Context, to string, msg []byte) error {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if err := c.Hello("localhost"); err != nil {
		return err
	}

	if ok, _ := c.Extension("STARTTLS"); ok {
		tlsCfg := &tls.Config{ServerName: m.cfg.Host, InsecureSkipVerify: m.cfg.InsecureSkipVerify}
		if err := c.StartTLS(tlsCfg); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}

	if m.cfg.User != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := c.Mail(m.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
