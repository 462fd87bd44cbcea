package auth

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/demystify-app/demystify-api/internal/config"
	"github.com/demystify-app/demystify-api/internal/settings"
)

// Mailer delivers account emails.
type Mailer interface {
	SendVerification(ctx context.Context, to, username, link string) error
}

// SMTPMailer sends mail through an SMTP relay using STARTTLS and PLAIN auth.
type SMTPMailer struct {
	cfg     config.SMTPConfig
	timeout time.Duration
}

// NewSMTPMailer returns a mailer for cfg, or nil when credentials are missing.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	if !cfg.Enabled() {
		return nil
	}
	if cfg.Port <= 0 {
		cfg.Port = settings.DefaultSMTPPort
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		cfg.FromEmail = cfg.Username
	}
	if strings.TrimSpace(cfg.FromName) == "" {
		cfg.FromName = settings.AppName
	}
	return &SMTPMailer{cfg: cfg, timeout: 15 * time.Second}
}

var verificationHTML = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1>Demystify</h1>
  <h2>Hello {{.Username}}!</h2>
  <p>Thanks for signing up. Confirm your email address to start using your account:</p>
  <p style="text-align: center;"><a href="{{.Link}}" style="display: inline-block; padding: 14px 28px; background: #667eea; color: white; text-decoration: none; border-radius: 6px;">Verify my account</a></p>
  <p style="font-size: 14px; color: #666;">Or paste this link into your browser:<br><code>{{.Link}}</code></p>
  <p style="font-size: 13px; color: #999;">This link expires in 24 hours. If you did not create this account you can ignore this email.</p>
</body>
</html>
`))

// SendVerification mails the verification link to the given address.
func (m *SMTPMailer) SendVerification(ctx context.Context, to, username, link string) error {
	plain := fmt.Sprintf("Hello %s!\n\nThanks for signing up for Demystify.\n\nVerify your account by opening this link:\n%s\n\nThis link expires in 24 hours.\nIf you did not create this account you can ignore this email.\n", username, link)
	var html bytes.Buffer
	if errExec := verificationHTML.Execute(&html, struct{ Username, Link string }{username, link}); errExec != nil {
		return fmt.Errorf("mailer: render: %w", errExec)
	}
	msg, errBuild := m.buildMessage(to, "Verify your account - Demystify", plain, html.String())
	if errBuild != nil {
		return errBuild
	}
	return m.send(ctx, to, msg)
}

func (m *SMTPMailer) buildMessage(to, subject, plain, html string) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, part := range []struct{ contentType, content string }{
		{"text/plain; charset=UTF-8", plain},
		{"text/html; charset=UTF-8", html},
	} {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", part.contentType)
		w, errPart := writer.CreatePart(header)
		if errPart != nil {
			return nil, fmt.Errorf("mailer: create part: %w", errPart)
		}
		if _, errWrite := w.Write([]byte(part.content)); errWrite != nil {
			return nil, fmt.Errorf("mailer: write part: %w", errWrite)
		}
	}
	if errClose := writer.Close(); errClose != nil {
		return nil, fmt.Errorf("mailer: close body: %w", errClose)
	}

	var msg bytes.Buffer
	from := mime.QEncoding.Encode("utf-8", m.cfg.FromName) + " <" + m.cfg.FromEmail + ">"
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", writer.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func (m *SMTPMailer) send(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Server, strconv.Itoa(m.cfg.Port))
	dialer := net.Dialer{Timeout: m.timeout}
	conn, errDial := dialer.DialContext(ctx, "tcp", addr)
	if errDial != nil {
		return fmt.Errorf("mailer: dial %s: %w", addr, errDial)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(m.timeout))
	}

	client, errClient := smtp.NewClient(conn, m.cfg.Server)
	if errClient != nil {
		_ = conn.Close()
		return fmt.Errorf("mailer: handshake: %w", errClient)
	}
	defer func() { _ = client.Close() }()

	if errTLS := client.StartTLS(&tls.Config{ServerName: m.cfg.Server, MinVersion: tls.VersionTLS12}); errTLS != nil {
		return fmt.Errorf("mailer: starttls: %w", errTLS)
	}
	if errAuth := client.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Server)); errAuth != nil {
		return fmt.Errorf("mailer: auth: %w", errAuth)
	}
	if errMail := client.Mail(m.cfg.FromEmail); errMail != nil {
		return fmt.Errorf("mailer: mail from: %w", errMail)
	}
	if errRcpt := client.Rcpt(to); errRcpt != nil {
		return fmt.Errorf("mailer: rcpt: %w", errRcpt)
	}
	w, errData := client.Data()
	if errData != nil {
		return fmt.Errorf("mailer: data: %w", errData)
	}
	if _, errWrite := w.Write(msg); errWrite != nil {
		_ = w.Close()
		return fmt.Errorf("mailer: write: %w", errWrite)
	}
	if errClose := w.Close(); errClose != nil {
		return fmt.Errorf("mailer: finish data: %w", errClose)
	}
	return client.Quit()
}
