package delivery

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

// SMTPConfig holds mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	// Validity is shown to the recipient as the code lifetime.
	Validity time.Duration
}

// SMTPSender renders an HTML message and submits it over SMTP.
type SMTPSender struct {
	cfg      SMTPConfig
	tmpl     *template.Template
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

const codeTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif">
  <p>Hello there,</p>
  <p>Your verification code is:</p>
  <p style="font-size: 24px; letter-spacing: 4px"><strong>{{.Code}}</strong></p>
  <p>The code expires in {{.ExpiryMinutes}} minutes. If you did not request it, ignore this email.</p>
</body>
</html>
`

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{
		cfg:      cfg,
		tmpl:     template.Must(template.New("code").Parse(codeTemplate)),
		sendMail: smtp.SendMail,
	}
}

// SendCode renders and sends the message. net/smtp has no context support,
// so ctx is only checked before dialing.
func (s *SMTPSender) SendCode(ctx context.Context, address, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := s.render(address, code)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.sendMail(addr, auth, s.cfg.From, []string{address}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) render(address, code string) ([]byte, error) {
	var body bytes.Buffer
	err := s.tmpl.Execute(&body, struct {
		Code          string
		ExpiryMinutes int
	}{Code: code, ExpiryMinutes: int(s.cfg.Validity.Minutes())})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", address)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", "Verify your account"))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}
