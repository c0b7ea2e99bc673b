package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"regexp"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"

	"github.com/google/uuid"
)

const defaultDialTimeout = 15 * time.Second

// emailPattern is the address shape accepted for reminder recipients.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidEmail reports whether s looks like a deliverable address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// SMTP sends HTML mail. Port 465 uses implicit TLS; any other port upgrades
// with STARTTLS when the server offers it.
type SMTP struct {
	cfg SMTPConfig
	log logx.Logger

	now func() time.Time
}

func NewSMTP(cfg SMTPConfig, log logx.Logger) (*SMTP, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is empty")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if strings.TrimSpace(cfg.From) == "" {
		cfg.From = cfg.Username
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("smtp from %q: %w", cfg.From, err)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	return &SMTP{cfg: cfg, log: log.With(logx.String("channel", "smtp")), now: time.Now}, nil
}

func (s *SMTP) addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

func (s *SMTP) Send(ctx context.Context, m reminder.Message) error {
	to := strings.TrimSpace(m.Recipient)
	if !ValidEmail(to) {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, m.Recipient)
	}
	msg, err := s.buildMessage(to, m)
	if err != nil {
		return err
	}

	c, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp MAIL: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT %s: %w", to, err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp DATA end: %w", err)
	}
	if err := c.Quit(); err != nil {
		s.log.Debug("smtp quit failed", logx.Err(err))
	}
	s.log.Debug("mail sent", logx.String("to", to), logx.Bool("urgent", m.Urgent))
	return nil
}

// Probe connects, negotiates TLS and authenticates without sending.
func (s *SMTP) Probe(ctx context.Context) error {
	c, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Quit()
}

// dial returns an authenticated client. The connection deadline follows ctx.
func (s *SMTP) dial(ctx context.Context) (*smtp.Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	dctx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	tlsCfg := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
	var (
		conn net.Conn
		err  error
	)
	if s.cfg.Port == 465 {
		d := &tls.Dialer{NetDialer: &net.Dialer{}, Config: tlsCfg}
		conn, err = d.DialContext(dctx, "tcp", s.addr())
	} else {
		var d net.Dialer
		conn, err = d.DialContext(dctx, "tcp", s.addr())
	}
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", s.addr(), err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp greeting: %w", err)
	}
	if ok, _ := c.Extension("STARTTLS"); ok && s.cfg.Port != 465 {
		if err := c.StartTLS(tlsCfg); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("smtp STARTTLS: %w", err)
		}
	}
	if s.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			_ = c.Close()
			return nil, errors.New("smtp server does not support AUTH")
		}
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := c.Auth(auth); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("smtp AUTH: %w", err)
		}
	}
	return c, nil
}

// buildMessage renders RFC 5322 headers plus a base64 HTML body.
func (s *SMTP) buildMessage(to string, m reminder.Message) ([]byte, error) {
	from := mail.Address{Name: s.cfg.FromName, Address: s.cfg.From}
	var b bytes.Buffer
	hdr := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }

	hdr("From", from.String())
	hdr("To", (&mail.Address{Address: to}).String())
	hdr("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	hdr("Date", s.now().Format(time.RFC1123Z))
	hdr("Message-ID", messageID(s.cfg.From))
	hdr("MIME-Version", "1.0")
	hdr("Content-Type", `text/html; charset="utf-8"`)
	hdr("Content-Transfer-Encoding", "base64")
	if m.Urgent {
		hdr("X-Priority", "1")
		hdr("Importance", "high")
	}
	b.WriteString("\r\n")

	enc := base64.StdEncoding.EncodeToString([]byte(m.Body))
	for len(enc) > 76 {
		b.WriteString(enc[:76])
		b.WriteString("\r\n")
		enc = enc[76:]
	}
	if enc != "" {
		b.WriteString(enc)
		b.WriteString("\r\n")
	}
	return b.Bytes(), nil
}

func messageID(from string) string {
	domain := "localhost"
	if i := strings.LastIndexByte(from, '@'); i >= 0 && i < len(from)-1 {
		domain = from[i+1:]
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}
