package notifier

import (
	"fmt"
	"strings"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// Channel is a configured notifier with its matching renderer.
type Channel struct {
	Name     string
	Notifier reminder.Notifier
	Renderer reminder.Renderer
}

// Prober returns the connectivity check of the channel, if it has one.
func (c Channel) Prober() (Prober, bool) {
	p, ok := c.Notifier.(Prober)
	return p, ok
}

// Open builds the channel named by cfg.Channel. Dates render in loc.
func Open(cfg Config, loc *time.Location, log logx.Logger) (Channel, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Channel))
	ch := Channel{Name: name}

	switch name {
	case "smtp", "email":
		n, err := NewSMTP(cfg.SMTP, log)
		if err != nil {
			return Channel{}, err
		}
		ch.Name, ch.Notifier = "smtp", n
	case "telegram":
		n, err := NewTelegram(cfg.Telegram, log)
		if err != nil {
			return Channel{}, err
		}
		ch.Notifier = n
	case "log":
		ch.Notifier = NewLog(log)
	default:
		return Channel{}, fmt.Errorf("%w: %q", ErrUnknownChannel, cfg.Channel)
	}

	if ch.Name == "telegram" {
		ch.Renderer = NewRenderer(FormatTelegram, loc)
		return ch, nil
	}
	if strings.TrimSpace(cfg.Template) != "" {
		r, err := LoadRenderer(cfg.Template, loc)
		if err != nil {
			return Channel{}, err
		}
		ch.Renderer = r
		return ch, nil
	}
	ch.Renderer = NewRenderer(FormatEmail, loc)
	return ch, nil
}

// ValidRecipient reports whether r is addressable on channel.
func ValidRecipient(channel, r string) bool {
	switch strings.ToLower(strings.TrimSpace(channel)) {
	case "telegram":
		_, _, err := ParseChatTarget(r)
		return err == nil
	case "log":
		return strings.TrimSpace(r) != ""
	default:
		return ValidEmail(r)
	}
}
