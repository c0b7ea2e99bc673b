package notifier

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrUnknownChannel   = errors.New("unknown notifier channel")
)

// Prober checks that a channel is reachable and authenticated.
type Prober interface {
	Probe(ctx context.Context) error
}

// Config selects and configures a channel.
type Config struct {
	Channel  string
	Template string // optional e-mail body template file

	SMTP     SMTPConfig
	Telegram TelegramConfig
}

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	FromName    string
	DialTimeout time.Duration
}

type TelegramConfig struct {
	Token      string
	RatePerSec int
}
