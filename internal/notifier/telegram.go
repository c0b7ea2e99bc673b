package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

const telegramTextLimit = 4096

// urgentPrefix marks 1-day reminders in chat.
const urgentPrefix = "🚨 "

// telegramAPI is the part of *tele.Bot the notifier uses.
type telegramAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Raw(method string, payload interface{}) ([]byte, error)
}

// Telegram delivers reminders as Bot API messages. Recipients are chat ids,
// optionally with a forum topic: "-1001234567890" or "-1001234567890:42".
type Telegram struct {
	api     telegramAPI
	limiter *rate.Limiter
	log     logx.Logger

	// delivered counts the chunks of a split message already accepted, so a
	// retry after a partial failure resumes instead of repeating them.
	mu        sync.Mutex
	delivered map[uint64]int
}

// maxPartial bounds the partial-delivery table.
const maxPartial = 256

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	// Offline skips the getMe round trip; Probe performs it on demand.
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token, Offline: true})
	if err != nil {
		return nil, err
	}
	return newTelegram(b, cfg.RatePerSec, log), nil
}

func newTelegram(api telegramAPI, perSec int, log logx.Logger) *Telegram {
	var lim *rate.Limiter
	if perSec > 0 {
		lim = rate.NewLimiter(rate.Limit(perSec), 1)
	}
	return &Telegram{
		api:       api,
		limiter:   lim,
		log:       log.With(logx.String("channel", "telegram")),
		delivered: map[uint64]int{},
	}
}

// ParseChatTarget splits "chat[:thread]".
func ParseChatTarget(s string) (chatID int64, threadID int, err error) {
	s = strings.TrimSpace(s)
	chat, thread, hasThread := strings.Cut(s, ":")
	chatID, err = strconv.ParseInt(strings.TrimSpace(chat), 10, 64)
	if err != nil || chatID == 0 {
		return 0, 0, fmt.Errorf("%w: %q is not a chat id", ErrInvalidRecipient, s)
	}
	if hasThread {
		threadID, err = strconv.Atoi(strings.TrimSpace(thread))
		if err != nil || threadID < 0 {
			return 0, 0, fmt.Errorf("%w: %q has a bad thread id", ErrInvalidRecipient, s)
		}
	}
	return chatID, threadID, nil
}

func (t *Telegram) Send(ctx context.Context, m reminder.Message) error {
	chatID, threadID, err := ParseChatTarget(m.Recipient)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	text := "<b>" + escapeTelegram(m.Subject) + "</b>\n\n" + m.Body
	if m.Urgent {
		text = urgentPrefix + text
	}

	chat := &tele.Chat{ID: chatID}
	chunks := splitTelegramText(text, telegramTextLimit)
	key := messageKey(m.Recipient, text)
	for i := t.resumeAt(key); i < len(chunks); i++ {
		chunk := chunks[i]
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := t.api.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             tele.ModeHTML,
			DisableWebPagePreview: true,
			ThreadID:              threadID,
		})
		if err != nil {
			return fmt.Errorf("telegram send to %d (part %d/%d): %w", chatID, i+1, len(chunks), err)
		}
		if len(chunks) > 1 {
			t.markDelivered(key, i+1, len(chunks))
		}
	}
	t.log.Debug("telegram message sent", logx.Int64("chat_id", chatID), logx.Bool("urgent", m.Urgent))
	return nil
}

func messageKey(recipient, text string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(recipient))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}

func (t *Telegram) resumeAt(key uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delivered[key]
}

func (t *Telegram) markDelivered(key uint64, n, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n >= total {
		delete(t.delivered, key)
		return
	}
	if len(t.delivered) >= maxPartial {
		clear(t.delivered)
	}
	t.delivered[key] = n
}

// Probe calls getMe to check the token. The Bot API client takes no context,
// so the call is abandoned (not aborted) when ctx ends first.
func (t *Telegram) Probe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		_, err := t.api.Raw("getMe", map[string]string{})
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram getMe: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("telegram getMe: %w", ctx.Err())
	}
}

func escapeTelegram(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// splitTelegramText cuts s into chunks of at most limit runes, preferring
// newline boundaries and never cutting inside an HTML tag.
func splitTelegramText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
			open, closed := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					open = i
				case '>':
					closed = i
				}
			}
			if open > closed && open > start {
				end = open
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
	}
	return out
}
