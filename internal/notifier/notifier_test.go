package notifier

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"

	tele "gopkg.in/telebot.v4"
)

var trt = time.FixedZone("TRT", 3*60*60)

func dueReminder(th reminder.Threshold) reminder.DueReminder {
	return reminder.DueReminder{
		Item: reminder.TrackedItem{
			ID:         "42",
			Name:       "Köprü <Bakım> & Onarım",
			Owner:      "Ayşe Yılmaz",
			Recipient:  "ayse@example.com",
			TargetDate: time.Date(2025, time.April, 30, 0, 0, 0, 0, trt),
		},
		Threshold:     th,
		RemainingDays: int(th),
		Urgent:        th.Urgent(),
	}
}

func TestRenderEmail(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, time.March, 31, 6, 5, 0, 0, time.UTC)
	r := NewRenderer(FormatEmail, trt)

	subject, body, err := r.Render(dueReminder(reminder.Threshold30), now)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if subject != "🔔 Hatırlatma - Köprü <Bakım> & Onarım" {
		t.Fatalf("subject = %q", subject)
	}
	for _, want := range []string{"Ayşe Yılmaz", "30 gün", "30.04.2025", "31.03.2025 09:05", "Köprü &lt;Bakım&gt; &amp; Onarım"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q", want)
		}
	}
	if strings.Contains(body, "DİKKAT") {
		t.Fatal("non-urgent body has urgency block")
	}

	_, body, err = r.Render(dueReminder(reminder.Threshold1), now)
	if err != nil {
		t.Fatalf("Render urgent: %v", err)
	}
	if !strings.Contains(body, "DİKKAT") {
		t.Fatal("urgent body lacks urgency block")
	}
}

func TestRenderTelegram(t *testing.T) {
	t.Parallel()
	r := NewRenderer(FormatTelegram, trt)
	_, body, err := r.Render(dueReminder(reminder.Threshold1), time.Now())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(body, "<div") || strings.Contains(body, "<html") {
		t.Fatalf("telegram body uses unsupported tags: %s", body)
	}
	if !strings.Contains(body, "<b>1 gün</b>") || !strings.Contains(body, "DİKKAT") {
		t.Fatalf("body = %s", body)
	}
}

func TestLoadRendererCustomTemplate(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "mail.html")
	if err := os.WriteFile(path, []byte(`<p>{{.Name}} / {{.Threshold}} / {{.TargetDate}}</p>`), 0o600); err != nil {
		t.Fatal(err)
	}
	r, err := LoadRenderer(path, trt)
	if err != nil {
		t.Fatalf("LoadRenderer: %v", err)
	}
	_, body, err := r.Render(dueReminder(reminder.Threshold60), time.Now())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if body != "<p>Köprü &lt;Bakım&gt; &amp; Onarım / 60_gun / 30.04.2025</p>" {
		t.Fatalf("body = %q", body)
	}

	bad := filepath.Join(t.TempDir(), "bad.html")
	_ = os.WriteFile(bad, []byte(`{{.Name`), 0o600)
	if _, err := LoadRenderer(bad, trt); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidRecipient(t *testing.T) {
	t.Parallel()
	tests := []struct {
		channel, recipient string
		want               bool
	}{
		{"smtp", "user.name+tag@example.co", true},
		{"smtp", "user@localhost", false},
		{"smtp", "not an email", false},
		{"telegram", "-1001234567890", true},
		{"telegram", "-1001234567890:42", true},
		{"telegram", "@channel", false},
		{"telegram", "123:abc", false},
		{"log", "anything", true},
		{"log", " ", false},
	}
	for _, tt := range tests {
		if got := ValidRecipient(tt.channel, tt.recipient); got != tt.want {
			t.Fatalf("ValidRecipient(%q, %q) = %v, want %v", tt.channel, tt.recipient, got, tt.want)
		}
	}
}

func TestBuildMessageHeaders(t *testing.T) {
	t.Parallel()
	s, err := NewSMTP(SMTPConfig{Host: "smtp.example.com", Username: "bot@example.com", FromName: "Hatırlatma Botu"}, logx.Nop())
	if err != nil {
		t.Fatalf("NewSMTP: %v", err)
	}
	s.now = func() time.Time { return time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC) }

	raw, err := s.buildMessage("to@example.com", reminder.Message{Subject: "🔔 Hatırlatma - X", Body: "<p>merhaba</p>", Urgent: true})
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}
	msg := string(raw)
	for _, want := range []string{"To: <to@example.com>\r\n", "X-Priority: 1\r\n", "Importance: high\r\n", "Content-Type: text/html", "Subject: =?utf-8?q?"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
	_, body, _ := strings.Cut(msg, "\r\n\r\n")
	dec, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(body, "\r\n", ""))
	if err != nil || string(dec) != "<p>merhaba</p>" {
		t.Fatalf("body = %q, %v", dec, err)
	}

	raw, _ = s.buildMessage("to@example.com", reminder.Message{Subject: "s", Body: "b"})
	if strings.Contains(string(raw), "X-Priority") {
		t.Fatal("non-urgent mail has priority header")
	}
}

// fakeSMTPServer accepts one session and records the DATA payload.
type fakeSMTPServer struct {
	ln net.Listener

	mu   sync.Mutex
	rcpt []string
	data string
	done chan struct{}
}

func startFakeSMTP(t *testing.T) *fakeSMTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeSMTPServer{ln: ln, done: make(chan struct{})}
	t.Cleanup(func() { _ = ln.Close() })
	go s.serve()
	return s
}

func (s *fakeSMTPServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTPServer) serve() {
	defer close(s.done)
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }

	w("220 fake.local ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			w("250-fake.local")
			w("250 8BITMIME")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			w("250 ok")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			s.mu.Lock()
			s.rcpt = append(s.rcpt, strings.TrimSpace(line[len("RCPT TO:"):]))
			s.mu.Unlock()
			w("250 ok")
		case cmd == "DATA":
			w("354 go ahead")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			s.mu.Lock()
			s.data = b.String()
			s.mu.Unlock()
			w("250 queued")
		case cmd == "QUIT":
			w("221 bye")
			return
		default:
			w("502 not implemented")
		}
	}
}

func TestSMTPSendAgainstFakeServer(t *testing.T) {
	t.Parallel()
	srv := startFakeSMTP(t)
	s, err := NewSMTP(SMTPConfig{Host: "127.0.0.1", Port: srv.port(), From: "bot@example.com"}, logx.Nop())
	if err != nil {
		t.Fatalf("NewSMTP: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Send(ctx, reminder.Message{Recipient: "ayse@example.com", Subject: "Konu", Body: "<p>x</p>", Urgent: true}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-srv.done
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.rcpt) != 1 || srv.rcpt[0] != "<ayse@example.com>" {
		t.Fatalf("rcpt = %v", srv.rcpt)
	}
	if !strings.Contains(srv.data, "X-Priority: 1") {
		t.Fatalf("data = %q", srv.data)
	}
}

func TestSMTPRejectsBadRecipientWithoutDialing(t *testing.T) {
	t.Parallel()
	s, err := NewSMTP(SMTPConfig{Host: "127.0.0.1", Port: 1, From: "bot@example.com"}, logx.Nop())
	if err != nil {
		t.Fatalf("NewSMTP: %v", err)
	}
	err = s.Send(context.Background(), reminder.Message{Recipient: "nobody"})
	if !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("err = %v", err)
	}
}

type sentCall struct {
	chat int64
	text string
	opts *tele.SendOptions
}

type fakeTelegramAPI struct {
	mu     sync.Mutex
	calls  []sentCall
	err    error
	failOn map[int]error // by 1-based Send call number
	n      int
	raw    []string
}

func (f *fakeTelegramAPI) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.n++
	if err, ok := f.failOn[f.n]; ok {
		return nil, err
	}
	id, _ := strconv.ParseInt(to.Recipient(), 10, 64)
	c := sentCall{chat: id, text: what.(string)}
	if len(opts) > 0 {
		c.opts, _ = opts[0].(*tele.SendOptions)
	}
	f.calls = append(f.calls, c)
	return &tele.Message{}, nil
}

func (f *fakeTelegramAPI) Raw(method string, payload interface{}) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = append(f.raw, method)
	return []byte(`{"ok":true}`), f.err
}

func TestTelegramSend(t *testing.T) {
	t.Parallel()
	api := &fakeTelegramAPI{}
	tg := newTelegram(api, 0, logx.Nop())

	err := tg.Send(context.Background(), reminder.Message{Recipient: "-100200:7", Subject: "A & B", Body: "body", Urgent: true})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(api.calls) != 1 {
		t.Fatalf("calls = %d", len(api.calls))
	}
	c := api.calls[0]
	if c.chat != -100200 || c.opts == nil || c.opts.ThreadID != 7 || c.opts.ParseMode != tele.ModeHTML {
		t.Fatalf("call = %+v opts=%+v", c, c.opts)
	}
	if c.text != "🚨 <b>A &amp; B</b>\n\nbody" {
		t.Fatalf("text = %q", c.text)
	}

	if err := tg.Send(context.Background(), reminder.Message{Recipient: "someone@example.com"}); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("err = %v", err)
	}

	api.err = errors.New("Forbidden: bot was blocked by the user")
	if err := tg.Send(context.Background(), reminder.Message{Recipient: "5"}); err == nil || !strings.Contains(err.Error(), "blocked") {
		t.Fatalf("err = %v", err)
	}
	if err := tg.Probe(context.Background()); err == nil {
		t.Fatal("probe should surface api error")
	}
}

func TestTelegramRetryResumesSplitMessage(t *testing.T) {
	t.Parallel()
	api := &fakeTelegramAPI{failOn: map[int]error{2: errors.New("Too Many Requests: retry after 1")}}
	tg := newTelegram(api, 0, logx.Nop())

	line := strings.Repeat("y", 99) + "\n"
	body := strings.Repeat(line, 60) // two chunks
	m := reminder.Message{Recipient: "77", Subject: "S", Body: body}

	if err := tg.Send(context.Background(), m); err == nil {
		t.Fatal("expected the second chunk to fail")
	}
	if err := tg.Send(context.Background(), m); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(api.calls) != 2 {
		t.Fatalf("delivered chunks = %d, want 2 (no repeats)", len(api.calls))
	}
	if !strings.HasPrefix(api.calls[0].text, "<b>S</b>") || strings.HasPrefix(api.calls[1].text, "<b>S</b>") {
		t.Fatalf("chunks out of order: %q / %q", api.calls[0].text[:10], api.calls[1].text[:10])
	}

	// A fully delivered message starts over when sent again.
	if err := tg.Send(context.Background(), m); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if len(api.calls) != 4 {
		t.Fatalf("calls after resend = %d, want 4", len(api.calls))
	}
}

func TestTelegramProbeHonorsContext(t *testing.T) {
	t.Parallel()
	api := &fakeTelegramAPI{}
	tg := newTelegram(api, 0, logx.Nop())
	if err := tg.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tg.Probe(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.raw) != 1 {
		t.Fatalf("getMe calls = %d, want 1", len(api.raw))
	}
}

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()
	line := strings.Repeat("a", 30) + "\n"
	text := strings.Repeat(line, 10) // 310 runes
	chunks := splitTelegramText(text, 100)
	if len(chunks) < 4 {
		t.Fatalf("chunks = %d", len(chunks))
	}
	for _, c := range chunks {
		if len([]rune(c)) > 100 {
			t.Fatalf("chunk too long: %d", len([]rune(c)))
		}
	}
	if strings.Join(chunks, "\n") != strings.TrimRight(text, "\n") {
		t.Fatal("split lost content")
	}

	tagged := strings.Repeat("x", 98) + "<b>bold</b>"
	chunks = splitTelegramText(tagged, 100)
	if chunks[0] != strings.Repeat("x", 98) || chunks[1] != "<b>bold</b>" {
		t.Fatalf("tag was cut: %q", chunks)
	}
}

func TestOpenChannels(t *testing.T) {
	t.Parallel()
	ch, err := Open(Config{Channel: "log"}, trt, logx.Nop())
	if err != nil {
		t.Fatalf("Open log: %v", err)
	}
	if _, ok := ch.Notifier.(*Log); !ok {
		t.Fatalf("notifier = %T", ch.Notifier)
	}
	if _, ok := ch.Prober(); !ok {
		t.Fatal("log channel should be probeable")
	}
	if _, err := Open(Config{Channel: "pigeon"}, trt, logx.Nop()); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("err = %v", err)
	}
	if _, err := Open(Config{Channel: "telegram"}, trt, logx.Nop()); err == nil {
		t.Fatal("telegram without token should fail")
	}
	ch, err = Open(Config{Channel: "smtp", SMTP: SMTPConfig{Host: "smtp.example.com", Username: "bot@example.com"}}, trt, logx.Nop())
	if err != nil || ch.Name != "smtp" {
		t.Fatalf("Open smtp: %v %+v", err, ch)
	}
}

func TestLogNotifierRecords(t *testing.T) {
	t.Parallel()
	l := NewLog(logx.Nop())
	_ = l.Send(context.Background(), reminder.Message{Recipient: "a@example.com", Subject: "s"})
	if got := l.Sent(); len(got) != 1 || got[0].Recipient != "a@example.com" {
		t.Fatalf("sent = %+v", got)
	}
}
