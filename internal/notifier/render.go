package notifier

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"strings"
	"time"

	"remindbot/internal/reminder"
)

// Format selects the body markup.
type Format int

const (
	FormatEmail Format = iota
	FormatTelegram
)

const subjectPrefix = "🔔 Hatırlatma - "

// view is the data every template receives.
type view struct {
	Owner         string
	Name          string
	RemainingDays int
	Threshold     string
	TargetDate    string // 02.01.2006
	SentAt        string // 02.01.2006 15:04
	Urgent        bool
}

// Renderer implements reminder.Renderer with html/template.
type Renderer struct {
	tmpl *template.Template
	loc  *time.Location
}

var (
	emailTmpl    = template.Must(template.New("email").Parse(emailTemplate))
	telegramTmpl = template.Must(template.New("telegram").Parse(telegramTemplate))
)

// NewRenderer returns the built-in renderer for format. Dates are shown in loc.
func NewRenderer(format Format, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.Local
	}
	t := emailTmpl
	if format == FormatTelegram {
		t = telegramTmpl
	}
	return &Renderer{tmpl: t, loc: loc}
}

// LoadRenderer parses an e-mail body template from path. The template sees
// the fields Owner, Name, RemainingDays, Threshold, TargetDate, SentAt and
// Urgent.
func LoadRenderer(path string, loc *time.Location) (*Renderer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := template.New("custom").Option("missingkey=error").Parse(string(b))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", path, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Renderer{tmpl: t, loc: loc}, nil
}

func (r *Renderer) Render(d reminder.DueReminder, now time.Time) (string, string, error) {
	v := view{
		Owner:         strings.TrimSpace(d.Item.Owner),
		Name:          strings.TrimSpace(d.Item.Name),
		RemainingDays: d.RemainingDays,
		Threshold:     d.Threshold.String(),
		TargetDate:    d.Item.TargetDate.In(r.loc).Format("02.01.2006"),
		SentAt:        now.In(r.loc).Format("02.01.2006 15:04"),
		Urgent:        d.Urgent,
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, v); err != nil {
		return "", "", fmt.Errorf("render %s: %w", d.Item.ID, err)
	}
	return Subject(d.Item.Name), buf.String(), nil
}

// Subject is the message subject for an item name.
func Subject(name string) string {
	return subjectPrefix + strings.TrimSpace(name)
}

const emailTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<style>
  body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
  .container { max-width: 600px; margin: 0 auto; padding: 20px; }
  .header { background-color: #0078d4; color: white; padding: 20px; text-align: center; }
  .content { background-color: #f9f9f9; padding: 30px; border: 1px solid #ddd; }
  .info-box { background-color: white; padding: 15px; margin: 20px 0; border-left: 4px solid #0078d4; }
  .info-label { font-weight: bold; color: #0078d4; }
  .warning { background-color: #fff3cd; border-left: 4px solid #ffc107; padding: 15px; margin: 20px 0; }
  .footer { text-align: center; color: #666; font-size: 12px; margin-top: 30px; padding-top: 20px; border-top: 1px solid #ddd; }
</style>
</head>
<body>
<div class="container">
  <div class="header"><h2>🔔 İhale Hatırlatması</h2></div>
  <div class="content">
    <p>Sayın <strong>{{with .Owner}}{{.}}{{else}}Yetkili{{end}}</strong>,</p>
    <p><strong>{{.Name}}</strong> ihalesinin hazırlık sürecine başlangıç dönemine
    <strong style="color: #d9534f;">{{.RemainingDays}} gün</strong> kaldığını hatırlatmak isteriz.</p>
    <div class="info-box">
      <h3 style="margin-top: 0; color: #0078d4;">📋 İhale Detayları</h3>
      <div><span class="info-label">İhale Adı:</span> {{.Name}}</div>
      <div><span class="info-label">Hazırlık Başlangıç Tarihi:</span> {{.TargetDate}}</div>
      <div><span class="info-label">Kalan Gün:</span> <strong>{{.RemainingDays}} gün</strong></div>
      {{with .Owner}}<div><span class="info-label">Sorumlu:</span> {{.}}</div>{{end}}
    </div>
    {{if .Urgent}}<div class="warning">
      <strong>⚠️ DİKKAT:</strong> Yarın ihale hazırlık sürecine başlanacaktır.
      Lütfen acil olarak gerekli hazırlıkları tamamlayınız!
    </div>{{end}}
    <p>Lütfen gerekli hazırlıkları zamanında başlatınız.</p>
    <p>İyi çalışmalar dileriz.</p>
  </div>
  <div class="footer">
    <p>Bu mail otomatik olarak <strong>İhale Hatırlatma Sistemi</strong> tarafından gönderilmiştir.</p>
    <p>Gönderim Tarihi: {{.SentAt}}</p>
  </div>
</div>
</body>
</html>
`

// Telegram HTML mode only accepts a handful of tags.
const telegramTemplate = `Sayın <b>{{with .Owner}}{{.}}{{else}}Yetkili{{end}}</b>,
<b>{{.Name}}</b> ihalesinin hazırlık başlangıcına <b>{{.RemainingDays}} gün</b> kaldı.

📋 Başlangıç tarihi: {{.TargetDate}}
{{- if .Urgent}}

⚠️ <b>DİKKAT:</b> Yarın hazırlık sürecine başlanacaktır. Lütfen gerekli hazırlıkları acil olarak tamamlayınız!
{{- end}}

<i>Gönderim: {{.SentAt}}</i>`
