// Package notifier delivers rendered reminders.
//
// # Channels
//
//   - smtp: HTML e-mail over SMTP with STARTTLS (net/smtp)
//   - telegram: Bot API messages through telebot, rate limited
//   - log: records the message and succeeds (test mode)
//
// Every channel implements reminder.Notifier. Channels that can check their
// connectivity without sending also implement Prober.
//
// # Rendering
//
// Renderer turns a due reminder into a subject and body. The e-mail body is
// a full HTML document; the Telegram body uses the tag subset the Bot API
// accepts in HTML parse mode.
package notifier
