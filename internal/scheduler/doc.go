// Package scheduler fires the reminder run on a schedule.
//
// # Schedule formats
//
//   - Cron expressions: 5-field (min hour dom mon dow) or 6-field with optional
//     seconds. Example: "0 9 * * *" or "0 30 8 * * 1-5".
//   - Cron descriptors: "@daily", "@every 6h".
//   - Daily time HH:MM: "09:00" fires every day at 09:00.
//   - Interval durations: Go duration strings like "12h".
//
// "cron:", "daily:" and "every:" prefixes force an interpretation.
//
// All schedules are evaluated in the configured timezone. Runs never
// overlap: a tick that arrives while the previous run is still going is
// skipped and logged.
package scheduler
