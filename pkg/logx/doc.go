// Package logx configures remindbot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Hot-swappable level and sinks (Service.Apply on config reload)
//   - Optional per-logger rate limits for high-volume warnings
package logx
