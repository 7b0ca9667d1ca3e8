// Package logx is the structured logging layer of the bot.
//
// Logger wraps zerolog and stays live across Service.Apply calls, so a
// reloaded level or sink takes effect for loggers handed out earlier.
// Sinks:
//   - console, human readable with a short caller
//   - file, one JSON object per line
//   - an optional Telegram chat, filtered by level and rate limited
package logx
