// Package tgui holds small text helpers for Telegram messages: HTML-safe
// fragments for ParseMode="HTML" and rune-aware truncation for the platform
// length limits.
package tgui
