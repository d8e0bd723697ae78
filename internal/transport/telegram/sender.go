// Package telegram is the outbound Telegram transport for ops alerts.
// The bot never polls for updates; it only posts to one configured chat.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "eusotrip/pkg/logx"
)

// Telegram rejects messages longer than this many runes.
const textLimit = 4096

type Config struct {
	Token   string
	ChatID  int64
	Timeout time.Duration // per-send HTTP timeout, default 8s

	// Offline skips the startup getMe probe. Used by tests.
	Offline bool
}

// Sender delivers rendered alert text to the configured chat.
type Sender struct {
	bot  *tele.Bot
	chat *tele.Chat
	log  logx.Logger
}

func NewSender(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: timeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{
		bot:  b,
		chat: &tele.Chat{ID: cfg.ChatID},
		log:  log.With(logx.String("component", "telegram")),
	}, nil
}

// Send posts text to the chat, chunking anything over the message limit.
func (s *Sender) Send(ctx context.Context, text string) error {
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.bot.Send(s.chat, chunk, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
			return err
		}
	}
	return nil
}

// splitText chunks long messages, preferring newline boundaries so entries
// stay intact. Rune-safe.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' {
					// Avoid producing tiny fragments.
					if i-start >= limit/3 {
						end = i + 1
					}
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
	}
	return out
}
