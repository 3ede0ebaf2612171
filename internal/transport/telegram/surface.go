// Package telegram is a notification surface that posts reminders to a
// Telegram chat and deletes them again on dismiss.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"todox/internal/transport"
	logx "todox/pkg/logx"
)

const Name = "telegram"

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	// PollTimeout bounds API calls. Default 10s.
	PollTimeout time.Duration
	// URL overrides the Bot API endpoint (tests, local bot API servers).
	URL string
}

// Surface sends one message per notification. Supported iff a token is
// configured; permission is granted iff a target chat is configured.
type Surface struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Surface, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:    cfg.URL,
		Token:  cfg.Token,
		Client: &http.Client{Timeout: timeout},
		// Send-only: updates are never polled.
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log.Info("telegram surface ready", logx.String("bot", b.Me.Username), logx.Bool("chat_set", cfg.ChatID != 0))
	return &Surface{cfg: cfg, log: log, bot: b}, nil
}

func (s *Surface) Name() string    { return Name }
func (s *Surface) Supported() bool { return s != nil && s.bot != nil }

func (s *Surface) Permission() transport.Permission {
	if s.cfg.ChatID == 0 {
		return transport.PermissionDenied
	}
	return transport.PermissionGranted
}

// RequestPermission cannot prompt anyone; the chat id is the permission.
func (s *Surface) RequestPermission(ctx context.Context) (transport.Permission, error) {
	_ = ctx
	return s.Permission(), nil
}

func (s *Surface) Show(ctx context.Context, m transport.Message) (transport.Ref, error) {
	if err := ctx.Err(); err != nil {
		return transport.Ref{}, err
	}
	if s.cfg.ChatID == 0 {
		return transport.Ref{}, errors.New("telegram chat_id is not configured")
	}
	text := m.Body
	if m.Title != "" {
		text = m.Title + "\n" + m.Body
	}
	msg, err := s.bot.Send(&tele.Chat{ID: s.cfg.ChatID}, text, &tele.SendOptions{
		ThreadID:              s.cfg.ThreadID,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return transport.Ref{}, wrapFlood(err)
	}
	return transport.Ref{
		Surface:   Name,
		ID:        strconv.Itoa(msg.ID),
		ChatID:    s.cfg.ChatID,
		MessageID: msg.ID,
	}, nil
}

// Dismiss deletes the message. A message that is already gone counts as
// dismissed.
func (s *Surface) Dismiss(ctx context.Context, ref transport.Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ref.MessageID == 0 {
		return nil
	}
	err := s.bot.Delete(&tele.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID})
	if err != nil && isNotFound(err) {
		s.log.Debug("message already deleted", logx.Int("message_id", ref.MessageID))
		return nil
	}
	return wrapFlood(err)
}

func isNotFound(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "message to delete not found")
}

// wrapFlood turns "Too Many Requests: retry after N" into a RetryAfterError.
func wrapFlood(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	i := strings.Index(msg, "retry after ")
	if i < 0 {
		return err
	}
	digits := msg[i+len("retry after "):]
	end := 0
	for end < len(digits) && digits[end] >= '0' && digits[end] <= '9' {
		end++
	}
	n, convErr := strconv.Atoi(digits[:end])
	if convErr != nil || n <= 0 {
		return err
	}
	return &transport.RetryAfterError{After: time.Duration(n) * time.Second, Err: err}
}
