package app

import (
	"time"

	"todox/internal/config"
	"todox/internal/transport"
	"todox/internal/transport/console"
	"todox/internal/transport/telegram"
	logx "todox/pkg/logx"
)

func buildSurface(cfg *config.Config, o Options, log logx.Logger) (transport.Surface, error) {
	if surfaceName(cfg) == "telegram" {
		timeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		return telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			ChatID:      cfg.Telegram.ChatID,
			ThreadID:    cfg.Telegram.ThreadID,
			PollTimeout: timeout,
		}, log)
	}
	perm, err := consolePermission(cfg)
	if err != nil {
		return nil, err
	}
	return console.New(console.Config{Permission: perm, Out: o.Stdout, In: o.Stdin}), nil
}
