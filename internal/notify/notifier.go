// Package notify — каналы оповещений: телеграм, почта, консоль.
// Отправка не возвращает ошибок наружу: канал связи не должен ронять
// скан, неудачи считаются в метриках.
package notify

import (
	"fmt"

	"equity_bot/internal/metrics"
	"equity_bot/internal/modules/config"
	"equity_bot/pkg/logger"
)

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// Stdout — пишет оповещения в лог, всегда успешно.
type Stdout struct{}

func NewStdout() *Stdout { return &Stdout{} }

func (s *Stdout) Send(msg string) {
	logger.Info("%s", msg)
	metrics.NotifySends.WithLabelValues("stdout", "ok").Inc()
}

func (s *Stdout) Sendf(format string, args ...any) { s.Send(fmt.Sprintf(format, args...)) }

// Multi — веер по всем каналам; nil-элементы пропускаются.
type Multi []Notifier

func NewMulti(ns ...Notifier) Multi {
	out := make(Multi, 0, len(ns))
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (m Multi) Send(msg string) {
	for _, n := range m {
		n.Send(msg)
	}
}

func (m Multi) Sendf(format string, args ...any) { m.Send(fmt.Sprintf(format, args...)) }

// NewFromConfig собирает веер каналов: консоль всегда, телеграм при
// заданных токене и чате, почта при заданных сервере и получателе.
// Notifier для fx.
func NewFromConfig(cfg *config.Config) Notifier {
	channels := Multi{NewStdout()}

	if cfg.Telegram.Token != "" && cfg.Notify.TelegramChatID != 0 {
		tg, err := NewTelegram(cfg.Telegram.Token, cfg.Notify.TelegramChatID)
		if err != nil {
			logger.Warn("telegram notifier unavailable: %v", err)
		} else {
			channels = append(channels, tg)
		}
	}

	if cfg.Notify.Email.SMTPServer != "" && cfg.Notify.Email.Recipient != "" {
		channels = append(channels, NewEmail(cfg.Notify.Email))
	}

	return channels
}
