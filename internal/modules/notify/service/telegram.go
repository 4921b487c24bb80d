package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/xentristech/tradingpro-sub001/pkg/logger"
)

// Telegram — нотификации оператору + команды управления движком.
// Управление дублирует аварийные пути: /closeall и /reset работают даже
// когда торговля на паузе.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64

	mu   sync.RWMutex
	ctrl Controls
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

// AttachControls вызывается после сборки всех модулей: нотифайер нужен
// раньше, чем существуют монитор и супервизор.
func (t *Telegram) AttachControls(c Controls) {
	t.mu.Lock()
	t.ctrl = c
	t.mu.Unlock()
}

func (t *Telegram) controls() Controls {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ctrl
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		logger.Warn("[TG] send: %v", err)
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// Start: long-polling команд оператора.
func (t *Telegram) Start(ctx context.Context) error {
	if t == nil || t.bot == nil {
		return nil
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd := <-updates:
				if upd.Message == nil || upd.Message.Chat == nil ||
					upd.Message.Chat.ID != t.chatID || !upd.Message.IsCommand() {
					continue
				}
				t.handleCommand(ctx, upd.Message.Command(), upd.Message.CommandArguments())
			}
		}
	}()
	return nil
}

func (t *Telegram) handleCommand(ctx context.Context, cmd, args string) {
	ctrl := t.controls()
	if ctrl == nil {
		t.Send("⏳ Движок ещё поднимается, команды недоступны")
		return
	}

	switch cmd {
	case "status":
		t.Send(ctrl.StatusText())

	case "positions":
		t.Send(ctrl.PositionsText())

	case "closeall":
		n := ctrl.CloseAll(ctx, "operator_request")
		t.Sendf("🚨 Запрошено закрытие %d позиций", n)

	case "cancel":
		id := strings.TrimSpace(args)
		if id == "" {
			t.Send("Использование: /cancel <client_id>")
			return
		}
		if err := ctrl.CancelOrder(ctx, id); err != nil {
			t.Sendf("⛔️ Отмена %s: %v", id, err)
		} else {
			t.Sendf("✅ Ордер %s снят", id)
		}

	case "reset":
		if ctrl.ResetBreaker() {
			t.Send("✅ Circuit breaker сброшен, приём сигналов возобновлён")
		} else {
			t.Send("ℹ️ Breaker не был взведён")
		}

	case "pause":
		ctrl.Pause()
		t.Send("⏸ Торговля на паузе: новые ордера не отправляются, позиции сопровождаются")

	case "resume":
		ctrl.Resume()
		t.Send("▶️ Торговля возобновлена")

	case "help":
		t.Send("Команды: /status /positions /closeall /cancel <id> /reset /pause /resume")

	default:
		t.Sendf("Неизвестная команда /%s, см. /help", cmd)
	}
}

func (t *Telegram) Stop() {}
