package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mpontes/lexgate/internal/config"
	"github.com/mpontes/lexgate/internal/natsbus"
	"github.com/mpontes/lexgate/internal/task"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nats-io/nats.go"
)

// Notifier pushes task alerts to a Telegram chat: every failure, plus
// completions of critical-priority tasks.
type Notifier struct {
	bot    *telego.Bot
	chatID int64
}

func New(cfg config.NotifyConfig) (*Notifier, error) {
	bot, err := telego.NewBot(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Notifier{bot: bot, chatID: cfg.TelegramChatID}, nil
}

// Subscribe attaches the notifier to the bus's task lifecycle events.
func (n *Notifier) Subscribe(ctx context.Context, nc *natsbus.Client) error {
	_, err := nc.Subscribe(natsbus.TopicEventsTaskFailed, func(msg *nats.Msg) {
		n.handleEvent(ctx, msg, true)
	})
	if err != nil {
		return fmt.Errorf("subscribe failed events: %w", err)
	}

	_, err = nc.Subscribe("events.task.completed.*", func(msg *nats.Msg) {
		n.handleEvent(ctx, msg, false)
	})
	if err != nil {
		return fmt.Errorf("subscribe completed events: %w", err)
	}
	return nil
}

func (n *Notifier) handleEvent(ctx context.Context, msg *nats.Msg, failed bool) {
	var t task.Task
	if err := json.Unmarshal(msg.Data, &t); err != nil {
		slog.Warn("notify: bad event payload", "topic", msg.Subject, "error", err)
		return
	}

	var text string
	switch {
	case failed:
		text = fmt.Sprintf("Tarefa falhou\nID: %s\nTipo: %s\nAgente: %s\nErro: %s",
			t.ID, t.Type, t.AgentID, t.Error)
	case t.Priority == task.PriorityCritical:
		text = fmt.Sprintf("Tarefa crítica concluída\nID: %s\nTipo: %s\nAgente: %s",
			t.ID, t.Type, t.AgentID)
	default:
		return
	}

	if err := n.Send(ctx, text); err != nil {
		slog.Error("notify: send failed", "task", t.ID, "error", err)
	}
}

func (n *Notifier) Send(ctx context.Context, text string) error {
	for _, chunk := range splitMessage(text, 4096) {
		if _, err := n.bot.SendMessage(ctx, tu.Message(tu.ID(n.chatID), chunk)); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}
