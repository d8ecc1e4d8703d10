package bot

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"vpnshop/internal/metrics"
	"vpnshop/internal/panel"
)

const broadcastProgressEvery = 10

type broadcastTarget string

const (
	targetAll     broadcastTarget = "all"
	targetActive  broadcastTarget = "active"
	targetExpired broadcastTarget = "expired"
)

var broadcastTargets = map[string]broadcastTarget{
	broadcastAll:     targetAll,
	broadcastActive:  targetActive,
	broadcastExpired: targetExpired,
}

// broadcastRecipients derives Telegram ids from VPN usernames of the form
// "{user_id}d{timestamp}". Accounts made by hand through Add User do not
// parse and are skipped.
func broadcastRecipients(users map[string]panel.PanelUser, target broadcastTarget) []int64 {
	seen := make(map[int64]struct{})
	for name, u := range users {
		if strings.HasPrefix(name, "id") {
			continue
		}
		idPart, _, ok := strings.Cut(name, "d")
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(idPart, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		switch target {
		case targetActive:
			if u.Blocked {
				continue
			}
		case targetExpired:
			if !u.Blocked {
				continue
			}
		}
		seen[id] = struct{}{}
	}

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (b *Bot) startBroadcast(c tele.Context, target broadcastTarget, label, text string) error {
	ctx, cancel := handlerContext()
	users, err := b.deps.Panel.ListUsers(ctx)
	cancel()
	if err != nil {
		b.logger.Error("List VPN users failed", zap.Error(err))
		return c.Send("❌ Could not load users for the broadcast.", b.keyboard.AdminMenu())
	}

	ids := broadcastRecipients(users, target)
	if len(ids) == 0 {
		return c.Send("No users found in the selected category.", b.keyboard.AdminMenu())
	}

	ok, failed := b.broadcast(c.Chat(), ids, text)
	b.logger.Info("Broadcast finished",
		zap.String("target", string(target)),
		zap.Int("total", len(ids)),
		zap.Int("ok", ok),
		zap.Int("failed", failed),
	)

	report := fmt.Sprintf("📢 Broadcast Completed\n\nTarget: %s\nTotal Users: %d\n✅ Successful: %d\n❌ Failed: %d",
		label, len(ids), ok, failed)
	return c.Send(report, b.keyboard.AdminMenu())
}

// broadcast sends text to every id, editing a progress message in chat
// every broadcastProgressEvery sends.
func (b *Bot) broadcast(chat tele.Recipient, ids []int64, text string) (ok, failed int) {
	status, err := b.out.Send(chat, fmt.Sprintf("Broadcasting message to %d users...", len(ids)))
	if err != nil {
		b.logger.Warn("Broadcast status message failed", zap.Error(err))
	}

	for i, id := range ids {
		if _, err := b.out.Send(tele.ChatID(id), text); err != nil {
			failed++
			b.logger.Warn("Broadcast delivery failed", zap.Int64("user_id", id), zap.Error(err))
			metrics.IncBroadcast(false)
		} else {
			ok++
			metrics.IncBroadcast(true)
		}

		if done := i + 1; done%broadcastProgressEvery == 0 && status != nil {
			if _, err := b.out.Edit(status, fmt.Sprintf("Broadcasting: %d/%d completed...", done, len(ids))); err != nil {
				b.logger.Debug("Broadcast progress update failed", zap.Error(err))
			}
		}
	}
	return ok, failed
}
