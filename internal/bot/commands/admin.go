package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/eventflags"
)

var staticFlags = Reply{Content: "Event flags are static in this deployment.", Ephemeral: true}

func (h *Handlers) handleGrantCoins(ctx context.Context, c Caller, opts options) Reply {
	target, amount := opts.user("player"), opts.integer("amount", 0)
	balance, err := h.game.GrantCoins(ctx, target, amount)
	if err != nil {
		return h.fail(ctx, err)
	}
	h.logger.InfoContext(ctx, "coins granted",
		slog.String("admin_id", c.ID),
		slog.String("player_id", target),
		slog.Int64("amount", amount),
	)
	return say("Granted **%d** coins to <@%s>. New balance: **%d**.", amount, target, balance)
}

func (h *Handlers) handleGrantEffect(ctx context.Context, c Caller, opts options) Reply {
	kind, err := economy.ParseEffectKind(opts.str("effect"))
	if err != nil {
		return h.fail(ctx, err)
	}
	target := opts.user("player")
	total, err := h.game.GrantEffect(ctx, target, kind, int(opts.integer("count", 0)))
	if err != nil {
		return h.fail(ctx, err)
	}
	h.logger.InfoContext(ctx, "effect granted",
		slog.String("admin_id", c.ID),
		slog.String("player_id", target),
		slog.String("effect", kind.String()),
	)
	return say("Granted %s to <@%s>. They now have %d.", kind, target, total)
}

func (h *Handlers) handleEventStart(ctx context.Context, _ Caller, opts options) Reply {
	if h.flags == nil {
		return staticFlags
	}
	name := strings.TrimSpace(opts.str("name"))
	until := h.clock.Now().Add(time.Duration(opts.integer("hours", 0)) * time.Hour)
	if err := h.flags.StartEvent(ctx, name, until); err != nil {
		return h.flagFailure(ctx, err)
	}
	return say("Event **%s** is running until %s.", name, timestamp(until))
}

func (h *Handlers) handleEventEnd(ctx context.Context, _ Caller, opts options) Reply {
	if h.flags == nil {
		return staticFlags
	}
	name := strings.TrimSpace(opts.str("name"))
	if err := h.flags.EndEvent(ctx, name); err != nil {
		return h.flagFailure(ctx, err)
	}
	return say("Event **%s** has ended.", name)
}

func (h *Handlers) handleLuck(ctx context.Context, _ Caller, opts options) Reply {
	if h.flags == nil {
		return staticFlags
	}
	m := opts.number("multiplier", 0)
	if err := h.flags.SetLuckMultiplier(ctx, m); err != nil {
		return h.flagFailure(ctx, err)
	}
	return say("Luck multiplier set to **%g**. It applies while the live event is on.", m)
}

func (h *Handlers) handleLive(ctx context.Context, _ Caller, opts options) Reply {
	if h.flags == nil {
		return staticFlags
	}
	live := opts.flag("enabled")
	if err := h.flags.SetLive(ctx, live); err != nil {
		return h.flagFailure(ctx, err)
	}
	if live {
		return say("The live event is **on**.")
	}
	return say("The live event is **off**.")
}

func (h *Handlers) flagFailure(ctx context.Context, err error) Reply {
	if errors.Is(err, eventflags.ErrInvalidFlag) {
		return Reply{Content: sentence(err.Error()), Ephemeral: true}
	}
	return h.fail(ctx, err)
}
