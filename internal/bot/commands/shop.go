package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jensholdgaard/gachabot/internal/economy"
)

func (h *Handlers) handleShop(ctx context.Context, c Caller, _ options) Reply {
	v, err := h.game.ShopCatalogue(ctx, c.ID)
	if err != nil {
		return h.fail(ctx, err)
	}

	var b strings.Builder
	b.WriteString("**Shop**\n")
	for _, o := range v.Offers {
		fmt.Fprintf(&b, "%s x%d for **%d** coins\n", o.Effect, o.Uses, o.Price)
	}
	if v.LuckLevel < v.MaxLuckLevel {
		fmt.Fprintf(&b, "Permanent luck %d → %d for **%d** coins\n", v.LuckLevel, v.LuckLevel+1, v.NextLuckPrice)
	} else {
		fmt.Fprintf(&b, "Permanent luck is at its maximum (%d)\n", v.MaxLuckLevel)
	}
	fmt.Fprintf(&b, "Coins: **%d**", v.Balance)
	return Reply{Content: b.String()}
}

func (h *Handlers) handleBuyEffect(ctx context.Context, c Caller, opts options) Reply {
	kind, err := economy.ParseEffectKind(opts.str("effect"))
	if err != nil {
		return h.fail(ctx, err)
	}
	out, err := h.game.BuyEffect(ctx, c.ID, kind, int(opts.integer("packs", 1)))
	if err != nil {
		return h.fail(ctx, err)
	}
	return say("Bought %s x%d for **%d** coins. You now have %d.\nCoins: **%d** (%s)",
		kind, out.Uses, out.Cost, out.Total, out.Balance, signed(out.Delta.Coins))
}

func (h *Handlers) handleBuyLuck(ctx context.Context, c Caller, _ options) Reply {
	out, err := h.game.BuyLuckLevel(ctx, c.ID)
	if err != nil {
		return h.fail(ctx, err)
	}
	return say("Permanent luck is now level **%d**.\nCoins: **%d** (%s)",
		out.Total, out.Balance, signed(out.Delta.Coins))
}

func (h *Handlers) handleSetOdds(ctx context.Context, c Caller, opts options) Reply {
	target := opts.user("player")
	probs, err := parseOdds(opts.str("odds"))
	if err != nil {
		return h.fail(ctx, err)
	}
	if err := h.game.SetCustomProbabilities(ctx, target, probs); err != nil {
		return h.fail(ctx, err)
	}
	h.logger.InfoContext(ctx, "odds overridden",
		slog.String("admin_id", c.ID),
		slog.String("player_id", target),
	)
	if probs == nil {
		return say("<@%s> draws with the standard odds again.", target)
	}
	return say("<@%s> now draws with custom odds.", target)
}

// parseOdds reads "common=50, rare=50". An empty string or "reset" means no
// override.
func parseOdds(s string) (map[string]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "reset") {
		return nil, nil
	}
	out := map[string]float64{}
	for _, part := range strings.Split(s, ",") {
		key, val, ok := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: expected grade=percent, got %q", economy.ErrInvalidProbabilities, strings.TrimSpace(part))
		}
		p, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", economy.ErrInvalidProbabilities, strings.TrimSpace(val))
		}
		out[key] = p
	}
	return out, nil
}
