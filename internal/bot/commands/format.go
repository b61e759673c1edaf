package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/telemetry"
)

// fail turns err into a reply for the caller. Errors the player caused are
// shown as they are; anything else is logged and hidden.
func (h *Handlers) fail(ctx context.Context, err error) Reply {
	switch economy.Classify(err) {
	case economy.KindValidation, economy.KindResource:
		return Reply{Content: userMessage(err), Ephemeral: true}
	case economy.KindConflict:
		if errors.Is(err, economy.ErrListingGone) {
			return Reply{Content: "That listing is no longer available.", Ephemeral: true}
		}
		return Reply{Content: "Someone else changed this at the same time, please try again.", Ephemeral: true}
	default:
		telemetry.LogWithTrace(ctx, h.logger).ErrorContext(ctx, "command failed", slog.Any("error", err))
		return Reply{Content: "Something went wrong, please try again later.", Ephemeral: true}
	}
}

func userMessage(err error) string {
	if errors.Is(err, economy.ErrCooldown) {
		return "Slow down! Your next draw is not ready yet."
	}
	return sentence(err.Error())
}

func sentence(s string) string {
	if s == "" {
		return s
	}
	r, n := utf8.DecodeRuneInString(s)
	s = string(unicode.ToUpper(r)) + s[n:]
	if !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}

func (h *Handlers) gradeName(key string) string {
	if g, ok := h.table.Lookup(key); ok {
		return g.Name
	}
	return key
}

// itemLabel renders an item as "**Wolf** (Rare) +2 [golden]".
func (h *Handlers) itemLabel(it economy.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (%s)", h.table.ItemName(it.Grade, it.ItemID), h.gradeName(it.Grade))
	if it.Level > 0 {
		fmt.Fprintf(&b, " +%d", it.Level)
	}
	if kinds := it.Mutations.Kinds(); len(kinds) > 0 {
		names := make([]string, len(kinds))
		for i, k := range kinds {
			names[i] = k.String()
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(names, ", "))
	}
	if it.Locked {
		b.WriteString(" (locked)")
	}
	return b.String()
}

func (h *Handlers) inventoryLines(items []economy.Item) string {
	var b strings.Builder
	for i, it := range items {
		fmt.Fprintf(&b, "`%d` %s\n", i+1, h.itemLabel(it))
	}
	return b.String()
}

func (h *Handlers) listingLine(l economy.Listing) string {
	return fmt.Sprintf("`%s` %s for **%d** coins by %s, ends %s",
		l.ID, h.itemLabel(l.Item), l.Price, l.SellerName, timestamp(l.ExpiresAt))
}

// timestamp renders t as a Discord relative timestamp.
func timestamp(t time.Time) string {
	return fmt.Sprintf("<t:%d:R>", t.Unix())
}

func signed(n int64) string {
	if n >= 0 {
		return fmt.Sprintf("+%d", n)
	}
	return fmt.Sprintf("%d", n)
}

func effectList(e economy.Effects) string {
	var parts []string
	for _, k := range economy.AllEffects() {
		if n := e.Remaining(k); n > 0 {
			parts = append(parts, fmt.Sprintf("%s x%d", k, n))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}
