package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/jensholdgaard/gachabot/internal/fusion"
)

func (h *Handlers) handleDraw(ctx context.Context, c Caller, _ options) Reply {
	out, err := h.game.Draw(ctx, c.ID, c.Name)
	if err != nil {
		return h.fail(ctx, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You drew %s! Worth **%d** coins.", h.itemLabel(out.Item), out.Payout)
	if len(out.Consumed) > 0 {
		names := make([]string, len(out.Consumed))
		for i, k := range out.Consumed {
			names[i] = k.String()
		}
		fmt.Fprintf(&b, "\nUsed: %s", strings.Join(names, ", "))
	}
	fmt.Fprintf(&b, "\nCoins: **%d** (%s)", out.Balance, signed(out.Delta.Coins))
	return Reply{Content: b.String()}
}

func (h *Handlers) handleProfile(ctx context.Context, c Caller, _ options) Reply {
	p, err := h.game.Profile(ctx, c.ID, c.Name)
	if err != nil {
		return h.fail(ctx, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", p.DisplayName)
	fmt.Fprintf(&b, "Coins: **%d**\n", p.Stats.Coins)
	fmt.Fprintf(&b, "Draws: %d\n", p.Stats.Total)
	fmt.Fprintf(&b, "Inventory: %d/%d\n", len(p.Stats.Inventory), p.Stats.InventorySize)
	fmt.Fprintf(&b, "Collection: %d/%d\n", len(p.Stats.CollectedItems), h.collectionSize())
	fmt.Fprintf(&b, "Permanent luck: %d\n", p.Stats.PermanentLuck)
	fmt.Fprintf(&b, "Effects: %s\n", effectList(p.Effects))
	if !p.NextDraw.IsZero() && p.NextDraw.After(h.clock.Now()) {
		fmt.Fprintf(&b, "Next draw: %s\n", timestamp(p.NextDraw))
	}
	if len(p.ActiveEvents) > 0 {
		fmt.Fprintf(&b, "Events: %s\n", strings.Join(p.ActiveEvents, ", "))
	}
	return Reply{Content: b.String()}
}

func (h *Handlers) collectionSize() int {
	n := 0
	for _, g := range h.table.Grades {
		n += len(g.Items)
	}
	return n
}

func (h *Handlers) handleInventory(ctx context.Context, c Caller, _ options) Reply {
	p, err := h.game.Profile(ctx, c.ID, c.Name)
	if err != nil {
		return h.fail(ctx, err)
	}
	items := p.Stats.Inventory
	if len(items) == 0 {
		return say("Your inventory is empty (0/%d). Use `/draw` to get started.", p.Stats.InventorySize)
	}
	return say("**Inventory (%d/%d):**\n%s", len(items), p.Stats.InventorySize, h.inventoryLines(items))
}

func (h *Handlers) handleOdds(ctx context.Context, c Caller, _ options) Reply {
	odds, err := h.game.Odds(ctx, c.ID)
	if err != nil {
		return h.fail(ctx, err)
	}
	var b strings.Builder
	b.WriteString("**Your odds:**\n")
	for _, o := range odds {
		fmt.Fprintf(&b, "%s: %.2f%%\n", o.Name, o.Percent)
	}
	return Reply{Content: b.String()}
}

func (h *Handlers) handleFuse(ctx context.Context, c Caller, opts options) Reply {
	indices := [fusion.Inputs]int{opts.slot("first"), opts.slot("second"), opts.slot("third")}
	out, err := h.game.Fuse(ctx, c.ID, indices)
	if err != nil {
		return h.fail(ctx, err)
	}
	return say("Fused %d items into %s!", len(out.Consumed), h.itemLabel(out.Item))
}

func (h *Handlers) handleEnhance(ctx context.Context, c Caller, opts options) Reply {
	out, err := h.game.Enhance(ctx, c.ID, opts.slot("slot"))
	if err != nil {
		return h.fail(ctx, err)
	}
	switch {
	case out.Success:
		return say("Success! You now have %s. (-%d coins)", h.itemLabel(out.Item), out.Cost)
	case out.Destroyed:
		return say("The enhancement failed and %s was destroyed. (-%d coins)", h.itemLabel(out.Item), out.Cost)
	default:
		return say("The enhancement failed. %s stays at +%d. (-%d coins)", h.itemLabel(out.Item), out.NewLevel, out.Cost)
	}
}

func (h *Handlers) handleSell(ctx context.Context, c Caller, opts options) Reply {
	out, err := h.game.Sell(ctx, c.ID, opts.slot("slot"), "")
	if err != nil {
		return h.fail(ctx, err)
	}
	return say("Sold %s for **%d** coins.", h.itemLabel(out.Item), out.Value)
}

func (h *Handlers) handleLock(ctx context.Context, c Caller, opts options) Reply {
	it, err := h.game.ToggleLock(ctx, c.ID, opts.slot("slot"))
	if err != nil {
		return h.fail(ctx, err)
	}
	if it.Locked {
		return say("Locked %s.", h.itemLabel(it))
	}
	return say("Unlocked %s.", h.itemLabel(it))
}

func (h *Handlers) handleExpand(ctx context.Context, c Caller, opts options) Reply {
	if !opts.flag("confirm") {
		q, err := h.game.ExpansionQuote(ctx, c.ID)
		if err != nil {
			return h.fail(ctx, err)
		}
		return say("Expanding to %d slots costs **%d** coins. Run `/expand confirm:true` to buy it.", q.Capacity, q.Cost)
	}
	out, err := h.game.ExpandInventory(ctx, c.ID)
	if err != nil {
		return h.fail(ctx, err)
	}
	return say("Your inventory now holds %d items. (-%d coins)", out.Capacity, out.Cost)
}
