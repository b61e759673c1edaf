package commands

import (
	"context"
	"strings"
)

func (h *Handlers) handleMarket(ctx context.Context, _ Caller, opts options) Reply {
	listings, err := h.game.Market(ctx, int(opts.integer("limit", 0)))
	if err != nil {
		return h.fail(ctx, err)
	}
	if len(listings) == 0 {
		return say("The auction house is empty.")
	}
	lines := make([]string, len(listings))
	for i, l := range listings {
		lines[i] = h.listingLine(l)
	}
	return say("**Auction house:**\n%s", strings.Join(lines, "\n"))
}

func (h *Handlers) handleList(ctx context.Context, c Caller, opts options) Reply {
	out, err := h.game.ListItem(ctx, c.ID, opts.slot("slot"), "", opts.integer("price", 0))
	if err != nil {
		return h.fail(ctx, err)
	}
	return say("Listed %s for **%d** coins (ID: `%s`, ends %s).",
		h.itemLabel(out.Listing.Item), out.Listing.Price, out.Listing.ID, timestamp(out.Listing.ExpiresAt))
}

func (h *Handlers) handleBuy(ctx context.Context, c Caller, opts options) Reply {
	out, err := h.game.BuyListing(ctx, c.ID, c.Name, opts.str("listing"))
	if err != nil {
		return h.fail(ctx, err)
	}
	return say("You bought %s from %s for **%d** coins.",
		h.itemLabel(out.Listing.Item), out.Listing.SellerName, out.Listing.Price)
}

func (h *Handlers) handleCancel(ctx context.Context, c Caller, opts options) Reply {
	out, err := h.game.CancelListing(ctx, c.ID, opts.str("listing"))
	if err != nil {
		return h.fail(ctx, err)
	}
	return say("Cancelled listing `%s`; %s is back in your inventory.", out.Listing.ID, h.itemLabel(out.Listing.Item))
}

func (h *Handlers) handleMyListings(ctx context.Context, c Caller, _ options) Reply {
	listings, err := h.game.MyListings(ctx, c.ID)
	if err != nil {
		return h.fail(ctx, err)
	}
	if len(listings) == 0 {
		return say("You have no active listings.")
	}
	lines := make([]string, len(listings))
	for i, l := range listings {
		lines[i] = h.listingLine(l)
	}
	return say("**Your listings:**\n%s", strings.Join(lines, "\n"))
}
