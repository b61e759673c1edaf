package commands

import (
	"github.com/bwmarrin/discordgo"

	"github.com/jensholdgaard/gachabot/internal/economy"
	"github.com/jensholdgaard/gachabot/internal/shop"
)

var adminPermission int64 = discordgo.PermissionAdministrator

func slotOption(name, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        name,
		Description: description,
		Required:    true,
		MinValue:    ptr(1.0),
	}
}

func listingOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "listing",
		Description: description,
		Required:    true,
	}
}

func playerOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "player",
		Description: description,
		Required:    true,
	}
}

func effectChoices() []*discordgo.ApplicationCommandOptionChoice {
	kinds := economy.AllEffects()
	out := make([]*discordgo.ApplicationCommandOptionChoice, len(kinds))
	for i, k := range kinds {
		out[i] = &discordgo.ApplicationCommandOptionChoice{Name: k.String(), Value: k.String()}
	}
	return out
}

func ptr[T any](v T) *T { return &v }

// SlashCommands returns the slash command definitions.
func SlashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Name: "draw", Description: "Draw a random item"},
		{Name: "profile", Description: "Show your coins, effects and progress"},
		{Name: "inventory", Description: "List the items in your inventory"},
		{Name: "odds", Description: "Show your current draw odds"},
		{
			Name:        "fuse",
			Description: "Fuse three items of the same grade into one of the next grade",
			Options: []*discordgo.ApplicationCommandOption{
				slotOption("first", "Inventory slot of the first item"),
				slotOption("second", "Inventory slot of the second item"),
				slotOption("third", "Inventory slot of the third item"),
			},
		},
		{
			Name:        "enhance",
			Description: "Try to enhance an item to the next level",
			Options: []*discordgo.ApplicationCommandOption{
				slotOption("slot", "Inventory slot of the item"),
			},
		},
		{
			Name:        "sell",
			Description: "Sell an item for coins",
			Options: []*discordgo.ApplicationCommandOption{
				slotOption("slot", "Inventory slot of the item"),
			},
		},
		{
			Name:        "lock",
			Description: "Lock or unlock an item",
			Options: []*discordgo.ApplicationCommandOption{
				slotOption("slot", "Inventory slot of the item"),
			},
		},
		{
			Name:        "expand",
			Description: "Buy more inventory space",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "confirm",
					Description: "Pay for the expansion (otherwise only show the price)",
				},
			},
		},
		{
			Name:        "market",
			Description: "Browse the auction house",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "limit",
					Description: "How many listings to show",
					MinValue:    ptr(1.0),
					MaxValue:    50,
				},
			},
		},
		{
			Name:        "list",
			Description: "Put an item up for sale on the auction house",
			Options: []*discordgo.ApplicationCommandOption{
				slotOption("slot", "Inventory slot of the item"),
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "price",
					Description: "Asking price in coins",
					Required:    true,
					MinValue:    ptr(1.0),
				},
			},
		},
		{
			Name:        "buy",
			Description: "Buy a listing from the auction house",
			Options:     []*discordgo.ApplicationCommandOption{listingOption("Listing ID to buy")},
		},
		{
			Name:        "cancel",
			Description: "Take one of your listings off the auction house",
			Options:     []*discordgo.ApplicationCommandOption{listingOption("Listing ID to cancel")},
		},
		{Name: "my-listings", Description: "Show your active listings"},
		{Name: "shop", Description: "Show what the shop sells"},
		{
			Name:        "buy-effect",
			Description: "Buy effect charges from the shop",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "effect",
					Description: "Effect kind",
					Required:    true,
					Choices:     effectChoices(),
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "packs",
					Description: "How many packs to buy",
					MinValue:    ptr(1.0),
					MaxValue:    shop.MaxPacks,
				},
			},
		},
		{Name: "buy-luck", Description: "Buy the next level of permanent luck"},
		{
			Name:                     "grant-coins",
			Description:              "Give coins to a player (admin only)",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				playerOption("The player to credit"),
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "amount",
					Description: "Coins to give",
					Required:    true,
					MinValue:    ptr(1.0),
				},
			},
		},
		{
			Name:                     "grant-effect",
			Description:              "Give effect charges to a player (admin only)",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				playerOption("The player to grant the effect to"),
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "effect",
					Description: "Effect kind",
					Required:    true,
					Choices:     effectChoices(),
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "count",
					Description: "Number of charges",
					Required:    true,
					MinValue:    ptr(1.0),
				},
			},
		},
		{
			Name:                     "set-odds",
			Description:              "Override a player's grade odds (admin only)",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				playerOption("The player whose odds to set"),
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "odds",
					Description: "Percent per grade, e.g. common=60,rare=40. Use reset to clear",
					Required:    true,
				},
			},
		},
		{
			Name:                     "event-start",
			Description:              "Start a timed event (admin only)",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "Event name",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "hours",
					Description: "How long the event runs",
					Required:    true,
					MinValue:    ptr(1.0),
				},
			},
		},
		{
			Name:                     "event-end",
			Description:              "End a timed event (admin only)",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "Event name",
					Required:    true,
				},
			},
		},
		{
			Name:                     "luck",
			Description:              "Set the live luck multiplier (admin only)",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionNumber,
					Name:        "multiplier",
					Description: "Luck multiplier, 1 is neutral",
					Required:    true,
				},
			},
		},
		{
			Name:                     "live",
			Description:              "Turn the live event on or off (admin only)",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "enabled",
					Description: "Whether the live event is running",
					Required:    true,
				},
			},
		},
	}
}
