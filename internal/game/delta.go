package game

import "github.com/jensholdgaard/gachabot/internal/economy"

// Delta is what an operation changed for the acting player, for the UI to
// animate.
type Delta struct {
	Coins        int64
	ItemsAdded   []economy.Item
	ItemsRemoved []economy.Item
}
