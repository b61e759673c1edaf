package economy

import (
	"time"

	"github.com/google/uuid"
)

// Item is a single owned collectible.
type Item struct {
	UID       string      `json:"uid"`
	Grade     string      `json:"grade"`
	ItemID    string      `json:"itemId"`
	Level     int         `json:"enhancementLevel"`
	Mutations MutationSet `json:"mutations"`
	Locked    bool        `json:"locked"`
}

// NewItem mints an unenhanced, unlocked item with a fresh uid.
func NewItem(grade, itemID string, mutations MutationSet) Item {
	return Item{
		UID:       uuid.NewString(),
		Grade:     grade,
		ItemID:    itemID,
		Mutations: mutations,
	}
}

// Listing is an item offered on the auction house. While a listing exists
// the item is owned by it and by nothing else.
type Listing struct {
	ID         string    `json:"id"`
	SellerID   string    `json:"sellerId"`
	SellerName string    `json:"sellerName"`
	Item       Item      `json:"item"`
	Price      int64     `json:"price"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Expired reports whether the listing can no longer be bought at now.
func (l Listing) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
