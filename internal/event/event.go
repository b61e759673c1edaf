package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	PlayerRegistered Type = "player.registered"

	CoinsCredited Type = "coins.credited"
	CoinsDebited  Type = "coins.debited"

	ItemDrawn         Type = "item.drawn"
	ItemsFused        Type = "item.fused"
	ItemEnhanced      Type = "item.enhanced"
	ItemSold          Type = "item.sold"
	ItemLockToggled   Type = "item.lock_toggled"
	InventoryExpanded Type = "inventory.expanded"
	EffectGranted     Type = "effect.granted"

	EffectPurchased         Type = "shop.effect_purchased"
	LuckPurchased           Type = "shop.luck_purchased"
	ProbabilitiesOverridden Type = "player.probabilities_overridden"

	ListingCreated   Type = "listing.created"
	ListingSold      Type = "listing.sold"
	ListingCancelled Type = "listing.cancelled"
	ListingExpired   Type = "listing.expired"
)

// Event represents a single domain event. Version is the position within the
// aggregate's stream; a zero Version is assigned by the store on append.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// New builds an event with a JSON payload.
func New(aggregateID string, typ Type, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encoding %s payload: %w", typ, err)
	}
	return Event{AggregateID: aggregateID, Type: typ, Data: data}, nil
}

// PlayerRegisteredData is the payload for PlayerRegistered events.
type PlayerRegisteredData struct {
	PlayerID      string `json:"player_id"`
	DisplayName   string `json:"display_name"`
	StartingCoins int64  `json:"starting_coins"`
}

// CoinsData is the payload for CoinsCredited and CoinsDebited events.
type CoinsData struct {
	PlayerID string `json:"player_id"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason"`
	Balance  int64  `json:"balance"`
}

// ItemData is the payload for item events.
type ItemData struct {
	PlayerID string   `json:"player_id"`
	ItemUID  string   `json:"item_uid"`
	Grade    string   `json:"grade"`
	ItemID   string   `json:"item_id"`
	Level    int      `json:"level,omitempty"`
	Sources  []string `json:"sources,omitempty"`
	Success  *bool    `json:"success,omitempty"`
	Value    int64    `json:"value,omitempty"`
}

// InventoryExpandedData is the payload for InventoryExpanded events.
type InventoryExpandedData struct {
	PlayerID string `json:"player_id"`
	Capacity int    `json:"capacity"`
	Cost     int64  `json:"cost"`
}

// EffectData is the payload for EffectGranted events.
type EffectData struct {
	PlayerID string `json:"player_id"`
	Effect   string `json:"effect"`
	Count    int    `json:"count"`
	Total    int    `json:"total"`
}

// PurchaseData is the payload for EffectPurchased and LuckPurchased events.
// Total is the effect's remaining uses or the new luck level.
type PurchaseData struct {
	PlayerID string `json:"player_id"`
	Product  string `json:"product"`
	Uses     int    `json:"uses,omitempty"`
	Total    int    `json:"total"`
	Cost     int64  `json:"cost"`
}

// ProbabilityData is the payload for ProbabilitiesOverridden events. A nil
// map records that the override was cleared.
type ProbabilityData struct {
	PlayerID      string             `json:"player_id"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// ListingData is the payload for listing events.
type ListingData struct {
	ListingID string `json:"listing_id"`
	SellerID  string `json:"seller_id"`
	BuyerID   string `json:"buyer_id,omitempty"`
	ItemUID   string `json:"item_uid"`
	Price     int64  `json:"price"`
	Fee       int64  `json:"fee,omitempty"`
}
