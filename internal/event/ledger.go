package event

import "github.com/jensholdgaard/gachabot/internal/economy"

// FromDeltas turns ledger deltas into CoinsCredited and CoinsDebited events.
func FromDeltas(playerID string, deltas []economy.Delta) []Event {
	out := make([]Event, 0, len(deltas))
	for _, d := range deltas {
		typ := CoinsCredited
		if d.Amount < 0 {
			typ = CoinsDebited
		}
		// CoinsData always encodes.
		e, _ := New(playerID, typ, CoinsData{
			PlayerID: playerID,
			Amount:   d.Amount,
			Reason:   d.Reason,
			Balance:  d.Balance,
		})
		out = append(out, e)
	}
	return out
}
