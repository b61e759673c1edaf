package economy

import "fmt"

// Inventory is a capacity-bounded, ordered collection of items.
type Inventory struct {
	items    []Item
	capacity int
}

// NewInventory builds an inventory holding items.
func NewInventory(capacity int, items ...Item) (*Inventory, error) {
	if capacity < 0 {
		return nil, ErrInvalidCapacity
	}
	if len(items) > capacity {
		return nil, fmt.Errorf("%d items exceed capacity %d: %w", len(items), capacity, ErrInventoryFull)
	}
	return &Inventory{items: append([]Item(nil), items...), capacity: capacity}, nil
}

// Len is the number of held items.
func (inv *Inventory) Len() int { return len(inv.items) }

// Capacity is the number of slots.
func (inv *Inventory) Capacity() int { return inv.capacity }

// Free is the number of empty slots.
func (inv *Inventory) Free() int { return inv.capacity - len(inv.items) }

// Items returns a copy of the held items.
func (inv *Inventory) Items() []Item { return append([]Item(nil), inv.items...) }

// At returns the item at index.
func (inv *Inventory) At(index int) (Item, error) {
	if index < 0 || index >= len(inv.items) {
		return Item{}, fmt.Errorf("index %d of %d: %w", index, len(inv.items), ErrIndexOutOfRange)
	}
	return inv.items[index], nil
}

// Replace overwrites the item at index.
func (inv *Inventory) Replace(index int, it Item) error {
	if index < 0 || index >= len(inv.items) {
		return fmt.Errorf("index %d of %d: %w", index, len(inv.items), ErrIndexOutOfRange)
	}
	inv.items[index] = it
	return nil
}

// IndexOf returns the index of the item with uid, or -1.
func (inv *Inventory) IndexOf(uid string) int {
	for i, it := range inv.items {
		if it.UID == uid {
			return i
		}
	}
	return -1
}

// Insert appends it.
func (inv *Inventory) Insert(it Item) error {
	if len(inv.items) >= inv.capacity {
		return ErrInventoryFull
	}
	inv.items = append(inv.items, it)
	return nil
}

// Remove takes the item at index out of the inventory.
func (inv *Inventory) Remove(index int) (Item, error) {
	it, err := inv.At(index)
	if err != nil {
		return Item{}, err
	}
	inv.items = append(inv.items[:index], inv.items[index+1:]...)
	return it, nil
}

// Expand raises the capacity to newCapacity.
func (inv *Inventory) Expand(newCapacity int) error {
	if newCapacity <= inv.capacity {
		return fmt.Errorf("expand %d -> %d: %w", inv.capacity, newCapacity, ErrInvalidCapacity)
	}
	inv.capacity = newCapacity
	return nil
}

// ExpansionCost is floor(baseCost × growth^expansions).
func ExpansionCost(baseCost int64, growth float64, expansions int) int64 {
	return GeometricCost(baseCost, growth, expansions)
}
