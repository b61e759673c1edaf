package economy_test

import (
	"errors"
	"testing"

	"github.com/jensholdgaard/gachabot/internal/economy"
)

func TestInventory_CapacityFive(t *testing.T) {
	inv, err := economy.NewInventory(5)
	if err != nil {
		t.Fatalf("NewInventory() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := inv.Insert(economy.NewItem("common", "c1", 0)); err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
	}
	if err := inv.Insert(economy.NewItem("common", "c1", 0)); !errors.Is(err, economy.ErrInventoryFull) {
		t.Fatalf("sixth Insert() error = %v, want ErrInventoryFull", err)
	}
	if inv.Len() != 5 {
		t.Errorf("Len() = %d, want 5", inv.Len())
	}
}

func TestInventory_Remove(t *testing.T) {
	a := economy.NewItem("common", "a", 0)
	b := economy.NewItem("rare", "b", 0)
	inv, _ := economy.NewInventory(3, a, b)

	got, err := inv.Remove(0)
	if err != nil {
		t.Fatalf("Remove(0) error = %v", err)
	}
	if got.UID != a.UID {
		t.Errorf("Remove(0) = %s, want %s", got.UID, a.UID)
	}
	if inv.IndexOf(b.UID) != 0 {
		t.Errorf("IndexOf(b) = %d, want 0", inv.IndexOf(b.UID))
	}
	if _, err := inv.Remove(1); !errors.Is(err, economy.ErrIndexOutOfRange) {
		t.Errorf("Remove(1) error = %v, want ErrIndexOutOfRange", err)
	}
	if _, err := inv.Remove(-1); !errors.Is(err, economy.ErrIndexOutOfRange) {
		t.Errorf("Remove(-1) error = %v, want ErrIndexOutOfRange", err)
	}
}

func TestInventory_Expand(t *testing.T) {
	inv, _ := economy.NewInventory(10)
	if err := inv.Expand(10); !errors.Is(err, economy.ErrInvalidCapacity) {
		t.Errorf("Expand(10) error = %v, want ErrInvalidCapacity", err)
	}
	if err := inv.Expand(15); err != nil {
		t.Fatalf("Expand(15) error = %v", err)
	}
	if inv.Capacity() != 15 || inv.Free() != 15 {
		t.Errorf("Capacity() = %d Free() = %d, want 15 15", inv.Capacity(), inv.Free())
	}
}

func TestExpansionCost(t *testing.T) {
	tests := []struct {
		n    int
		want int64
	}{
		{0, 1000},
		{1, 1500},
		{2, 2250},
		{3, 3375},
		{4, 5062},
	}
	for _, tt := range tests {
		if got := economy.ExpansionCost(1000, 1.5, tt.n); got != tt.want {
			t.Errorf("ExpansionCost(1000, 1.5, %d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}
