package clock_test

import (
	"testing"
	"time"

	"github.com/jensholdgaard/gachabot/internal/clock"
)

func TestReal_Now(t *testing.T) {
	clk := clock.Real{}
	before := time.Now()
	got := clk.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Real.Now() = %v, expected between %v and %v", got, before, after)
	}
	if got.Location() != time.UTC {
		t.Errorf("Real.Now() location = %v, want UTC", got.Location())
	}
}

func TestMock_Now(t *testing.T) {
	fixed := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	clk := clock.NewMock(fixed)

	if got := clk.Now(); !got.Equal(fixed) {
		t.Errorf("Mock.Now() = %v, want %v", got, fixed)
	}

	// Call again to ensure determinism.
	if got := clk.Now(); !got.Equal(fixed) {
		t.Errorf("Mock.Now() second call = %v, want %v", got, fixed)
	}
}

func TestMock_Advance(t *testing.T) {
	fixed := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	clk := clock.NewMock(fixed)

	clk.Advance(90 * time.Minute)
	want := fixed.Add(90 * time.Minute)
	if got := clk.Now(); !got.Equal(want) {
		t.Errorf("after Advance, Now() = %v, want %v", got, want)
	}

	clk.Set(fixed)
	if got := clk.Now(); !got.Equal(fixed) {
		t.Errorf("after Set, Now() = %v, want %v", got, fixed)
	}
}
