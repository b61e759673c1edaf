package rng_test

import (
	"testing"

	"github.com/jensholdgaard/gachabot/internal/rng"
)

func TestSeeded_Reproducible(t *testing.T) {
	a := rng.NewSeeded(7)
	b := rng.NewSeeded(7)
	for i := 0; i < 100; i++ {
		if x, y := a.Float64(), b.Float64(); x != y {
			t.Fatalf("draw %d differs: %v vs %v", i, x, y)
		}
	}
}

func TestDefault_Range(t *testing.T) {
	src := rng.Default()
	for i := 0; i < 1000; i++ {
		v := src.Float64()
		if v < 0 || v >= 1 {
			t.Fatalf("Float64() = %v, want [0,1)", v)
		}
	}
}

func TestSequence(t *testing.T) {
	s := rng.NewSequence(0.1, 0.5)
	want := []float64{0.1, 0.5, 0.5, 0.5}
	for i, w := range want {
		if got := s.Float64(); got != w {
			t.Errorf("call %d = %v, want %v", i, got, w)
		}
	}
	if got := rng.NewSequence().Float64(); got != 0 {
		t.Errorf("empty sequence = %v, want 0", got)
	}
}

func TestIndex(t *testing.T) {
	tests := []struct {
		name string
		v    float64
		n    int
		want int
	}{
		{"single", 0.9, 1, 0},
		{"zero", 0.9, 0, 0},
		{"low", 0.0, 4, 0},
		{"high", 0.999999, 4, 3},
		{"mid", 0.5, 4, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rng.Index(rng.Const(tt.v), tt.n); got != tt.want {
				t.Errorf("Index(%v, %d) = %d, want %d", tt.v, tt.n, got, tt.want)
			}
		})
	}
}
