package economy_test

import (
	"errors"
	"testing"

	"github.com/jensholdgaard/gachabot/internal/economy"
)

func TestLedger_CreditDebit(t *testing.T) {
	l, err := economy.NewLedger(100)
	if err != nil {
		t.Fatalf("NewLedger() error = %v", err)
	}

	if err := l.Credit(50, "draw"); err != nil {
		t.Fatalf("Credit() error = %v", err)
	}
	if err := l.Debit(120, "enhance"); err != nil {
		t.Fatalf("Debit() error = %v", err)
	}
	if got := l.Balance(); got != 30 {
		t.Errorf("Balance() = %d, want 30", got)
	}

	deltas := l.PendingDeltas()
	want := []economy.Delta{
		{Amount: 50, Reason: "draw", Balance: 150},
		{Amount: -120, Reason: "enhance", Balance: 30},
	}
	if len(deltas) != len(want) {
		t.Fatalf("PendingDeltas() len = %d, want %d", len(deltas), len(want))
	}
	for i := range want {
		if deltas[i] != want[i] {
			t.Errorf("delta[%d] = %+v, want %+v", i, deltas[i], want[i])
		}
	}
	if again := l.PendingDeltas(); len(again) != 0 {
		t.Errorf("PendingDeltas() after drain = %v, want empty", again)
	}
}

func TestLedger_Errors(t *testing.T) {
	tests := []struct {
		name string
		op   func(l *economy.Ledger) error
		want error
	}{
		{"overdraw", func(l *economy.Ledger) error { return l.Debit(11, "x") }, economy.ErrInsufficientFunds},
		{"negative debit", func(l *economy.Ledger) error { return l.Debit(-1, "x") }, economy.ErrInvalidAmount},
		{"negative credit", func(l *economy.Ledger) error { return l.Credit(-1, "x") }, economy.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := economy.NewLedger(10)
			if err := tt.op(l); !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if l.Balance() != 10 {
				t.Errorf("Balance() = %d, want unchanged 10", l.Balance())
			}
			if d := l.PendingDeltas(); len(d) != 0 {
				t.Errorf("deltas recorded on failure: %v", d)
			}
		})
	}
}

func TestNewLedger_Negative(t *testing.T) {
	if _, err := economy.NewLedger(-5); !errors.Is(err, economy.ErrInvalidAmount) {
		t.Fatalf("NewLedger(-5) error = %v, want ErrInvalidAmount", err)
	}
}

func TestSellerProceeds(t *testing.T) {
	tests := []struct {
		price    int64
		fee      float64
		proceeds int64
	}{
		{100, 0.05, 95},
		{101, 0.05, 95},
		{1, 0.05, 0},
		{1000, 0, 1000},
		{333, 0.1, 299},
	}
	for _, tt := range tests {
		p, f := economy.SellerProceeds(tt.price, tt.fee)
		if p != tt.proceeds {
			t.Errorf("SellerProceeds(%d, %v) proceeds = %d, want %d", tt.price, tt.fee, p, tt.proceeds)
		}
		if p+f != tt.price {
			t.Errorf("SellerProceeds(%d, %v): proceeds+fee = %d, want %d", tt.price, tt.fee, p+f, tt.price)
		}
	}
}

func TestScaleValue(t *testing.T) {
	if got := economy.ScaleValue(100, 1.5, 2); got != 300 {
		t.Errorf("ScaleValue(100, 1.5, 2) = %d, want 300", got)
	}
	if got := economy.ScaleValue(7, 1.1); got != 7 {
		t.Errorf("ScaleValue(7, 1.1) = %d, want 7", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want economy.ErrorKind
	}{
		{economy.ErrNotFusable, economy.KindValidation},
		{economy.ErrInsufficientFunds, economy.KindResource},
		{economy.ErrListingGone, economy.KindConflict},
		{errors.Join(economy.ErrPersistence, errors.New("conn reset")), economy.KindPersistence},
		{errors.New("boom"), economy.KindUnknown},
		{nil, economy.KindUnknown},
	}
	for _, tt := range tests {
		if got := economy.Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
