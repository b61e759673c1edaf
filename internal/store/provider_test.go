package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/jensholdgaard/gachabot/internal/clock"
	"github.com/jensholdgaard/gachabot/internal/config"
	"github.com/jensholdgaard/gachabot/internal/store"

	// Import drivers so their init() functions register them.
	_ "github.com/jensholdgaard/gachabot/internal/store/memory"
	_ "github.com/jensholdgaard/gachabot/internal/store/postgres"
)

// fakeDriver is a store.Driver that always succeeds without connecting to a DB.
func fakeDriver(_ context.Context, _ config.DatabaseConfig, _ clock.Clock) (*store.Repositories, error) {
	return &store.Repositories{}, nil
}

func TestOpen(t *testing.T) {
	store.Register("test-driver", fakeDriver)

	tests := []struct {
		name    string
		driver  string
		wantErr bool
	}{
		{name: "registered driver succeeds", driver: "test-driver"},
		{name: "memory driver succeeds", driver: "memory"},
		{name: "unknown driver fails", driver: "nonexistent", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DatabaseConfig{Driver: tt.driver}
			repos, err := store.Open(context.Background(), cfg, clock.Real{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open(driver=%q) error = %v, wantErr %v", tt.driver, err, tt.wantErr)
			}
			if err == nil && repos.Closer != nil {
				_ = repos.Closer.Close()
			}
		})
	}
}

func TestRegister_Postgres(t *testing.T) {
	// The sqlx driver is registered but cannot connect without a database, so
	// the error must be a connection error rather than an unknown driver.
	cfg := config.DatabaseConfig{Driver: "sqlx", Host: "127.0.0.1", Port: 1, SSLMode: "disable"}
	_, err := store.Open(context.Background(), cfg, clock.Real{})
	if err == nil {
		t.Fatal("expected error (no DB running), got nil")
	}
	if strings.Contains(err.Error(), "unknown store driver") {
		t.Errorf("expected connection error, got unknown driver error: %v", err)
	}
}
