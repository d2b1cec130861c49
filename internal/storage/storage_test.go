package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestNewGatewaySelectsBackend(t *testing.T) {
	noop, err := NewGateway("", "", Options{})
	if err != nil {
		t.Fatalf("NewGateway(none): %v", err)
	}
	t.Cleanup(func() { noop.Close() })

	count, err := noop.CountCompanies(context.Background(), "https://site/agro-tech")
	if err != nil || count != 0 {
		t.Fatalf("noop count = %d, %v", count, err)
	}

	boltPath := filepath.Join(t.TempDir(), "harvest.db")
	boltGW, err := NewGateway("bbolt", boltPath, Options{})
	if err != nil {
		t.Fatalf("NewGateway(bbolt): %v", err)
	}
	boltGW.Close()

	if _, err := NewGateway("cassandra", "", Options{}); err == nil {
		t.Fatal("expected error for unsupported storage type")
	}
}
