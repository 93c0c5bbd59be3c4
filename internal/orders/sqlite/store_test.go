package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/thereceipt/order-printer/internal/logging"
	"github.com/thereceipt/order-printer/internal/orders"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "orders.db"), logging.Discard())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_RoundTripAndPrintFlag(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	fee := 5.0
	created := time.Date(2026, 10, 16, 12, 30, 0, 0, time.UTC)
	if _, err := store.Insert(ctx, orders.Order{
		ID:           42,
		CustomerName: "Ana",
		Items:        []orders.Item{{Name: "Pizza", Quantity: 1, Price: 30.9}},
		DeliveryFee:  &fee,
		Total:        35.9,
		Status:       "pendente",
		CreatedAt:    &created,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.Insert(ctx, orders.Order{ID: 43, Total: 10, Status: "cancelado"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	all, err := store.GetAllOrders(ctx)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(all))
	}
	first := all[0]
	if first.ID != 42 || first.CustomerName != "Ana" || len(first.Items) != 1 {
		t.Fatalf("unexpected order: %+v", first)
	}
	if first.DeliveryFee == nil || *first.DeliveryFee != 5 {
		t.Fatalf("expected delivery fee 5, got %v", first.DeliveryFee)
	}
	if first.CreatedAt == nil || !first.CreatedAt.Equal(created) {
		t.Fatalf("expected created_at %v, got %v", created, first.CreatedAt)
	}
	if all[1].DeliveryFee != nil {
		t.Fatalf("expected nil delivery fee for order 43")
	}

	if err := store.UpdatePrintStatus(ctx, 42, true); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.GetOrder(ctx, 42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Printed {
		t.Fatalf("expected order 42 printed")
	}

	if err := store.UpdatePrintStatus(ctx, 99, true); !errors.Is(err, orders.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := store.GetOrder(ctx, 99); !errors.Is(err, orders.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
