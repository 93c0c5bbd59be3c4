package orders

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Collaborator, used for demos and tests.
type Memory struct {
	mu      sync.Mutex
	orders  map[int64]Order
	updates []PrintStatusUpdate
}

// PrintStatusUpdate records one UpdatePrintStatus call.
type PrintStatusUpdate struct {
	OrderID int64
	Printed bool
}

// NewMemory returns a Memory seeded with orders.
func NewMemory(seed ...Order) *Memory {
	m := &Memory{orders: make(map[int64]Order)}
	for _, o := range seed {
		m.orders[o.ID] = o
	}
	return m
}

// Put inserts or replaces an order.
func (m *Memory) Put(o Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

// GetAllOrders returns orders sorted by id.
func (m *Memory) GetAllOrders(ctx context.Context) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdatePrintStatus sets the printed flag on an order.
func (m *Memory) UpdatePrintStatus(ctx context.Context, orderID int64, printed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.Printed = printed
	m.orders[orderID] = o
	m.updates = append(m.updates, PrintStatusUpdate{OrderID: orderID, Printed: printed})
	return nil
}

// Updates returns the UpdatePrintStatus calls seen so far.
func (m *Memory) Updates() []PrintStatusUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PrintStatusUpdate(nil), m.updates...)
}
