// Package orders defines the order record consumed by the printing pipeline
// and the collaborators that supply it.
package orders

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrOrderNotFound is returned when an order id is unknown to a collaborator.
var ErrOrderNotFound = errors.New("order not found")

// Collaborator is the orders store the printing pipeline reads from.
type Collaborator interface {
	GetAllOrders(ctx context.Context) ([]Order, error)
	UpdatePrintStatus(ctx context.Context, orderID int64, printed bool) error
}

// Order is a restaurant order as stored by the dashboard. Optional fields are
// empty strings / nil pointers when absent; the renderer substitutes a
// placeholder for them.
type Order struct {
	ID            int64      `json:"id"`
	CustomerName  string     `json:"nome_cliente,omitempty"`
	Phone         string     `json:"telefone,omitempty"`
	Address       string     `json:"endereco,omitempty"`
	Items         []Item     `json:"itens,omitempty"`
	ItemsText     string     `json:"itens_texto,omitempty"`
	Notes         string     `json:"observacoes,omitempty"`
	PaymentMethod string     `json:"forma_pagamento,omitempty"`
	DeliveryFee   *float64   `json:"taxa_entrega,omitempty"`
	Total         float64    `json:"valor"`
	Status        string     `json:"status"`
	Printed       bool       `json:"impresso"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

// Item is one line of an order.
type Item struct {
	Name     string  `json:"nome"`
	Quantity int     `json:"quantidade"`
	Price    float64 `json:"preco"`
}

// LineTotal is quantity times unit price; a missing quantity counts as one.
func (i Item) LineTotal() float64 {
	q := i.Quantity
	if q <= 0 {
		q = 1
	}
	return float64(q) * i.Price
}

var cancelledStatuses = map[string]bool{
	"cancelado": true,
	"cancelada": true,
	"cancelled": true,
	"canceled":  true,
}

// IsCancelled reports whether the order status marks it cancelled.
func (o Order) IsCancelled() bool {
	return cancelledStatuses[strings.ToLower(strings.TrimSpace(o.Status))]
}
