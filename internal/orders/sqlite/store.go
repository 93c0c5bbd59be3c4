// Package sqlite is a local orders collaborator backed by an SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/thereceipt/order-printer/internal/orders"
	_ "modernc.org/sqlite"
)

// Store implements orders.Collaborator over the pedidos table.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and runs migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS pedidos (
			id INTEGER PRIMARY KEY,
			nome_cliente TEXT NOT NULL DEFAULT '',
			telefone TEXT NOT NULL DEFAULT '',
			endereco TEXT NOT NULL DEFAULT '',
			itens_json TEXT NOT NULL DEFAULT '[]',
			itens_texto TEXT NOT NULL DEFAULT '',
			observacoes TEXT NOT NULL DEFAULT '',
			forma_pagamento TEXT NOT NULL DEFAULT '',
			taxa_entrega REAL,
			valor REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pendente',
			impresso INTEGER NOT NULL DEFAULT 0,
			created_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pedidos_impresso ON pedidos(impresso);`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}

// Insert stores an order. A zero ID lets SQLite assign one.
func (s *Store) Insert(ctx context.Context, o orders.Order) (int64, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return 0, err
	}

	var id any
	if o.ID != 0 {
		id = o.ID
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO pedidos
		(id, nome_cliente, telefone, endereco, itens_json, itens_texto, observacoes,
		 forma_pagamento, taxa_entrega, valor, status, impresso, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, o.CustomerName, o.Phone, o.Address, string(items), o.ItemsText, o.Notes,
		o.PaymentMethod, fromFloatPtr(o.DeliveryFee), o.Total, o.Status, boolToInt(o.Printed),
		fromTimePtr(o.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	return res.LastInsertId()
}

// GetAllOrders returns every order in id order.
func (s *Store) GetAllOrders(ctx context.Context) ([]orders.Order, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, nome_cliente, telefone, endereco, itens_json,
		itens_texto, observacoes, forma_pagamento, taxa_entrega, valor, status, impresso, created_at
		FROM pedidos ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetOrder returns a single order.
func (s *Store) GetOrder(ctx context.Context, id int64) (orders.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, nome_cliente, telefone, endereco, itens_json,
		itens_texto, observacoes, forma_pagamento, taxa_entrega, valor, status, impresso, created_at
		FROM pedidos WHERE id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, err
}

// UpdatePrintStatus sets the impresso flag.
func (s *Store) UpdatePrintStatus(ctx context.Context, orderID int64, printed bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE pedidos SET impresso = ? WHERE id = ?`, boolToInt(printed), orderID)
	if err != nil {
		return fmt.Errorf("update print status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return orders.ErrOrderNotFound
	}
	if s.logger != nil {
		s.logger.Debug("order print status updated", "order_id", orderID, "printed", printed)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(sc scanner) (orders.Order, error) {
	var (
		o         orders.Order
		itemsJSON string
		fee       sql.NullFloat64
		printed   int
		createdAt sql.NullString
	)
	err := sc.Scan(&o.ID, &o.CustomerName, &o.Phone, &o.Address, &itemsJSON, &o.ItemsText,
		&o.Notes, &o.PaymentMethod, &fee, &o.Total, &o.Status, &printed, &createdAt)
	if err != nil {
		return orders.Order{}, err
	}
	if itemsJSON != "" {
		if err := json.Unmarshal([]byte(itemsJSON), &o.Items); err != nil {
			return orders.Order{}, fmt.Errorf("decode items of order %d: %w", o.ID, err)
		}
	}
	if fee.Valid {
		v := fee.Float64
		o.DeliveryFee = &v
	}
	o.Printed = printed != 0
	o.CreatedAt = toTimePtr(createdAt)
	return o, nil
}

func toTimePtr(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func fromTimePtr(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC().Format(time.RFC3339Nano)
}

func fromFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
