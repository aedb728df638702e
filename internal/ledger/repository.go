package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dokan-khata/dokan-khata/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the ledger.
//
// Layout mirrors the document-store shape the app grew up with: a top-level
// customers table and a transactions table owned by it. All multi-row
// mutations run inside a single database transaction, so the append+adjust
// pair and the cascading delete are atomic rather than best-effort.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const (
	pgFKViolation = "23503"
	pgInvalidText = "22P02"
)

// mapPGError converts Postgres errors for dangling or malformed ids into the
// domain not-found sentinel.
func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgFKViolation || pgErr.Code == pgInvalidText) {
		return shared.ErrNotFound
	}
	return err
}

// CreateCustomer inserts a customer with a zero running due.
func (r *Repository) CreateCustomer(ctx context.Context, name, phone string) (*Customer, error) {
	query := `
		INSERT INTO customers (name, phone, running_due, created_at, updated_at)
		VALUES ($1, $2, 0, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	c := Customer{Name: name, Phone: phone}
	if err := r.pool.QueryRow(ctx, query, name, phone).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCustomer retrieves a customer by id.
func (r *Repository) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	query := `
		SELECT id, name, phone, running_due, created_at, updated_at
		FROM customers
		WHERE id = $1`

	var c Customer
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Phone, &c.RunningDue, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, mapPGError(err)
	}
	return &c, nil
}

// UpdateCustomerProfile overwrites name and phone and bumps updated_at.
func (r *Repository) UpdateCustomerProfile(ctx context.Context, id, name, phone string) error {
	query := `
		UPDATE customers
		SET name = $2, phone = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, name, phone)
	if err != nil {
		return mapPGError(err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteCustomerCascade removes the customer's transactions, then the
// customer, in one transaction. Transactions go first so a customer row can
// never outlive with orphaned history pointing at it.
func (r *Repository) DeleteCustomerCascade(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM transactions WHERE customer_id = $1`, id); err != nil {
		return mapPGError(err)
	}
	result, err := tx.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return mapPGError(err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return tx.Commit(ctx)
}

// AppendTransaction inserts an immutable ledger entry and folds delta into
// the customer's running due as one atomic unit. The balance update is an
// in-place increment, never read-then-set, so concurrent appends compose
// instead of overwriting each other.
func (r *Repository) AppendTransaction(ctx context.Context, customerID string, input RecordTransactionInput, delta float64) (*Transaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO transactions (customer_id, amount, type, description, date, items)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, date`

	entry := Transaction{
		CustomerID:  customerID,
		Amount:      input.Amount,
		Type:        input.Type,
		Description: input.Description,
		Items:       input.Items,
	}
	err = tx.QueryRow(ctx, insert,
		customerID,
		input.Amount,
		string(input.Type),
		input.Description,
		input.Date,
		input.Items,
	).Scan(&entry.ID, &entry.Date)
	if err != nil {
		return nil, mapPGError(err)
	}

	update := `
		UPDATE customers
		SET running_due = running_due + $2, updated_at = NOW()
		WHERE id = $1`

	result, err := tx.Exec(ctx, update, customerID, delta)
	if err != nil {
		return nil, mapPGError(err)
	}
	if result.RowsAffected() == 0 {
		return nil, shared.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &entry, nil
}

// SetRunningDue overwrites the stored balance with a recomputed fold. Only
// the reconciliation path calls this.
func (r *Repository) SetRunningDue(ctx context.Context, customerID string, balance float64) error {
	query := `
		UPDATE customers
		SET running_due = $2, updated_at = NOW()
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, customerID, balance)
	if err != nil {
		return mapPGError(err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListCustomers returns all customers ordered by recent activity.
func (r *Repository) ListCustomers(ctx context.Context) ([]Customer, error) {
	query := `
		SELECT id, name, phone, running_due, created_at, updated_at
		FROM customers
		ORDER BY updated_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.RunningDue, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// ListTransactions returns one customer's entries ordered by date, newest
// first.
func (r *Repository) ListTransactions(ctx context.Context, customerID string) ([]Transaction, error) {
	query := `
		SELECT id, customer_id, amount, type, description, date, items
		FROM transactions
		WHERE customer_id = $1
		ORDER BY date DESC`

	rows, err := r.pool.Query(ctx, query, customerID)
	if err != nil {
		return nil, mapPGError(err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListAllTransactions returns every transaction across customers with the
// owning customer id on each row, for cross-customer aggregation.
func (r *Repository) ListAllTransactions(ctx context.Context) ([]Transaction, error) {
	query := `
		SELECT id, customer_id, amount, type, description, date, items
		FROM transactions
		ORDER BY date DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows pgx.Rows) ([]Transaction, error) {
	var txs []Transaction
	for rows.Next() {
		var t Transaction
		var typ string
		if err := rows.Scan(&t.ID, &t.CustomerID, &t.Amount, &typ, &t.Description, &t.Date, &t.Items); err != nil {
			return nil, err
		}
		t.Type = TxType(typ)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
