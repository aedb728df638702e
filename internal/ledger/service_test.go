package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dokan-khata/dokan-khata/internal/shared"
)

type memoryLedgerRepo struct {
	customers map[string]*Customer
	txs       map[string][]Transaction
	nextID    int
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{
		customers: make(map[string]*Customer),
		txs:       make(map[string][]Transaction),
	}
}

func (r *memoryLedgerRepo) newID() string {
	r.nextID++
	return fmt.Sprintf("id-%d", r.nextID)
}

func (r *memoryLedgerRepo) CreateCustomer(ctx context.Context, name, phone string) (*Customer, error) {
	now := time.Now()
	c := &Customer{ID: r.newID(), Name: name, Phone: phone, CreatedAt: now, UpdatedAt: now}
	r.customers[c.ID] = c
	return c, nil
}

func (r *memoryLedgerRepo) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	c, ok := r.customers[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *memoryLedgerRepo) UpdateCustomerProfile(ctx context.Context, id, name, phone string) error {
	c, ok := r.customers[id]
	if !ok {
		return shared.ErrNotFound
	}
	c.Name = name
	c.Phone = phone
	c.UpdatedAt = time.Now()
	return nil
}

func (r *memoryLedgerRepo) DeleteCustomerCascade(ctx context.Context, id string) error {
	if _, ok := r.customers[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.txs, id)
	delete(r.customers, id)
	return nil
}

func (r *memoryLedgerRepo) AppendTransaction(ctx context.Context, customerID string, input RecordTransactionInput, delta float64) (*Transaction, error) {
	c, ok := r.customers[customerID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	t := Transaction{
		ID:          r.newID(),
		CustomerID:  customerID,
		Amount:      input.Amount,
		Type:        input.Type,
		Description: input.Description,
		Date:        input.Date,
		Items:       input.Items,
	}
	r.txs[customerID] = append(r.txs[customerID], t)
	c.RunningDue += delta
	c.UpdatedAt = time.Now()
	return &t, nil
}

func (r *memoryLedgerRepo) SetRunningDue(ctx context.Context, customerID string, balance float64) error {
	c, ok := r.customers[customerID]
	if !ok {
		return shared.ErrNotFound
	}
	c.RunningDue = balance
	c.UpdatedAt = time.Now()
	return nil
}

func (r *memoryLedgerRepo) ListCustomers(ctx context.Context) ([]Customer, error) {
	var out []Customer
	for _, c := range r.customers {
		out = append(out, *c)
	}
	return out, nil
}

func (r *memoryLedgerRepo) ListTransactions(ctx context.Context, customerID string) ([]Transaction, error) {
	txs := append([]Transaction(nil), r.txs[customerID]...)
	for i, j := 0, len(txs)-1; i < j; i, j = i+1, j-1 {
		txs[i], txs[j] = txs[j], txs[i]
	}
	return txs, nil
}

func (r *memoryLedgerRepo) ListAllTransactions(ctx context.Context) ([]Transaction, error) {
	var out []Transaction
	for _, txs := range r.txs {
		out = append(out, txs...)
	}
	return out, nil
}

type countingInvalidator struct {
	bumps int
}

func (c *countingInvalidator) Bump(ctx context.Context) error {
	c.bumps++
	return nil
}

func TestCreateCustomerStartsAtZero(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)

	customer, err := svc.CreateCustomer(ctx, CreateCustomerInput{Name: "  Rahim ", Phone: "01712345678"})
	require.NoError(t, err)
	require.Equal(t, "Rahim", customer.Name)
	require.Equal(t, 0.0, customer.RunningDue)
}

func TestCreateCustomerRejectsBlankName(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryLedgerRepo(), nil, nil)

	_, err := svc.CreateCustomer(ctx, CreateCustomerInput{Name: "   "})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "name", verr.Field)
}

func TestRecordTransactionAdjustsRunningDue(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)

	customer, err := svc.CreateCustomer(ctx, CreateCustomerInput{Name: "Rahim", Phone: "01712345678"})
	require.NoError(t, err)

	entry, err := svc.RecordTransaction(ctx, customer.ID, RecordTransactionInput{
		Amount:      500,
		Type:        TxTypeDue,
		Description: "Rice",
	})
	require.NoError(t, err)
	require.Equal(t, 500.0, entry.Amount)
	require.Equal(t, TxTypeDue, entry.Type)
	require.False(t, entry.Date.IsZero(), "date defaults to write time")

	updated, err := svc.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	require.Equal(t, 500.0, updated.RunningDue)

	_, err = svc.RecordTransaction(ctx, customer.ID, RecordTransactionInput{Amount: 200, Type: TxTypePaid})
	require.NoError(t, err)

	updated, err = svc.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	require.Equal(t, 300.0, updated.RunningDue)

	history, err := svc.ListTransactions(ctx, customer.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestRecordTransactionRejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)

	customer, _ := svc.CreateCustomer(ctx, CreateCustomerInput{Name: "Rahim"})
	_, _ = svc.RecordTransaction(ctx, customer.ID, RecordTransactionInput{Amount: 300, Type: TxTypeDue})

	_, err := svc.RecordTransaction(ctx, customer.ID, RecordTransactionInput{Amount: -5, Type: TxTypeDue})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "amount", verr.Field)

	_, err = svc.RecordTransaction(ctx, customer.ID, RecordTransactionInput{Amount: 0, Type: TxTypePaid})
	require.ErrorAs(t, err, &verr)

	unchanged, err := svc.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	require.Equal(t, 300.0, unchanged.RunningDue)
}

func TestRecordTransactionRejectsUnknownType(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)

	customer, _ := svc.CreateCustomer(ctx, CreateCustomerInput{Name: "Rahim"})
	_, err := svc.RecordTransaction(ctx, customer.ID, RecordTransactionInput{Amount: 100, Type: "LOAN"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "type", verr.Field)
}

func TestRecordTransactionUnknownCustomer(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryLedgerRepo(), nil, nil)

	_, err := svc.RecordTransaction(ctx, "missing", RecordTransactionInput{Amount: 100, Type: TxTypeDue})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOverpaymentDrivesBalanceNegative(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)

	customer, _ := svc.CreateCustomer(ctx, CreateCustomerInput{Name: "Karim"})
	_, err := svc.RecordTransaction(ctx, customer.ID, RecordTransactionInput{Amount: 100, Type: TxTypeDue})
	require.NoError(t, err)

	// No clamping: paying more than the due leaves the customer in credit.
	_, err = svc.RecordTransaction(ctx, customer.ID, RecordTransactionInput{Amount: 250, Type: TxTypePaid})
	require.NoError(t, err)

	updated, err := svc.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	require.Equal(t, -150.0, updated.RunningDue)
}

func TestBalanceMatchesFoldAfterManyWrites(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)

	customer, _ := svc.CreateCustomer(ctx, CreateCustomerInput{Name: "Jamila"})
	amounts := []struct {
		amount float64
		typ    TxType
	}{
		{500, TxTypeDue}, {120, TxTypePaid}, {75.5, TxTypeDue},
		{300, TxTypePaid}, {42, TxTypeDue}, {42, TxTypePaid},
	}
	for _, a := range amounts {
		_, err := svc.RecordTransaction(ctx, customer.ID, RecordTransactionInput{Amount: a.amount, Type: a.typ})
		require.NoError(t, err)
	}

	updated, err := svc.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	history, err := svc.ListTransactions(ctx, customer.ID)
	require.NoError(t, err)
	require.InDelta(t, FoldBalance(history), updated.RunningDue, 1e-9)
}

func TestUpdateCustomerDoesNotTouchBalance(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)

	customer, _ := svc.CreateCustomer(ctx, CreateCustomerInput{Name: "Rahim", Phone: "017"})
	_, _ = svc.RecordTransaction(ctx, customer.ID, RecordTransactionInput{Amount: 500, Type: TxTypeDue})

	err := svc.UpdateCustomer(ctx, customer.ID, UpdateCustomerInput{Name: "Rahim Mia", Phone: "018"})
	require.NoError(t, err)

	updated, err := svc.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	require.Equal(t, "Rahim Mia", updated.Name)
	require.Equal(t, "018", updated.Phone)
	require.Equal(t, 500.0, updated.RunningDue)

	err = svc.UpdateCustomer(ctx, "missing", UpdateCustomerInput{Name: "X"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteCustomerCascades(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)

	customer, _ := svc.CreateCustomer(ctx, CreateCustomerInput{Name: "Rahim"})
	for i := 0; i < 3; i++ {
		_, err := svc.RecordTransaction(ctx, customer.ID, RecordTransactionInput{Amount: 100, Type: TxTypeDue})
		require.NoError(t, err)
	}

	require.NoError(t, svc.DeleteCustomer(ctx, customer.ID))

	history, err := svc.ListTransactions(ctx, customer.ID)
	require.NoError(t, err)
	require.Empty(t, history)

	customers, err := svc.ListCustomers(ctx)
	require.NoError(t, err)
	require.Empty(t, customers)

	require.ErrorIs(t, svc.DeleteCustomer(ctx, customer.ID), shared.ErrNotFound)
}

func TestPaymentDropsItemizedLines(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)

	customer, _ := svc.CreateCustomer(ctx, CreateCustomerInput{Name: "Rahim"})

	entry, err := svc.RecordTransaction(ctx, customer.ID, RecordTransactionInput{
		Amount: 150,
		Type:   TxTypeDue,
		Items:  []LineItem{{Name: "Rice", Amount: 100}, {Name: "Oil", Amount: 50}},
	})
	require.NoError(t, err)
	require.Len(t, entry.Items, 2)

	paid, err := svc.RecordTransaction(ctx, customer.ID, RecordTransactionInput{
		Amount: 50,
		Type:   TxTypePaid,
		Items:  []LineItem{{Name: "ignored", Amount: 50}},
	})
	require.NoError(t, err)
	require.Nil(t, paid.Items)
}

func TestRecomputeBalanceRepairsDrift(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	inval := &countingInvalidator{}
	svc := NewService(repo, inval, nil)

	customer, _ := svc.CreateCustomer(ctx, CreateCustomerInput{Name: "Rahim"})
	_, _ = svc.RecordTransaction(ctx, customer.ID, RecordTransactionInput{Amount: 500, Type: TxTypeDue})
	_, _ = svc.RecordTransaction(ctx, customer.ID, RecordTransactionInput{Amount: 200, Type: TxTypePaid})

	// Simulate a partial write: history grew but the balance update was lost.
	repo.customers[customer.ID].RunningDue = 999

	balance, err := svc.RecomputeBalance(ctx, customer.ID)
	require.NoError(t, err)
	require.Equal(t, 300.0, balance)

	repaired, err := svc.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	require.Equal(t, 300.0, repaired.RunningDue)

	// Idempotent when consistent.
	bumpsBefore := inval.bumps
	balance, err = svc.RecomputeBalance(ctx, customer.ID)
	require.NoError(t, err)
	require.Equal(t, 300.0, balance)
	require.Equal(t, bumpsBefore, inval.bumps, "no cache bump when nothing changed")
}

func TestMutationsBumpDashboardCache(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	inval := &countingInvalidator{}
	svc := NewService(repo, inval, nil)

	customer, err := svc.CreateCustomer(ctx, CreateCustomerInput{Name: "Rahim"})
	require.NoError(t, err)
	require.Equal(t, 1, inval.bumps)

	_, err = svc.RecordTransaction(ctx, customer.ID, RecordTransactionInput{Amount: 10, Type: TxTypeDue})
	require.NoError(t, err)
	require.Equal(t, 2, inval.bumps)

	require.NoError(t, svc.DeleteCustomer(ctx, customer.ID))
	require.Equal(t, 3, inval.bumps)
}

func TestFoldBalance(t *testing.T) {
	txs := []Transaction{
		{Amount: 500, Type: TxTypeDue},
		{Amount: 200, Type: TxTypePaid},
		{Amount: 50, Type: TxTypeDue},
	}
	require.Equal(t, 350.0, FoldBalance(txs))
	require.Equal(t, 0.0, FoldBalance(nil))
}
