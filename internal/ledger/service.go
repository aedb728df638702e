package ledger

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// RepositoryPort defines data access methods for the ledger.
type RepositoryPort interface {
	CreateCustomer(ctx context.Context, name, phone string) (*Customer, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	UpdateCustomerProfile(ctx context.Context, id, name, phone string) error
	DeleteCustomerCascade(ctx context.Context, id string) error
	AppendTransaction(ctx context.Context, customerID string, input RecordTransactionInput, delta float64) (*Transaction, error)
	SetRunningDue(ctx context.Context, customerID string, balance float64) error
	ListCustomers(ctx context.Context) ([]Customer, error)
	ListTransactions(ctx context.Context, customerID string) ([]Transaction, error)
	ListAllTransactions(ctx context.Context) ([]Transaction, error)
}

// CacheInvalidator is notified after every successful mutation so derived
// read models (the dashboard) drop their cached copies.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// Service is the sole writer of transaction history and of the derived
// running due; it guarantees the two never silently diverge.
type Service struct {
	repo        RepositoryPort
	invalidator CacheInvalidator
	logger      *slog.Logger
}

// NewService builds a Service instance. invalidator may be nil.
func NewService(repo RepositoryPort, invalidator CacheInvalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, invalidator: invalidator, logger: logger}
}

// CreateCustomer opens a khata page for a new customer with a zero balance.
func (s *Service) CreateCustomer(ctx context.Context, input CreateCustomerInput) (*Customer, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	customer, err := s.repo.CreateCustomer(ctx, name, strings.TrimSpace(input.Phone))
	if err != nil {
		return nil, err
	}
	s.bumpCache(ctx)
	return customer, nil
}

// UpdateCustomer overwrites profile fields. The running due and the
// transaction history are not reachable from this path.
func (s *Service) UpdateCustomer(ctx context.Context, id string, input UpdateCustomerInput) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if err := s.repo.UpdateCustomerProfile(ctx, id, name, strings.TrimSpace(input.Phone)); err != nil {
		return err
	}
	s.bumpCache(ctx)
	return nil
}

// DeleteCustomer removes the customer and every transaction they own.
// Transactions go first so the customer never leaves orphans behind; the
// repository performs both deletes in a single store transaction.
func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	if err := s.repo.DeleteCustomerCascade(ctx, id); err != nil {
		return err
	}
	s.bumpCache(ctx)
	return nil
}

// RecordTransaction appends an immutable ledger entry and adjusts the
// running due by the signed amount as one logical unit. No floor or ceiling
// applies: a payment larger than the current due drives the balance
// negative, which stands for customer credit.
func (s *Service) RecordTransaction(ctx context.Context, customerID string, input RecordTransactionInput) (*Transaction, error) {
	if input.Amount <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if !input.Type.Valid() {
		return nil, &ValidationError{Field: "type", Reason: "must be DUE or PAID"}
	}
	if _, err := s.repo.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	if input.Date.IsZero() {
		input.Date = time.Now()
	}
	if input.Type == TxTypePaid {
		input.Items = nil
	}

	delta := input.Amount
	if input.Type == TxTypePaid {
		delta = -input.Amount
	}
	tx, err := s.repo.AppendTransaction(ctx, customerID, input, delta)
	if err != nil {
		return nil, err
	}
	s.bumpCache(ctx)
	return tx, nil
}

// GetCustomer fetches a single customer.
func (s *Service) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// ListCustomers returns all customers, most recently active first.
func (s *Service) ListCustomers(ctx context.Context) ([]Customer, error) {
	return s.repo.ListCustomers(ctx)
}

// ListTransactions returns one customer's ledger, newest entry first.
func (s *Service) ListTransactions(ctx context.Context, customerID string) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, customerID)
}

// ListAllTransactions returns the whole shop's history across customers.
func (s *Service) ListAllTransactions(ctx context.Context) ([]Transaction, error) {
	return s.repo.ListAllTransactions(ctx)
}

// RecomputeBalance folds the customer's history and, when the stored running
// due has drifted from it, writes the recomputed value back. It returns the
// authoritative balance. Safe to run repeatedly.
func (s *Service) RecomputeBalance(ctx context.Context, customerID string) (float64, error) {
	customer, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return 0, err
	}
	txs, err := s.repo.ListTransactions(ctx, customerID)
	if err != nil {
		return 0, err
	}
	balance := FoldBalance(txs)
	if balance == customer.RunningDue {
		return balance, nil
	}
	s.logger.Warn("running due drifted from history",
		slog.String("customer_id", customerID),
		slog.Float64("stored", customer.RunningDue),
		slog.Float64("recomputed", balance))
	if err := s.repo.SetRunningDue(ctx, customerID, balance); err != nil {
		return 0, err
	}
	s.bumpCache(ctx)
	return balance, nil
}

func (s *Service) bumpCache(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Bump(ctx); err != nil {
		s.logger.Warn("dashboard cache bump", slog.Any("error", err))
	}
}
