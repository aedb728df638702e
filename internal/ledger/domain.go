package ledger

import (
	"fmt"
	"time"
)

// TxType enumerates ledger entry kinds. DUE increases what the customer
// owes (baki), PAID decreases it (porishodh).
type TxType string

const (
	TxTypeDue  TxType = "DUE"
	TxTypePaid TxType = "PAID"
)

// Valid reports whether the type is one of the known ledger entry kinds.
func (t TxType) Valid() bool {
	return t == TxTypeDue || t == TxTypePaid
}

// Customer model. RunningDue is a denormalized fold over the customer's
// transaction history; FoldBalance is the authoritative recomputation.
type Customer struct {
	ID         string
	Name       string
	Phone      string
	RunningDue float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LineItem is one entry of an itemized baki transaction.
type LineItem struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// Transaction model. Immutable once written: nothing in this package updates
// or deletes a single transaction; history only ever grows, except for the
// bulk removal that accompanies customer deletion.
type Transaction struct {
	ID          string
	CustomerID  string
	Amount      float64
	Type        TxType
	Description string
	Date        time.Time
	Items       []LineItem
}

// IsDue reports whether the entry increases the balance.
func (t Transaction) IsDue() bool {
	return t.Type == TxTypeDue
}

// Delta returns the signed effect of the entry on the running due.
func (t Transaction) Delta() float64 {
	if t.Type == TxTypeDue {
		return t.Amount
	}
	return -t.Amount
}

// DisplayDescription substitutes a type-based placeholder when the operator
// left the description blank.
func (t Transaction) DisplayDescription() string {
	if t.Description != "" {
		return t.Description
	}
	if t.Type == TxTypeDue {
		return "Baki added"
	}
	return "Payment received"
}

// FoldBalance recomputes a running due from transaction history. The stored
// Customer.RunningDue must always equal this fold; the reconcile job and the
// tests compare against it.
func FoldBalance(txs []Transaction) float64 {
	var balance float64
	for _, t := range txs {
		balance += t.Delta()
	}
	return balance
}

// CreateCustomerInput for opening a new khata page.
type CreateCustomerInput struct {
	Name  string
	Phone string
}

// UpdateCustomerInput edits profile fields only; the running due is never
// written through this path.
type UpdateCustomerInput struct {
	Name  string
	Phone string
}

// RecordTransactionInput for appending a ledger entry. A zero Date means
// "now"; Items are only meaningful for DUE entries.
type RecordTransactionInput struct {
	Amount      float64
	Type        TxType
	Description string
	Date        time.Time
	Items       []LineItem
}

// ValidationError reports caller input that violates a precondition. It is
// raised before any write, so state is never touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ledger: invalid %s: %s", e.Field, e.Reason)
}
