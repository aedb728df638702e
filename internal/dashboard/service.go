package dashboard

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dokan-khata/dokan-khata/internal/ledger"
)

// LedgerReader is the slice of the ledger service the dashboard reads from.
type LedgerReader interface {
	ListCustomers(ctx context.Context) ([]ledger.Customer, error)
	ListAllTransactions(ctx context.Context) ([]ledger.Transaction, error)
}

// Service derives dashboard summaries from stored ledger data. Read-only:
// it owns no state beyond the cache of its own output.
type Service struct {
	reader LedgerReader
	cache  *Cache
}

// NewService wires a LedgerReader with a Cache helper. cache may be nil.
func NewService(reader LedgerReader, cache *Cache) *Service {
	return &Service{reader: reader, cache: cache}
}

// Overview returns the shop-wide stats, served from cache when fresh.
func (s *Service) Overview(ctx context.Context) (Stats, error) {
	loader := func(ctx context.Context) (interface{}, error) {
		customers, txs, err := s.fetch(ctx)
		if err != nil {
			return Stats{}, err
		}
		return ComputeStats(customers, txs), nil
	}

	if s.cache == nil {
		value, err := loader(ctx)
		if err != nil {
			return Stats{}, err
		}
		return value.(Stats), nil
	}

	key, err := s.cache.OverviewKey(ctx)
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	if err := s.cache.FetchJSON(ctx, key, &stats, loader); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// fetch loads customers and the cross-customer transaction feed in parallel.
func (s *Service) fetch(ctx context.Context) ([]ledger.Customer, []ledger.Transaction, error) {
	var (
		customers []ledger.Customer
		txs       []ledger.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		customers, err = s.reader.ListCustomers(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		txs, err = s.reader.ListAllTransactions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return customers, txs, nil
}
