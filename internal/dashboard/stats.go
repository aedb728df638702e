package dashboard

import (
	"sort"
	"time"

	"github.com/dokan-khata/dokan-khata/internal/ledger"
)

// Stats summarises the whole shop for the dashboard.
type Stats struct {
	TotalCustomers int             `json:"total_customers"`
	TotalDue       float64         `json:"total_due"`
	TotalPaid      float64         `json:"total_paid"`
	MonthlyBuckets []MonthlyBucket `json:"monthly_buckets"`
}

// MonthlyBucket accumulates baki and porishodh per calendar month. The
// grouping key is the transaction's own date, never the write time.
type MonthlyBucket struct {
	Year      int        `json:"year"`
	Month     time.Month `json:"month"`
	Label     string     `json:"label"`
	DueTotal  float64    `json:"due_total"`
	PaidTotal float64    `json:"paid_total"`
	earliest  time.Time
}

// ComputeStats reduces customers and transactions into dashboard numbers.
// Pure function of its inputs; it never mutates stored state.
//
// Transactions whose customer id is not in the supplied customer list are
// orphans left behind by a partially-failed delete and are excluded from
// every figure. Transactions without a usable date keep contributing to the
// totals but cannot be bucketed.
func ComputeStats(customers []ledger.Customer, txs []ledger.Transaction) Stats {
	valid := make(map[string]struct{}, len(customers))
	stats := Stats{TotalCustomers: len(customers)}
	for _, c := range customers {
		valid[c.ID] = struct{}{}
		stats.TotalDue += c.RunningDue
	}

	buckets := make(map[int]*MonthlyBucket)
	for _, t := range txs {
		if _, ok := valid[t.CustomerID]; !ok {
			continue
		}
		if !t.IsDue() {
			stats.TotalPaid += t.Amount
		}
		if t.Date.IsZero() {
			continue
		}
		key := t.Date.Year()*100 + int(t.Date.Month())
		bucket, ok := buckets[key]
		if !ok {
			bucket = &MonthlyBucket{
				Year:     t.Date.Year(),
				Month:    t.Date.Month(),
				Label:    t.Date.Format("Jan 06"),
				earliest: t.Date,
			}
			buckets[key] = bucket
		}
		if t.Date.Before(bucket.earliest) {
			bucket.earliest = t.Date
		}
		if t.IsDue() {
			bucket.DueTotal += t.Amount
		} else {
			bucket.PaidTotal += t.Amount
		}
	}

	stats.MonthlyBuckets = make([]MonthlyBucket, 0, len(buckets))
	for _, b := range buckets {
		stats.MonthlyBuckets = append(stats.MonthlyBuckets, *b)
	}
	sort.Slice(stats.MonthlyBuckets, func(i, j int) bool {
		return stats.MonthlyBuckets[i].earliest.Before(stats.MonthlyBuckets[j].earliest)
	})
	return stats
}
