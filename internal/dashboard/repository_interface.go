package dashboard

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository reads ledger aggregates straight from wallet_transactions.
type Repository interface {
	// ExpenseTotal sums EXPENSE debits of every bucket over [from, to).
	ExpenseTotal(ctx context.Context, walletID int, from, to time.Time) (decimal.Decimal, error)

	// DepositsByBucket sums the credits actorID made to the wallet over
	// [from, to), plan allocations included, one row per bucket.
	DepositsByBucket(ctx context.Context, walletID, actorID int, from, to time.Time) ([]BucketTotal, error)
}
