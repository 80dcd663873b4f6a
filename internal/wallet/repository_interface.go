package wallet

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type Repository interface {
	GetOrCreateWallet(ctx context.Context, studentID int) (*Wallet, error)
	GetWallet(ctx context.Context, studentID int) (*Wallet, error)
	ListTransactions(ctx context.Context, walletID, limit, offset int) ([]Transaction, error)
	SpentToday(ctx context.Context, walletID int, bucket BucketType, dayStart, dayEnd time.Time) (decimal.Decimal, error)
	UpdateSettings(ctx context.Context, walletID int, currency string, dailyLimit decimal.Decimal) error
	ExternalRefsExist(ctx context.Context, refs []string) (bool, error)

	// RunInTx runs fn in one database transaction. fn's writes commit
	// together when it returns nil and are rolled back otherwise.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the ledger store bound to an open transaction. Bucket locks are
// only reachable through it.
type Tx interface {
	GetOrCreateWallet(ctx context.Context, studentID int) (*Wallet, error)

	// LockBucket returns the bucket row locked until the transaction ends.
	// Lockers of other buckets of the same wallet are not blocked.
	LockBucket(ctx context.Context, walletID int, bucket BucketType) (*Bucket, error)
	SetBucketBalance(ctx context.Context, bucketID int, balance decimal.Decimal) error
	InsertTransaction(ctx context.Context, t *Transaction) error
	SpentToday(ctx context.Context, walletID int, bucket BucketType, dayStart, dayEnd time.Time) (decimal.Decimal, error)
	UpdateSettings(ctx context.Context, walletID int, currency string, dailyLimit decimal.Decimal) error

	// Ext exposes the transaction to collaborators that write their own
	// rows in the same unit.
	Ext() sqlx.ExtContext
}
