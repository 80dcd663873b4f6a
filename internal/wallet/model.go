package wallet

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

type BucketType string

const (
	BucketBills   BucketType = "BILLS"
	BucketSavings BucketType = "SAVINGS"
	BucketDaily   BucketType = "DAILY"
)

// Buckets lists every bucket type in the order deposits fill them.
var Buckets = []BucketType{BucketBills, BucketSavings, BucketDaily}

func (b BucketType) Valid() bool {
	switch b {
	case BucketBills, BucketSavings, BucketDaily:
		return true
	}
	return false
}

type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

type Kind string

const (
	KindDeposit    Kind = "DEPOSIT"
	KindAllocation Kind = "ALLOCATION"
	KindExpense    Kind = "EXPENSE"
	KindAdjustment Kind = "ADJUSTMENT"
)

const DefaultCurrency = "XAF"

// Wallet belongs to exactly one student and always has its three buckets.
type Wallet struct {
	ID         int             `db:"id" json:"id"`
	StudentID  int             `db:"student_id" json:"student_id"`
	Currency   string          `db:"currency" json:"currency"`
	DailyLimit decimal.Decimal `db:"daily_limit" json:"daily_limit"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`

	Buckets []Bucket `db:"-" json:"buckets"`
}

// Balance returns the balance of bucket t, zero if the bucket is not loaded.
func (w *Wallet) Balance(t BucketType) decimal.Decimal {
	for _, b := range w.Buckets {
		if b.Type == t {
			return b.Balance
		}
	}
	return decimal.Zero
}

type Bucket struct {
	ID        int             `db:"id" json:"-"`
	WalletID  int             `db:"wallet_id" json:"-"`
	Type      BucketType      `db:"bucket_type" json:"bucket_type"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Transaction is one immutable ledger entry.
type Transaction struct {
	ID          int             `db:"id" json:"id"`
	WalletID    int             `db:"wallet_id" json:"wallet_id"`
	ActorID     *int            `db:"actor_id" json:"actor_id"`
	Bucket      BucketType      `db:"bucket_type" json:"bucket_type"`
	Direction   Direction       `db:"direction" json:"direction"`
	Kind        Kind            `db:"txn_type" json:"txn_type"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Description string          `db:"description" json:"description"`
	ExternalRef *string         `db:"external_ref" json:"external_ref"`
	Metadata    types.JSONText  `db:"metadata" json:"metadata"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
