package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"allowance/internal/metrics"
	"allowance/internal/money"

	"github.com/shopspring/decimal"
)

// Entry describes one ledger movement on a single bucket.
type Entry struct {
	WalletID    int
	ActorID     *int
	Bucket      BucketType
	Amount      decimal.Decimal
	Kind        Kind
	Description string
	ExternalRef string
	Metadata    map[string]interface{}

	// DailyCap, when set on a DAILY debit, is checked while the bucket is
	// locked.
	DailyCap *DailyCap
}

type DailyCap struct {
	Limit    decimal.Decimal
	DayStart time.Time
	DayEnd   time.Time
}

// Credit adds e.Amount to the bucket and appends one CREDIT row.
func Credit(ctx context.Context, tx Tx, e Entry) (*Transaction, error) {
	return apply(ctx, tx, DirectionCredit, e)
}

// Debit removes e.Amount from the bucket and appends one DEBIT row. Nothing
// is written when the bucket cannot cover the amount.
func Debit(ctx context.Context, tx Tx, e Entry) (*Transaction, error) {
	return apply(ctx, tx, DirectionDebit, e)
}

func apply(ctx context.Context, tx Tx, dir Direction, e Entry) (*Transaction, error) {
	if !e.Bucket.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBucket, e.Bucket)
	}
	amount := money.Round(e.Amount)
	if !money.Positive(amount) {
		return nil, ErrInvalidAmount
	}

	bucket, err := tx.LockBucket(ctx, e.WalletID, e.Bucket)
	if err != nil {
		return nil, err
	}

	var balance decimal.Decimal
	switch dir {
	case DirectionCredit:
		balance = bucket.Balance.Add(amount)
		if balance.GreaterThan(money.Max) {
			return nil, fmt.Errorf("%w: %s bucket would exceed %s", ErrInvalidAmount, e.Bucket, money.Format(money.Max))
		}
	case DirectionDebit:
		if e.DailyCap != nil && e.Bucket == BucketDaily {
			if err := checkCap(ctx, tx, e.WalletID, amount, e.DailyCap); err != nil {
				metrics.RecordRejection("daily_limit")
				return nil, err
			}
		}
		if bucket.Balance.LessThan(amount) {
			metrics.RecordRejection("insufficient_funds")
			return nil, fmt.Errorf("%w: %s bucket has %s, need %s",
				ErrInsufficientFunds, e.Bucket, money.Format(bucket.Balance), money.Format(amount))
		}
		balance = bucket.Balance.Sub(amount)
	}

	if err := tx.SetBucketBalance(ctx, bucket.ID, money.Round(balance)); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return nil, err
	}

	t := &Transaction{
		WalletID:    e.WalletID,
		ActorID:     e.ActorID,
		Bucket:      e.Bucket,
		Direction:   dir,
		Kind:        e.Kind,
		Amount:      amount,
		Description: e.Description,
		Metadata:    meta,
	}
	if e.ExternalRef != "" {
		ref := e.ExternalRef
		t.ExternalRef = &ref
	}

	if err := tx.InsertTransaction(ctx, t); err != nil {
		return nil, err
	}

	metrics.RecordLedgerEntry(string(dir), string(e.Bucket), string(e.Kind), amount.InexactFloat64())
	return t, nil
}

func checkCap(ctx context.Context, tx Tx, walletID int, amount decimal.Decimal, c *DailyCap) error {
	if !money.Positive(c.Limit) {
		return nil
	}
	spent, err := tx.SpentToday(ctx, walletID, BucketDaily, c.DayStart, c.DayEnd)
	if err != nil {
		return fmt.Errorf("spent today: %w", err)
	}
	if spent.Add(amount).GreaterThan(c.Limit) {
		return fmt.Errorf("%w: spent %s of %s today", ErrDailyLimitExceeded, money.Format(spent), money.Format(c.Limit))
	}
	return nil
}

func encodeMetadata(m map[string]interface{}) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}
