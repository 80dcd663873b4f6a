package dashboard

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(conn *sqlx.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) ExpenseTotal(ctx context.Context, walletID int, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(amount), 0)
		FROM wallet_transactions
		WHERE wallet_id = $1 AND direction = 'DEBIT' AND txn_type = 'EXPENSE'
		  AND created_at >= $2 AND created_at < $3
	`, walletID, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (r *repository) DepositsByBucket(ctx context.Context, walletID, actorID int, from, to time.Time) ([]BucketTotal, error) {
	totals := []BucketTotal{}
	err := r.db.SelectContext(ctx, &totals, `
		SELECT bucket_type, SUM(amount) AS total
		FROM wallet_transactions
		WHERE wallet_id = $1 AND actor_id = $2 AND direction = 'CREDIT'
		  AND txn_type IN ('DEPOSIT', 'ALLOCATION')
		  AND created_at >= $3 AND created_at < $4
		GROUP BY bucket_type
		ORDER BY bucket_type
	`, walletID, actorID, from, to)
	if err != nil {
		return nil, err
	}
	return totals, nil
}
