package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"allowance/internal/db"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const externalRefConstraint = "uniq_wallet_txn_external_ref"

const txColumns = `id, wallet_id, actor_id, bucket_type, direction, txn_type, amount, description, external_ref, metadata, created_at`

// queries holds the statements shared by the pooled and the transactional
// store.
type queries struct {
	ext sqlx.ExtContext
}

func (q queries) getWallet(ctx context.Context, studentID int) (*Wallet, error) {
	var w Wallet
	err := sqlx.GetContext(ctx, q.ext, &w,
		`SELECT id, student_id, currency, daily_limit, created_at FROM wallets WHERE student_id = $1`,
		studentID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}

	if err := q.loadBuckets(ctx, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (q queries) loadBuckets(ctx context.Context, w *Wallet) error {
	buckets := []Bucket{}
	err := sqlx.SelectContext(ctx, q.ext, &buckets,
		`SELECT id, wallet_id, bucket_type, balance, updated_at FROM wallet_buckets WHERE wallet_id = $1 ORDER BY id`,
		w.ID,
	)
	if err != nil {
		return err
	}
	w.Buckets = buckets
	return nil
}

func (q queries) listTransactions(ctx context.Context, walletID, limit, offset int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	txs := []Transaction{}
	err := sqlx.SelectContext(ctx, q.ext, &txs, `
		SELECT `+txColumns+`
		FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, walletID, limit, offset)
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (q queries) spentToday(ctx context.Context, walletID int, bucket BucketType, dayStart, dayEnd time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := sqlx.GetContext(ctx, q.ext, &total, `
		SELECT COALESCE(SUM(amount), 0)
		FROM wallet_transactions
		WHERE wallet_id = $1 AND bucket_type = $2 AND direction = 'DEBIT' AND txn_type = 'EXPENSE'
		  AND created_at >= $3 AND created_at < $4
	`, walletID, bucket, dayStart, dayEnd)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (q queries) updateSettings(ctx context.Context, walletID int, currency string, dailyLimit decimal.Decimal) error {
	result, err := q.ext.ExecContext(ctx,
		`UPDATE wallets SET currency = $1, daily_limit = $2 WHERE id = $3`,
		currency, dailyLimit, walletID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrWalletNotFound
	}
	return nil
}

type repository struct {
	db *sqlx.DB
	queries
}

func NewRepository(conn *sqlx.DB) Repository {
	return &repository{db: conn, queries: queries{ext: conn}}
}

// GetOrCreateWallet reads the wallet and only opens a transaction when it
// has to be created.
func (r *repository) GetOrCreateWallet(ctx context.Context, studentID int) (*Wallet, error) {
	w, err := r.getWallet(ctx, studentID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	err = r.RunInTx(ctx, func(tx Tx) error {
		var err error
		w, err = tx.GetOrCreateWallet(ctx, studentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *repository) GetWallet(ctx context.Context, studentID int) (*Wallet, error) {
	return r.getWallet(ctx, studentID)
}

func (r *repository) ListTransactions(ctx context.Context, walletID, limit, offset int) ([]Transaction, error) {
	return r.listTransactions(ctx, walletID, limit, offset)
}

func (r *repository) SpentToday(ctx context.Context, walletID int, bucket BucketType, dayStart, dayEnd time.Time) (decimal.Decimal, error) {
	return r.spentToday(ctx, walletID, bucket, dayStart, dayEnd)
}

func (r *repository) UpdateSettings(ctx context.Context, walletID int, currency string, dailyLimit decimal.Decimal) error {
	return r.updateSettings(ctx, walletID, currency, dailyLimit)
}

func (r *repository) ExternalRefsExist(ctx context.Context, refs []string) (bool, error) {
	if len(refs) == 0 {
		return false, nil
	}
	return db.Exists(ctx, r.db,
		`SELECT EXISTS(SELECT 1 FROM wallet_transactions WHERE external_ref = ANY($1))`,
		pq.Array(refs),
	)
}

func (r *repository) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	return db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(&txStore{tx: tx, queries: queries{ext: tx}})
	})
}

type txStore struct {
	tx *sqlx.Tx
	queries
}

// GetOrCreateWallet creates the wallet and all three buckets together, so
// first use never races on bucket creation.
func (s *txStore) GetOrCreateWallet(ctx context.Context, studentID int) (*Wallet, error) {
	_, err := s.tx.ExecContext(ctx,
		`INSERT INTO wallets (student_id) VALUES ($1) ON CONFLICT (student_id) DO NOTHING`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}

	var w Wallet
	err = s.tx.GetContext(ctx, &w,
		`SELECT id, student_id, currency, daily_limit, created_at FROM wallets WHERE student_id = $1`,
		studentID,
	)
	if err != nil {
		return nil, err
	}

	_, err = s.tx.ExecContext(ctx, `
		INSERT INTO wallet_buckets (wallet_id, bucket_type)
		VALUES ($1, 'BILLS'), ($1, 'SAVINGS'), ($1, 'DAILY')
		ON CONFLICT (wallet_id, bucket_type) DO NOTHING
	`, w.ID)
	if err != nil {
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	if err := s.loadBuckets(ctx, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *txStore) LockBucket(ctx context.Context, walletID int, bucket BucketType) (*Bucket, error) {
	_, err := s.tx.ExecContext(ctx,
		`INSERT INTO wallet_buckets (wallet_id, bucket_type) VALUES ($1, $2) ON CONFLICT (wallet_id, bucket_type) DO NOTHING`,
		walletID, bucket,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	var b Bucket
	err = s.tx.GetContext(ctx, &b, `
		SELECT id, wallet_id, bucket_type, balance, updated_at
		FROM wallet_buckets
		WHERE wallet_id = $1 AND bucket_type = $2
		FOR UPDATE
	`, walletID, bucket)
	if err != nil {
		return nil, fmt.Errorf("lock bucket: %w", err)
	}
	return &b, nil
}

func (s *txStore) SetBucketBalance(ctx context.Context, bucketID int, balance decimal.Decimal) error {
	_, err := s.tx.ExecContext(ctx,
		`UPDATE wallet_buckets SET balance = $1, updated_at = NOW() WHERE id = $2`,
		balance, bucketID,
	)
	return err
}

func (s *txStore) InsertTransaction(ctx context.Context, t *Transaction) error {
	if len(t.Metadata) == 0 {
		t.Metadata = []byte("{}")
	}

	err := s.tx.QueryRowxContext(ctx, `
		INSERT INTO wallet_transactions
			(wallet_id, actor_id, bucket_type, direction, txn_type, amount, description, external_ref, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`,
		t.WalletID, t.ActorID, t.Bucket, t.Direction, t.Kind, t.Amount, t.Description, t.ExternalRef, t.Metadata,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, externalRefConstraint) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *txStore) SpentToday(ctx context.Context, walletID int, bucket BucketType, dayStart, dayEnd time.Time) (decimal.Decimal, error) {
	return s.spentToday(ctx, walletID, bucket, dayStart, dayEnd)
}

func (s *txStore) UpdateSettings(ctx context.Context, walletID int, currency string, dailyLimit decimal.Decimal) error {
	return s.updateSettings(ctx, walletID, currency, dailyLimit)
}

func (s *txStore) Ext() sqlx.ExtContext {
	return s.tx
}
