package wallet

import (
	"context"
	"sort"
	"sync"
	"time"

	"allowance/internal/money"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

func amt(s string) decimal.Decimal { return money.MustParse(s) }

type memState struct {
	seq     int
	wallets map[int]Wallet
	buckets map[int]map[BucketType]Bucket
	txns    []Transaction
}

func (st memState) clone() memState {
	out := memState{
		seq:     st.seq,
		wallets: make(map[int]Wallet, len(st.wallets)),
		buckets: make(map[int]map[BucketType]Bucket, len(st.buckets)),
		txns:    append([]Transaction(nil), st.txns...),
	}
	for k, v := range st.wallets {
		out.wallets[k] = v
	}
	for k, v := range st.buckets {
		m := make(map[BucketType]Bucket, len(v))
		for bk, b := range v {
			m[bk] = b
		}
		out.buckets[k] = m
	}
	return out
}

// memStore is an in-memory Repository. RunInTx holds one mutex for the
// whole unit and restores the previous state when fn fails.
type memStore struct {
	mu        sync.Mutex
	st        memState
	insertErr error
}

func newMemStore() *memStore {
	return &memStore{st: memState{
		wallets: map[int]Wallet{},
		buckets: map[int]map[BucketType]Bucket{},
	}}
}

func (s *memStore) next() int {
	s.st.seq++
	return s.st.seq
}

func (s *memStore) ensureWallet(studentID int) Wallet {
	w, ok := s.st.wallets[studentID]
	if !ok {
		w = Wallet{ID: s.next(), StudentID: studentID, Currency: DefaultCurrency, CreatedAt: time.Now()}
		s.st.wallets[studentID] = w
	}
	if s.st.buckets[w.ID] == nil {
		s.st.buckets[w.ID] = map[BucketType]Bucket{}
	}
	for _, b := range Buckets {
		if _, ok := s.st.buckets[w.ID][b]; !ok {
			s.st.buckets[w.ID][b] = Bucket{ID: s.next(), WalletID: w.ID, Type: b, UpdatedAt: time.Now()}
		}
	}
	return w
}

func (s *memStore) view(w Wallet) *Wallet {
	out := w
	out.Buckets = nil
	for _, b := range Buckets {
		if bk, ok := s.st.buckets[w.ID][b]; ok {
			out.Buckets = append(out.Buckets, bk)
		}
	}
	return &out
}

func (s *memStore) walletByID(id int) (Wallet, bool) {
	for _, w := range s.st.wallets {
		if w.ID == id {
			return w, true
		}
	}
	return Wallet{}, false
}

func (s *memStore) spent(walletID int, bucket BucketType, start, end time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, t := range s.st.txns {
		if t.WalletID == walletID && t.Bucket == bucket && t.Direction == DirectionDebit && t.Kind == KindExpense &&
			!t.CreatedAt.Before(start) && t.CreatedAt.Before(end) {
			total = total.Add(t.Amount)
		}
	}
	return total
}

func (s *memStore) setSettings(walletID int, currency string, limit decimal.Decimal) error {
	w, ok := s.walletByID(walletID)
	if !ok {
		return ErrWalletNotFound
	}
	w.Currency = currency
	w.DailyLimit = limit
	s.st.wallets[w.StudentID] = w
	return nil
}

// seed sets a bucket balance and records a matching credit so the ledger
// stays consistent.
func (s *memStore) seed(studentID int, bucket BucketType, balance decimal.Decimal) *Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.ensureWallet(studentID)
	b := s.st.buckets[w.ID][bucket]
	b.Balance = b.Balance.Add(balance)
	s.st.buckets[w.ID][bucket] = b
	s.st.txns = append(s.st.txns, Transaction{
		ID: s.next(), WalletID: w.ID, Bucket: bucket, Direction: DirectionCredit,
		Kind: KindDeposit, Amount: balance, CreatedAt: time.Now(),
	})
	return s.view(w)
}

// seedExpense records an expense already spent today.
func (s *memStore) seedExpense(walletID int, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.txns = append(s.st.txns, Transaction{
		ID: s.next(), WalletID: walletID, Bucket: BucketDaily, Direction: DirectionDebit,
		Kind: KindExpense, Amount: amount, CreatedAt: time.Now(),
	})
}

func (s *memStore) balance(studentID int, bucket BucketType) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.st.wallets[studentID]
	if !ok {
		return decimal.Zero
	}
	return s.st.buckets[w.ID][bucket].Balance
}

// ledgerSum is Σ CREDIT − Σ DEBIT for one bucket.
func (s *memStore) ledgerSum(studentID int, bucket BucketType) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.st.wallets[studentID]
	total := decimal.Zero
	for _, t := range s.st.txns {
		if t.WalletID != w.ID || t.Bucket != bucket {
			continue
		}
		if t.Direction == DirectionCredit {
			total = total.Add(t.Amount)
		} else {
			total = total.Sub(t.Amount)
		}
	}
	return total
}

func (s *memStore) txnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.txns)
}

func (s *memStore) GetOrCreateWallet(ctx context.Context, studentID int) (*Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.ensureWallet(studentID)), nil
}

func (s *memStore) GetWallet(ctx context.Context, studentID int) (*Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.st.wallets[studentID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	return s.view(w), nil
}

func (s *memStore) ListTransactions(ctx context.Context, walletID, limit, offset int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Transaction{}
	for _, t := range s.st.txns {
		if t.WalletID == walletID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset >= len(out) {
		return []Transaction{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) SpentToday(ctx context.Context, walletID int, bucket BucketType, dayStart, dayEnd time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spent(walletID, bucket, dayStart, dayEnd), nil
}

func (s *memStore) UpdateSettings(ctx context.Context, walletID int, currency string, dailyLimit decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setSettings(walletID, currency, dailyLimit)
}

func (s *memStore) ExternalRefsExist(ctx context.Context, refs []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.st.txns {
		if t.ExternalRef == nil {
			continue
		}
		for _, r := range refs {
			if *t.ExternalRef == r {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *memStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := s.st.clone()
	if err := fn(&memTx{s: s}); err != nil {
		s.st = saved
		return err
	}
	return nil
}

type memTx struct {
	s *memStore
}

func (t *memTx) GetOrCreateWallet(ctx context.Context, studentID int) (*Wallet, error) {
	return t.s.view(t.s.ensureWallet(studentID)), nil
}

func (t *memTx) LockBucket(ctx context.Context, walletID int, bucket BucketType) (*Bucket, error) {
	if t.s.st.buckets[walletID] == nil {
		t.s.st.buckets[walletID] = map[BucketType]Bucket{}
	}
	b, ok := t.s.st.buckets[walletID][bucket]
	if !ok {
		b = Bucket{ID: t.s.next(), WalletID: walletID, Type: bucket}
		t.s.st.buckets[walletID][bucket] = b
	}
	return &b, nil
}

func (t *memTx) SetBucketBalance(ctx context.Context, bucketID int, balance decimal.Decimal) error {
	for wid, m := range t.s.st.buckets {
		for bt, b := range m {
			if b.ID == bucketID {
				b.Balance = balance
				b.UpdatedAt = time.Now()
				t.s.st.buckets[wid][bt] = b
				return nil
			}
		}
	}
	return ErrWalletNotFound
}

func (t *memTx) InsertTransaction(ctx context.Context, txn *Transaction) error {
	if t.s.insertErr != nil {
		return t.s.insertErr
	}
	if txn.ExternalRef != nil {
		for _, existing := range t.s.st.txns {
			if existing.ExternalRef != nil && *existing.ExternalRef == *txn.ExternalRef {
				return ErrDuplicateReference
			}
		}
	}
	txn.ID = t.s.next()
	txn.CreatedAt = time.Now()
	t.s.st.txns = append(t.s.st.txns, *txn)
	return nil
}

func (t *memTx) SpentToday(ctx context.Context, walletID int, bucket BucketType, dayStart, dayEnd time.Time) (decimal.Decimal, error) {
	return t.s.spent(walletID, bucket, dayStart, dayEnd), nil
}

func (t *memTx) UpdateSettings(ctx context.Context, walletID int, currency string, dailyLimit decimal.Decimal) error {
	return t.s.setSettings(walletID, currency, dailyLimit)
}

func (t *memTx) Ext() sqlx.ExtContext { return nil }
