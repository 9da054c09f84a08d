package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/draftworks/meridian/internal/audit/domain"
	"github.com/draftworks/meridian/internal/observability"
	walletdomain "github.com/draftworks/meridian/internal/wallet/domain"
	pkgdb "github.com/draftworks/meridian/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     walletdomain.Repository
	AuditSvc auditdomain.Service
	Metrics  *observability.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     walletdomain.Repository
	auditSvc auditdomain.Service
	metrics  *observability.Metrics
}

func NewService(p Params) walletdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("wallet.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) Apply(ctx context.Context, m walletdomain.Mutation) (*walletdomain.Result, error) {
	if err := validateMutation(m); err != nil {
		return nil, err
	}

	// Idempotency pre-check runs before the lock so replays never contend
	// on the wallet row.
	existing, err := s.repo.FindTransactionByKey(ctx, s.db, m.IdempotencyKey, m.Kind)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return replayResult(existing), nil
	}

	var result *walletdomain.Result
	err = s.db.Transaction(func(tx *gorm.DB) error {
		applied, txErr := s.applyLocked(ctx, tx, m)
		if txErr != nil {
			return txErr
		}
		result = applied
		return nil
	})
	if pkgdb.IsDuplicateKeyErr(err) {
		// Lost an insert race against a concurrent replay of the same key.
		// The winner's row is authoritative.
		existing, findErr := s.repo.FindTransactionByKey(ctx, s.db, m.IdempotencyKey, m.Kind)
		if findErr != nil {
			return nil, findErr
		}
		if existing != nil {
			return replayResult(existing), nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordLedgerTransaction(string(m.Kind))
	}
	return result, nil
}

func (s *Service) ApplyTx(ctx context.Context, tx *gorm.DB, m walletdomain.Mutation) (*walletdomain.Result, error) {
	if err := validateMutation(m); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindTransactionByKey(ctx, tx, m.IdempotencyKey, m.Kind)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return replayResult(existing), nil
	}

	result, err := s.applyLocked(ctx, tx, m)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordLedgerTransaction(string(m.Kind))
	}
	return result, nil
}

func (s *Service) Get(ctx context.Context, userID snowflake.ID) (*walletdomain.Wallet, error) {
	wallet, err := s.repo.FindWalletByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, walletdomain.ErrWalletNotFound
	}
	return wallet, nil
}

func (s *Service) ListTransactions(ctx context.Context, req walletdomain.ListTransactionsRequest) ([]walletdomain.WalletTransaction, error) {
	return s.repo.ListTransactions(ctx, s.db, req)
}

// applyLocked holds the wallet row lock for exactly one read-compute-write
// cycle.
func (s *Service) applyLocked(ctx context.Context, tx *gorm.DB, m walletdomain.Mutation) (*walletdomain.Result, error) {
	wallet, err := s.repo.LockWalletByUser(ctx, tx, m.UserID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		if m.Kind != walletdomain.KindCreditEarned {
			return nil, walletdomain.ErrWalletNotFound
		}
		wallet = &walletdomain.Wallet{
			ID:        s.genID.Generate(),
			UserID:    m.UserID,
			Currency:  strings.ToUpper(strings.TrimSpace(m.Currency)),
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}
		if err := s.repo.CreateWallet(ctx, tx, wallet); err != nil {
			return nil, err
		}
	}

	before, after, err := mutateBalances(wallet, m)
	if err != nil {
		if err == walletdomain.ErrConflict {
			s.log.Error("ledger invariant violation",
				zap.String("kind", string(m.Kind)),
				zap.Int64("amount", m.Amount),
				zap.String("user_id", m.UserID.String()),
				zap.String("idempotency_key", m.IdempotencyKey),
			)
		}
		return nil, err
	}

	fromVersion := wallet.Version
	wallet.Version++
	if err := s.repo.UpdateWalletVersioned(ctx, tx, wallet, fromVersion); err != nil {
		return nil, err
	}

	metadata := map[string]any{}
	for key, value := range m.Detail {
		if key == "" {
			continue
		}
		metadata[key] = value
	}
	metadata["total_earned"] = wallet.TotalEarned
	metadata["total_withdrawn"] = wallet.TotalWithdrawn
	metadata["pending_balance"] = wallet.PendingBalance

	txn := &walletdomain.WalletTransaction{
		ID:             s.genID.Generate(),
		WalletID:       wallet.ID,
		UserID:         wallet.UserID,
		Kind:           m.Kind,
		Amount:         m.Amount,
		BalanceBefore:  before,
		BalanceAfter:   after,
		IdempotencyKey: m.IdempotencyKey,
		Reference:      m.Reference,
		Metadata:       datatypes.JSONMap(metadata),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}

	txnID := txn.ID.String()
	auditDetail := map[string]any{
		"kind":            string(m.Kind),
		"amount":          m.Amount,
		"transaction_id":  txnID,
		"idempotency_key": m.IdempotencyKey,
	}
	if err := s.auditSvc.RecordTx(ctx, tx, auditdomain.Entry{
		ActorType: m.ActorType,
		ActorID:   m.ActorID,
		UserID:    m.UserID,
		Action:    "wallet." + string(m.Kind),
		Reference: m.Reference,
		Detail:    auditDetail,
	}); err != nil {
		s.log.Warn("wallet audit write failed", zap.Error(err))
	}

	return &walletdomain.Result{
		TransactionID:    txn.ID,
		TotalEarned:      wallet.TotalEarned,
		TotalWithdrawn:   wallet.TotalWithdrawn,
		PendingBalance:   wallet.PendingBalance,
		AvailableBalance: wallet.AvailableBalance(),
	}, nil
}

// mutateBalances applies one kind to the wallet aggregates and returns the
// before/after snapshot of the sub-balance it affects.
func mutateBalances(wallet *walletdomain.Wallet, m walletdomain.Mutation) (before, after int64, err error) {
	switch m.Kind {
	case walletdomain.KindCreditEarned:
		before = wallet.TotalEarned
		wallet.TotalEarned += m.Amount
		after = wallet.TotalEarned

	case walletdomain.KindPlatformCommission:
		// Informational: commission never enters the seller wallet, the
		// row only records what the platform took off the gross.
		before = wallet.TotalEarned
		after = wallet.TotalEarned

	case walletdomain.KindLockWithdrawal:
		if m.Amount > wallet.AvailableBalance() {
			return 0, 0, walletdomain.ErrInsufficientFunds
		}
		before = wallet.PendingBalance
		wallet.PendingBalance += m.Amount
		after = wallet.PendingBalance

	case walletdomain.KindUnlockWithdrawal:
		if m.Amount > wallet.PendingBalance {
			return 0, 0, walletdomain.ErrConflict
		}
		before = wallet.PendingBalance
		wallet.PendingBalance -= m.Amount
		after = wallet.PendingBalance

	case walletdomain.KindDebitWithdrawn:
		if m.Amount > wallet.PendingBalance {
			return 0, 0, walletdomain.ErrConflict
		}
		before = wallet.TotalWithdrawn
		wallet.PendingBalance -= m.Amount
		wallet.TotalWithdrawn += m.Amount
		after = wallet.TotalWithdrawn

	case walletdomain.KindManualAdjustment:
		before = wallet.TotalEarned
		wallet.TotalEarned += m.Amount
		if wallet.AvailableBalance() < 0 {
			return 0, 0, walletdomain.ErrConflict
		}
		after = wallet.TotalEarned

	default:
		return 0, 0, walletdomain.ErrInvalidMutation
	}
	return before, after, nil
}

func validateMutation(m walletdomain.Mutation) error {
	if m.UserID == 0 {
		return walletdomain.ErrInvalidMutation
	}
	if strings.TrimSpace(m.IdempotencyKey) == "" {
		return walletdomain.ErrInvalidIdempotency
	}
	switch m.Kind {
	case walletdomain.KindManualAdjustment:
		if m.Amount == 0 {
			return walletdomain.ErrInvalidMutation
		}
	case walletdomain.KindCreditEarned,
		walletdomain.KindDebitWithdrawn,
		walletdomain.KindLockWithdrawal,
		walletdomain.KindUnlockWithdrawal:
		if m.Amount <= 0 {
			return walletdomain.ErrInvalidMutation
		}
	case walletdomain.KindPlatformCommission:
		if m.Amount < 0 {
			return walletdomain.ErrInvalidMutation
		}
	default:
		return walletdomain.ErrInvalidMutation
	}
	return nil
}

// replayResult rebuilds the original outcome from the stored transaction so
// a retried request observes the exact balances it saw the first time.
func replayResult(txn *walletdomain.WalletTransaction) *walletdomain.Result {
	earned := metaInt64(txn.Metadata, "total_earned")
	withdrawn := metaInt64(txn.Metadata, "total_withdrawn")
	pending := metaInt64(txn.Metadata, "pending_balance")
	return &walletdomain.Result{
		TransactionID:    txn.ID,
		Replayed:         true,
		TotalEarned:      earned,
		TotalWithdrawn:   withdrawn,
		PendingBalance:   pending,
		AvailableBalance: earned - withdrawn - pending,
	}
}

func metaInt64(metadata datatypes.JSONMap, key string) int64 {
	switch v := metadata[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
