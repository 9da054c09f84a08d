package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Mutation is one requested ledger movement. Amount is positive for every
// kind except manual_adjustment, which may be signed.
type Mutation struct {
	UserID         snowflake.ID
	Kind           TransactionKind
	Amount         int64
	Currency       string
	IdempotencyKey string
	Reference      *string
	Detail         map[string]any
	ActorType      string
	ActorID        *string
}

// Result is the post-mutation balance snapshot. Replayed is true when the
// idempotency key had already been applied and the original outcome was
// returned instead of a second application.
type Result struct {
	TransactionID    snowflake.ID `json:"transaction_id"`
	Replayed         bool         `json:"replayed"`
	TotalEarned      int64        `json:"total_earned"`
	TotalWithdrawn   int64        `json:"total_withdrawn"`
	PendingBalance   int64        `json:"pending_balance"`
	AvailableBalance int64        `json:"available_balance"`
}

type ListTransactionsRequest struct {
	UserID snowflake.ID
	Kind   TransactionKind
	Limit  int
	Offset int
}

type Service interface {
	// Apply runs one mutation in its own database transaction.
	Apply(ctx context.Context, m Mutation) (*Result, error)
	// ApplyTx runs one mutation inside the caller's transaction so a ledger
	// movement can commit atomically with the caller's own rows.
	ApplyTx(ctx context.Context, tx *gorm.DB, m Mutation) (*Result, error)
	Get(ctx context.Context, userID snowflake.ID) (*Wallet, error)
	ListTransactions(ctx context.Context, req ListTransactionsRequest) ([]WalletTransaction, error)
}

type Repository interface {
	FindWalletByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Wallet, error)
	// LockWalletByUser acquires the exclusive row lock for one mutation.
	LockWalletByUser(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (*Wallet, error)
	CreateWallet(ctx context.Context, tx *gorm.DB, wallet *Wallet) error
	// UpdateWalletVersioned persists new balances guarded by the version
	// counter read under the lock.
	UpdateWalletVersioned(ctx context.Context, tx *gorm.DB, wallet *Wallet, fromVersion int64) error
	InsertTransaction(ctx context.Context, tx *gorm.DB, txn *WalletTransaction) error
	FindTransactionByKey(ctx context.Context, db *gorm.DB, key string, kind TransactionKind) (*WalletTransaction, error)
	ListTransactions(ctx context.Context, db *gorm.DB, req ListTransactionsRequest) ([]WalletTransaction, error)
}

var (
	ErrWalletNotFound    = errors.New("wallet_not_found")
	ErrInsufficientFunds = errors.New("insufficient_funds")
	// ErrConflict marks a mutation that would break a ledger invariant.
	// Correct callers never trigger it; it is logged as an anomaly.
	ErrConflict           = errors.New("ledger_conflict")
	ErrInvalidMutation    = errors.New("invalid_mutation")
	ErrInvalidIdempotency = errors.New("invalid_idempotency_key")
)
