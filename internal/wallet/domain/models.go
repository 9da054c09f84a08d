package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Wallet is one user's earnings account. Balances are lifetime aggregates in
// minor currency units; the spendable figure is always derived, never stored:
//
//	available = total_earned - total_withdrawn - pending_balance
//
// Rows are created lazily on first credit, never deleted, and mutated only by
// the ledger service under a row lock.
type Wallet struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID         snowflake.ID `json:"user_id" gorm:"not null;uniqueIndex"`
	Currency       string       `json:"currency" gorm:"type:text;not null"`
	TotalEarned    int64        `json:"total_earned" gorm:"not null;default:0"`
	TotalWithdrawn int64        `json:"total_withdrawn" gorm:"not null;default:0"`
	PendingBalance int64        `json:"pending_balance" gorm:"not null;default:0"`
	Version        int64        `json:"version" gorm:"not null;default:0"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Wallet) TableName() string { return "wallets" }

func (w Wallet) AvailableBalance() int64 {
	return w.TotalEarned - w.TotalWithdrawn - w.PendingBalance
}

// TransactionKind names one ledger mutation.
type TransactionKind string

const (
	KindCreditEarned       TransactionKind = "credit_earned"
	KindDebitWithdrawn     TransactionKind = "debit_withdrawn"
	KindLockWithdrawal     TransactionKind = "lock_withdrawal"
	KindUnlockWithdrawal   TransactionKind = "unlock_withdrawal"
	KindPlatformCommission TransactionKind = "platform_commission"
	KindManualAdjustment   TransactionKind = "manual_adjustment"
)

// WalletTransaction is the append-only trail. BalanceBefore/BalanceAfter
// snapshot the sub-balance the kind affects (total_earned for credits and
// adjustments, pending_balance for locks/unlocks, total_withdrawn for
// debits). The (idempotency_key, kind) pair is unique: replaying a mutation
// can never create a second row.
type WalletTransaction struct {
	ID             snowflake.ID      `json:"id" gorm:"primaryKey"`
	WalletID       snowflake.ID      `json:"wallet_id" gorm:"not null;index"`
	UserID         snowflake.ID      `json:"user_id" gorm:"not null;index"`
	Kind           TransactionKind   `json:"kind" gorm:"type:text;not null;uniqueIndex:ux_wallet_transactions_key_kind,priority:2"`
	Amount         int64             `json:"amount" gorm:"not null"`
	BalanceBefore  int64             `json:"balance_before" gorm:"not null"`
	BalanceAfter   int64             `json:"balance_after" gorm:"not null"`
	IdempotencyKey string            `json:"idempotency_key" gorm:"type:text;not null;uniqueIndex:ux_wallet_transactions_key_kind,priority:1"`
	Reference      *string           `json:"reference,omitempty" gorm:"type:text;index"`
	Metadata       datatypes.JSONMap `json:"metadata" gorm:"not null"`
	CreatedAt      time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }
