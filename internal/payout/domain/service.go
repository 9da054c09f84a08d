package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	transferdomain "github.com/draftworks/meridian/internal/providers/transfer/domain"
	"gorm.io/gorm"
)

type RequestPayoutInput struct {
	UserID         snowflake.ID
	Role           string
	Amount         int64
	Channel        transferdomain.Channel
	RecipientName  string
	AccountNumber  string
	BankCode       string
	IdempotencyKey string
}

// EarningsSummary is the user-facing view of a wallet plus the payout rules
// currently in force.
type EarningsSummary struct {
	TotalEarned         int64  `json:"total_earned"`
	TotalWithdrawn      int64  `json:"total_withdrawn"`
	PendingBalance      int64  `json:"pending_balance"`
	AvailableBalance    int64  `json:"available_balance"`
	ReserveAmount       int64  `json:"reserve_amount"`
	WithdrawableBalance int64  `json:"withdrawable_balance"`
	CanCashoutToday     bool   `json:"can_cashout_today"`
	Currency            string `json:"currency"`
}

type ListRequest struct {
	UserID snowflake.ID
	Status PayoutStatus
	Limit  int
	Offset int
}

type Service interface {
	// RequestPayout runs the withdrawal saga up to the first definite
	// outcome. The returned request may be processing, completed or failed.
	RequestPayout(ctx context.Context, in RequestPayoutInput) (*PayoutRequest, error)
	Get(ctx context.Context, userID, id snowflake.ID) (*PayoutRequest, error)
	List(ctx context.Context, req ListRequest) ([]PayoutRequest, error)
	EarningsSummary(ctx context.Context, userID snowflake.ID) (*EarningsSummary, error)
	ListPayoutOptions(ctx context.Context, channel transferdomain.Channel) ([]transferdomain.Bank, error)

	// CompleteByReference and FailByReference are the reconciliation
	// entrypoints driven by webhooks and status polls. Both are idempotent;
	// a transition contradicting a terminal state is ErrInvalidTransition.
	CompleteByReference(ctx context.Context, reference, transferCode, actorType string) error
	FailByReference(ctx context.Context, reference, reason, actorType string) error

	// ForceReconcile polls the provider for one processing request and
	// applies the authoritative outcome.
	ForceReconcile(ctx context.Context, id snowflake.ID) (*PayoutRequest, error)
	// ReconcileStale force-reconciles every processing request older than
	// the policy staleness threshold. Returns how many were inspected.
	ReconcileStale(ctx context.Context) (int, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, req *PayoutRequest) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PayoutRequest, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*PayoutRequest, error)
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*PayoutRequest, error)
	List(ctx context.Context, db *gorm.DB, req ListRequest) ([]PayoutRequest, error)
	// CountActiveSince counts non-failed requests created at or after the
	// cutoff, for the daily-limit rule.
	CountActiveSince(ctx context.Context, db *gorm.DB, userID snowflake.ID, cutoff time.Time) (int64, error)
	HasProcessing(ctx context.Context, db *gorm.DB, userID snowflake.ID) (bool, error)
	ListStaleProcessing(ctx context.Context, db *gorm.DB, olderThan time.Time, limit int) ([]PayoutRequest, error)
	SetRecipientCode(ctx context.Context, db *gorm.DB, id snowflake.ID, recipientCode string) error
	SetTransferCode(ctx context.Context, db *gorm.DB, id snowflake.ID, transferCode string) error
	// TransitionFromProcessing flips the status only if the row is still
	// processing; reports whether this call performed the flip.
	TransitionFromProcessing(ctx context.Context, db *gorm.DB, id snowflake.ID, to PayoutStatus, transferCode, failureReason *string, at time.Time) (bool, error)

	FindProfile(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*PayoutProfile, error)
	UpsertProfile(ctx context.Context, db *gorm.DB, profile *PayoutProfile) error
}

var (
	ErrNotFound              = errors.New("payout_not_found")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrBelowMinimum          = errors.New("amount_below_minimum")
	ErrAlreadyRequestedToday = errors.New("already_requested_today")
	ErrConcurrentRequest     = errors.New("concurrent_payout_request")
	// ErrInvalidTransition marks a reconciliation signal that contradicts a
	// terminal state; the signal is rejected, the row keeps its outcome.
	ErrInvalidTransition = errors.New("invalid_for_state")
)
