package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	transferdomain "github.com/draftworks/meridian/internal/providers/transfer/domain"
)

// PayoutStatus is the request lifecycle. Completed and Failed are terminal:
// a failed request is never retried in place, the user submits a new one.
type PayoutStatus string

const (
	StatusProcessing PayoutStatus = "processing"
	StatusCompleted  PayoutStatus = "completed"
	StatusFailed     PayoutStatus = "failed"
)

func (s PayoutStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// PayoutRequest is one withdrawal attempt. GrossEarnings and PriorCashouts
// snapshot the wallet at request time so the row stays auditable even after
// the wallet moves on. Rows are created by the orchestrator and mutated only
// by the orchestrator and webhook reconciliation; never deleted.
type PayoutRequest struct {
	ID             snowflake.ID           `json:"id" gorm:"primaryKey"`
	UserID         snowflake.ID           `json:"user_id" gorm:"not null;index"`
	Role           string                 `json:"role" gorm:"type:text"`
	GrossEarnings  int64                  `json:"gross_earnings" gorm:"not null"`
	PriorCashouts  int64                  `json:"prior_cashouts" gorm:"not null"`
	Amount         int64                  `json:"amount" gorm:"not null"`
	ReserveAmount  int64                  `json:"reserve_amount" gorm:"not null"`
	Currency       string                 `json:"currency" gorm:"type:text;not null"`
	Channel        transferdomain.Channel `json:"channel" gorm:"type:text;not null"`
	RecipientName  string                 `json:"recipient_name" gorm:"type:text;not null"`
	AccountNumber  string                 `json:"-" gorm:"type:text;not null"`
	BankCode       string                 `json:"bank_code" gorm:"type:text;not null"`
	Destination    string                 `json:"destination" gorm:"type:text;not null"`
	IdempotencyKey string                 `json:"idempotency_key" gorm:"type:text;not null;uniqueIndex"`
	Reference      string                 `json:"reference" gorm:"type:text;not null;uniqueIndex"`
	RecipientCode  *string                `json:"recipient_code,omitempty" gorm:"type:text"`
	TransferCode   *string                `json:"transfer_code,omitempty" gorm:"type:text"`
	FailureReason  *string                `json:"failure_reason,omitempty" gorm:"type:text"`
	Status         PayoutStatus           `json:"status" gorm:"type:text;not null;index"`
	CreatedAt      time.Time              `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP;index"`
	UpdatedAt      time.Time              `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
}

func (PayoutRequest) TableName() string { return "payout_requests" }

// PayoutProfile pins the provider-side recipient to a user so later requests
// skip re-registration.
type PayoutProfile struct {
	UserID        snowflake.ID           `json:"user_id" gorm:"primaryKey"`
	Channel       transferdomain.Channel `json:"channel" gorm:"type:text;not null"`
	RecipientCode string                 `json:"recipient_code" gorm:"type:text;not null"`
	RecipientName string                 `json:"recipient_name" gorm:"type:text;not null"`
	AccountNumber string                 `json:"-" gorm:"type:text;not null"`
	BankCode      string                 `json:"bank_code" gorm:"type:text;not null"`
	Destination   string                 `json:"destination" gorm:"type:text;not null"`
	UpdatedAt     time.Time              `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PayoutProfile) TableName() string { return "payout_profiles" }

// MaskDestination keeps only the trailing digits of an account number for
// display and audit rows.
func MaskDestination(accountNumber string) string {
	digits := strings.TrimSpace(accountNumber)
	if len(digits) <= 4 {
		return "****"
	}
	return "****" + digits[len(digits)-4:]
}
