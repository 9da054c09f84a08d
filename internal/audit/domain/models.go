package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// FinancialAuditLog is the immutable forensic trail behind every money
// movement. Rows are written once and never updated or deleted.
type FinancialAuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	ActorType  string            `json:"actor_type" gorm:"type:text;not null"`
	ActorID    *string           `json:"actor_id,omitempty" gorm:"type:text"`
	UserID     snowflake.ID      `json:"user_id" gorm:"not null;index"`
	Action     string            `json:"action" gorm:"type:text;not null;index"`
	Reference  *string           `json:"reference,omitempty" gorm:"type:text;index"`
	Detail     datatypes.JSONMap `json:"detail" gorm:"not null"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (FinancialAuditLog) TableName() string { return "financial_audit_logs" }

const (
	ActorTypeUser    = "user"
	ActorTypeSystem  = "system"
	ActorTypeWebhook = "webhook"
	ActorTypeAdmin   = "admin"
)
