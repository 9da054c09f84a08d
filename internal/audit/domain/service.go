package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Entry struct {
	ActorType string
	ActorID   *string
	UserID    snowflake.ID
	Action    string
	Reference *string
	Detail    map[string]any
}

type ListRequest struct {
	UserID  snowflake.ID
	Action  string
	StartAt *time.Time
	EndAt   *time.Time
	Limit   int
	Offset  int
}

type Service interface {
	// Record appends one audit row. Failures are reported but must never
	// fail the financial operation that produced them.
	Record(ctx context.Context, entry Entry) error
	// RecordTx appends within the caller's transaction so the trail commits
	// or rolls back with the money movement.
	RecordTx(ctx context.Context, tx *gorm.DB, entry Entry) error
	List(ctx context.Context, req ListRequest) ([]FinancialAuditLog, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, row *FinancialAuditLog) error
	List(ctx context.Context, db *gorm.DB, req ListRequest) ([]FinancialAuditLog, error)
}

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
