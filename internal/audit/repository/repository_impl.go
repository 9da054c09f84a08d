package repository

import (
	"context"

	auditdomain "github.com/draftworks/meridian/internal/audit/domain"
	"gorm.io/gorm"
)

type Repository struct{}

func Provide() auditdomain.Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, db *gorm.DB, row *auditdomain.FinancialAuditLog) error {
	return db.WithContext(ctx).Create(row).Error
}

func (r *Repository) List(ctx context.Context, db *gorm.DB, req auditdomain.ListRequest) ([]auditdomain.FinancialAuditLog, error) {
	query := db.WithContext(ctx).Model(&auditdomain.FinancialAuditLog{})

	if req.UserID != 0 {
		query = query.Where("user_id = ?", req.UserID)
	}
	if req.Action != "" {
		query = query.Where("action = ?", req.Action)
	}
	if req.StartAt != nil {
		query = query.Where("created_at >= ?", req.StartAt)
	}
	if req.EndAt != nil {
		query = query.Where("created_at < ?", req.EndAt)
	}

	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var rows []auditdomain.FinancialAuditLog
	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(req.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
