package repository

import (
	"context"
	"errors"

	webhookdomain "github.com/draftworks/meridian/internal/webhook/domain"
	"gorm.io/gorm"
)

type Repository struct{}

func Provide() webhookdomain.Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, db *gorm.DB, row *webhookdomain.ProviderEventLog) error {
	return db.WithContext(ctx).Create(row).Error
}

func (r *Repository) FindByProviderEventID(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*webhookdomain.ProviderEventLog, error) {
	var row webhookdomain.ProviderEventLog
	err := db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, db *gorm.DB, row *webhookdomain.ProviderEventLog) error {
	return db.WithContext(ctx).
		Model(&webhookdomain.ProviderEventLog{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"status":         row.Status,
			"failure_reason": row.FailureReason,
			"processed_at":   row.ProcessedAt,
		}).Error
}

func (r *Repository) List(ctx context.Context, db *gorm.DB, req webhookdomain.ListRequest) ([]webhookdomain.ProviderEventLog, error) {
	q := db.WithContext(ctx).Model(&webhookdomain.ProviderEventLog{})
	if req.Provider != "" {
		q = q.Where("provider = ?", req.Provider)
	}
	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}

	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var rows []webhookdomain.ProviderEventLog
	err := q.Order("received_at DESC").Limit(limit).Offset(req.Offset).Find(&rows).Error
	return rows, err
}
