package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	payoutdomain "github.com/draftworks/meridian/internal/payout/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct{}

func Provide() payoutdomain.Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, db *gorm.DB, req *payoutdomain.PayoutRequest) error {
	return db.WithContext(ctx).Create(req).Error
}

func (r *Repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*payoutdomain.PayoutRequest, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *Repository) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*payoutdomain.PayoutRequest, error) {
	return r.findOne(ctx, db, "idempotency_key = ?", key)
}

func (r *Repository) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*payoutdomain.PayoutRequest, error) {
	return r.findOne(ctx, db, "reference = ?", reference)
}

func (r *Repository) findOne(ctx context.Context, db *gorm.DB, query string, arg any) (*payoutdomain.PayoutRequest, error) {
	var req payoutdomain.PayoutRequest
	err := db.WithContext(ctx).Where(query, arg).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *Repository) List(ctx context.Context, db *gorm.DB, req payoutdomain.ListRequest) ([]payoutdomain.PayoutRequest, error) {
	query := db.WithContext(ctx).Model(&payoutdomain.PayoutRequest{})

	if req.UserID != 0 {
		query = query.Where("user_id = ?", req.UserID)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}

	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var rows []payoutdomain.PayoutRequest
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

func (r *Repository) CountActiveSince(ctx context.Context, db *gorm.DB, userID snowflake.ID, cutoff time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&payoutdomain.PayoutRequest{}).
		Where("user_id = ? AND created_at >= ? AND status <> ?", userID, cutoff, payoutdomain.StatusFailed).
		Count(&count).Error
	return count, err
}

func (r *Repository) HasProcessing(ctx context.Context, db *gorm.DB, userID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&payoutdomain.PayoutRequest{}).
		Where("user_id = ? AND status = ?", userID, payoutdomain.StatusProcessing).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) ListStaleProcessing(ctx context.Context, db *gorm.DB, olderThan time.Time, limit int) ([]payoutdomain.PayoutRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []payoutdomain.PayoutRequest
	err := db.WithContext(ctx).
		Where("status = ? AND created_at < ?", payoutdomain.StatusProcessing, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) SetRecipientCode(ctx context.Context, db *gorm.DB, id snowflake.ID, recipientCode string) error {
	return db.WithContext(ctx).
		Model(&payoutdomain.PayoutRequest{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"recipient_code": recipientCode,
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (r *Repository) SetTransferCode(ctx context.Context, db *gorm.DB, id snowflake.ID, transferCode string) error {
	return db.WithContext(ctx).
		Model(&payoutdomain.PayoutRequest{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"transfer_code": transferCode,
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (r *Repository) TransitionFromProcessing(ctx context.Context, db *gorm.DB, id snowflake.ID, to payoutdomain.PayoutStatus, transferCode, failureReason *string, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": at,
	}
	if transferCode != nil {
		updates["transfer_code"] = *transferCode
	}
	if failureReason != nil {
		updates["failure_reason"] = *failureReason
	}
	if to == payoutdomain.StatusCompleted {
		updates["completed_at"] = at
	}

	result := db.WithContext(ctx).
		Model(&payoutdomain.PayoutRequest{}).
		Where("id = ? AND status = ?", id, payoutdomain.StatusProcessing).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) FindProfile(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*payoutdomain.PayoutProfile, error) {
	var profile payoutdomain.PayoutProfile
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *Repository) UpsertProfile(ctx context.Context, db *gorm.DB, profile *payoutdomain.PayoutProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"channel", "recipient_code", "recipient_name", "account_number", "bank_code", "destination", "updated_at"}),
		}).
		Create(profile).Error
}
