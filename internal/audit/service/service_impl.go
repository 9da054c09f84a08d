package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/draftworks/meridian/internal/audit/domain"
	"github.com/draftworks/meridian/internal/observability"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	return s.RecordTx(ctx, s.db, entry)
}

func (s *Service) RecordTx(ctx context.Context, tx *gorm.DB, entry auditdomain.Entry) error {
	row, err := s.buildRow(ctx, entry)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, tx, row); err != nil {
		s.log.Warn("failed to write financial audit log",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) ([]auditdomain.FinancialAuditLog, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return nil, auditdomain.ErrInvalidTimeRange
	}
	return s.repo.List(ctx, s.db, req)
}

func (s *Service) buildRow(ctx context.Context, entry auditdomain.Entry) (*auditdomain.FinancialAuditLog, error) {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return nil, auditdomain.ErrInvalidAction
	}

	actorType := strings.TrimSpace(entry.ActorType)
	if actorType == "" {
		actorType = auditdomain.ActorTypeSystem
	}

	detail := map[string]any{}
	for key, value := range entry.Detail {
		if key == "" {
			continue
		}
		detail[key] = value
	}
	if requestID := observability.RequestIDFromContext(ctx); requestID != "" {
		detail["request_id"] = requestID
	}

	return &auditdomain.FinancialAuditLog{
		ID:        s.genID.Generate(),
		ActorType: actorType,
		ActorID:   normalizePointer(entry.ActorID),
		UserID:    entry.UserID,
		Action:    action,
		Reference: normalizePointer(entry.Reference),
		Detail:    datatypes.JSONMap(detail),
		CreatedAt: time.Now().UTC(),
	}, nil
}

func normalizePointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
