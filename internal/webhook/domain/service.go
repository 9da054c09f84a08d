package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type ListRequest struct {
	Provider string
	Status   EventStatus
	Limit    int
	Offset   int
}

type Service interface {
	// HandlePaystack verifies, deduplicates and dispatches one raw webhook
	// delivery. It returns the event log row describing what was done; a
	// redelivered event returns the original row without reprocessing.
	HandlePaystack(ctx context.Context, signature string, body []byte) (*ProviderEventLog, error)
	List(ctx context.Context, req ListRequest) ([]ProviderEventLog, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, row *ProviderEventLog) error
	FindByProviderEventID(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*ProviderEventLog, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, row *ProviderEventLog) error
	List(ctx context.Context, db *gorm.DB, req ListRequest) ([]ProviderEventLog, error)
}

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
)
