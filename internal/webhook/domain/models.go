package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type EventStatus string

const (
	EventStatusReceived  EventStatus = "received"
	EventStatusProcessed EventStatus = "processed"
	EventStatusIgnored   EventStatus = "ignored"
	EventStatusFailed    EventStatus = "failed"
)

// ProviderEventLog records every webhook delivery. The unique index on
// (provider, provider_event_id) is what collapses redeliveries into one
// processing attempt.
type ProviderEventLog struct {
	ID              snowflake.ID      `json:"id" gorm:"primaryKey"`
	Provider        string            `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_provider_event_logs_event,priority:1"`
	ProviderEventID string            `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_provider_event_logs_event,priority:2"`
	EventType       string            `json:"event_type" gorm:"type:text;not null"`
	Reference       *string           `json:"reference,omitempty" gorm:"type:text;index"`
	Status          EventStatus       `json:"status" gorm:"type:text;not null"`
	FailureReason   *string           `json:"failure_reason,omitempty" gorm:"type:text"`
	Payload         datatypes.JSONMap `json:"payload,omitempty" gorm:"type:jsonb"`
	ReceivedAt      time.Time         `json:"received_at" gorm:"autoCreateTime:false"`
	ProcessedAt     *time.Time        `json:"processed_at,omitempty"`
}

func (ProviderEventLog) TableName() string {
	return "provider_event_logs"
}
