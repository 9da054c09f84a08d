package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/draftworks/meridian/internal/audit/domain"
	"github.com/draftworks/meridian/internal/clock"
	"github.com/draftworks/meridian/internal/config"
	"github.com/draftworks/meridian/internal/observability"
	payoutdomain "github.com/draftworks/meridian/internal/payout/domain"
	webhookdomain "github.com/draftworks/meridian/internal/webhook/domain"
	pkgdb "github.com/draftworks/meridian/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const providerPaystack = "paystack"

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID           json.Number `json:"id"`
		Reference    string      `json:"reference"`
		TransferCode string      `json:"transfer_code"`
		Status       string      `json:"status"`
		Reason       string      `json:"reason"`
	} `json:"data"`
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Cfg       config.Config
	Repo      webhookdomain.Repository
	PayoutSvc payoutdomain.Service
	Clock     clock.Clock
	Metrics   *observability.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	secret    []byte
	repo      webhookdomain.Repository
	payoutSvc payoutdomain.Service
	clock     clock.Clock
	metrics   *observability.Metrics
}

func NewService(p Params) webhookdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("webhook.service"),
		genID:     p.GenID,
		secret:    []byte(p.Cfg.PaystackSecretKey),
		repo:      p.Repo,
		payoutSvc: p.PayoutSvc,
		clock:     p.Clock,
		metrics:   p.Metrics,
	}
}

func (s *Service) HandlePaystack(ctx context.Context, signature string, body []byte) (*webhookdomain.ProviderEventLog, error) {
	if !s.verifySignature(signature, body) {
		if s.metrics != nil {
			s.metrics.RecordWebhookEvent("unknown", "rejected")
		}
		return nil, webhookdomain.ErrInvalidSignature
	}

	var event paystackEvent
	if err := json.Unmarshal(body, &event); err != nil || event.Event == "" {
		return nil, webhookdomain.ErrInvalidPayload
	}
	eventID := dedupKey(event)
	if eventID == "" {
		return nil, webhookdomain.ErrInvalidPayload
	}

	// Insert-first dedup: the unique index on (provider, provider_event_id)
	// makes exactly one delivery own the processing attempt.
	existing, err := s.repo.FindByProviderEventID(ctx, s.db, providerPaystack, eventID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status == webhookdomain.EventStatusReceived {
			// A previous delivery claimed the event but hit a transient
			// failure before finishing; this one retries the dispatch.
			return s.dispatch(ctx, existing, event)
		}
		s.log.Info("webhook redelivery ignored",
			zap.String("event", event.Event),
			zap.String("provider_event_id", eventID),
		)
		return existing, nil
	}

	var payload map[string]any
	_ = json.Unmarshal(body, &payload)

	row := &webhookdomain.ProviderEventLog{
		ID:              s.genID.Generate(),
		Provider:        providerPaystack,
		ProviderEventID: eventID,
		EventType:       event.Event,
		Status:          webhookdomain.EventStatusReceived,
		Payload:         payload,
		ReceivedAt:      s.clock.Now(),
	}
	if event.Data.Reference != "" {
		row.Reference = &event.Data.Reference
	}
	if err := s.repo.Insert(ctx, s.db, row); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return s.repo.FindByProviderEventID(ctx, s.db, providerPaystack, eventID)
		}
		return nil, err
	}

	return s.dispatch(ctx, row, event)
}

func (s *Service) List(ctx context.Context, req webhookdomain.ListRequest) ([]webhookdomain.ProviderEventLog, error) {
	return s.repo.List(ctx, s.db, req)
}

func (s *Service) dispatch(ctx context.Context, row *webhookdomain.ProviderEventLog, event paystackEvent) (*webhookdomain.ProviderEventLog, error) {
	var err error
	switch event.Event {
	case "transfer.success":
		err = s.payoutSvc.CompleteByReference(ctx, event.Data.Reference, event.Data.TransferCode, auditdomain.ActorTypeWebhook)
	case "transfer.failed", "transfer.reversed":
		reason := event.Data.Reason
		if reason == "" {
			reason = "transfer " + event.Data.Status
		}
		err = s.payoutSvc.FailByReference(ctx, event.Data.Reference, reason, auditdomain.ActorTypeWebhook)
	default:
		return s.finish(ctx, row, webhookdomain.EventStatusIgnored, nil)
	}

	switch {
	case err == nil:
		return s.finish(ctx, row, webhookdomain.EventStatusProcessed, nil)
	case errors.Is(err, payoutdomain.ErrInvalidTransition):
		// The payout already reached the opposite terminal state. The
		// contradiction is recorded but the delivery is acknowledged so
		// the provider stops retrying.
		s.log.Error("webhook contradicts settled payout",
			zap.String("event", event.Event),
			zap.String("reference", event.Data.Reference),
		)
		reason := "invalid_for_state"
		return s.finish(ctx, row, webhookdomain.EventStatusFailed, &reason)
	case errors.Is(err, payoutdomain.ErrNotFound):
		s.log.Warn("webhook references unknown payout",
			zap.String("event", event.Event),
			zap.String("reference", event.Data.Reference),
		)
		reason := "unknown_reference"
		return s.finish(ctx, row, webhookdomain.EventStatusFailed, &reason)
	default:
		// Transient failure: leave the row `received` and surface the
		// error so the provider redelivers.
		return nil, err
	}
}

func (s *Service) finish(ctx context.Context, row *webhookdomain.ProviderEventLog, status webhookdomain.EventStatus, reason *string) (*webhookdomain.ProviderEventLog, error) {
	now := s.clock.Now()
	row.Status = status
	row.FailureReason = reason
	row.ProcessedAt = &now
	if err := s.repo.UpdateStatus(ctx, s.db, row); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordWebhookEvent(row.EventType, string(status))
	}
	return row, nil
}

func (s *Service) verifySignature(signature string, body []byte) bool {
	if len(s.secret) == 0 || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// dedupKey identifies one provider event across redeliveries. Paystack event
// ids are unique per event; the reference is the fallback for payloads that
// omit one.
func dedupKey(event paystackEvent) string {
	if event.Data.ID.String() != "" {
		return event.Event + ":" + event.Data.ID.String()
	}
	if event.Data.Reference != "" {
		return event.Event + ":" + event.Data.Reference
	}
	return ""
}
