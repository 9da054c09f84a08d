package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/draftworks/meridian/internal/audit/domain"
	"github.com/draftworks/meridian/internal/clock"
	"github.com/draftworks/meridian/internal/config"
	"github.com/draftworks/meridian/internal/observability"
	payoutdomain "github.com/draftworks/meridian/internal/payout/domain"
	transferdomain "github.com/draftworks/meridian/internal/providers/transfer/domain"
	"github.com/draftworks/meridian/internal/ratelimit"
	walletdomain "github.com/draftworks/meridian/internal/wallet/domain"
	pkgdb "github.com/draftworks/meridian/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const submitLockTTL = 30 * time.Second

// errStatusMoved signals that another actor finalized the request while this
// transition was in flight.
var errStatusMoved = errors.New("payout_status_moved")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      payoutdomain.Repository
	WalletSvc walletdomain.Service
	AuditSvc  auditdomain.Service
	Transfer  transferdomain.Client
	Policy    *config.PayoutPolicyHolder
	Clock     clock.Clock
	Locker    *ratelimit.Locker      `optional:"true"`
	Metrics   *observability.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      payoutdomain.Repository
	walletSvc walletdomain.Service
	auditSvc  auditdomain.Service
	transfer  transferdomain.Client
	policy    *config.PayoutPolicyHolder
	clock     clock.Clock
	locker    *ratelimit.Locker
	metrics   *observability.Metrics
}

func NewService(p Params) payoutdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payout.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		walletSvc: p.WalletSvc,
		auditSvc:  p.AuditSvc,
		transfer:  p.Transfer,
		policy:    p.Policy,
		clock:     p.Clock,
		locker:    p.Locker,
		metrics:   p.Metrics,
	}
}

func (s *Service) RequestPayout(ctx context.Context, in payoutdomain.RequestPayoutInput) (*payoutdomain.PayoutRequest, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	// Step 1: idempotency short-circuit. A retried submission observes the
	// original request in whatever state it has reached.
	existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	// Step 2: validate against the wallet and the payout policy. Nothing is
	// persisted on rejection.
	wallet, err := s.walletSvc.Get(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	policy := s.policy.Get()
	if in.Amount < policy.MinPayoutAmount {
		return nil, payoutdomain.ErrBelowMinimum
	}
	withdrawable := wallet.AvailableBalance() - policy.ReserveAmount
	if in.Amount > withdrawable {
		return nil, walletdomain.ErrInsufficientFunds
	}

	// Business rule: one outstanding request, bounded requests per day. The
	// redis lock narrows the submit race across replicas; the daily check
	// against the store is authoritative.
	if s.locker != nil {
		lockKey := "payout:submit:" + in.UserID.String()
		token, ok, lockErr := s.locker.TryLock(ctx, lockKey, submitLockTTL)
		if lockErr != nil {
			s.log.Warn("payout submit lock unavailable", zap.Error(lockErr))
		} else if !ok {
			return nil, payoutdomain.ErrConcurrentRequest
		} else {
			defer func() {
				_ = s.locker.Release(ctx, lockKey, token)
			}()
		}
	}

	now := s.clock.Now()
	if err := s.checkDailyRule(ctx, in.UserID, now, policy.DailyRequests); err != nil {
		return nil, err
	}

	req := &payoutdomain.PayoutRequest{
		ID:             s.genID.Generate(),
		UserID:         in.UserID,
		Role:           strings.TrimSpace(in.Role),
		Amount:         in.Amount,
		ReserveAmount:  policy.ReserveAmount,
		Currency:       wallet.Currency,
		Channel:        in.Channel,
		RecipientName:  strings.TrimSpace(in.RecipientName),
		AccountNumber:  strings.TrimSpace(in.AccountNumber),
		BankCode:       strings.TrimSpace(in.BankCode),
		Destination:    payoutdomain.MaskDestination(in.AccountNumber),
		IdempotencyKey: in.IdempotencyKey,
		Status:         payoutdomain.StatusProcessing,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	req.Reference = "po_" + req.ID.String()

	// Step 3: the commit point. Locking the funds and recording the request
	// commit atomically; from here the withdrawal owns the money and every
	// later step is resumable from persisted state.
	actorID := in.UserID.String()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		result, txErr := s.walletSvc.ApplyTx(ctx, tx, walletdomain.Mutation{
			UserID:         in.UserID,
			Kind:           walletdomain.KindLockWithdrawal,
			Amount:         in.Amount,
			IdempotencyKey: in.IdempotencyKey,
			Reference:      &req.Reference,
			ActorType:      auditdomain.ActorTypeUser,
			ActorID:        &actorID,
			Detail:         map[string]any{"channel": string(in.Channel)},
		})
		if txErr != nil {
			return txErr
		}
		req.GrossEarnings = result.TotalEarned
		req.PriorCashouts = result.TotalWithdrawn

		if txErr := s.repo.Insert(ctx, tx, req); txErr != nil {
			return txErr
		}
		return s.auditSvc.RecordTx(ctx, tx, auditdomain.Entry{
			ActorType: auditdomain.ActorTypeUser,
			ActorID:   &actorID,
			UserID:    in.UserID,
			Action:    "payout.requested",
			Reference: &req.Reference,
			Detail: map[string]any{
				"amount":      in.Amount,
				"channel":     string(in.Channel),
				"destination": req.Destination,
			},
		})
	})
	if pkgdb.IsDuplicateKeyErr(err) {
		winner, findErr := s.repo.FindByIdempotencyKey(ctx, s.db, in.IdempotencyKey)
		if findErr != nil {
			return nil, findErr
		}
		if winner != nil {
			return winner, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordPayoutTransition(string(payoutdomain.StatusProcessing))
	}

	// Steps 4-5 talk to the provider; their failures never undo the commit
	// point, they only drive the request toward a terminal state.
	s.executeTransfer(ctx, req)

	return s.reload(ctx, req.ID)
}

func (s *Service) Get(ctx context.Context, userID, id snowflake.ID) (*payoutdomain.PayoutRequest, error) {
	req, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, payoutdomain.ErrNotFound
	}
	if userID != 0 && req.UserID != userID {
		return nil, payoutdomain.ErrNotFound
	}
	return req, nil
}

func (s *Service) List(ctx context.Context, req payoutdomain.ListRequest) ([]payoutdomain.PayoutRequest, error) {
	return s.repo.List(ctx, s.db, req)
}

func (s *Service) EarningsSummary(ctx context.Context, userID snowflake.ID) (*payoutdomain.EarningsSummary, error) {
	policy := s.policy.Get()
	now := s.clock.Now()

	summary := &payoutdomain.EarningsSummary{
		ReserveAmount: policy.ReserveAmount,
	}

	wallet, err := s.walletSvc.Get(ctx, userID)
	if err != nil && !errors.Is(err, walletdomain.ErrWalletNotFound) {
		return nil, err
	}
	if wallet != nil {
		summary.Currency = wallet.Currency
		summary.TotalEarned = wallet.TotalEarned
		summary.TotalWithdrawn = wallet.TotalWithdrawn
		summary.PendingBalance = wallet.PendingBalance
		summary.AvailableBalance = wallet.AvailableBalance()
		if withdrawable := summary.AvailableBalance - policy.ReserveAmount; withdrawable > 0 {
			summary.WithdrawableBalance = withdrawable
		}
	}

	summary.CanCashoutToday = s.checkDailyRule(ctx, userID, now, policy.DailyRequests) == nil
	return summary, nil
}

func (s *Service) ListPayoutOptions(ctx context.Context, channel transferdomain.Channel) ([]transferdomain.Bank, error) {
	if !channel.Valid() {
		return nil, transferdomain.ErrInvalidDestination
	}
	return s.transfer.ListBanks(ctx, channel)
}

func (s *Service) CompleteByReference(ctx context.Context, reference, transferCode, actorType string) error {
	req, err := s.repo.FindByReference(ctx, s.db, reference)
	if err != nil {
		return err
	}
	if req == nil {
		return payoutdomain.ErrNotFound
	}
	return s.complete(ctx, req, transferCode, actorType)
}

func (s *Service) FailByReference(ctx context.Context, reference, reason, actorType string) error {
	req, err := s.repo.FindByReference(ctx, s.db, reference)
	if err != nil {
		return err
	}
	if req == nil {
		return payoutdomain.ErrNotFound
	}
	return s.fail(ctx, req, reason, actorType)
}

func (s *Service) ForceReconcile(ctx context.Context, id snowflake.ID) (*payoutdomain.PayoutRequest, error) {
	req, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, payoutdomain.ErrNotFound
	}
	if req.Status.Terminal() {
		return req, nil
	}

	transfer, err := s.transfer.FetchTransfer(ctx, req.Reference)
	if err != nil {
		var rejection *transferdomain.RejectionError
		if errors.As(err, &rejection) {
			// The provider has no transfer for our unique reference: the
			// initiate call never landed, unlocking cannot double-pay.
			if failErr := s.fail(ctx, req, "transfer not found at provider", auditdomain.ActorTypeSystem); failErr != nil {
				return nil, failErr
			}
			return s.reload(ctx, req.ID)
		}
		if errors.Is(err, transferdomain.ErrIndeterminate) {
			// Still unknown; keep waiting.
			return req, nil
		}
		return nil, err
	}

	switch transfer.Status {
	case transferdomain.TransferStatusSuccess:
		if err := s.complete(ctx, req, transfer.TransferCode, auditdomain.ActorTypeSystem); err != nil {
			return nil, err
		}
	case transferdomain.TransferStatusFailed, transferdomain.TransferStatusReversed:
		if err := s.fail(ctx, req, "transfer "+string(transfer.Status), auditdomain.ActorTypeSystem); err != nil {
			return nil, err
		}
	}
	return s.reload(ctx, req.ID)
}

func (s *Service) ReconcileStale(ctx context.Context) (int, error) {
	policy := s.policy.Get()
	cutoff := s.clock.Now().Add(-time.Duration(policy.StaleAfterMinutes) * time.Minute)

	stale, err := s.repo.ListStaleProcessing(ctx, s.db, cutoff, 50)
	if err != nil {
		return 0, err
	}

	for _, req := range stale {
		if _, err := s.ForceReconcile(ctx, req.ID); err != nil {
			s.log.Warn("stale payout reconciliation failed",
				zap.String("reference", req.Reference),
				zap.Error(err),
			)
		}
	}
	return len(stale), nil
}

// executeTransfer runs the provider half of the saga: resolve the recipient,
// initiate the transfer, and settle definite outcomes. Indeterminate network
// failures leave the request processing for reconciliation.
func (s *Service) executeTransfer(ctx context.Context, req *payoutdomain.PayoutRequest) {
	recipientCode, ok := s.resolveRecipient(ctx, req)
	if !ok {
		return
	}

	transfer, err := s.transfer.InitiateTransfer(ctx, transferdomain.TransferRequest{
		Reference:     req.Reference,
		RecipientCode: recipientCode,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Reason:        "Draftworks earnings payout",
	})
	if err != nil {
		var rejection *transferdomain.RejectionError
		if errors.As(err, &rejection) {
			if failErr := s.fail(ctx, req, rejection.Message, auditdomain.ActorTypeSystem); failErr != nil {
				s.log.Error("payout compensation failed", zap.String("reference", req.Reference), zap.Error(failErr))
			}
			return
		}
		// Timeout or transport failure: the outcome is unknown. Never
		// unlock here; the webhook or the status poll decides.
		s.log.Warn("transfer outcome indeterminate, awaiting reconciliation",
			zap.String("reference", req.Reference),
		)
		return
	}

	if transfer.TransferCode != "" {
		if err := s.repo.SetTransferCode(ctx, s.db, req.ID, transfer.TransferCode); err != nil {
			s.log.Warn("failed to persist transfer code", zap.Error(err))
		}
	}

	switch transfer.Status {
	case transferdomain.TransferStatusSuccess:
		if err := s.complete(ctx, req, transfer.TransferCode, auditdomain.ActorTypeSystem); err != nil {
			s.log.Error("payout completion failed", zap.String("reference", req.Reference), zap.Error(err))
		}
	case transferdomain.TransferStatusFailed, transferdomain.TransferStatusReversed:
		if err := s.fail(ctx, req, "transfer "+string(transfer.Status), auditdomain.ActorTypeSystem); err != nil {
			s.log.Error("payout compensation failed", zap.String("reference", req.Reference), zap.Error(err))
		}
	default:
		// Accepted but still pending on the provider side; the webhook
		// finishes the saga.
	}
}

// resolveRecipient returns the provider recipient for the request, creating
// and persisting one when needed. ok is false when the saga cannot continue.
func (s *Service) resolveRecipient(ctx context.Context, req *payoutdomain.PayoutRequest) (string, bool) {
	if req.RecipientCode != nil && *req.RecipientCode != "" {
		return *req.RecipientCode, true
	}

	profile, err := s.repo.FindProfile(ctx, s.db, req.UserID)
	if err != nil {
		s.log.Warn("payout profile lookup failed", zap.Error(err))
		return "", false
	}
	if profile != nil &&
		profile.Channel == req.Channel &&
		profile.AccountNumber == req.AccountNumber &&
		profile.BankCode == req.BankCode {
		if err := s.repo.SetRecipientCode(ctx, s.db, req.ID, profile.RecipientCode); err != nil {
			s.log.Warn("failed to persist recipient code", zap.Error(err))
		}
		return profile.RecipientCode, true
	}

	recipient, err := s.transfer.CreateRecipient(ctx, transferdomain.RecipientRequest{
		Channel:       req.Channel,
		Name:          req.RecipientName,
		AccountNumber: req.AccountNumber,
		BankCode:      req.BankCode,
		Currency:      req.Currency,
	})
	if err != nil {
		if errors.Is(err, transferdomain.ErrInvalidDestination) {
			if failErr := s.fail(ctx, req, "destination rejected by provider", auditdomain.ActorTypeSystem); failErr != nil {
				s.log.Error("payout compensation failed", zap.String("reference", req.Reference), zap.Error(failErr))
			}
			return "", false
		}
		// Indeterminate: retry later via reconciliation.
		s.log.Warn("recipient registration indeterminate", zap.String("reference", req.Reference), zap.Error(err))
		return "", false
	}

	if err := s.repo.SetRecipientCode(ctx, s.db, req.ID, recipient.RecipientCode); err != nil {
		s.log.Warn("failed to persist recipient code", zap.Error(err))
	}
	if err := s.repo.UpsertProfile(ctx, s.db, &payoutdomain.PayoutProfile{
		UserID:        req.UserID,
		Channel:       req.Channel,
		RecipientCode: recipient.RecipientCode,
		RecipientName: req.RecipientName,
		AccountNumber: req.AccountNumber,
		BankCode:      req.BankCode,
		Destination:   req.Destination,
	}); err != nil {
		s.log.Warn("failed to persist payout profile", zap.Error(err))
	}
	return recipient.RecipientCode, true
}

// complete converts the reservation into a final debit. Idempotent: a second
// success signal is a no-op, a success signal after failure is rejected.
func (s *Service) complete(ctx context.Context, req *payoutdomain.PayoutRequest, transferCode, actorType string) error {
	if req.Status == payoutdomain.StatusCompleted {
		return nil
	}
	if req.Status == payoutdomain.StatusFailed {
		return payoutdomain.ErrInvalidTransition
	}

	now := s.clock.Now()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var codePtr *string
		if transferCode != "" {
			codePtr = &transferCode
		}
		flipped, txErr := s.repo.TransitionFromProcessing(ctx, tx, req.ID, payoutdomain.StatusCompleted, codePtr, nil, now)
		if txErr != nil {
			return txErr
		}
		if !flipped {
			return errStatusMoved
		}

		if _, txErr := s.walletSvc.ApplyTx(ctx, tx, walletdomain.Mutation{
			UserID:         req.UserID,
			Kind:           walletdomain.KindDebitWithdrawn,
			Amount:         req.Amount,
			IdempotencyKey: req.IdempotencyKey,
			Reference:      &req.Reference,
			ActorType:      actorType,
		}); txErr != nil {
			return txErr
		}

		return s.auditSvc.RecordTx(ctx, tx, auditdomain.Entry{
			ActorType: actorType,
			UserID:    req.UserID,
			Action:    "payout.completed",
			Reference: &req.Reference,
			Detail: map[string]any{
				"amount":        req.Amount,
				"transfer_code": transferCode,
			},
		})
	})
	if errors.Is(err, errStatusMoved) {
		return s.settleRace(ctx, req.ID, payoutdomain.StatusCompleted)
	}
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordPayoutTransition(string(payoutdomain.StatusCompleted))
	}
	return nil
}

// fail releases the reservation and records why. Idempotent like complete.
func (s *Service) fail(ctx context.Context, req *payoutdomain.PayoutRequest, reason, actorType string) error {
	if req.Status == payoutdomain.StatusFailed {
		return nil
	}
	if req.Status == payoutdomain.StatusCompleted {
		return payoutdomain.ErrInvalidTransition
	}

	now := s.clock.Now()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		flipped, txErr := s.repo.TransitionFromProcessing(ctx, tx, req.ID, payoutdomain.StatusFailed, nil, &reason, now)
		if txErr != nil {
			return txErr
		}
		if !flipped {
			return errStatusMoved
		}

		if _, txErr := s.walletSvc.ApplyTx(ctx, tx, walletdomain.Mutation{
			UserID:         req.UserID,
			Kind:           walletdomain.KindUnlockWithdrawal,
			Amount:         req.Amount,
			IdempotencyKey: req.IdempotencyKey,
			Reference:      &req.Reference,
			ActorType:      actorType,
			Detail:         map[string]any{"reason": reason},
		}); txErr != nil {
			return txErr
		}

		return s.auditSvc.RecordTx(ctx, tx, auditdomain.Entry{
			ActorType: actorType,
			UserID:    req.UserID,
			Action:    "payout.failed",
			Reference: &req.Reference,
			Detail: map[string]any{
				"amount": req.Amount,
				"reason": reason,
			},
		})
	})
	if errors.Is(err, errStatusMoved) {
		return s.settleRace(ctx, req.ID, payoutdomain.StatusFailed)
	}
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordPayoutTransition(string(payoutdomain.StatusFailed))
	}
	return nil
}

// settleRace resolves a lost transition race: reaching the same terminal
// state is idempotent success, reaching the opposite one is a contradiction.
func (s *Service) settleRace(ctx context.Context, id snowflake.ID, want payoutdomain.PayoutStatus) error {
	current, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if current != nil && current.Status == want {
		return nil
	}
	return payoutdomain.ErrInvalidTransition
}

func (s *Service) checkDailyRule(ctx context.Context, userID snowflake.ID, now time.Time, dailyRequests int) error {
	processing, err := s.repo.HasProcessing(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if processing {
		return payoutdomain.ErrAlreadyRequestedToday
	}

	day := now.UTC()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	count, err := s.repo.CountActiveSince(ctx, s.db, userID, dayStart)
	if err != nil {
		return err
	}
	if count >= int64(dailyRequests) {
		return payoutdomain.ErrAlreadyRequestedToday
	}
	return nil
}

func (s *Service) reload(ctx context.Context, id snowflake.ID) (*payoutdomain.PayoutRequest, error) {
	req, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, payoutdomain.ErrNotFound
	}
	return req, nil
}

func validateInput(in payoutdomain.RequestPayoutInput) error {
	if in.UserID == 0 {
		return payoutdomain.ErrNotFound
	}
	if strings.TrimSpace(in.IdempotencyKey) == "" {
		return walletdomain.ErrInvalidIdempotency
	}
	if in.Amount <= 0 {
		return payoutdomain.ErrInvalidAmount
	}
	if !in.Channel.Valid() {
		return transferdomain.ErrInvalidDestination
	}
	if strings.TrimSpace(in.RecipientName) == "" ||
		strings.TrimSpace(in.AccountNumber) == "" ||
		strings.TrimSpace(in.BankCode) == "" {
		return transferdomain.ErrInvalidDestination
	}
	return nil
}
