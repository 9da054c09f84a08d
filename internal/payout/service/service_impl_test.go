package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/draftworks/meridian/internal/audit/domain"
	auditrepository "github.com/draftworks/meridian/internal/audit/repository"
	auditservice "github.com/draftworks/meridian/internal/audit/service"
	"github.com/draftworks/meridian/internal/clock"
	"github.com/draftworks/meridian/internal/config"
	"github.com/draftworks/meridian/internal/migration"
	payoutdomain "github.com/draftworks/meridian/internal/payout/domain"
	payoutrepository "github.com/draftworks/meridian/internal/payout/repository"
	transferdomain "github.com/draftworks/meridian/internal/providers/transfer/domain"
	walletdomain "github.com/draftworks/meridian/internal/wallet/domain"
	walletrepository "github.com/draftworks/meridian/internal/wallet/repository"
	walletservice "github.com/draftworks/meridian/internal/wallet/service"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeTransferClient scripts provider behavior per call.
type fakeTransferClient struct {
	recipientErr error
	initiateErr  error
	initiate     *transferdomain.Transfer
	fetchErr     error
	fetch        *transferdomain.Transfer

	initiated []transferdomain.TransferRequest
}

func (f *fakeTransferClient) CreateRecipient(ctx context.Context, req transferdomain.RecipientRequest) (*transferdomain.Recipient, error) {
	if f.recipientErr != nil {
		return nil, f.recipientErr
	}
	return &transferdomain.Recipient{RecipientCode: "RCP_test"}, nil
}

func (f *fakeTransferClient) InitiateTransfer(ctx context.Context, req transferdomain.TransferRequest) (*transferdomain.Transfer, error) {
	f.initiated = append(f.initiated, req)
	if f.initiateErr != nil {
		return nil, f.initiateErr
	}
	if f.initiate != nil {
		out := *f.initiate
		out.Reference = req.Reference
		return &out, nil
	}
	return &transferdomain.Transfer{
		TransferCode: "TRF_test",
		Reference:    req.Reference,
		Status:       transferdomain.TransferStatusPending,
	}, nil
}

func (f *fakeTransferClient) FetchTransfer(ctx context.Context, reference string) (*transferdomain.Transfer, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.fetch != nil {
		out := *f.fetch
		out.Reference = reference
		return &out, nil
	}
	return nil, transferdomain.ErrIndeterminate
}

func (f *fakeTransferClient) ListBanks(ctx context.Context, channel transferdomain.Channel) ([]transferdomain.Bank, error) {
	return []transferdomain.Bank{{Name: "Test Bank", Code: "058"}}, nil
}

type testEnv struct {
	db        *gorm.DB
	svc       payoutdomain.Service
	walletSvc walletdomain.Service
	transfer  *fakeTransferClient
	clock     *clock.FakeClock
	policy    config.PayoutPolicy
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:payout_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	// SQLite support hack: remove FOR UPDATE clauses
	stripForUpdate := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(newSQL)
		}
	}
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("sqlite_skip_locked", stripForUpdate))
	require.NoError(t, db.Callback().Row().Before("gorm:row").Register("sqlite_skip_locked_row", stripForUpdate))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, migration.AutoMigrate(db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepository.Provide(),
	})
	walletSvc := walletservice.NewService(walletservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     walletrepository.Provide(),
		AuditSvc: auditSvc,
	})

	transfer := &fakeTransferClient{}
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	policy := config.DefaultPayoutPolicy()

	svc := NewService(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      payoutrepository.Provide(),
		WalletSvc: walletSvc,
		AuditSvc:  auditSvc,
		Transfer:  transfer,
		Policy:    config.NewStaticPayoutPolicyHolder(policy),
		Clock:     fakeClock,
	})

	return &testEnv{
		db:        db,
		svc:       svc,
		walletSvc: walletSvc,
		transfer:  transfer,
		clock:     fakeClock,
		policy:    policy,
	}
}

func (e *testEnv) credit(t *testing.T, userID snowflake.ID, amount int64, key string) {
	t.Helper()
	_, err := e.walletSvc.Apply(context.Background(), walletdomain.Mutation{
		UserID:         userID,
		Kind:           walletdomain.KindCreditEarned,
		Amount:         amount,
		Currency:       "NGN",
		IdempotencyKey: key,
		ActorType:      auditdomain.ActorTypeUser,
	})
	require.NoError(t, err)
}

func payoutInput(userID snowflake.ID, amount int64, key string) payoutdomain.RequestPayoutInput {
	return payoutdomain.RequestPayoutInput{
		UserID:         userID,
		Amount:         amount,
		Channel:        transferdomain.ChannelBank,
		RecipientName:  "Ada Obi",
		AccountNumber:  "0123456789",
		BankCode:       "058",
		IdempotencyKey: key,
	}
}

func TestEarningsSummaryAppliesReserve(t *testing.T) {
	env := newTestEnv(t)
	userID := snowflake.ID(2001)

	// 10,000.00 earned against a 150.00 reserve leaves 9,850.00 withdrawable.
	env.credit(t, userID, 10_000_00, "credit-1")

	summary, err := env.svc.EarningsSummary(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_00), summary.AvailableBalance)
	assert.Equal(t, int64(150_00), summary.ReserveAmount)
	assert.Equal(t, int64(9_850_00), summary.WithdrawableBalance)
	assert.True(t, summary.CanCashoutToday)
}

func TestRequestPayoutLocksFundsAndInitiates(t *testing.T) {
	env := newTestEnv(t)
	userID := snowflake.ID(2002)
	env.credit(t, userID, 10_000_00, "credit-1")

	req, err := env.svc.RequestPayout(context.Background(), payoutInput(userID, 5_000_00, "po-key-1"))
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.StatusProcessing, req.Status)
	assert.Equal(t, int64(10_000_00), req.GrossEarnings)
	assert.Equal(t, "****6789", req.Destination)
	require.Len(t, env.transfer.initiated, 1)
	assert.Equal(t, req.Reference, env.transfer.initiated[0].Reference)

	wallet, err := env.walletSvc.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_00), wallet.PendingBalance)
	assert.Equal(t, int64(5_000_00), wallet.AvailableBalance())
}

func TestRequestPayoutImmediateSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.transfer.initiate = &transferdomain.Transfer{
		TransferCode: "TRF_done",
		Status:       transferdomain.TransferStatusSuccess,
	}
	userID := snowflake.ID(2003)
	env.credit(t, userID, 10_000_00, "credit-1")

	req, err := env.svc.RequestPayout(context.Background(), payoutInput(userID, 5_000_00, "po-key-1"))
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.StatusCompleted, req.Status)

	wallet, err := env.walletSvc.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.PendingBalance)
	assert.Equal(t, int64(5_000_00), wallet.TotalWithdrawn)
	assert.Equal(t, int64(5_000_00), wallet.AvailableBalance())
}

func TestRequestPayoutProviderRejectionCompensates(t *testing.T) {
	env := newTestEnv(t)
	env.transfer.initiateErr = &transferdomain.RejectionError{Message: "insufficient provider balance"}
	userID := snowflake.ID(2004)
	env.credit(t, userID, 10_000_00, "credit-1")

	req, err := env.svc.RequestPayout(context.Background(), payoutInput(userID, 5_000_00, "po-key-1"))
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.StatusFailed, req.Status)
	require.NotNil(t, req.FailureReason)
	assert.Equal(t, "insufficient provider balance", *req.FailureReason)

	// Funds are back in full.
	wallet, err := env.walletSvc.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.PendingBalance)
	assert.Equal(t, int64(10_000_00), wallet.AvailableBalance())
}

func TestRequestPayoutTimeoutStaysProcessing(t *testing.T) {
	env := newTestEnv(t)
	env.transfer.initiateErr = transferdomain.ErrIndeterminate
	userID := snowflake.ID(2005)
	env.credit(t, userID, 10_000_00, "credit-1")

	req, err := env.svc.RequestPayout(context.Background(), payoutInput(userID, 5_000_00, "po-key-1"))
	require.NoError(t, err)
	// Outcome unknown: funds stay locked until a webhook or poll decides.
	assert.Equal(t, payoutdomain.StatusProcessing, req.Status)

	wallet, err := env.walletSvc.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_00), wallet.PendingBalance)
}

func TestRequestPayoutIdempotencyKeyReplays(t *testing.T) {
	env := newTestEnv(t)
	env.transfer.initiateErr = transferdomain.ErrIndeterminate
	userID := snowflake.ID(2006)
	env.credit(t, userID, 10_000_00, "credit-1")

	first, err := env.svc.RequestPayout(context.Background(), payoutInput(userID, 5_000_00, "po-key-1"))
	require.NoError(t, err)

	second, err := env.svc.RequestPayout(context.Background(), payoutInput(userID, 5_000_00, "po-key-1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// One request, one lock.
	var count int64
	require.NoError(t, env.db.Model(&payoutdomain.PayoutRequest{}).Where("user_id = ?", userID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	wallet, err := env.walletSvc.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_00), wallet.PendingBalance)
}

func TestRequestPayoutConcurrentSameKey(t *testing.T) {
	env := newTestEnv(t)
	env.transfer.initiateErr = transferdomain.ErrIndeterminate
	userID := snowflake.ID(2016)
	env.credit(t, userID, 10_000_00, "credit-1")

	// Both submissions race past the idempotency pre-check; the unique key
	// lets exactly one commit and hands the loser the winner's request.
	const submitters = 2
	results := make([]*payoutdomain.PayoutRequest, submitters)
	errs := make([]error, submitters)

	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.svc.RequestPayout(context.Background(), payoutInput(userID, 5_000_00, "po-race"))
		}(i)
	}
	wg.Wait()

	for i := 0; i < submitters; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].ID, results[i].ID)
	}

	var count int64
	require.NoError(t, env.db.Model(&payoutdomain.PayoutRequest{}).Where("user_id = ?", userID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// Funds are locked once and only the winner reached the provider.
	wallet, err := env.walletSvc.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_00), wallet.PendingBalance)
	assert.LessOrEqual(t, len(env.transfer.initiated), 1)
}

func TestRequestPayoutPolicyChecks(t *testing.T) {
	env := newTestEnv(t)
	userID := snowflake.ID(2007)
	env.credit(t, userID, 1_000_00, "credit-1")

	_, err := env.svc.RequestPayout(context.Background(), payoutInput(userID, 50_00, "po-min"))
	assert.ErrorIs(t, err, payoutdomain.ErrBelowMinimum)

	// 1,000.00 available minus the 150.00 reserve leaves 850.00.
	_, err = env.svc.RequestPayout(context.Background(), payoutInput(userID, 900_00, "po-reserve"))
	assert.ErrorIs(t, err, walletdomain.ErrInsufficientFunds)

	req, err := env.svc.RequestPayout(context.Background(), payoutInput(userID, 850_00, "po-ok"))
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.StatusProcessing, req.Status)
}

func TestRequestPayoutDailyLimit(t *testing.T) {
	env := newTestEnv(t)
	env.transfer.initiate = &transferdomain.Transfer{
		TransferCode: "TRF_done",
		Status:       transferdomain.TransferStatusSuccess,
	}
	userID := snowflake.ID(2008)
	env.credit(t, userID, 20_000_00, "credit-1")

	_, err := env.svc.RequestPayout(context.Background(), payoutInput(userID, 1_000_00, "po-1"))
	require.NoError(t, err)

	_, err = env.svc.RequestPayout(context.Background(), payoutInput(userID, 1_000_00, "po-2"))
	assert.ErrorIs(t, err, payoutdomain.ErrAlreadyRequestedToday)

	// The next UTC day opens a fresh allowance.
	env.clock.Advance(24 * time.Hour)
	req, err := env.svc.RequestPayout(context.Background(), payoutInput(userID, 1_000_00, "po-3"))
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.StatusCompleted, req.Status)
}

func TestFailedRequestDoesNotConsumeDailyLimit(t *testing.T) {
	env := newTestEnv(t)
	env.transfer.initiateErr = &transferdomain.RejectionError{Message: "name mismatch"}
	userID := snowflake.ID(2009)
	env.credit(t, userID, 20_000_00, "credit-1")

	req, err := env.svc.RequestPayout(context.Background(), payoutInput(userID, 1_000_00, "po-1"))
	require.NoError(t, err)
	require.Equal(t, payoutdomain.StatusFailed, req.Status)

	env.transfer.initiateErr = transferdomain.ErrIndeterminate
	retry, err := env.svc.RequestPayout(context.Background(), payoutInput(userID, 1_000_00, "po-2"))
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.StatusProcessing, retry.Status)
}

func TestWebhookResolutionAfterTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.transfer.initiateErr = transferdomain.ErrIndeterminate
	userID := snowflake.ID(2010)
	env.credit(t, userID, 10_000_00, "credit-1")

	req, err := env.svc.RequestPayout(context.Background(), payoutInput(userID, 5_000_00, "po-key-1"))
	require.NoError(t, err)
	require.Equal(t, payoutdomain.StatusProcessing, req.Status)

	// First signal wins and settles the debit.
	require.NoError(t, env.svc.CompleteByReference(context.Background(), req.Reference, "TRF_late", auditdomain.ActorTypeWebhook))

	settled, err := env.svc.Get(context.Background(), userID, req.ID)
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.StatusCompleted, settled.Status)

	wallet, err := env.walletSvc.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.PendingBalance)
	assert.Equal(t, int64(5_000_00), wallet.TotalWithdrawn)

	// A duplicate success signal is a no-op.
	require.NoError(t, env.svc.CompleteByReference(context.Background(), req.Reference, "TRF_late", auditdomain.ActorTypeWebhook))
	wallet, err = env.walletSvc.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_00), wallet.TotalWithdrawn)

	// A contradicting failure signal is rejected and changes nothing.
	err = env.svc.FailByReference(context.Background(), req.Reference, "transfer failed", auditdomain.ActorTypeWebhook)
	assert.ErrorIs(t, err, payoutdomain.ErrInvalidTransition)

	settled, err = env.svc.Get(context.Background(), userID, req.ID)
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.StatusCompleted, settled.Status)
}

func TestFailByReferenceUnlocks(t *testing.T) {
	env := newTestEnv(t)
	env.transfer.initiateErr = transferdomain.ErrIndeterminate
	userID := snowflake.ID(2011)
	env.credit(t, userID, 10_000_00, "credit-1")

	req, err := env.svc.RequestPayout(context.Background(), payoutInput(userID, 5_000_00, "po-key-1"))
	require.NoError(t, err)

	require.NoError(t, env.svc.FailByReference(context.Background(), req.Reference, "transfer failed", auditdomain.ActorTypeWebhook))

	wallet, err := env.walletSvc.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.PendingBalance)
	assert.Equal(t, int64(10_000_00), wallet.AvailableBalance())

	// Completing a failed payout is a contradiction.
	err = env.svc.CompleteByReference(context.Background(), req.Reference, "TRF_x", auditdomain.ActorTypeWebhook)
	assert.ErrorIs(t, err, payoutdomain.ErrInvalidTransition)
}

func TestForceReconcile(t *testing.T) {
	env := newTestEnv(t)
	env.transfer.initiateErr = transferdomain.ErrIndeterminate
	userID := snowflake.ID(2012)
	env.credit(t, userID, 10_000_00, "credit-1")

	req, err := env.svc.RequestPayout(context.Background(), payoutInput(userID, 5_000_00, "po-key-1"))
	require.NoError(t, err)

	// Provider still unreachable: nothing changes.
	env.transfer.fetchErr = transferdomain.ErrIndeterminate
	got, err := env.svc.ForceReconcile(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.StatusProcessing, got.Status)

	// Provider reports success: the payout settles.
	env.transfer.fetchErr = nil
	env.transfer.fetch = &transferdomain.Transfer{
		TransferCode: "TRF_found",
		Status:       transferdomain.TransferStatusSuccess,
	}
	got, err = env.svc.ForceReconcile(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.StatusCompleted, got.Status)
}

func TestForceReconcileUnknownTransferFails(t *testing.T) {
	env := newTestEnv(t)
	env.transfer.recipientErr = transferdomain.ErrIndeterminate
	userID := snowflake.ID(2013)
	env.credit(t, userID, 10_000_00, "credit-1")

	req, err := env.svc.RequestPayout(context.Background(), payoutInput(userID, 5_000_00, "po-key-1"))
	require.NoError(t, err)
	require.Equal(t, payoutdomain.StatusProcessing, req.Status)

	// The provider never saw the reference, so unlocking cannot double-pay.
	env.transfer.fetchErr = &transferdomain.RejectionError{Message: "Transfer not found"}
	got, err := env.svc.ForceReconcile(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.StatusFailed, got.Status)

	wallet, err := env.walletSvc.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_00), wallet.AvailableBalance())
}

func TestReconcileStaleSweep(t *testing.T) {
	env := newTestEnv(t)
	env.transfer.initiateErr = transferdomain.ErrIndeterminate
	userID := snowflake.ID(2014)
	env.credit(t, userID, 10_000_00, "credit-1")

	req, err := env.svc.RequestPayout(context.Background(), payoutInput(userID, 5_000_00, "po-key-1"))
	require.NoError(t, err)

	// Not yet stale.
	n, err := env.svc.ReconcileStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	env.clock.Advance(time.Duration(env.policy.StaleAfterMinutes+1) * time.Minute)
	env.transfer.fetch = &transferdomain.Transfer{
		TransferCode: "TRF_found",
		Status:       transferdomain.TransferStatusFailed,
	}
	n, err = env.svc.ReconcileStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := env.svc.Get(context.Background(), userID, req.ID)
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.StatusFailed, got.Status)
}

func TestRecipientReuseFromProfile(t *testing.T) {
	env := newTestEnv(t)
	env.transfer.initiate = &transferdomain.Transfer{
		TransferCode: "TRF_done",
		Status:       transferdomain.TransferStatusSuccess,
	}
	userID := snowflake.ID(2015)
	env.credit(t, userID, 20_000_00, "credit-1")

	first, err := env.svc.RequestPayout(context.Background(), payoutInput(userID, 1_000_00, "po-1"))
	require.NoError(t, err)
	require.NotNil(t, first.RecipientCode)

	env.clock.Advance(24 * time.Hour)
	env.transfer.recipientErr = transferdomain.ErrIndeterminate // would fail a second registration

	second, err := env.svc.RequestPayout(context.Background(), payoutInput(userID, 1_000_00, "po-2"))
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.StatusCompleted, second.Status)
	require.NotNil(t, second.RecipientCode)
	assert.Equal(t, *first.RecipientCode, *second.RecipientCode)
}

func TestRequestPayoutValidation(t *testing.T) {
	env := newTestEnv(t)
	userID := snowflake.ID(2016)
	env.credit(t, userID, 10_000_00, "credit-1")

	in := payoutInput(userID, 1_000_00, "po-1")
	in.Channel = "crypto"
	_, err := env.svc.RequestPayout(context.Background(), in)
	assert.ErrorIs(t, err, transferdomain.ErrInvalidDestination)

	in = payoutInput(userID, 1_000_00, "po-2")
	in.AccountNumber = " "
	_, err = env.svc.RequestPayout(context.Background(), in)
	assert.ErrorIs(t, err, transferdomain.ErrInvalidDestination)

	in = payoutInput(userID, -5, "po-3")
	_, err = env.svc.RequestPayout(context.Background(), in)
	assert.ErrorIs(t, err, payoutdomain.ErrInvalidAmount)

	in = payoutInput(userID, 1_000_00, "")
	_, err = env.svc.RequestPayout(context.Background(), in)
	assert.ErrorIs(t, err, walletdomain.ErrInvalidIdempotency)
}
