package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/draftworks/meridian/internal/clock"
	"github.com/draftworks/meridian/internal/config"
	"github.com/draftworks/meridian/internal/migration"
	payoutdomain "github.com/draftworks/meridian/internal/payout/domain"
	transferdomain "github.com/draftworks/meridian/internal/providers/transfer/domain"
	webhookdomain "github.com/draftworks/meridian/internal/webhook/domain"
	webhookrepository "github.com/draftworks/meridian/internal/webhook/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "sk_test_secret"

// fakePayoutSvc records reconciliation calls and returns a scripted error.
type fakePayoutSvc struct {
	completeErr error
	failErr     error

	completed [][2]string
	failed    [][2]string
}

func (f *fakePayoutSvc) RequestPayout(context.Context, payoutdomain.RequestPayoutInput) (*payoutdomain.PayoutRequest, error) {
	return nil, nil
}
func (f *fakePayoutSvc) Get(context.Context, snowflake.ID, snowflake.ID) (*payoutdomain.PayoutRequest, error) {
	return nil, nil
}
func (f *fakePayoutSvc) List(context.Context, payoutdomain.ListRequest) ([]payoutdomain.PayoutRequest, error) {
	return nil, nil
}
func (f *fakePayoutSvc) EarningsSummary(context.Context, snowflake.ID) (*payoutdomain.EarningsSummary, error) {
	return nil, nil
}
func (f *fakePayoutSvc) ListPayoutOptions(context.Context, transferdomain.Channel) ([]transferdomain.Bank, error) {
	return nil, nil
}
func (f *fakePayoutSvc) CompleteByReference(ctx context.Context, reference, transferCode, actorType string) error {
	f.completed = append(f.completed, [2]string{reference, transferCode})
	return f.completeErr
}
func (f *fakePayoutSvc) FailByReference(ctx context.Context, reference, reason, actorType string) error {
	f.failed = append(f.failed, [2]string{reference, reason})
	return f.failErr
}
func (f *fakePayoutSvc) ForceReconcile(context.Context, snowflake.ID) (*payoutdomain.PayoutRequest, error) {
	return nil, nil
}
func (f *fakePayoutSvc) ReconcileStale(context.Context) (int, error) {
	return 0, nil
}

func newTestService(t *testing.T) (webhookdomain.Service, *fakePayoutSvc) {
	t.Helper()

	dsn := fmt.Sprintf("file:webhook_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	payoutSvc := &fakePayoutSvc{}
	svc := NewService(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Cfg:       config.Config{PaystackSecretKey: testSecret},
		Repo:      webhookrepository.Provide(),
		PayoutSvc: payoutSvc,
		Clock:     clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)),
	})
	return svc, payoutSvc
}

func sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func transferEvent(event string, id int64, reference string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":%q,"data":{"id":%d,"reference":%q,"transfer_code":"TRF_1","status":"success","reason":"done"}}`,
		event, id, reference,
	))
}

func TestHandlePaystackRejectsBadSignature(t *testing.T) {
	svc, payoutSvc := newTestService(t)
	body := transferEvent("transfer.success", 101, "po_1")

	_, err := svc.HandlePaystack(context.Background(), "deadbeef", body)
	assert.ErrorIs(t, err, webhookdomain.ErrInvalidSignature)

	_, err = svc.HandlePaystack(context.Background(), "", body)
	assert.ErrorIs(t, err, webhookdomain.ErrInvalidSignature)

	assert.Empty(t, payoutSvc.completed)
}

func TestHandlePaystackProcessesTransferSuccess(t *testing.T) {
	svc, payoutSvc := newTestService(t)
	body := transferEvent("transfer.success", 101, "po_1")

	row, err := svc.HandlePaystack(context.Background(), sign(body), body)
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.EventStatusProcessed, row.Status)
	require.Len(t, payoutSvc.completed, 1)
	assert.Equal(t, [2]string{"po_1", "TRF_1"}, payoutSvc.completed[0])
}

func TestHandlePaystackProcessesTransferFailed(t *testing.T) {
	svc, payoutSvc := newTestService(t)
	body := []byte(`{"event":"transfer.failed","data":{"id":102,"reference":"po_2","status":"failed","reason":"account closed"}}`)

	row, err := svc.HandlePaystack(context.Background(), sign(body), body)
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.EventStatusProcessed, row.Status)
	require.Len(t, payoutSvc.failed, 1)
	assert.Equal(t, [2]string{"po_2", "account closed"}, payoutSvc.failed[0])
}

func TestHandlePaystackDeduplicatesRedeliveries(t *testing.T) {
	svc, payoutSvc := newTestService(t)
	body := transferEvent("transfer.success", 101, "po_1")

	first, err := svc.HandlePaystack(context.Background(), sign(body), body)
	require.NoError(t, err)

	for range 3 {
		row, err := svc.HandlePaystack(context.Background(), sign(body), body)
		require.NoError(t, err)
		assert.Equal(t, first.ID, row.ID)
	}

	// Four deliveries, one settlement.
	assert.Len(t, payoutSvc.completed, 1)
}

func TestHandlePaystackIgnoresUnknownEvents(t *testing.T) {
	svc, payoutSvc := newTestService(t)
	body := []byte(`{"event":"charge.success","data":{"id":55,"reference":"ch_1"}}`)

	row, err := svc.HandlePaystack(context.Background(), sign(body), body)
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.EventStatusIgnored, row.Status)
	assert.Empty(t, payoutSvc.completed)
	assert.Empty(t, payoutSvc.failed)
}

func TestHandlePaystackAcksContradiction(t *testing.T) {
	svc, payoutSvc := newTestService(t)
	payoutSvc.failErr = payoutdomain.ErrInvalidTransition
	body := []byte(`{"event":"transfer.failed","data":{"id":103,"reference":"po_3","status":"failed","reason":"late failure"}}`)

	// The payout already completed; the contradiction is recorded, not retried.
	row, err := svc.HandlePaystack(context.Background(), sign(body), body)
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.EventStatusFailed, row.Status)
	require.NotNil(t, row.FailureReason)
	assert.Equal(t, "invalid_for_state", *row.FailureReason)
}

func TestHandlePaystackUnknownReference(t *testing.T) {
	svc, payoutSvc := newTestService(t)
	payoutSvc.completeErr = payoutdomain.ErrNotFound
	body := transferEvent("transfer.success", 104, "po_missing")

	row, err := svc.HandlePaystack(context.Background(), sign(body), body)
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.EventStatusFailed, row.Status)
	require.NotNil(t, row.FailureReason)
	assert.Equal(t, "unknown_reference", *row.FailureReason)
}

func TestHandlePaystackTransientErrorSurfaces(t *testing.T) {
	svc, payoutSvc := newTestService(t)
	payoutSvc.completeErr = context.DeadlineExceeded
	body := transferEvent("transfer.success", 105, "po_5")

	_, err := svc.HandlePaystack(context.Background(), sign(body), body)
	require.Error(t, err)

	// The row stayed `received`, so the redelivery retries the dispatch.
	payoutSvc.completeErr = nil
	row, err := svc.HandlePaystack(context.Background(), sign(body), body)
	require.NoError(t, err)
	assert.Equal(t, webhookdomain.EventStatusProcessed, row.Status)
	assert.Len(t, payoutSvc.completed, 2)
}

func TestHandlePaystackRejectsMalformedPayload(t *testing.T) {
	svc, _ := newTestService(t)

	body := []byte(`{"data":{}}`)
	_, err := svc.HandlePaystack(context.Background(), sign(body), body)
	assert.ErrorIs(t, err, webhookdomain.ErrInvalidPayload)

	body = []byte(`not json`)
	_, err = svc.HandlePaystack(context.Background(), sign(body), body)
	assert.ErrorIs(t, err, webhookdomain.ErrInvalidPayload)
}
