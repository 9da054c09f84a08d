package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	transferdomain "github.com/draftworks/meridian/internal/providers/transfer/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, "sk_test_key", 2*time.Second, zap.NewNop())
}

func TestCreateRecipient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transferrecipient", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "nuban", body["type"])
		assert.Equal(t, "0123456789", body["account_number"])

		json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Transfer recipient created successfully",
			"data":    map[string]any{"recipient_code": "RCP_abc"},
		})
	})

	recipient, err := client.CreateRecipient(context.Background(), transferdomain.RecipientRequest{
		Channel:       transferdomain.ChannelBank,
		Name:          "Ada Obi",
		AccountNumber: "0123456789",
		BankCode:      "058",
		Currency:      "ngn",
	})
	require.NoError(t, err)
	assert.Equal(t, "RCP_abc", recipient.RecipientCode)
}

func TestCreateRecipientRejectionIsInvalidDestination(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  false,
			"message": "Cannot resolve account",
		})
	})

	_, err := client.CreateRecipient(context.Background(), transferdomain.RecipientRequest{
		Channel:       transferdomain.ChannelBank,
		Name:          "Ada Obi",
		AccountNumber: "0000000000",
		BankCode:      "058",
	})
	assert.ErrorIs(t, err, transferdomain.ErrInvalidDestination)
}

func TestInitiateTransferStatuses(t *testing.T) {
	for providerStatus, want := range map[string]transferdomain.TransferStatus{
		"pending":   transferdomain.TransferStatusPending,
		"otp":       transferdomain.TransferStatusPending,
		"success":   transferdomain.TransferStatusSuccess,
		"failed":    transferdomain.TransferStatusFailed,
		"abandoned": transferdomain.TransferStatusFailed,
		"reversed":  transferdomain.TransferStatusReversed,
	} {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/transfer", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]any{
				"status": true,
				"data": map[string]any{
					"transfer_code": "TRF_1",
					"reference":     "po_1",
					"status":        providerStatus,
				},
			})
		})

		transfer, err := client.InitiateTransfer(context.Background(), transferdomain.TransferRequest{
			Reference:     "po_1",
			RecipientCode: "RCP_abc",
			Amount:        5_000_00,
			Currency:      "NGN",
		})
		require.NoError(t, err)
		assert.Equal(t, want, transfer.Status, "provider status %q", providerStatus)
		assert.Equal(t, "TRF_1", transfer.TransferCode)
	}
}

func TestInitiateTransferRejection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  false,
			"message": "Your balance is not enough",
		})
	})

	_, err := client.InitiateTransfer(context.Background(), transferdomain.TransferRequest{
		Reference:     "po_1",
		RecipientCode: "RCP_abc",
		Amount:        5_000_00,
	})
	var rejection *transferdomain.RejectionError
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, "Your balance is not enough", rejection.Message)
}

func TestServerErrorIsIndeterminate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]any{"status": false, "message": "bad gateway"})
	})

	_, err := client.InitiateTransfer(context.Background(), transferdomain.TransferRequest{
		Reference:     "po_1",
		RecipientCode: "RCP_abc",
		Amount:        100,
	})
	assert.ErrorIs(t, err, transferdomain.ErrIndeterminate)
}

func TestAmbiguousVerifyResponsesAreIndeterminate(t *testing.T) {
	for name, code := range map[string]int{
		"rate_limited": http.StatusTooManyRequests,
		"unauthorized": http.StatusUnauthorized,
		"forbidden":    http.StatusForbidden,
	} {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
				json.NewEncoder(w).Encode(map[string]any{"status": false, "message": "Too many requests"})
			})

			// A rejection here would let reconciliation fail the payout
			// and unlock funds for a transfer that may have succeeded.
			_, err := client.FetchTransfer(context.Background(), "po_1")
			assert.ErrorIs(t, err, transferdomain.ErrIndeterminate)

			var rejection *transferdomain.RejectionError
			assert.False(t, errors.As(err, &rejection))
		})
	}
}

func TestTransportFailureIsIndeterminate(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "sk_test_key", 200*time.Millisecond, zap.NewNop())

	_, err := client.FetchTransfer(context.Background(), "po_1")
	assert.ErrorIs(t, err, transferdomain.ErrIndeterminate)
}

func TestFetchTransferEscapesReference(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transfer/verify/po_1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]any{
				"transfer_code": "TRF_1",
				"reference":     "po_1",
				"status":        "success",
			},
		})
	})

	transfer, err := client.FetchTransfer(context.Background(), "po_1")
	require.NoError(t, err)
	assert.Equal(t, transferdomain.TransferStatusSuccess, transfer.Status)
}

func TestListBanks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bank", r.URL.Path)
		assert.Equal(t, "NGN", r.URL.Query().Get("currency"))
		assert.Equal(t, "mobile_money", r.URL.Query().Get("type"))
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": []map[string]any{
				{"name": "MTN MoMo", "code": "50211"},
			},
		})
	})

	banks, err := client.ListBanks(context.Background(), transferdomain.ChannelMobileMoney)
	require.NoError(t, err)
	require.Len(t, banks, 1)
	assert.Equal(t, "50211", banks[0].Code)
}
