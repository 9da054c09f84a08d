package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	transferdomain "github.com/draftworks/meridian/internal/providers/transfer/domain"
	"go.uber.org/zap"
)

const defaultTimeout = 15 * time.Second

// Client talks to the Paystack transfer API. Initiate/fetch calls carry the
// caller's reference so retries and webhooks correlate to one payout.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(baseURL, secretKey string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  strings.TrimSpace(secretKey),
		httpClient: &http.Client{Timeout: timeout},
		log:        log.Named("paystack.client"),
	}
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type recipientData struct {
	RecipientCode string `json:"recipient_code"`
}

type transferData struct {
	TransferCode string `json:"transfer_code"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
}

func (c *Client) CreateRecipient(ctx context.Context, req transferdomain.RecipientRequest) (*transferdomain.Recipient, error) {
	recipientType, err := recipientType(req.Channel)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.AccountNumber) == "" || strings.TrimSpace(req.BankCode) == "" {
		return nil, transferdomain.ErrInvalidDestination
	}

	body := map[string]any{
		"type":           recipientType,
		"name":           strings.TrimSpace(req.Name),
		"account_number": strings.TrimSpace(req.AccountNumber),
		"bank_code":      strings.TrimSpace(req.BankCode),
		"currency":       strings.ToUpper(strings.TrimSpace(req.Currency)),
	}

	var data recipientData
	if err := c.do(ctx, http.MethodPost, "/transferrecipient", body, &data); err != nil {
		var rejection *transferdomain.RejectionError
		if errors.As(err, &rejection) {
			// A refused recipient means the destination details are bad.
			return nil, transferdomain.ErrInvalidDestination
		}
		return nil, err
	}
	if data.RecipientCode == "" {
		return nil, transferdomain.ErrInvalidDestination
	}
	return &transferdomain.Recipient{RecipientCode: data.RecipientCode}, nil
}

func (c *Client) InitiateTransfer(ctx context.Context, req transferdomain.TransferRequest) (*transferdomain.Transfer, error) {
	body := map[string]any{
		"source":    "balance",
		"reference": req.Reference,
		"recipient": req.RecipientCode,
		"amount":    req.Amount,
		"currency":  strings.ToUpper(strings.TrimSpace(req.Currency)),
		"reason":    req.Reason,
	}

	var data transferData
	if err := c.do(ctx, http.MethodPost, "/transfer", body, &data); err != nil {
		return nil, err
	}
	return &transferdomain.Transfer{
		TransferCode: data.TransferCode,
		Reference:    data.Reference,
		Status:       normalizeStatus(data.Status),
	}, nil
}

func (c *Client) FetchTransfer(ctx context.Context, reference string) (*transferdomain.Transfer, error) {
	path := "/transfer/verify/" + url.PathEscape(strings.TrimSpace(reference))

	var data transferData
	if err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return &transferdomain.Transfer{
		TransferCode: data.TransferCode,
		Reference:    data.Reference,
		Status:       normalizeStatus(data.Status),
	}, nil
}

func (c *Client) ListBanks(ctx context.Context, channel transferdomain.Channel) ([]transferdomain.Bank, error) {
	path := "/bank?currency=NGN"
	if channel == transferdomain.ChannelMobileMoney {
		path += "&type=mobile_money"
	}

	var banks []transferdomain.Bank
	if err := c.do(ctx, http.MethodGet, path, nil, &banks); err != nil {
		return nil, err
	}
	return banks, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The request may have reached the provider before the transport
		// failed; the outcome is unknown, not a rejection.
		c.log.Warn("provider call indeterminate",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return transferdomain.ErrIndeterminate
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return transferdomain.ErrIndeterminate
	}

	if resp.StatusCode >= 500 {
		return transferdomain.ErrIndeterminate
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		// Auth and rate-limit responses say nothing about the transfer
		// itself. Treating them as rejections would let reconciliation
		// unlock funds for a transfer that may have gone through.
		c.log.Warn("provider call indeterminate",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.String("message", strings.TrimSpace(env.Message)),
		)
		return transferdomain.ErrIndeterminate
	}
	if resp.StatusCode >= 400 || !env.Status {
		message := strings.TrimSpace(env.Message)
		if message == "" {
			message = fmt.Sprintf("provider returned status %d", resp.StatusCode)
		}
		return &transferdomain.RejectionError{Message: message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return err
		}
	}
	return nil
}

func recipientType(channel transferdomain.Channel) (string, error) {
	switch channel {
	case transferdomain.ChannelBank:
		return "nuban", nil
	case transferdomain.ChannelMobileMoney:
		return "mobile_money", nil
	default:
		return "", transferdomain.ErrInvalidDestination
	}
}

func normalizeStatus(status string) transferdomain.TransferStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success":
		return transferdomain.TransferStatusSuccess
	case "failed", "abandoned", "rejected":
		return transferdomain.TransferStatusFailed
	case "reversed":
		return transferdomain.TransferStatusReversed
	default:
		return transferdomain.TransferStatusPending
	}
}
