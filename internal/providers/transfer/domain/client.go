package domain

import (
	"context"
	"errors"
	"fmt"
)

// Channel is the destination kind for a payout.
type Channel string

const (
	ChannelBank        Channel = "bank"
	ChannelMobileMoney Channel = "mobile_money"
)

func (c Channel) Valid() bool {
	return c == ChannelBank || c == ChannelMobileMoney
}

type RecipientRequest struct {
	Channel       Channel
	Name          string
	AccountNumber string
	BankCode      string
	Currency      string
}

type Recipient struct {
	RecipientCode string
}

type TransferRequest struct {
	Reference     string
	RecipientCode string
	Amount        int64
	Currency      string
	Reason        string
}

// TransferStatus is the provider's view of a transfer.
type TransferStatus string

const (
	TransferStatusPending  TransferStatus = "pending"
	TransferStatusSuccess  TransferStatus = "success"
	TransferStatusFailed   TransferStatus = "failed"
	TransferStatusReversed TransferStatus = "reversed"
)

type Transfer struct {
	TransferCode string
	Reference    string
	Status       TransferStatus
}

type Bank struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// Client is the outbound funds-transfer provider boundary. Implementations
// must separate an explicit provider rejection (RejectionError) from a
// transport failure whose outcome is unknown (ErrIndeterminate): the caller
// compensates only for the former.
type Client interface {
	CreateRecipient(ctx context.Context, req RecipientRequest) (*Recipient, error)
	InitiateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	FetchTransfer(ctx context.Context, reference string) (*Transfer, error)
	ListBanks(ctx context.Context, channel Channel) ([]Bank, error)
}

// RejectionError is a definitive "no" from the provider: the transfer was not
// and will not be executed.
type RejectionError struct {
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("transfer rejected: %s", e.Message)
}

var (
	// ErrIndeterminate means the call did not yield a definitive outcome
	// (timeout, connection reset). The transfer may or may not have gone
	// through; only reconciliation can tell.
	ErrIndeterminate      = errors.New("transfer_outcome_indeterminate")
	ErrInvalidDestination = errors.New("invalid_destination")
)
