package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	walletdomain "github.com/draftworks/meridian/internal/wallet/domain"
	"gorm.io/gorm"
)

type Repository struct{}

func Provide() walletdomain.Repository {
	return &Repository{}
}

func (r *Repository) FindWalletByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*walletdomain.Wallet, error) {
	var wallet walletdomain.Wallet
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *Repository) LockWalletByUser(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (*walletdomain.Wallet, error) {
	var wallet walletdomain.Wallet
	err := tx.WithContext(ctx).Raw(
		`SELECT id, user_id, currency, total_earned, total_withdrawn, pending_balance, version, created_at, updated_at
		 FROM wallets
		 WHERE user_id = ?
		 FOR UPDATE`,
		userID,
	).Scan(&wallet).Error
	if err != nil {
		return nil, err
	}
	if wallet.ID == 0 {
		return nil, nil
	}
	return &wallet, nil
}

func (r *Repository) CreateWallet(ctx context.Context, tx *gorm.DB, wallet *walletdomain.Wallet) error {
	return tx.WithContext(ctx).Create(wallet).Error
}

func (r *Repository) UpdateWalletVersioned(ctx context.Context, tx *gorm.DB, wallet *walletdomain.Wallet, fromVersion int64) error {
	result := tx.WithContext(ctx).Exec(
		`UPDATE wallets
		 SET total_earned = ?, total_withdrawn = ?, pending_balance = ?, version = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		wallet.TotalEarned,
		wallet.TotalWithdrawn,
		wallet.PendingBalance,
		wallet.Version,
		time.Now().UTC(),
		wallet.ID,
		fromVersion,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return walletdomain.ErrConflict
	}
	return nil
}

func (r *Repository) InsertTransaction(ctx context.Context, tx *gorm.DB, txn *walletdomain.WalletTransaction) error {
	return tx.WithContext(ctx).Create(txn).Error
}

func (r *Repository) FindTransactionByKey(ctx context.Context, db *gorm.DB, key string, kind walletdomain.TransactionKind) (*walletdomain.WalletTransaction, error) {
	var txn walletdomain.WalletTransaction
	err := db.WithContext(ctx).
		Where("idempotency_key = ? AND kind = ?", key, kind).
		First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *Repository) ListTransactions(ctx context.Context, db *gorm.DB, req walletdomain.ListTransactionsRequest) ([]walletdomain.WalletTransaction, error) {
	query := db.WithContext(ctx).Model(&walletdomain.WalletTransaction{})

	if req.UserID != 0 {
		query = query.Where("user_id = ?", req.UserID)
	}
	if req.Kind != "" {
		query = query.Where("kind = ?", req.Kind)
	}

	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var rows []walletdomain.WalletTransaction
	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(req.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
