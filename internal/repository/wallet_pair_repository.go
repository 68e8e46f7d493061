package repository

import (
	"context"
	"errors"

	"bridge-backend/internal/models"

	"gorm.io/gorm"
)

// WalletPairRepository defines data access for wallet pairs.
type WalletPairRepository interface {
	Create(ctx context.Context, pair *models.WalletPair) error
	GetByID(ctx context.Context, id uint) (*models.WalletPair, error)
	// FindByAddresses returns the wallet pair for (token pair, from, to),
	// or nil when none exists.
	FindByAddresses(ctx context.Context, tokenPairID uint, fromAddress, toAddress string) (*models.WalletPair, error)
	// FindByDepositAddress resolves the Cardano push-deposit flow: the
	// escrow address is pre-associated with exactly one wallet pair.
	FindByDepositAddress(ctx context.Context, depositAddress string) (*models.WalletPair, error)
}

type walletPairRepository struct {
	db *gorm.DB
}

// NewWalletPairRepository creates a new WalletPairRepository instance
func NewWalletPairRepository(db *gorm.DB) WalletPairRepository {
	return &walletPairRepository{db: db}
}

func (r *walletPairRepository) Create(ctx context.Context, pair *models.WalletPair) error {
	return r.db.WithContext(ctx).Create(pair).Error
}

func (r *walletPairRepository) GetByID(ctx context.Context, id uint) (*models.WalletPair, error) {
	var pair models.WalletPair
	err := r.db.WithContext(ctx).Preload("TokenPair").Where("id = ?", id).First(&pair).Error
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

func (r *walletPairRepository) FindByAddresses(ctx context.Context, tokenPairID uint, fromAddress, toAddress string) (*models.WalletPair, error) {
	var pair models.WalletPair
	err := r.db.WithContext(ctx).
		Where("token_pair_id = ? AND from_address = ? AND to_address = ?", tokenPairID, fromAddress, toAddress).
		First(&pair).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pair, nil
}

func (r *walletPairRepository) FindByDepositAddress(ctx context.Context, depositAddress string) (*models.WalletPair, error) {
	var pair models.WalletPair
	err := r.db.WithContext(ctx).
		Where("deposit_address = ?", depositAddress).
		First(&pair).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pair, nil
}
