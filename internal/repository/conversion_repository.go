package repository

import (
	"context"
	"errors"
	"time"

	"bridge-backend/internal/apperrors"
	"bridge-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ConversionRepository defines data access for conversions.
type ConversionRepository interface {
	Create(ctx context.Context, conversion *models.Conversion) error
	GetByConversionID(ctx context.Context, conversionID string) (*models.Conversion, error)
	// FindLatestPending returns the newest USER_INITIATED conversion of a
	// wallet pair, or nil.
	FindLatestPending(ctx context.Context, walletPairID uint) (*models.Conversion, error)
	// FindActiveByWalletPair returns the newest non-terminal conversion of a
	// wallet pair, or nil. Used to match Cardano push deposits.
	FindActiveByWalletPair(ctx context.Context, walletPairID uint) (*models.Conversion, error)
	// UpdateStatus transitions status conditionally: the write only applies
	// when the row still carries one of fromStatuses, so a lost race is a
	// no-op rather than an overwrite.
	UpdateStatus(ctx context.Context, id uint, fromStatuses []models.ConversionStatus, to models.ConversionStatus) error
	UpdateAmounts(ctx context.Context, id uint, deposit, claim, fee decimal.Decimal) error
	SetClaimSignature(ctx context.Context, id uint, signature string) error
	// SumLockedDeposits returns deposits of in-flight conversions for a
	// token pair, the portion of bridge liquidity already spoken for.
	SumLockedDeposits(ctx context.Context, tokenPairID uint) (decimal.Decimal, error)
	// ExpireOlderThan marks USER_INITIATED conversions of the given wallet
	// pairs' token pair chains older than cutoff as EXPIRED. Returns the
	// number of rows changed. Idempotent: EXPIRED rows never match.
	ExpireOlderThan(ctx context.Context, tokenPairIDs []uint, cutoff time.Time) (int64, error)
}

type conversionRepository struct {
	db *gorm.DB
}

// NewConversionRepository creates a new ConversionRepository instance
func NewConversionRepository(db *gorm.DB) ConversionRepository {
	return &conversionRepository{db: db}
}

func (r *conversionRepository) Create(ctx context.Context, conversion *models.Conversion) error {
	return r.db.WithContext(ctx).Create(conversion).Error
}

func (r *conversionRepository) GetByConversionID(ctx context.Context, conversionID string) (*models.Conversion, error) {
	var conversion models.Conversion
	err := r.db.WithContext(ctx).
		Preload("WalletPair").
		Where("conversion_id = ?", conversionID).
		First(&conversion).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.BadRequest(apperrors.CodeConversionNotFound, "conversion %s does not exist", conversionID)
		}
		return nil, err
	}
	return &conversion, nil
}

func (r *conversionRepository) FindLatestPending(ctx context.Context, walletPairID uint) (*models.Conversion, error) {
	var conversion models.Conversion
	err := r.db.WithContext(ctx).
		Where("wallet_pair_id = ? AND status = ?", walletPairID, models.ConversionStatusUserInitiated).
		Order("id DESC").
		First(&conversion).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conversion, nil
}

func (r *conversionRepository) FindActiveByWalletPair(ctx context.Context, walletPairID uint) (*models.Conversion, error) {
	var conversion models.Conversion
	err := r.db.WithContext(ctx).
		Where("wallet_pair_id = ? AND status IN ?", walletPairID, []models.ConversionStatus{
			models.ConversionStatusUserInitiated,
			models.ConversionStatusProcessing,
		}).
		Order("id DESC").
		First(&conversion).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conversion, nil
}

func (r *conversionRepository) UpdateStatus(ctx context.Context, id uint, fromStatuses []models.ConversionStatus, to models.ConversionStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Conversion{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()}).Error
}

func (r *conversionRepository) UpdateAmounts(ctx context.Context, id uint, deposit, claim, fee decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Conversion{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"deposit_amount": deposit,
			"claim_amount":   claim,
			"fee_amount":     fee,
			"updated_at":     time.Now(),
		}).Error
}

func (r *conversionRepository) SetClaimSignature(ctx context.Context, id uint, signature string) error {
	return r.db.WithContext(ctx).
		Model(&models.Conversion{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"claim_signature": signature, "updated_at": time.Now()}).Error
}

func (r *conversionRepository) SumLockedDeposits(ctx context.Context, tokenPairID uint) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&models.Conversion{}).
		Select("COALESCE(SUM(conversions.deposit_amount), 0)").
		Joins("JOIN wallet_pairs ON wallet_pairs.id = conversions.wallet_pair_id").
		Where("wallet_pairs.token_pair_id = ? AND conversions.status IN ?", tokenPairID, []models.ConversionStatus{
			models.ConversionStatusProcessing,
			models.ConversionStatusWaitingForClaim,
			models.ConversionStatusClaimInitiated,
		}).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func (r *conversionRepository) ExpireOlderThan(ctx context.Context, tokenPairIDs []uint, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Conversion{}).
		Where("status = ? AND created_at < ?", models.ConversionStatusUserInitiated, cutoff).
		Where("wallet_pair_id IN (?)", r.db.Model(&models.WalletPair{}).Select("id").Where("token_pair_id IN ?", tokenPairIDs)).
		Updates(map[string]interface{}{"status": models.ConversionStatusExpired, "updated_at": time.Now()})
	return result.RowsAffected, result.Error
}
