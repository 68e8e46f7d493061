package repository

import (
	"context"
	"errors"

	"bridge-backend/internal/apperrors"
	"bridge-backend/internal/models"

	"gorm.io/gorm"
)

// TokenPairRepository defines read access to token pair reference data.
type TokenPairRepository interface {
	GetByID(ctx context.Context, id uint) (*models.TokenPair, error)
	List(ctx context.Context) ([]*models.TokenPair, error)
}

type tokenPairRepository struct {
	db *gorm.DB
}

// NewTokenPairRepository creates a new TokenPairRepository instance
func NewTokenPairRepository(db *gorm.DB) TokenPairRepository {
	return &tokenPairRepository{db: db}
}

func (r *tokenPairRepository) GetByID(ctx context.Context, id uint) (*models.TokenPair, error) {
	var pair models.TokenPair
	err := r.db.WithContext(ctx).
		Preload("FromToken").Preload("FromToken.Blockchain").
		Preload("ToToken").Preload("ToToken.Blockchain").
		Where("id = ?", id).First(&pair).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.BadRequest(apperrors.CodeMissingReferenceData, "token pair %d does not exist", id)
		}
		return nil, err
	}
	return &pair, nil
}

func (r *tokenPairRepository) List(ctx context.Context) ([]*models.TokenPair, error) {
	var pairs []*models.TokenPair
	err := r.db.WithContext(ctx).
		Preload("FromToken").Preload("FromToken.Blockchain").
		Preload("ToToken").Preload("ToToken.Blockchain").
		Order("id").Find(&pairs).Error
	if err != nil {
		return nil, err
	}
	return pairs, nil
}
